package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"maestro/internal/domain"
)

// wrapWriteErr maps integrity violations raised by postgres onto domain
// sentinels so callers can branch with errors.Is.
func wrapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrNotFound, pgErr.ConstraintName)
		case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return fmt.Errorf("%s: %w: %s", op, domain.ErrInvalidParams, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

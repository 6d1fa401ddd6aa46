package domain

import "strings"

// UserRole enumerates roles known to the host application.
type UserRole string

const (
	UserRoleAdmin       UserRole = "admin"
	UserRoleEditor      UserRole = "editor"
	UserRoleAuthor      UserRole = "author"
	UserRoleContributor UserRole = "contributor"
	UserRoleSubscriber  UserRole = "subscriber"
)

// Principal identifies the caller of a job operation.
type Principal struct {
	UserID int64
	Role   UserRole
}

// CanUpload reports whether the principal may create media, which is the
// capability required to create jobs.
func (p Principal) CanUpload() bool {
	if p.UserID <= 0 {
		return false
	}
	switch UserRole(strings.ToLower(string(p.Role))) {
	case UserRoleAdmin, UserRoleEditor, UserRoleAuthor:
		return true
	default:
		return false
	}
}

package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params holds operation parameters. Values are validated lazily by the
// handler that consumes them.
type Params map[string]any

// Clone returns a shallow copy of the map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the trimmed string value stored at key.
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Float returns the numeric value at key, accepting numbers and numeric
// strings (form posts send "0.7").
func (p Params) Float(key string, fallback float64) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return fallback, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be numeric", ErrInvalidParams, key)
		}
		return f, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return fallback, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be numeric", ErrInvalidParams, key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be numeric", ErrInvalidParams, key)
	}
}

// Int64 returns the integer value at key, or 0 when absent.
func (p Params) Int64(key string) (int64, error) {
	f, err := p.Float(key, 0)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
	}
	return int64(f), nil
}

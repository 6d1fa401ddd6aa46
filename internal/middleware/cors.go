package middleware

import (
	"net/http"
	"strings"
)

// Origins is a parsed CORS allow-list. "*" allows any origin without
// credentials.
type Origins struct {
	allow    map[string]struct{}
	wildcard bool
}

func NewOrigins(list []string) Origins {
	o := Origins{allow: make(map[string]struct{}, len(list))}
	for _, origin := range list {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			o.wildcard = true
			continue
		}
		if origin != "" {
			o.allow[origin] = struct{}{}
		}
	}
	return o
}

// Listed reports whether origin appears verbatim in the list.
func (o Origins) Listed(origin string) bool {
	_, ok := o.allow[strings.TrimRight(origin, "/")]
	return ok
}

// Allowed reports whether a browser on origin may call the API.
func (o Origins) Allowed(origin string) bool {
	return o.wildcard || o.Listed(origin)
}

// CORS answers preflight requests and echoes allowed origins.
func CORS(origins Origins) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				listed := origins.Listed(origin)
				switch {
				case listed:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				case origins.wildcard:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}
				if listed || origins.wildcard {
					w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
					w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
					w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
				}
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

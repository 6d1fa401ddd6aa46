package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"maestro/internal/domain"
)

func TestSignAndVerifyJWT(t *testing.T) {
	claims := TokenClaims{Sub: "12", Role: "editor", Exp: time.Now().Add(time.Hour).Unix()}
	token, err := SignJWT("secret", claims)
	if err != nil {
		t.Fatalf("SignJWT() error: %v", err)
	}
	parsed, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT() error: %v", err)
	}
	p, err := parsed.Principal()
	if err != nil || p.UserID != 12 || p.Role != domain.UserRoleEditor {
		t.Fatalf("unexpected principal %+v %v", p, err)
	}

	if _, err := VerifyJWT("other", token); err == nil {
		t.Fatal("expected invalid signature error")
	}
	expired, _ := SignJWT("secret", TokenClaims{Sub: "12", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT("secret", expired); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestAuthJWT(t *testing.T) {
	var got domain.Principal
	h := AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	}))
	good, _ := SignJWT("secret", TokenClaims{Sub: "5", Role: "Author"})
	badSub, _ := SignJWT("secret", TokenClaims{Sub: "abc", Role: "author"})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "header", header: "Bearer " + good, want: http.StatusOK},
		{name: "query param", query: "?access_token=" + good, want: http.StatusOK},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + good, want: http.StatusUnauthorized},
		{name: "bad subject", header: "Bearer " + badSub, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer a.b.c", want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got = domain.Principal{}
			req := httptest.NewRequest(http.MethodGet, "/v1/jobs/1"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusOK && (got.UserID != 5 || !got.CanUpload()) {
				t.Fatalf("unexpected principal %+v", got)
			}
		})
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	var ctxLogged bool
	h := RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		ctxLogged = true
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	req.Header.Set("X-Request-ID", "not a uuid\nforged")
	h.ServeHTTP(rec, req)

	rid := rec.Header().Get("X-Request-ID")
	if parsed, err := uuid.Parse(rid); err != nil || parsed.Version() != 7 {
		t.Fatalf("expected generated v7 uuid, got %q", rid)
	}
	out := buf.String()
	if !ctxLogged || strings.Count(out, rid) != 2 || !strings.Contains(out, `"status":418`) {
		t.Fatalf("unexpected log output %s", out)
	}

	fixed := uuid.NewString()
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", fixed)
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != fixed {
		t.Fatal("valid caller request id must be kept")
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "urn:uuid:"+strings.ToUpper(fixed))
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != fixed {
		t.Fatalf("inbound id not canonicalized: %q", rec.Header().Get(RequestIDHeader))
	}
	if RequestIDFromContext(ContextWithRequestID(context.Background(), "abc")) != "abc" {
		t.Fatal("context round trip failed")
	}
}

func TestCORS(t *testing.T) {
	h := CORS(NewOrigins([]string{"https://app.example.com/"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/1", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be echoed")
	}
}

func TestOriginsAllowed(t *testing.T) {
	listed := NewOrigins([]string{" https://app.example.com/ ", ""})
	if !listed.Allowed("https://app.example.com") || listed.Allowed("https://evil.example.com") {
		t.Fatal("allow-list not applied")
	}
	wild := NewOrigins([]string{"*"})
	if !wild.Allowed("https://evil.example.com") || wild.Listed("https://evil.example.com") {
		t.Fatal("wildcard must allow without listing")
	}
	if (Origins{}).Allowed("https://app.example.com") {
		t.Fatal("empty list must deny cross origin")
	}
}

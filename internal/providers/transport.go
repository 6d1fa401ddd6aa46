package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"maestro/internal/domain"
)

// MaxResponseBytes caps every provider response body read into memory.
const MaxResponseBytes = 32 << 20

// ErrResponseTooLarge reports a body that exceeded MaxResponseBytes.
var ErrResponseTooLarge = errors.New("response body too large")

// ReadBody reads at most MaxResponseBytes from r.
func ReadBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// TransportError describes a failed round trip without the request URL, which
// may carry credentials in its query string.
func TransportError(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Op + ": " + uerr.Err.Error()
	}
	return err.Error()
}

// Form accumulates a multipart/form-data body. The first error sticks and is
// reported by Encode.
type Form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func NewForm() *Form {
	f := &Form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *Form) Field(name, value string) *Form {
	if f.err == nil {
		f.err = f.w.WriteField(name, value)
	}
	return f
}

// File attaches the file at path, typed by its extension.
func (f *Form) File(field, path string) *Form {
	if f.err != nil {
		return f
	}
	src, err := os.Open(path)
	if err != nil {
		f.err = fmt.Errorf("open %s: %w", field, err)
		return f
	}
	defer src.Close()

	ctype := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filepath.Base(path)))
	h.Set("Content-Type", ctype)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	if _, err := io.Copy(part, src); err != nil {
		f.err = fmt.Errorf("copy %s: %w", field, err)
	}
	return f
}

// Encode closes the form and returns the body and its content type.
func (f *Form) Encode() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

// Download fetches rawURL and returns the body and its content type.
func Download(ctx context.Context, client *http.Client, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download: %s", domain.ErrProviderAPI, TransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: download status %d: %s", domain.ErrProviderAPI, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	blob, err := ReadBody(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read download: %v", domain.ErrProviderAPI, err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

// ExtensionForMIME maps an image content type to a file extension.
func ExtensionForMIME(ctype string) string {
	ctype = strings.ToLower(strings.TrimSpace(ctype))
	if i := strings.Index(ctype, ";"); i >= 0 {
		ctype = strings.TrimSpace(ctype[:i])
	}
	switch ctype {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/svg+xml":
		return "svg"
	default:
		return "png"
	}
}

// Truncate shortens s to at most n bytes for inclusion in error messages. The
// result is always valid UTF-8.
func Truncate(s string, n int) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

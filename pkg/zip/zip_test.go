package zip

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	_ = os.WriteFile(a, []byte("first"), 0o644)
	_ = os.WriteFile(b, []byte("second"), 0o644)

	var buf bytes.Buffer
	err := Write(&buf, []File{{Name: "out.png", Path: a}, {Name: "../nested/out.png", Path: b}})
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader error: %v", err)
	}
	want := map[string]string{"out.png": "first", "out-2.png": "second"}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(zr.File))
	}
	for _, f := range zr.File {
		rc, _ := f.Open()
		data, _ := io.ReadAll(rc)
		rc.Close()
		if want[f.Name] != string(data) {
			t.Fatalf("entry %q = %q", f.Name, data)
		}
	}
}

func TestWriteMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []File{{Name: "x.png", Path: filepath.Join(t.TempDir(), "missing.png")}}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

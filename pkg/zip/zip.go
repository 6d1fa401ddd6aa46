// Package zip streams stored files into a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// File is one archive entry read from Path and stored as Name.
type File struct {
	Name string
	Path string
}

// Write streams files into w. Entry names are reduced to their base name and
// de-duplicated with a numeric suffix.
func Write(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(files))
	for _, f := range files {
		name := entryName(f.Name, seen)
		if err := addFile(zw, name, f.Path); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", name, err)
	}
	defer in.Close()

	// Images are already compressed; storing avoids burning CPU for nothing.
	out, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
	if err != nil {
		return fmt.Errorf("zip: add %s: %w", name, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("zip: write %s: %w", name, err)
	}
	return nil
}

func entryName(name string, seen map[string]int) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

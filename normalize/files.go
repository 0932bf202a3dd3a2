package normalize

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/teranos/civicload/errors"
)

// writeAtomic writes dst through a temp file in the same directory so
// readers never observe a half-written file, and so dst may equal the source.
func writeAtomic(dst string, write func(w io.Writer) error) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	return errors.Wrapf(os.Rename(tmpName, dst), "rename into %s", dst)
}

// CopyFile copies src to dst atomically
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	return writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return errors.Wrapf(err, "copy %s", src)
	})
}

// YearOf returns the year named by a four-digit directory component of path,
// searching from the file outward.
func YearOf(path string) (int, bool) {
	dir := filepath.Dir(path)
	for {
		base := filepath.Base(dir)
		if len(base) == 4 {
			if y, err := strconv.Atoi(base); err == nil && y >= 1900 && y <= 2999 {
				return y, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, false
		}
		dir = parent
	}
}

// ReplaceExt swaps the extension of name for ext (which includes the dot)
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

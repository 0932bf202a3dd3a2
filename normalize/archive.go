package normalize

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/teranos/civicload/errors"
)

// Extraction describes one CSV member taken out of an archive
type Extraction struct {
	Archive string
	Member  string // name as stored in the archive
	Path    string
	Size    int64
	Skipped bool // target already present with the same size
}

// ExtractArchive extracts the CSV members of the zip at src into dstDir,
// flattening member paths to their base names. Every member's checksum is
// verified before anything is written.
func ExtractArchive(src, dstDir string) ([]Extraction, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, &NormalizationError{Path: src, Err: errors.Wrap(err, "open archive")}
	}
	defer r.Close()

	for _, f := range r.File {
		if err := verifyMember(f); err != nil {
			return nil, &NormalizationError{Path: src, Err: errors.Wrapf(err, "corrupt archive member %s", f.Name)}
		}
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", dstDir)
	}

	var out []Extraction
	for _, f := range r.File {
		if !csvMember(f) {
			continue
		}
		target := filepath.Join(dstDir, path.Base(f.Name))
		ex := Extraction{Archive: src, Member: f.Name, Path: target, Size: int64(f.UncompressedSize64)}

		if info, err := os.Stat(target); err == nil && info.Size() == ex.Size {
			ex.Skipped = true
			out = append(out, ex)
			continue
		}

		if err := extractMember(f, target); err != nil {
			return out, &NormalizationError{Path: src, Err: err}
		}
		out = append(out, ex)
	}
	return out, nil
}

func csvMember(f *zip.File) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	if strings.Contains(f.Name, "__MACOSX") {
		return false
	}
	return strings.EqualFold(path.Ext(f.Name), ".csv")
}

// verifyMember reads the member to the end; the zip reader checks the CRC at EOF.
func verifyMember(f *zip.File) error {
	if f.FileInfo().IsDir() {
		return nil
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func extractMember(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "open member %s", f.Name)
	}
	defer rc.Close()

	return writeAtomic(target, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return errors.Wrapf(err, "extract %s", f.Name)
	})
}

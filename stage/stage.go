// Package stage holds validated files between validation and the warehouse
// copy. Objects are gzip-compressed; an object whose recorded SHA-256 matches
// the source file is not uploaded again.
package stage

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	sha256 "github.com/minio/sha256-simd"

	"github.com/teranos/civicload/errors"
)

// Object describes one staged file
type Object struct {
	Key      string
	Size     int64 // uncompressed size of the source file
	Hash     string
	Uploaded bool // false when an identical object was already staged
}

// Stage is the staging area used by the load protocol
type Stage interface {
	// Put stages the file at localPath under key
	Put(ctx context.Context, key, localPath string) (Object, error)
	// Open returns the decompressed contents of key
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
	// Describe names the stage for logs
	Describe() string
}

// Key builds an object key from the dataset prefix and file name
func Key(prefix, name string) string {
	return strings.TrimPrefix(path.Join(prefix, path.Base(name)), "/")
}

// HashFile returns the hex SHA-256 and size of the file at p
func HashFile(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, errors.Wrapf(err, "open %s", p)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, errors.Wrapf(err, "hash %s", p)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// compressTo gzips the file at src into w
func compressTo(w io.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	gz := gzip.NewWriter(w)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return errors.Wrapf(err, "compress %s", src)
	}
	return errors.Wrap(gz.Close(), "finish gzip stream")
}

// gzipReadCloser closes both the gzip reader and the underlying source
type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.src.Close(); err == nil {
		err = cerr
	}
	return err
}

func decompress(src io.ReadCloser) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		src.Close()
		return nil, errors.Wrap(err, "open gzip stream")
	}
	return gzipReadCloser{Reader: gz, src: src}, nil
}

// FromConfig builds the stage selected by kind: "local" or "s3"
func FromConfig(kind, dir string, s3 MinioConfig) (Stage, error) {
	switch kind {
	case "", "local":
		st, err := NewLocalStage(dir)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "s3":
		st, err := NewMinioStage(s3)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown stage kind %q", kind)
	}
}

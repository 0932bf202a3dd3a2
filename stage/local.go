package stage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/civicload/errors"
)

const (
	objectSuffix = ".gz"
	hashSuffix   = ".sha256"
)

// LocalStage keeps objects in a directory. Each object {key}.gz has a
// {key}.gz.sha256 sidecar holding the source file's hash.
type LocalStage struct {
	root string
}

// NewLocalStage returns a stage rooted at dir, creating it if needed
func NewLocalStage(dir string) (*LocalStage, error) {
	if dir == "" {
		return nil, errors.NewInvalidRequestError("stage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create stage %s", dir)
	}
	return &LocalStage{root: dir}, nil
}

func (s *LocalStage) Describe() string { return "local:" + s.root }

func (s *LocalStage) objectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key)) + objectSuffix
}

// Put compresses localPath into the stage unless the recorded hash matches
func (s *LocalStage) Put(ctx context.Context, key, localPath string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	hash, size, err := HashFile(localPath)
	if err != nil {
		return Object{}, err
	}
	obj := Object{Key: key, Size: size, Hash: hash}

	target := s.objectPath(key)
	if recorded, err := os.ReadFile(target + hashSuffix); err == nil && strings.TrimSpace(string(recorded)) == hash {
		if _, err := os.Stat(target); err == nil {
			return obj, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return obj, errors.Wrapf(err, "create %s", filepath.Dir(target))
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".stage-*")
	if err != nil {
		return obj, errors.Wrap(err, "create temp object")
	}
	defer os.Remove(tmp.Name())

	if err := compressTo(tmp, localPath); err != nil {
		tmp.Close()
		return obj, err
	}
	if err := tmp.Close(); err != nil {
		return obj, errors.Wrap(err, "close temp object")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return obj, errors.Wrapf(err, "rename into %s", target)
	}
	if err := os.WriteFile(target+hashSuffix, []byte(hash+"\n"), 0o644); err != nil {
		return obj, errors.Wrapf(err, "record hash for %s", key)
	}

	obj.Uploaded = true
	return obj, nil
}

// Open returns the decompressed object
func (s *LocalStage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.objectPath(key))
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("staged object %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open staged object %s", key)
	}
	return decompress(f)
}

// List walks the stage directory under prefix
func (s *LocalStage) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	root := filepath.Join(s.root, filepath.FromSlash(prefix))
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, objectSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), objectSuffix))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

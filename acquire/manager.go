// Package acquire downloads a dataset's remote files into the raw sink.
//
// Downloads are idempotent: a URL whose manifest entry points at an existing
// file of the recorded size is skipped without any network request.
package acquire

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sha256 "github.com/minio/sha256-simd"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/registry"
)

// Status is the per-resource outcome of an acquisition
type Status string

const (
	StatusDownloaded Status = "DOWNLOADED"
	StatusSkipped    Status = "SKIPPED"
)

// Result describes one resource after acquisition
type Result struct {
	Resource
	Path   string
	Status Status
	Entry  Entry
}

// Options configures a Manager
type Options struct {
	SinkRoot       string
	DefaultTimeout time.Duration // used when a descriptor sets none
	Now            func() time.Time
}

// Manager fetches resources for one descriptor at a time
type Manager struct {
	client    Getter
	resolvers map[registry.Method]Resolver
	sink      string
	timeout   time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewManager wires a Manager. resolvers maps each acquisition method to its
// resolver; a nil log discards output.
func NewManager(client Getter, resolvers map[registry.Method]Resolver, opts Options, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{
		client:    client,
		resolvers: resolvers,
		sink:      opts.SinkRoot,
		timeout:   timeout,
		now:       now,
		log:       log,
	}
}

// SinkRoot returns the directory files are downloaded under
func (m *Manager) SinkRoot() string { return m.sink }

// Acquire resolves and fetches every resource of d. It returns the results
// gathered so far and the updated manifest even when it fails; the manifest
// is persisted after each download.
func (m *Manager) Acquire(ctx context.Context, d registry.Descriptor, manifest Manifest) ([]Result, Manifest, error) {
	log := logger.LoggerFromContext(logger.WithDataset(ctx, d.Name), m.log)

	resolver, ok := m.resolvers[d.Method]
	if !ok {
		return nil, manifest, errors.NewInvalidRequestError("no resolver for method %q", d.Method)
	}

	resources, err := resolver.Resolve(ctx, d)
	if err != nil {
		return nil, manifest, errors.Wrapf(err, "resolve %s", d.Name)
	}
	log.Infow("Resolved resources", logger.FieldCount, len(resources))

	var limiter *rate.Limiter
	if d.RequestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(d.RequestDelay), 1)
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = m.timeout
	}

	results := make([]Result, 0, len(resources))
	for _, res := range resources {
		dest := filepath.Join(m.sink, res.RelPath)

		if manifest.Fresh(res.URL) {
			entry, _ := manifest.Lookup(res.URL)
			log.Debugw("Skipping unchanged file", logger.FieldURL, res.URL, logger.FieldFile, entry.FilePath)
			results = append(results, Result{Resource: res, Path: entry.FilePath, Status: StatusSkipped, Entry: entry})
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return results, manifest, &AcquisitionError{URL: res.URL, Err: err}
			}
		}

		entry, err := m.download(ctx, res.URL, dest, timeout)
		if err != nil {
			log.Errorw("Download failed", logger.FieldURL, res.URL, logger.FieldError, err)
			return results, manifest, err
		}

		manifest = manifest.With(entry)
		if err := manifest.Save(); err != nil {
			return results, manifest, errors.Wrap(err, "persist manifest")
		}

		log.Infow("Downloaded",
			logger.FieldURL, res.URL,
			logger.FieldFile, dest,
			logger.FieldSize, entry.ByteSize,
		)
		results = append(results, Result{Resource: res, Path: dest, Status: StatusDownloaded, Entry: entry})
	}

	return results, manifest, nil
}

// download streams url into dest via a .part file, hashing while writing
func (m *Manager) download(ctx context.Context, url, dest string, timeout time.Duration) (Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := m.client.Get(ctx, url)
	if err != nil {
		return Entry{}, &AcquisitionError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Entry{}, &AcquisitionError{URL: url, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Entry{}, errors.Wrapf(err, "create %s", filepath.Dir(dest))
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "create %s", part)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), resp.Body)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return Entry{}, &AcquisitionError{URL: url, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "stream body")}
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return Entry{}, errors.Wrapf(err, "rename into %s", dest)
	}

	return Entry{
		URL:         url,
		FilePath:    dest,
		ByteSize:    n,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		RetrievedAt: m.now().UTC(),
		HTTPStatus:  resp.StatusCode,
	}, nil
}

// LocalFiles lists files already present for d under the sink, for runs that
// skip acquisition. Partial downloads are ignored.
func (m *Manager) LocalFiles(d registry.Descriptor) ([]string, error) {
	root := filepath.Join(m.sink, d.Subpath)
	ext := "." + string(d.Format)

	var files []string
	err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || strings.HasSuffix(path, ".part") {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ext) {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, errors.WithHint(
			errors.NewNotFoundError("no local files for %s under %s", d.Name, root),
			"run without --skip-acquisition first",
		)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s", root)
	}
	sort.Strings(files)
	return files, nil
}

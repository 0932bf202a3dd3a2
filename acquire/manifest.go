package acquire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/teranos/civicload/errors"
)

// Entry records one downloaded file
type Entry struct {
	URL         string    `json:"url"`
	FilePath    string    `json:"file_path"`
	ByteSize    int64     `json:"byte_size"`
	ContentHash string    `json:"content_hash"` // hex SHA-256
	RetrievedAt time.Time `json:"retrieved_at"`
	HTTPStatus  int       `json:"http_status"`
}

// Manifest is the set of downloaded files, keyed by URL.
// It is a value: With and Prune return new manifests and never touch the receiver.
type Manifest struct {
	path    string
	entries map[string]Entry
}

// NewManifest returns an empty manifest persisting to path
func NewManifest(path string) Manifest {
	return Manifest{path: path, entries: map[string]Entry{}}
}

// LoadManifest reads the manifest at path. A missing file yields an empty
// manifest. Entries whose file no longer exists are dropped.
func LoadManifest(path string) (Manifest, error) {
	m := NewManifest(path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return m, errors.Wrapf(err, "read manifest %s", path)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return m, errors.WithHint(
			errors.Wrapf(err, "parse manifest %s", path),
			"delete the manifest to force a full re-download",
		)
	}
	for _, e := range entries {
		if _, err := os.Stat(e.FilePath); err != nil {
			continue
		}
		m.entries[e.URL] = e
	}
	return m, nil
}

// Path returns where the manifest is persisted
func (m Manifest) Path() string { return m.path }

// Len returns the number of entries
func (m Manifest) Len() int { return len(m.entries) }

// Lookup returns the entry recorded for url
func (m Manifest) Lookup(url string) (Entry, bool) {
	e, ok := m.entries[url]
	return e, ok
}

// Fresh reports whether url has an entry whose file exists with the recorded size
func (m Manifest) Fresh(url string) bool {
	e, ok := m.entries[url]
	if !ok {
		return false
	}
	return fileMatches(e)
}

// Entries returns all entries sorted by URL
func (m Manifest) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// With returns a copy of m with e inserted or replacing the entry for e.URL
func (m Manifest) With(e Entry) Manifest {
	next := Manifest{path: m.path, entries: make(map[string]Entry, len(m.entries)+1)}
	for k, v := range m.entries {
		next.entries[k] = v
	}
	next.entries[e.URL] = e
	return next
}

// Prune returns a copy without entries whose file is missing or has changed size,
// and the number of entries removed.
func (m Manifest) Prune() (Manifest, int) {
	next := Manifest{path: m.path, entries: make(map[string]Entry, len(m.entries))}
	removed := 0
	for k, e := range m.entries {
		if !fileMatches(e) {
			removed++
			continue
		}
		next.entries[k] = e
	}
	return next, removed
}

// Save writes the manifest atomically: a temp file in the same directory is
// synced and renamed over the target.
func (m Manifest) Save() error {
	if m.path == "" {
		return errors.New("manifest has no path")
	}

	data, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	data = append(data, '\n')

	return writeFileAtomic(m.path, data)
}

func fileMatches(e Entry) bool {
	info, err := os.Stat(e.FilePath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == e.ByteSize
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}

package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/internal/httpclient"
	"github.com/teranos/civicload/registry"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }

// catalogServer serves a package_show document listing one zip per month for
// 2023 and 2024, plus resources the resolver must filter out.
type catalogServer struct {
	*httptest.Server
	fileRequests atomic.Int32
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/3/action/package_show", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bike-share", r.URL.Query().Get("id"))

		var resources []map[string]string
		for _, year := range []int{2023, 2024} {
			for month := 1; month <= 12; month++ {
				resources = append(resources, map[string]string{
					"name":   fmt.Sprintf("Bike share ridership %d-%02d", year, month),
					"format": "ZIP",
					"url":    fmt.Sprintf("%s/files/%d-%02d.zip", cs.URL, year, month),
				})
			}
		}
		resources = append(resources,
			map[string]string{"name": "Bike share ridership 2018", "format": "ZIP", "url": cs.URL + "/files/2018.zip"},
			map[string]string{"name": "Data dictionary 2023", "format": "XLSX", "url": cs.URL + "/files/dict.xlsx"},
			map[string]string{"name": "Readme", "format": "ZIP", "url": cs.URL + "/files/readme.zip"},
		)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"resources": resources},
		})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		cs.fileRequests.Add(1)
		fmt.Fprintf(w, "payload for %s", strings.TrimPrefix(r.URL.Path, "/files/"))
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{
		Timeout:      5 * time.Second,
		MaxRetries:   1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	}, nil)
}

func bikeDescriptor() registry.Descriptor {
	return registry.Descriptor{
		Name:      "bike_share_ridership",
		Method:    registry.MethodCatalog,
		Source:    "bike-share",
		Format:    registry.FormatZIP,
		StartYear: 2019,
		Subpath:   "bike_share",
	}
}

func newTestManager(t *testing.T, baseURL, sink string) *Manager {
	client := testClient()
	resolvers := map[registry.Method]Resolver{
		registry.MethodCatalog:  &CatalogResolver{BaseURL: baseURL, Client: client, Now: fixedNow},
		registry.MethodTemplate: &TemplateResolver{Now: fixedNow},
	}
	return NewManager(client, resolvers, Options{SinkRoot: sink, Now: fixedNow}, zaptest.NewLogger(t).Sugar())
}

func TestAcquireIsIdempotent(t *testing.T) {
	srv := newCatalogServer(t)
	sink := t.TempDir()
	mgr := newTestManager(t, srv.URL, sink)
	manifestPath := filepath.Join(sink, ".manifest.json")

	manifest, err := LoadManifest(manifestPath)
	require.NoError(t, err)

	results, manifest, err := mgr.Acquire(context.Background(), bikeDescriptor(), manifest)
	require.NoError(t, err)
	require.Len(t, results, 24)
	assert.Equal(t, int32(24), srv.fileRequests.Load())
	for _, r := range results {
		assert.Equal(t, StatusDownloaded, r.Status)
		assert.FileExists(t, r.Path)
		assert.Len(t, r.Entry.ContentHash, 64)
	}
	assert.Equal(t, 24, manifest.Len())

	first, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	reloaded, err := LoadManifest(manifestPath)
	require.NoError(t, err)
	again, _, err := mgr.Acquire(context.Background(), bikeDescriptor(), reloaded)
	require.NoError(t, err)
	require.Len(t, again, 24)
	for _, r := range again {
		assert.Equal(t, StatusSkipped, r.Status)
	}
	assert.Equal(t, int32(24), srv.fileRequests.Load(), "second run must not fetch any file")

	second, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAcquireDestinationLayout(t *testing.T) {
	srv := newCatalogServer(t)
	sink := t.TempDir()
	mgr := newTestManager(t, srv.URL, sink)

	results, _, err := mgr.Acquire(context.Background(), bikeDescriptor(), NewManifest(filepath.Join(sink, ".manifest.json")))
	require.NoError(t, err)

	assert.Equal(t,
		filepath.Join(sink, "bike_share", "2023", "Bike_share_ridership_2023-01.zip"),
		results[0].Path)

	parts, err := filepath.Glob(filepath.Join(sink, "bike_share", "*", "*.part"))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestAcquireRedownloadsResizedFile(t *testing.T) {
	srv := newCatalogServer(t)
	sink := t.TempDir()
	mgr := newTestManager(t, srv.URL, sink)

	results, manifest, err := mgr.Acquire(context.Background(), bikeDescriptor(), NewManifest(filepath.Join(sink, ".manifest.json")))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(results[3].Path, []byte("truncated"), 0o644))

	again, _, err := mgr.Acquire(context.Background(), bikeDescriptor(), manifest)
	require.NoError(t, err)
	assert.Equal(t, StatusDownloaded, again[3].Status)
	assert.Equal(t, int32(25), srv.fileRequests.Load())
}

func TestAcquireNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sink := t.TempDir()
	mgr := newTestManager(t, srv.URL, sink)
	d := registry.Descriptor{
		Name:      "weather_daily",
		Method:    registry.MethodTemplate,
		Source:    srv.URL + "/climate?station={station_id}&Year={year}",
		Params:    map[string]string{"station_id": "51459"},
		Format:    registry.FormatCSV,
		StartYear: 2026,
		Subpath:   "weather",
	}

	results, manifest, err := mgr.Acquire(context.Background(), d, NewManifest(filepath.Join(sink, ".manifest.json")))
	require.Error(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, manifest.Len())

	var acqErr *AcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, http.StatusNotFound, acqErr.StatusCode)
	assert.Equal(t, srv.URL+"/climate?station=51459&Year=2026", acqErr.URL)
	assert.Equal(t, errors.KindAcquisition, errors.KindOf(err))
}

func TestAcquireCatalogFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": {"message": "Not found"}}`))
	}))
	defer srv.Close()

	mgr := newTestManager(t, srv.URL, t.TempDir())
	_, _, err := mgr.Acquire(context.Background(), bikeDescriptor(), NewManifest(""))
	require.Error(t, err)
	assert.Equal(t, errors.KindAcquisition, errors.KindOf(err))
	assert.Contains(t, err.Error(), "Not found")
}

func TestAcquireRateLimited(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("Date/Time,Max Temp (°C)\n2024-01-01,1.5\n"))
	}))
	defer srv.Close()

	sink := t.TempDir()
	mgr := newTestManager(t, srv.URL, sink)
	d := registry.Descriptor{
		Name:         "weather_daily",
		Method:       registry.MethodTemplate,
		Source:       srv.URL + "/climate?Year={year}",
		Format:       registry.FormatCSV,
		StartYear:    2024,
		EndYear:      2026,
		Subpath:      "weather",
		RequestDelay: 60 * time.Millisecond,
	}

	start := time.Now()
	results, _, err := mgr.Acquire(context.Background(), d, NewManifest(filepath.Join(sink, ".manifest.json")))
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.GreaterOrEqual(t, time.Since(start), 110*time.Millisecond, "two waits between three requests")
	assert.Equal(t, filepath.Join(sink, "weather", "2025", "weather_daily_2025.csv"), results[1].Path)
	assert.Equal(t, int32(3), requests.Load())
}

func TestLocalFiles(t *testing.T) {
	sink := t.TempDir()
	writeFile(t, filepath.Join(sink, "bike_share", "2024", "b.zip"), "z")
	writeFile(t, filepath.Join(sink, "bike_share", "2023", "a.ZIP"), "z")
	writeFile(t, filepath.Join(sink, "bike_share", "2024", "c.zip.part"), "z")
	writeFile(t, filepath.Join(sink, "bike_share", "2024", "notes.txt"), "z")

	mgr := NewManager(nil, nil, Options{SinkRoot: sink}, nil)
	files, err := mgr.LocalFiles(bikeDescriptor())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(sink, "bike_share", "2023", "a.ZIP"),
		filepath.Join(sink, "bike_share", "2024", "b.zip"),
	}, files)

	_, err = NewManager(nil, nil, Options{SinkRoot: t.TempDir()}, nil).LocalFiles(bikeDescriptor())
	assert.True(t, errors.IsNotFoundError(err))
}

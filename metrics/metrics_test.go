package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/civicload/errors"
)

func TestRecorder(t *testing.T) {
	r := New()

	r.Terminal("weather_daily", "LOADED", "")
	r.Terminal("ttc_bus_delays", "FAILED", errors.KindSchemaValidation)
	r.FilesAcquired("weather_daily", "SKIPPED", 3)
	r.RowsLoaded("weather_daily", 365, 2)
	r.ValidationFailed("ttc_bus_delays")
	r.StageDuration("weather_daily", "load", 1500*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.datasets.WithLabelValues("ttc_bus_delays", "FAILED", "SchemaValidationError")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.filesAcquired.WithLabelValues("weather_daily", "SKIPPED")))
	assert.Equal(t, 365.0, testutil.ToFloat64(r.rowsLoaded.WithLabelValues("weather_daily", "insert")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rowsLoaded.WithLabelValues("weather_daily", "update")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.Terminal("weather_daily", "LOADED", "")
	r.RunFinished(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "civicload.prom")
	require.NoError(t, r.WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `civicload_datasets_total{dataset="weather_daily",error_kind="",state="LOADED"} 1`)
	assert.Contains(t, string(body), "civicload_last_run_timestamp_seconds 1.7e+09")

	assert.NoError(t, r.WriteTextfile(""), "empty path disables export")
}

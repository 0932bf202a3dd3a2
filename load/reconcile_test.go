package load

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	testutil "github.com/teranos/civicload/internal/testing"
	"github.com/teranos/civicload/registry"
)

func TestDiffPct(t *testing.T) {
	assert.Equal(t, 0.0, DiffPct(0, 0))
	assert.Equal(t, 100.0, DiffPct(0, 5))
	assert.Equal(t, 1.0, DiffPct(1000, 990))
	assert.InDelta(t, 1.5, DiffPct(200, 203), 1e-9)
}

func TestCountValidatedRows(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, "2023/a.csv", testutil.SubwayHeader, testutil.SubwayRows(10))
	testutil.WriteCSV(t, dir, "2024/b.csv", testutil.SubwayHeader, testutil.SubwayRows(5))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("a\nb\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.csv"), nil, 0o644))

	n, err := CountValidatedRows(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	n, err = CountValidatedRows(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway", "streetcar", "bus")

	// subway: 200 loaded, 201 in files: 0.5% off, within tolerance
	p := testutil.WriteCSV(t, f.validated, "subway/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(200))
	_, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	testutil.WriteCSV(t, f.validated, "subway/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(201))

	// streetcar: 50 loaded, 100 in files
	p = testutil.WriteCSV(t, f.validated, "streetcar/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(50))
	_, err = f.manager.Load(ctx, "streetcar", []string{p})
	require.NoError(t, err)
	testutil.WriteCSV(t, f.validated, "streetcar/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(100))

	// bus: never loaded, so the table is missing
	testutil.WriteCSV(t, f.validated, "bus/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(3))

	r := NewReconciler(f.wh, f.validated, zaptest.NewLogger(t).Sugar())
	results, err := r.Reconcile(ctx, []registry.Descriptor{
		testutil.SubwayDescriptor("subway", "T_subway"),
		testutil.SubwayDescriptor("streetcar", "T_streetcar"),
		testutil.SubwayDescriptor("bus", "T_bus"),
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, ReconcileOK, results[0].Status)
	assert.Equal(t, int64(201), results[0].Expected)
	assert.Equal(t, int64(200), results[0].Actual)
	assert.True(t, results[0].Passed())

	assert.Equal(t, ReconcileMismatch, results[1].Status)
	assert.Equal(t, 50.0, results[1].DiffPct)

	assert.Equal(t, ReconcileError, results[2].Status)
	assert.Error(t, results[2].Err)
	assert.False(t, results[2].Passed())
}

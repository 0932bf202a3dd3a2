package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/registry"
)

func openMemory(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(context.Background(), DriverSQLite, ":memory:", zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestParseDriver(t *testing.T) {
	for _, name := range []string{"sqlite3", "duckdb", "postgres", "SQLITE3"} {
		_, err := ParseDriver(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseDriver("snowflake")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)

	require.NoError(t, w.Migrate(ctx))

	for _, table := range []string{"schema_migrations", "civicload_loads"} {
		ok, err := w.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, table)
	}

	var versions []string
	require.NoError(t, w.Conn().SelectContext(ctx, &versions, "SELECT version FROM schema_migrations ORDER BY version"))
	assert.Equal(t, []string{"000", "001"}, versions)

	t.Run("second run applies nothing", func(t *testing.T) {
		require.NoError(t, w.Migrate(ctx))
		n, err := w.CountRows(ctx, "schema_migrations")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestOpenFileUsesWAL(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")

	w, err := Open(ctx, DriverSQLite, dsn, nil)
	require.NoError(t, err)
	defer w.Close()

	var mode string
	require.NoError(t, w.Conn().GetContext(ctx, &mode, "PRAGMA journal_mode"))
	assert.Equal(t, "wal", mode)
}

func TestRebind(t *testing.T) {
	pg := &Warehouse{driver: DriverPostgres}
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.Rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &Warehouse{driver: DriverSQLite}
	assert.Equal(t, "SELECT 1 WHERE a = ?", lite.Rebind("SELECT 1 WHERE a = ?"))
}

func TestSplitStatements(t *testing.T) {
	body := "-- header\nCREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n"
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, splitStatements(body))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"MIN_DELAY"`, QuoteIdent("MIN_DELAY"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func testSpec(t *testing.T) TableSpec {
	t.Helper()
	d := registry.Descriptor{
		Name:        "weather_daily",
		TargetTable: "WEATHER_DAILY",
		NaturalKey:  []string{"STATION_ID", "DATE"},
		Columns: []registry.ColumnMapping{
			{Source: "Climate ID", Column: "STATION_ID"},
			{Source: "Date/Time", Column: "DATE", Type: "date"},
			{Source: "Max Temp (°C)", Column: "MAX_TEMP_C"},
			{Source: "Notes", Column: "NOTES"},
		},
	}
	c := contract.Contract{
		Dataset: "weather_daily",
		Columns: []contract.ColumnSpec{
			{Name: "Climate ID", Type: contract.TypeString},
			{Name: "Date/Time", Type: contract.TypeString},
			{Name: "max temp (°c)", Type: contract.TypeDecimal},
		},
	}
	spec, err := SpecFor(d, c)
	require.NoError(t, err)
	return spec
}

func TestSpecFor(t *testing.T) {
	spec := testSpec(t)

	assert.Equal(t, "WEATHER_DAILY", spec.Table)
	assert.Equal(t, []string{"STATION_ID", "DATE", "MAX_TEMP_C", "NOTES"}, spec.ColumnNames())

	types := map[string]contract.ColumnType{}
	for _, c := range spec.Columns {
		types[c.Name] = c.Type
	}
	assert.Equal(t, contract.TypeDate, types["DATE"], "explicit mapping type wins")
	assert.Equal(t, contract.TypeDecimal, types["MAX_TEMP_C"], "contract lookup ignores case")
	assert.Equal(t, contract.TypeString, types["NOTES"], "unknown columns are strings")

	var nonKey []string
	for _, c := range spec.NonKey() {
		nonKey = append(nonKey, c.Name)
	}
	assert.Equal(t, []string{"MAX_TEMP_C", "NOTES"}, nonKey)

	_, err := SpecFor(registry.Descriptor{Name: "x", Columns: []registry.ColumnMapping{{Source: "a", Column: "A", Type: "blob"}}}, contract.Contract{})
	assert.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	ctx := context.Background()
	w := openMemory(t)
	spec := testSpec(t)

	assert.Contains(t, spec.CreateTableSQL(), `"MAX_TEMP_C" DOUBLE PRECISION`)

	for i := 0; i < 2; i++ {
		_, err := w.Conn().ExecContext(ctx, spec.CreateTableSQL())
		require.NoError(t, err)
	}
	ok, err := w.TableExists(ctx, "WEATHER_DAILY")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = w.Conn().ExecContext(ctx, spec.CreateScratchSQL("WEATHER_DAILY_STAGING_AB12CD34"))
	require.NoError(t, err)
	n, err := w.CountRows(ctx, "WEATHER_DAILY_STAGING_AB12CD34")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConvert(t *testing.T) {
	tests := []struct {
		raw  string
		typ  contract.ColumnType
		want any
	}{
		{"", contract.TypeInteger, nil},
		{"NULL", contract.TypeString, nil},
		{" 12 ", contract.TypeInteger, int64(12)},
		{"5.0", contract.TypeInteger, int64(5)},
		{"-3.25", contract.TypeDecimal, -3.25},
		{"2024-01-31 00:00:00", contract.TypeDate, "2024-01-31"},
		{"2024-01-31T00:00:00", contract.TypeDate, "2024-01-31"},
		{"5:07", contract.TypeTime, "05:07:00"},
		{"23:59:01", contract.TypeTime, "23:59:01"},
		{"1/15/2024 8:05", contract.TypeTimestamp, "1/15/2024 8:05"},
		{"BLOOR STATION", contract.TypeString, "BLOOR STATION"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.raw, func(t *testing.T) {
			got, err := Convert(tt.raw, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []struct {
		raw string
		typ contract.ColumnType
	}{
		{"N/A", contract.TypeInteger},
		{"abc", contract.TypeDecimal},
		{"Jan 5", contract.TypeDate},
		{"25:00", contract.TypeTime},
		{"12", contract.TypeTime},
	} {
		_, err := Convert(bad.raw, bad.typ)
		assert.Error(t, err, "%s as %s", bad.raw, bad.typ)
	}
}

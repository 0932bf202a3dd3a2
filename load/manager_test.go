package load

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	testutil "github.com/teranos/civicload/internal/testing"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/registry"
	"github.com/teranos/civicload/stage"
	"github.com/teranos/civicload/warehouse"
)

type fixture struct {
	wh        *warehouse.Warehouse
	stage     *stage.LocalStage
	manager   *Manager
	validated string
}

func newFixture(t *testing.T, wh *warehouse.Warehouse, datasets ...string) *fixture {
	t.Helper()

	var descriptors []registry.Descriptor
	var contracts []contract.Contract
	for _, name := range datasets {
		descriptors = append(descriptors, testutil.SubwayDescriptor(name, "T_"+name))
		contracts = append(contracts, testutil.SubwayContract(name))
	}
	reg, err := registry.New(descriptors...)
	require.NoError(t, err)
	store, err := contract.New(contracts...)
	require.NoError(t, err)

	st, err := stage.NewLocalStage(t.TempDir())
	require.NoError(t, err)

	return &fixture{
		wh:        wh,
		stage:     st,
		manager:   NewManager(wh, st, reg, store, Options{StatementTimeout: time.Minute}, zaptest.NewLogger(t).Sugar()),
		validated: t.TempDir(),
	}
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	n, err := f.wh.CountRows(context.Background(), table)
	require.NoError(t, err)
	return n
}

func TestLoadIsIdempotent(t *testing.T) {
	ctx := logger.WithRunID(context.Background(), "run-1")
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")
	p := testutil.WriteCSV(t, f.validated, "subway/2024/subway_2024.csv", testutil.SubwayHeader, testutil.SubwayRows(100))

	first, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.Inserted)
	assert.Zero(t, first.Updated)
	assert.Equal(t, 1, first.FilesStaged)
	assert.Equal(t, 1, first.FilesUploaded)
	assert.Equal(t, "T_subway", first.Table)

	second, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Equal(t, int64(100), second.Updated, "every matched row is updated")
	assert.Zero(t, second.FilesUploaded, "unchanged file is not uploaded again")

	assert.Equal(t, int64(100), f.count(t, "T_subway"))

	var audits []struct {
		RunID    string `db:"run_id"`
		Inserted int64  `db:"rows_inserted"`
	}
	require.NoError(t, f.wh.Conn().SelectContext(ctx, &audits,
		"SELECT run_id, rows_inserted FROM civicload_loads ORDER BY rows_inserted DESC"))
	require.Len(t, audits, 2)
	assert.Equal(t, "run-1", audits[0].RunID)
	assert.Equal(t, int64(100), audits[0].Inserted)

	keys, err := f.stage.List(ctx, "subway")
	require.NoError(t, err)
	assert.Equal(t, []string{"subway/2024/subway_2024.csv"}, keys)
}

func TestLoadUpdatesChangedRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")

	rows := testutil.SubwayRows(20)
	p := testutil.WriteCSV(t, f.validated, "subway/2024/subway_2024.csv", testutil.SubwayHeader, rows)
	_, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rows[i][6] = "99" // Min Gap is not part of the natural key
	}
	p = testutil.WriteCSV(t, f.validated, "subway/2024/subway_2024.csv", testutil.SubwayHeader, rows)

	out, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	assert.Zero(t, out.Inserted)
	assert.Equal(t, int64(20), out.Updated, "matched rows count whether or not they changed")
	assert.Equal(t, int64(20), f.count(t, "T_subway"))

	var gaps int
	require.NoError(t, f.wh.Conn().GetContext(ctx, &gaps, `SELECT COUNT(*) FROM "T_subway" WHERE "MIN_GAP" = 99`))
	assert.Equal(t, 5, gaps)
}

func TestLoadLastDuplicateWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")

	rows := testutil.SubwayRows(2)
	dup := append([]string(nil), rows[0]...)
	dup[6] = "42"
	// Code is part of the key and empty: NULL keys still match each other
	rows[1][4] = ""
	p := testutil.WriteCSV(t, f.validated, "subway/2024/a.csv", testutil.SubwayHeader, [][]string{rows[0], rows[1], dup})

	out, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Inserted)

	var gap int
	require.NoError(t, f.wh.Conn().GetContext(ctx, &gap,
		`SELECT "MIN_GAP" FROM "T_subway" WHERE "TIME" = ?`, "00:15:00"))
	assert.Equal(t, 42, gap)

	again, err := f.manager.Load(ctx, "subway", []string{p})
	require.NoError(t, err)
	assert.Zero(t, again.Inserted, "row with a NULL key column is matched, not duplicated")
	assert.Equal(t, int64(2), f.count(t, "T_subway"))
}

func TestLoadFailureLeavesTableUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")

	rows := testutil.SubwayRows(100)
	good := testutil.WriteCSV(t, f.validated, "subway/2024/subway_2024.csv", testutil.SubwayHeader, rows)
	_, err := f.manager.Load(ctx, "subway", []string{good})
	require.NoError(t, err)

	more := testutil.SubwayRows(150)
	for i := range more[:100] {
		more[i][6] = "77"
	}
	more[120][5] = "N/A"
	bad := testutil.WriteCSV(t, f.validated, "subway/2025/subway_2025.csv", testutil.SubwayHeader, more)

	out, err := f.manager.Load(ctx, "subway", []string{good, bad})
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, bad, le.File)
	assert.Equal(t, 122, le.Line, "header is line 1")
	assert.Equal(t, errors.KindLoad, errors.KindOf(err))
	assert.Contains(t, err.Error(), "MIN_DELAY")

	assert.Zero(t, out.Inserted)
	assert.Zero(t, out.Updated)
	assert.Equal(t, int64(100), f.count(t, "T_subway"))
	assert.Equal(t, int64(1), f.count(t, "civicload_loads"))

	var changed int
	require.NoError(t, f.wh.Conn().GetContext(ctx, &changed, `SELECT COUNT(*) FROM "T_subway" WHERE "MIN_GAP" = 77`))
	assert.Zero(t, changed)
}

func TestLoadNoFiles(t *testing.T) {
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")
	_, err := f.manager.Load(context.Background(), "subway", nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindLoad, errors.KindOf(err))
}

func TestLoadUnknownDataset(t *testing.T) {
	f := newFixture(t, testutil.CreateTestWarehouse(t), "subway")
	_, err := f.manager.Load(context.Background(), "ferry", []string{"x.csv"})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoadRollsBackOnCopyError(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	wh, err := warehouse.FromDB(ctx, db, warehouse.DriverSQLite, nil)
	require.NoError(t, err)
	f := newFixture(t, wh, "subway")
	p := testutil.WriteCSV(t, f.validated, "subway/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(3))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "T_subway"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TEMP TABLE "T_subway_STAGING_[0-9A-F]{8}"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(`INSERT INTO "T_subway_STAGING_[0-9A-F]{8}"`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()
	mock.ExpectExec(`DROP TABLE IF EXISTS "T_subway_STAGING_[0-9A-F]{8}"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	out, err := f.manager.Load(ctx, "subway", []string{p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Contains(t, err.Error(), "line 3")
	assert.Zero(t, out.Rows())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRollsBackOnMergeError(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	wh, err := warehouse.FromDB(ctx, db, warehouse.DriverSQLite, nil)
	require.NoError(t, err)
	f := newFixture(t, wh, "subway")
	p := testutil.WriteCSV(t, f.validated, "subway/2024/s.csv", testutil.SubwayHeader, testutil.SubwayRows(1))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("INSERT INTO").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "T_subway" SET`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "T_subway" (`)).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()
	mock.ExpectExec("DROP TABLE IF EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	out, err := f.manager.Load(ctx, "subway", []string{p})
	require.Error(t, err)
	assert.Equal(t, errors.KindLoad, errors.KindOf(err))
	assert.Zero(t, out.Rows())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStageKey(t *testing.T) {
	assert.Equal(t, "weather_daily/2024/weather_daily_2024.csv",
		StageKey("weather_daily", filepath.ToSlash(filepath.Join("data", "validated", "weather", "2024", "weather_daily_2024.csv"))))
	assert.Equal(t, "bike_share/trips.csv", StageKey("bike_share", "data/validated/bike_share/trips.csv"))
}

func TestSQLBuilders(t *testing.T) {
	spec := warehouse.TableSpec{
		Table: "T",
		Key:   []string{"K"},
		Columns: []warehouse.Column{
			{Source: "k", Name: "K", Type: contract.TypeString},
			{Source: "v", Name: "V", Type: contract.TypeInteger},
		},
	}
	assert.Equal(t, `INSERT INTO "S" ("K", "V", "_LOAD_SEQ") VALUES (?, ?, ?)`, scratchInsertSQL(spec, "S"))
	assert.Equal(t,
		`DELETE FROM "S" WHERE "_LOAD_SEQ" NOT IN (SELECT MAX("_LOAD_SEQ") FROM "S" GROUP BY "K")`,
		dedupeSQL(spec, "S"))
	assert.Equal(t,
		`UPDATE "T" SET "V" = s."V" FROM "S" AS s WHERE "T"."K" IS NOT DISTINCT FROM s."K"`,
		updateSQL(spec, "S"))
	assert.Equal(t,
		`INSERT INTO "T" ("K", "V") SELECT s."K", s."V" FROM "S" AS s WHERE NOT EXISTS (SELECT 1 FROM "T" AS t WHERE t."K" IS NOT DISTINCT FROM s."K")`,
		insertSQL(spec, "S"))
}

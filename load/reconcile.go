package load

import (
	"context"
	"encoding/csv"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/registry"
	"github.com/teranos/civicload/warehouse"
)

// TolerancePct is the largest row-count difference that still reconciles
const TolerancePct = 1.0

// ReconcileStatus is the verdict for one table
type ReconcileStatus string

const (
	ReconcileOK       ReconcileStatus = "OK"
	ReconcileMismatch ReconcileStatus = "MISMATCH"
	ReconcileError    ReconcileStatus = "ERROR"
)

// Reconciliation compares a dataset's validated rows with its table
type Reconciliation struct {
	Dataset  string
	Table    string
	Expected int64 // data rows across validated files
	Actual   int64 // rows in the target table
	DiffPct  float64
	Status   ReconcileStatus
	Err      error
}

// Passed reports whether the table reconciled
func (r Reconciliation) Passed() bool { return r.Status == ReconcileOK }

// Reconciler checks loaded tables against the validated files
type Reconciler struct {
	wh           *warehouse.Warehouse
	validatedDir string
	log          *zap.SugaredLogger
}

// NewReconciler returns a Reconciler reading files under validatedDir
func NewReconciler(wh *warehouse.Warehouse, validatedDir string, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Reconciler{wh: wh, validatedDir: validatedDir, log: log}
}

// Reconcile returns one entry per descriptor, in order. Query failures are
// reported per table as ERROR; only unreadable validated files fail the call.
func (r *Reconciler) Reconcile(ctx context.Context, datasets []registry.Descriptor) ([]Reconciliation, error) {
	results := make([]Reconciliation, 0, len(datasets))
	for _, d := range datasets {
		rec := Reconciliation{Dataset: d.Name, Table: d.TargetTable}

		expected, err := CountValidatedRows(filepath.Join(r.validatedDir, d.Subpath))
		if err != nil {
			return results, errors.Wrapf(err, "count validated rows for %s", d.Name)
		}
		rec.Expected = expected

		rec.Actual, rec.Err = r.tableRows(ctx, d.TargetTable)
		if rec.Err != nil {
			rec.Status = ReconcileError
			r.log.Errorw("Row count query failed", logger.FieldDataset, d.Name, logger.FieldError, rec.Err)
			results = append(results, rec)
			continue
		}

		rec.DiffPct = DiffPct(rec.Expected, rec.Actual)
		rec.Status = ReconcileOK
		if rec.DiffPct > TolerancePct {
			rec.Status = ReconcileMismatch
		}
		r.log.Infow("Reconciled",
			logger.FieldDataset, d.Name,
			logger.FieldTable, d.TargetTable,
			"expected", rec.Expected,
			"actual", rec.Actual,
			logger.FieldStatus, rec.Status,
		)
		results = append(results, rec)
	}
	return results, nil
}

func (r *Reconciler) tableRows(ctx context.Context, table string) (int64, error) {
	ok, err := r.wh.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.NewNotFoundError("table %s", table)
	}
	return r.wh.CountRows(ctx, table)
}

// DiffPct is |actual-expected| as a percentage of expected.
// With nothing expected, any loaded row is a 100% difference.
func DiffPct(expected, actual int64) float64 {
	if expected == 0 {
		if actual == 0 {
			return 0
		}
		return 100
	}
	return math.Abs(float64(actual-expected)) / float64(expected) * 100
}

// CountValidatedRows counts data rows, header excluded, across every CSV under dir.
// A missing directory counts as zero.
func CountValidatedRows(dir string) (int64, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			files = append(files, p)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	var total int64
	for _, p := range files {
		n, err := countRows(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func countRows(p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", p)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	var n int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, "read %s", p)
		}
		n++
	}
	if n > 0 {
		n-- // header
	}
	return n, nil
}

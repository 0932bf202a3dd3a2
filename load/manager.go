// Package load moves validated files into the warehouse.
//
// Every load follows the staging protocol: stage the files, copy them into a
// scratch table inside one transaction, deduplicate by natural key and merge
// into the target table. A failed load rolls back completely and reports zero
// rows.
package load

import (
	"context"
	"encoding/csv"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/normalize"
	"github.com/teranos/civicload/registry"
	"github.com/teranos/civicload/stage"
	"github.com/teranos/civicload/warehouse"
)

// Outcome is the result of one committed load
type Outcome struct {
	Dataset       string
	Table         string
	Inserted      int64
	Updated       int64
	FilesStaged   int
	FilesUploaded int // staged files whose content changed since the last load
	Elapsed       time.Duration
}

// Rows is the number of target rows the load touched
func (o Outcome) Rows() int64 { return o.Inserted + o.Updated }

// Options configures a Manager
type Options struct {
	StatementTimeout time.Duration // bounds the transaction; 0 = none
	Now              func() time.Time
}

// Manager loads datasets through one warehouse handle
type Manager struct {
	wh        *warehouse.Warehouse
	stage     stage.Stage
	registry  *registry.Registry
	contracts *contract.Store
	timeout   time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewManager wires a Manager. The warehouse handle stays owned by the caller.
func NewManager(wh *warehouse.Warehouse, st stage.Stage, reg *registry.Registry, contracts *contract.Store, opts Options, log *zap.SugaredLogger) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		wh:        wh,
		stage:     st,
		registry:  reg,
		contracts: contracts,
		timeout:   opts.StatementTimeout,
		now:       now,
		log:       log,
	}
}

// stagedFile is a validated file after upload
type stagedFile struct {
	local string
	key   string
}

// Load stages and merges the validated files of dataset into its target table
func (m *Manager) Load(ctx context.Context, dataset string, paths []string) (Outcome, error) {
	start := m.now()
	log := logger.LoggerFromContext(ctx, m.log)

	d, err := m.registry.Descriptor(dataset)
	if err != nil {
		return Outcome{Dataset: dataset}, err
	}
	c, err := m.contracts.Contract(dataset)
	if err != nil {
		return Outcome{Dataset: dataset, Table: d.TargetTable}, err
	}
	spec, err := warehouse.SpecFor(d, c)
	if err != nil {
		return Outcome{Dataset: dataset, Table: d.TargetTable}, err
	}

	out := Outcome{Dataset: dataset, Table: spec.Table}
	if len(paths) == 0 {
		return out, &LoadError{Dataset: dataset, Table: spec.Table, Err: errors.New("no validated files to load")}
	}

	files, uploaded, err := m.stageFiles(ctx, d.Name, paths)
	if err != nil {
		return out, &LoadError{Dataset: dataset, Table: spec.Table, Err: err}
	}
	log.Infow("Files staged",
		logger.FieldCount, len(files),
		"uploaded", uploaded,
		"stage", m.stage.Describe(),
	)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	inserted, updated, err := m.merge(ctx, spec, files)
	if err != nil {
		log.Errorw("Load rolled back", logger.FieldTable, spec.Table, logger.FieldError, err)
		return out, err
	}

	out.Inserted, out.Updated = inserted, updated
	out.FilesStaged, out.FilesUploaded = len(files), uploaded
	out.Elapsed = m.now().Sub(start)

	log.Infow("Load committed",
		logger.FieldTable, spec.Table,
		logger.FieldInserted, inserted,
		logger.FieldUpdated, updated,
		logger.FieldDurationMS, out.Elapsed.Milliseconds(),
	)
	return out, nil
}

// StageKey returns the stage key for a validated file: {dataset}/{year}/{file}
// when the year is known, {dataset}/{file} otherwise
func StageKey(dataset, localPath string) string {
	if year, ok := normalize.YearOf(localPath); ok {
		return stage.Key(path.Join(dataset, strconv.Itoa(year)), localPath)
	}
	return stage.Key(dataset, localPath)
}

func (m *Manager) stageFiles(ctx context.Context, dataset string, paths []string) ([]stagedFile, int, error) {
	files := make([]stagedFile, 0, len(paths))
	uploaded := 0
	for _, p := range paths {
		obj, err := m.stage.Put(ctx, StageKey(dataset, filepath.ToSlash(p)), p)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "stage %s", p)
		}
		if obj.Uploaded {
			uploaded++
		}
		files = append(files, stagedFile{local: p, key: obj.Key})
	}
	return files, uploaded, nil
}

// merge runs the transactional part of the protocol
func (m *Manager) merge(ctx context.Context, spec warehouse.TableSpec, files []stagedFile) (inserted, updated int64, err error) {
	scratch := spec.Table + "_STAGING_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	tx, err := m.wh.Begin(ctx)
	if err != nil {
		return 0, 0, &LoadError{Dataset: spec.Dataset, Table: spec.Table, Err: err}
	}

	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			m.log.Warnw("Rollback failed", logger.FieldTable, spec.Table, logger.FieldError, rbErr)
		}
		m.dropScratch(ctx, scratch)
		inserted, updated = 0, 0
		var le *LoadError
		if !errors.As(err, &le) {
			err = &LoadError{Dataset: spec.Dataset, Table: spec.Table, Err: err}
		}
	}()

	if _, err = tx.ExecContext(ctx, spec.CreateTableSQL()); err != nil {
		return 0, 0, errors.Wrapf(err, "create table %s", spec.Table)
	}
	if _, err = tx.ExecContext(ctx, spec.CreateScratchSQL(scratch)); err != nil {
		return 0, 0, errors.Wrapf(err, "create scratch table %s", scratch)
	}
	if err = m.copyInto(ctx, tx, spec, scratch, files); err != nil {
		return 0, 0, err
	}
	if _, err = tx.ExecContext(ctx, dedupeSQL(spec, scratch)); err != nil {
		return 0, 0, errors.Wrap(err, "deduplicate scratch rows")
	}

	if len(spec.NonKey()) > 0 {
		res, execErr := tx.ExecContext(ctx, updateSQL(spec, scratch))
		if execErr != nil {
			err = errors.Wrapf(execErr, "update %s", spec.Table)
			return 0, 0, err
		}
		if updated, err = res.RowsAffected(); err != nil {
			return 0, 0, errors.Wrap(err, "count updated rows")
		}
	}

	res, err := tx.ExecContext(ctx, insertSQL(spec, scratch))
	if err != nil {
		return 0, 0, errors.Wrapf(err, "insert into %s", spec.Table)
	}
	if inserted, err = res.RowsAffected(); err != nil {
		return 0, 0, errors.Wrap(err, "count inserted rows")
	}

	if _, err = tx.ExecContext(ctx, "DROP TABLE "+warehouse.QuoteIdent(scratch)); err != nil {
		return 0, 0, errors.Wrapf(err, "drop scratch table %s", scratch)
	}
	if _, err = tx.ExecContext(ctx, m.wh.Rebind(auditSQL),
		uuid.NewString(), logger.RunIDFromContext(ctx), spec.Dataset, spec.Table,
		inserted, updated, len(files), m.now().UTC().Format(time.RFC3339),
	); err != nil {
		return 0, 0, errors.Wrap(err, "record load")
	}
	if err = tx.Commit(); err != nil {
		return 0, 0, errors.Wrap(err, "commit load")
	}
	return inserted, updated, nil
}

// dropScratch removes a scratch table left behind by a failed load
func (m *Manager) dropScratch(ctx context.Context, scratch string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := m.wh.Conn().ExecContext(ctx, "DROP TABLE IF EXISTS "+warehouse.QuoteIdent(scratch)); err != nil {
		m.log.Debugw("Scratch table not dropped", logger.FieldTable, scratch, logger.FieldError, err)
	}
}

// copyInto bulk-copies every staged file into the scratch table.
// The first row that cannot be converted or inserted aborts the copy.
func (m *Manager) copyInto(ctx context.Context, tx *sqlx.Tx, spec warehouse.TableSpec, scratch string, files []stagedFile) error {
	stmt, err := tx.PreparexContext(ctx, m.wh.Rebind(scratchInsertSQL(spec, scratch)))
	if err != nil {
		return errors.Wrap(err, "prepare scratch insert")
	}
	defer stmt.Close()

	var seq int64
	for _, f := range files {
		if err := m.copyFile(ctx, stmt, spec, f, &seq); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) copyFile(ctx context.Context, stmt *sqlx.Stmt, spec warehouse.TableSpec, f stagedFile, seq *int64) error {
	rc, err := m.stage.Open(ctx, f.key)
	if err != nil {
		return &LoadError{Dataset: spec.Dataset, Table: spec.Table, File: f.local, Err: err}
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return &LoadError{Dataset: spec.Dataset, Table: spec.Table, File: f.local, Line: 1, Err: err}
	}

	index := columnIndex(header, spec)
	for i, col := range spec.Columns {
		if index[i] < 0 {
			m.log.Warnw("Mapped column absent from file, loading NULL",
				logger.FieldFile, f.local, "column", col.Source)
		}
	}

	args := make([]any, len(spec.Columns)+1)
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return &LoadError{Dataset: spec.Dataset, Table: spec.Table, File: f.local, Line: line, Err: err}
		}
		line, _ := r.FieldPos(0)

		for i, col := range spec.Columns {
			args[i] = nil
			if idx := index[i]; idx >= 0 && idx < len(record) {
				v, err := warehouse.Convert(record[idx], col.Type)
				if err != nil {
					return &LoadError{Dataset: spec.Dataset, Table: spec.Table, File: f.local, Line: line,
						Err: errors.Wrapf(err, "column %s", col.Name)}
				}
				args[i] = v
			}
		}
		*seq++
		args[len(spec.Columns)] = *seq

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return &LoadError{Dataset: spec.Dataset, Table: spec.Table, File: f.local, Line: line, Err: err}
		}
	}
}

// columnIndex maps each table column to its position in header, -1 if absent.
// Header names match the mapping's source name ignoring case.
func columnIndex(header []string, spec warehouse.TableSpec) []int {
	index := make([]int, len(spec.Columns))
	for i, col := range spec.Columns {
		index[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), col.Source) {
				index[i] = j
				break
			}
		}
	}
	return index
}

// Package pipeline runs datasets through acquisition, normalization,
// validation and load.
//
// Datasets are processed one after another, each by its own state machine.
// A failure moves only that dataset to FAILED; the run always continues with
// the next dataset and reports PARTIAL_FAILURE at the end.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"
	"go.uber.org/zap"

	"github.com/teranos/civicload/acquire"
	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/load"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/metrics"
	"github.com/teranos/civicload/normalize"
	"github.com/teranos/civicload/registry"
	"github.com/teranos/civicload/validate"
)

// Acquirer fetches a dataset's raw files. *acquire.Manager satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, d registry.Descriptor, manifest acquire.Manifest) ([]acquire.Result, acquire.Manifest, error)
	LocalFiles(d registry.Descriptor) ([]string, error)
}

// Validator checks files against a contract. *validate.Validator satisfies it.
type Validator interface {
	ValidateAll(paths []string, c contract.Contract) ([]validate.Outcome, error)
}

// Loader merges validated files into the warehouse. *load.Manager satisfies it.
type Loader interface {
	Load(ctx context.Context, dataset string, paths []string) (load.Outcome, error)
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Registry  *registry.Registry
	Contracts *contract.Store
	Acquirer  Acquirer
	Validator Validator
	Loader    Loader
	Emitter   Emitter           // nil = NopEmitter
	Metrics   *metrics.Recorder // nil = not recorded
}

// Config holds the orchestrator's filesystem layout and normalization settings
type Config struct {
	ValidatedDir string
	ManifestPath string
	Encoding     normalize.EncodingOptions
	Now          func() time.Time
}

// Options selects what a run processes
type Options struct {
	Datasets        []string
	All             bool
	SkipAcquisition bool
	Year            int // restrict every dataset to one year; 0 = full range
}

// Orchestrator drives runs
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  *zap.SugaredLogger
}

// New wires an Orchestrator
func New(deps Deps, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	if deps.Emitter == nil {
		deps.Emitter = NopEmitter{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{deps: deps, cfg: cfg, log: log}
}

// Run processes the selected datasets sequentially. The error is non-nil only
// when the run could not start; dataset failures are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (RunResult, error) {
	descriptors, err := o.deps.Registry.Resolve(opts.Datasets, opts.All)
	if err != nil {
		return RunResult{}, err
	}

	manifest, err := acquire.LoadManifest(o.cfg.ManifestPath)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{RunID: uuid.NewString(), Started: o.cfg.Now()}
	ctx = logger.WithRunID(ctx, result.RunID)
	log := logger.LoggerFromContext(ctx, o.log)

	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	log.Infow("Run started", logger.FieldCount, len(descriptors), "skip_acquisition", opts.SkipAcquisition)
	o.deps.Emitter.EmitStart(result.RunID, names)

	for _, d := range descriptors {
		if opts.Year != 0 {
			d = d.ForYear(opts.Year)
		}
		var dr DatasetResult
		dr, manifest = o.runDataset(logger.WithDataset(ctx, d.Name), d, manifest, opts.SkipAcquisition)
		result.Datasets = append(result.Datasets, dr)
		o.deps.Emitter.EmitDataset(dr)
	}

	result.Finished = o.cfg.Now()
	o.deps.Metrics.RunFinished(result.Finished)

	t := result.Totals()
	log.Infow("Run finished",
		logger.FieldStatus, result.Status(),
		"loaded", t.Loaded,
		"failed", t.Failed,
		logger.FieldInserted, t.RowsInserted,
		logger.FieldUpdated, t.RowsUpdated,
		logger.FieldDurationMS, result.Elapsed().Milliseconds(),
	)
	o.deps.Emitter.EmitComplete(result)
	return result, nil
}

// runDataset drives one dataset to a terminal state
func (o *Orchestrator) runDataset(ctx context.Context, d registry.Descriptor, manifest acquire.Manifest, skipAcquisition bool) (DatasetResult, acquire.Manifest) {
	start := o.cfg.Now()
	log := logger.LoggerFromContext(ctx, o.log)
	res := DatasetResult{Dataset: d.Name}

	var detail string
	sm := newMachine(func(_ context.Context, t stateless.Transition) {
		from, to := t.Source.(State), t.Destination.(State)
		log.Debugw("Transition", "from", from, logger.FieldState, to)
		o.deps.Emitter.EmitTransition(d.Name, from, to, detail)
	})

	advance := func(trigger string, msg string) {
		detail = msg
		if err := sm.FireCtx(ctx, trigger); err != nil {
			// Only reachable through a broken machine configuration
			log.Errorw("Invalid transition", "trigger", trigger, logger.FieldError, err)
		}
	}

	fail := func(stage Stage, err error) (DatasetResult, acquire.Manifest) {
		se := newStageError(stage, err)
		res.State, res.FailedStage, res.ErrorKind, res.Err = StateFailed, stage, se.Kind, se
		res.Retryable = se.Kind.Retryable()
		res.Load = load.Outcome{Dataset: d.Name, Table: d.TargetTable}
		advance(triggerFail, err.Error())
		res.Elapsed = o.cfg.Now().Sub(start)

		log.Errorw("Dataset failed",
			logger.FieldStage, stage,
			logger.FieldErrorKind, se.Kind,
			"retryable", res.Retryable,
			logger.FieldError, err,
		)
		o.deps.Metrics.Terminal(d.Name, string(StateFailed), se.Kind)
		return res, manifest
	}

	// acquire
	stageStart := o.cfg.Now()
	raw, err := o.acquire(ctx, d, &manifest, skipAcquisition, &res)
	o.deps.Metrics.StageDuration(d.Name, string(StageAcquire), o.cfg.Now().Sub(stageStart))
	if err != nil {
		return fail(StageAcquire, err)
	}
	advance(triggerAcquired, fmt.Sprintf("%d downloaded, %d cached", res.FilesDownloaded, res.FilesSkipped))

	// normalize
	stageStart = o.cfg.Now()
	paths, err := normalizeFiles(d, raw, o.cfg.ValidatedDir, o.cfg.Encoding, log)
	o.deps.Metrics.StageDuration(d.Name, string(StageNormalize), o.cfg.Now().Sub(stageStart))
	if err != nil {
		return fail(StageNormalize, err)
	}
	res.FilesNormalized = len(paths)
	advance(triggerNormalized, fmt.Sprintf("%d file(s)", len(paths)))

	// validate
	stageStart = o.cfg.Now()
	c, err := o.deps.Contracts.Contract(d.Name)
	if err != nil {
		return fail(StageValidate, err)
	}
	outcomes, err := o.deps.Validator.ValidateAll(paths, c)
	o.deps.Metrics.StageDuration(d.Name, string(StageValidate), o.cfg.Now().Sub(stageStart))
	for _, out := range outcomes {
		res.Warnings += len(out.Warnings)
	}
	if err != nil {
		o.deps.Metrics.ValidationFailed(d.Name)
		return fail(StageValidate, err)
	}
	res.FilesValidated = len(outcomes)
	advance(triggerValidated, fmt.Sprintf("%d file(s), %d warning(s)", len(outcomes), res.Warnings))

	// load
	stageStart = o.cfg.Now()
	outcome, err := o.deps.Loader.Load(ctx, d.Name, paths)
	o.deps.Metrics.StageDuration(d.Name, string(StageLoad), o.cfg.Now().Sub(stageStart))
	if err != nil {
		return fail(StageLoad, err)
	}
	res.Load = outcome
	res.State = StateLoaded
	o.deps.Metrics.RowsLoaded(d.Name, outcome.Inserted, outcome.Updated)
	advance(triggerLoaded, fmt.Sprintf("%d inserted, %d updated", outcome.Inserted, outcome.Updated))

	res.Elapsed = o.cfg.Now().Sub(start)
	o.deps.Metrics.Terminal(d.Name, string(StateLoaded), "")
	return res, manifest
}

// acquire returns the raw files of d, fetching them unless skipAcquisition
func (o *Orchestrator) acquire(ctx context.Context, d registry.Descriptor, manifest *acquire.Manifest, skipAcquisition bool, res *DatasetResult) ([]string, error) {
	if skipAcquisition {
		files, err := o.deps.Acquirer.LocalFiles(d)
		if err != nil {
			return nil, err
		}
		res.FilesSkipped = len(files)
		o.deps.Metrics.FilesAcquired(d.Name, string(acquire.StatusSkipped), len(files))
		return files, nil
	}

	results, updated, err := o.deps.Acquirer.Acquire(ctx, d, *manifest)
	*manifest = updated
	for _, r := range results {
		if r.Status == acquire.StatusDownloaded {
			res.FilesDownloaded++
		} else {
			res.FilesSkipped++
		}
	}
	o.deps.Metrics.FilesAcquired(d.Name, string(acquire.StatusDownloaded), res.FilesDownloaded)
	o.deps.Metrics.FilesAcquired(d.Name, string(acquire.StatusSkipped), res.FilesSkipped)
	if err != nil {
		if errors.KindOf(err) == errors.KindUnknown {
			err = &acquire.AcquisitionError{URL: d.Source, Err: err}
		}
		return nil, err
	}

	files := make([]string, len(results))
	for i, r := range results {
		files[i] = r.Path
	}
	return files, nil
}

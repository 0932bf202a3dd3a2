package commands

import (
	"context"
	"time"

	"github.com/teranos/civicload/acquire"
	"github.com/teranos/civicload/config"
	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/internal/httpclient"
	"github.com/teranos/civicload/load"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/metrics"
	"github.com/teranos/civicload/normalize"
	"github.com/teranos/civicload/pipeline"
	"github.com/teranos/civicload/registry"
	"github.com/teranos/civicload/stage"
	"github.com/teranos/civicload/validate"
	"github.com/teranos/civicload/warehouse"
)

// loadedConfig is set by LoadConfig from the root command
var loadedConfig *config.Config

// LoadConfig loads the configuration from path, or from the standard
// search locations when path is empty, and keeps it for the commands.
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.WithHint(err, "check civicload.toml or the CIVICLOAD_* environment variables")
	}
	loadedConfig = cfg
	return cfg, nil
}

func currentConfig() (*config.Config, error) {
	if loadedConfig != nil {
		return loadedConfig, nil
	}
	return LoadConfig("")
}

// catalogs returns the embedded dataset registry and contract store
func catalogs() (*registry.Registry, *contract.Store, error) {
	reg, err := registry.Default()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load dataset registry")
	}
	contracts, err := contract.Default()
	if err != nil {
		return nil, nil, errors.Wrap(err, "load schema contracts")
	}
	return reg, contracts, nil
}

// openWarehouse opens and migrates the configured warehouse
func openWarehouse(ctx context.Context, cfg *config.Config) (*warehouse.Warehouse, error) {
	driver, err := warehouse.ParseDriver(cfg.Warehouse.Driver)
	if err != nil {
		return nil, err
	}

	wh, err := warehouse.Open(ctx, driver, cfg.Warehouse.DSN, logger.ComponentLogger("warehouse"))
	if err != nil {
		return nil, err
	}
	if err := wh.Migrate(ctx); err != nil {
		wh.Close()
		return nil, errors.Wrap(err, "failed to run warehouse migrations")
	}
	return wh, nil
}

// openStage builds the configured staging area, creating the bucket of an
// S3 stage when it does not exist
func openStage(ctx context.Context, cfg *config.Config) (stage.Stage, error) {
	st, err := stage.FromConfig(cfg.Stage.Kind, cfg.Stage.Dir, stage.MinioConfig{
		Endpoint:        cfg.Stage.Endpoint,
		Bucket:          cfg.Stage.Bucket,
		Region:          cfg.Stage.Region,
		AccessKeyID:     cfg.Stage.AccessKeyID,
		SecretAccessKey: cfg.Stage.SecretAccessKey,
		UseSSL:          cfg.Stage.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if ms, ok := st.(*stage.MinioStage); ok {
		if err := ms.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// app holds everything a pipeline run needs. The warehouse is owned here
// and closed by Close.
type app struct {
	cfg       *config.Config
	registry  *registry.Registry
	contracts *contract.Store
	warehouse *warehouse.Warehouse
	stage     stage.Stage
	metrics   *metrics.Recorder
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	reg, contracts, err := catalogs()
	if err != nil {
		return nil, err
	}

	st, err := openStage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		registry:  reg,
		contracts: contracts,
		warehouse: wh,
		stage:     st,
		metrics:   metrics.New(),
	}, nil
}

func (a *app) Close() {
	if err := a.warehouse.Close(); err != nil {
		logger.Warnw("Failed to close warehouse", logger.FieldError, err)
	}
}

// orchestrator wires the pipeline stages from the configuration
func (a *app) orchestrator(emitter pipeline.Emitter) *pipeline.Orchestrator {
	cfg := a.cfg

	client := httpclient.New(httpclient.Options{
		Timeout:        cfg.HTTPTimeout(),
		MaxRetries:     cfg.HTTP.MaxRetries,
		RetryWaitMin:   time.Duration(cfg.HTTP.RetryWaitMinMS) * time.Millisecond,
		RetryWaitMax:   time.Duration(cfg.HTTP.RetryWaitMaxMS) * time.Millisecond,
		UserAgent:      cfg.HTTP.UserAgent,
		BlockPrivateIP: cfg.HTTP.BlockPrivateIP,
	}, logger.ComponentLogger("http"))

	acquirer := acquire.NewManager(client, map[registry.Method]acquire.Resolver{
		registry.MethodCatalog:  &acquire.CatalogResolver{BaseURL: cfg.Catalog.BaseURL, Client: client},
		registry.MethodTemplate: &acquire.TemplateResolver{},
	}, acquire.Options{
		SinkRoot:       cfg.Data.RawDir,
		DefaultTimeout: cfg.HTTPTimeout(),
	}, logger.ComponentLogger("acquire"))

	loader := load.NewManager(a.warehouse, a.stage, a.registry, a.contracts, load.Options{
		StatementTimeout: cfg.StatementTimeout(),
	}, logger.ComponentLogger("load"))

	return pipeline.New(pipeline.Deps{
		Registry:  a.registry,
		Contracts: a.contracts,
		Acquirer:  acquirer,
		Validator: validate.New(cfg.Validation.SampleRows, logger.ComponentLogger("validate")),
		Loader:    loader,
		Emitter:   emitter,
		Metrics:   a.metrics,
	}, pipeline.Config{
		ValidatedDir: cfg.Data.ValidatedDir,
		ManifestPath: cfg.ManifestPath(),
		Encoding:     normalize.EncodingOptions{Confidence: cfg.Normalize.EncodingConfidence},
	}, logger.ComponentLogger("pipeline"))
}

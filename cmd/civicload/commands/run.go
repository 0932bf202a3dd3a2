package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/pipeline"
)

// RunCmd runs the ingestion pipeline
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire, normalize, validate and load datasets",
	Long: `Run the ingestion pipeline for the selected datasets.

Each dataset moves PENDING → ACQUIRED → NORMALIZED → VALIDATED → LOADED, or
to FAILED at the first stage that fails. A failed dataset never stops the
run. The command exits 0 only when every selected dataset was loaded.

Examples:
  civicload run --all
  civicload run --dataset ttc_subway_delays --dataset ttc_bus_delays
  civicload run --all --skip-acquisition      # reuse files already on disk
  civicload run --dataset weather_daily --year 2024`,
	RunE: runPipeline,
}

var (
	runDatasets        []string
	runAll             bool
	runSkipAcquisition bool
	runYear            int
	runJSON            bool
)

func init() {
	RunCmd.Flags().StringSliceVarP(&runDatasets, "dataset", "d", nil, "Dataset to process (repeatable)")
	RunCmd.Flags().BoolVar(&runAll, "all", false, "Process every registered dataset")
	RunCmd.Flags().BoolVar(&runSkipAcquisition, "skip-acquisition", false, "Use files already in the raw directory")
	RunCmd.Flags().IntVar(&runYear, "year", 0, "Restrict every dataset to one year")
	RunCmd.Flags().BoolVarP(&runJSON, "json", "j", false, "Emit progress as JSON lines on stdout")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var emitter pipeline.Emitter
	if runJSON {
		emitter = pipeline.NewJSONEmitter(cmd.OutOrStdout())
	} else {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		emitter = pipeline.NewCLIEmitter(verbosity)
	}

	result, err := a.orchestrator(emitter).Run(ctx, pipeline.Options{
		Datasets:        runDatasets,
		All:             runAll,
		SkipAcquisition: runSkipAcquisition,
		Year:            runYear,
	})
	if err != nil {
		return err
	}

	if err := a.metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.Warnw("Failed to write metrics textfile", logger.FieldFile, cfg.Metrics.TextfilePath, logger.FieldError, err)
	}

	if result.Status() != pipeline.RunSuccess {
		t := result.Totals()
		return errors.Wrapf(result.Err(), "%d of %d dataset(s) failed", t.Failed, len(result.Datasets))
	}
	return nil
}

package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/civicload/display"
	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/load"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/registry"
)

// ReconcileCmd compares warehouse row counts with the validated files
var ReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare loaded row counts with the validated files",
	Long: fmt.Sprintf(`Count the data rows of each dataset's validated CSVs and compare them with
its target table. A table passes when the difference is within %.0f%%.

Examples:
  civicload reconcile --all
  civicload reconcile --dataset ttc_subway_delays`, load.TolerancePct),
	RunE: runReconcile,
}

var (
	reconcileDatasets []string
	reconcileAll      bool
)

func init() {
	ReconcileCmd.Flags().StringSliceVarP(&reconcileDatasets, "dataset", "d", nil, "Dataset to reconcile (repeatable)")
	ReconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "Reconcile every registered dataset")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	reg, err := registry.Default()
	if err != nil {
		return err
	}
	descriptors, err := reg.Resolve(reconcileDatasets, reconcileAll)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	wh, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	results, err := load.NewReconciler(wh, cfg.Data.ValidatedDir, logger.ComponentLogger("reconcile")).Reconcile(ctx, descriptors)
	if err != nil {
		return err
	}

	data, failed := reconcileRows(results)
	if err := display.Table(cmd.OutOrStdout(), data); err != nil {
		return err
	}
	if failed > 0 {
		return errors.WithHint(
			errors.Newf("%d of %d table(s) did not reconcile", failed, len(results)),
			"re-run the failed datasets with: civicload run --skip-acquisition --dataset NAME",
		)
	}
	return nil
}

func reconcileRows(results []load.Reconciliation) (pterm.TableData, int) {
	data := pterm.TableData{{"Dataset", "Table", "Expected", "Actual", "Diff %", "Status"}}
	failed := 0
	for _, r := range results {
		status := string(r.Status)
		if r.Err != nil {
			status += ": " + r.Err.Error()
		}
		if !r.Passed() {
			failed++
		}
		data = append(data, []string{
			r.Dataset,
			r.Table,
			fmt.Sprintf("%d", r.Expected),
			fmt.Sprintf("%d", r.Actual),
			fmt.Sprintf("%.2f", r.DiffPct),
			status,
		})
	}
	return data, failed
}

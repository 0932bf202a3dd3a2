package commands

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/logger"
	"github.com/teranos/civicload/normalize"
)

// StripCmd trims validated files down to their contract's columns
var StripCmd = &cobra.Command{
	Use:   "strip <dataset>",
	Short: "Remove columns outside the contract from validated files",
	Long: `Rewrite every validated CSV of a dataset in place, keeping only the columns its
contract declares. Files that already match are left untouched.

Examples:
  civicload strip ttc_bus_delays`,
	Args: cobra.ExactArgs(1),
	RunE: runStrip,
}

func runStrip(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	reg, contracts, err := catalogs()
	if err != nil {
		return err
	}
	d, err := reg.Descriptor(args[0])
	if err != nil {
		return err
	}
	c, err := contracts.Contract(d.Name)
	if err != nil {
		return err
	}

	n, err := stripDir(filepath.Join(cfg.Data.ValidatedDir, d.Subpath), c.ColumnNames())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d file(s) rewritten\n", d.Name, n)
	return nil
}

// stripDir applies StripColumns to every CSV under dir and returns how many
// files changed. A missing dir changes nothing.
func stripDir(dir string, keep []string) (int, error) {
	changed := 0
	err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if e.IsDir() || !strings.EqualFold(filepath.Ext(p), ".csv") {
			return nil
		}
		removed, err := normalize.StripColumns(p, keep)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			changed++
			logger.Infow("Stripped columns", logger.FieldFile, p, "removed", removed)
		}
		return nil
	})
	return changed, err
}

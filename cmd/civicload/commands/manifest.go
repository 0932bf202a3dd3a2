package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/civicload/acquire"
	"github.com/teranos/civicload/display"
	"github.com/teranos/civicload/logger"
)

// ManifestCmd inspects the download manifest
var ManifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect or prune the download manifest",
	Long: `The manifest records every downloaded file by URL. A URL with a manifest entry
whose file still exists is never downloaded again.

Examples:
  civicload manifest show
  civicload manifest prune     # drop entries whose file is missing or changed size`,
}

var manifestShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List manifest entries",
	RunE:  runManifestShow,
}

var manifestPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove entries whose file is missing or changed size",
	RunE:  runManifestPrune,
}

func init() {
	ManifestCmd.AddCommand(manifestShowCmd)
	ManifestCmd.AddCommand(manifestPruneCmd)
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	m, err := acquire.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if m.Len() == 0 {
		fmt.Fprintf(out, "Manifest %s is empty\n", m.Path())
		return nil
	}

	data := pterm.TableData{{"URL", "File", "Bytes", "SHA-256", "Retrieved"}}
	for _, e := range m.Entries() {
		hash := e.ContentHash
		if len(hash) > 12 {
			hash = hash[:12]
		}
		data = append(data, []string{
			e.URL,
			e.FilePath,
			fmt.Sprintf("%d", e.ByteSize),
			hash,
			e.RetrievedAt.Format(time.RFC3339),
		})
	}
	fmt.Fprintf(out, "Manifest %s: %d entries\n\n", m.Path(), m.Len())
	return display.Table(out, data)
}

func runManifestPrune(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	m, err := acquire.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}

	pruned, removed := m.Prune()
	if removed > 0 {
		if err := pruned.Save(); err != nil {
			return err
		}
	}
	logger.Infow("Manifest pruned", logger.FieldFile, pruned.Path(), "removed", removed, "kept", pruned.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries, %d kept\n", removed, pruned.Len())
	return nil
}

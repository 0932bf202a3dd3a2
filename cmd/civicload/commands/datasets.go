package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/civicload/display"
	"github.com/teranos/civicload/registry"
)

// DatasetsCmd lists the dataset registry
var DatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List registered datasets",
	Long:  "Display every dataset in the registry with its source, format, year range and target table.",
	RunE:  runDatasetsList,
}

func runDatasetsList(cmd *cobra.Command, args []string) error {
	reg, err := registry.Default()
	if err != nil {
		return err
	}

	return display.Table(cmd.OutOrStdout(), datasetRows(reg.All()))
}

func datasetRows(descriptors []registry.Descriptor) pterm.TableData {
	data := pterm.TableData{{"Name", "Method", "Format", "Years", "Table", "Natural key"}}
	for _, d := range descriptors {
		years := fmt.Sprintf("%d-", d.StartYear)
		if d.EndYear != 0 {
			years += fmt.Sprintf("%d", d.EndYear)
		} else {
			years += "now"
		}
		data = append(data, []string{
			d.Name,
			string(d.Method),
			string(d.Format),
			years,
			d.TargetTable,
			strings.Join(d.NaturalKey, ", "),
		})
	}
	return data
}

package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/civicload/contract"
	"github.com/teranos/civicload/display"
)

// ContractCmd prints a dataset's schema contract
var ContractCmd = &cobra.Command{
	Use:   "contract <dataset>",
	Short: "Show a dataset's schema contract",
	Long: `Display the columns, types and nullability every file of a dataset must satisfy.

Examples:
  civicload contract ttc_subway_delays`,
	Args: cobra.ExactArgs(1),
	RunE: runContractShow,
}

func runContractShow(cmd *cobra.Command, args []string) error {
	store, err := contract.Default()
	if err != nil {
		return err
	}
	c, err := store.Contract(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (contract v%s, min rows %d)\n\n", c.Dataset, c.Version, c.MinRowCount)
	return display.Table(out, contractRows(c))
}

func contractRows(c contract.Contract) pterm.TableData {
	data := pterm.TableData{{"Column", "Type", "Nullable"}}
	for _, col := range c.Columns {
		nullable := "no"
		if col.Nullable {
			nullable = "yes"
		}
		data = append(data, []string{col.Name, string(col.Type), nullable})
	}
	return data
}

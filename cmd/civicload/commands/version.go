package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/civicload/display"
	"github.com/teranos/civicload/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show civicload version information",
	Long:  `Display version, build time, commit hash, and platform information for the civicload binary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		out := cmd.OutOrStdout()

		if display.ShouldOutputJSON(cmd) {
			return display.JSON(out, info)
		}

		fmt.Fprintln(out, info.String())
		if v, err := info.Semver(); err == nil && v.Prerelease() != "" {
			fmt.Fprintf(out, "Pre-release: %s\n", v.Prerelease())
		}
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
		fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}

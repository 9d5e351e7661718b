package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X .../cmd.version=..." at build time.
var version = "unknown"

var readBuildInfo = debug.ReadBuildInfo

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the advisor-analyzer version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// resolvedVersion falls back to the module version stamped by go install.
func resolvedVersion() string {
	if version != "unknown" {
		return version
	}
	if info, ok := readBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return version
}

func writeVersion(out io.Writer) error {
	_, err := fmt.Fprintf(out, "%s version: %s\n", app, resolvedVersion())
	return err
}

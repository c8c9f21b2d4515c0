// Package version exposes build metadata injected through ldflags.
package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version of the build
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time
	BuildTime = "unknown"
)

// Full returns a human-readable version string with commit and build time
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}

// AttachCobraVersionCommand adds a `version` subcommand to root
func AttachCobraVersionCommand(root *cobra.Command) {
	root.Version = Version
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), Full())
		},
	})
}

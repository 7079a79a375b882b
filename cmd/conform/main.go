// Command conform renders reference images, compares browser readbacks
// against them, compiles test shaders and drives browsers through the
// conformance pages.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogpu/conform"
)

// errMismatch is returned by compare when the images differ.
var errMismatch = errors.New("images differ")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "conform",
		Short:        "Conformance tooling for browser graphics APIs",
		Version:      conform.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			conform.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		newRunCmd(),
		newRenderCmd(),
		newCompareCmd(),
		newCompileCmd(),
	)
	return root
}

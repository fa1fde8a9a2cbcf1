package main

import (
	"errors"

	"github.com/spf13/cobra"

	"docdrift/internal/version"
)

var (
	rootFlag   string
	formatFlag string
	verbosity  int
	quietFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "docdrift",
	Short: "docdrift - activity and documentation-drift graph engine",
	Long: `docdrift links components, services, docs, issues, pull requests, API
endpoints and activity signals into one graph, scores where activity and
dissatisfaction concentrate, detects drift between API specs and their
documentation, and keeps a ranked list of documentation issues.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("docdrift version {{.Version}}\n")
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlag, "root", "", "Workspace root holding .docdrift/ (default: current directory)")
	pf.StringVar(&formatFlag, "format", string(FormatHuman), "Output format (json, human)")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	pf.BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all logging")
}

// exitError carries a process exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

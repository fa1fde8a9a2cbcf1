package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"docdrift/internal/drift"
	"docdrift/internal/envelope"
	"docdrift/internal/issues"
)

var (
	issuesStatus      string
	issuesMinSeverity string
	issuesLimit       int
	driftFailOnError  bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <component>",
	Short: "Score activity, drift and dissatisfaction for a component",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one evaluation cycle and update documentation issues",
	Long: `Score every component, run the configured drift targets and fold the
findings into documentation issues. A cycle that could not read the store
or a drift target opens and refreshes issues but never resolves them.`,
	Args: cobra.NoArgs,
	RunE: runEvaluate,
}

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List documentation issues, worst first",
	Args:  cobra.NoArgs,
	RunE:  runIssues,
}

var driftCmd = &cobra.Command{
	Use:   "drift <spec> <doc>",
	Short: "Compare an API spec with its documentation",
	Long: `Compare an OpenAPI 3 / Swagger 2 spec (YAML or JSON) with a Markdown
or native JSON document and report missing, extra and mismatched endpoints
and parameters.

Examples:
  docdrift drift api/openapi.yaml docs/payments.md
  docdrift drift spec.json doc.json --fail-on-error`,
	Args: cobra.ExactArgs(2),
	RunE: runDrift,
}

func init() {
	issuesCmd.Flags().StringVar(&issuesStatus, "status", string(issues.Open), "Filter by status (open, resolved, or empty for all)")
	issuesCmd.Flags().StringVar(&issuesMinSeverity, "min-severity", "", "Lowest severity to show (low, medium, high, critical)")
	issuesCmd.Flags().IntVar(&issuesLimit, "limit", 0, "Maximum number of issues (0 = all)")
	driftCmd.Flags().BoolVar(&driftFailOnError, "fail-on-error", false, "Exit with status 2 when error findings exist")

	rootCmd.AddCommand(scoreCmd, evaluateCmd, issuesCmd, driftCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	b := envelope.New().Backend(a.store.Backend())
	r, err := a.evaluator().Scorer().ScoreComponent(ctx, nodeArg(args[0]), time.Now())
	if err != nil {
		return printResponse(cmd.OutOrStdout(), b.Error(err).Build())
	}
	return printResponse(cmd.OutOrStdout(), b.Data(r.Score).Build())
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	rep, err := a.evaluator().RunCycle(ctx, time.Now())
	if err != nil {
		return err
	}
	b := envelope.New().Data(rep).Status(rep.Status).Backend(a.store.Backend())
	for _, w := range rep.Warnings {
		b.Warning(w)
	}
	return printResponse(cmd.OutOrStdout(), b.Build())
}

func runIssues(cmd *cobra.Command, args []string) error {
	opts := issues.ListOptions{
		Status:      issues.Status(issuesStatus),
		MinSeverity: issues.Severity(issuesMinSeverity),
		Limit:       issuesLimit,
	}
	if opts.MinSeverity != "" && !opts.MinSeverity.Valid() {
		return fmt.Errorf("unknown severity %q", issuesMinSeverity)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	list, err := a.issues.List(ctx, opts)
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Data([]*issues.DocIssue{}).Error(err).Build())
	}
	if list == nil {
		list = []*issues.DocIssue{}
	}
	return printResponse(cmd.OutOrStdout(), envelope.New().Data(list).Backend(a.store.Backend()).Build())
}

// runDrift needs no store: it only reads the two files.
func runDrift(cmd *cobra.Command, args []string) error {
	spec, err := drift.LoadSpec(filepath.Clean(args[0]))
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Error(err).Build())
	}
	doc, err := drift.LoadDoc(filepath.Clean(args[1]))
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Error(err).Build())
	}

	rep := drift.Detect(spec, doc)
	if err := printResponse(cmd.OutOrStdout(), envelope.New().Data(rep).Build()); err != nil {
		return err
	}
	if driftFailOnError && rep.Summary.Errors > 0 {
		return &exitError{code: 2, msg: fmt.Sprintf("%d drift errors", rep.Summary.Errors)}
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docdrift/internal/envelope"
	"docdrift/internal/graph"
	"docdrift/internal/query"
)

var (
	neighborhoodDepth int
	relatedDepth      int
	relatedTopK       int
	relatedKinds      string
	rawParams         string
)

var neighborhoodCmd = &cobra.Command{
	Use:   "neighborhood <component>",
	Short: "Show docs, issues, PRs, threads and endpoints around a component",
	Long: `Traverse every edge around a component and group what is reachable
within --depth hops. A bare name is treated as comp:<name>.

Examples:
  docdrift neighborhood payments
  docdrift neighborhood comp:payments --depth 2 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runNeighborhood,
}

var impactCmd = &cobra.Command{
	Use:   "impact <endpoint-id>",
	Short: "Show services, docs, issues and PRs affected by an API endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runImpact,
}

var depsCmd = &cobra.Command{
	Use:   "deps <code-id>",
	Short: "Show the transitive DEPENDS_ON closure of a code artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeps,
}

var relatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "Rank the entities most connected to a node",
	Long: `Rank nodes around an id with personalized PageRank, weighting edges
by their signal weight.

Examples:
  docdrift related payments --kinds Doc,Issue --top 10`,
	Args: cobra.ExactArgs(1),
	RunE: runRelated,
}

var rawQueryCmd = &cobra.Command{
	Use:   "query <statement>",
	Short: "Run a read-only backend-native query",
	Long: `Run a read-only query against the store: SQL for sqlite and postgres.
Named parameters are passed as a JSON object with --params.`,
	Args: cobra.ExactArgs(1),
	RunE: runRawQuery,
}

func init() {
	neighborhoodCmd.Flags().IntVar(&neighborhoodDepth, "depth", 0, "Traversal depth (default from config)")
	relatedCmd.Flags().IntVar(&relatedDepth, "depth", 2, "Hops collected around the seed")
	relatedCmd.Flags().IntVar(&relatedTopK, "top", 20, "Number of results")
	relatedCmd.Flags().StringVar(&relatedKinds, "kinds", "", "Comma-separated node kinds to keep")
	rawQueryCmd.Flags().StringVar(&rawParams, "params", "", "Query parameters as a JSON object")

	rootCmd.AddCommand(neighborhoodCmd, impactCmd, depsCmd, relatedCmd, rawQueryCmd)
}

// nodeArg accepts a full node id or a bare component name.
func nodeArg(s string) string {
	if _, ok := graph.KindOf(s); ok {
		return s
	}
	return graph.ComponentID(s)
}

func runNeighborhood(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	n, status := a.engine().Neighborhood(ctx, nodeArg(args[0]), neighborhoodDepth)
	resp := envelope.New().Data(n).Status(status).Backend(a.store.Backend()).
		WithTruncation(n.Truncated, n.Size(), 0, "max-nodes").Build()
	return printResponse(cmd.OutOrStdout(), resp)
}

func runImpact(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	impact, status := a.engine().APIImpact(ctx, args[0])
	return printResponse(cmd.OutOrStdout(), envelope.New().Data(impact).Status(status).Backend(a.store.Backend()).Build())
}

func runDeps(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	deps, status := a.engine().Dependencies(ctx, args[0])
	resp := envelope.New().Data(deps).Status(status).Backend(a.store.Backend()).
		WithTruncation(deps.Truncated, len(deps.Dependencies), 0, "max-nodes").Build()
	return printResponse(cmd.OutOrStdout(), resp)
}

func parseKinds(s string) ([]graph.NodeKind, error) {
	var out []graph.NodeKind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var found bool
		for _, k := range graph.AllNodeKinds {
			if strings.EqualFold(string(k), part) {
				out, found = append(out, k), true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown node kind %q", part)
		}
	}
	return out, nil
}

func runRelated(cmd *cobra.Command, args []string) error {
	kinds, err := parseKinds(relatedKinds)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	r, status := a.engine().Related(ctx, nodeArg(args[0]), query.RelatedOptions{
		Depth: relatedDepth,
		TopK:  relatedTopK,
		Kinds: kinds,
	})
	return printResponse(cmd.OutOrStdout(), envelope.New().Data(r).Status(status).Backend(a.store.Backend()).Build())
}

func runRawQuery(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			return fmt.Errorf("--params must be a JSON object: %w", err)
		}
	}
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	rows, status, err := a.engine().Raw(ctx, args[0], params)
	resp := envelope.New().Data(rows).Error(err).Status(status).Backend(a.store.Backend()).Build()
	return printResponse(cmd.OutOrStdout(), resp)
}

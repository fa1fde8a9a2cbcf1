package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"docdrift/internal/envelope"
	"docdrift/internal/ingest"
	"docdrift/internal/queue"
	"docdrift/internal/storage"
)

var (
	ingestPublish bool
	runsLimit     int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <batch-file>...",
	Short: "Apply ingestion batches to the graph",
	Long: `Apply one or more batch files to the graph. A file holds a JSON batch
or an array of batches; files ending in .zst are zstd-compressed.
Each source is applied independently, so one bad source yields a
PARTIAL result instead of aborting the run.

With --publish the batches are sent to the configured queue instead and
applied later by "docdrift serve".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestManifestCmd = &cobra.Command{
	Use:   "manifest <manifest.toml>",
	Short: "Apply a TOML service manifest",
	Long: `Apply a TOML manifest declaring components, services, endpoints, docs
and code artifacts together with their links.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestManifest,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestPublish, "publish", false, "Publish to the configured queue instead of applying")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs")
	ingestCmd.AddCommand(ingestManifestCmd)
	rootCmd.AddCommand(ingestCmd, runsCmd)
}

func readBatches(paths []string) ([]ingest.Batch, error) {
	var out []ingest.Batch
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		encoding := ""
		if strings.HasSuffix(p, ".zst") {
			encoding = "zstd"
		}
		batches, err := queue.DecodeBatches(data, encoding)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, batches...)
	}
	return out, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	batches, err := readBatches(args)
	if err != nil {
		return err
	}
	if ingestPublish {
		return publishBatches(cmd, batches)
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	return printIngest(cmd, a.runner().Run(ctx, batches), a.store.Backend())
}

func runIngestManifest(cmd *cobra.Command, args []string) error {
	m, err := ingest.LoadManifest(args[0])
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Error(err).Build())
	}
	batch, err := m.Batch()
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Error(err).Build())
	}

	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	return printIngest(cmd, a.runner().Run(ctx, []ingest.Batch{batch}), a.store.Backend())
}

func printIngest(cmd *cobra.Command, rep *ingest.BatchReport, backend string) error {
	b := envelope.New().Data(rep).Status(rep.Status).Backend(backend).RunID(rep.RunID)
	if err := rep.Err(); err != nil {
		b.Warning(err.Error())
	}
	return printResponse(cmd.OutOrStdout(), b.Build())
}

func publishBatches(cmd *cobra.Command, batches []ingest.Batch) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Queue.URL == "" {
		return fmt.Errorf("queue.url is not configured")
	}

	ctx, cancel := signalContext()
	defer cancel()

	conn, err := queue.Dial(cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, cfg.Queue.Queue); err != nil {
		return err
	}
	if err := queue.Publish(ctx, ch, cfg.Queue.Queue, batches); err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d batch(es) to %s\n", len(batches), cfg.Queue.Queue)
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	if a.db == nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().
			Data([]*storage.IngestRun{}).
			Status(envelope.Unavailable).
			Warning("run history needs a sqlite database").
			Build())
	}
	runs, err := storage.NewRunRepository(a.db).Recent(ctx, runsLimit)
	if err != nil {
		return printResponse(cmd.OutOrStdout(), envelope.New().Data([]*storage.IngestRun{}).Error(err).Build())
	}
	if runs == nil {
		runs = []*storage.IngestRun{}
	}
	return printResponse(cmd.OutOrStdout(), envelope.New().Data(runs).Backend(a.store.Backend()).Build())
}

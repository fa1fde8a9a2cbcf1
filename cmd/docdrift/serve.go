package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docdrift/internal/api"
	"docdrift/internal/queue"
	"docdrift/internal/scheduler"
)

var (
	serveBind       string
	servePort       int
	serveNoSchedule bool
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the evaluation schedule and the queue consumer",
	Long: `Start the docdrift HTTP API. Evaluation cycles run on the schedule in
schedule.evaluate, and when queue.enabled is set ingestion batches are
consumed from the configured AMQP queue.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Address to bind (overrides server.bind)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "Do not run scheduled evaluation cycles")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	if serveBind != "" {
		a.cfg.Server.Bind = serveBind
	}
	if servePort != 0 {
		a.cfg.Server.Port = servePort
	}
	addr := a.cfg.Server.ListenAddr()

	runner := a.runner()
	ev := a.evaluator()
	server := api.NewServer(addr, api.Deps{
		Engine:    a.engine(),
		Runner:    runner,
		Evaluator: ev,
	}, logger)

	sched := scheduler.New(logger)
	if !serveNoSchedule {
		err := sched.Add("evaluate", a.cfg.Schedule.Evaluate, func(ctx context.Context) error {
			rep, err := ev.RunCycle(ctx, time.Now())
			if err != nil {
				return err
			}
			logger.Info("Evaluation cycle finished",
				"status", string(rep.Status),
				"components", rep.Components,
				"findings", len(rep.Findings),
			)
			return nil
		})
		if err != nil {
			return fmt.Errorf("invalid schedule.evaluate: %w", err)
		}
		sched.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)

	if a.cfg.Queue.Enabled {
		conn, err := queue.Dial(a.cfg.Queue.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		consumer := queue.NewConsumer(a.cfg.Queue, runner, logger)
		g.Go(func() error { return consumer.Run(gctx, conn) })
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "docdrift listening on http://%s\n", addr)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Stop(shutdownTimeout); err != nil {
			logger.Warn("Scheduled jobs did not finish", "error", err.Error())
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped", "error", err.Error())
		return err
	}
	logger.Info("Server stopped")
	return nil
}

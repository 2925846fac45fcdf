// ============================================================================
// ARTG CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides the command line interface based on the Cobra framework
//
// Command Structure:
//   artg                           # Root command
//   ├── serve                      # Start HTTP API, gRPC ingestion, metrics
//   ├── publish                    # Send gate-in events to a running server
//   │   ├── --file, -f            # JSON file (object or array of objects)
//   │   ├── --addr                # gRPC address (default: server.grpc_addr)
//   │   └── --wait                # How long to collect notifications
//   ├── predict                    # Offline: derive + predict one event
//   │   └── --file, -f
//   ├── lookups                    # Print the lookup artifact summary
//   └── --config, -c               # Config file (default: configs/default.yaml)
//
// serve Command:
//   1. Load config, install the slog default handler
//   2. Load lookup tables and wire the pipeline
//   3. Start the ingestion worker pool and the result consumer (metrics)
//   4. Run HTTP API, gRPC ingestion and metrics servers in one errgroup
//   5. SIGINT / SIGTERM cancels the group; servers drain, then the pool stops
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/artg-queue/internal/api"
	"github.com/ChuLiYu/artg-queue/internal/metrics"
	"github.com/ChuLiYu/artg-queue/internal/server"
	"github.com/ChuLiYu/artg-queue/pkg/types"
)

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "artg",
		Short: "ARTG: gate-in duration prediction and block queue service",
		Long: `ARTG predicts how long a container truck will take at its yard block:
- Live gate-in ingestion over gRPC with real-time notifications
- Stack validation and TTL deduplication
- Per-block manual queues over HTTP
- Prometheus metrics`,
		Version:       "2.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildPublishCommand())
	rootCmd.AddCommand(buildPredictCommand())
	rootCmd.AddCommand(buildLookupsCommand())

	return rootCmd
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ARTG service",
		Long:  "Start the HTTP management API, the gRPC gate-in ingestion service and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr())
		},
	}
}

func runServe(ctx context.Context, cfg *Config, logOut io.Writer) error {
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	a, err := newApp(cfg, logger, collector)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pool.Start(cfg.Ingest.WorkerCount); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	a.watchResults()

	httpAPI := api.New(api.Options{
		Backend:     a.pipeline,
		Ingest:      a.pool,
		TaskTimeout: cfg.Ingest.TaskTimeout,
		Model:       cfg.Predictor.Model,
		Logger:      logger,
	})
	grpcSrv := server.New(server.Config{
		Pool:            a.pool,
		Hub:             a.hub,
		Metrics:         collector,
		TaskTimeout:     cfg.Ingest.TaskTimeout,
		SendBuffer:      cfg.Ingest.SubscriberBuffer,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Logger:          logger,
	})

	logger.Info("ARTG service starting",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"workers", cfg.Ingest.WorkerCount,
		"predictor", cfg.Predictor.Kind,
		"features", len(a.lookups.FeatureOrder()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpAPI.Run(gctx, cfg.Server.HTTPAddr) })
	g.Go(func() error { return grpcSrv.ListenAndServe(gctx, cfg.Server.GRPCAddr) })
	if cfg.Metrics.Enabled {
		g.Go(func() error { return runMetrics(gctx, cfg.Metrics.Port, logger) })
	}

	err = g.Wait()
	logger.Info("Shutdown signal received, stopping gracefully", "error", err)
	return err
}

func runMetrics(ctx context.Context, port int, logger *slog.Logger) error {
	srv := metrics.NewServer(port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// ============================================================================
// publish
// ============================================================================

func buildPublishCommand() *cobra.Command {
	var file, addr string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish gate-in events to a running server",
		Long:  "Read gate-in events from a JSON file, send them over gRPC and print the notifications that come back",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				addr = dialAddr(cfg.Server.GRPCAddr)
			}
			events, err := readEvents(file)
			if err != nil {
				return err
			}
			return publishEvents(cmd.Context(), addr, events, wait, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file containing one event or an array of events")
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default: server.grpc_addr from config)")
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for notifications")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// dialAddr turns a listen address such as ":50051" into a dialable one.
func dialAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}

// readEvents accepts a single JSON object or an array of objects.
func readEvents(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var events []map[string]any
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("failed to parse event file: %w", err)
		}
		return events, nil
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event file: %w", err)
	}
	return []map[string]any{event}, nil
}

func publishEvents(ctx context.Context, addr string, events []map[string]any, wait time.Duration, out io.Writer) error {
	client, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	stream, err := client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	published := 0
	for _, ev := range events {
		if _, err := client.Publish(ctx, ev); err != nil {
			fmt.Fprintf(out, "publish %v failed: %v\n", ev["truck_id"], err)
			continue
		}
		published++
	}
	fmt.Fprintf(out, "Published %d/%d events to %s\n", published, len(events), addr)

	// Duplicates produce no notification, so this may end on the deadline.
	enc := json.NewEncoder(out)
	for received := 0; received < published; received++ {
		n, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("notification stream failed: %w", err)
		}
		if err := enc.Encode(n); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// predict
// ============================================================================

func buildPredictCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Derive features and predict one event offline",
		Long:  "Run feature derivation and the configured predictor on one gate-in event without starting the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return predictEvent(cmd.Context(), cfg, file, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file containing one gate-in event")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func predictEvent(ctx context.Context, cfg *Config, file string, out, logOut io.Writer) error {
	events, err := readEvents(file)
	if err != nil {
		return err
	}
	if len(events) != 1 {
		return fmt.Errorf("expected exactly one event, got %d", len(events))
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close()

	vector, ev, blockID := a.pipeline.Derive(events[0])
	duration, fellBack := a.pipeline.Predict(ctx, vector)

	fmt.Fprintf(out, "truck_id:   %s\n", ev.TruckID)
	fmt.Fprintf(out, "block:      %s (%d)\n", types.BlockLabel(blockID), blockID)
	fmt.Fprintf(out, "gate_in:    %s\n", ev.GateInTime)
	fmt.Fprintln(out, "features:")
	for i, name := range vector.Names {
		fmt.Fprintf(out, "  %-30s %g\n", name, vector.Values[i])
	}
	fmt.Fprintf(out, "predicted_duration_minutes: %.2f", duration)
	if fellBack {
		fmt.Fprint(out, " (fallback: global mean)")
	}
	fmt.Fprintln(out)
	return nil
}

// ============================================================================
// lookups
// ============================================================================

func buildLookupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookups",
		Short: "Show lookup artifact status",
		Long:  "Load the lookup artifact named in the config and print its metadata and table sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return showLookups(cfg, cmd.OutOrStdout())
		},
	}
}

func showLookups(cfg *Config, out io.Writer) error {
	a, err := newApp(cfg, newDiscardLogger(), nil)
	if err != nil {
		return err
	}
	defer a.close()
	sum := a.lookups.Summary()

	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║           ARTG Lookup Artifact                            ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Artifact:")
	fmt.Fprintf(out, "  ├─ Path:            %s\n", cfg.Lookups.Path)
	fmt.Fprintf(out, "  ├─ Schema Version:  %d\n", sum.SchemaVersion)
	fmt.Fprintf(out, "  ├─ Generated At:    %s\n", sum.GeneratedAt)
	fmt.Fprintf(out, "  ├─ Dataset Size:    %d\n", sum.DatasetSize)
	fmt.Fprintf(out, "  ├─ Shift Type:      %s\n", sum.ShiftType)
	fmt.Fprintf(out, "  ├─ Target Mean:     %.2f min\n", sum.TargetMean)
	fmt.Fprintf(out, "  └─ Features:        %d\n", sum.Features)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Tables:")
	printCounts(out, sum.TableSizes)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Label Encoders:")
	printCounts(out, sum.Encoders)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Predictor:")
	fmt.Fprintf(out, "  └─ %s (%s)\n", cfg.Predictor.Kind, cfg.Predictor.Model)
	return nil
}

func printCounts(out io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		branch := "├─"
		if i == len(keys)-1 {
			branch = "└─"
		}
		fmt.Fprintf(out, "  %s %-26s %d\n", branch, k, counts[k])
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/obs"
)

// buildServeCmd creates the "serve" command that exposes the
// Prometheus metrics and health-check endpoints a deployed Forge
// process runs alongside its sessions/pipelines.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose Prometheus metrics and a health check",
		Long: `Start an HTTP server exposing /metrics (the Prometheus collectors
internal/obs registers), /debug/timeline (the recent diagnostic-event
window), and /healthz, for an operator running Forge as a long-lived
process alongside sessions or pipeline runs driven through other Forge
invocations or an embedding program.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr == "" {
				addr = cfg.Metrics.Addr
			}
			if addr == "" {
				addr = ":9090"
			}
			return serveMetrics(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default: forge.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: metrics.addr, falling back to :9090)")
	return cmd
}

func serveMetrics(ctx context.Context, addr string) error {
	obs.NewMetrics()

	timeline := obs.NewTimeline(0)
	timeline.Attach()
	defer timeline.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/timeline", timeline)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

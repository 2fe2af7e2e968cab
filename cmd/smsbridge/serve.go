package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/spachava753/smsbridge/channel"
)

func newServeCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands as JSON lines on stdin/stdout",
		Long: "Read one JSON command per line from stdin and write one JSON response per\n" +
			"line to stdout. Permission decisions are written as event lines.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.MetricsAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())

			b, err := openBackend(a.cfg, a.logger, reg)
			if err != nil {
				return err
			}
			defer func() {
				if err := b.Close(); err != nil {
					a.logger.Warn().Err(err).Msg("closing backend failed")
				}
			}()

			if metricsAddr != "" {
				srv := metricsServer(metricsAddr, reg)
				go func() {
					a.logger.Info().Str("addr", metricsAddr).Msg("metrics server listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error().Err(err).Msg("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			a.logger.Info().Str("backend", string(a.cfg.Backend)).Msg("serving commands on stdin")
			return channel.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), b.router, a.logger)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	return cmd
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

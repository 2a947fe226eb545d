// Command pvzstub serves an in-memory PVZ service for local smoke runs:
//
//	pvzstub --addr :8080 &
//	slorun run --base-url http://localhost:8080 --duration 30s
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/pvzstub"
)

func main() {
	var (
		addr    string
		latency time.Duration
	)

	cmd := &cobra.Command{
		Use:          "pvzstub",
		Short:        "Serve an in-memory PVZ service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			server := &http.Server{
				Addr:              addr,
				Handler:           pvzstub.New(pvzstub.WithLatency(latency)),
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      5 * time.Second,
				IdleTimeout:       120 * time.Second,
				MaxHeaderBytes:    1 << 20,
				ReadHeaderTimeout: 2 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()

			logger.Info("serving pvz stub", zap.String("addr", addr), zap.Duration("latency", latency))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving on %s: %w", addr, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Delay added to every response")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

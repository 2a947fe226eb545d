package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slorun/slorun/internal/performance/config"
	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/performance/metrics"
	"github.com/slorun/slorun/internal/performance/output"
	"github.com/slorun/slorun/internal/performance/transport"
	"github.com/slorun/slorun/internal/pvz"
)

const defaultSnapshotInterval = time.Second

type runOptions struct {
	configFile  string
	baseURL     string
	transport   string
	duration    string
	metricsAddr string
	outputPath  string
	jsonOutput  bool
	quiet       bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run the setup stage once, then every scenario concurrently at its
configured arrival rate, and evaluate the thresholds over the whole run.

Without --config the built-in PVZ profile is used:
  slorun run --base-url http://localhost:8080

With a configuration file:
  slorun run --config pvz.yaml --transport fasthttp --metrics-addr :9090

The exit code is 1 when setup fails or any threshold is breached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runLoad(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, logger)
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Configuration file (default: built-in PVZ profile)")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Override the target base URL")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Override the transport: http or fasthttp")
	cmd.Flags().StringVar(&opts.duration, "duration", "", "Override the duration of every scenario (e.g. 30s, 2m)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write the JSON report to this file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the JSON report on stdout instead of the summary")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output, show only the verdict")
	return cmd
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig(opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	if opts.configFile != "" {
		loaded, err := config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = pvz.DefaultConfig()
	}

	if opts.baseURL != "" {
		cfg.Settings.BaseURL = opts.baseURL
	}
	if opts.transport != "" {
		cfg.Settings.Transport = opts.transport
	}
	if opts.duration != "" {
		for _, sc := range cfg.Scenarios {
			if sc != nil {
				sc.Duration = opts.duration
			}
		}
	}
	if opts.metricsAddr != "" {
		if cfg.Options == nil {
			cfg.Options = &config.ExecutionOptions{}
		}
		cfg.Options.MetricsAddr = opts.metricsAddr
	}
	return cfg, nil
}

func runLoad(ctx context.Context, stdout, stderr io.Writer, opts *runOptions, logger *zap.Logger) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	plan, err := engine.PlanFromConfig(cfg, pvz.Suite())
	if err != nil {
		return err
	}

	tr, err := transport.New(cfg.TransportConfig())
	if err != nil {
		return err
	}
	if c, ok := tr.(interface{ CloseIdleConnections() }); ok {
		defer c.CloseIdleConnections()
	}

	// The JSON report owns stdout; progress goes to stderr.
	consoleOut := stdout
	if opts.jsonOutput {
		consoleOut = stderr
	}
	console := output.NewConsole(output.ConsoleConfig{
		Writer: consoleOut,
		Quiet:  opts.quiet,
	})

	interval := cfg.SnapshotInterval()
	if interval <= 0 {
		interval = defaultSnapshotInterval
	}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithSnapshots(interval, console.PrintProgress),
	}

	if addr := cfg.Options.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		engineOpts = append(engineOpts, engine.WithExporter(metrics.NewPrometheusExporter(reg)))

		shutdown, err := serveMetrics(addr, reg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	eng, err := engine.New(plan, tr, engineOpts...)
	if err != nil {
		return err
	}

	console.PrintHeader(plan)
	result, runErr := eng.Run(ctx)

	if opts.outputPath != "" {
		if err := writeReportFile(opts.outputPath, output.NewReport(result, runErr)); err != nil {
			logger.Error("failed to write report", zap.String("path", opts.outputPath), zap.Error(err))
		}
	}

	if opts.jsonOutput {
		if err := output.WriteJSON(stdout, output.NewReport(result, runErr)); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	} else if runErr != nil {
		console.PrintSetupFailure(plan.Name, runErr)
	} else {
		console.PrintSummary(result)
	}

	if runErr != nil || result == nil || !result.Passed {
		return errRunFailed
	}
	return nil
}

func writeReportFile(path string, report *output.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := output.WriteJSON(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

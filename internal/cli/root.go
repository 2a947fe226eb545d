package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.1.0"

// errRunFailed is returned when a run completed but did not pass. The summary
// already explains why, so Execute only sets the exit code.
var errRunFailed = errors.New("run failed")

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "slorun",
		Short:   "Open-model load generator for SLO checks",
		Version: version,
		Long: `slorun drives HTTP scenarios at a constant arrival rate, independent of
how fast the service answers, and checks the results against thresholds.
Arrivals that find every worker busy are dropped and counted, never queued.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newDefaultsCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// newLogger returns a development logger with --verbose and a production
// logger limited to warnings otherwise, so the console summary stays readable.
func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/slorun/slorun/internal/performance/config"
	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/pvz"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a test configuration without running it",
		Long: `Load a configuration file, apply defaults and report every problem found:
schema errors, unknown workflows and malformed thresholds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			plan, err := engine.PlanFromConfig(cfg, pvz.Suite())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration %q is valid\n", cfg.Name)
			for _, sc := range plan.Scenarios {
				fmt.Fprintf(out, "  %s: %s at %g/%s for %s\n", sc.Name, sc.Workflow.Name, sc.Rate, sc.TimeUnit, sc.Duration)
			}
			fmt.Fprintf(out, "  %d thresholds\n", len(plan.Thresholds))
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Configuration file")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in PVZ configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := pvz.DefaultConfig()
			config.ApplyDefaults(cfg)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "# workflows: %v\n", pvz.Suite().WorkflowNames())
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/merchload/internal/output"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file without running it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOptionsFromFlags(cmd)
		printEffective, _ := cmd.Flags().GetBool("print")
		noColor, _ := cmd.Flags().GetBool("no-color")

		cfg, err := loadRunConfig(opts, os.LookupEnv)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s configuration is valid (%s, %g per %s for %s)\n",
			output.SuccessIcon(noColor), cfg.Name,
			cfg.Scenario.Rate, cfg.Scenario.TimeUnit, cfg.Scenario.Duration)

		if printEffective {
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	validateCmd.Flags().String("base-url", "", "Shop API base URL")
	validateCmd.Flags().Float64("rate", 0, "Iterations started per time unit")
	validateCmd.Flags().String("duration", "", "Scheduling window")
	validateCmd.Flags().Int("max-vus", 0, "Maximum virtual users")
	validateCmd.Flags().Bool("print", false, "Print the effective configuration as YAML")
	validateCmd.Flags().Bool("no-color", false, "Disable colored output")
}

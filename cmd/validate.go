package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/hoststack/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file, then print the effective
configuration (file values, environment overrides and defaults) as YAML.

Examples:
  hoststack validate -c config.yml
  HOSTSTACK_LOG_LEVEL=debug hoststack validate -c config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"hoststack": cfg}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

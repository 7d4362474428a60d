package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/portjar/internal/config"
)

// NewConfigCommand creates the "config" cobra command.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Print the configuration after defaults, the config file, PORTJAR_*
environment variables and global flags have been applied. Secrets are
redacted.

Examples:
  portjar config
  PORTJAR_CONFIG=./portjar.yaml portjar config --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfig(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	red := cfg.Redacted()

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{"path": path, "config": red}, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}

	data, err := yaml.Marshal(red)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s\n%s", path, data)
	return nil
}

package commands

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/deepaksubu/norbert/errors"
	"github.com/deepaksubu/norbert/internal/config"
)

var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}

		enc := toml.NewEncoder(os.Stdout)
		return enc.Encode(cfg)
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
}

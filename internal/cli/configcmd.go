package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bist-sentinel/internal/config"
)

func newConfigCmd(app *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config template",
		Long: `Write a commented config.toml template into the config directory
(default ~/.config/bist-sentinel). Existing files are not touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			path := filepath.Join(dir, "config.toml")
			if _, err := os.Stat(path); err == nil {
				output.Warning("%s already exists, leaving it alone", path)
				return nil
			}
			if err := config.WriteTemplate(dir); err != nil {
				return err
			}
			output.Success("template written to %s/config.toml", dir)
			output.Dim("set TWELVEDATA_API_KEY (and optionally TELEGRAM_TOKEN/TELEGRAM_CHAT_ID) in the environment or .env")
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config directory in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			NewOutput(cmd).Println(dir)
			return nil
		},
	}

	configCmd.AddCommand(initCmd, pathCmd)
	return configCmd
}

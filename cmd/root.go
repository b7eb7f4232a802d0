package cmd

import (
	"fmt"
	"mirrord/internal/config"
	"mirrord/internal/db"
	"mirrord/internal/logger"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "mirrord",
	Short:        "Mirror source directories onto target directories",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		logger.Init(debug)

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}

		dbCmds := map[string]bool{
			"watch": true, "sync": true,
		}
		if dbCmds[cmd.Name()] && cfg.DBPath != "" {
			if err := db.Init(cfg.DBPath); err != nil {
				return err
			}
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func daemonURL(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.DaemonPort, path)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.mirrord/config.yaml)")
}

package cmd

import (
	"fmt"
	"mirrord/internal/autostart"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the watch daemon on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		watchArgs := []string{"watch"}
		if configFile != "" {
			abs, err := filepath.Abs(configFile)
			if err != nil {
				return fmt.Errorf("invalid config path: %w", err)
			}
			watchArgs = append(watchArgs, "--config", abs)
		}

		as := autostart.New()
		if err := as.Install(execPath, watchArgs...); err != nil {
			return err
		}

		fmt.Println("mirrord daemon registered for autostart")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var stopWait time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Post(daemonURL("/stop"), "application/json", nil)
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("stop rejected: %s", resp.Status)
		}

		if stopWait <= 0 {
			fmt.Println("stop requested")
			return nil
		}

		// the API goes away once every watcher finished its current event
		deadline := time.Now().Add(stopWait)
		for time.Now().Before(deadline) {
			resp, err := http.Get(daemonURL("/status"))
			if err != nil {
				fmt.Println("stopped")
				return nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			time.Sleep(200 * time.Millisecond)
		}

		return fmt.Errorf("daemon still running after %s", stopWait)
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopWait, "wait", 10*time.Second, "how long to wait for the daemon to exit, 0 to return at once")
	rootCmd.AddCommand(stopCmd)
}

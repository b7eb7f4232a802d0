package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"mirrord/internal/model"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "View the state of every watched pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get(daemonURL("/status"))
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		var result struct {
			Pairs []model.PairSnapshot `json:"pairs"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if len(result.Pairs) == 0 {
			fmt.Println("no watched pairs")
			return nil
		}

		fmt.Printf("%-12s %-30s %-30s %-8s %-8s %s\n",
			"STATE", "SOURCE", "TARGET", "SYNCED", "FAILED", "LAST SYNC")

		for _, snap := range result.Pairs {
			lastSync := "-"
			if snap.LastSync != nil {
				lastSync = snap.LastSync.Format("2006-01-02 15:04:05")
			}

			fmt.Printf("%-12s %-30s %-30s %-8d %-8d %s\n",
				snap.State, snap.Source, snap.Target, snap.Synced, snap.Failed, lastSync)
			if !snap.StartedAt.IsZero() {
				fmt.Printf("             uptime: %s\n", time.Since(snap.StartedAt).Round(time.Second))
			}
			if snap.LastError != "" {
				fmt.Printf("             last error: %s\n", snap.LastError)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

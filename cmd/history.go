package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"mirrord/internal/model"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	historyN      int
	historyFailed bool
	historySource string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent sync operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := url.Values{}
		query.Set("n", strconv.Itoa(historyN))
		if historyFailed {
			query.Set("failed", "true")
		}
		if historySource != "" {
			abs, err := filepath.Abs(historySource)
			if err != nil {
				return fmt.Errorf("invalid source path: %w", err)
			}
			query.Set("source", abs)
		}

		resp, err := http.Get(daemonURL("/history") + "?" + query.Encode())
		if err != nil {
			return fmt.Errorf("daemon not running: %w", err)
		}

		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("history unavailable: %s", resp.Status)
		}

		var histories []model.History
		if err := json.NewDecoder(resp.Body).Decode(&histories); err != nil {
			return err
		}

		if len(histories) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		for _, h := range histories {
			status := "✓"
			if h.Status == model.StatusFailed {
				status = "✗"
			}

			path := h.SrcPath
			if path == "" {
				path = h.DstPath
			}

			fmt.Printf("%s [%s] %-9s %-7s %s\n",
				status,
				h.SyncedAt.Format("2006-01-02 15:04:05"),
				h.FileEvent,
				h.Operation,
				path,
			)
			if h.ErrMsg != "" {
				fmt.Printf("    %s\n", h.ErrMsg)
			}
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of history entries to show")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "show failed operations only")
	historyCmd.Flags().StringVar(&historySource, "source", "", "show operations of one source directory only")
	rootCmd.AddCommand(historyCmd)
}

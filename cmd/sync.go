package cmd

import (
	"errors"
	"fmt"
	"mirrord/internal/config"
	"mirrord/internal/db"
	"mirrord/internal/logger"
	"mirrord/internal/model"
	"mirrord/internal/repository"
	"mirrord/internal/syncer/local"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source] [target]",
	Short: "Reconcile directory pairs once and exit",
	Long: "Reconcile the given pair, or every configured pair when no arguments are given, " +
		"then exit. The exit status is non-zero when any entry failed.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return errors.New("expected either no arguments or a source and a target")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		pairs := cfg.Directories
		if len(args) == 2 {
			pairs = []model.DirectoryPair{{Source: args[0], Target: args[1]}}
		}
		if len(pairs) == 0 {
			return errors.New("no directories configured")
		}

		var repo *repository.HistoryRepository
		if cfg.DBPath != "" {
			repo = repository.NewHistoryRepository()
			defer func() {
				_ = db.Close()
			}()
		}

		var synced, failed int
		var errs error
		for _, pair := range pairs {
			if err := config.ValidatePair(pair); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}

			s, err := local.NewSyncer(pair.Source, pair.Target, local.WithIgnoreList(cfg.IgnoreList))
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}

			logger.Log.Info("starting full sync",
				zap.String("src", s.Source()),
				zap.String("dst", s.Target()))

			results, err := s.FullSync()
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}

			for _, r := range results {
				if repo != nil && !(r.Op == model.OpSkip && r.Err == nil) {
					if err := repo.Save(s.Source(), r); err != nil {
						logger.Log.Warn("failed to save history",
							zap.Error(err))
					}
				}

				switch {
				case r.Err != nil:
					failed++
					errs = multierr.Append(errs, r.Err)
				case r.Op != model.OpSkip:
					synced++
				}
			}
		}

		fmt.Printf("done: %d synced, %d failed\n", synced, failed)
		if errs != nil {
			return fmt.Errorf("%d error(s): %w", len(multierr.Errors(errs)), errs)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

package cmd

import (
	"context"
	"mirrord/internal/daemon"
	"mirrord/internal/db"
	"mirrord/internal/logger"
	"mirrord/internal/repository"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Mirror every configured directory pair until stopped",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	var histRepo *repository.HistoryRepository
	if cfg.DBPath != "" {
		histRepo = repository.NewHistoryRepository()
		defer func() {
			_ = db.Close()
		}()

		if cfg.HistoryRetention > 0 {
			pruned, err := histRepo.Prune(time.Now().Add(-cfg.HistoryRetention))
			if err != nil {
				logger.Log.Warn("failed to prune history", zap.Error(err))
			} else if pruned > 0 {
				logger.Log.Info("pruned history",
					zap.Int64("rows", pruned))
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := daemon.NewManager(cfg, daemon.WithHistory(histRepo))
	if err := manager.Start(ctx); err != nil {
		return err
	}

	var srv *daemon.Server
	if cfg.DaemonPort > 0 {
		srv = daemon.NewServer(manager, histRepo, cfg.DaemonPort)
		srv.Start()

		go func() {
			select {
			case <-srv.StopCh():
				logger.Log.Info("stop requested via API")
				stop()
			case <-ctx.Done():
			}
		}()
	}

	logger.Log.Info("mirrord daemon started",
		zap.Int("pairs", len(cfg.Directories)),
		zap.Int("port", cfg.DaemonPort))

	<-ctx.Done()
	logger.Log.Info("shutting down, waiting for watchers")

	// watchers finish the event in progress before returning
	err := manager.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Stop(shutdownCtx); serr != nil {
			logger.Log.Warn("failed to stop daemon server", zap.Error(serr))
		}
	}

	logger.Log.Info("done")
	return err
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

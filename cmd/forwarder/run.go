package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/devricklin/keyword-forwarder/internal/api"
	"github.com/devricklin/keyword-forwarder/internal/biz"
	"github.com/devricklin/keyword-forwarder/internal/conf"
	"github.com/devricklin/keyword-forwarder/internal/data"
	"github.com/devricklin/keyword-forwarder/internal/infra/feishu"
	"github.com/devricklin/keyword-forwarder/internal/logging"
	"github.com/devricklin/keyword-forwarder/internal/service"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the source chats until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.close()

			if app.config.API.Addr != "" {
				apiServer := api.NewServer(app.scheduler, app.repos.Store, app.config.Forward.SourceChatIDs, app.config.API.Addr, app.logger)
				if err := apiServer.Start(); err != nil {
					return fmt.Errorf("failed to start status API: %w", err)
				}
				defer apiServer.Stop()
			}

			app.scheduler.Start(ctx)
			select {
			case <-ctx.Done():
				app.logger.Info().Msg("shutting down")
			case <-app.scheduler.Done():
			}

			if err := app.scheduler.Stop(); err != nil {
				app.logger.Error().Err(err).Msg("stopped on store failure")
				return err
			}
			return nil
		},
	}
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer app.close()

			res, err := app.scheduler.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d duplicates=%d forwarded=%d failed=%d failed_sources=%d\n",
				res.Totals.Scanned, res.Totals.Matched, res.Totals.Duplicates, res.Totals.Forwarded, res.Totals.Failed, res.FailedSources)
			return nil
		},
	}
}

// app holds the wired forwarder
type app struct {
	config    *conf.Config
	logger    *zerolog.Logger
	repos     *data.Repositories
	scheduler *service.PollScheduler
}

// newApp wires clients, repositories, usecases and the scheduler
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if cfg.LookbackGap() {
		logger.Warn().
			Int("interval_minutes", cfg.Poll.IntervalMinutes).
			Int("lookback_minutes", cfg.Poll.LookbackMinutes).
			Msg("lookback shorter than interval, messages between windows will be missed")
	}

	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	repos, err := data.NewRepositories(ctx, feishuClient, cfg.ToStoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create repositories: %w", err)
	}

	matcher := cfg.Matcher()
	usecases := biz.NewUsecases(repos, matcher, cfg.ToGroupConfig(), cfg.ToForwardConfig(), logger)
	scheduler := service.NewPollScheduler(usecases.Forward, repos.Store, cfg.ToSchedulerConfig(), logger)

	logger.Info().
		Strs("sources", cfg.Forward.SourceChatIDs).
		Str("target", cfg.Forward.TargetChatID).
		Strs("keywords", matcher.Keywords()).
		Str("match_mode", string(matcher.Mode())).
		Str("store", cfg.Store.Backend).
		Bool("dry_run", cfg.Forward.DryRun).
		Msg("forwarder configured")

	return &app{config: cfg, logger: logger, repos: repos, scheduler: scheduler}, nil
}

func (a *app) close() {
	if err := a.repos.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close store")
	}
}

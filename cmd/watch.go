package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/engine"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/logging"
)

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"w"},
		Short:   "Build the site and rebuild it on every change",
		Long: `Watch builds the site, then rebuilds whatever each batch of file
changes affects. Failing pages are reported and keep their last good
output; watching continues until interrupted.

Examples:
  slate watch
  slate watch --debounce 100ms`,
		RunE: a.runWatch,
	}

	cmd.Flags().Bool("drafts", false, "publish draft pages")
	cmd.Flags().Duration("debounce", 0, "quiet period that ends a batch of changes (default from config)")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.load(cmd, watchBindings())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	session := engine.NewSession(cfg, logger)
	if err := initialBuild(ctx, cmd, session, logger); err != nil {
		return err
	}

	orchestrator := engine.NewOrchestrator(session, reportPrinter(cmd))
	return watchSession(ctx, cfg, session, orchestrator, logger)
}

func watchBindings() flagBindings {
	return flagBindings{
		"build.drafts":   "drafts",
		"watch.debounce": "debounce",
	}
}

// initialBuild runs the first full build. Entity failures are reported and
// retried on the next change; only a fatal error stops the command.
func initialBuild(ctx context.Context, cmd *cobra.Command, session *engine.Session, logger logging.Logger) error {
	report, err := session.FullBuild(ctx)
	if err != nil {
		if errors.TypeOf(err) == errors.ErrorTypeCacheConsistency {
			return fmt.Errorf("initial build failed: %w", err)
		}
		logger.Warn(ctx, err, "initial build failed, retrying on next change")
		return nil
	}
	reportPrinter(cmd)(report)
	return nil
}

func reportPrinter(cmd *cobra.Command) engine.ReportFunc {
	return func(report *engine.BuildReport) {
		printReport(cmd.OutOrStdout(), report)
		printErrors(cmd.ErrOrStderr(), report)
	}
}

func watchSession(ctx context.Context, cfg *config.Config, session *engine.Session, orchestrator *engine.Orchestrator, logger logging.Logger) error {
	batches, err := session.Watch(ctx)
	if err != nil {
		return err
	}
	logger.Info(ctx, "watching for changes", "root", cfg.SourceDir(""), "debounce", cfg.Watch.Debounce)

	if err := orchestrator.Run(ctx, batches); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

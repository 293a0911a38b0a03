package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/slate/internal/engine"
	"github.com/conneroisu/slate/internal/monitoring"
	"github.com/conneroisu/slate/internal/server"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Watch the site and preview it with live reload",
		Long: `Serve builds and watches the site like watch does, and serves the
latest committed output over HTTP. Browsers reload when a page they show
is rebuilt; failing pages raise an error overlay.

Server endpoints live under /_slate:
  /_slate/ws        live-reload websocket
  /_slate/errors    current build errors (HTML, or JSON with ?format=json)
  /_slate/rebuild   POST to force a full rebuild
  /_slate/metrics   Prometheus metrics

Examples:
  slate serve
  slate serve --port 3000 --drafts`,
		RunE: a.runServe,
	}

	cmd.Flags().Bool("drafts", false, "publish draft pages")
	cmd.Flags().Duration("debounce", 0, "quiet period that ends a batch of changes (default from config)")
	cmd.Flags().String("host", "127.0.0.1", "address to listen on")
	cmd.Flags().IntP("port", "p", 8000, "port to listen on")
	cmd.Flags().Bool("live-reload", true, "inject the live-reload script into pages")
	cmd.Flags().String("encoding", "br", "preferred content encoding (br, gzip, deflate, identity)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	bindings := watchBindings()
	bindings["serve.host"] = "host"
	bindings["serve.port"] = "port"
	bindings["serve.live_reload"] = "live-reload"
	bindings["serve.preferred_encoding"] = "encoding"

	cfg, logger, err := a.load(cmd, bindings)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	recorder := monitoring.NewPrometheusRecorder(nil)
	session := engine.NewSession(cfg, logger, engine.WithRecorder(recorder))
	if err := initialBuild(ctx, cmd, session, logger); err != nil {
		return err
	}

	orchestrator := engine.NewOrchestrator(session, reportPrinter(cmd))
	srv := server.New(cfg, session, logger,
		server.WithMetricsHandler(recorder.Handler()),
		server.WithOrchestrator(orchestrator))
	orchestrator.OnReport(srv.NotifyReload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return watchSession(gctx, cfg, session, orchestrator, logger)
	})
	return g.Wait()
}

// Package cmd provides the command-line interface for slate.
//
// Configuration System:
//
//	Settings are read, highest priority first, from:
//	1. Command-line flags (--source, --port, etc.)
//	2. Environment variables (SLATE_SITE_TITLE, SLATE_SERVE_PORT, ...)
//	3. The configuration file: --config, then SLATE_CONFIG_FILE, then
//	   .slate.yml in the working directory
//	4. Built-in defaults
//
// Environment variables follow the SLATE_<SECTION>_<OPTION> pattern.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/slate/internal/config"
	"github.com/conneroisu/slate/internal/engine"
	"github.com/conneroisu/slate/internal/errors"
	"github.com/conneroisu/slate/internal/logging"
)

// app holds the state shared by one command tree.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// flagBindings maps configuration keys onto flag names.
type flagBindings map[string]string

// NewRootCommand builds the slate command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "slate",
		Short: "An incremental static-site builder",
		Long: `slate builds a static site from markdown and template content, data
files, stylesheets and static assets. It tracks the dependencies between
them, so after the first build only the pages a change affects are rebuilt.

Quick Start:
  slate init              Create a new site in the current directory
  slate build             Build the site into ./public
  slate watch             Build, then rebuild on every change
  slate serve             Watch and preview with live reload

Command Aliases:
  init (i), build (b), watch (w), serve (s)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is .slate.yml, can also use SLATE_CONFIG_FILE env var)")
	pf.StringP("source", "s", ".", "source root directory")
	pf.StringP("output", "o", "public", "output directory")
	pf.StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	a.bind(pf, flagBindings{
		"source.root": "source",
		"output.dir":  "output",
		"log.level":   "log-level",
		"log.format":  "log-format",
	})

	root.AddCommand(
		a.initCommand(),
		a.buildCommand(),
		a.watchCommand(),
		a.serveCommand(),
		a.versionCommand(),
	)
	return root
}

// Execute runs the command line until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initConfig points viper at the configuration file and the environment.
func (a *app) initConfig() error {
	v := a.v
	switch env := os.Getenv("SLATE_CONFIG_FILE"); {
	case a.cfgFile != "":
		v.SetConfigFile(a.cfgFile)
	case env != "":
		v.SetConfigFile(env)
	default:
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".slate")
	}

	v.SetEnvPrefix("SLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	config.SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	return nil
}

func (a *app) bind(flags *pflag.FlagSet, bindings flagBindings) {
	for key, name := range bindings {
		if f := flags.Lookup(name); f != nil {
			_ = a.v.BindPFlag(key, f)
		}
	}
}

// load binds a command's own flags and returns the resulting
// configuration with a logger writing to the command's error stream.
func (a *app) load(cmd *cobra.Command, bindings flagBindings) (*config.Config, logging.Logger, error) {
	a.bind(cmd.Flags(), bindings)

	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug(cmd.Context(), "using config file", "path", used)
	}
	return cfg, logger, nil
}

func printReport(w io.Writer, report *engine.BuildReport) {
	if report == nil {
		return
	}
	fmt.Fprintln(w, report.String())
}

func printErrors(w io.Writer, report *engine.BuildReport) {
	if !report.HasErrors() {
		return
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s: %s\n", e.ID, e.Message())
	}
}

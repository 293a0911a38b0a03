package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/slate/internal/engine"
)

func (a *app) buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "build",
		Aliases: []string{"b"},
		Short:   "Build the site once",
		Long: `Build scans the source tree, renders every page, stylesheet and asset,
and writes the finished output tree.

Pages that fail are reported and the rest of the site is still written;
the command then exits with a non-zero status.

Examples:
  slate build
  slate build --drafts -o dist
  slate build --verify`,
		RunE: a.runBuild,
	}

	cmd.Flags().Bool("drafts", false, "publish draft pages")
	cmd.Flags().IntP("workers", "w", 0, "render workers (0 uses every CPU)")
	cmd.Flags().Bool("clean", true, "remove files the build did not produce from the output directory")
	cmd.Flags().Bool("verify", false, "check every artifact against its dependencies after building")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.load(cmd, flagBindings{
		"build.drafts":  "drafts",
		"build.workers": "workers",
		"output.clean":  "clean",
	})
	if err != nil {
		return err
	}

	session := engine.NewSession(cfg, logger)
	report, err := session.FullBuild(cmd.Context())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	printReport(cmd.OutOrStdout(), report)

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		if err := session.Verify(); err != nil {
			return err
		}
	}

	if report.HasErrors() {
		printErrors(cmd.ErrOrStderr(), report)
		return fmt.Errorf("%d of %d entities failed to build", len(report.Errors), report.Affected)
	}
	return nil
}

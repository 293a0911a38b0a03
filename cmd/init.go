package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/slate/internal/scaffolding"
)

func (a *app) initCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init [directory]",
		Aliases: []string{"i"},
		Short:   "Create a new site",
		Long: `Init writes a configuration file, a layout with a navigation partial, a
stylesheet and some sample content into the directory (default: the
current one).

Examples:
  slate init
  slate init blog --title "My Blog"
  slate init --minimal`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runInit,
	}

	cmd.Flags().String("title", "", "site title (default: the directory name)")
	cmd.Flags().String("base-url", "/", "base URL the site is published under")
	cmd.Flags().Bool("minimal", false, "skip the sample posts, listing page and data file")
	cmd.Flags().Bool("force", false, "overwrite existing files")
	return cmd
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	title, _ := cmd.Flags().GetString("title")
	baseURL, _ := cmd.Flags().GetString("base-url")
	minimal, _ := cmd.Flags().GetBool("minimal")
	force, _ := cmd.Flags().GetBool("force")

	created, err := scaffolding.NewSiteGenerator(dir, scaffolding.Options{
		Title:   title,
		BaseURL: baseURL,
		Minimal: minimal,
		Force:   force,
	}).Generate()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, rel := range created {
		fmt.Fprintf(out, "  created %s\n", rel)
	}
	fmt.Fprintf(out, "\nNext: cd %s && slate serve\n", dir)
	return nil
}

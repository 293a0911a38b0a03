package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/conneroisu/slate/internal/version"
)

func (a *app) versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version information for slate including:

- Semantic version number
- Git commit hash
- Build timestamp
- Go version and target platform
- Cache schema version

Examples:
  slate version
  slate version --detailed
  slate version --format json`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runVersion,
	}

	cmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	cmd.Flags().Bool("short", false, "show short version only")
	cmd.Flags().Bool("detailed", false, "show detailed version information")
	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	short, _ := cmd.Flags().GetBool("short")
	detailed, _ := cmd.Flags().GetBool("detailed")
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		return outputVersionJSON(out)
	case "text":
		switch {
		case short:
			fmt.Fprintln(out, version.GetShortVersion())
		case detailed:
			outputVersionDetailed(out)
		default:
			fmt.Fprintf(out, "slate %s\n", version.GetShortVersion())
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
	}
}

func outputVersionDetailed(out io.Writer) {
	fmt.Fprintln(out, version.GetDetailedVersion())
	if version.IsRelease() {
		fmt.Fprintln(out, "Build type: release")
	} else {
		fmt.Fprintln(out, "Build type: development")
	}
}

func outputVersionJSON(out io.Writer) error {
	info := version.GetBuildInfo()
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		*version.BuildInfo
		IsRelease bool `json:"is_release"`
	}{info, version.IsRelease()})
}

package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/internal/update"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// releasesURL is swapped in tests.
var releasesURL = update.ReleasesURL

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersionInfo(cmd.OutOrStdout())
			if !check {
				return nil
			}
			p := printer(cmd)
			if Version == "dev" {
				p.Info("development build; skipping update check")
				return nil
			}
			res, err := update.Check(cmd.Context(), nil, releasesURL, Version)
			if err != nil {
				return err
			}
			if !res.Newer {
				p.Success("onyx %s is up to date", res.Current)
				return nil
			}
			p.Warning("A new version is available: %s (current %s)", res.Latest, res.Current)
			p.Info("Download: %s", update.DownloadURL(res.Latest))
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check for a newer release")
	return cmd
}

func printVersionInfo(w io.Writer) {
	fmt.Fprintf(w, "onyx version %s\n", Version)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Go Version: %s\n", runtime.Version())
	fmt.Fprintf(w, "  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

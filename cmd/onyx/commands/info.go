package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newInfoCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the resolved connection settings",
		Long:  "Resolve credentials the way the client library does and show where each came from",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := db.Config()
			if err != nil {
				return err
			}
			p := printer(cmd)
			if g.json {
				return p.JSON(map[string]any{
					"databaseId": res.DatabaseID,
					"baseUrl":    res.BaseURL,
					"apiKey":     mask(res.APIKey),
					"sources":    res.Sources,
				})
			}

			var b strings.Builder
			b.WriteString("# Onyx connection\n\n")
			b.WriteString("| Setting | Value |\n|---|---|\n")
			fmt.Fprintf(&b, "| Database | `%s` |\n", res.DatabaseID)
			fmt.Fprintf(&b, "| Base URL | %s |\n", res.BaseURL)
			fmt.Fprintf(&b, "| API key | `%s` |\n", mask(res.APIKey))
			fmt.Fprintf(&b, "| Retries | %d (initial delay %s) |\n", res.MaxRetries, res.RetryInitialDelay)
			b.WriteString("\n## Sources\n\n")
			for _, s := range res.Sources {
				fmt.Fprintf(&b, "- %s\n", s)
			}
			return p.Markdown(b.String())
		},
	}
}

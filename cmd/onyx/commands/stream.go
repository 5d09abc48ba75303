package commands

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/pkg/onyx"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

func newStreamCommand(g *globalFlags) *cobra.Command {
	var (
		where          string
		includeResults bool
		keepAlive      bool
		watchConfig    bool
	)
	cmd := &cobra.Command{
		Use:   "stream <table>",
		Short: "Print changes to a table until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()
			p := printer(cmd)

			if watchConfig {
				res, err := db.Config()
				if err != nil {
					return err
				}
				resolver := newResolver()
				w, err := resolver.Watch(resolver.CandidatePaths(res.DatabaseID, g.configPath), func(path string) {
					p.Warning("credentials changed in %s; new requests use them", path)
				})
				if err != nil {
					return err
				}
				defer w.Stop()
			}

			var mu sync.Mutex
			b := db.From(args[0]).OnItem(func(rec onyx.Record, action query.StreamAction) {
				mu.Lock()
				defer mu.Unlock()
				_ = p.JSON(map[string]any{"action": action, "entity": rec})
			})
			if err := applyWhere(b, where); err != nil {
				return err
			}
			handle, err := b.Stream(cmd.Context(), query.StreamOptions{
				IncludeQueryResults: includeResults,
				KeepAlive:           keepAlive,
			})
			if err != nil {
				return err
			}
			defer handle.Cancel()

			p.Info("streaming %s; press Ctrl+C to stop", args[0])
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "filter expression")
	cmd.Flags().BoolVar(&includeResults, "include-query-results", false, "emit current matches first")
	cmd.Flags().BoolVar(&keepAlive, "keep-alive", true, "ask the server for keep-alive records")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload credentials when the credentials file changes")
	return cmd
}

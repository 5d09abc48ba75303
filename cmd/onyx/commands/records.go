package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/pkg/config"
	"github.com/onyx-dev/onyx-database-go/pkg/onyx"
)

func newGetCommand(g *globalFlags) *cobra.Command {
	var (
		resolvers []string
		partition string
	)
	cmd := &cobra.Command{
		Use:   "get <table> <id>",
		Short: "Fetch one record by primary key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.FindByID(cmd.Context(), args[0], args[1],
				onyx.WithResolvers(resolvers...), onyx.WithPartition(partition))
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%s %q not found", args[0], args[1])
			}
			return printer(cmd).JSON(rec)
		},
	}
	cmd.Flags().StringSliceVar(&resolvers, "resolve", nil, "relationship resolvers to include")
	cmd.Flags().StringVar(&partition, "partition", "", "partition of the record")
	return cmd
}

func newSaveCommand(g *globalFlags) *cobra.Command {
	var (
		data      string
		file      string
		cascade   []string
		partition string
	)
	cmd := &cobra.Command{
		Use:   "save <table>",
		Short: "Save one record or an array of records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(config.AppFs, data, file, stdin)
			if err != nil {
				return err
			}
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()

			save := db.PrepareSave(args[0]).Cascade(cascade...).InPartition(partition)
			p := printer(cmd)
			if isArray(payload) {
				saved, err := save.Many(cmd.Context(), payload)
				if err != nil {
					return err
				}
				p.Success("Saved %d records to %s", len(saved), args[0])
				return nil
			}
			saved, err := save.One(cmd.Context(), payload)
			if err != nil {
				return err
			}
			return p.JSON(saved)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON payload")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with the JSON payload, - for stdin")
	cmd.Flags().StringSliceVar(&cascade, "cascade", nil, "relationships to save with the record")
	cmd.Flags().StringVar(&partition, "partition", "", "partition of the record")
	return cmd
}

func newDeleteCommand(g *globalFlags) *cobra.Command {
	var (
		where         string
		relationships []string
		partition     string
	)
	cmd := &cobra.Command{
		Use:   "delete <table> [id]",
		Short: "Delete a record by id, or every record matching --where",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && where == "" {
				return fmt.Errorf("pass an id or --where")
			}
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()
			p := printer(cmd)

			if len(args) == 2 {
				if _, err := db.Delete(cmd.Context(), args[0], args[1],
					onyx.WithRelationships(relationships...), onyx.WithPartition(partition)); err != nil {
					return err
				}
				p.Success("Deleted %s %s", args[0], args[1])
				return nil
			}

			b := db.From(args[0]).InPartition(partition)
			if err := applyWhere(b, where); err != nil {
				return err
			}
			n, err := b.Delete(cmd.Context())
			if err != nil {
				return err
			}
			p.Success("Deleted %d records from %s", n, args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "filter expression for a bulk delete")
	cmd.Flags().StringSliceVar(&relationships, "relationships", nil, "relationships to delete along with the record")
	cmd.Flags().StringVar(&partition, "partition", "", "partition of the records")
	return cmd
}

func isArray(payload []byte) bool {
	for _, c := range payload {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		}
		return false
	}
	return false
}

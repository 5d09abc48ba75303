package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onyx-dev/onyx-database-go/pkg/onyx"
	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

type queryFlags struct {
	where     string
	fields    []string
	resolvers []string
	sort      []string
	groupBy   []string
	distinct  bool
	limit     int
	pageSize  int
	nextPage  string
	partition string
	all       bool
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.where, "where", "w", "", `filter, e.g. 'age >= 21 and name like "A%"'`)
	fl.StringSliceVar(&f.fields, "fields", nil, "fields to return")
	fl.StringSliceVar(&f.resolvers, "resolve", nil, "relationship resolvers to include")
	fl.StringSliceVar(&f.sort, "sort", nil, "sort keys as field[:asc|desc]")
	fl.StringSliceVar(&f.groupBy, "group-by", nil, "group by fields")
	fl.BoolVar(&f.distinct, "distinct", false, "drop duplicate rows")
	fl.IntVar(&f.limit, "limit", 0, "maximum number of records")
	fl.IntVar(&f.pageSize, "page-size", 0, "records per page")
	fl.StringVar(&f.nextPage, "next-page", "", "continuation cursor from a previous page")
	fl.StringVar(&f.partition, "partition", "", "partition to query")
	fl.BoolVar(&f.all, "all", false, "follow every page")
}

func (f *queryFlags) build(db *onyx.DB, table string) (*query.Builder[onyx.Record], error) {
	b := db.From(table).
		SelectFields(f.fields...).
		Resolve(f.resolvers...).
		GroupBy(f.groupBy...).
		InPartition(f.partition).
		PageSize(f.pageSize).
		NextPage(f.nextPage)
	if err := applyWhere(b, f.where); err != nil {
		return nil, err
	}
	sorts, err := parseSorts(f.sort)
	if err != nil {
		return nil, err
	}
	b.OrderBy(sorts...)
	if f.distinct {
		b.Distinct()
	}
	if f.limit > 0 {
		b.Limit(f.limit)
	}
	return b, nil
}

func newQueryCommand(g *globalFlags) *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "List records of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()

			b, err := f.build(db, args[0])
			if err != nil {
				return err
			}
			results, err := b.List(cmd.Context())
			if err != nil {
				return err
			}

			records := results.Records
			if f.all {
				if records, err = results.GetAllRecords(cmd.Context()); err != nil {
					return err
				}
			}

			p := printer(cmd)
			if g.json {
				out := map[string]any{"records": records}
				if !f.all && results.HasNextPage() {
					out["nextPage"] = results.NextPage
				}
				return p.JSON(out)
			}
			if err := p.Records(records, f.fields); err != nil {
				return err
			}
			if !f.all && results.HasNextPage() {
				p.Info("more records: --next-page %s", results.NextPage)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newCountCommand(g *globalFlags) *cobra.Command {
	var where, partition string
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "Count records of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := g.open()
			if err != nil {
				return err
			}
			defer db.Close()

			b := db.From(args[0]).InPartition(partition)
			if err := applyWhere(b, where); err != nil {
				return err
			}
			n, err := b.Count(cmd.Context())
			if err != nil {
				return err
			}
			if g.json {
				return printer(cmd).JSON(map[string]int{"count": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "filter expression")
	cmd.Flags().StringVar(&partition, "partition", "", "partition to count")
	return cmd
}

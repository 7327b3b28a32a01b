package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/coffersTech/nanofilter/client"
	"github.com/coffersTech/nanofilter/internal/cluster"
	"github.com/spf13/cobra"
)

var queryOpts struct {
	nodes     []string
	token     string
	filter    string
	q         string
	limit     int
	count     bool
	histogram time.Duration
}

var queryCmd = &cobra.Command{
	Use:   "query [flags] collection",
	Short: "Query a collection on one or more running servers",
	Example: `  nanofilter query --node http://a:8088 --node http://b:8088 -f '{"status":"failed"}' orders
  nanofilter query --q 'level:ERROR' --histogram 5m app_logs`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	f := queryCmd.Flags()
	f.StringSliceVar(&queryOpts.nodes, "node", []string{"http://localhost:8088"}, "server URL, repeatable")
	f.StringVar(&queryOpts.token, "token", os.Getenv("NANOFILTER_TOKEN"), "bearer token")
	f.StringVarP(&queryOpts.filter, "filter", "f", "", "filter document as JSON")
	f.StringVarP(&queryOpts.q, "q", "q", "", "NanoQL expression")
	f.IntVarP(&queryOpts.limit, "limit", "n", 100, "maximum rows")
	f.BoolVar(&queryOpts.count, "count", false, "print only the number of matches")
	f.DurationVar(&queryOpts.histogram, "histogram", 0, "print match counts per bucket of this size")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	spec, err := filterSpec(queryOpts.filter, "")
	if err != nil {
		return errors.New(describeError(err))
	}
	q := client.Query{Filter: spec, Q: queryOpts.q, Limit: queryOpts.limit}
	agg := cluster.NewAggregator(queryOpts.nodes, queryOpts.token, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	switch {
	case queryOpts.count:
		n, err := agg.Count(cmd.Context(), args[0], q)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, n)
	case queryOpts.histogram > 0:
		points, err := agg.Histogram(cmd.Context(), args[0], q, queryOpts.histogram)
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Fprintf(out, "%s\t%d\n", time.Unix(0, p.Time).UTC().Format(time.RFC3339), p.Count)
		}
	default:
		rows, err := agg.Find(cmd.Context(), args[0], q)
		if err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Fprintf(out, "%s\t%s\t%s\n", r.ID, time.Unix(0, r.Timestamp).UTC().Format(time.RFC3339Nano), r.Doc)
		}
	}
	return nil
}

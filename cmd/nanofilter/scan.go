package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/engine"
	"github.com/coffersTech/nanofilter/internal/storage"
	"github.com/spf13/cobra"
)

var scanOpts struct {
	filter  string
	q       string
	limit   int
	count   bool
	workers int
}

var scanCmd = &cobra.Command{
	Use:   "scan [flags] file...",
	Short: "Print the documents in data files that match a filter",
	Long: `Reads JSON lines, JSON arrays or MessagePack streams (optionally zstd
compressed, "-" for stdin) and prints matching documents as JSON lines.`,
	Example: `  nanofilter scan --filter '{"status":"active","age":{"$gte":21}}' users.jsonl
  nanofilter scan --q 'level:error AND service IN (api, worker)' --count logs.jsonl.zst`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanOpts.filter, "filter", "f", "", "filter document as JSON")
	f.StringVarP(&scanOpts.q, "q", "q", "", "NanoQL expression, ANDed with --filter")
	f.IntVarP(&scanOpts.limit, "limit", "n", 0, "stop after this many matches (0 = all)")
	f.BoolVar(&scanOpts.count, "count", false, "print only the number of matches")
	f.IntVar(&scanOpts.workers, "workers", 0, "matcher goroutines (0 = GOMAXPROCS)")
}

func runScan(cmd *cobra.Command, args []string) error {
	spec, err := filterSpec(scanOpts.filter, scanOpts.q)
	if err != nil {
		return errors.New(describeError(err))
	}
	pred, err := filter.CompileValue(spec)
	if err != nil {
		return errors.New(describeError(err))
	}

	matcher, err := engine.NewMatcher(scanOpts.workers, 0, slog.Default())
	if err != nil {
		return err
	}
	defer matcher.Release()

	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	var matched int
	for _, path := range args {
		docs, err := storage.ReadDocuments(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		hits, err := matcher.Match(cmd.Context(), pred, docs)
		if err != nil {
			return err
		}
		for i, ok := range hits {
			if !ok {
				continue
			}
			matched++
			if !scanOpts.count {
				fmt.Fprintln(out, docs[i])
			}
			if scanOpts.limit > 0 && matched >= scanOpts.limit {
				return finishScan(out, matched)
			}
		}
	}
	return finishScan(out, matched)
}

func finishScan(out *bufio.Writer, matched int) error {
	if scanOpts.count {
		fmt.Fprintln(out, matched)
	}
	return nil
}

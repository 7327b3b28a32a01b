package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/spf13/cobra"
)

var compileOpts struct {
	q      string
	asJSON bool
}

var compileCmd = &cobra.Command{
	Use:   "compile [filter-json]",
	Short: "Validate a filter and print its predicate tree",
	Example: `  nanofilter compile '{"tags":{"$in":["a","b"]},"age":{"$gt":18,"$lt":65}}'
  nanofilter compile --q 'status:active NOT role:admin'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) == 1 {
			raw = args[0]
		}
		spec, err := filterSpec(raw, compileOpts.q)
		if err != nil {
			return errors.New(describeError(err))
		}
		pred, err := filter.CompileValue(spec)
		if err != nil {
			return errors.New(describeError(err))
		}

		w := cmd.OutOrStdout()
		if compileOpts.asJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"filter": spec, "size": pred.Size(), "tree": pred.String()})
		}
		fmt.Fprintf(w, "filter: %s\nnodes:  %d\n%s\n", spec, pred.Size(), pred)
		return nil
	},
}

func init() {
	compileCmd.Flags().StringVarP(&compileOpts.q, "q", "q", "", "NanoQL expression, ANDed with the filter")
	compileCmd.Flags().BoolVar(&compileOpts.asJSON, "json", false, "print the result as JSON")
}

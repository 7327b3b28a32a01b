package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/coffersTech/nanofilter/filter"
	"github.com/coffersTech/nanofilter/internal/storage"
	"github.com/coffersTech/nanofilter/value"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var shellCmd = &cobra.Command{
	Use:   "shell [file...]",
	Short: "Interactive filter shell over documents loaded into memory",
	Long: `Loads the given data files and reads filters interactively. A line
starting with "{" is a JSON filter, any other line is NanoQL. Type .help for
the dot commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sh := newShell(cmd.OutOrStdout())
		for _, path := range args {
			if err := sh.load(path); err != nil {
				return err
			}
		}
		return sh.run(cmd.Context())
	},
}

const shellHelp = `  {"field": ...}      run a JSON filter
  field:value AND ...  run a NanoQL expression
  .count <filter>      count matches instead of printing them
  .explain <filter>    print the compiled predicate tree
  .load <file>         load more documents
  .limit <n>           print at most n matches (0 = all)
  .stats               show loaded documents and cache counters
  .help                this text
  .quit                leave the shell`

type shell struct {
	out   io.Writer
	docs  []value.Value
	cache *filter.Cache
	limit int
}

func newShell(out io.Writer) *shell {
	return &shell{out: out, cache: filter.NewCache(256), limit: 20}
}

func (sh *shell) load(path string) error {
	docs, err := storage.ReadDocuments(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	sh.docs = append(sh.docs, docs...)
	fmt.Fprintf(sh.out, "loaded %d documents from %s\n", len(docs), path)
	return nil
}

func (sh *shell) run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(in string) []string {
		var out []string
		for _, c := range []string{".count ", ".explain ", ".load ", ".limit ", ".stats", ".help", ".quit"} {
			if strings.HasPrefix(c, in) {
				out = append(out, c)
			}
		}
		return out
	})

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(history); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(sh.out, "nanofilter %s, %d documents. Type .help for help.\n", version, len(sh.docs))
	for ctx.Err() == nil {
		input, err := line.Prompt("nanofilter> ")
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(sh.out)
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := sh.exec(input)
		if err != nil {
			fmt.Fprintln(sh.out, "error:", describeError(err))
		}
		if quit {
			return nil
		}
	}
	return nil
}

// exec runs one shell line and reports whether the shell should exit.
func (sh *shell) exec(input string) (bool, error) {
	if !strings.HasPrefix(input, ".") {
		return false, sh.find(input, false)
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case ".quit", ".exit":
		return true, nil
	case ".help":
		fmt.Fprintln(sh.out, shellHelp)
	case ".count":
		return false, sh.find(arg, true)
	case ".explain":
		pred, spec, err := sh.compile(arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(sh.out, "filter: %s\nnodes:  %d\n%s\n", spec, pred.Size(), pred)
	case ".load":
		if arg == "" {
			return false, errors.New(".load needs a file")
		}
		return false, sh.load(arg)
	case ".limit":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return false, fmt.Errorf("invalid limit %q", arg)
		}
		sh.limit = n
	case ".stats":
		st := sh.cache.Stats()
		fmt.Fprintf(sh.out, "documents: %d\ncached filters: %d (hits %d, misses %d)\n",
			len(sh.docs), st.Entries, st.Hits, st.Misses)
	default:
		return false, fmt.Errorf("unknown command %s, try .help", cmd)
	}
	return false, nil
}

func (sh *shell) compile(input string) (*filter.Predicate, value.Value, error) {
	var spec value.Value
	var err error
	if strings.HasPrefix(input, "{") {
		spec, err = filterSpec(input, "")
	} else {
		spec, err = filterSpec("", input)
	}
	if err != nil {
		return nil, spec, err
	}
	pred, err := sh.cache.CompileValue(spec)
	return pred, spec, err
}

func (sh *shell) find(input string, countOnly bool) error {
	pred, _, err := sh.compile(input)
	if err != nil {
		return err
	}

	var n int
	for _, d := range sh.docs {
		if !pred.Match(d) {
			continue
		}
		n++
		if !countOnly && (sh.limit == 0 || n <= sh.limit) {
			fmt.Fprintln(sh.out, d)
		}
	}
	if countOnly || (sh.limit > 0 && n > sh.limit) {
		fmt.Fprintf(sh.out, "%d matching documents\n", n)
	}
	return nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nanofilter_history"
	}
	return filepath.Join(home, ".nanofilter_history")
}

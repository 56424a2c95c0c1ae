package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/spf13/cobra"

	"github.com/ayusman/fallguard/internal/store"
)

type fallsOptions struct {
	dbPath string
	since  string
	limit  int
	asJSON bool
}

func newFallsCmd() *cobra.Command {
	var opts fallsOptions

	cmd := &cobra.Command{
		Use:   "falls",
		Short: "List recorded falls, newest first",
		Example: `  fallguard falls --limit 10
  fallguard falls --since 2024-05-01T00:00:00Z --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dbPath == "" {
				opts.dbPath = defaultDBPath()
			}
			return listFalls(opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", "", "database path (default ~/.fallguard/fallguard.db)")
	f.StringVar(&opts.since, "since", "", "only falls after this ISO 8601 time")
	f.IntVarP(&opts.limit, "limit", "n", 20, "maximum number of falls (0 for all)")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func listFalls(opts fallsOptions, out io.Writer) error {
	if _, err := os.Stat(opts.dbPath); err != nil {
		return fmt.Errorf("no database at %s: %w", opts.dbPath, err)
	}

	st, err := store.New(opts.dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	var falls []*store.FallEvent
	if opts.since != "" {
		since, err := iso8601.ParseString(opts.since)
		if err != nil {
			return fmt.Errorf("invalid --since %q: %w", opts.since, err)
		}
		falls, err = st.Falls().ListSince(since, opts.limit)
		if err != nil {
			return err
		}
	} else {
		falls, err = st.Falls().List(opts.limit)
		if err != nil {
			return err
		}
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(falls)
	}

	if len(falls) == 0 {
		fmt.Fprintln(out, "No falls recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROBABILITY\tPEAK\tBACKEND\tID")
	for _, f := range falls {
		fmt.Fprintf(w, "%s\t%.0f%%\t%.1f\t%s\t%s\n",
			f.OccurredAt.Local().Format(time.DateTime),
			f.Probability*100, f.PeakMagnitude, f.Backend, f.ID)
	}
	return w.Flush()
}

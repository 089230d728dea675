package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ansel1/merry"
	"github.com/spf13/cobra"

	"github.com/sarchlab/nmoesi/datarecording"
	"github.com/sarchlab/nmoesi/mem/trace"
)

var reportCmd = &cobra.Command{
	Use:   "report [database]",
	Short: "Summarize the accesses and statistics of a recorded run.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]
		if !strings.HasSuffix(file, ".sqlite3") {
			file += ".sqlite3"
		}

		reader := datarecording.NewReader(file)
		defer reader.Close()

		module, _ := cmd.Flags().GetString("module")

		rep, err := buildReport(cmd.Context(), reader, module)
		if err != nil {
			return err
		}

		rep.print(cmd.OutOrStdout())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("module", "",
		"Only report the accesses of this module.")
}

type accessSummary struct {
	Module    string
	Kind      string
	Count     int
	Coalesced int
	Retried   int
	Total     float64
	Max       float64
}

func (s accessSummary) average() float64 {
	if s.Count == 0 {
		return 0
	}

	return s.Total / float64(s.Count)
}

type report struct {
	accesses []accessSummary
	stats    []*trace.StatEntry
}

func buildReport(
	ctx context.Context,
	reader datarecording.DataReader,
	module string,
) (*report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reader.MapTable(trace.AccessTable, trace.AccessEntry{})
	reader.MapTable(trace.StatTable, trace.StatEntry{})

	params := datarecording.QueryParams{OrderBy: "Module, Kind"}
	if module != "" {
		params.Where = "Module = ?"
		params.Args = []any{module}
	}

	rows, _, err := reader.Query(ctx, trace.AccessTable, params)
	if err != nil {
		return nil, merry.Prepend(err, "reading accesses")
	}

	summaries := map[[2]string]*accessSummary{}

	for _, row := range rows {
		a := row.(*trace.AccessEntry)
		key := [2]string{a.Module, a.Kind}

		s, found := summaries[key]
		if !found {
			s = &accessSummary{Module: a.Module, Kind: a.Kind}
			summaries[key] = s
		}

		latency := a.EndTime - a.StartTime
		s.Count++
		s.Total += latency

		if latency > s.Max {
			s.Max = latency
		}

		if a.Coalesced {
			s.Coalesced++
		}

		if a.Retried {
			s.Retried++
		}
	}

	rep := &report{}
	for _, s := range summaries {
		rep.accesses = append(rep.accesses, *s)
	}

	sort.Slice(rep.accesses, func(i, j int) bool {
		a, b := rep.accesses[i], rep.accesses[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}

		return a.Kind < b.Kind
	})

	params.OrderBy = "Module, Counter"

	stats, _, err := reader.Query(ctx, trace.StatTable, params)
	if err != nil {
		return nil, merry.Prepend(err, "reading statistics")
	}

	for _, row := range stats {
		rep.stats = append(rep.stats, row.(*trace.StatEntry))
	}

	return rep, nil
}

func (r *report) print(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw,
		"module\tkind\tcount\tcoalesced\tretried\tavg (ns)\tmax (ns)")

	for _, s := range r.accesses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%.2f\t%.2f\n",
			s.Module, s.Kind, s.Count, s.Coalesced, s.Retried,
			s.average()*1e9, s.Max*1e9)
	}

	if len(r.stats) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "module\tcounter\tvalue")

		for _, s := range r.stats {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Module, s.Counter, s.Value)
		}
	}

	tw.Flush()
}

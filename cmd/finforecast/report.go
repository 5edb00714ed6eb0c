package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	md "github.com/nao1215/markdown"

	"FinForecast/internal/recorder"
	"FinForecast/internal/report"
)

type reportCmd struct {
	xlsx    string
	history int
	raw     bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "show the report for the files on disk" }
func (*reportCmd) Usage() string {
	return `finforecast report [-xlsx <path>] [-history <n>] [-raw]

  Rebuilds the report from the processed, forecast and weights files written
  by earlier commands. With -history, also lists the last runs recorded in
  database.sqlite_path.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.xlsx, "xlsx", "", "Also write the report workbook here.")
	f.IntVar(&c.history, "history", 0, "Number of recorded runs to list.")
	f.BoolVar(&c.raw, "raw", false, "Print markdown without terminal styling.")
}

func (c *reportCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	res, err := newRunner(cfg).LoadResult()
	if err != nil {
		fail("Error loading results: %v", err)
		return subcommands.ExitFailure
	}
	out := report.Markdown(res)

	if c.history > 0 {
		rec, sr := openRecorder(cfg)
		defer rec.Close()
		if sr == nil {
			fail("Error: database.sqlite_path is not configured")
			return subcommands.ExitUsageError
		}
		runs, err := sr.RecentRuns(c.history)
		if err != nil {
			fail("Error reading run history: %v", err)
			return subcommands.ExitFailure
		}
		out += historyMarkdown(runs)
	}

	if c.raw {
		fmt.Print(out)
	} else {
		printMarkdown(out)
	}

	if c.xlsx != "" {
		if err := report.ExportXLSX(c.xlsx, res); err != nil {
			fail("Error writing workbook: %v", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Saved %s\n", c.xlsx)
	}
	return subcommands.ExitSuccess
}

func historyMarkdown(runs []recorder.RunRecord) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H2("Run History")
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignLeft},
		Header:    []string{"Run", "Started", "Status", "Rows", "Error"},
	}
	for _, r := range runs {
		table.Rows = append(table.Rows, []string{
			r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Status, fmt.Sprint(r.Rows), r.Error,
		})
	}
	doc.Table(table)
	return "\n" + doc.String()
}

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"FinForecast/internal/notifier"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/report"
)

type runCmd struct {
	xlsx   string
	notify bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run the whole pipeline once" }
func (*runCmd) Usage() string {
	return `finforecast run [-xlsx <path>] [-notify=false]

  Fetches, cleans, analyses, forecasts and optimizes in one pass, records the
  run history and prints the report.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.xlsx, "xlsx", "", "Write the report workbook here. Defaults to paths.xlsx.")
	f.BoolVar(&c.notify, "notify", true, "Send the run summary to Telegram when configured.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	rec, _ := openRecorder(cfg)
	defer rec.Close()

	var tn *notifier.TelegramNotifier
	if c.notify {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.DataSource.Proxy)
	}

	fetcher := pipeline.NewFetcher(cfg)
	log.Info().Str("provider", fetcher.Name()).Msg("data source")
	res, err := pipeline.NewRunner(cfg, fetcher, rec).Run(ctx)
	if err != nil {
		if tn.Enabled() {
			if serr := tn.SendWithRetry(ctx, notifier.FormatFailure(res.RunID, err), 3); serr != nil {
				log.Error().Err(serr).Msg("send failure notification")
			}
		}
		fail("Error running pipeline: %v", err)
		return subcommands.ExitFailure
	}

	printMarkdown(report.Markdown(res))

	path := c.xlsx
	if path == "" {
		path = cfg.Paths.XLSX
	}
	if path != "" {
		if err := report.ExportXLSX(path, res); err != nil {
			fail("Error writing workbook: %v", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Saved %s\n", path)
	}

	if tn.Enabled() {
		if err := tn.SendWithRetry(ctx, notifier.FormatRunReport(res), 3); err != nil {
			log.Error().Err(err).Msg("send run report")
		}
	}
	return subcommands.ExitSuccess
}

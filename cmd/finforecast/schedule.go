package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"
	"github.com/rs/zerolog/log"

	"FinForecast/internal/notifier"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/scheduler"
)

type scheduleCmd struct {
	now bool
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "run the pipeline on the cron schedule" }
func (*scheduleCmd) Usage() string {
	return `finforecast schedule [-now]

  Runs the pipeline on schedule.cron (seconds first) until interrupted. When
  Telegram is configured, results are sent to the chat and the bot answers
  /run, /status and /history.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.now, "now", false, "Run once immediately. Same as schedule.run_on_start.")
}

func (c *scheduleCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, closer, err := setup()
	if err != nil {
		fail("Error: %v", err)
		return subcommands.ExitFailure
	}
	defer closer.Close()

	rec, sr := openRecorder(cfg)
	defer rec.Close()
	var history scheduler.History
	if sr != nil {
		history = sr
	}

	fetcher := pipeline.NewFetcher(cfg)
	log.Info().Str("provider", fetcher.Name()).Msg("data source")
	runner := pipeline.NewRunner(cfg, fetcher, rec)

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.DataSource.Proxy)
	sched := scheduler.NewScheduler(ctx, runner, tn, history)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		fail("Error: %v", err)
		return subcommands.ExitUsageError
	}
	sched.Start()
	defer sched.Stop()

	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	if c.now || cfg.Schedule.RunOnStart {
		log.Info().Msg("running pipeline on start")
		go sched.RunNow()
	}

	log.Info().Str("cron", cfg.Schedule.Cron).Msg("finforecast is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")
	return subcommands.ExitSuccess
}

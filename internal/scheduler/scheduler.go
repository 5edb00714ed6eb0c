// Package scheduler re-runs the pipeline on a cron schedule and answers chat
// commands about it.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"FinForecast/internal/notifier"
	"FinForecast/internal/pipeline"
	"FinForecast/internal/recorder"
)

// PipelineRunner runs one full pipeline pass.
type PipelineRunner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// History lists past runs.
type History interface {
	RecentRuns(limit int) ([]recorder.RunRecord, error)
}

// Scheduler manages the cron task.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   PipelineRunner
	Notifier *notifier.TelegramNotifier
	History  History
	Ctx      context.Context

	mu      sync.Mutex
	running bool
	last    *pipeline.Result
}

// NewScheduler creates a new Scheduler. Notifier and history may be nil.
func NewScheduler(ctx context.Context, runner PipelineRunner, tn *notifier.TelegramNotifier, history History) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Runner:   runner,
		Notifier: tn,
		History:  history,
		Ctx:      ctx,
	}
}

// Register schedules the pipeline on spec (six fields, seconds first).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.RunNow); err != nil {
		return fmt.Errorf("register pipeline task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

// RunNow executes one pipeline pass unless one is already in progress.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Warn().Msg("pipeline already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Info().Msg("running scheduled pipeline")
	res, err := s.Runner.Run(s.Ctx)
	if err != nil {
		log.Error().Err(err).Msg("scheduled pipeline failed")
		runID := ""
		if res != nil {
			runID = res.RunID
		}
		s.trySend(notifier.FormatFailure(runID, err))
		return
	}

	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	s.trySend(notifier.FormatRunReport(res))
}

// Last returns the most recent successful result, or nil.
func (s *Scheduler) Last() *pipeline.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	switch command {
	case "/run":
		go s.RunNow()
		return "⏳ 已开始运行"
	case "/status":
		if res := s.Last(); res != nil {
			return notifier.FormatRunReport(res)
		}
		return "尚无成功运行"
	case "/history":
		if s.History == nil {
			return "未配置运行记录"
		}
		runs, err := s.History.RecentRuns(10)
		if err != nil {
			log.Error().Err(err).Msg("load run history")
			return "读取运行记录失败"
		}
		return notifier.FormatRunHistory(runs)
	default:
		return "可用命令:\n• /run 立即运行\n• /status 最近结果\n• /history 运行记录"
	}
}

func (s *Scheduler) trySend(text string) {
	if !s.Notifier.Enabled() {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

package main

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
)

// logPruneSpec runs shortly after midnight so a whole day falls out at once.
const logPruneSpec = "10 0 * * *"

// Scheduler owns the cron jobs: log pruning always, the daily Telegram
// report when enabled.
type Scheduler struct {
	cron *cron.Cron
}

// newScheduler registers jobs in ctx.Location. bot may be nil when Telegram
// is not configured.
func newScheduler(ctx *AppContext, bot BotAPI) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(ctx.Location),
		cron.WithChain(cron.Recover(cronLogger{})),
	)

	if _, err := c.AddFunc(logPruneSpec, func() { prunePersistentLogs(ctx) }); err != nil {
		return nil, fmt.Errorf("log prune job: %w", err)
	}

	dr := ctx.Config.Telegram.DailyReport
	if dr.Enabled && bot != nil {
		if _, err := c.AddFunc(dr.Spec, func() { sendDailyReport(ctx, bot, time.Now()) }); err != nil {
			return nil, fmt.Errorf("daily report spec %q: %w", dr.Spec, err)
		}
		slog.Info("Daily report scheduled", "spec", dr.Spec)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Next returns the time of the earliest scheduled job.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

func sendDailyReport(ctx *AppContext, bot BotAPI, now time.Time) {
	msg := tgbotapi.NewMessage(ctx.Config.Telegram.AllowedUserID, getDailyReportText(ctx, now))
	msg.ParseMode = "Markdown"
	if _, err := bot.Send(msg); err != nil {
		slog.Error("Failed to send scheduled report", "err", err)
		return
	}
	slog.Info("Daily report sent")
}

// cronLogger adapts cron's logger to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}

package main

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	ctx := newTestAppContext(t)
	ctx.Config.Telegram.DailyReport.Enabled = true
	ctx.Config.Telegram.DailyReport.Spec = "every evening"

	if _, err := newScheduler(ctx, &fakeBot{}); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestNewSchedulerSkipsReportWithoutBot(t *testing.T) {
	ctx := newTestAppContext(t)
	ctx.Config.Telegram.DailyReport.Enabled = true
	ctx.Config.Telegram.DailyReport.Spec = "every evening"

	s, err := newScheduler(ctx, nil)
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("entries = %d, want only log pruning", n)
	}
}

func TestSchedulerNextRun(t *testing.T) {
	ctx := newTestAppContext(t)
	ctx.Config.Telegram.DailyReport.Enabled = true
	ctx.Config.Telegram.DailyReport.Spec = "0 21 * * *"

	s, err := newScheduler(ctx, &fakeBot{})
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	s.Start()
	defer s.Stop()

	next := s.Next()
	if next.IsZero() || !next.After(time.Now()) {
		t.Fatalf("Next = %v", next)
	}
	if d := time.Until(next); d > 24*time.Hour {
		t.Fatalf("next run too far away: %v", d)
	}
}

func TestSendDailyReport(t *testing.T) {
	ctx := newTestAppContext(t)
	ctx.Traffic.Start()
	ctx.Apps.Start()
	t.Cleanup(func() {
		ctx.Apps.Stop()
		ctx.Traffic.Stop()
	})

	bot := &fakeBot{}
	sendDailyReport(ctx, bot, time.Now())

	bot.mu.Lock()
	defer bot.mu.Unlock()
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d", len(bot.sent))
	}
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	if msg.ChatID != testUserID {
		t.Fatalf("chat = %d", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "Today") {
		t.Fatalf("report text = %q", msg.Text)
	}
}

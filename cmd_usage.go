package main

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowwatch/internal/report"
)

// PeriodCmd shows interface usage for a fixed range.
type PeriodCmd struct{ Range report.Range }

func (c *PeriodCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	sendMarkdown(bot, msg.Chat.ID, getPeriodText(ctx, c.Range, time.Now()))
}

func (c *PeriodCmd) Description() string {
	if c.Range == report.Day {
		return "Traffic so far today"
	}
	return fmt.Sprintf("Traffic this %s, day by day", c.Range)
}

// AppsCmd ranks processes. The optional argument picks the range.
type AppsCmd struct{}

func (c *AppsCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, args string) {
	r, err := report.ParseRange(args)
	if err != nil {
		sendMarkdown(bot, msg.Chat.ID, "❓ Usage: `/apps [day|week|month]`")
		return
	}
	text := getAppsText(ctx, r, time.Now())
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = "Markdown"
	out.ReplyMarkup = appsRangeKeyboard()
	sendWithFallback(bot, out)
}

func (c *AppsCmd) Description() string { return "Per-app traffic (day, week or month)" }

// SpeedCmd shows current interface and per-process rates.
type SpeedCmd struct{}

func (c *SpeedCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	sendMarkdown(bot, msg.Chat.ID, getSpeedText(ctx))
}

func (c *SpeedCmd) Description() string { return "Current speed and busiest apps" }

// ResetTodayCmd asks for confirmation before zeroing today's counter.
type ResetTodayCmd struct{}

func (c *ResetTodayCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	askResetConfirmation(ctx, bot, msg.Chat.ID)
}

func (c *ResetTodayCmd) Description() string { return "Zero today's traffic counter" }

type StatusCmd struct{}

func (c *StatusCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	sendMarkdown(bot, msg.Chat.ID, getStatusText(ctx))
}

func (c *StatusCmd) Description() string { return "Tracked interface and collector state" }

// ConfigCmd prints the running config without credentials.
type ConfigCmd struct{}

func (c *ConfigCmd) Execute(ctx *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	js, err := getConfigJSONSafe(ctx.Config)
	if err != nil {
		ctx.LogError("Config render failed", "err", err)
		sendMarkdown(bot, msg.Chat.ID, "❌ Could not render config")
		return
	}
	sendMarkdown(bot, msg.Chat.ID, "⚙️ *Config*\n```\n"+js+"\n```")
}

func (c *ConfigCmd) Description() string { return "Show config (secrets hidden)" }

type HelpCmd struct{ registry *CommandRegistry }

func (c *HelpCmd) Execute(_ *AppContext, bot BotAPI, msg *tgbotapi.Message, _ string) {
	sendMarkdown(bot, msg.Chat.ID, getHelpText(c.registry))
}

func (c *HelpCmd) Description() string { return "This list" }

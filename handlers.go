package main

import (
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowwatch/internal/report"
)

// isAuthorized checks the sender against the single allowed user.
func isAuthorized(ctx *AppContext, userID int64) bool {
	return ctx.Config.Telegram.AllowedUserID != 0 && userID == ctx.Config.Telegram.AllowedUserID
}

// handleUpdate routes one Telegram update. Anything from another user is
// dropped without a reply.
func handleUpdate(ctx *AppContext, reg *CommandRegistry, bot BotAPI, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		handleCallback(ctx, bot, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || !isAuthorized(ctx, msg.From.ID) {
		return
	}
	if msg.IsCommand() {
		handleCommand(ctx, reg, bot, msg)
	}
}

func handleCommand(ctx *AppContext, reg *CommandRegistry, bot BotAPI, msg *tgbotapi.Message) {
	if reg.Execute(ctx, bot, msg) {
		return
	}
	safeSend(bot, tgbotapi.NewMessage(msg.Chat.ID, "❓ Unknown command. Use /help"))
}

func handleCallback(ctx *AppContext, bot BotAPI, query *tgbotapi.CallbackQuery) {
	if query == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}
	if _, err := bot.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		slog.Warn("Callback ack failed", "err", err)
	}
	if query.From == nil || !isAuthorized(ctx, query.From.ID) {
		return
	}

	chatID := query.Message.Chat.ID
	msgID := query.Message.MessageID
	data := query.Data

	switch {
	case strings.HasPrefix(data, "confirm_"):
		handleResetConfirm(ctx, bot, chatID, msgID, data)
	case data == "cancel_action":
		ctx.Bot.ClearPendingAction()
		editMessage(bot, chatID, msgID, "❌ Cancelled.", nil)
	case strings.HasPrefix(data, "apps_"):
		r, err := report.ParseRange(strings.TrimPrefix(data, "apps_"))
		if err != nil {
			return
		}
		kb := appsRangeKeyboard()
		editMessage(bot, chatID, msgID, getAppsText(ctx, r, time.Now()), &kb)
	}
}

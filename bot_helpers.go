package main

import (
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of the Telegram client the handlers use. Tests supply
// a fake.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

func safeSend(bot BotAPI, msg tgbotapi.Chattable) {
	if bot == nil {
		return
	}
	if _, err := bot.Send(msg); err != nil {
		slog.Error("Telegram send failed", "err", err)
	}
}

func sendMarkdown(bot BotAPI, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	sendWithFallback(bot, msg)
}

// sendWithFallback retries a Markdown message as plain text when Telegram
// rejects the markup.
func sendWithFallback(bot BotAPI, msg tgbotapi.MessageConfig) {
	if bot == nil {
		return
	}
	if _, err := bot.Send(msg); err != nil {
		slog.Error("Error sending Markdown message. Retrying as plain text", "err", err)
		msg.ParseMode = ""
		safeSend(bot, msg)
	}
}

func editMessage(bot BotAPI, chatID int64, msgID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	if bot == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = "Markdown"
	if keyboard != nil {
		edit.ReplyMarkup = keyboard
	}
	if _, err := bot.Send(edit); err != nil {
		slog.Error("Error editing message to Markdown. Retrying as plain text", "err", err)
		edit.ParseMode = ""
		safeSend(bot, edit)
	}
}

func appsRangeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Today", "apps_day"),
			tgbotapi.NewInlineKeyboardButtonData("Week", "apps_week"),
			tgbotapi.NewInlineKeyboardButtonData("Month", "apps_month"),
		),
	)
}

const actionResetToday = "resettoday"

func askResetConfirmation(ctx *AppContext, bot BotAPI, chatID int64) {
	ctx.Bot.SetPendingAction(actionResetToday)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, reset", "confirm_"+actionResetToday),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", "cancel_action"),
		),
	)
	msg := tgbotapi.NewMessage(chatID, "🧹 *Reset today's traffic?*\n\n_Per-app history is kept._")
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = kb
	safeSend(bot, msg)
}

func handleResetConfirm(ctx *AppContext, bot BotAPI, chatID int64, msgID int, data string) {
	action := ctx.Bot.TakePendingAction()
	if action == "" || "confirm_"+action != data {
		editMessage(bot, chatID, msgID, "_Session expired, try again_", nil)
		return
	}
	ctx.Traffic.ResetToday()
	ctx.LogInfo("Today's traffic reset from Telegram", "chat", chatID)
	editMessage(bot, chatID, msgID, "✅ Today's counter is back to zero.", nil)
}

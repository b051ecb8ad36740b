package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const maxAdminMessageLen = 4000

type ErrorManager struct {
	bot     *bot.Bot
	adminID int64
}

func NewErrorManager(b *bot.Bot, adminID int64) *ErrorManager {
	return &ErrorManager{
		bot:     b,
		adminID: adminID,
	}
}

func (e *ErrorManager) NotifyAdmin(ctx context.Context, panicValue interface{}, update *models.Update) {
	msg := fmt.Sprintf("🚨 Panic in handler\nUser: %s\nError: %v\n\nStack trace:\n%s",
		describeUpdateUser(update), panicValue, string(debug.Stack()))
	e.send(ctx, msg)
}

func (e *ErrorManager) NotifyAdminWithCurl(ctx context.Context, chatID int64, request interface{}, err error) {
	msg := fmt.Sprintf("❌ Failed to send message\nUser: [%d]\nError: %v\n\nCurl:\n%s",
		chatID, err, e.buildCurlCommand(chatID, request))
	e.send(ctx, msg)
}

// NotifyPuzzleFailure reports a puzzle update that the store could not commit.
func (e *ErrorManager) NotifyPuzzleFailure(ctx context.Context, conversationID string, err error) {
	e.send(ctx, fmt.Sprintf("🧩 Puzzle update failed\nConversation: %s\nError: %v", conversationID, err))
}

func (e *ErrorManager) send(ctx context.Context, msg string) {
	if e.bot == nil {
		return
	}
	_, _ = e.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: e.adminID,
		Text:   truncateForAdmin(msg),
	})
}

func (e *ErrorManager) buildCurlCommand(_ int64, request interface{}) string {
	jsonData, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return fmt.Sprintf("# Failed to serialize request: %v", err)
	}

	return fmt.Sprintf("curl -X POST 'https://api.telegram.org/bot[BOT_TOKEN]/sendMessage' \\\n  -H 'Content-Type: application/json' \\\n  -d '%s'",
		string(jsonData))
}

func describeUpdateUser(update *models.Update) string {
	if update == nil {
		return "unknown"
	}
	var from *models.User
	if update.Message != nil {
		from = update.Message.From
	} else if update.CallbackQuery != nil {
		from = &update.CallbackQuery.From
	}
	if from == nil || from.ID == 0 {
		return "unknown"
	}
	info := fmt.Sprintf("[%d]", from.ID)
	if from.FirstName != "" {
		info = from.FirstName + " " + info
	}
	if from.Username != "" {
		info = info + " @" + from.Username
	}
	return info
}

func truncateForAdmin(msg string) string {
	if len(msg) > maxAdminMessageLen {
		return msg[:maxAdminMessageLen] + "\n... (truncated)"
	}
	return msg
}

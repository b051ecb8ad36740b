package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// MessageManager sends bot messages with a retry and remembers the last
// puzzle message per user so it can be replaced instead of piling up.
type MessageManager struct {
	bot           *bot.Bot
	chatStateRepo *db.ChatStateRepository
	errMgr        *ErrorManager
	maxRetry      int
}

func NewMessageManager(b *bot.Bot, chatStateRepo *db.ChatStateRepository, errMgr *ErrorManager) *MessageManager {
	return &MessageManager{
		bot:           b,
		chatStateRepo: chatStateRepo,
		errMgr:        errMgr,
		maxRetry:      2,
	}
}

func (m *MessageManager) SendWithRetry(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetry; attempt++ {
		msg, err := m.bot.SendMessage(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	chatID, _ := params.ChatID.(int64)
	m.errMgr.NotifyAdminWithCurl(ctx, chatID, params, lastErr)
	return nil, lastErr
}

func (m *MessageManager) SendPhotoWithRetry(ctx context.Context, params *bot.SendPhotoParams) (*tgmodels.Message, error) {
	var lastErr error
	for attempt := 0; attempt < m.maxRetry; attempt++ {
		msg, err := m.bot.SendPhoto(ctx, params)
		if err == nil {
			return msg, nil
		}
		lastErr = err
	}
	chatID, _ := params.ChatID.(int64)
	m.errMgr.NotifyAdminWithCurl(ctx, chatID, params, lastErr)
	return nil, lastErr
}

func (m *MessageManager) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// DeliverChat relays a chat message to the partner.
func (m *MessageManager) DeliverChat(ctx context.Context, from *models.User, toUserID int64, text string) error {
	return m.SendText(ctx, toUserID, FormatChatLine(from, text))
}

// SendPuzzle replaces the user's previous puzzle message with a new one.
func (m *MessageManager) SendPuzzle(ctx context.Context, userID int64, text string) error {
	state, _ := m.chatStateRepo.Get(userID)
	if state != nil && state.LastPuzzleMessageID != 0 {
		_ = m.DeleteMessage(ctx, userID, state.LastPuzzleMessageID)
	}

	msg, err := m.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: userID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	return m.chatStateRepo.UpdatePuzzleMessageID(userID, msg.ID)
}

// SendNotice shows a non-fatal notice, replacing the previous one.
func (m *MessageManager) SendNotice(ctx context.Context, userID int64, text string) error {
	state, _ := m.chatStateRepo.Get(userID)
	if state != nil && state.LastNoticeMessageID != 0 {
		_ = m.DeleteMessage(ctx, userID, state.LastNoticeMessageID)
	}

	msg, err := m.SendWithRetry(ctx, &bot.SendMessageParams{
		ChatID: userID,
		Text:   text,
	})
	if err != nil {
		return err
	}
	return m.chatStateRepo.UpdateNoticeMessageID(userID, msg.ID)
}

// SendRevealedPhoto shows the partner's photo once their puzzle is complete.
func (m *MessageManager) SendRevealedPhoto(ctx context.Context, userID int64, partner *models.User, caption string) error {
	if !partner.HasPhoto() {
		return nil
	}
	_, err := m.SendPhotoWithRetry(ctx, &bot.SendPhotoParams{
		ChatID:  userID,
		Photo:   &tgmodels.InputFileString{Data: partner.PhotoFileID},
		Caption: fmt.Sprintf("%s\n%s", caption, partner.DisplayName()),
	})
	return err
}

// EditWithKeyboard rewrites a bot message in place, sending a fresh one when
// Telegram no longer has the original.
func (m *MessageManager) EditWithKeyboard(ctx context.Context, chatID int64, messageID int, text string, markup *tgmodels.InlineKeyboardMarkup) error {
	edit := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}
	send := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if markup != nil {
		edit.ReplyMarkup = markup
		send.ReplyMarkup = markup
	}

	_, err := m.bot.EditMessageText(ctx, edit)
	if isMessageNotFoundError(err) {
		_, err = m.SendWithRetry(ctx, send)
	}
	return err
}

func isMessageNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "message to edit not found") ||
		strings.Contains(errStr, "MESSAGE_ID_INVALID")
}

func (m *MessageManager) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := m.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

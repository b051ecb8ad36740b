package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/fsm"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/ad/go-telegram-puzzle/internal/services"
	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	historyLimit       = 20
	callbackShowPuzzle = "puzzle:show"
)

const helpText = `🧩 Every day you are matched with someone new.
Chat to reveal their photo piece by piece:
• each reply in turn reveals a random piece
• a message of 50+ characters reveals a central piece
• the first message of the day unlocks a bonus piece

/profile - your profile
/nickname <name> - 1 to 6 Korean characters
/age <years> - your age
/bio <text> - Korean or English letters
/interests - pick your interests
/match - today's match
/puzzle - show the puzzle
/history - recent messages`

type BotHandler struct {
	adminID       int64
	errorManager  *services.ErrorManager
	msgManager    *services.MessageManager
	chatService   *services.ChatService
	matchService  *services.MatchService
	renderer      *services.PuzzleRenderer
	userRepo      *db.UserRepository
	settingsRepo  *db.SettingsRepository
	chatStateRepo *db.ChatStateRepository
	adminHandler  *AdminHandler
	now           func() time.Time
}

func NewBotHandler(
	adminID int64,
	errorManager *services.ErrorManager,
	msgManager *services.MessageManager,
	chatService *services.ChatService,
	matchService *services.MatchService,
	statsService *services.StatisticsService,
	renderer *services.PuzzleRenderer,
	userRepo *db.UserRepository,
	settingsRepo *db.SettingsRepository,
	chatStateRepo *db.ChatStateRepository,
) *BotHandler {
	return &BotHandler{
		adminID:       adminID,
		errorManager:  errorManager,
		msgManager:    msgManager,
		chatService:   chatService,
		matchService:  matchService,
		renderer:      renderer,
		userRepo:      userRepo,
		settingsRepo:  settingsRepo,
		chatStateRepo: chatStateRepo,
		adminHandler:  NewAdminHandler(adminID, msgManager, userRepo, settingsRepo, statsService),
		now:           time.Now,
	}
}

func (h *BotHandler) HandleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	defer h.recoverPanic(ctx, update)

	if update.Message != nil {
		h.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		h.handleCallback(ctx, b, update.CallbackQuery)
	}
}

func (h *BotHandler) recoverPanic(ctx context.Context, update *tgmodels.Update) {
	if r := recover(); r != nil {
		h.errorManager.NotifyAdmin(ctx, r, update)
	}
}

func (h *BotHandler) handleMessage(ctx context.Context, msg *tgmodels.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID

	command, args := parseCommand(msg.Text)
	if command == "/start" {
		h.handleStart(ctx, msg)
		return
	}

	if userID == h.adminID && h.adminHandler.HandleCommand(ctx, msg) {
		return
	}

	if h.isUserBlocked(userID) {
		return
	}

	user, err := h.userRepo.GetByID(userID)
	if errors.Is(err, models.ErrNotFound) {
		h.msgManager.SendText(ctx, msg.Chat.ID, "Please send /start first")
		return
	}
	if err != nil {
		log.Printf("[HANDLER] Failed to load user %d: %v", userID, err)
		h.msgManager.SendText(ctx, msg.Chat.ID, errorText(err))
		return
	}

	if len(msg.Photo) > 0 {
		h.handlePhoto(ctx, user, msg.Photo)
		return
	}

	switch command {
	case "/help":
		h.msgManager.SendText(ctx, userID, helpText)
	case "/profile":
		h.msgManager.SendText(ctx, userID, services.FormatProfile(user))
	case "/nickname":
		h.handleProfileCommand(ctx, user, fsm.StateAwaitingNickname, args, "🏷 Send your nickname: 1 to 6 Korean characters.")
	case "/age":
		h.handleProfileCommand(ctx, user, fsm.StateAwaitingAge, args, "🎂 How old are you?")
	case "/bio":
		h.handleProfileCommand(ctx, user, fsm.StateAwaitingBio, args, "📝 Send your new bio in the next message.")
	case "/interests":
		h.handleInterestsCommand(ctx, user)
	case "/match":
		h.handleMatch(ctx, user)
	case "/puzzle":
		h.handlePuzzle(ctx, user.ID)
	case "/history":
		h.handleHistory(ctx, user.ID)
	case "":
		if msg.Text != "" {
			h.handleText(ctx, user, msg.Text)
		}
	default:
		h.msgManager.SendText(ctx, userID, "Unknown command. Send /help for the list.")
	}
}

func (h *BotHandler) handleCallback(ctx context.Context, b *bot.Bot, callback *tgmodels.CallbackQuery) {
	if b != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callback.ID})
	}
	if h.isUserBlocked(callback.From.ID) {
		return
	}
	switch {
	case callback.Data == callbackShowPuzzle:
		h.handlePuzzle(ctx, callback.From.ID)
	case strings.HasPrefix(callback.Data, callbackInterestPrefix):
		h.handleInterestCallback(ctx, callback)
	}
}

func (h *BotHandler) isUserBlocked(userID int64) bool {
	blocked, err := h.userRepo.IsBlocked(userID)
	if err != nil {
		return false
	}
	return blocked
}

func (h *BotHandler) handleStart(ctx context.Context, msg *tgmodels.Message) {
	user := &models.User{
		ID:        msg.From.ID,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
		Username:  msg.From.Username,
	}
	if err := h.userRepo.CreateOrUpdate(user); err != nil {
		log.Printf("[HANDLER] Failed to register user %d: %v", user.ID, err)
		h.msgManager.SendText(ctx, msg.Chat.ID, errorText(err))
		return
	}

	existing, err := h.userRepo.GetByID(user.ID)
	if err == nil {
		user = existing
	}

	h.msgManager.SendText(ctx, msg.Chat.ID, h.setting(models.SettingWelcome))

	if !user.HasPhoto() {
		h.chatStateRepo.SetState(user.ID, fsm.StateAwaitingPhoto)
		h.msgManager.SendText(ctx, msg.Chat.ID, "📷 Send a photo of yourself to join daily matching.")
	}
}

func (h *BotHandler) handlePhoto(ctx context.Context, user *models.User, photos []tgmodels.PhotoSize) {
	fileID := largestPhoto(photos)
	if fileID == "" {
		return
	}
	if err := h.userRepo.UpdatePhoto(user.ID, fileID); err != nil {
		log.Printf("[HANDLER] Failed to save photo for %d: %v", user.ID, err)
		h.msgManager.SendText(ctx, user.ID, errorText(err))
		return
	}
	h.chatStateRepo.SetState(user.ID, fsm.StateIdle)
	h.msgManager.SendText(ctx, user.ID, "✅ Photo saved. Use /match to meet today's match.")
}

func (h *BotHandler) handleMatch(ctx context.Context, user *models.User) {
	if !user.HasRequiredProfile() {
		h.msgManager.SendText(ctx, user.ID, "🏷 Nickname and age are required. Set them with /nickname and /age first.")
		return
	}

	now := h.now()
	partner, err := h.matchService.GetDailyMatch(user.ID, now)
	if err != nil {
		h.sendMatchError(ctx, user.ID, err, now)
		return
	}

	h.msgManager.SendWithRetry(ctx, sendWithKeyboard(user.ID, services.FormatMatchCard(partner), puzzleKeyboard()))
}

func (h *BotHandler) sendMatchError(ctx context.Context, userID int64, err error, now time.Time) {
	switch {
	case errors.Is(err, models.ErrNoMatch):
		text := h.setting(models.SettingNoMatch)
		h.msgManager.SendText(ctx, userID, fmt.Sprintf("%s\n⏳ Next matching in %s", text, services.FormatTimeUntilNextDay(now)))
	case errors.Is(err, models.ErrInvalidArgument):
		h.chatStateRepo.SetState(userID, fsm.StateAwaitingPhoto)
		h.msgManager.SendText(ctx, userID, "📷 Send a photo of yourself first.")
	default:
		log.Printf("[HANDLER] Match lookup failed for %d: %v", userID, err)
		h.msgManager.SendText(ctx, userID, errorText(err))
	}
}

func (h *BotHandler) handlePuzzle(ctx context.Context, userID int64) {
	state, partner, err := h.chatService.Puzzle(ctx, userID, h.now())
	if err != nil {
		h.msgManager.SendText(ctx, userID, errorText(err))
		return
	}
	text := fmt.Sprintf("🧩 Puzzle with %s\n\n%s\n\n%d/%d pieces revealed",
		partner.PublicName(), h.renderer.RenderGrid(state.RevealedPieces), len(state.RevealedPieces), models.PieceCount)
	if err := h.msgManager.SendPuzzle(ctx, userID, text); err != nil {
		log.Printf("[HANDLER] Failed to send puzzle to %d: %v", userID, err)
	}
}

func (h *BotHandler) handleHistory(ctx context.Context, userID int64) {
	messages, partner, err := h.chatService.History(userID, h.now(), historyLimit)
	if err != nil {
		h.msgManager.SendText(ctx, userID, errorText(err))
		return
	}
	h.msgManager.SendText(ctx, userID, services.FormatHistory(messages, userID, partner))
}

func (h *BotHandler) handleText(ctx context.Context, user *models.User, text string) {
	if state, err := h.chatStateRepo.Get(user.ID); err == nil {
		if state.CurrentState == fsm.StateAwaitingPhoto {
			h.msgManager.SendText(ctx, user.ID, "📷 Send a photo of yourself first, then you can chat with your match.")
			return
		}
		if h.saveProfileField(ctx, user.ID, state.CurrentState, text) {
			return
		}
	}

	result, err := h.chatService.Send(ctx, user, text, h.now())
	if err != nil {
		if !isUserError(err) {
			log.Printf("[HANDLER] Failed to send message from %d: %v", user.ID, err)
		}
		h.msgManager.SendText(ctx, user.ID, errorText(err))
		return
	}

	if result.PuzzleErr != nil {
		log.Printf("[HANDLER] Puzzle update failed for %s: %v", result.Message.ConversationID, result.PuzzleErr)
		h.msgManager.SendNotice(ctx, user.ID, "✉️ Message sent, but the puzzle could not be updated. It will catch up with your next message.")
		if errors.Is(result.PuzzleErr, models.ErrConcurrencyConflict) || errors.Is(result.PuzzleErr, models.ErrStoreUnavailable) {
			h.errorManager.NotifyPuzzleFailure(ctx, result.Message.ConversationID, result.PuzzleErr)
		}
		return
	}

	h.announceReveal(ctx, user, result.Partner, result.Reveal)
}

func (h *BotHandler) announceReveal(ctx context.Context, user, partner *models.User, reveal *models.RevealResult) {
	if reveal == nil || len(reveal.NewlyRevealed) == 0 {
		return
	}

	progress := h.renderer.RenderProgress(reveal)
	for _, id := range []int64{user.ID, partner.ID} {
		if err := h.msgManager.SendPuzzle(ctx, id, progress); err != nil {
			log.Printf("[HANDLER] Failed to send puzzle progress to %d: %v", id, err)
		}
	}

	if !reveal.Completed {
		return
	}

	caption := h.setting(models.SettingCompletion)
	h.msgManager.SendRevealedPhoto(ctx, user.ID, partner, caption)
	h.msgManager.SendRevealedPhoto(ctx, partner.ID, user, caption)
}

// setting returns the admin text for key, or its default when the store fails.
func (h *BotHandler) setting(key models.SettingKey) string {
	value, err := h.settingsRepo.Get(key)
	if err != nil {
		log.Printf("[HANDLER] Failed to load setting %s: %v", key, err)
		defaults := models.DefaultSettings()
		return defaults.Value(key)
	}
	return value
}

func puzzleKeyboard() *tgmodels.InlineKeyboardMarkup {
	return &tgmodels.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgmodels.InlineKeyboardButton{
			{{Text: "🧩 Show puzzle", CallbackData: callbackShowPuzzle}},
		},
	}
}

// largestPhoto picks the biggest size Telegram offers for a photo.
func largestPhoto(photos []tgmodels.PhotoSize) string {
	best := -1
	fileID := ""
	for _, p := range photos {
		if area := p.Width * p.Height; area > best {
			best = area
			fileID = p.FileID
		}
	}
	return fileID
}

func sendWithKeyboard(chatID int64, text string, markup *tgmodels.InlineKeyboardMarkup) *bot.SendMessageParams {
	return &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	}
}

// isUserError reports errors caused by the user's input rather than by the bot.
func isUserError(err error) bool {
	return errors.Is(err, models.ErrInvalidArgument) ||
		errors.Is(err, models.ErrNoMatch) ||
		errors.Is(err, models.ErrRateLimited)
}

// errorText maps a service error to the message shown to the user.
func errorText(err error) string {
	switch {
	case errors.Is(err, models.ErrNoMatch):
		return "You have no match today. Use /match to find one."
	case errors.Is(err, models.ErrRateLimited):
		return "⏳ Slow down a little, you are sending messages too fast."
	case errors.Is(err, models.ErrInvalidArgument):
		return fmt.Sprintf("⚠️ %v", err)
	case errors.Is(err, models.ErrNotFound):
		return "Please send /start first"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "⚠️ Storage is temporarily unavailable, please try again later."
	default:
		return "⚠️ Something went wrong, please try again."
	}
}

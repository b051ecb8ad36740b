package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/ad/go-telegram-puzzle/internal/services"
	tgmodels "github.com/go-telegram/bot/models"
)

type AdminHandler struct {
	adminID      int64
	msgManager   *services.MessageManager
	userRepo     *db.UserRepository
	settingsRepo *db.SettingsRepository
	statsService *services.StatisticsService
}

func NewAdminHandler(
	adminID int64,
	msgManager *services.MessageManager,
	userRepo *db.UserRepository,
	settingsRepo *db.SettingsRepository,
	statsService *services.StatisticsService,
) *AdminHandler {
	return &AdminHandler{
		adminID:      adminID,
		msgManager:   msgManager,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		statsService: statsService,
	}
}

var settingCommands = map[string]models.SettingKey{
	"/setwelcome":  models.SettingWelcome,
	"/setnomatch":  models.SettingNoMatch,
	"/setcomplete": models.SettingCompletion,
}

var settingCommandOrder = []string{"/setwelcome", "/setnomatch", "/setcomplete"}

// HandleCommand returns true when msg was an admin command.
func (h *AdminHandler) HandleCommand(ctx context.Context, msg *tgmodels.Message) bool {
	if msg.From == nil || msg.From.ID != h.adminID {
		return false
	}

	command, args := parseCommand(msg.Text)
	switch command {
	case "/stats":
		h.handleStats(ctx, msg.Chat.ID)
	case "/block":
		h.handleBlock(ctx, msg.Chat.ID, args, true)
	case "/unblock":
		h.handleBlock(ctx, msg.Chat.ID, args, false)
	case "/settings":
		h.handleListSettings(ctx, msg.Chat.ID)
	default:
		key, ok := settingCommands[command]
		if !ok {
			return false
		}
		h.handleSetting(ctx, msg.Chat.ID, key, args)
	}
	return true
}

func (h *AdminHandler) handleStats(ctx context.Context, chatID int64) {
	stats, err := h.statsService.Collect(time.Now())
	if err != nil {
		log.Printf("[ADMIN] Failed to collect statistics: %v", err)
		h.msgManager.SendText(ctx, chatID, "❌ Failed to collect statistics")
		return
	}
	h.msgManager.SendText(ctx, chatID, services.FormatStatistics(stats))
}

func (h *AdminHandler) handleBlock(ctx context.Context, chatID int64, args string, blocked bool) {
	userID, err := parseUserIDArg(args)
	if err != nil {
		h.msgManager.SendText(ctx, chatID, "Usage: /block <user id> or /unblock <user id>")
		return
	}
	if err := h.userRepo.SetBlocked(userID, blocked); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.msgManager.SendText(ctx, chatID, fmt.Sprintf("User %d not found", userID))
			return
		}
		log.Printf("[ADMIN] Failed to update block flag for %d: %v", userID, err)
		h.msgManager.SendText(ctx, chatID, "❌ Failed to update user")
		return
	}
	if blocked {
		h.msgManager.SendText(ctx, chatID, fmt.Sprintf("🚫 User %d blocked", userID))
	} else {
		h.msgManager.SendText(ctx, chatID, fmt.Sprintf("✅ User %d unblocked", userID))
	}
}

// handleSetting saves args under key; "reset" restores the default text.
func (h *AdminHandler) handleSetting(ctx context.Context, chatID int64, key models.SettingKey, args string) {
	var err error
	if strings.EqualFold(args, "reset") {
		err = h.settingsRepo.Reset(key)
	} else {
		err = h.settingsRepo.Set(key, args)
	}
	if errors.Is(err, models.ErrInvalidArgument) {
		h.msgManager.SendText(ctx, chatID, fmt.Sprintf("⚠️ %v", err))
		return
	}
	if err != nil {
		log.Printf("[ADMIN] Failed to save setting %s: %v", key, err)
		h.msgManager.SendText(ctx, chatID, "❌ Failed to save setting")
		return
	}
	h.msgManager.SendText(ctx, chatID, "✅ Saved")
}

func (h *AdminHandler) handleListSettings(ctx context.Context, chatID int64) {
	settings, err := h.settingsRepo.GetAll()
	if err != nil {
		log.Printf("[ADMIN] Failed to load settings: %v", err)
		h.msgManager.SendText(ctx, chatID, "❌ Failed to load settings")
		return
	}
	h.msgManager.SendText(ctx, chatID, formatSettings(settings))
}

func formatSettings(settings *models.Settings) string {
	var sb strings.Builder
	sb.WriteString("⚙️ Bot texts")
	for _, command := range settingCommandOrder {
		fmt.Fprintf(&sb, "\n\n%s\n%s", command, settings.Value(settingCommands[command]))
	}
	return sb.String()
}

// parseCommand splits "/cmd@bot rest of text" into "/cmd" and "rest of text".
func parseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

func parseUserIDArg(args string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: user id must be positive", models.ErrInvalidArgument)
	}
	return id, nil
}

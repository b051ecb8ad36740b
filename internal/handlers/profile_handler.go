package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/ad/go-telegram-puzzle/internal/fsm"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/ad/go-telegram-puzzle/internal/services"
	tgmodels "github.com/go-telegram/bot/models"
)

const (
	callbackInterestPrefix = "interest:"
	callbackInterestBack   = "interest:back"
	callbackInterestDone   = "interest:done"
)

const interestsPrompt = "✨ Pick your interests by category:"

// handleProfileCommand covers /nickname, /age and /bio: with an argument the
// value is saved at once, without one the next text message is awaited.
func (h *BotHandler) handleProfileCommand(ctx context.Context, user *models.User, state, args, prompt string) {
	if args == "" {
		h.chatStateRepo.SetState(user.ID, state)
		h.msgManager.SendText(ctx, user.ID, prompt)
		return
	}
	h.saveProfileField(ctx, user.ID, state, args)
}

// saveProfileField validates and stores the field that state is waiting for.
// It reports false when state does not wait for a profile field.
func (h *BotHandler) saveProfileField(ctx context.Context, userID int64, state, text string) bool {
	var err error
	var done string
	switch state {
	case fsm.StateAwaitingNickname:
		text = strings.TrimSpace(text)
		if err = services.ValidateNickname(text); err == nil {
			err = h.userRepo.UpdateNickname(userID, text)
			done = "✅ Nickname saved."
		}
	case fsm.StateAwaitingAge:
		var age int
		if age, err = services.ParseAge(text); err == nil {
			err = h.userRepo.UpdateAge(userID, age)
			done = "✅ Age saved."
		}
	case fsm.StateAwaitingBio:
		if err = services.ValidateBio(text); err == nil {
			err = h.userRepo.UpdateBio(userID, text)
			done = "✅ Bio saved."
		}
	default:
		return false
	}

	if err != nil {
		if !isUserError(err) {
			log.Printf("[HANDLER] Failed to save profile field %s for %d: %v", state, userID, err)
		}
		// The state stays so the user can simply retry.
		h.msgManager.SendText(ctx, userID, errorText(err))
		return true
	}
	h.chatStateRepo.SetState(userID, fsm.StateIdle)
	h.msgManager.SendText(ctx, userID, done)
	return true
}

func (h *BotHandler) handleInterestsCommand(ctx context.Context, user *models.User) {
	h.msgManager.SendWithRetry(ctx, sendWithKeyboard(user.ID, interestsPrompt, interestCategoryKeyboard()))
}

func (h *BotHandler) handleInterestCallback(ctx context.Context, callback *tgmodels.CallbackQuery) {
	msg := callback.Message.Message
	if msg == nil {
		return
	}
	userID := callback.From.ID

	if callback.Data == callbackInterestDone {
		user, err := h.userRepo.GetByID(userID)
		if err != nil {
			h.msgManager.SendText(ctx, userID, errorText(err))
			return
		}
		text := "✨ No interests selected."
		if len(user.Interests) > 0 {
			text = "✨ Interests saved: " + strings.Join(user.Interests, ", ")
		}
		h.msgManager.EditWithKeyboard(ctx, msg.Chat.ID, msg.ID, text, nil)
		return
	}
	if callback.Data == callbackInterestBack {
		h.msgManager.EditWithKeyboard(ctx, msg.Chat.ID, msg.ID, interestsPrompt, interestCategoryKeyboard())
		return
	}

	category, item, ok := parseInterestCallback(callback.Data)
	if !ok {
		return
	}
	user, err := h.userRepo.GetByID(userID)
	if err != nil {
		h.msgManager.SendText(ctx, userID, errorText(err))
		return
	}

	if item >= 0 {
		interest, _ := services.InterestAt(category, item)
		user.Interests = services.ToggleInterest(user.Interests, interest)
		if err := h.userRepo.UpdateInterests(userID, user.Interests); err != nil {
			log.Printf("[HANDLER] Failed to save interests for %d: %v", userID, err)
			h.msgManager.SendText(ctx, userID, errorText(err))
			return
		}
	}

	text := fmt.Sprintf("✨ %s", services.InterestCatalog[category].Name)
	h.msgManager.EditWithKeyboard(ctx, msg.Chat.ID, msg.ID, text, interestItemsKeyboard(category, user.Interests))
}

func interestCategoryKeyboard() *tgmodels.InlineKeyboardMarkup {
	var rows [][]tgmodels.InlineKeyboardButton
	for i, c := range services.InterestCatalog {
		rows = append(rows, []tgmodels.InlineKeyboardButton{{
			Text:         c.Name,
			CallbackData: fmt.Sprintf("%scat:%d", callbackInterestPrefix, i),
		}})
	}
	rows = append(rows, []tgmodels.InlineKeyboardButton{{Text: "✅ Done", CallbackData: callbackInterestDone}})
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// interestItemsKeyboard lists one category two per row, marking selected items.
func interestItemsKeyboard(category int, selected []string) *tgmodels.InlineKeyboardMarkup {
	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[s] = true
	}

	var rows [][]tgmodels.InlineKeyboardButton
	var row []tgmodels.InlineKeyboardButton
	for i, item := range services.InterestCatalog[category].Items {
		label := item
		if chosen[item] {
			label = "✓ " + item
		}
		row = append(row, tgmodels.InlineKeyboardButton{
			Text:         label,
			CallbackData: fmt.Sprintf("%stog:%d:%d", callbackInterestPrefix, category, i),
		})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, []tgmodels.InlineKeyboardButton{
		{Text: "⬅️ Back", CallbackData: callbackInterestBack},
		{Text: "✅ Done", CallbackData: callbackInterestDone},
	})
	return &tgmodels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// parseInterestCallback reads "interest:cat:<c>" (item -1) and
// "interest:tog:<c>:<i>".
func parseInterestCallback(data string) (category, item int, ok bool) {
	rest, found := strings.CutPrefix(data, callbackInterestPrefix)
	if !found {
		return 0, 0, false
	}
	parts := strings.Split(rest, ":")
	switch {
	case len(parts) == 2 && parts[0] == "cat":
		c, err := strconv.Atoi(parts[1])
		if err != nil || c < 0 || c >= len(services.InterestCatalog) {
			return 0, 0, false
		}
		return c, -1, true
	case len(parts) == 3 && parts[0] == "tog":
		c, err1 := strconv.Atoi(parts[1])
		i, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		if _, valid := services.InterestAt(c, i); !valid {
			return 0, 0, false
		}
		return c, i, true
	}
	return 0, 0, false
}

package services

import (
	"context"
	"errors"
	"log"
	"time"
	"unicode/utf8"

	"github.com/ad/go-telegram-puzzle/internal/metrics"
	"github.com/ad/go-telegram-puzzle/internal/models"
)

// ConversationStore persists puzzle states. Transact must apply fn atomically
// against the latest state, re-running it when a concurrent write wins.
type ConversationStore interface {
	Get(ctx context.Context, conversationID string) (*models.PuzzleState, error)
	Transact(ctx context.Context, conversationID string, fn func(state *models.PuzzleState) error) (*models.PuzzleState, error)
}

// PuzzleEngine decides which pieces a chat message unlocks and commits them.
type PuzzleEngine struct {
	store   ConversationStore
	rand    RandSource
	metrics *metrics.Metrics
}

func NewPuzzleEngine(store ConversationStore, rnd RandSource, m *metrics.Metrics) *PuzzleEngine {
	return &PuzzleEngine{
		store:   store,
		rand:    rnd,
		metrics: m,
	}
}

// revealPlan is what one message unlocks, in rule order.
type revealPlan struct {
	Pieces     []int
	Rules      []string
	DailyBonus bool
}

// OnMessage derives the conversation from the event's participants.
func (e *PuzzleEngine) OnMessage(ctx context.Context, event models.MessageEvent) (*models.RevealResult, error) {
	return e.OnMessageSent(ctx, ConversationID(event.SenderID, event.ReceiverID), event.SenderID, event.Text, event.SentAt)
}

// OnMessageSent applies the reveal rules for one sent message and returns the
// state as committed.
func (e *PuzzleEngine) OnMessageSent(ctx context.Context, conversationID, senderID, text string, now time.Time) (*models.RevealResult, error) {
	if _, err := PartnerOf(conversationID, senderID); err != nil {
		return nil, err
	}

	today := models.DateOf(now)
	var plan revealPlan

	saved, err := e.store.Transact(ctx, conversationID, func(state *models.PuzzleState) error {
		plan = planReveal(state, senderID, text, today, e.rand)
		state.RevealedPieces = append(state.RevealedPieces, plan.Pieces...)
		state.LastMessageSender = senderID
		if plan.DailyBonus {
			state.LastDailyBonusDate = today
		}
		return nil
	})
	if err != nil {
		kind := failureKind(err)
		e.metrics.RevealFailed(kind)
		log.Printf("[PUZZLE] Failed to update %s for sender %s (%s): %v", conversationID, senderID, kind, err)
		return nil, err
	}

	for _, rule := range plan.Rules {
		e.metrics.PieceRevealed(rule)
	}

	completed := saved.IsComplete() && len(saved.RevealedPieces)-len(plan.Pieces) < models.PieceCount
	if completed {
		e.metrics.PuzzleCompleted()
		log.Printf("[PUZZLE] Conversation %s fully revealed", conversationID)
	}

	return &models.RevealResult{
		ConversationID:    conversationID,
		RevealedPieces:    saved.RevealedPieces,
		NewlyRevealed:     append([]int{}, plan.Pieces...),
		DailyBonusGranted: plan.DailyBonus,
		Completed:         completed,
	}, nil
}

// State returns the current reveal state of a conversation without changing it.
func (e *PuzzleEngine) State(ctx context.Context, conversationID string) (*models.PuzzleState, error) {
	return e.store.Get(ctx, conversationID)
}

// planReveal evaluates the three rules in order against state. Each rule sees
// the pieces staged by the rules before it.
func planReveal(state *models.PuzzleState, senderID, text, today string, rnd RandSource) revealPlan {
	var plan revealPlan
	taken := make(map[int]bool, models.PieceCount)
	for _, p := range state.RevealedPieces {
		taken[p] = true
	}
	stage := func(piece int, rule string) {
		taken[piece] = true
		plan.Pieces = append(plan.Pieces, piece)
		plan.Rules = append(plan.Rules, rule)
	}

	// Turn switch, including the very first message.
	if state.LastMessageSender != senderID {
		if piece, ok := pickRandom(taken, rnd); ok {
			stage(piece, metrics.RuleTurn)
		}
	}

	if utf8.RuneCountInString(text) >= models.ContentBonusMinLength {
		for _, piece := range models.CorePieces {
			if !taken[piece] {
				stage(piece, metrics.RuleContent)
				break
			}
		}
	}

	// A stored date after today means the clock went backwards; the bonus
	// date never moves back.
	if state.LastDailyBonusDate == "" || state.LastDailyBonusDate < today {
		if piece, ok := pickRandom(taken, rnd); ok {
			stage(piece, metrics.RuleDaily)
			plan.DailyBonus = true
		}
	}

	return plan
}

func pickRandom(taken map[int]bool, rnd RandSource) (int, bool) {
	candidates := make([]int, 0, models.PieceCount)
	for p := 0; p < models.PieceCount; p++ {
		if !taken[p] {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rnd.IntN(len(candidates))], true
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, models.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/metrics"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"golang.org/x/time/rate"
)

// Deliverer hands a chat message to the receiving user.
type Deliverer interface {
	DeliverChat(ctx context.Context, from *models.User, toUserID int64, text string) error
}

// SendResult reports the two steps of sending separately: the message was
// delivered, while the puzzle update may still have failed.
type SendResult struct {
	Message   *models.ChatMessage
	Partner   *models.User
	Reveal    *models.RevealResult
	PuzzleErr error
}

// limiterIdleTTL is how long a user's limiter is kept after their last
// message. A limiter idle this long has refilled completely.
const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ChatService struct {
	messageRepo *db.MessageRepository
	matches     *MatchService
	engine      *PuzzleEngine
	deliverer   Deliverer
	metrics     *metrics.Metrics

	mu        sync.Mutex
	limiters  map[int64]*userLimiter
	lastSweep time.Time
	limit     rate.Limit
	burst     int
}

// NewChatService limits each user to perMinute messages; perMinute <= 0
// disables the limit.
func NewChatService(messageRepo *db.MessageRepository, matches *MatchService, engine *PuzzleEngine, deliverer Deliverer, perMinute int, m *metrics.Metrics) *ChatService {
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	return &ChatService{
		messageRepo: messageRepo,
		matches:     matches,
		engine:      engine,
		deliverer:   deliverer,
		metrics:     m,
		limiters:    make(map[int64]*userLimiter),
		limit:       limit,
		burst:       burst,
	}
}

// Send stores and delivers text to the sender's partner of the day, then
// updates the conversation puzzle. A puzzle failure does not fail the send.
func (s *ChatService) Send(ctx context.Context, from *models.User, text string, now time.Time) (*SendResult, error) {
	if !s.allow(from.ID, now) {
		return nil, models.ErrRateLimited
	}

	partner, err := s.matches.CurrentPartner(from.ID, now)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ConversationID: ConversationID(from.ParticipantID(), partner.ParticipantID()),
		SenderID:       from.ID,
		ReceiverID:     partner.ID,
		Text:           text,
		CreatedAt:      now.UTC(),
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	if err := s.deliverer.DeliverChat(ctx, from, partner.ID, text); err != nil {
		log.Printf("[CHAT] Failed to deliver message %s to %d: %v", msg.ID, partner.ID, err)
		return nil, fmt.Errorf("deliver message: %w", err)
	}
	s.metrics.MessageRelayed()

	result := &SendResult{Message: msg, Partner: partner}
	result.Reveal, result.PuzzleErr = s.engine.OnMessageSent(ctx, msg.ConversationID, from.ParticipantID(), text, now)
	return result, nil
}

// Puzzle returns the puzzle state shared with today's partner.
func (s *ChatService) Puzzle(ctx context.Context, userID int64, now time.Time) (*models.PuzzleState, *models.User, error) {
	partner, err := s.matches.CurrentPartner(userID, now)
	if err != nil {
		return nil, nil, err
	}
	state, err := s.engine.State(ctx, ConversationID(strconv.FormatInt(userID, 10), partner.ParticipantID()))
	if err != nil {
		return nil, nil, err
	}
	return state, partner, nil
}

// History returns the latest messages with today's partner, oldest first.
func (s *ChatService) History(userID int64, now time.Time, limit int) ([]*models.ChatMessage, *models.User, error) {
	partner, err := s.matches.CurrentPartner(userID, now)
	if err != nil {
		return nil, nil, err
	}
	recent, err := s.messageRepo.ListRecent(ConversationID(strconv.FormatInt(userID, 10), partner.ParticipantID()), limit)
	if err != nil {
		return nil, nil, err
	}
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, partner, nil
}

func (s *ChatService) allow(userID int64, now time.Time) bool {
	if s.limit == rate.Inf {
		return true
	}

	s.mu.Lock()
	if now.Sub(s.lastSweep) >= limiterIdleTTL {
		s.evictIdle(now)
	}
	l, ok := s.limiters[userID]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[userID] = l
	}
	l.lastSeen = now
	s.mu.Unlock()
	return l.limiter.AllowN(now, 1)
}

// evictIdle drops limiters unused for limiterIdleTTL. Callers hold s.mu.
func (s *ChatService) evictIdle(now time.Time) {
	for id, l := range s.limiters {
		if now.Sub(l.lastSeen) >= limiterIdleTTL {
			delete(s.limiters, id)
		}
	}
	s.lastSweep = now
}

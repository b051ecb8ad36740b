package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/metrics"
	"github.com/ad/go-telegram-puzzle/internal/models"
)

// MatchService hands out one partner per user per UTC day. The selection is
// a placeholder: the earliest registered eligible user wins.
type MatchService struct {
	matchRepo *db.MatchRepository
	userRepo  *db.UserRepository
	metrics   *metrics.Metrics
}

func NewMatchService(matchRepo *db.MatchRepository, userRepo *db.UserRepository, m *metrics.Metrics) *MatchService {
	return &MatchService{
		matchRepo: matchRepo,
		userRepo:  userRepo,
		metrics:   m,
	}
}

// GetDailyMatch returns today's partner, creating the match if needed.
func (s *MatchService) GetDailyMatch(userID int64, now time.Time) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, models.ErrNoMatch
	}
	if !user.HasPhoto() {
		return nil, fmt.Errorf("%w: user %d has no profile photo", models.ErrInvalidArgument, userID)
	}

	date := models.DateOf(now)
	match, err := s.matchRepo.GetForDate(userID, date)
	if errors.Is(err, models.ErrNotFound) {
		match, err = s.matchRepo.CreatePair(userID, date)
		if err == nil {
			s.metrics.MatchCreated()
			log.Printf("[MATCH] %d matched with %d for %s", userID, match.PartnerID, date)
		}
	}
	if err != nil {
		return nil, err
	}

	return s.userRepo.GetByID(match.PartnerID)
}

// CurrentPartner returns today's partner without creating a match.
func (s *MatchService) CurrentPartner(userID int64, now time.Time) (*models.User, error) {
	match, err := s.matchRepo.GetForDate(userID, models.DateOf(now))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNoMatch
		}
		return nil, err
	}
	return s.userRepo.GetByID(match.PartnerID)
}

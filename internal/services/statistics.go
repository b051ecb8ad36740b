package services

import (
	"fmt"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/models"
)

type Statistics struct {
	Users            int
	MatchesToday     int
	Conversations    int
	CompletedPuzzles int
}

type StatisticsService struct {
	userRepo   *db.UserRepository
	matchRepo  *db.MatchRepository
	puzzleRepo *db.PuzzleRepository
}

func NewStatisticsService(userRepo *db.UserRepository, matchRepo *db.MatchRepository, puzzleRepo *db.PuzzleRepository) *StatisticsService {
	return &StatisticsService{
		userRepo:   userRepo,
		matchRepo:  matchRepo,
		puzzleRepo: puzzleRepo,
	}
}

func (s *StatisticsService) Collect(now time.Time) (*Statistics, error) {
	var stats Statistics
	var err error

	if stats.Users, err = s.userRepo.Count(); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if stats.MatchesToday, err = s.matchRepo.CountForDate(models.DateOf(now)); err != nil {
		return nil, fmt.Errorf("count matches: %w", err)
	}
	if stats.Conversations, err = s.puzzleRepo.CountConversations(); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	if stats.CompletedPuzzles, err = s.puzzleRepo.CountCompleted(); err != nil {
		return nil, fmt.Errorf("count completed puzzles: %w", err)
	}
	return &stats, nil
}

func FormatStatistics(s *Statistics) string {
	return fmt.Sprintf("📊 Statistics\n\n👥 Users: %d\n💞 Matches today: %d\n💬 Conversations: %d\n🧩 Completed puzzles: %d",
		s.Users, s.MatchesToday, s.Conversations, s.CompletedPuzzles)
}

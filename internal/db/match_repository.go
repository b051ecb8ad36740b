package db

import (
	"database/sql"
	"errors"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

type MatchRepository struct {
	queue *DBQueue
}

func NewMatchRepository(queue *DBQueue) *MatchRepository {
	return &MatchRepository{queue: queue}
}

func (r *MatchRepository) GetForDate(userID int64, date string) (*models.Match, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var m models.Match
		err := db.QueryRow(`
			SELECT user_id, partner_id, match_date, created_at
			FROM daily_matches WHERE user_id = ? AND match_date = ?
		`, userID, date).Scan(&m.UserID, &m.PartnerID, &m.MatchDate, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		return &m, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return result.(*models.Match), nil
}

// CreatePair picks the first eligible candidate for userID on date and stores
// the match for both sides in one transaction. Eligible candidates are other
// unblocked users with a photo and no match on that date.
func (r *MatchRepository) CreatePair(userID int64, date string) (*models.Match, error) {
	result, err := r.queue.ExecuteTx(func(tx *sql.Tx) (interface{}, error) {
		var existing int64
		err := tx.QueryRow(`
			SELECT partner_id FROM daily_matches WHERE user_id = ? AND match_date = ?
		`, userID, date).Scan(&existing)
		if err == nil {
			return &models.Match{UserID: userID, PartnerID: existing, MatchDate: date}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		var partnerID int64
		err = tx.QueryRow(`
			SELECT u.id FROM users u
			WHERE u.id != ?
			  AND COALESCE(u.is_blocked, FALSE) = FALSE
			  AND COALESCE(u.photo_file_id, '') != ''
			  AND NOT EXISTS (
				SELECT 1 FROM daily_matches m WHERE m.user_id = u.id AND m.match_date = ?
			  )
			ORDER BY u.created_at, u.id
			LIMIT 1
		`, userID, date).Scan(&partnerID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNoMatch
		}
		if err != nil {
			return nil, err
		}

		for _, pair := range [][2]int64{{userID, partnerID}, {partnerID, userID}} {
			if _, err := tx.Exec(`
				INSERT INTO daily_matches (user_id, match_date, partner_id) VALUES (?, ?, ?)
			`, pair[0], date, pair[1]); err != nil {
				return nil, err
			}
		}
		return &models.Match{UserID: userID, PartnerID: partnerID, MatchDate: date}, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Match), nil
}

func (r *MatchRepository) CountForDate(date string) (int, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) / 2 FROM daily_matches WHERE match_date = ?`, date).Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

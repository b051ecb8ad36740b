package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

const DefaultPuzzleMaxAttempts = 5

// PuzzleRepository stores one puzzle state row per conversation and offers an
// optimistic read-modify-write over it. Every committed write bumps the row
// version; a write against a stale version is rejected and the whole
// read-modify-write is replayed.
type PuzzleRepository struct {
	queue       *DBQueue
	maxAttempts int
	onConflict  func(conversationID string)

	// test hook, runs between the read and the conditional write
	beforeWrite func(attempt int)
}

func NewPuzzleRepository(queue *DBQueue, maxAttempts int) *PuzzleRepository {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPuzzleMaxAttempts
	}
	return &PuzzleRepository{queue: queue, maxAttempts: maxAttempts}
}

// SetConflictHook registers a callback invoked on every rejected write.
func (r *PuzzleRepository) SetConflictHook(fn func(conversationID string)) {
	r.onConflict = fn
}

// Get returns the persisted state, or the default empty state when the
// conversation has no puzzle yet.
func (r *PuzzleRepository) Get(ctx context.Context, conversationID string) (*models.PuzzleState, error) {
	state, err := r.load(ctx, conversationID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load puzzle %s: %w", models.ErrStoreUnavailable, conversationID, err)
	}
	return state, nil
}

// Transact reads the state of conversationID, lets fn modify a copy of it and
// writes the copy back if nobody else committed in between. fn may run more
// than once and must derive everything it writes from the state it is given.
func (r *PuzzleRepository) Transact(ctx context.Context, conversationID string, fn func(state *models.PuzzleState) error) (*models.PuzzleState, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		current, err := r.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.ConversationID = conversationID
		next.RevealedPieces = models.NormalizePieces(next.RevealedPieces)
		next.UpdatedAt = time.Now().UTC()

		if r.beforeWrite != nil {
			r.beforeWrite(attempt)
		}

		applied, err := r.compareAndSwap(ctx, current.Version, next)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: write puzzle %s: %w", models.ErrStoreUnavailable, conversationID, err)
		}
		if applied {
			next.Version = current.Version + 1
			return next, nil
		}

		log.Printf("[PUZZLE] Write conflict on %s (attempt %d/%d)", conversationID, attempt, r.maxAttempts)
		if r.onConflict != nil {
			r.onConflict(conversationID)
		}
	}
	return nil, fmt.Errorf("%w: conversation %s not committed after %d attempts", models.ErrConcurrencyConflict, conversationID, r.maxAttempts)
}

func (r *PuzzleRepository) load(ctx context.Context, conversationID string) (*models.PuzzleState, error) {
	result, err := r.queue.ExecuteContext(ctx, func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT revealed_pieces, last_message_sender, last_daily_bonus_date, version, updated_at
			FROM conversation_puzzles WHERE conversation_id = ?
		`, conversationID)

		var piecesJSON string
		var updatedAt sql.NullTime
		state := &models.PuzzleState{ConversationID: conversationID}
		err := row.Scan(&piecesJSON, &state.LastMessageSender, &state.LastDailyBonusDate, &state.Version, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.PuzzleState{ConversationID: conversationID, RevealedPieces: []int{}}, nil
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(piecesJSON), &state.RevealedPieces); err != nil {
			return nil, fmt.Errorf("decode revealed pieces: %w", err)
		}
		state.RevealedPieces = models.NormalizePieces(state.RevealedPieces)
		if updatedAt.Valid {
			state.UpdatedAt = updatedAt.Time
		}
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.PuzzleState), nil
}

// compareAndSwap writes next only if the stored version still equals
// expectedVersion. Only the puzzle columns are written; created_at and any
// other columns keep their values.
func (r *PuzzleRepository) compareAndSwap(ctx context.Context, expectedVersion int64, next *models.PuzzleState) (bool, error) {
	piecesJSON, err := json.Marshal(next.RevealedPieces)
	if err != nil {
		return false, err
	}

	result, err := r.queue.ExecuteWrite(ctx, func(db *sql.DB) (interface{}, error) {
		var res sql.Result
		var err error
		if expectedVersion == 0 {
			res, err = db.Exec(`
				INSERT INTO conversation_puzzles (conversation_id, revealed_pieces, last_message_sender, last_daily_bonus_date, version, updated_at)
				VALUES (?, ?, ?, ?, 1, ?)
				ON CONFLICT(conversation_id) DO NOTHING
			`, next.ConversationID, string(piecesJSON), next.LastMessageSender, next.LastDailyBonusDate, next.UpdatedAt)
		} else {
			res, err = db.Exec(`
				UPDATE conversation_puzzles SET
					revealed_pieces = ?,
					last_message_sender = ?,
					last_daily_bonus_date = ?,
					version = version + 1,
					updated_at = ?
				WHERE conversation_id = ? AND version = ?
			`, string(piecesJSON), next.LastMessageSender, next.LastDailyBonusDate, next.UpdatedAt, next.ConversationID, expectedVersion)
		}
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (r *PuzzleRepository) CountConversations() (int, error) {
	return r.count(`SELECT COUNT(*) FROM conversation_puzzles`)
}

func (r *PuzzleRepository) CountCompleted() (int, error) {
	return r.count(`SELECT COUNT(*) FROM conversation_puzzles WHERE json_array_length(revealed_pieces) >= ?`, models.PieceCount)
}

func (r *PuzzleRepository) count(query string, args ...interface{}) (int, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var count int
		err := db.QueryRow(query, args...).Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

package db

import (
	"database/sql"
	"errors"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

type ChatStateRepository struct {
	queue *DBQueue
}

func NewChatStateRepository(queue *DBQueue) *ChatStateRepository {
	return &ChatStateRepository{queue: queue}
}

// Get returns the stored state, or an empty state for unknown users.
func (r *ChatStateRepository) Get(userID int64) (*models.ChatState, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT user_id, current_state, last_puzzle_message_id, last_notice_message_id
			FROM user_chat_state WHERE user_id = ?
		`, userID)

		var state models.ChatState
		var puzzleMsgID, noticeMsgID sql.NullInt64
		err := row.Scan(&state.UserID, &state.CurrentState, &puzzleMsgID, &noticeMsgID)
		if err != nil {
			return nil, err
		}
		state.LastPuzzleMessageID = int(puzzleMsgID.Int64)
		state.LastNoticeMessageID = int(noticeMsgID.Int64)
		return &state, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ChatState{UserID: userID}, nil
		}
		return nil, err
	}
	return result.(*models.ChatState), nil
}

func (r *ChatStateRepository) SetState(userID int64, state string) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO user_chat_state (user_id, current_state)
			VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET current_state = excluded.current_state
		`, userID, state)
		return nil, err
	})
	return err
}

func (r *ChatStateRepository) UpdatePuzzleMessageID(userID int64, messageID int) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO user_chat_state (user_id, last_puzzle_message_id)
			VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET last_puzzle_message_id = excluded.last_puzzle_message_id
		`, userID, messageID)
		return nil, err
	})
	return err
}

func (r *ChatStateRepository) UpdateNoticeMessageID(userID int64, messageID int) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO user_chat_state (user_id, last_notice_message_id)
			VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET last_notice_message_id = excluded.last_notice_message_id
		`, userID, messageID)
		return nil, err
	})
	return err
}

func (r *ChatStateRepository) Clear(userID int64) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`DELETE FROM user_chat_state WHERE user_id = ?`, userID)
		return nil, err
	})
	return err
}

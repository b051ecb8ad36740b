package db

import (
	"database/sql"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
	"github.com/google/uuid"
)

type MessageRepository struct {
	queue *DBQueue
}

func NewMessageRepository(queue *DBQueue) *MessageRepository {
	return &MessageRepository{queue: queue}
}

// Create stores msg, assigning an id and timestamp when they are missing.
func (r *MessageRepository) Create(msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO chat_messages (id, conversation_id, sender_id, receiver_id, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, msg.Text, msg.CreatedAt)
		return nil, err
	})
	return err
}

// ListRecent returns up to limit newest messages of a conversation, newest first.
func (r *MessageRepository) ListRecent(conversationID string, limit int) ([]*models.ChatMessage, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`
			SELECT id, conversation_id, sender_id, receiver_id, text, created_at
			FROM chat_messages WHERE conversation_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		`, conversationID, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var messages []*models.ChatMessage
		for rows.Next() {
			var m models.ChatMessage
			if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Text, &m.CreatedAt); err != nil {
				return nil, err
			}
			messages = append(messages, &m)
		}
		return messages, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.ChatMessage), nil
}

func (r *MessageRepository) CountByConversation(conversationID string) (int, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE conversation_id = ?`, conversationID).Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

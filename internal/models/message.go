package models

import "time"

type ChatMessage struct {
	ID             string
	ConversationID string
	SenderID       int64
	ReceiverID     int64
	Text           string
	CreatedAt      time.Time
}

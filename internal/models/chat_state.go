package models

// ChatState tracks per-user bot UI state between updates.
type ChatState struct {
	UserID              int64
	CurrentState        string
	LastPuzzleMessageID int
	LastNoticeMessageID int
}

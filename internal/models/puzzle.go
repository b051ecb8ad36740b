package models

import (
	"fmt"
	"sort"
	"time"
)

const (
	GridSize   = 6
	PieceCount = GridSize * GridSize

	// ContentBonusMinLength is the message length (in characters) that earns
	// a core piece.
	ContentBonusMinLength = 50

	DateLayout = "2006-01-02"
)

// CorePieces are the center-of-grid pieces unlocked by long messages,
// in the order they are handed out.
var CorePieces = [...]int{14, 15, 20, 21}

// PuzzleState is the durable reveal state of one conversation.
type PuzzleState struct {
	ConversationID     string
	RevealedPieces     []int
	LastMessageSender  string
	LastDailyBonusDate string
	Version            int64
	UpdatedAt          time.Time
}

// Clone returns a deep copy so callers can mutate it without touching the original.
func (s *PuzzleState) Clone() *PuzzleState {
	c := *s
	c.RevealedPieces = append([]int(nil), s.RevealedPieces...)
	return &c
}

func (s *PuzzleState) IsRevealed(index int) bool {
	for _, p := range s.RevealedPieces {
		if p == index {
			return true
		}
	}
	return false
}

func (s *PuzzleState) IsComplete() bool {
	return len(s.RevealedPieces) >= PieceCount
}

// MessageEvent is a sent chat message as seen by the puzzle engine.
type MessageEvent struct {
	SenderID   string
	ReceiverID string
	Text       string
	SentAt     time.Time
}

type RevealResult struct {
	ConversationID    string
	RevealedPieces    []int
	NewlyRevealed     []int
	DailyBonusGranted bool
	Completed         bool
}

// PieceCoord maps a piece index to its row and column in the grid.
func PieceCoord(index int) (row, col int, err error) {
	if index < 0 || index >= PieceCount {
		return 0, 0, fmt.Errorf("%w: piece index %d out of range", ErrInvalidArgument, index)
	}
	return index / GridSize, index % GridSize, nil
}

// PieceIndex is the inverse of PieceCoord.
func PieceIndex(row, col int) (int, error) {
	if row < 0 || row >= GridSize || col < 0 || col >= GridSize {
		return 0, fmt.Errorf("%w: cell (%d,%d) out of range", ErrInvalidArgument, row, col)
	}
	return row*GridSize + col, nil
}

// NormalizePieces returns the sorted, de-duplicated in-range subset of pieces.
func NormalizePieces(pieces []int) []int {
	seen := make(map[int]bool, len(pieces))
	out := make([]int, 0, len(pieces))
	for _, p := range pieces {
		if p < 0 || p >= PieceCount || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

package services

import (
	"fmt"
	"strings"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

const (
	revealedCell = "🟩"
	hiddenCell   = "⬛"
)

// PuzzleCell is one grid position as shown to clients.
type PuzzleCell struct {
	Index    int  `json:"index"`
	Row      int  `json:"row"`
	Col      int  `json:"col"`
	Revealed bool `json:"revealed"`
}

type PuzzleRenderer struct{}

func NewPuzzleRenderer() *PuzzleRenderer {
	return &PuzzleRenderer{}
}

// Cells lists all grid positions in row-major order.
func (r *PuzzleRenderer) Cells(revealed []int) []PuzzleCell {
	set := make(map[int]bool, len(revealed))
	for _, p := range revealed {
		set[p] = true
	}
	cells := make([]PuzzleCell, 0, models.PieceCount)
	for i := 0; i < models.PieceCount; i++ {
		row, col, _ := models.PieceCoord(i)
		cells = append(cells, PuzzleCell{Index: i, Row: row, Col: col, Revealed: set[i]})
	}
	return cells
}

// RenderGrid draws the grid as GridSize lines of emoji squares.
func (r *PuzzleRenderer) RenderGrid(revealed []int) string {
	var sb strings.Builder
	for _, cell := range r.Cells(revealed) {
		if cell.Revealed {
			sb.WriteString(revealedCell)
		} else {
			sb.WriteString(hiddenCell)
		}
		if cell.Col == models.GridSize-1 && cell.Row < models.GridSize-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// RenderProgress is the grid with a caption describing the latest reveal.
func (r *PuzzleRenderer) RenderProgress(result *models.RevealResult) string {
	var sb strings.Builder
	sb.WriteString(r.RenderGrid(result.RevealedPieces))
	sb.WriteString(fmt.Sprintf("\n\n🧩 %d/%d pieces revealed", len(result.RevealedPieces), models.PieceCount))
	if n := len(result.NewlyRevealed); n > 0 {
		sb.WriteString(fmt.Sprintf(" (+%d)", n))
	}
	if result.DailyBonusGranted {
		sb.WriteString("\n🎁 Daily bonus piece unlocked!")
	}
	return sb.String()
}

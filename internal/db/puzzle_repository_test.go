package db

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
	"pgregory.net/rapid"
)

func TestPuzzleRepository_GetDefaultsWhenAbsent(t *testing.T) {
	repo := NewPuzzleRepository(newTestQueue(t), 0)

	state, err := repo.Get(context.Background(), "1_2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if state.ConversationID != "1_2" {
		t.Errorf("expected conversation id 1_2, got %q", state.ConversationID)
	}
	if len(state.RevealedPieces) != 0 || state.LastMessageSender != "" || state.LastDailyBonusDate != "" {
		t.Errorf("expected empty default state, got %+v", state)
	}
	if state.Version != 0 {
		t.Errorf("expected version 0 for absent state, got %d", state.Version)
	}
}

func TestPuzzleRepository_TransactPersists(t *testing.T) {
	repo := NewPuzzleRepository(newTestQueue(t), 0)
	ctx := context.Background()

	saved, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		s.RevealedPieces = append(s.RevealedPieces, 7, 3, 7)
		s.LastMessageSender = "1"
		s.LastDailyBonusDate = "2024-05-01"
		return nil
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("expected version 1 after first write, got %d", saved.Version)
	}

	state, err := repo.Get(ctx, "1_2")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.RevealedPieces) != 2 || state.RevealedPieces[0] != 3 || state.RevealedPieces[1] != 7 {
		t.Errorf("expected normalized pieces [3 7], got %v", state.RevealedPieces)
	}
	if state.LastMessageSender != "1" || state.LastDailyBonusDate != "2024-05-01" {
		t.Errorf("bookkeeping not persisted: %+v", state)
	}

	_, err = repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		s.RevealedPieces = append(s.RevealedPieces, 10)
		s.LastMessageSender = "2"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	state, _ = repo.Get(ctx, "1_2")
	if state.Version != 2 || len(state.RevealedPieces) != 3 || state.LastDailyBonusDate != "2024-05-01" {
		t.Errorf("unexpected state after second write: %+v", state)
	}
}

func TestPuzzleRepository_MergeWriteKeepsOtherColumns(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 0)
	ctx := context.Background()

	if _, err := queue.DB().Exec(`
		INSERT INTO conversation_puzzles (conversation_id, revealed_pieces, version, created_at)
		VALUES ('1_2', '[1]', 4, '2020-01-01 00:00:00')
	`); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		s.RevealedPieces = append(s.RevealedPieces, 2)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	var createdAt string
	var version int64
	if err := queue.DB().QueryRow(`SELECT created_at, version FROM conversation_puzzles WHERE conversation_id = '1_2'`).Scan(&createdAt, &version); err != nil {
		t.Fatal(err)
	}
	if version != 5 {
		t.Errorf("expected version 5, got %d", version)
	}
	if createdAt == "" || createdAt[:10] != "2020-01-01" {
		t.Errorf("created_at must be preserved, got %q", createdAt)
	}
}

func TestPuzzleRepository_ConflictReplaysFunction(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 0)
	ctx := context.Background()

	// A competing writer commits piece 5 between our first read and write.
	repo.beforeWrite = func(attempt int) {
		if attempt != 1 {
			return
		}
		other := NewPuzzleRepository(queue, 0)
		if _, err := other.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
			s.RevealedPieces = append(s.RevealedPieces, 5)
			return nil
		}); err != nil {
			t.Errorf("competing write failed: %v", err)
		}
	}

	var conflicts int
	repo.SetConflictHook(func(string) { conflicts++ })

	calls := 0
	state, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		calls++
		s.RevealedPieces = append(s.RevealedPieces, 9)
		return nil
	})
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected fn to run twice, ran %d times", calls)
	}
	if conflicts != 1 {
		t.Errorf("expected one conflict, got %d", conflicts)
	}
	if len(state.RevealedPieces) != 2 || state.RevealedPieces[0] != 5 || state.RevealedPieces[1] != 9 {
		t.Errorf("expected both writers' pieces [5 9], got %v", state.RevealedPieces)
	}
}

func TestPuzzleRepository_RetryBudgetExhausted(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 3)
	ctx := context.Background()

	other := NewPuzzleRepository(queue, 0)
	repo.beforeWrite = func(int) {
		other.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
			s.LastMessageSender = "2"
			return nil
		})
	}

	calls := 0
	_, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		calls++
		return nil
	})
	if !errors.Is(err, models.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestPuzzleRepository_FnErrorAborts(t *testing.T) {
	repo := NewPuzzleRepository(newTestQueue(t), 0)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		s.RevealedPieces = append(s.RevealedPieces, 1)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	state, _ := repo.Get(ctx, "1_2")
	if state.Version != 0 || len(state.RevealedPieces) != 0 {
		t.Errorf("aborted transaction must not write, got %+v", state)
	}
}

func TestPuzzleRepository_StoreUnavailable(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 0)

	if _, err := queue.DB().Exec(`DROP TABLE conversation_puzzles`); err != nil {
		t.Fatal(err)
	}

	_, err := repo.Transact(context.Background(), "1_2", func(*models.PuzzleState) error { return nil })
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestPuzzleRepository_CancelledContext(t *testing.T) {
	repo := NewPuzzleRepository(newTestQueue(t), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Transact(ctx, "1_2", func(*models.PuzzleState) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPuzzleRepository_CancelWhileWriteQueuedReportsCommit(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.beforeWrite = func(int) {
		// Occupy the worker so the write waits in the queue while ctx is cancelled.
		started := make(chan struct{})
		go queue.Execute(func(*sql.DB) (interface{}, error) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			return nil, nil
		})
		<-started
		time.AfterFunc(20*time.Millisecond, cancel)
	}

	saved, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
		s.RevealedPieces = append(s.RevealedPieces, 7)
		return nil
	})
	if err != nil {
		t.Fatalf("write was queued before cancel, expected success, got %v", err)
	}
	if saved.Version != 1 {
		t.Errorf("expected version 1, got %d", saved.Version)
	}

	stored, err := repo.Get(context.Background(), "1_2")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Version != saved.Version || len(stored.RevealedPieces) != 1 || stored.RevealedPieces[0] != 7 {
		t.Errorf("returned %+v does not match stored %+v", saved, stored)
	}
}

func TestPuzzleRepository_ConcurrentIncrementsNotLost(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 100)
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(piece int) {
			defer wg.Done()
			if _, err := repo.Transact(ctx, "1_2", func(s *models.PuzzleState) error {
				s.RevealedPieces = append(s.RevealedPieces, piece)
				return nil
			}); err != nil {
				t.Errorf("writer %d failed: %v", piece, err)
			}
		}(i)
	}
	wg.Wait()

	state, err := repo.Get(ctx, "1_2")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.RevealedPieces) != writers {
		t.Fatalf("expected %d pieces, got %v", writers, state.RevealedPieces)
	}
	if state.Version != writers {
		t.Errorf("expected version %d, got %d", writers, state.Version)
	}
}

func TestPuzzleRepository_MonotonicPieces_Property(t *testing.T) {
	queue := newTestQueue(t)
	repo := NewPuzzleRepository(queue, 0)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		id := rapid.StringMatching(`[a-z]{1,6}_[a-z]{1,6}`).Draw(rt, "id")
		before, err := repo.Get(ctx, id)
		if err != nil {
			rt.Fatal(err)
		}
		add := rapid.SliceOf(rapid.IntRange(0, models.PieceCount-1)).Draw(rt, "add")

		after, err := repo.Transact(ctx, id, func(s *models.PuzzleState) error {
			s.RevealedPieces = append(s.RevealedPieces, add...)
			return nil
		})
		if err != nil {
			rt.Fatal(err)
		}
		for _, p := range before.RevealedPieces {
			if !after.IsRevealed(p) {
				rt.Fatalf("piece %d disappeared", p)
			}
		}
		for _, p := range add {
			if !after.IsRevealed(p) {
				rt.Fatalf("piece %d not stored", p)
			}
		}
	})
}

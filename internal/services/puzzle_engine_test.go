package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/db"
	"github.com/ad/go-telegram-puzzle/internal/models"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"
)

var day1 = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, rnd RandSource) (*PuzzleEngine, *db.PuzzleRepository) {
	t.Helper()
	repo := db.NewPuzzleRepository(setupTestQueue(t), 0)
	return NewPuzzleEngine(repo, rnd, nil), repo
}

func seedState(t *testing.T, repo *db.PuzzleRepository, id string, pieces []int, lastSender, bonusDate string) {
	t.Helper()
	_, err := repo.Transact(context.Background(), id, func(s *models.PuzzleState) error {
		s.RevealedPieces = pieces
		s.LastMessageSender = lastSender
		s.LastDailyBonusDate = bonusDate
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func allPieces() []int {
	pieces := make([]int, models.PieceCount)
	for i := range pieces {
		pieces[i] = i
	}
	return pieces
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPuzzleEngine_FirstMessageAndReply(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")

	// A opens with a short message: turn piece plus the day's bonus.
	res, err := engine.OnMessageSent(ctx, id, "A", "hi", day1)
	if err != nil {
		t.Fatalf("OnMessageSent failed: %v", err)
	}
	if !equalInts(res.NewlyRevealed, []int{0, 1}) {
		t.Fatalf("expected newly revealed [0 1], got %v", res.NewlyRevealed)
	}
	if len(res.RevealedPieces) != 2 {
		t.Fatalf("expected exactly 2 revealed pieces, got %v", res.RevealedPieces)
	}
	if !res.DailyBonusGranted {
		t.Error("expected the daily bonus on the first message of the day")
	}

	state, _ := repo.Get(ctx, id)
	if state.LastMessageSender != "A" || state.LastDailyBonusDate != "2024-05-01" {
		t.Errorf("unexpected bookkeeping %+v", state)
	}

	// B replies with a long message the same day: turn piece and core piece 14.
	long := strings.Repeat("x", 60)
	res, err = engine.OnMessageSent(ctx, id, "B", long, day1.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !equalInts(res.NewlyRevealed, []int{2, 14}) {
		t.Fatalf("expected newly revealed [2 14], got %v", res.NewlyRevealed)
	}
	if res.DailyBonusGranted {
		t.Error("daily bonus must not fire twice on the same day")
	}
	if !equalInts(res.RevealedPieces, []int{0, 1, 2, 14}) {
		t.Errorf("expected revealed [0 1 2 14], got %v", res.RevealedPieces)
	}
}

func TestPuzzleEngine_SameSenderShortMessageRevealsNothing(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	seedState(t, repo, id, []int{3, 4}, "A", "2024-05-01")

	res, err := engine.OnMessageSent(ctx, id, "A", "still me", day1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NewlyRevealed) != 0 {
		t.Errorf("expected nothing revealed, got %v", res.NewlyRevealed)
	}
	if !equalInts(res.RevealedPieces, []int{3, 4}) {
		t.Errorf("revealed set changed: %v", res.RevealedPieces)
	}
}

func TestPuzzleEngine_ContentBonusLowestCorePiece(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	long := strings.Repeat("é", 50) // multibyte, 50 characters

	seedState(t, repo, id, []int{14}, "A", "2024-05-01")
	res, err := engine.OnMessageSent(ctx, id, "A", long, day1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalInts(res.NewlyRevealed, []int{15}) {
		t.Fatalf("expected core piece 15, got %v", res.NewlyRevealed)
	}

	seedState(t, repo, id, []int{14, 15, 20, 21}, "A", "2024-05-01")
	res, err = engine.OnMessageSent(ctx, id, "A", long, day1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NewlyRevealed) != 0 {
		t.Errorf("all core pieces revealed, expected nothing, got %v", res.NewlyRevealed)
	}

	res, err = engine.OnMessageSent(ctx, id, "A", strings.Repeat("x", 49), day1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NewlyRevealed) != 0 {
		t.Errorf("49 characters must not earn a core piece, got %v", res.NewlyRevealed)
	}
}

func TestPuzzleEngine_ContentBonusSkipsPieceStagedByTurn(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")

	// Only 14 and 15 are hidden. The turn piece takes 14, so the content
	// bonus must move on to 15.
	var pieces []int
	for p := 0; p < models.PieceCount; p++ {
		if p != 14 && p != 15 {
			pieces = append(pieces, p)
		}
	}
	seedState(t, repo, id, pieces, "A", "2024-05-01")

	res, err := engine.OnMessageSent(ctx, id, "B", strings.Repeat("y", 80), day1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalInts(res.NewlyRevealed, []int{14, 15}) {
		t.Fatalf("expected [14 15], got %v", res.NewlyRevealed)
	}
	if !res.Completed {
		t.Error("expected the puzzle to be reported as completed")
	}
}

func TestPuzzleEngine_DailyBonusWithNothingLeftKeepsDate(t *testing.T) {
	engine, repo := newTestEngine(t, lastRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	seedState(t, repo, id, allPieces()[:35], "A", "2024-04-30")

	res, err := engine.OnMessageSent(ctx, id, "B", "hey", day1)
	if err != nil {
		t.Fatal(err)
	}
	if !equalInts(res.NewlyRevealed, []int{35}) {
		t.Fatalf("expected turn piece 35 only, got %v", res.NewlyRevealed)
	}
	if res.DailyBonusGranted {
		t.Error("no piece was left for the daily bonus")
	}

	state, _ := repo.Get(ctx, id)
	if state.LastDailyBonusDate != "2024-04-30" {
		t.Errorf("bonus date must stay unchanged, got %q", state.LastDailyBonusDate)
	}
	if state.LastMessageSender != "B" {
		t.Errorf("expected last sender B, got %q", state.LastMessageSender)
	}
}

func TestPuzzleEngine_DailyBonusNotGrantedForPastDay(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	seedState(t, repo, id, nil, "A", "2024-05-02")

	res, err := engine.OnMessageSent(ctx, id, "A", "hi", day1)
	if err != nil {
		t.Fatal(err)
	}
	if res.DailyBonusGranted || len(res.NewlyRevealed) != 0 {
		t.Errorf("bonus date in the future must block the bonus, got %+v", res)
	}
	state, _ := repo.Get(ctx, id)
	if state.LastDailyBonusDate != "2024-05-02" {
		t.Errorf("bonus date moved backwards to %q", state.LastDailyBonusDate)
	}
}

func TestPuzzleEngine_DailyBonusUsesUTCDate(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	seedState(t, repo, id, nil, "A", "2024-05-01")

	// 01:00 on May 2nd in UTC+3 is still May 1st in UTC.
	local := time.Date(2024, 5, 2, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))
	res, err := engine.OnMessageSent(ctx, id, "A", "hi", local)
	if err != nil {
		t.Fatal(err)
	}
	if res.DailyBonusGranted {
		t.Error("same UTC day must not grant a second bonus")
	}
}

func TestPuzzleEngine_InvalidSender(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")

	for _, sender := range []string{"C", "", "A_B"} {
		if _, err := engine.OnMessageSent(ctx, id, sender, "hi", day1); !errors.Is(err, models.ErrInvalidArgument) {
			t.Errorf("sender %q: expected ErrInvalidArgument, got %v", sender, err)
		}
	}

	state, _ := repo.Get(ctx, id)
	if state.Version != 0 {
		t.Errorf("invalid calls must not write, got version %d", state.Version)
	}
}

func TestPuzzleEngine_OnMessageDerivesConversation(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()

	_, err := engine.OnMessage(ctx, models.MessageEvent{SenderID: "B", ReceiverID: "A", Text: "hi", SentAt: day1})
	if err != nil {
		t.Fatal(err)
	}
	state, _ := repo.Get(ctx, "A_B")
	if state.LastMessageSender != "B" || len(state.RevealedPieces) != 2 {
		t.Errorf("unexpected state %+v", state)
	}
}

// propertyConversation returns fresh participants for every rapid iteration,
// so iterations can share one repository.
func propertyConversation(iteration *int) (a, b, id string) {
	*iteration++
	a = fmt.Sprintf("a%d", *iteration)
	b = fmt.Sprintf("b%d", *iteration)
	return a, b, ConversationID(a, b)
}

func TestPuzzleEngine_AlternatingMessages_Property(t *testing.T) {
	_, repo := newTestEngine(t, nil)
	iteration := 0

	rapid.Check(t, func(rt *rapid.T) {
		engine := NewPuzzleEngine(repo, NewLockedRand(rapid.Uint64().Draw(rt, "seed")), nil)
		ctx := context.Background()
		a, b, id := propertyConversation(&iteration)
		// Today's bonus already granted, so only turn switches reveal pieces.
		_, err := repo.Transact(ctx, id, func(s *models.PuzzleState) error {
			s.LastDailyBonusDate = "2024-05-01"
			return nil
		})
		if err != nil {
			rt.Fatal(err)
		}

		n := rapid.IntRange(0, 45).Draw(rt, "n")
		var res *models.RevealResult
		for i := 0; i < n; i++ {
			sender := []string{a, b}[i%2]
			var err error
			res, err = engine.OnMessageSent(ctx, id, sender, "ok", day1)
			if err != nil {
				rt.Fatal(err)
			}
		}

		state, _ := repo.Get(ctx, id)
		if len(state.RevealedPieces) != min(n, models.PieceCount) {
			rt.Fatalf("after %d alternating messages expected %d pieces, got %d", n, min(n, models.PieceCount), len(state.RevealedPieces))
		}
		if res != nil && !equalInts(res.RevealedPieces, state.RevealedPieces) {
			rt.Fatalf("result %v differs from stored %v", res.RevealedPieces, state.RevealedPieces)
		}
	})
}

func TestPuzzleEngine_NoDuplicateReveal_Property(t *testing.T) {
	_, repo := newTestEngine(t, nil)
	iteration := 0

	rapid.Check(t, func(rt *rapid.T) {
		engine := NewPuzzleEngine(repo, NewLockedRand(rapid.Uint64().Draw(rt, "seed")), nil)
		ctx := context.Background()
		a, b, id := propertyConversation(&iteration)

		bonusDays := map[string]int{}
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		now := day1
		for i := 0; i < steps; i++ {
			sender := rapid.SampledFrom([]string{a, b}).Draw(rt, "sender")
			length := rapid.IntRange(0, 120).Draw(rt, "length")
			now = now.Add(time.Duration(rapid.IntRange(0, 30).Draw(rt, "hours")) * time.Hour)

			before, _ := repo.Get(ctx, id)
			res, err := engine.OnMessageSent(ctx, id, sender, strings.Repeat("z", length), now)
			if err != nil {
				rt.Fatal(err)
			}

			if len(res.NewlyRevealed) > 3 {
				rt.Fatalf("more than 3 pieces in one call: %v", res.NewlyRevealed)
			}
			seen := map[int]bool{}
			for _, p := range res.NewlyRevealed {
				if seen[p] {
					rt.Fatalf("piece %d revealed twice in one call", p)
				}
				seen[p] = true
				if before.IsRevealed(p) {
					rt.Fatalf("piece %d was already revealed", p)
				}
			}
			if len(res.RevealedPieces) != len(before.RevealedPieces)+len(res.NewlyRevealed) {
				rt.Fatalf("revealed set is not the union of prior and new pieces")
			}
			if res.DailyBonusGranted {
				bonusDays[models.DateOf(now)]++
				if bonusDays[models.DateOf(now)] > 1 {
					rt.Fatalf("daily bonus granted twice on %s", models.DateOf(now))
				}
			}
			if before.IsComplete() && len(res.NewlyRevealed) != 0 {
				rt.Fatalf("complete puzzle changed: %v", res.NewlyRevealed)
			}
		}
	})
}

func TestPuzzleEngine_CompletePuzzleOnlyUpdatesBookkeeping(t *testing.T) {
	engine, repo := newTestEngine(t, firstRand{})
	ctx := context.Background()
	id := ConversationID("A", "B")
	seedState(t, repo, id, allPieces(), "A", "2024-04-01")

	res, err := engine.OnMessageSent(ctx, id, "B", strings.Repeat("q", 70), day1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.NewlyRevealed) != 0 || res.DailyBonusGranted || res.Completed {
		t.Errorf("complete puzzle must be a no-op, got %+v", res)
	}
	state, _ := repo.Get(ctx, id)
	if state.LastMessageSender != "B" {
		t.Errorf("last sender must still be updated, got %q", state.LastMessageSender)
	}
	if len(state.RevealedPieces) != models.PieceCount {
		t.Errorf("expected full grid, got %d pieces", len(state.RevealedPieces))
	}
}

func TestPuzzleEngine_ConcurrentMessagesUnion(t *testing.T) {
	engine, repo := newTestEngine(t, NewLockedRand(42))
	ctx := context.Background()
	id := ConversationID("A", "B")

	const callers = 8
	results := make([]*models.RevealResult, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			sender := []string{"A", "B"}[i%2]
			res, err := engine.OnMessageSent(ctx, id, sender, fmt.Sprintf("message %d", i), day1)
			if err != nil && !errors.Is(err, models.ErrConcurrencyConflict) {
				return fmt.Errorf("caller %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	union := map[int]bool{}
	total := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, p := range res.NewlyRevealed {
			if union[p] {
				t.Fatalf("piece %d revealed by two calls", p)
			}
			union[p] = true
			total++
		}
	}

	state, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(state.RevealedPieces) != total {
		t.Fatalf("stored %d pieces, calls reported %d: lost update", len(state.RevealedPieces), total)
	}
	for _, p := range state.RevealedPieces {
		if !union[p] {
			t.Fatalf("stored piece %d not reported by any call", p)
		}
	}
}

type failingStore struct {
	err   error
	calls int
}

func (s *failingStore) Get(context.Context, string) (*models.PuzzleState, error) {
	return nil, s.err
}

func (s *failingStore) Transact(context.Context, string, func(*models.PuzzleState) error) (*models.PuzzleState, error) {
	s.calls++
	return nil, s.err
}

func TestPuzzleEngine_PropagatesStoreErrors(t *testing.T) {
	for _, sentinel := range []error{models.ErrConcurrencyConflict, models.ErrStoreUnavailable} {
		store := &failingStore{err: fmt.Errorf("%w: test", sentinel)}
		engine := NewPuzzleEngine(store, firstRand{}, nil)

		_, err := engine.OnMessageSent(context.Background(), "A_B", "A", "hi", day1)
		if !errors.Is(err, sentinel) {
			t.Errorf("expected %v, got %v", sentinel, err)
		}
		if store.calls != 1 {
			t.Errorf("engine must not retry on its own, got %d calls", store.calls)
		}
	}
}

package db

import (
	"errors"
	"testing"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

func seedUser(t *testing.T, repo *UserRepository, id int64, photo string) {
	t.Helper()
	if err := repo.CreateOrUpdate(&models.User{ID: id, FirstName: "u"}); err != nil {
		t.Fatal(err)
	}
	if photo != "" {
		if err := repo.UpdatePhoto(id, photo); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMatchRepository_CreatePairIsSymmetric(t *testing.T) {
	queue := newTestQueue(t)
	users := NewUserRepository(queue)
	matches := NewMatchRepository(queue)

	seedUser(t, users, 1, "p1")
	seedUser(t, users, 2, "p2")

	m, err := matches.CreatePair(1, "2024-05-01")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	if m.PartnerID != 2 {
		t.Fatalf("expected partner 2, got %d", m.PartnerID)
	}

	back, err := matches.GetForDate(2, "2024-05-01")
	if err != nil {
		t.Fatalf("partner side not stored: %v", err)
	}
	if back.PartnerID != 1 {
		t.Errorf("expected reverse partner 1, got %d", back.PartnerID)
	}

	again, err := matches.CreatePair(1, "2024-05-01")
	if err != nil || again.PartnerID != 2 {
		t.Errorf("second CreatePair must return the existing match, got %+v (%v)", again, err)
	}

	count, _ := matches.CountForDate("2024-05-01")
	if count != 1 {
		t.Errorf("expected 1 match on date, got %d", count)
	}
}

func TestMatchRepository_SkipsIneligibleCandidates(t *testing.T) {
	queue := newTestQueue(t)
	users := NewUserRepository(queue)
	matches := NewMatchRepository(queue)

	seedUser(t, users, 1, "p1")
	seedUser(t, users, 2, "")   // no photo
	seedUser(t, users, 3, "p3") // blocked
	users.SetBlocked(3, true)

	if _, err := matches.CreatePair(1, "2024-05-01"); !errors.Is(err, models.ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}

	seedUser(t, users, 4, "p4")
	seedUser(t, users, 5, "p5")
	m, err := matches.CreatePair(4, "2024-05-01")
	if err != nil {
		t.Fatal(err)
	}
	if m.PartnerID != 1 {
		t.Errorf("expected earliest eligible partner 1, got %d", m.PartnerID)
	}
	// 1 and 4 are taken, 2 has no photo, 3 is blocked.
	if _, err := matches.CreatePair(5, "2024-05-01"); !errors.Is(err, models.ErrNoMatch) {
		t.Errorf("expected ErrNoMatch for 5, got %v", err)
	}

	if _, err := matches.GetForDate(1, "2024-05-02"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("matches must be per day, got %v", err)
	}
}

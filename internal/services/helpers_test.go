package services

import (
	"database/sql"
	"testing"

	"github.com/ad/go-telegram-puzzle/internal/db"
	_ "modernc.org/sqlite"
)

func setupTestQueue(t *testing.T) *db.DBQueue {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}

	queue := db.NewDBQueueForTest(sqlDB)
	t.Cleanup(func() {
		queue.Close()
		sqlDB.Close()
	})
	return queue
}

// firstRand always picks the first candidate.
type firstRand struct{}

func (firstRand) IntN(int) int { return 0 }

// lastRand always picks the last candidate.
type lastRand struct{}

func (lastRand) IntN(n int) int { return n - 1 }

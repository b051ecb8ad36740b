package db

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newTestQueue(t *testing.T) *DBQueue {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Every new connection would get its own empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}

	queue := NewDBQueueForTest(sqlDB)
	t.Cleanup(func() {
		queue.Close()
		sqlDB.Close()
	})
	return queue
}

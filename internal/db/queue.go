package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

type DBTask struct {
	Exec func(*sql.DB) (interface{}, error)
	Resp chan DBResult
}

type DBResult struct {
	Data interface{}
	Err  error
}

// DBQueue serializes all database work through a single worker so SQLite
// never sees competing writers.
type DBQueue struct {
	tasks      chan DBTask
	db         *sql.DB
	maxRetry   int
	retryDelay time.Duration
	testMode   bool
}

func NewDBQueue(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 100 * time.Millisecond,
		testMode:   false,
	}
	go q.worker()
	return q
}

func NewDBQueueForTest(db *sql.DB) *DBQueue {
	q := &DBQueue{
		tasks:      make(chan DBTask, 100),
		db:         db,
		maxRetry:   3,
		retryDelay: 1 * time.Millisecond, // Minimal delay for tests
		testMode:   true,
	}
	go q.worker()
	return q
}

func (q *DBQueue) Execute(task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	resp := make(chan DBResult, 1)
	q.tasks <- DBTask{Exec: task, Resp: resp}
	result := <-resp
	return result.Data, result.Err
}

// ExecuteContext is Execute that gives up waiting when ctx is done. A task
// that was already queued still runs.
func (q *DBQueue) ExecuteContext(ctx context.Context, task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := make(chan DBResult, 1)
	select {
	case q.tasks <- DBTask{Exec: task, Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-resp:
		return result.Data, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExecuteWrite checks ctx only until the task is queued. Once queued, it
// always waits for the result, so callers never report a write as failed
// after it was committed.
func (q *DBQueue) ExecuteWrite(ctx context.Context, task func(*sql.DB) (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := make(chan DBResult, 1)
	select {
	case q.tasks <- DBTask{Exec: task, Resp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	result := <-resp
	return result.Data, result.Err
}

// ExecuteTx runs fn inside a single SQL transaction on the worker.
func (q *DBQueue) ExecuteTx(fn func(*sql.Tx) (interface{}, error)) (interface{}, error) {
	return q.Execute(func(db *sql.DB) (interface{}, error) {
		tx, err := db.Begin()
		if err != nil {
			return nil, err
		}
		data, err := fn(tx)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return data, nil
	})
}

func (q *DBQueue) worker() {
	for task := range q.tasks {
		result := q.executeWithRetry(task)
		task.Resp <- result
	}
}

func (q *DBQueue) executeWithRetry(task DBTask) DBResult {
	var lastErr error
	for attempt := 0; attempt < q.maxRetry; attempt++ {
		data, err := task.Exec(q.db)
		if err == nil {
			return DBResult{Data: data, Err: nil}
		}
		if isPermanent(err) {
			return DBResult{Err: err}
		}
		lastErr = err
		if attempt < q.maxRetry-1 { // Don't sleep after the last attempt
			if q.testMode {
				time.Sleep(q.retryDelay)
			} else {
				time.Sleep(time.Duration(attempt+1) * q.retryDelay)
			}
		}
	}
	return DBResult{Err: lastErr}
}

// Missing rows and domain outcomes will not change on retry.
func isPermanent(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrNoMatch)
}

func (q *DBQueue) Close() {
	close(q.tasks)
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}

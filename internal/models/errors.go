package models

import "errors"

var (
	// ErrInvalidArgument marks a request that can never succeed as given,
	// e.g. a sender that is not a participant of the conversation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConcurrencyConflict is returned when a transactional update could not
	// be committed within the store's retry budget.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrStoreUnavailable wraps infrastructure failures of the underlying store.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNotFound    = errors.New("not found")
	ErrNoMatch     = errors.New("no match available")
	ErrRateLimited = errors.New("rate limited")
)

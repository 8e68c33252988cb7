package queue

import "errors"

var (
	// ErrQueueClosed is returned for operations on a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrItemNotFound is returned when no parked item has the given ID
	ErrItemNotFound = errors.New("item not found")

	// ErrMaxRetriesExceeded marks records that used up their write
	// attempts before being parked
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

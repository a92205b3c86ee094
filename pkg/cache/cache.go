package cache

import (
	"context"
	"io"
	"time"
)

// Backend is a shared, out-of-process cache of encoded records.
type Backend interface {
	// Get returns the value stored under key, or nil v on a miss.
	// storedTime is when the value was written, expirationTime when it
	// stops being valid.
	Get(ctx context.Context, key string) (v []byte, storedTime, expirationTime time.Time)

	// Store writes v until expirationTime. Values that are already
	// expired are ignored.
	Store(ctx context.Context, key string, v []byte, storedTime, expirationTime time.Time)

	Len() int

	io.Closer
}

// Package nonces is the single-use set that keeps sign-in nonces from being
// replayed. Entries live only as long as the challenge they belong to.
package nonces

import (
	"context"
	"errors"
	"time"
)

// ErrConsumed is returned when a nonce has already been used.
var ErrConsumed = errors.New("nonce already consumed")

// Store marks nonces as used. Consume checks and marks in one atomic step:
// of any number of concurrent calls with the same nonce, exactly one
// succeeds until the entry expires at until.
type Store interface {
	Consume(ctx context.Context, nonce string, until time.Time) error
}

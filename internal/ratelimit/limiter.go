// Package ratelimit holds the contracts for throttling and serializing calls to the mainframe.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ScopeMainframe throttles every outbound mainframe call of the deployment together.
const ScopeMainframe = "mainframe"

// RateLimiter controls call throughput per scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}

// ErrLockHeld is returned when another worker owns the lock.
var ErrLockHeld = errors.New("lock is held by another owner")

// Locker grants short-lived exclusive ownership of a key.
type Locker interface {
	// Acquire returns a release func, or ErrLockHeld when the key is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Package lock serializes mutating ledger operations per account.
package lock

import (
	"context"
	"slices"
)

// Release frees every key taken by one Acquire call. It is safe to call once.
type Release func()

// Locker grants exclusive access to a set of keys. Keys are always taken in
// ascending order so two callers locking the same pair cannot deadlock.
// Acquire returns an error wrapping domain.ErrLockTimeout when the keys
// cannot be obtained in time.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// orderKeys returns the distinct keys sorted ascending.
func orderKeys(keys []string) []string {
	ordered := slices.Clone(keys)
	slices.Sort(ordered)
	return slices.Compact(ordered)
}

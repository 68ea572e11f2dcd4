package lock

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrLockTimeout  = errors.New("lock_timeout")
	ErrLockKeyEmpty = errors.New("lock_key_empty")
)

// Locker serializes work on a key across callers. The returned release
// function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// StudentKey is the lock key guarding one student's balance.
func StudentKey(studentID string) string {
	return "feeledger:lock:student:" + strings.TrimSpace(studentID)
}

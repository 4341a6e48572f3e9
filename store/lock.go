package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLockTimeout is returned when the lock was not obtained in time.
	ErrLockTimeout = errors.New("lock timed out")
	// ErrLockUnavailable is returned when the lock target cannot be opened.
	ErrLockUnavailable = errors.New("lock target unavailable")
)

const defaultRetryDelay = 10 * time.Millisecond

// Locker hands out exclusive advisory locks on a single file. The lock is
// held through flock(2), so it excludes other processes as well as other
// goroutines of this one.
type Locker struct {
	path       string
	retryDelay time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockRetryDelay sets the pause between two acquisition attempts.
func WithLockRetryDelay(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retryDelay = d
		}
	}
}

// NewLocker returns a Locker on the file at path, created on first use.
func NewLocker(path string, opts ...LockerOption) *Locker {
	l := &Locker{
		path:       path,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock target.
func (l *Locker) Path() string {
	return l.path
}

// Acquire polls for the lock until it is held or timeout elapses. The lock
// is always tried once, so a zero timeout means a single attempt. The lock
// file is created if needed and never truncated.
func (l *Locker) Acquire(ctx context.Context, timeout time.Duration) (*Lock, error) {
	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if ok {
		return &Lock{fl: fl}, nil
	}
	if err == nil {
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err = fl.TryLockContext(waitCtx, l.retryDelay)
		if ok {
			return &Lock{fl: fl}, nil
		}
	}
	_ = fl.Close()

	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Ctx(ctx).Warn().
			Str("lock_file", l.path).
			Dur("timeout", timeout).
			Msg("unable to lock")
		return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, l.path, timeout)
	}

	log.Ctx(ctx).Error().Err(err).Str("lock_file", l.path).Msg("error opening lock file")
	return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	fl *flock.Flock
}

func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	fl := l.fl
	l.fl = nil
	return fl.Close()
}

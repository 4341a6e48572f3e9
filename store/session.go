package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// DefaultLockTimeout bounds how long a session waits for the lock.
const DefaultLockTimeout = 3 * time.Second

// DB ties the metadata file to its lock file.
type DB struct {
	store       *Store
	locker      *Locker
	lockTimeout time.Duration
}

type options struct {
	fs          afero.Fs
	lockPath    string
	lockTimeout time.Duration
	retryDelay  time.Duration
}

type Option func(*options)

// WithFs sets the filesystem the metadata file lives on. The lock file is
// always taken on the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithLockPath overrides the default "<path>.lock" lock file.
func WithLockPath(path string) Option {
	return func(o *options) {
		o.lockPath = path
	}
}

// WithLockTimeout sets how long a session waits for the lock. Zero means a
// single attempt.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithRetryDelay sets the pause between two lock attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.retryDelay = d
	}
}

// Open prepares a DB on the metadata file at path. Nothing is read until a
// session or snapshot asks for it.
func Open(path string, opts ...Option) *DB {
	o := options{
		fs:          afero.NewOsFs(),
		lockPath:    path + ".lock",
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &DB{
		store:       NewStore(o.fs, path),
		locker:      NewLocker(o.lockPath, WithLockRetryDelay(o.retryDelay)),
		lockTimeout: o.lockTimeout,
	}
}

func (db *DB) Path() string {
	return db.store.Path()
}

// Snapshot loads the records without taking the lock. The result may be
// stale relative to concurrent writers.
func (db *DB) Snapshot() Records {
	return db.store.Load()
}

// Session is the working view handed to a session body.
type Session struct {
	Records Records
	// LockOK reports whether the lock is held. Mutations of Records are
	// persisted only when it is true.
	LockOK bool
	// LockErr is the acquisition error when LockOK is false.
	LockErr error
}

// Session acquires the lock, loads the records and runs fn. When the lock
// was obtained the records are saved and the lock released after fn
// returns, on every exit path. When it was not, fn runs on an unlocked
// best-effort load and nothing is saved.
func (db *DB) Session(ctx context.Context, fn func(s *Session) error) error {
	lock, lockErr := db.locker.Acquire(ctx, db.lockTimeout)
	if lockErr != nil {
		return fn(&Session{
			Records: db.store.Load(),
			LockErr: lockErr,
		})
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			log.Ctx(ctx).Error().Err(rerr).Str("lock_file", db.locker.Path()).Msg("error releasing lock")
		}
	}()

	s := &Session{
		Records: db.store.Load(),
		LockOK:  true,
	}
	fnErr := fn(s)
	saveErr := db.store.Save(s.Records)
	if saveErr != nil {
		log.Ctx(ctx).Error().Err(saveErr).Str("file_list", db.store.Path()).Msg("error saving metadata file")
	}
	return errors.Join(fnErr, saveErr)
}

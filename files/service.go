// Package files implements the life cycle of shared files: upload with
// deduplication, burn after read delivery, deletion, expiry and purge of
// dangling records. Every mutation runs in a store session so that several
// daemons can share one metadata file.
package files

import (
	"context"
	"strings"
	"time"

	"github.com/imrenagi/go-pastefile/blob"
	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
)

const DefaultExpire = 24 * time.Hour

type Options struct {
	Expire time.Duration
	Now    func() time.Time
}

type Option func(*Options)

// WithExpire sets how long a file is kept after its upload.
func WithExpire(d time.Duration) Option {
	return func(o *Options) {
		o.Expire = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

type Service struct {
	db       *store.DB
	blobs    blob.Blobs
	incoming *blob.Incoming
	expire   time.Duration
	now      func() time.Time
	metrics  instruments
}

func NewService(db *store.DB, blobs blob.Blobs, incoming *blob.Incoming, opts ...Option) *Service {
	o := Options{
		Expire: DefaultExpire,
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		db:       db,
		blobs:    blobs,
		incoming: incoming,
		expire:   o.Expire,
		now:      o.Now,
		metrics:  newInstruments(),
	}
}

// Expire returns the configured retention.
func (s *Service) Expire() time.Duration {
	return s.expire
}

// normalizeKey lowercases key and reports whether it is a content hash.
func normalizeKey(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	return key, blob.ValidHash(key)
}

// removeBlob deletes the blob of rec and reports whether it is gone
// afterwards. A failed removal is fine as long as the blob is absent.
func (s *Service) removeBlob(ctx context.Context, key string, rec store.Record) bool {
	logger := log.Ctx(ctx).With().Str("md5", key).Str("storage_path", rec.StoragePath).Logger()
	if err := s.blobs.Remove(ctx, rec.StoragePath); err != nil {
		logger.Error().Err(err).Msg("error while trying to remove blob")
	}
	exists, err := s.blobs.Exists(ctx, rec.StoragePath)
	if err != nil {
		logger.Error().Err(err).Msg("can't check blob presence")
		return false
	}
	return !exists
}

func (s *Service) lockFailed(ctx context.Context, op string, err error) {
	s.metrics.lockFailures.Add(ctx, 1)
	log.Ctx(ctx).Warn().Err(err).Str("operation", op).Msg("metadata lock not acquired")
}

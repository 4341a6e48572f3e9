package files

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/imrenagi/go-pastefile/blob"
	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Content is an open stored file. Close it when done.
type Content struct {
	io.ReadCloser
	Key    string
	Record store.Record
	Size   int64
}

// Fetch opens the content of key. The lookup is an unlocked read of the
// metadata file, so a regular file stays readable while the lock is
// contended. A burn-after-read file is marked consumed and persisted before
// it is opened, and is never served when that cannot be done.
func (s *Service) Fetch(ctx context.Context, key string) (*Content, error) {
	ctx, span := tracer.Start(ctx, "files.Fetch", trace.WithAttributes(attribute.String("md5", key)))
	defer span.End()

	key, ok := normalizeKey(key)
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.db.Snapshot()[key]
	if !ok || rec.BurnAfterRead == store.Consumed {
		return nil, ErrNotFound
	}

	if rec.BurnAfterRead == store.Pending {
		burned, err := s.burn(ctx, key)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		rec = burned
	}

	rc, size, err := s.blobs.Open(ctx, rec.StoragePath)
	if errors.Is(err, blob.ErrNotExist) {
		log.Ctx(ctx).Warn().Str("md5", key).Str("storage_path", rec.StoragePath).Msg("file present in db but blob is missing")
		return nil, ErrNotFound
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open blob: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("md5", key).
		Str("real_name", rec.RealName).
		Msg("file requested")
	return &Content{ReadCloser: rc, Key: key, Record: rec, Size: size}, nil
}

// burn moves key from Pending to Consumed under the lock. It fails with
// ErrNotFound when another reader consumed the file first.
func (s *Service) burn(ctx context.Context, key string) (store.Record, error) {
	var rec store.Record
	err := s.db.Session(ctx, func(sess *store.Session) error {
		if !sess.LockOK {
			s.lockFailed(ctx, "burn", sess.LockErr)
			return fmt.Errorf("%w: %w", ErrBurnLockUnavailable, sess.LockErr)
		}
		current, ok := sess.Records[key]
		if !ok {
			return ErrNotFound
		}
		next, changed := current.BurnAfterRead.Consume()
		if next == store.Consumed && !changed {
			return ErrNotFound
		}
		current.BurnAfterRead = next
		sess.Records[key] = current
		rec = current
		return nil
	})
	if err != nil {
		return store.Record{}, err
	}
	s.metrics.burns.Add(ctx, 1)
	log.Ctx(ctx).Info().Str("md5", key).Msg("burn after read file consumed")
	return rec, nil
}

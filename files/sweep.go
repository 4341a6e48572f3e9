package files

import (
	"context"
	"time"

	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// ExpirySweep removes every file uploaded more than maxAge ago and returns
// how many were removed. A file whose blob survives removal keeps its record
// and is retried by the next sweep.
func (s *Service) ExpirySweep(ctx context.Context, maxAge time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "files.ExpirySweep")
	defer span.End()

	cutoff := s.now().Add(-maxAge).Unix()
	removed := 0
	err := s.db.Session(ctx, func(sess *store.Session) error {
		if !sess.LockOK {
			s.lockFailed(ctx, "sweep", sess.LockErr)
			return sess.LockErr
		}
		for key, rec := range sess.Records {
			if rec.Timestamp >= cutoff {
				continue
			}
			if !s.removeBlob(ctx, key, rec) {
				log.Ctx(ctx).Warn().Str("md5", key).Msg("expired file kept for next sweep")
				continue
			}
			delete(sess.Records, key)
			removed++
		}
		return nil
	})
	span.SetAttributes(attribute.Int("removed", removed))
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("can't clean files")
		return 0, err
	}

	add(ctx, s.metrics.swept, removed)
	if removed > 0 {
		log.Ctx(ctx).Info().Int("removed", removed).Msg("expired files removed")
	}
	return removed, nil
}

// OrphanPurge drops the records whose blob no longer exists and returns how
// many were dropped.
func (s *Service) OrphanPurge(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "files.OrphanPurge")
	defer span.End()

	purged := 0
	err := s.db.Session(ctx, func(sess *store.Session) error {
		if !sess.LockOK {
			s.lockFailed(ctx, "purge", sess.LockErr)
			return sess.LockErr
		}
		for key, rec := range sess.Records {
			exists, err := s.blobs.Exists(ctx, rec.StoragePath)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Str("md5", key).Msg("can't check blob presence")
				continue
			}
			if exists {
				continue
			}
			log.Ctx(ctx).Info().
				Str("md5", key).
				Str("storage_path", rec.StoragePath).
				Msg("present in db but doesn't exist")
			delete(sess.Records, key)
			purged++
		}
		return nil
	})
	span.SetAttributes(attribute.Int("purged", purged))
	if err != nil {
		return 0, err
	}

	add(ctx, s.metrics.purged, purged)
	return purged, nil
}

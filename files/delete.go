package files

import (
	"context"
	"fmt"

	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Delete removes the blob and the record of key. The record is kept when
// the blob is still present after the removal attempt.
func (s *Service) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "files.Delete", trace.WithAttributes(attribute.String("md5", key)))
	defer span.End()

	key, ok := normalizeKey(key)
	if !ok {
		return ErrNotFound
	}

	err := s.db.Session(ctx, func(sess *store.Session) error {
		if !sess.LockOK {
			s.lockFailed(ctx, "delete", sess.LockErr)
			return sess.LockErr
		}
		rec, ok := sess.Records[key]
		if !ok {
			return ErrNotFound
		}
		if !s.removeBlob(ctx, key, rec) {
			return fmt.Errorf("%w %s", ErrDeleteFailed, key)
		}
		delete(sess.Records, key)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.metrics.deletes.Add(ctx, 1)
	log.Ctx(ctx).Info().Str("md5", key).Msg("file deleted")
	return nil
}

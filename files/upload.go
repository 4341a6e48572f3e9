package files

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UploadRequest struct {
	// Hash is the md5 digest of the content at SourcePath.
	Hash string
	// RealName is the already sanitized client filename.
	RealName string
	// SourcePath is the processing file in the incoming directory.
	SourcePath string
	Burn       bool
}

// Upload records the processing file at req.SourcePath. Identical content
// already stored wins: the processing file is dropped and the existing record
// returned untouched. A new file is moved into storage only while the
// metadata lock is held; otherwise ErrUploadUnavailable is returned and the
// processing file is left to the caller.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (store.Record, error) {
	ctx, span := tracer.Start(ctx, "files.Upload", trace.WithAttributes(attribute.String("md5", req.Hash)))
	defer span.End()

	key, ok := normalizeKey(req.Hash)
	if !ok {
		return store.Record{}, fmt.Errorf("invalid content hash %q", req.Hash)
	}
	logger := log.Ctx(ctx).With().Str("md5", key).Logger()

	burn := store.Never
	if req.Burn {
		burn = store.Pending
	}

	var rec store.Record
	inserted := false
	err := s.db.Session(ctx, func(sess *store.Session) error {
		if existing, ok := sess.Records[key]; ok {
			logger.Debug().Str("real_name", existing.RealName).Msg("file already stored")
			s.incoming.Discard(req.SourcePath)
			s.metrics.dedups.Add(ctx, 1)
			rec = existing
			return nil
		}

		if !sess.LockOK {
			s.lockFailed(ctx, "upload", sess.LockErr)
			return fmt.Errorf("%w: %w", ErrUploadUnavailable, sess.LockErr)
		}

		path, err := s.blobs.Put(ctx, req.SourcePath, key)
		if err != nil {
			return fmt.Errorf("store blob: %w", err)
		}
		rec = store.Record{
			RealName:      req.RealName,
			StoragePath:   path,
			Timestamp:     s.now().Unix(),
			BurnAfterRead: burn,
		}
		sess.Records[key] = rec
		inserted = true
		return nil
	})
	if err != nil {
		// A blob whose record never reached the metadata file is unreachable.
		if inserted && errors.Is(err, store.ErrSave) {
			if rerr := s.blobs.Remove(ctx, rec.StoragePath); rerr != nil {
				logger.Error().Err(rerr).Str("storage_path", rec.StoragePath).Msg("error removing unrecorded file")
			}
		}
		span.SetStatus(codes.Error, err.Error())
		return store.Record{}, err
	}

	if inserted {
		s.metrics.uploads.Add(ctx, 1)
	}
	logger.Info().
		Str("real_name", rec.RealName).
		Str("storage_path", rec.StoragePath).
		Str("burn_after_read", rec.BurnAfterRead.String()).
		Msg("file uploaded")
	return rec, nil
}

// Ingest writes r to a processing file, hashes it and uploads it under the
// sanitized name. The processing file never outlives a failed upload.
func (s *Service) Ingest(ctx context.Context, name string, r io.Reader, burn bool) (string, store.Record, error) {
	path, hash, n, err := s.incoming.Write(r)
	if err != nil {
		return "", store.Record{}, err
	}
	log.Ctx(ctx).Debug().
		Str("tmp_file", path).
		Str("md5", hash).
		Int64("written_size", n).
		Msg("processing file written")

	realName := SanitizeName(name)
	if realName == "" {
		realName = hash
	}

	rec, err := s.Upload(ctx, UploadRequest{
		Hash:       hash,
		RealName:   realName,
		SourcePath: path,
		Burn:       burn,
	})
	if err != nil {
		s.incoming.Discard(path)
		return "", store.Record{}, err
	}
	return hash, rec, nil
}

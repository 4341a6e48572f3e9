package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
)

const expireLayout = "02-01-2006 15:04:05"

// FileInfo describes a stored file to clients.
type FileInfo struct {
	Name          string `json:"name"`
	MD5           string `json:"md5"`
	BurnAfterRead string `json:"burn_after_read"`
	Timestamp     int64  `json:"timestamp"`
	Expire        string `json:"expire"`
	Type          string `json:"type"`
	Size          string `json:"size"`
	URL           string `json:"url"`
}

// ListAll returns the records that have not expired yet, read without the
// lock.
func (s *Service) ListAll(ctx context.Context) store.Records {
	cutoff := s.now().Add(-s.expire).Unix()
	records := s.db.Snapshot()
	for key, rec := range records {
		if rec.Timestamp < cutoff {
			delete(records, key)
		}
	}
	return records
}

// Info describes key. baseURL prefixes the download URL.
func (s *Service) Info(ctx context.Context, key, baseURL string) (FileInfo, error) {
	key, ok := normalizeKey(key)
	if !ok {
		return FileInfo{}, ErrNotFound
	}
	rec, ok := s.db.Snapshot()[key]
	if !ok {
		return FileInfo{}, ErrNotFound
	}
	return s.describe(ctx, key, rec, baseURL)
}

// ListInfos describes every file returned by ListAll. Files that cannot be
// described, e.g. because their blob vanished, are left out.
func (s *Service) ListInfos(ctx context.Context, baseURL string) map[string]FileInfo {
	infos := make(map[string]FileInfo)
	for key, rec := range s.ListAll(ctx) {
		info, err := s.describe(ctx, key, rec, baseURL)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("md5", key).Msg("unable to gather infos for file")
			continue
		}
		infos[key] = info
	}
	return infos
}

func (s *Service) describe(ctx context.Context, key string, rec store.Record, baseURL string) (FileInfo, error) {
	rc, size, err := s.blobs.Open(ctx, rec.StoragePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("open blob: %w", err)
	}
	defer rc.Close()

	mtype, err := mimetype.DetectReader(rc)
	if err != nil {
		return FileInfo{}, fmt.Errorf("detect type: %w", err)
	}

	return FileInfo{
		Name:          rec.RealName,
		MD5:           key,
		BurnAfterRead: rec.BurnAfterRead.String(),
		Timestamp:     rec.Timestamp,
		Expire:        time.Unix(rec.Timestamp, 0).Add(s.expire).UTC().Format(expireLayout),
		Type:          mtype.String(),
		Size:          humanize.Bytes(uint64(size)),
		URL:           fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), key),
	}, nil
}

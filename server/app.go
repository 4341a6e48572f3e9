package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/imrenagi/go-pastefile/blob"
	"github.com/imrenagi/go-pastefile/files"
	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// App is the file service built from a Config with the resources it holds.
type App struct {
	Files   *files.Service
	closers []func() error
}

// NewApp prepares the directories and the blob backend described by cfg.
// Blobs go to the GCS bucket when one is configured, to the upload folder
// otherwise.
func NewApp(ctx context.Context, cfg Config, fs afero.Fs) (*App, error) {
	for _, dir := range []string{cfg.TmpFolder, filepath.Dir(cfg.FileList), filepath.Dir(cfg.LockPath())} {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	app := &App{}

	var blobs blob.Blobs
	if cfg.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		blobs = blob.NewGCS(client.Bucket(cfg.GCSBucket), fs)
		log.Info().Str("bucket", cfg.GCSBucket).Msg("storing files in cloud storage")
	} else {
		if err := fs.MkdirAll(cfg.UploadFolder, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", cfg.UploadFolder, err)
		}
		blobs = blob.NewLocal(fs, cfg.UploadFolder)
		log.Info().Str("upload_folder", cfg.UploadFolder).Msg("storing files on disk")
	}

	db := store.Open(cfg.FileList,
		store.WithFs(fs),
		store.WithLockPath(cfg.LockPath()),
		store.WithLockTimeout(cfg.LockTimeoutDuration()))

	app.Files = files.NewService(db, blobs, blob.NewIncoming(fs, cfg.TmpFolder),
		files.WithExpire(cfg.ExpireDuration()))
	return app, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

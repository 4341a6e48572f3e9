package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Local keeps blobs as plain files named after their hash in one directory.
type Local struct {
	fs   afero.Fs
	root string
}

func NewLocal(fsys afero.Fs, root string) *Local {
	return &Local{fs: fsys, root: root}
}

func (l *Local) Put(ctx context.Context, srcPath, hash string) (string, error) {
	if !ValidHash(hash) {
		return "", fmt.Errorf("invalid hash %q", hash)
	}
	dst := filepath.Join(l.root, hash)
	err := l.fs.Rename(srcPath, dst)
	if err == nil {
		return dst, nil
	}

	// rename fails across devices, copy instead
	log.Ctx(ctx).Debug().Err(err).Str("src", srcPath).Str("dst", dst).Msg("rename failed, copying")
	if err := l.copy(srcPath, dst); err != nil {
		return "", fmt.Errorf("can't move processing file to storage directory: %w", err)
	}
	if err := l.fs.Remove(srcPath); err != nil && !isNotExist(err) {
		log.Ctx(ctx).Warn().Err(err).Str("src", srcPath).Msg("can't remove processing file")
	}
	return dst, nil
}

func (l *Local) copy(srcPath, dst string) error {
	src, err := l.fs.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := afero.TempFile(l.fs, l.root, ".copy-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		l.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		l.fs.Remove(tmp.Name())
		return err
	}
	if err := l.fs.Rename(tmp.Name(), dst); err != nil {
		l.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func (l *Local) Remove(ctx context.Context, path string) error {
	if err := l.fs.Remove(path); err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	return afero.Exists(l.fs, path)
}

func (l *Local) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		if isNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotExist, path)
		}
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

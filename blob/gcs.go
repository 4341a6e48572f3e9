package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// GCS keeps blobs as objects of a Cloud Storage bucket. Processing files
// are read from src and removed once uploaded.
type GCS struct {
	bucket *storage.BucketHandle
	prefix string
	src    afero.Fs
}

type GCSOption func(*GCS)

// WithObjectPrefix stores objects under prefix, e.g. "pastefile/".
func WithObjectPrefix(prefix string) GCSOption {
	return func(g *GCS) {
		g.prefix = prefix
	}
}

func NewGCS(bucket *storage.BucketHandle, src afero.Fs, opts ...GCSOption) *GCS {
	g := &GCS{bucket: bucket, src: src}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GCS) Put(ctx context.Context, srcPath, hash string) (string, error) {
	if !ValidHash(hash) {
		return "", fmt.Errorf("invalid hash %q", hash)
	}
	f, err := g.src.Open(srcPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	objName := g.prefix + hash
	objW := g.bucket.Object(objName).NewWriter(ctx)
	n, err := io.Copy(objW, f)
	if err != nil {
		objW.Close()
		return "", fmt.Errorf("error writing object %s: %w", objName, err)
	}
	if err := objW.Close(); err != nil {
		return "", fmt.Errorf("error finalizing object %s: %w", objName, err)
	}

	objPath := fmt.Sprintf("gs://%s/%s", g.bucket.BucketName(), objName)
	log.Ctx(ctx).Debug().
		Int64("written_size", n).
		Str("stored_file", objPath).
		Msg("blob uploaded")

	if err := g.src.Remove(srcPath); err != nil && !isNotExist(err) {
		log.Ctx(ctx).Warn().Err(err).Str("src", srcPath).Msg("can't remove processing file")
	}
	return objPath, nil
}

func (g *GCS) object(path string) (*storage.ObjectHandle, error) {
	prefix := fmt.Sprintf("gs://%s/", g.bucket.BucketName())
	name, ok := strings.CutPrefix(path, prefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("%s is not an object of bucket %s", path, g.bucket.BucketName())
	}
	return g.bucket.Object(name), nil
}

func (g *GCS) Remove(ctx context.Context, path string) error {
	obj, err := g.object(path)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, path string) (bool, error) {
	obj, err := g.object(path)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (g *GCS) Open(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	obj, err := g.object(path)
	if err != nil {
		return nil, 0, err
	}
	r, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotExist, path)
	}
	if err != nil {
		return nil, 0, err
	}
	return r, r.Attrs.Size, nil
}

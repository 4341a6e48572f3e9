// Package blob stores file contents addressed by their md5 digest.
package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/spf13/afero"
)

// ErrNotExist is returned by Open when the blob is gone.
var ErrNotExist = errors.New("blob does not exist")

var hashPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ValidHash reports whether h looks like a digest produced by HashFile.
func ValidHash(h string) bool {
	return hashPattern.MatchString(h)
}

// Blobs is durable content storage.
type Blobs interface {
	// Put moves the local file at srcPath into storage under hash and
	// returns its storage path. srcPath no longer exists on success.
	Put(ctx context.Context, srcPath, hash string) (string, error)
	// Remove deletes the blob. A blob that is already gone is not an error.
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// Open returns the blob content and its size.
	Open(ctx context.Context, path string) (io.ReadCloser, int64, error)
}

// HashFile returns the hex md5 digest of the file at path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

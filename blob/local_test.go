package blob_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/imrenagi/go-pastefile/blob"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloMD5 = "5d41402abc4b2a76b9719d911017c592"

// crossDeviceFs refuses renames out of dir, like a tmp folder mounted on
// another device.
type crossDeviceFs struct {
	afero.Fs
	dir string
}

func (f crossDeviceFs) Rename(oldname, newname string) error {
	if strings.HasPrefix(oldname, f.dir) {
		return errors.New("invalid cross-device link")
	}
	return f.Fs.Rename(oldname, newname)
}

func newFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/pastefile", 0o755))
	require.NoError(t, fs.MkdirAll("/srv/upload", 0o755))
	return fs
}

func TestIncomingWrite(t *testing.T) {
	fs := newFs(t)
	in := blob.NewIncoming(fs, "/tmp/pastefile")

	path, hash, n, err := in.Write(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, helloMD5, hash)
	assert.Equal(t, int64(5), n)
	assert.True(t, strings.HasPrefix(path, "/tmp/pastefile/processing-"))

	fromDisk, err := blob.HashFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, hash, fromDisk)

	in.Discard(path)
	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIncomingWriteFailure(t *testing.T) {
	fs := newFs(t)
	in := blob.NewIncoming(fs, "/tmp/pastefile")

	_, _, _, err := in.Write(io.MultiReader(strings.NewReader("hel"), errReader{}))
	require.Error(t, err)

	entries, err := afero.ReadDir(fs, "/tmp/pastefile")
	require.NoError(t, err)
	assert.Empty(t, entries, "a failed write must not leave a processing file")
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestLocal(t *testing.T) {
	ctx := context.Background()

	t.Run("Put moves the processing file under its hash", func(t *testing.T) {
		fs := newFs(t)
		require.NoError(t, afero.WriteFile(fs, "/tmp/pastefile/processing-1", []byte("hello"), 0o644))
		local := blob.NewLocal(fs, "/srv/upload")

		path, err := local.Put(ctx, "/tmp/pastefile/processing-1", helloMD5)
		require.NoError(t, err)
		assert.Equal(t, "/srv/upload/"+helloMD5, path)

		exists, err := local.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, exists)
		gone, err := afero.Exists(fs, "/tmp/pastefile/processing-1")
		require.NoError(t, err)
		assert.False(t, gone)

		rc, size, err := local.Open(ctx, path)
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
		assert.Equal(t, int64(5), size)
	})

	t.Run("Put copies when the rename is refused", func(t *testing.T) {
		fs := crossDeviceFs{Fs: newFs(t), dir: "/tmp/pastefile"}
		require.NoError(t, afero.WriteFile(fs, "/tmp/pastefile/processing-1", []byte("hello"), 0o644))
		local := blob.NewLocal(fs, "/srv/upload")

		path, err := local.Put(ctx, "/tmp/pastefile/processing-1", helloMD5)
		require.NoError(t, err)

		b, err := afero.ReadFile(fs, path)
		require.NoError(t, err)
		assert.True(t, bytes.Equal([]byte("hello"), b))
		gone, err := afero.Exists(fs, "/tmp/pastefile/processing-1")
		require.NoError(t, err)
		assert.False(t, gone)
		entries, err := afero.ReadDir(fs, "/srv/upload")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("Put rejects anything but a digest as blob name", func(t *testing.T) {
		fs := newFs(t)
		require.NoError(t, afero.WriteFile(fs, "/tmp/pastefile/processing-1", []byte("hello"), 0o644))
		local := blob.NewLocal(fs, "/srv/upload")

		_, err := local.Put(ctx, "/tmp/pastefile/processing-1", "../../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("Remove is idempotent", func(t *testing.T) {
		fs := newFs(t)
		require.NoError(t, afero.WriteFile(fs, "/srv/upload/"+helloMD5, []byte("hello"), 0o644))
		local := blob.NewLocal(fs, "/srv/upload")

		require.NoError(t, local.Remove(ctx, "/srv/upload/"+helloMD5))
		require.NoError(t, local.Remove(ctx, "/srv/upload/"+helloMD5))

		exists, err := local.Exists(ctx, "/srv/upload/"+helloMD5)
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Open reports a missing blob", func(t *testing.T) {
		local := blob.NewLocal(newFs(t), "/srv/upload")
		_, _, err := local.Open(ctx, "/srv/upload/"+helloMD5)
		assert.ErrorIs(t, err, blob.ErrNotExist)
	})
}

func TestValidHash(t *testing.T) {
	assert.True(t, blob.ValidHash(helloMD5))
	assert.False(t, blob.ValidHash(strings.ToUpper(helloMD5)))
	assert.False(t, blob.ValidHash("ls"))
	assert.False(t, blob.ValidHash(""))
}

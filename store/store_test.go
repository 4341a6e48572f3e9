package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/imrenagi/go-pastefile/store"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failRenameFs struct {
	afero.Fs
}

func (f failRenameFs) Rename(oldname, newname string) error {
	return errors.New("rename failed")
}

func sampleRecords() store.Records {
	return store.Records{
		"d41d8cd98f00b204e9800998ecf8427e": {
			RealName:      "empty.txt",
			StoragePath:   "/srv/upload/d41d8cd98f00b204e9800998ecf8427e",
			Timestamp:     1700000000,
			BurnAfterRead: store.Never,
		},
		"5d41402abc4b2a76b9719d911017c592": {
			RealName:      "hello.txt",
			StoragePath:   "/srv/upload/5d41402abc4b2a76b9719d911017c592",
			Timestamp:     1700000100,
			BurnAfterRead: store.Pending,
		},
		"7d793037a0760186574b0282f2f435e7": {
			RealName:      "world.txt",
			StoragePath:   "/srv/upload/7d793037a0760186574b0282f2f435e7",
			Timestamp:     1700000200,
			BurnAfterRead: store.Consumed,
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Run("records saved on an OS filesystem load back field for field", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "files.json")
		s := store.NewStore(afero.NewOsFs(), path)

		require.NoError(t, s.Save(sampleRecords()))
		assert.Equal(t, sampleRecords(), s.Load())
	})

	t.Run("an empty map round trips as an empty map", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/data", 0o755))
		s := store.NewStore(fs, "/data/files.json")

		require.NoError(t, s.Save(store.Records{}))
		assert.Equal(t, store.Records{}, s.Load())
	})

	t.Run("burn_after_read is persisted with its legacy string values", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, fs.MkdirAll("/data", 0o755))
		s := store.NewStore(fs, "/data/files.json")
		require.NoError(t, s.Save(sampleRecords()))

		b, err := afero.ReadFile(fs, "/data/files.json")
		require.NoError(t, err)
		assert.Contains(t, string(b), `"burn_after_read":"False"`)
		assert.Contains(t, string(b), `"burn_after_read":"True"`)
		assert.Contains(t, string(b), `"burn_after_read":"Burned"`)
	})

	t.Run("no temporary file is left next to the destination", func(t *testing.T) {
		dir := t.TempDir()
		s := store.NewStore(afero.NewOsFs(), filepath.Join(dir, "files.json"))
		require.NoError(t, s.Save(sampleRecords()))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "files.json", entries[0].Name())
	})
}

func TestStoreLoadTolerant(t *testing.T) {
	cases := map[string]string{
		"empty file":         "",
		"truncated json":     `{"5d41402abc4b2a76b9719d911017c592": {"real_name": "hel`,
		"not an object":      `["a", "b"]`,
		"unknown burn value": `{"5d41402abc4b2a76b9719d911017c592": {"burn_after_read": "Maybe"}}`,
		"garbage":            "\x00\x01\x02",
		"json null":          "null",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/files.json", []byte(content), 0o644))

			records := store.NewStore(fs, "/files.json").Load()
			assert.NotNil(t, records)
			assert.Empty(t, records)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		records := store.NewStore(afero.NewMemMapFs(), "/nope/files.json").Load()
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("missing burn field decodes as Never", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		content := `{"5d41402abc4b2a76b9719d911017c592": {"real_name": "a", "storage_path": "/a", "timestamp": 12}}`
		require.NoError(t, afero.WriteFile(fs, "/files.json", []byte(content), 0o644))

		records := store.NewStore(fs, "/files.json").Load()
		require.Contains(t, records, "5d41402abc4b2a76b9719d911017c592")
		assert.Equal(t, store.Never, records["5d41402abc4b2a76b9719d911017c592"].BurnAfterRead)
		assert.Equal(t, int64(12), records["5d41402abc4b2a76b9719d911017c592"].Timestamp)
	})
	t.Run("a record that does not decode is skipped and the others are kept", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		content := `{
			"5d41402abc4b2a76b9719d911017c592": {"real_name": "hello.txt", "storage_path": "/a", "timestamp": 1, "burn_after_read": "True"},
			"7d793037a0760186574b0282f2f435e7": {"real_name": "world.txt", "storage_path": "/b", "timestamp": 2, "burn_after_read": "true"},
			"d41d8cd98f00b204e9800998ecf8427e": {"real_name": "empty.txt", "storage_path": "/c", "timestamp": "soon"}
		}`
		require.NoError(t, afero.WriteFile(fs, "/files.json", []byte(content), 0o644))

		records := store.NewStore(fs, "/files.json").Load()
		require.Len(t, records, 1)
		assert.Equal(t, store.Record{
			RealName:      "hello.txt",
			StoragePath:   "/a",
			Timestamp:     1,
			BurnAfterRead: store.Pending,
		}, records["5d41402abc4b2a76b9719d911017c592"])
	})
}

func TestStoreSaveAtomic(t *testing.T) {
	t.Run("a save failing before the rename leaves the destination untouched", func(t *testing.T) {
		base := afero.NewMemMapFs()
		require.NoError(t, base.MkdirAll("/data", 0o755))
		require.NoError(t, store.NewStore(base, "/data/files.json").Save(sampleRecords()))
		before, err := afero.ReadFile(base, "/data/files.json")
		require.NoError(t, err)

		s := store.NewStore(failRenameFs{Fs: base}, "/data/files.json")
		err = s.Save(store.Records{})
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrSave)

		after, err := afero.ReadFile(base, "/data/files.json")
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assert.Equal(t, sampleRecords(), s.Load())

		entries, err := afero.ReadDir(base, "/data")
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must be cleaned up")
	})

	t.Run("a missing destination directory is reported as a save failure", func(t *testing.T) {
		s := store.NewStore(afero.NewOsFs(), filepath.Join(t.TempDir(), "missing", "files.json"))
		assert.ErrorIs(t, s.Save(sampleRecords()), store.ErrSave)
	})
}

func TestBurnStateConsume(t *testing.T) {
	next, changed := store.Pending.Consume()
	assert.True(t, changed)
	assert.Equal(t, store.Consumed, next)

	next, changed = store.Never.Consume()
	assert.False(t, changed)
	assert.Equal(t, store.Never, next)

	next, changed = store.Consumed.Consume()
	assert.False(t, changed)
	assert.Equal(t, store.Consumed, next)
}

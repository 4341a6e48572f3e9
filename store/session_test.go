package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imrenagi/go-pastefile/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, opts ...store.Option) *store.DB {
	t.Helper()
	return store.Open(filepath.Join(t.TempDir(), "files.json"), opts...)
}

func TestSession(t *testing.T) {
	t.Run("mutations made under the lock are persisted", func(t *testing.T) {
		db := openDB(t)

		err := db.Session(context.Background(), func(s *store.Session) error {
			require.True(t, s.LockOK)
			assert.Empty(t, s.Records)
			s.Records["5d41402abc4b2a76b9719d911017c592"] = store.Record{RealName: "hello.txt", Timestamp: 42}
			return nil
		})
		require.NoError(t, err)

		snapshot := db.Snapshot()
		require.Contains(t, snapshot, "5d41402abc4b2a76b9719d911017c592")
		assert.Equal(t, "hello.txt", snapshot["5d41402abc4b2a76b9719d911017c592"].RealName)
	})

	t.Run("sessions running concurrently never lose an update", func(t *testing.T) {
		db := openDB(t, store.WithLockTimeout(30*time.Second), store.WithRetryDelay(time.Millisecond))

		const workers, rounds = 8, 10
		var inside, overlaps atomic.Int32
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					err := db.Session(context.Background(), func(s *store.Session) error {
						if !s.LockOK {
							return s.LockErr
						}
						if inside.Add(1) > 1 {
							overlaps.Add(1)
						}
						defer inside.Add(-1)

						r := s.Records["counter"]
						r.Timestamp++
						s.Records["counter"] = r
						return nil
					})
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, overlaps.Load(), "two sessions held the lock at the same time")
		assert.Equal(t, int64(workers*rounds), db.Snapshot()["counter"].Timestamp)
	})

	t.Run("without the lock the body gets a degraded read and nothing is saved", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "files.json")
		db := store.Open(path, store.WithLockTimeout(50*time.Millisecond))
		require.NoError(t, db.Session(context.Background(), func(s *store.Session) error {
			s.Records["5d41402abc4b2a76b9719d911017c592"] = store.Record{RealName: "hello.txt"}
			return nil
		}))

		held, err := store.NewLocker(path+".lock").Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		defer held.Release()

		err = db.Session(context.Background(), func(s *store.Session) error {
			assert.False(t, s.LockOK)
			assert.ErrorIs(t, s.LockErr, store.ErrLockTimeout)
			assert.Contains(t, s.Records, "5d41402abc4b2a76b9719d911017c592")
			delete(s.Records, "5d41402abc4b2a76b9719d911017c592")
			s.Records["7d793037a0760186574b0282f2f435e7"] = store.Record{RealName: "world.txt"}
			return nil
		})
		require.NoError(t, err)

		snapshot := db.Snapshot()
		assert.Contains(t, snapshot, "5d41402abc4b2a76b9719d911017c592")
		assert.NotContains(t, snapshot, "7d793037a0760186574b0282f2f435e7")
	})

	t.Run("an unusable lock target degrades the same way", func(t *testing.T) {
		dir := t.TempDir()
		db := store.Open(filepath.Join(dir, "files.json"), store.WithLockPath(filepath.Join(dir, "missing", "files.lock")))

		called := false
		err := db.Session(context.Background(), func(s *store.Session) error {
			called = true
			assert.False(t, s.LockOK)
			assert.ErrorIs(t, s.LockErr, store.ErrLockUnavailable)
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("the lock is released when the body fails", func(t *testing.T) {
		db := openDB(t, store.WithLockTimeout(200*time.Millisecond))
		boom := errors.New("boom")

		err := db.Session(context.Background(), func(s *store.Session) error {
			s.Records["a"] = store.Record{RealName: "a"}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		err = db.Session(context.Background(), func(s *store.Session) error {
			assert.True(t, s.LockOK)
			assert.Contains(t, s.Records, "a")
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("the lock is released when the body panics", func(t *testing.T) {
		db := openDB(t, store.WithLockTimeout(200*time.Millisecond))

		assert.Panics(t, func() {
			_ = db.Session(context.Background(), func(s *store.Session) error {
				panic("boom")
			})
		})

		err := db.Session(context.Background(), func(s *store.Session) error {
			assert.True(t, s.LockOK)
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("a save failure is reported to the caller", func(t *testing.T) {
		dir := t.TempDir()
		db := store.Open(filepath.Join(dir, "missing", "files.json"), store.WithLockPath(filepath.Join(dir, "files.lock")))

		err := db.Session(context.Background(), func(s *store.Session) error {
			require.True(t, s.LockOK)
			s.Records["a"] = store.Record{}
			return nil
		})
		assert.ErrorIs(t, err, store.ErrSave)
	})

	t.Run("a zero lock timeout still locks a free store", func(t *testing.T) {
		db := openDB(t, store.WithLockTimeout(0))

		err := db.Session(context.Background(), func(s *store.Session) error {
			assert.True(t, s.LockOK)
			assert.NoError(t, s.LockErr)
			s.Records["a"] = store.Record{RealName: "a"}
			return nil
		})
		require.NoError(t, err)
		assert.Contains(t, db.Snapshot(), "a")
	})

	t.Run("a write keeps the valid records next to one that does not decode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "files.json")
		content := `{
			"aaaa": {"real_name": "a.txt", "storage_path": "/a", "timestamp": 1, "burn_after_read": "False"},
			"bbbb": {"real_name": "b.txt", "storage_path": "/b", "timestamp": 2, "burn_after_read": "true"}
		}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		db := store.Open(path)

		err := db.Session(context.Background(), func(s *store.Session) error {
			require.True(t, s.LockOK)
			s.Records["cccc"] = store.Record{RealName: "c.txt", StoragePath: "/c", Timestamp: 3}
			return nil
		})
		require.NoError(t, err)

		snapshot := db.Snapshot()
		assert.Equal(t, store.Record{RealName: "a.txt", StoragePath: "/a", Timestamp: 1}, snapshot["aaaa"])
		assert.Contains(t, snapshot, "cccc")
		assert.NotContains(t, snapshot, "bbbb")
	})
}

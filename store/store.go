package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	// ErrCorruptStore marks a metadata file that could not be decoded. It is
	// only logged: a corrupt file loads as an empty store.
	ErrCorruptStore = errors.New("corrupt metadata file")
	// ErrSave is returned when the metadata file could not be replaced.
	ErrSave = errors.New("unable to save metadata file")
)

// Store reads and writes the whole metadata file.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(fsys afero.Fs, path string) *Store {
	return &Store{fs: fsys, path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted records. A missing, empty or undecodable file
// yields an empty map. Records that do not decode are skipped with a warning
// and the others are kept.
func (s *Store) Load() Records {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("file_list", s.path).Msg("metadata file does not exist yet")
		} else {
			log.Warn().Err(err).Str("file_list", s.path).Msg("can't load metadata file")
		}
		return Records{}
	}

	records, skipped, err := decode(b)
	if err != nil {
		log.Warn().Err(err).Str("file_list", s.path).Msg("metadata file ignored")
		return Records{}
	}
	for key, err := range skipped {
		log.Warn().Err(err).Str("file_list", s.path).Str("md5", key).Msg("metadata record ignored")
	}
	return records
}

// decode parses the metadata file one record at a time. The returned error
// is set only when the top level is not a JSON object.
func decode(b []byte) (Records, map[string]error, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrCorruptStore)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCorruptStore, err)
	}

	records := make(Records, len(raw))
	skipped := map[string]error{}
	for key, msg := range raw {
		var r Record
		if err := json.Unmarshal(msg, &r); err != nil {
			skipped[key] = err
			continue
		}
		records[key] = r
	}
	return records, skipped, nil
}

// Save replaces the metadata file with records. The content goes to a
// temporary file in the same directory which is then renamed over the
// destination, so readers see either the old or the new file.
func (s *Store) Save(records Records) error {
	if records == nil {
		records = Records{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+base+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrSave, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrSave, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync temp file: %w", ErrSave, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrSave, err)
	}
	if err := s.fs.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("%w: chmod temp file: %w", ErrSave, err)
	}
	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("%w: rename temp file: %w", ErrSave, err)
	}

	success = true
	return nil
}

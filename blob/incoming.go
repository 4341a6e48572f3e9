package blob

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Incoming is the scratch directory uploads are written to before they are
// moved into storage.
type Incoming struct {
	fs  afero.Fs
	dir string
}

func NewIncoming(fs afero.Fs, dir string) *Incoming {
	return &Incoming{fs: fs, dir: dir}
}

// Write copies r into a new processing file and returns its path, md5 digest
// and size. The file is removed if the copy fails.
func (in *Incoming) Write(r io.Reader) (path, hash string, n int64, err error) {
	f, err := afero.TempFile(in.fs, in.dir, "processing-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("create processing file: %w", err)
	}
	path = f.Name()

	sum := md5.New()
	n, err = io.Copy(f, io.TeeReader(r, sum))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		in.Discard(path)
		return "", "", n, fmt.Errorf("write processing file: %w", err)
	}
	return path, hex.EncodeToString(sum.Sum(nil)), n, nil
}

// Discard removes a processing file, logging failures.
func (in *Incoming) Discard(path string) {
	if err := in.fs.Remove(path); err != nil && !isNotExist(err) {
		log.Error().Err(err).Str("tmp_file", path).Msg("can't remove tmp file")
	}
}

package files

import "errors"

var (
	// ErrNotFound is returned for unknown keys and for burn-after-read files
	// that were already delivered.
	ErrNotFound = errors.New("file not found")
	// ErrUploadUnavailable is returned when a new file could not be
	// recorded because the metadata lock was not obtained. The caller owns
	// the processing file.
	ErrUploadUnavailable = errors.New("unable to upload the file, try again later")
	// ErrBurnLockUnavailable is returned when a burn-after-read file could
	// not be marked as consumed. The content is not served.
	ErrBurnLockUnavailable = errors.New("can't lock db for burning file, try again later")
	// ErrDeleteFailed is returned when the blob of a file survived removal.
	ErrDeleteFailed = errors.New("unable to delete file")
)

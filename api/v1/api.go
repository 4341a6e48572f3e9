package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"
	"github.com/imrenagi/go-pastefile/files"
	"github.com/imrenagi/go-pastefile/store"
	"github.com/rs/zerolog/log"
)

const (
	FeatureDelete = "delete"
	FeatureList   = "ls"

	// sniffLen is how much of a download is peeked to guess its type.
	sniffLen = 3072
	// memoryLimit bounds the multipart parts kept in memory while parsing.
	memoryLimit = 32 << 20
)

var (
	errMissingFile = errors.New("a file field is required")
	errServer      = errors.New("server error, contact administrator")
)

// Files is the file life cycle the controller drives.
type Files interface {
	Ingest(ctx context.Context, name string, r io.Reader, burn bool) (string, store.Record, error)
	Fetch(ctx context.Context, key string) (*files.Content, error)
	Delete(ctx context.Context, key string) error
	Info(ctx context.Context, key, baseURL string) (files.FileInfo, error)
	ListInfos(ctx context.Context, baseURL string) map[string]files.FileInfo
	ExpirySweep(ctx context.Context, maxAge time.Duration) (int, error)
	Expire() time.Duration
}

type Options struct {
	DisabledFeatures []string
	MaxSize          int64
}

type Option func(*Options)

// WithDisabledFeatures turns off the named routes, "delete" and "ls".
func WithDisabledFeatures(features ...string) Option {
	return func(o *Options) {
		o.DisabledFeatures = features
	}
}

// WithMaxSize limits the upload body size. Zero means unlimited.
func WithMaxSize(size int64) Option {
	return func(o *Options) {
		o.MaxSize = size
	}
}

func NewController(f Files, opts ...Option) Controller {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	disabled := make(map[string]bool, len(o.DisabledFeatures))
	for _, feature := range o.DisabledFeatures {
		disabled[strings.ToLower(strings.TrimSpace(feature))] = true
	}
	return Controller{
		files:    f,
		disabled: disabled,
		maxSize:  o.MaxSize,
	}
}

type Controller struct {
	files    Files
	disabled map[string]bool
	maxSize  int64
}

// Upload stores the multipart "file" field and answers with its download URL.
// Any "burn" field makes the file burn after read.
func (c Controller) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if c.maxSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, c.maxSize)
		}
		if err := r.ParseMultipartForm(memoryLimit); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("error parsing the form")
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("file is larger than %d bytes", maxErr.Limit))
				return
			}
			writeError(w, http.StatusBadRequest, errMissingFile)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("error retrieving the file")
			writeError(w, http.StatusBadRequest, errMissingFile)
			return
		}
		defer file.Close()
		_, burn := r.MultipartForm.Value["burn"]

		c.sweep(ctx)

		key, _, err := c.files.Ingest(ctx, header.Filename, file, burn)
		if err != nil {
			c.fail(w, r, err)
			return
		}

		log.Ctx(ctx).Info().
			Str("remote", r.RemoteAddr).
			Str("md5", key).
			Int64("file_size", header.Size).
			Msg("client uploaded a file")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "%s/%s\n", baseURL(r), key)
	}
}

// Get sends the file as an attachment carrying its original name.
func (c Controller) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		content, err := c.files.Fetch(r.Context(), mux.Vars(r)["file_id"])
		if err != nil {
			c.fail(w, r, err)
			return
		}
		defer content.Close()

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(content, head)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			c.fail(w, r, err)
			return
		}
		head = head[:n]

		w.Header().Set("Content-Type", mimetype.Detect(head).String())
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.Record.RealName}))
		w.Header().Set("Content-Length", strconv.FormatInt(content.Size, 10))
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(head); err != nil {
			return
		}
		if _, err := io.Copy(w, content); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Str("md5", content.Key).Msg("error sending the file")
		}
	}
}

func (c Controller) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if c.disabled[FeatureDelete] {
			log.Ctx(ctx).Info().Msg("delete called but this route is disabled")
			writeError(w, http.StatusForbidden, errors.New("administrator disabled the delete option"))
			return
		}
		id := mux.Vars(r)["file_id"]
		if err := c.files.Delete(ctx, id); err != nil {
			c.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "File %s deleted\n", id)
	}
}

func (c Controller) Infos() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := c.files.Info(r.Context(), mux.Vars(r)["file_id"], baseURL(r))
		if err != nil {
			c.fail(w, r, err)
			return
		}
		writeJSON(w, info)
	}
}

// List describes every file still within its retention. Expired files are
// swept first.
func (c Controller) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if c.disabled[FeatureList] {
			log.Ctx(ctx).Info().Msg("ls called but this route is disabled")
			writeError(w, http.StatusForbidden, errors.New("administrator disabled the /ls option"))
			return
		}
		c.sweep(ctx)
		writeJSON(w, c.files.ListInfos(ctx, baseURL(r)))
	}
}

func (c Controller) sweep(ctx context.Context) {
	if _, err := c.files.ExpirySweep(ctx, c.files.Expire()); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("expiry sweep skipped")
	}
}

// fail maps a files error to a response. Internal details stay in the logs.
func (c Controller) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, files.ErrNotFound):
		writeError(w, http.StatusNotFound, files.ErrNotFound)
	case errors.Is(err, files.ErrUploadUnavailable):
		writeError(w, http.StatusServiceUnavailable, files.ErrUploadUnavailable)
	case errors.Is(err, files.ErrBurnLockUnavailable):
		writeError(w, http.StatusServiceUnavailable, files.ErrBurnLockUnavailable)
	case errors.Is(err, store.ErrLockTimeout), errors.Is(err, store.ErrLockUnavailable):
		writeError(w, http.StatusServiceUnavailable, errors.New("lock timed out, try again later"))
	case errors.Is(err, store.ErrSave):
		writeError(w, http.StatusServiceUnavailable, errors.New("unable to save, try again later"))
	case errors.Is(err, files.ErrDeleteFailed):
		writeError(w, http.StatusInternalServerError, fmt.Errorf("unable to delete file %s", mux.Vars(r)["file_id"]))
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, errServer)
	}
}

// baseURL rebuilds the public root of the service from the request.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

type cError struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, code int, err error) {
	b, _ := json.Marshal(cError{Message: err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errServer)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds the daemon settings, read from PASTEFILE_* environment
// variables. Durations are in seconds.
type Config struct {
	Addr            string `env:"PASTEFILE_ADDR,default=:8080"`
	LogLevel        string `env:"PASTEFILE_LOG_LEVEL,default=info"`
	FileList        string `env:"PASTEFILE_FILE_LIST,default=./pastefile.json"`
	LockFile        string `env:"PASTEFILE_LOCK_FILE"`
	LockTimeout     int    `env:"PASTEFILE_LOCK_TIMEOUT,default=3"`
	UploadFolder    string `env:"PASTEFILE_UPLOAD_FOLDER,default=./upload"`
	TmpFolder       string `env:"PASTEFILE_TMP_FOLDER,default=./tmp"`
	Expire          int    `env:"PASTEFILE_EXPIRE,default=86400"`
	MaxUploadSize   int64  `env:"PASTEFILE_MAX_UPLOAD_SIZE,default=0"`
	DisabledFeature string `env:"PASTEFILE_DISABLED_FEATURE"`
	GCSBucket       string `env:"PASTEFILE_GCS_BUCKET"`
	OTLPEndpoint    string `env:"PASTEFILE_OTLP_ENDPOINT"`
	JanitorInterval int    `env:"PASTEFILE_JANITOR_INTERVAL,default=0"`
	ServiceName     string `env:"PASTEFILE_SERVICE_NAME,default=pastefile"`
}

// LoadConfig reads the environment. When path is set, the KEY=VALUE pairs of
// that file are loaded first; variables already set in the environment win.
func LoadConfig(path string) (Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.FileList == "" {
		errs = append(errs, errors.New("PASTEFILE_FILE_LIST must be set"))
	}
	if c.UploadFolder == "" && c.GCSBucket == "" {
		errs = append(errs, errors.New("PASTEFILE_UPLOAD_FOLDER or PASTEFILE_GCS_BUCKET must be set"))
	}
	if c.TmpFolder == "" {
		errs = append(errs, errors.New("PASTEFILE_TMP_FOLDER must be set"))
	}
	if c.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("PASTEFILE_LOCK_TIMEOUT must not be negative, got %d", c.LockTimeout))
	}
	if c.Expire <= 0 {
		errs = append(errs, fmt.Errorf("PASTEFILE_EXPIRE must be positive, got %d", c.Expire))
	}
	if c.MaxUploadSize < 0 {
		errs = append(errs, fmt.Errorf("PASTEFILE_MAX_UPLOAD_SIZE must not be negative, got %d", c.MaxUploadSize))
	}
	if c.JanitorInterval < 0 {
		errs = append(errs, fmt.Errorf("PASTEFILE_JANITOR_INTERVAL must not be negative, got %d", c.JanitorInterval))
	}
	return errors.Join(errs...)
}

// LockPath is the lock target, next to the metadata file unless set.
func (c Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return c.FileList + ".lock"
}

func (c Config) LockTimeoutDuration() time.Duration {
	return time.Duration(c.LockTimeout) * time.Second
}

func (c Config) ExpireDuration() time.Duration {
	return time.Duration(c.Expire) * time.Second
}

func (c Config) JanitorDuration() time.Duration {
	return time.Duration(c.JanitorInterval) * time.Second
}

// DisabledFeatures splits the comma separated PASTEFILE_DISABLED_FEATURE.
func (c Config) DisabledFeatures() []string {
	var features []string
	for _, f := range strings.Split(c.DisabledFeature, ",") {
		if f = strings.TrimSpace(f); f != "" {
			features = append(features, strings.ToLower(f))
		}
	}
	return features
}

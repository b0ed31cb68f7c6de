package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Orphan policies applied when a run aborts after variant artifacts were uploaded.
const (
	OrphanKeep     = "keep"
	OrphanRollback = "rollback"
)

const (
	DefaultVideoPrefix       = "Revoland/PropertyVideos"
	DefaultHLSMarker         = "_hls"
	DefaultMaxConcurrentRuns = 10
	DefaultNotifyTimeout     = 30 * time.Second
	DefaultNotifyAttempts    = 5
	DefaultPort              = "8080"
)

// DefaultAllowedExtensions are the source video extensions accepted by the filter.
var DefaultAllowedExtensions = []string{"mp4", "mov", "avi", "wmv", "webm"}

// Config is the immutable process configuration. It is built once at startup and
// handed to the components that need it.
type Config struct {
	Environment   string
	IsDev         bool
	BackendAPIURL string

	VideoPrefix       string
	AllowedExtensions []string
	HLSMarker         string
	Variants          VariantTable

	StorageBackend string
	GCS            GCSConfig
	S3             S3Config
	SFTP           SFTPConfig
	Local          LocalConfig

	FFmpegBinary  string
	FFmpegThreads int

	MaxConcurrentRuns int
	NotifyTimeout     time.Duration
	NotifyMaxAttempts int
	NotifyBackoffUnit time.Duration
	OrphanPolicy      string

	EventSharedSecret string
	Port              string
	LogLevel          string
	LogFile           string
	RecordRetention   time.Duration
}

type GCSConfig struct {
	CredentialsFile string
	PublicBaseURL   string
}

type S3Config struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	PublicBaseURL string
}

type LocalConfig struct {
	Dir           string
	PublicBaseURL string
}

type SFTPConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	PrivateKey    string
	PublicBaseURL string
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. A missing file is not an error; existing variables win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load builds a Config from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config using getenv as the variable source.
func LoadFrom(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	env := get("ENVIRONMENT", get("ENVIROMENT", ""))
	cfg := &Config{
		Environment:       env,
		IsDev:             !strings.EqualFold(env, "PRODUCTION"),
		VideoPrefix:       get("VIDEO_PREFIX", DefaultVideoPrefix),
		AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
		HLSMarker:         get("HLS_MARKER", DefaultHLSMarker),
		Variants:          DefaultVariants(),
		StorageBackend:    strings.ToLower(get("STORAGE_BACKEND", "gcs")),
		GCS: GCSConfig{
			CredentialsFile: get("GOOGLE_APPLICATION_CREDENTIALS_FILE", ""),
			PublicBaseURL:   get("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		},
		S3: S3Config{
			Region:        get("S3_REGION", "us-east-1"),
			AccessKey:     get("S3_ACCESS_KEY", ""),
			SecretKey:     get("S3_SECRET_KEY", ""),
			Endpoint:      get("S3_ENDPOINT", ""),
			PublicBaseURL: get("S3_PUBLIC_BASE_URL", ""),
		},
		SFTP: SFTPConfig{
			Host:          get("SFTP_HOST", ""),
			Port:          get("SFTP_PORT", "22"),
			User:          get("SFTP_USER", ""),
			Password:      get("SFTP_PASSWORD", ""),
			PrivateKey:    get("SFTP_PRIVATE_KEY", ""),
			PublicBaseURL: get("SFTP_PUBLIC_BASE_URL", ""),
		},
		Local: LocalConfig{
			Dir:           get("HLSWORKER_LOCAL_STORE_DIR", "./serve"),
			PublicBaseURL: get("LOCAL_PUBLIC_BASE_URL", ""),
		},
		FFmpegBinary:      get("FFMPEG_BINARY", "ffmpeg"),
		OrphanPolicy:      strings.ToLower(get("ORPHAN_POLICY", OrphanKeep)),
		EventSharedSecret: get("EVENT_SHARED_SECRET", ""),
		Port:              get("PORT", DefaultPort),
		LogLevel:          get("LOG_LEVEL", "info"),
		LogFile:           get("LOG_FILE", ""),
	}

	if cfg.IsDev {
		cfg.BackendAPIURL = get("BACKEND_API_URL_DEVELOPMENT", "")
	} else {
		cfg.BackendAPIURL = get("BACKEND_API_URL_PRODUCTION", "")
	}
	cfg.BackendAPIURL = strings.TrimRight(cfg.BackendAPIURL, "/")

	if raw := get("HLS_VARIANTS", ""); raw != "" {
		table, err := ParseVariants(raw)
		if err != nil {
			return nil, fmt.Errorf("HLS_VARIANTS: %w", err)
		}
		cfg.Variants = table
	}

	var err error
	if cfg.FFmpegThreads, err = intVar(get, "FFMPEG_THREADS", 2); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentRuns, err = intVar(get, "MAX_CONCURRENT_RUNS", DefaultMaxConcurrentRuns); err != nil {
		return nil, err
	}
	if cfg.NotifyMaxAttempts, err = intVar(get, "NOTIFY_MAX_ATTEMPTS", DefaultNotifyAttempts); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = durationVar(get, "NOTIFY_TIMEOUT", DefaultNotifyTimeout); err != nil {
		return nil, err
	}
	if cfg.NotifyBackoffUnit, err = durationVar(get, "NOTIFY_BACKOFF_UNIT", time.Second); err != nil {
		return nil, err
	}
	if cfg.RecordRetention, err = durationVar(get, "RECORD_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.OrphanPolicy {
	case OrphanKeep, OrphanRollback:
	default:
		return nil, fmt.Errorf("ORPHAN_POLICY: unknown policy %q", cfg.OrphanPolicy)
	}

	return cfg, nil
}

func intVar(get func(string, string) string, key string, def int) (int, error) {
	raw := get(key, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, raw)
	}
	return n, nil
}

func durationVar(get func(string, string) string, key string, def time.Duration) (time.Duration, error) {
	raw := get(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: expected a positive duration, got %q", key, raw)
	}
	return d, nil
}

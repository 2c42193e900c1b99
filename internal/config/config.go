package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	IngestName      string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Run scheduling. RunOnce performs a single invocation and exits;
	// otherwise the runner fires every RunInterval, never overlapping.
	RunOnce     bool
	RunInterval time.Duration

	// Object store holding all persisted run state.
	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobUseSSL    bool

	// Raw payload cache.
	RawCacheMode   string // "merge" or "simple"
	RawCachePrefix string

	// Seen-observation window.
	Retention  time.Duration
	ChunkSize  int
	ChunkPause time.Duration

	// Downstream observation forwarding.
	KafkaBrokers   []string
	KafkaSinkTopic string

	// Station metadata reconciliation.
	ElevationUnit      string
	MnetID             int
	RestrictedData     bool
	RestrictedMetadata bool

	// Provider endpoints. BoundsURL empty disables range validation.
	ProviderBaseURL string
	ProviderTimeout time.Duration
	LookupURL       string
	BoundsURL       string

	// Name of the environment variable carrying the provider credential blob.
	SecretName string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	runInterval, err := parsePositiveDuration("RUN_INTERVAL", "10m")
	if err != nil {
		return nil, err
	}
	retention, err := parseRetention()
	if err != nil {
		return nil, err
	}
	chunkSize, err := parseChunkSize()
	if err != nil {
		return nil, err
	}
	chunkPause, err := parsePositiveDuration("CHUNK_PAUSE", "2s")
	if err != nil {
		return nil, err
	}
	mnetID, err := parseMnetID()
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parsePositiveDuration("PROVIDER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		IngestName:      envOrDefault("INGEST_NAME", "station-ingest"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RunOnce:     os.Getenv("RUN_ONCE") == "true",
		RunInterval: runInterval,

		BlobEndpoint:  envOrDefault("BLOB_ENDPOINT", "localhost:9000"),
		BlobAccessKey: os.Getenv("BLOB_ACCESS_KEY"),
		BlobSecretKey: os.Getenv("BLOB_SECRET_KEY"),
		BlobBucket:    envOrDefault("BLOB_BUCKET", "station-ingest"),
		BlobUseSSL:    os.Getenv("BLOB_USE_SSL") == "true",

		RawCacheMode:   envOrDefault("RAW_CACHE_MODE", "merge"),
		RawCachePrefix: os.Getenv("RAW_CACHE_PREFIX"),

		Retention:  retention,
		ChunkSize:  chunkSize,
		ChunkPause: chunkPause,

		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "forwarded-observations"),

		ElevationUnit:      envOrDefault("ELEVATION_UNIT", "feet"),
		MnetID:             mnetID,
		RestrictedData:     os.Getenv("RESTRICTED_DATA") == "true",
		RestrictedMetadata: os.Getenv("RESTRICTED_METADATA") == "true",

		ProviderBaseURL: envOrDefault("PROVIDER_BASE_URL", "http://localhost:9980"),
		ProviderTimeout: providerTimeout,
		LookupURL:       envOrDefault("LOOKUP_URL", "http://localhost:9981/update_stations"),
		BoundsURL:       os.Getenv("BOUNDS_URL"),

		SecretName: os.Getenv("SECRET_NAME"),
	}

	if cfg.RawCachePrefix == "" {
		cfg.RawCachePrefix = cfg.IngestName
	}

	if cfg.RawCacheMode != "merge" && cfg.RawCacheMode != "simple" {
		return nil, fmt.Errorf("RAW_CACHE_MODE must be \"merge\" or \"simple\", got %q", cfg.RawCacheMode)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	if cfg.BlobBucket == "" {
		return nil, errors.New("BLOB_BUCKET is required")
	}

	return cfg, nil
}

// SeenObsKey is the object key of the persisted seen-observation file.
func (c *Config) SeenObsKey() string {
	return "state/" + c.IngestName + "_seen_obs.txt"
}

// StationMetaKey is the object key of the persisted station metadata document.
func (c *Config) StationMetaKey() string {
	return "metadata/" + c.IngestName + "_stations_metadata.json"
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseRetention() (time.Duration, error) {
	raw := envOrDefault("RETENTION_HOURS", "12")
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 0, fmt.Errorf("invalid RETENTION_HOURS: %q", raw)
	}
	return time.Duration(hours) * time.Hour, nil
}

func parseChunkSize() (int, error) {
	raw := envOrDefault("CHUNK_SIZE", "100")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 10000 {
		return 0, fmt.Errorf("invalid CHUNK_SIZE: %q (must be 1-10000)", raw)
	}
	return n, nil
}

func parseMnetID() (int, error) {
	raw := envOrDefault("MNET_ID", "0")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid MNET_ID: %q", raw)
	}
	return n, nil
}

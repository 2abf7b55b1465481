package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/seawhisper/alert-monitor/internal/domain"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

const maxAlertBatchSize = 5000

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Detection settings.
	CheckInterval       time.Duration
	LookbackWindow      time.Duration
	AlertBatchSize      int
	AlertListLimit      int
	MonitoredParameters []domain.Parameter
	RunOnStart          bool
	SeedDemoAlert       bool

	// Storage.
	StoreDriver string
	DatabaseURL string

	// Kafka ingestion and alert fan-out.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaReadingsTopic  string
	KafkaAlertsTopic    string
	KafkaGroupID        string
	IngestBatchSize     int
	IngestFlushInterval time.Duration

	// Redis pass lock (disabled when RedisAddr is empty).
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PassLockTTL   time.Duration

	// MQTT sensor ingestion (disabled when MQTTBroker is empty).
	MQTTBroker   string
	MQTTTopic    string
	MQTTClientID string

	// Mapbox reverse geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	checkInterval, err := parseMillisOrDuration("ALERT_CHECK_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	lookback, err := parseMillisOrDuration("ALERT_LOOKBACK_WINDOW", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	alertBatchSize, err := parseBoundedInt("ALERT_BATCH_SIZE", 200, maxAlertBatchSize)
	if err != nil {
		return nil, err
	}
	alertListLimit, err := parseBoundedInt("ALERT_LIST_LIMIT", 200, maxAlertBatchSize)
	if err != nil {
		return nil, err
	}
	params, err := parseParameters(sharedcfg.EnvOrDefault("MONITORED_PARAMETERS", string(domain.ParamTemperature)))
	if err != nil {
		return nil, err
	}
	runOnStart, err := parseBool("RUN_ON_START", false)
	if err != nil {
		return nil, err
	}
	seedDemo, err := parseBool("SEED_DEMO_ALERT", false)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}
	ingestBatchSize, err := parseBoundedInt("INGEST_BATCH_SIZE", 50, 1000)
	if err != nil {
		return nil, err
	}
	ingestFlush, err := parseMillisOrDuration("INGEST_FLUSH_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}
	lockTTL, err := parseMillisOrDuration("PASS_LOCK_TTL", 2*time.Minute)
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s")
	mapboxTimeout, err2 := time.ParseDuration(mapboxTimeoutStr)
	if err2 != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CheckInterval:       checkInterval,
		LookbackWindow:      lookback,
		AlertBatchSize:      alertBatchSize,
		AlertListLimit:      alertListLimit,
		MonitoredParameters: params,
		RunOnStart:          runOnStart,
		SeedDemoAlert:       seedDemo,

		StoreDriver: strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StoreMemory)),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaEnabled:        kafkaEnabled,
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReadingsTopic:  sharedcfg.EnvOrDefault("KAFKA_READINGS_TOPIC", "forecast-readings"),
		KafkaAlertsTopic:    sharedcfg.EnvOrDefault("KAFKA_ALERTS_TOPIC", "environmental-alerts"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "alert-monitor"),
		IngestBatchSize:     ingestBatchSize,
		IngestFlushInterval: ingestFlush,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		PassLockTTL:   lockTTL,

		MQTTBroker:   os.Getenv("MQTT_BROKER"),
		MQTTTopic:    sharedcfg.EnvOrDefault("MQTT_TOPIC", "sensors/+/readings"),
		MQTTClientID: sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "alert-monitor"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaReadingsTopic == "" {
			return nil, errors.New("KAFKA_READINGS_TOPIC is required")
		}
		if cfg.KafkaAlertsTopic == "" {
			return nil, errors.New("KAFKA_ALERTS_TOPIC is required")
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// parseMillisOrDuration reads a positive duration given either as a Go
// duration string ("5m") or a bare integer number of milliseconds ("300000").
func parseMillisOrDuration(key string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms <= 0 {
			return 0, fmt.Errorf("invalid %s: must be positive", key)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseBoundedInt(key string, def, maxValue int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxValue {
		return 0, fmt.Errorf("invalid %s: must be between 1 and %d", key, maxValue)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", key, s)
	}
	return b, nil
}

func parseParameters(s string) ([]domain.Parameter, error) {
	var params []domain.Parameter
	seen := make(map[domain.Parameter]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		p, ok := domain.ParseParameter(part)
		if !ok {
			return nil, fmt.Errorf("invalid MONITORED_PARAMETERS: unknown parameter %q", part)
		}
		if !seen[p] {
			seen[p] = true
			params = append(params, p)
		}
	}
	if len(params) == 0 {
		return nil, errors.New("MONITORED_PARAMETERS must name at least one parameter")
	}
	return params, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

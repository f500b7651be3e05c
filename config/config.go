// Package config loads cleaner settings from defaults, an optional YAML file and
// the environment, in that order.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	RepairBatchWide = "batchWide"
	RepairPerRecord = "perRecord"
)

// Config holds everything the CLI and HTTP server need to build a pipeline.
type Config struct {
	// Workers bounds concurrent geometry validation and repair.
	// Default: runtime.NumCPU()
	Workers int `yaml:"workers"`

	// RepairTrigger selects when repair runs: "batchWide" repairs every record
	// once any record is invalid, "perRecord" repairs only invalid records.
	// Default: batchWide
	RepairTrigger string `yaml:"repair_trigger"`

	// BufferQuadSegs is the quadrant segment count passed to the zero-width buffer.
	// Default: 8
	BufferQuadSegs int `yaml:"buffer_quad_segs"`

	// Listen is the HTTP listen address for `serve`.
	Listen string `yaml:"listen"`

	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	Events  EventsConfig  `yaml:"events"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

type EventsConfig struct {
	// Backend is one of "kafka", "redis" or "none".
	Backend       string   `yaml:"backend"`
	Topic         string   `yaml:"topic"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
}

type HistoryConfig struct {
	// Backend is "memory" or "mongo".
	Backend    string `yaml:"backend"`
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:        runtime.NumCPU(),
		RepairTrigger:  RepairBatchWide,
		BufferQuadSegs: 8,
		Listen:         ":8080",
		MaxUploadBytes: 256 << 20,
		Events: EventsConfig{
			Backend:      "kafka",
			Topic:        "geojson_upload_events",
			KafkaBrokers: []string{"kafka:9092"},
			RedisAddr:    "127.0.0.1:6379",
		},
		History: HistoryConfig{
			Backend:    "memory",
			Database:   "geoclean",
			Collection: "history",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 1024 {
		return fmt.Errorf("workers too large (got %d, max 1024)", c.Workers)
	}
	switch c.RepairTrigger {
	case RepairBatchWide, RepairPerRecord:
	default:
		return fmt.Errorf("repair_trigger must be %q or %q (got %q)", RepairBatchWide, RepairPerRecord, c.RepairTrigger)
	}
	if c.BufferQuadSegs <= 0 {
		return fmt.Errorf("buffer_quad_segs must be positive (got %d)", c.BufferQuadSegs)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive (got %d)", c.MaxUploadBytes)
	}
	switch c.Events.Backend {
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("events.kafka_brokers required for kafka backend")
		}
	case "redis":
		if c.Events.RedisAddr == "" {
			return fmt.Errorf("events.redis_addr required for redis backend")
		}
	case "none":
	default:
		return fmt.Errorf("events.backend must be kafka, redis or none (got %q)", c.Events.Backend)
	}
	if c.Events.Backend != "none" && c.Events.Topic == "" {
		return fmt.Errorf("events.topic cannot be empty")
	}
	switch c.History.Backend {
	case "memory":
	case "mongo":
		if c.History.MongoURI == "" {
			return fmt.Errorf("history.mongo_uri required for mongo backend")
		}
		if c.History.Database == "" || c.History.Collection == "" {
			return fmt.Errorf("history.database and history.collection required for mongo backend")
		}
	default:
		return fmt.Errorf("history.backend must be memory or mongo (got %q)", c.History.Backend)
	}
	return nil
}

// Load applies the YAML file at path (if non-empty) and then the environment on
// top of DefaultConfig, and validates the result.
//
// Environment variables:
//   - GEOCLEAN_WORKERS, GEOCLEAN_REPAIR_TRIGGER, GEOCLEAN_BUFFER_QUAD_SEGS
//   - GEOCLEAN_LISTEN, GEOCLEAN_MAX_UPLOAD_BYTES
//   - GEOCLEAN_EVENTS_BACKEND, GEOCLEAN_EVENTS_TOPIC, KAFKA_BROKERS (comma separated)
//   - REDIS_ADDR, REDIS_PASS, REDIS_DB
//   - GEOCLEAN_HISTORY_BACKEND, MONGO_URI, MONGO_DATABASE, MONGO_COLLECTION
//   - LOG_LEVEL, LOG_FORMAT
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := parseEnvInt("GEOCLEAN_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	parseEnvString("GEOCLEAN_REPAIR_TRIGGER", &cfg.RepairTrigger)
	if err := parseEnvInt("GEOCLEAN_BUFFER_QUAD_SEGS", &cfg.BufferQuadSegs); err != nil {
		return err
	}
	parseEnvString("GEOCLEAN_LISTEN", &cfg.Listen)
	if v := os.Getenv("GEOCLEAN_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid GEOCLEAN_MAX_UPLOAD_BYTES %q: %w", v, err)
		}
		cfg.MaxUploadBytes = n
	}

	parseEnvString("GEOCLEAN_EVENTS_BACKEND", &cfg.Events.Backend)
	parseEnvString("GEOCLEAN_EVENTS_TOPIC", &cfg.Events.Topic)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Events.KafkaBrokers = brokers
	}
	parseEnvString("REDIS_ADDR", &cfg.Events.RedisAddr)
	parseEnvString("REDIS_PASS", &cfg.Events.RedisPassword)
	if err := parseEnvInt("REDIS_DB", &cfg.Events.RedisDB); err != nil {
		return err
	}

	parseEnvString("GEOCLEAN_HISTORY_BACKEND", &cfg.History.Backend)
	parseEnvString("MONGO_URI", &cfg.History.MongoURI)
	parseEnvString("MONGO_DATABASE", &cfg.History.Database)
	parseEnvString("MONGO_COLLECTION", &cfg.History.Collection)

	parseEnvString("LOG_LEVEL", &cfg.Log.Level)
	parseEnvString("LOG_FORMAT", &cfg.Log.Format)
	return nil
}

func parseEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseEnvInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

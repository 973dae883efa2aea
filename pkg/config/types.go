package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent memd configuration stored as config.toml
// in the .memd/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Queue       QueueConfig       `toml:"queue"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Engine      EngineConfig      `toml:"engine"`
	Workers     WorkersConfig     `toml:"workers"`
	API         APIConfig         `toml:"api"`
}

// StorageConfig holds the durable store settings.
type StorageConfig struct {
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// QueueConfig holds the job queue settings.
type QueueConfig struct {
	Provider        string   `toml:"provider,omitempty"`
	Brokers         []string `toml:"brokers,omitempty"`
	JobsTopic       string   `toml:"jobs_topic,omitempty"`
	ResultsTopic    string   `toml:"results_topic,omitempty"`
	DeadLetterTopic string   `toml:"dead_letter_topic,omitempty"`
	GroupID         string   `toml:"group_id,omitempty"`
}

// VectorStoreConfig holds vector index settings.
type VectorStoreConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// EngineConfig holds consolidation policy settings. Durations are strings in
// Go duration syntax ("2s", "2m").
type EngineConfig struct {
	DuplicateThreshold float64 `toml:"duplicate_threshold,omitempty"`
	ConflictFloor      float64 `toml:"conflict_floor,omitempty"`
	TopK               uint    `toml:"top_k,omitempty"`
	MaxAttempts        uint    `toml:"max_attempts,omitempty"`
	LeaseTTL           string  `toml:"lease_ttl,omitempty"`
	BackoffBase        string  `toml:"backoff_base,omitempty"`
	BackoffCap         string  `toml:"backoff_cap,omitempty"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	Num uint `toml:"num,omitempty"`
}

// APIConfig holds the read API server settings.
type APIConfig struct {
	Enabled bool   `toml:"enabled,omitempty"`
	Listen  string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"queue.provider": {
		get: func(c *Config) string { return c.Queue.Provider },
		set: func(c *Config, v string) error { c.Queue.Provider = v; return nil },
	},
	"queue.brokers": {
		get: func(c *Config) string { return strings.Join(c.Queue.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Queue.Brokers = splitNonEmpty(v)
			return nil
		},
	},
	"queue.jobs_topic": {
		get: func(c *Config) string { return c.Queue.JobsTopic },
		set: func(c *Config, v string) error { c.Queue.JobsTopic = v; return nil },
	},
	"queue.results_topic": {
		get: func(c *Config) string { return c.Queue.ResultsTopic },
		set: func(c *Config, v string) error { c.Queue.ResultsTopic = v; return nil },
	},
	"queue.dead_letter_topic": {
		get: func(c *Config) string { return c.Queue.DeadLetterTopic },
		set: func(c *Config, v string) error { c.Queue.DeadLetterTopic = v; return nil },
	},
	"queue.group_id": {
		get: func(c *Config) string { return c.Queue.GroupID },
		set: func(c *Config, v string) error { c.Queue.GroupID = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"vector_store.collection": {
		get: func(c *Config) string { return c.VectorStore.Collection },
		set: func(c *Config, v string) error { c.VectorStore.Collection = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": {
		get: func(c *Config) string {
			if c.Embedding.Dimensions == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Embedding.Dimensions), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for embedding.dimensions: %w", err)
			}
			c.Embedding.Dimensions = uint(n)
			return nil
		},
	},
	"engine.duplicate_threshold": {
		get: func(c *Config) string { return formatFloat(c.Engine.DuplicateThreshold) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.duplicate_threshold: %w", err)
			}
			c.Engine.DuplicateThreshold = f
			return nil
		},
	},
	"engine.conflict_floor": {
		get: func(c *Config) string { return formatFloat(c.Engine.ConflictFloor) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.conflict_floor: %w", err)
			}
			c.Engine.ConflictFloor = f
			return nil
		},
	},
	"engine.top_k": {
		get: func(c *Config) string { return formatUint(c.Engine.TopK) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.top_k: %w", err)
			}
			c.Engine.TopK = uint(n)
			return nil
		},
	},
	"engine.max_attempts": {
		get: func(c *Config) string { return formatUint(c.Engine.MaxAttempts) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for engine.max_attempts: %w", err)
			}
			c.Engine.MaxAttempts = uint(n)
			return nil
		},
	},
	"engine.lease_ttl": {
		get: func(c *Config) string { return c.Engine.LeaseTTL },
		set: func(c *Config, v string) error { return setDuration(&c.Engine.LeaseTTL, "engine.lease_ttl", v) },
	},
	"engine.backoff_base": {
		get: func(c *Config) string { return c.Engine.BackoffBase },
		set: func(c *Config, v string) error { return setDuration(&c.Engine.BackoffBase, "engine.backoff_base", v) },
	},
	"engine.backoff_cap": {
		get: func(c *Config) string { return c.Engine.BackoffCap },
		set: func(c *Config, v string) error { return setDuration(&c.Engine.BackoffCap, "engine.backoff_cap", v) },
	},
	"workers.num": {
		get: func(c *Config) string { return formatUint(c.Workers.Num) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for workers.num: %w", err)
			}
			c.Workers.Num = uint(n)
			return nil
		},
	},
	"api.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.API.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for api.enabled: %w", err)
			}
			c.API.Enabled = b
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

func splitNonEmpty(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

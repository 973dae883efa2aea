package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/memd/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MEMD_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MEMD_QUEUE_BROKERS, MEMD_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MEMD_STORAGE_PROVIDER, MEMD_QUEUE_BROKERS, etc.
	v.SetEnvPrefix("MEMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective configuration from the viper
// precedence chain into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Queue: QueueConfig{
			Provider:        v.GetString("queue.provider"),
			Brokers:         v.GetStringSlice("queue.brokers"),
			JobsTopic:       v.GetString("queue.jobs_topic"),
			ResultsTopic:    v.GetString("queue.results_topic"),
			DeadLetterTopic: v.GetString("queue.dead_letter_topic"),
			GroupID:         v.GetString("queue.group_id"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			Collection: v.GetString("vector_store.collection"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Engine: EngineConfig{
			DuplicateThreshold: v.GetFloat64("engine.duplicate_threshold"),
			ConflictFloor:      v.GetFloat64("engine.conflict_floor"),
			TopK:               v.GetUint("engine.top_k"),
			MaxAttempts:        v.GetUint("engine.max_attempts"),
			LeaseTTL:           v.GetString("engine.lease_ttl"),
			BackoffBase:        v.GetString("engine.backoff_base"),
			BackoffCap:         v.GetString("engine.backoff_cap"),
		},
		Workers: WorkersConfig{
			Num: v.GetUint("workers.num"),
		},
		API: APIConfig{
			Enabled: v.GetBool("api.enabled"),
			Listen:  v.GetString("api.listen"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Queue
	v.SetDefault("queue.provider", d.Queue.Provider)
	v.SetDefault("queue.brokers", d.Queue.Brokers)
	v.SetDefault("queue.jobs_topic", d.Queue.JobsTopic)
	v.SetDefault("queue.results_topic", d.Queue.ResultsTopic)
	v.SetDefault("queue.dead_letter_topic", d.Queue.DeadLetterTopic)
	v.SetDefault("queue.group_id", d.Queue.GroupID)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Engine
	v.SetDefault("engine.duplicate_threshold", d.Engine.DuplicateThreshold)
	v.SetDefault("engine.conflict_floor", d.Engine.ConflictFloor)
	v.SetDefault("engine.top_k", d.Engine.TopK)
	v.SetDefault("engine.max_attempts", d.Engine.MaxAttempts)
	v.SetDefault("engine.lease_ttl", d.Engine.LeaseTTL)
	v.SetDefault("engine.backoff_base", d.Engine.BackoffBase)
	v.SetDefault("engine.backoff_cap", d.Engine.BackoffCap)

	// Workers
	v.SetDefault("workers.num", d.Workers.Num)

	// API
	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen", d.API.Listen)
}

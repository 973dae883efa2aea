package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/memd/pkg/dotdir"
	"github.com/papercomputeco/memd/pkg/engine"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .memd/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the list of all supported configuration key names
// in a stable order matching the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"storage.provider",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"queue.provider",
		"queue.brokers",
		"queue.jobs_topic",
		"queue.results_topic",
		"queue.dead_letter_topic",
		"queue.group_id",
		"vector_store.provider",
		"vector_store.target",
		"vector_store.collection",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"engine.duplicate_threshold",
		"engine.conflict_floor",
		"engine.top_k",
		"engine.max_attempts",
		"engine.lease_ttl",
		"engine.backoff_base",
		"engine.backoff_cap",
		"workers.num",
		"api.enabled",
		"api.listen",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .memd/
// directory. If the file does not exist, returns NewDefaultConfig() so
// callers always receive a fully-populated Config with sane defaults. Fields
// explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = defaults.Storage.Provider
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = defaults.Storage.SQLitePath
	}

	if cfg.Queue.Provider == "" {
		cfg.Queue.Provider = defaults.Queue.Provider
	}
	if len(cfg.Queue.Brokers) == 0 {
		cfg.Queue.Brokers = defaults.Queue.Brokers
	}
	if cfg.Queue.JobsTopic == "" {
		cfg.Queue.JobsTopic = defaults.Queue.JobsTopic
	}
	if cfg.Queue.ResultsTopic == "" {
		cfg.Queue.ResultsTopic = defaults.Queue.ResultsTopic
	}
	if cfg.Queue.DeadLetterTopic == "" {
		cfg.Queue.DeadLetterTopic = defaults.Queue.DeadLetterTopic
	}
	if cfg.Queue.GroupID == "" {
		cfg.Queue.GroupID = defaults.Queue.GroupID
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = defaults.VectorStore.Provider
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = defaults.Embedding.Provider
	}
	if cfg.Embedding.Target == "" {
		cfg.Embedding.Target = defaults.Embedding.Target
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	if cfg.Engine.DuplicateThreshold == 0 {
		cfg.Engine.DuplicateThreshold = defaults.Engine.DuplicateThreshold
	}
	if cfg.Engine.ConflictFloor == 0 {
		cfg.Engine.ConflictFloor = defaults.Engine.ConflictFloor
	}
	if cfg.Engine.TopK == 0 {
		cfg.Engine.TopK = defaults.Engine.TopK
	}
	if cfg.Engine.MaxAttempts == 0 {
		cfg.Engine.MaxAttempts = defaults.Engine.MaxAttempts
	}
	if cfg.Engine.LeaseTTL == "" {
		cfg.Engine.LeaseTTL = defaults.Engine.LeaseTTL
	}
	if cfg.Engine.BackoffBase == "" {
		cfg.Engine.BackoffBase = defaults.Engine.BackoffBase
	}
	if cfg.Engine.BackoffCap == "" {
		cfg.Engine.BackoffCap = defaults.Engine.BackoffCap
	}

	if cfg.Workers.Num == 0 {
		cfg.Workers.Num = defaults.Workers.Num
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

// SaveConfig persists the configuration to config.toml in the target .memd/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// EngineParams converts the engine section into runtime policy, parsing the
// duration strings.
func (e EngineConfig) EngineParams() (engine.Params, error) {
	p := engine.Params{
		DuplicateThreshold: e.DuplicateThreshold,
		ConflictFloor:      e.ConflictFloor,
		TopK:               int(e.TopK),
		MaxAttempts:        int(e.MaxAttempts),
	}

	var err error
	if e.LeaseTTL != "" {
		if p.LeaseTTL, err = time.ParseDuration(e.LeaseTTL); err != nil {
			return p, fmt.Errorf("parsing engine.lease_ttl: %w", err)
		}
	}
	if e.BackoffBase != "" {
		if p.BackoffBase, err = time.ParseDuration(e.BackoffBase); err != nil {
			return p, fmt.Errorf("parsing engine.backoff_base: %w", err)
		}
	}
	if e.BackoffCap != "" {
		if p.BackoffCap, err = time.ParseDuration(e.BackoffCap); err != nil {
			return p, fmt.Errorf("parsing engine.backoff_cap: %w", err)
		}
	}
	return p, nil
}

// setDuration validates v as a Go duration before storing it.
func setDuration(dst *string, key, v string) error {
	if _, err := time.ParseDuration(v); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dst = v
	return nil
}

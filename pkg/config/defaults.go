package config

const (
	defaultStorageProvider = "sqlite"
	defaultSQLitePath      = "memd.db"

	defaultQueueProvider   = "kafka"
	defaultBroker          = "localhost:9092"
	defaultJobsTopic       = "memd.jobs"
	defaultResultsTopic    = "memd.results"
	defaultDeadLetterTopic = "memd.jobs.dlq"
	defaultGroupID         = "memd-workers"

	defaultVectorProvider = "sqlitevec"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultDuplicateThreshold = 0.92
	defaultConflictFloor      = 0.60
	defaultTopK               = 10
	defaultMaxAttempts        = 5
	defaultLeaseTTL           = "2m"
	defaultBackoffBase        = "2s"
	defaultBackoffCap         = "60s"

	defaultNumWorkers = 3

	defaultAPIListen = ":8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider:   defaultStorageProvider,
			SQLitePath: defaultSQLitePath,
		},
		Queue: QueueConfig{
			Provider:        defaultQueueProvider,
			Brokers:         []string{defaultBroker},
			JobsTopic:       defaultJobsTopic,
			ResultsTopic:    defaultResultsTopic,
			DeadLetterTopic: defaultDeadLetterTopic,
			GroupID:         defaultGroupID,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Engine: EngineConfig{
			DuplicateThreshold: defaultDuplicateThreshold,
			ConflictFloor:      defaultConflictFloor,
			TopK:               defaultTopK,
			MaxAttempts:        defaultMaxAttempts,
			LeaseTTL:           defaultLeaseTTL,
			BackoffBase:        defaultBackoffBase,
			BackoffCap:         defaultBackoffCap,
		},
		Workers: WorkersConfig{
			Num: defaultNumWorkers,
		},
		API: APIConfig{
			Enabled: true,
			Listen:  defaultAPIListen,
		},
	}
}

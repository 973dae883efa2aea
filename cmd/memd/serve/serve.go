// Package servecmder provides the serve command that runs the consolidation
// workers and, optionally, the read API server in one process.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/memd/api"
	"github.com/papercomputeco/memd/pkg/config"
	"github.com/papercomputeco/memd/pkg/dotdir"
	"github.com/papercomputeco/memd/pkg/embeddings"
	"github.com/papercomputeco/memd/pkg/embeddings/ollama"
	"github.com/papercomputeco/memd/pkg/engine"
	"github.com/papercomputeco/memd/pkg/lock"
	"github.com/papercomputeco/memd/pkg/logger"
	"github.com/papercomputeco/memd/pkg/queue"
	queueinmemory "github.com/papercomputeco/memd/pkg/queue/inmemory"
	"github.com/papercomputeco/memd/pkg/queue/kafka"
	"github.com/papercomputeco/memd/pkg/store"
	storeinmemory "github.com/papercomputeco/memd/pkg/store/inmemory"
	"github.com/papercomputeco/memd/pkg/store/postgres"
	"github.com/papercomputeco/memd/pkg/store/sqlite"
	vectorutils "github.com/papercomputeco/memd/pkg/vector/utils"
	"github.com/papercomputeco/memd/pkg/worker"
)

type ServeCommander struct {
	configDir string
	debug     bool
	inmemory  bool

	storageProvider string
	sqlitePath      string
	postgresDSN     string
	brokers         string
	vectorProvider  string
	vectorTarget    string
	embeddingProv   string
	embeddingTgt    string
	numWorkers      uint
	apiListen       string

	logger *zap.Logger
}

const serveLongDesc string = `Run the memd consolidation service.

Workers consume consolidation jobs from the queue, one scope at a time, and
commit the results to the durable store. The read API exposes consolidated
memories, revision histories, and job records.

Configuration comes from flags, MEMD_* environment variables, and
.memd/config.toml, in that order of precedence.`

const serveShortDesc string = "Run the consolidation workers and read API"

// serveFlags is the flag registry for the serve command.
var serveFlags = config.FlagSet{
	config.FlagStorageProvider: {
		Name: "storage-provider", ViperKey: "storage.provider",
		Description: "Durable store provider (sqlite, postgres, inmemory)",
	},
	config.FlagSQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path",
		Description: "Path to the SQLite database",
	},
	config.FlagPostgresDSN: {
		Name: "postgres-dsn", ViperKey: "storage.postgres_dsn",
		Description: "Postgres connection string",
	},
	config.FlagBrokers: {
		Name: "brokers", Shorthand: "b", ViperKey: "queue.brokers",
		Description: "Comma-separated Kafka bootstrap brokers",
	},
	config.FlagVectorStoreProv: {
		Name: "vector-store-provider", ViperKey: "vector_store.provider",
		Description: "Vector index provider (qdrant, sqlitevec, inmemory)",
	},
	config.FlagVectorStoreTgt: {
		Name: "vector-store-target", ViperKey: "vector_store.target",
		Description: "Vector index target (host:port or db path)",
	},
	config.FlagEmbeddingProv: {
		Name: "embedding-provider", ViperKey: "embedding.provider",
		Description: "Embedding provider (ollama, none)",
	},
	config.FlagEmbeddingTgt: {
		Name: "embedding-target", ViperKey: "embedding.target",
		Description: "Embedding provider URL",
	},
	config.FlagNumWorkers: {
		Name: "workers", Shorthand: "w", ViperKey: "workers.num",
		Description: "Number of concurrent consolidation workers",
	},
	config.FlagAPIListen: {
		Name: "api-listen", Shorthand: "a", ViperKey: "api.listen",
		Description: "Address for the read API server to listen on",
	},
}

// boundFlags are the registry keys bound into the viper precedence chain.
var boundFlags = []string{
	config.FlagStorageProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagBrokers,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagNumWorkers,
	config.FlagAPIListen,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, boundFlags)

			cfg := config.FromViper(v)
			if cmder.inmemory {
				cfg.Storage.Provider = "inmemory"
				cfg.Queue.Provider = "inmemory"
				cfg.VectorStore.Provider = "inmemory"
			}

			return cmder.run(cmd.Context(), cfg)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, serveFlags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddUintFlag(cmd, serveFlags, config.FlagNumWorkers, &cmder.numWorkers)
	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.apiListen)

	cmd.Flags().BoolVar(&cmder.inmemory, "inmemory", false,
		"Run everything in-process with in-memory providers (local development)")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cfg *config.Config) error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	params, err := cfg.Engine.EngineParams()
	if err != nil {
		return err
	}

	dataDir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving data directory: %w", err)
	}

	st, err := c.createStore(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	defer st.Close()

	index, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		Target:       c.vectorTargetPath(cfg, dataDir),
		Collection:   cfg.VectorStore.Collection,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector driver: %w", err)
	}
	defer index.Close()

	embedder, err := c.createEmbedder(cfg)
	if err != nil {
		return err
	}
	if embedder != nil {
		defer embedder.Close()
	}

	consumer, publisher, err := c.createQueue(cfg)
	if err != nil {
		return err
	}
	defer consumer.Close()
	defer publisher.Close()

	orch := engine.New(engine.Config{
		Store:    st,
		Index:    index,
		Locks:    lock.NewLocalManager(),
		Embedder: embedder,
		Params:   params,
		Logger:   c.logger,
	})

	pool, err := worker.NewPool(&worker.Config{
		Consumer:   consumer,
		Publisher:  publisher,
		Processor:  orch,
		NumWorkers: cfg.Workers.Num,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}
	pool.Start(ctx)

	errChan := make(chan error, 1)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, st, c.logger)
		go func() {
			if err := apiServer.Run(); err != nil {
				errChan <- fmt.Errorf("API server error: %w", err)
			}
		}()
	}

	c.logger.Info("memd serving",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("vector_store", cfg.VectorStore.Provider),
		zap.Uint("workers", cfg.Workers.Num),
	)

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	if apiServer != nil {
		if err := apiServer.Shutdown(); err != nil {
			c.logger.Warn("shutting down API server", zap.Error(err))
		}
	}
	pool.Close()
	return nil
}

func (c *ServeCommander) createStore(ctx context.Context, cfg *config.Config, dataDir string) (store.Store, error) {
	switch cfg.Storage.Provider {
	case "sqlite":
		path := cfg.Storage.SQLitePath
		if !filepath.IsAbs(path) && path != ":memory:" {
			path = filepath.Join(dataDir, path)
		}
		st, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("creating SQLite store: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", path))
		return st, nil

	case "postgres":
		st, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating Postgres store: %w", err)
		}
		c.logger.Info("using Postgres storage")
		return st, nil

	case "inmemory":
		c.logger.Info("using in-memory storage")
		return storeinmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}

// vectorTargetPath resolves the vector store target, defaulting the sqlitevec
// database next to the main database.
func (c *ServeCommander) vectorTargetPath(cfg *config.Config, dataDir string) string {
	target := cfg.VectorStore.Target
	if cfg.VectorStore.Provider != "sqlitevec" {
		return target
	}
	if target == "" {
		target = "vectors.db"
	}
	if !filepath.IsAbs(target) && target != ":memory:" {
		target = filepath.Join(dataDir, target)
	}
	return target
}

func (c *ServeCommander) createEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: cfg.Embedding.Target,
			Model:   cfg.Embedding.Model,
		})
	case "none", "":
		// Candidates must arrive with embeddings attached.
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func (c *ServeCommander) createQueue(cfg *config.Config) (queue.Consumer, queue.Publisher, error) {
	switch cfg.Queue.Provider {
	case "kafka":
		kc := kafka.Config{
			Brokers:         cfg.Queue.Brokers,
			JobsTopic:       cfg.Queue.JobsTopic,
			ResultsTopic:    cfg.Queue.ResultsTopic,
			DeadLetterTopic: cfg.Queue.DeadLetterTopic,
			GroupID:         cfg.Queue.GroupID,
		}
		consumer, err := kafka.NewConsumer(kc, c.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating Kafka consumer: %w", err)
		}
		publisher, err := kafka.NewPublisher(kc, c.logger)
		if err != nil {
			consumer.Close()
			return nil, nil, fmt.Errorf("creating Kafka publisher: %w", err)
		}
		return consumer, publisher, nil

	case "inmemory":
		q := queueinmemory.New(256)
		return q, q, nil

	default:
		return nil, nil, fmt.Errorf("unsupported queue provider: %s", cfg.Queue.Provider)
	}
}

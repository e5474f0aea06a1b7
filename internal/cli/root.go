// Package cli implements the edurag command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"edurag/internal/config"
	"edurag/internal/domain"
	"edurag/internal/embedding"
	"edurag/internal/embedding/hash"
	"edurag/internal/embedding/openai"
	"edurag/internal/logger"
	"edurag/internal/metrics"
	"edurag/internal/service"
	"edurag/internal/vectorstore"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "edurag",
	Short: "Retrieval engine for multilingual educational texts",
	Long: `edurag indexes textbook material in Gujarati, Hindi and English and
answers questions with a grounded prompt and the sources it was built from.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/edurag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return UserError(rootCmd.ExecuteContext(ctx))
}

// UserError rewrites provider failures into the message shown to users.
func UserError(err error) error {
	if err != nil && errors.Is(err, domain.ErrEmbeddingUnavailable) {
		return fmt.Errorf("search temporarily unavailable: %w", err)
	}
	return err
}

func loadConfig() (*config.AppConfig, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// app bundles what a command needs from one engine instance.
type app struct {
	cfg     *config.AppConfig
	svc     *service.RAGService
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (a *app) Close() error { return a.svc.Close() }

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log := logger.New(cmd.ErrOrStderr(), level, cfg.Log.Pretty)
	m := metrics.New()
	svc, err := newService(cmd.Context(), cfg, log, m)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, svc: svc, metrics: m, log: log}, nil
}

func newService(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger, m *metrics.Metrics) (*service.RAGService, error) {
	gw, err := newGateway(cfg.Embedder, log, m)
	if err != nil {
		return nil, err
	}
	opts := vectorstore.Options{Type: cfg.VectorStore.Type}
	if cfg.VectorStore.SQLite != nil {
		opts.SQLitePath = cfg.VectorStore.SQLite.Path
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		opts.Qdrant.URL = q.URL
		opts.Qdrant.APIKey = q.APIKey
		opts.Qdrant.Collection = q.Collection
	}
	store, err := vectorstore.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	svc, err := service.NewRAGService(service.Options{
		ChunkSize:       cfg.Chunker.ChunkSize,
		ChunkOverlap:    cfg.Chunker.ChunkOverlap,
		Threshold:       cfg.Retrieval.SimilarityThreshold,
		MaxResults:      cfg.Retrieval.MaxRetrievedDocs,
		QueryTimeout:    cfg.Retrieval.QueryTimeout(),
		MaxContextRunes: cfg.Retrieval.MaxContextRunes,
		Language:        cfg.Language,
	}, gw, store, log, m)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}

func newGateway(cfg config.EmbedderConfig, log zerolog.Logger, m *metrics.Metrics) (*embedding.Gateway, error) {
	gcfg := embedding.DefaultGatewayConfig()
	gcfg.Observe = m.ObserveEmbed
	switch cfg.Type {
	case "hash", "":
		h := cfg.Hash
		if h == nil {
			h = &config.HashEmbedderConfig{Dimension: hash.DefaultDimension}
		}
		return embedding.NewGateway(hash.NewEmbedder(h.Dimension, h.Seed), gcfg, log), nil
	case "openai":
		o := cfg.OpenAI
		if o == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidConfiguration)
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init: %w", err)
		}
		if o.TimeoutSecs > 0 {
			gcfg.Timeout = time.Duration(o.TimeoutSecs) * time.Second
		}
		gcfg.MaxAttempts = o.MaxAttempts
		gcfg.RequestsPerSecond = o.RequestsPerSecond
		gcfg.Parallelism = o.Parallelism
		return embedding.NewGateway(client, gcfg, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfiguration, cfg.Type)
	}
}

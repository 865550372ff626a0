package cmd

import (
	"context"
	"time"

	"github.com/kyleking/dataverse-agent/internal/agent"
	"github.com/kyleking/dataverse-agent/internal/answer"
	"github.com/kyleking/dataverse-agent/internal/cache"
	"github.com/kyleking/dataverse-agent/internal/config"
	"github.com/kyleking/dataverse-agent/internal/dataverse"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/llm"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/planner"
	"github.com/kyleking/dataverse-agent/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// runtimeOptions selects the optional parts of the pipeline a command needs
type runtimeOptions struct {
	oracle  bool
	history bool
}

// runtime owns everything a command opens and must close
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	agent    *agent.Agent
	metadata *dataverse.MetadataSource
	history  history.Store
	closers  []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config, opts runtimeOptions) (rt *runtime, err error) {
	if err := cfg.ValidateDataverse(); err != nil {
		return nil, errors.NewConfigError(err.Error(), "dataverse").
			WithSuggestion("Set DATAVERSE_URL, DATAVERSE_TENANT_ID, DATAVERSE_CLIENT_ID and CLIENT_SECRET").
			WithSuggestion("Or add a dataverse section to " + config.ConfigPath())
	}

	logger := logging.GetLogger()
	rt = &runtime{cfg: cfg, logger: logger, history: history.NopStore{}}

	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	shutdown, err := tracing.Init(ctx, logger, cfg.Tracing, Version)
	if err != nil {
		return rt, err
	}

	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return shutdown(ctx)
	})

	client, err := dataverse.NewClient(cfg.Dataverse, dataverse.WithLogger(logger))
	if err != nil {
		return rt, err
	}

	metaOpts := []dataverse.MetadataOption{dataverse.WithMetadataLogger(logger)}

	if ttl := config.Duration(cfg.Cache.MetadataTTL); ttl > 0 {
		fc, err := cache.NewFileCache(cfg.Cache.Directory, cfg.Cache.MaxSizeMB, ttl, config.Duration(cfg.Cache.CleanupFreq))
		if err != nil {
			return rt, err
		}

		rt.closers = append(rt.closers, fc.Close)
		metaOpts = append(metaOpts, dataverse.WithMetadataCache(fc, ttl))
	}

	rt.metadata = dataverse.NewMetadataSource(client, client.BaseURL(), metaOpts...)

	var (
		gen      *planner.Generator
		answerer agent.Answerer
	)

	if opts.oracle {
		manager, err := llm.NewManagerFromConfig(cfg.LLM)
		if err != nil {
			return rt, err
		}

		manager.SetLogger(logger)

		gen = planner.New(manager, planner.WithLogger(logger), planner.WithDefaultTop(cfg.Planner.DefaultTop))
		answerer = answer.New(manager, logger)
	}

	if opts.history && !cfg.History.Disabled {
		store, err := history.NewDuckDBStore(ctx, cfg.History.Path, logger)
		if err != nil {
			return rt, err
		}

		rt.history = store
		rt.closers = append(rt.closers, store.Close)
	}

	rt.agent = agent.New(rt.metadata, gen, client, answerer,
		agent.WithHistory(rt.history),
		agent.WithPrefix(cfg.Dataverse.EntityPrefix),
		agent.WithMaxSchemaBytes(cfg.Planner.MaxSchemaBytes),
		agent.WithLogger(logger),
		agent.WithTracer(tracing.Tracer()),
	)

	return rt, nil
}

// refreshMetadata drops the cached metadata document so the next read downloads it
func (rt *runtime) refreshMetadata(ctx context.Context) error {
	if !rt.metadata.Caching() {
		rt.logger.Debug("metadata cache disabled, nothing to refresh")
		return nil
	}

	if err := rt.metadata.Invalidate(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to drop cached metadata document")
	}

	rt.logger.Info("dropped cached metadata document")

	return nil
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() error {
	var firstErr error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	rt.closers = nil

	return firstErr
}

// openHistory opens only the history store, for commands that never reach Dataverse
func openHistory(ctx context.Context, cfg *config.Config) (history.Store, error) {
	if cfg.History.Disabled {
		return history.NopStore{}, nil
	}

	return history.NewDuckDBStore(ctx, cfg.History.Path, logging.GetLogger())
}

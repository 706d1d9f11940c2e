package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/agent"
	"github.com/ShayCichocki/finsight/internal/config"
	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/logging"
	"github.com/ShayCichocki/finsight/internal/orchestrator"
	"github.com/ShayCichocki/finsight/internal/tools"
)

// app holds everything a command needs to answer questions.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *insight.Store
	orch   *orchestrator.Orchestrator
	models *modelFactory

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// newApp wires configuration into a ready orchestrator.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.ForDataDir(cfg.ResolveDataDir(), cfg.Log.Level)

	store, err := openStore(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}
	if cfg.Cache.Watch {
		a.watch(ctx)
	}

	a.models = newModelFactory(ctx, cfg, logger)
	orch, err := buildOrchestrator(cfg, store, logger, a.models)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch
	return a, nil
}

// openStore opens the insight store on the configured backend.
func openStore(cfg *config.Config, logger *zap.Logger) (*insight.Store, error) {
	var backend insight.Backend
	switch cfg.Cache.Backend {
	case config.CacheBackendMemory:
		backend = insight.NewMemoryBackend()
	case config.CacheBackendSQLite:
		backend = openSQLiteBackend(cfg.CachePath(), cfg.Cache.Driver, logger)
	default:
		b, err := insight.NewFileBackend(cfg.CachePath())
		if err != nil {
			return nil, fmt.Errorf("open insight file: %w", err)
		}
		backend = b
	}
	return insight.Open(backend, insight.WithLogger(logger)), nil
}

// openSQLiteBackend opens the insight database. A database that cannot be
// opened is moved aside and recreated; when that fails too the store runs
// in memory for this process.
func openSQLiteBackend(path, driver string, logger *zap.Logger) insight.Backend {
	b, err := insight.NewSQLiteBackend(path, driver)
	if err == nil {
		return b
	}
	logger.Warn("insight database unreadable", zap.String("path", path), zap.Error(err))

	if _, statErr := os.Stat(path); statErr == nil {
		aside := fmt.Sprintf("%s.corrupt-%s", path, time.Now().Format("20060102T150405"))
		if renameErr := os.Rename(path, aside); renameErr != nil {
			logger.Warn("move unreadable insight database", zap.Error(renameErr))
		} else {
			for _, suffix := range []string{"-wal", "-shm"} {
				_ = os.Rename(path+suffix, aside+suffix)
			}
			logger.Warn("moved unreadable insight database aside", zap.String("moved_to", aside))

			if b, err = insight.NewSQLiteBackend(path, driver); err == nil {
				return b
			}
		}
	}

	logger.Warn("insight store running in memory", zap.Error(err))
	return insight.NewMemoryBackend()
}

// watch reloads the store when another process changes it.
func (a *app) watch(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	a.watchDone = make(chan struct{})

	go func() {
		defer close(a.watchDone)
		err := a.store.Watch(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled), errors.Is(err, insight.ErrWatchUnsupported):
		default:
			a.logger.Warn("insight watch stopped", zap.Error(err))
		}
	}()
}

// buildOrchestrator creates the team from the roster and registers it.
func buildOrchestrator(cfg *config.Config, store *insight.Store, logger *zap.Logger, models *modelFactory) (*orchestrator.Orchestrator, error) {
	roster, err := agent.LoadRoster(cfg.Roster.Path)
	if err != nil {
		return nil, err
	}

	catalog := tools.DefaultCatalog(toolSettings(cfg))

	specialists, writer, err := roster.Build(agent.BuildDeps{
		Models:          models.get,
		Store:           store,
		Tools:           catalog,
		SpecialistModel: cfg.Models.Specialists,
		WriterModel:     cfg.Models.Writer,
		HistorySize:     cfg.Orchestrator.HistorySize,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build team: %w", err)
	}

	registry, err := orchestrator.NewRegistry(specialists...)
	if err != nil {
		return nil, err
	}

	planner, err := models.get(cfg.Models.Orchestrator)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithHistorySize(cfg.Orchestrator.HistorySize),
		orchestrator.WithLogger(logger),
		orchestrator.WithParallelDispatch(cfg.Orchestrator.Parallel),
		orchestrator.WithMaxParallel(cfg.Orchestrator.MaxParallel),
		orchestrator.WithLessons(store),
	}
	if cfg.Orchestrator.Writer {
		opts = append(opts, orchestrator.WithWriter(writer))
	}
	if cfg.Orchestrator.Tools {
		opts = append(opts, orchestrator.WithTools(catalog))
	}

	return orchestrator.New(orchestrator.RequiredConfig{Model: planner, Registry: registry}, opts...)
}

func toolSettings(cfg *config.Config) tools.Settings {
	finnhubKey, _ := config.GetAPIKey(cfg, config.ProviderFinnhub)
	fmpKey, _ := config.GetAPIKey(cfg, config.ProviderFMP)
	return tools.Settings{
		FinnhubKey: finnhubKey,
		FinnhubURL: cfg.Providers.Finnhub.BaseURL,
		FMPKey:     fmpKey,
		FMPURL:     cfg.Providers.FMP.BaseURL,
		Timeout:    cfg.Timeouts.Tool,
	}
}

// modelFactory creates one backend per model name and reuses it.
type modelFactory struct {
	ctx    context.Context
	cfg    *config.Config
	logger *zap.Logger

	mu     sync.Mutex
	models map[string]llm.Model
}

func newModelFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) *modelFactory {
	return &modelFactory{ctx: ctx, cfg: cfg, logger: logger, models: make(map[string]llm.Model)}
}

// get returns the backend for name. A backend that cannot be created, for
// example because its key is missing, is replaced by an offline model whose
// calls fail, so agents answer with placeholders instead of refusing to start.
func (f *modelFactory) get(name string) (llm.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.models[name]; ok {
		return m, nil
	}

	m, err := llm.New(f.ctx, f.llmConfig(name))
	if err != nil {
		f.logger.Warn("model unavailable, answering with placeholders",
			zap.String("model", name),
			zap.Error(err),
		)
		m = offlineModel(name, err)
	}
	f.models[name] = m
	return m, nil
}

// usage returns the token usage of every backend that tracks it, sorted by
// model name. Offline models have no tracker and are left out.
func (f *modelFactory) usage() []llm.Usage {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.models))
	for name := range f.models {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]llm.Usage, 0, len(names))
	for _, name := range names {
		tr, ok := llm.TrackerOf(f.models[name])
		if !ok {
			continue
		}
		u := tr.Usage()
		u.Model = name
		out = append(out, u)
	}
	return out
}

func (f *modelFactory) llmConfig(name string) llm.Config {
	cfg := f.cfg
	anthropicKey, _ := config.GetAPIKey(cfg, config.ProviderAnthropic)
	openaiKey, _ := config.GetAPIKey(cfg, config.ProviderOpenAI)
	geminiKey, _ := config.GetAPIKey(cfg, config.ProviderGemini)

	return llm.Config{
		Model:       name,
		MaxTokens:   cfg.Models.MaxTokens,
		Temperature: cfg.Models.Temperature,
		Timeout:     cfg.Timeouts.Model,
		Anthropic: llm.AnthropicConfig{
			APIKey:        anthropicKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		},
		OpenAI: llm.OpenAIConfig{
			APIKey:  openaiKey,
			BaseURL: cfg.OpenAI.BaseURL,
		},
		Gemini: llm.GeminiConfig{
			APIKey: geminiKey,
		},
	}
}

func offlineModel(name string, cause error) llm.Model {
	return &llm.Func{
		ID: name,
		Fn: func(context.Context, string, string) (string, error) {
			return "", cause
		},
	}
}

// logUsage records the token usage so far, one line per model.
func (a *app) logUsage() {
	for _, u := range a.models.usage() {
		a.logger.Info("token usage",
			zap.String("model", u.Model),
			zap.Int64("input_tokens", u.InputTokens),
			zap.Int64("output_tokens", u.OutputTokens),
			zap.Int("calls", u.Calls),
			zap.Int("failures", u.Failures),
		)
	}
}

// Close stops the watcher and releases the store and logger.
func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.models != nil {
		a.logUsage()
	}
	if a.stopWatch != nil {
		a.stopWatch()
		<-a.watchDone
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close insight store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// openStoreOnly opens the store without building the team, for commands
// that only read or edit insights.
func openStoreOnly(cfg *config.Config) (*insight.Store, *zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.ForDataDir(cfg.ResolveDataDir(), cfg.Log.Level)
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

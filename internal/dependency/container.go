// Package dependency wires the toolsmith services using go.uber.org/dig.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/agent"
	"github.com/crystaldolphin/toolsmith/internal/bus"
	"github.com/crystaldolphin/toolsmith/internal/channels"
	"github.com/crystaldolphin/toolsmith/internal/config"
	"github.com/crystaldolphin/toolsmith/internal/ledger"
	"github.com/crystaldolphin/toolsmith/internal/logging"
	"github.com/crystaldolphin/toolsmith/internal/orchestrator"
	"github.com/crystaldolphin/toolsmith/internal/providers"
	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/server"
	"github.com/crystaldolphin/toolsmith/internal/session"
	"github.com/crystaldolphin/toolsmith/internal/synth"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
	"github.com/crystaldolphin/toolsmith/internal/tools"
	"github.com/crystaldolphin/toolsmith/internal/tools/builtin"
)

// Container resolves service singletons on first use.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	d   *dig.Container
	cfg *config.Config

	mu      sync.Mutex
	closers []func() error
}

// New registers every constructor. Nothing is built until a getter asks for it.
func New(cfg *config.Config) (*Container, error) {
	c := &Container{d: dig.New(), cfg: cfg}

	for _, ctor := range []any{
		func() *config.Config { return cfg },
		c.newLogger,
		newMetricsRegistry,
		newMetrics,
		c.newLedger,
		newRegistry,
		newToolbox,
		newInvoker,
		newProvider,
		newSynthesizer,
		newHistory,
		newOrchestrator,
		newMessageBus,
		newChannels,
		newAgentLoop,
		newServer,
		newWatcher,
		newJanitor,
	} {
		if err := c.d.Provide(ctor); err != nil {
			return nil, fmt.Errorf("provide: %w", err)
		}
	}
	return c, nil
}

func resolve[T any](c *Container) (T, error) {
	var out T
	err := c.d.Invoke(func(v T) { out = v })
	if err != nil {
		return out, dig.RootCause(err)
	}
	return out, nil
}

func (c *Container) Config() *config.Config { return c.cfg }

func (c *Container) Logger() (*zap.Logger, error)                      { return resolve[*zap.Logger](c) }
func (c *Container) Ledger() (*ledger.Ledger, error)                   { return resolve[*ledger.Ledger](c) }
func (c *Container) Toolbox() (*toolbox.Manager, error)                { return resolve[*toolbox.Manager](c) }
func (c *Container) Provider() (schema.LLMProvider, error)             { return resolve[schema.LLMProvider](c) }
func (c *Container) Orchestrator() (*orchestrator.Orchestrator, error) { return resolve[*orchestrator.Orchestrator](c) }
func (c *Container) AgentLoop() (*agent.Loop, error)                   { return resolve[*agent.Loop](c) }
func (c *Container) Channels() (*channels.Manager, error)              { return resolve[*channels.Manager](c) }
func (c *Container) Server() (*server.Server, error)                   { return resolve[*server.Server](c) }
func (c *Container) Watcher() (*toolbox.Watcher, error)                { return resolve[*toolbox.Watcher](c) }
func (c *Container) Janitor() (*toolbox.Janitor, error)                { return resolve[*toolbox.Janitor](c) }
func (c *Container) MessageBus() (*bus.MessageBus, error)              { return resolve[*bus.MessageBus](c) }

func (c *Container) onClose(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, fn)
}

// Close releases resources in reverse construction order.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Container) newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Format == "console",
		File:        config.ExpandHome(cfg.Log.File),
	})
	if err != nil {
		return nil, err
	}
	c.onClose(func() error { _ = logger.Sync(); return nil })
	return logger, nil
}

func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newMetrics(reg *prometheus.Registry) telemetry.Metrics {
	return telemetry.NewPrometheusMetrics(reg)
}

func (c *Container) newLedger(cfg *config.Config) (*ledger.Ledger, error) {
	led, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open deletion ledger: %w", err)
	}
	c.onClose(led.Close)
	return led, nil
}

// newRegistry builds the registry with the built-ins; deleted built-ins stay out.
func newRegistry(cfg *config.Config, led *ledger.Ledger) (*tools.Registry, error) {
	b := tools.NewRegistryBuilder().WithBlocked(led.IsBlocked)
	for _, t := range builtin.All(builtin.Options{WebMaxChars: cfg.Tools.Web.MaxChars}) {
		b.WithTool(t)
	}
	return b.Build()
}

func newToolbox(
	cfg *config.Config,
	registry *tools.Registry,
	led *ledger.Ledger,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) (*toolbox.Manager, error) {
	store, err := toolbox.NewStore(cfg.DynamicDir())
	if err != nil {
		return nil, err
	}
	runtimes := make(map[toolbox.Runtime]string, len(cfg.Tools.Runtimes))
	for rt, bin := range cfg.Tools.Runtimes {
		runtimes[toolbox.Runtime(rt)] = bin
	}
	m := toolbox.NewManager(store, registry, led, toolbox.ManagerOptions{
		Runtimes:  runtimes,
		MaxOutput: cfg.Tools.MaxOutputBytes,
	}, logger, metrics)

	n, err := m.LoadAll(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load dynamic tools: %w", err)
	}
	logger.Info("tool registry ready", zap.Int("dynamic", n), zap.Int("total", registry.Len()))
	return m, nil
}

func toolTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Tools.TimeoutSeconds) * time.Second
}

func newInvoker(cfg *config.Config, logger *zap.Logger, metrics telemetry.Metrics) *tools.Invoker {
	return tools.NewInvoker(toolTimeout(cfg), int64(cfg.Tools.MaxConcurrent), logger, metrics)
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	params := cfg.ProviderParams("")
	if params.ProviderName == "" {
		return nil, fmt.Errorf("no API key configured for model %q: edit %s", cfg.Agent.Model, config.ConfigPath())
	}
	return providers.New(params), nil
}

func newSynthesizer(
	cfg *config.Config,
	provider schema.LLMProvider,
	registry *tools.Registry,
	led *ledger.Ledger,
	manager *toolbox.Manager,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) *synth.Synthesizer {
	var imports map[toolbox.Runtime][]string
	if len(cfg.Tools.AllowedImports) > 0 {
		imports = make(map[toolbox.Runtime][]string, len(cfg.Tools.AllowedImports))
		for rt, mods := range cfg.Tools.AllowedImports {
			imports[toolbox.Runtime(rt)] = mods
		}
	}
	gate := synth.NewGate(cfg.Tools.AllowedHosts, imports)
	return synth.NewSynthesizer(provider, registry, led, manager, gate, synth.Options{
		Model:       cfg.Agent.Model,
		Temperature: cfg.Agent.Synthesis.Temperature,
		MaxTokens:   cfg.Agent.MaxTokens,
		ToolTimeout: toolTimeout(cfg),
	}, logger, metrics)
}

func newHistory(cfg *config.Config, logger *zap.Logger) (*session.Store, error) {
	return session.NewStore(cfg.HistoryPath(), logger)
}

func newOrchestrator(
	cfg *config.Config,
	provider schema.LLMProvider,
	registry *tools.Registry,
	invoker *tools.Invoker,
	synthesizer *synth.Synthesizer,
	history *session.Store,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) *orchestrator.Orchestrator {
	return orchestrator.New(provider, registry, invoker, synthesizer, history, orchestrator.Options{
		Model:            cfg.Agent.Model,
		Temperature:      cfg.Agent.Temperature,
		MaxTokens:        cfg.Agent.MaxTokens,
		HistoryLimit:     cfg.Agent.HistoryLimit,
		Persona:          cfg.Agent.Persona,
		SynthesisEnabled: cfg.Agent.Synthesis.Enabled,
		IntegrateResults: cfg.Agent.IntegrateResults,
	}, logger, metrics)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newChannels(cfg *config.Config, b *bus.MessageBus, logger *zap.Logger) *channels.Manager {
	return channels.NewManager(&cfg.Channels, b, logger)
}

func newAgentLoop(b *bus.MessageBus, orch *orchestrator.Orchestrator, manager *toolbox.Manager, logger *zap.Logger) *agent.Loop {
	return agent.NewLoop(b, orch, manager, logger)
}

func newServer(
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	manager *toolbox.Manager,
	reg *prometheus.Registry,
	logger *zap.Logger,
) *server.Server {
	return server.New(orch, manager, server.Options{
		Addr:     net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Gatherer: reg,
	}, logger)
}

func newWatcher(manager *toolbox.Manager, logger *zap.Logger) *toolbox.Watcher {
	return toolbox.NewWatcher(manager, logger)
}

func newJanitor(cfg *config.Config, manager *toolbox.Manager, logger *zap.Logger) *toolbox.Janitor {
	ttl := time.Duration(cfg.Tools.Janitor.StagingTTLMinutes) * time.Minute
	return toolbox.NewJanitor(manager.Store(), cfg.Tools.Janitor.Schedule, ttl, logger)
}

package toolbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/toolsmith/internal/ledger"
	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

// DeletionLedger is the part of the ledger the manager needs.
type DeletionLedger interface {
	Blocks(desc schema.ToolDescriptor) bool
	RecordDeletion(desc schema.ToolDescriptor) (ledger.Record, error)
}

// ManagerOptions configures how modules are executed.
type ManagerOptions struct {
	// Runtimes maps a runtime name to the interpreter binary.
	Runtimes  map[Runtime]string
	MaxOutput int
}

// Manager owns the dynamic half of the registry: it loads modules from the
// store, installs new ones and applies operator deletions. Every mutation
// runs under one mutex so install, sync and delete never interleave.
type Manager struct {
	mu       sync.Mutex
	store    *Store
	registry *tools.Registry
	ledger   DeletionLedger
	opts     ManagerOptions
	logger   *zap.Logger
	metrics  telemetry.Metrics
}

func NewManager(
	store *Store,
	registry *tools.Registry,
	deletions DeletionLedger,
	opts ManagerOptions,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) *Manager {
	if opts.Runtimes == nil {
		opts.Runtimes = map[Runtime]string{RuntimePython: "python3", RuntimeJavaScript: "node"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Manager{
		store:    store,
		registry: registry,
		ledger:   deletions,
		opts:     opts,
		logger:   logger.Named("toolbox"),
		metrics:  metrics,
	}
}

func (m *Manager) Registry() *tools.Registry { return m.registry }
func (m *Manager) Store() *Store             { return m.store }

type loaded struct {
	desc schema.ToolDescriptor
	tool *ScriptTool
}

// LoadAll loads every persisted module in parallel and registers it.
// An unreadable module aborts startup; a module whose capability was deleted
// is removed from disk instead of being registered.
func (m *Manager) LoadAll(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.store.Names()
	if err != nil {
		return 0, err
	}

	results := make([]loaded, len(names))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			l, err := m.open(name)
			if err != nil {
				return err
			}
			results[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("load dynamic tools: %w", err)
	}

	count := 0
	for _, l := range results {
		if m.ledger.Blocks(l.desc) {
			m.logger.Info("removing deleted tool module", zap.String("tool", l.desc.Name))
			if err := m.store.Remove(l.desc.Name); err != nil {
				m.logger.Warn("remove deleted tool module failed", zap.String("tool", l.desc.Name), zap.Error(err))
			}
			continue
		}
		if err := m.registry.Register(l.desc, l.tool); err != nil {
			m.logger.Warn("dynamic tool not registered", zap.String("tool", l.desc.Name), zap.Error(err))
			continue
		}
		count++
	}
	m.metrics.SetRegisteredTools(m.registry.Len())
	m.logger.Info("dynamic tools loaded", zap.Int("count", count))
	return count, nil
}

// open loads a module from disk and binds it to its interpreter.
func (m *Manager) open(name string) (loaded, error) {
	mod, err := m.store.Load(name)
	if err != nil {
		return loaded{}, err
	}
	interp, ok := m.opts.Runtimes[mod.Manifest.Runtime]
	if !ok || interp == "" {
		return loaded{}, fmt.Errorf("%w: %s: no interpreter for runtime %q", ErrInvalidModule, name, mod.Manifest.Runtime)
	}
	dir := m.store.ModuleDir(name)
	st := NewScriptTool(mod.Manifest, dir, interp, m.opts.MaxOutput)
	return loaded{
		desc: tools.DescriptorOf(st, schema.KindDynamic, dir, mod.Manifest.CreatedAt),
		tool: st,
	}, nil
}

// Install persists mod, loads it back from disk and registers it.
// A taken name is reported as tools.ErrRegistryConflict and nothing is written.
func (m *Manager) Install(mod Module) (tools.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := mod.Manifest.Name
	if m.registry.Contains(name) {
		return tools.Entry{}, fmt.Errorf("%w: %q", tools.ErrRegistryConflict, name)
	}
	if mod.Manifest.CreatedAt.IsZero() {
		mod.Manifest.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}

	if _, err := m.store.Save(mod); err != nil {
		if errors.Is(err, ErrModuleExists) {
			return tools.Entry{}, fmt.Errorf("%w: %q", tools.ErrRegistryConflict, name)
		}
		return tools.Entry{}, err
	}

	l, err := m.open(name)
	if err == nil {
		err = m.registry.Register(l.desc, l.tool)
	}
	if err != nil {
		if rmErr := m.store.Remove(name); rmErr != nil {
			m.logger.Warn("cleanup after failed install", zap.String("tool", name), zap.Error(rmErr))
		}
		return tools.Entry{}, err
	}

	m.metrics.SetRegisteredTools(m.registry.Len())
	m.logger.Info("dynamic tool installed",
		zap.String("tool", name),
		zap.String("runtime", string(mod.Manifest.Runtime)),
		zap.String("dir", l.desc.SourceLocation))
	return tools.Entry{Descriptor: l.desc, Tool: l.tool}, nil
}

// Sync reconciles the registry with the module directories on disk.
// New directories are loaded and registered; vanished ones unregistered.
// Broken modules are logged and skipped.
func (m *Manager) Sync() {
	m.mu.Lock()
	defer m.mu.Unlock()

	names, err := m.store.Names()
	if err != nil {
		m.logger.Warn("sync: list modules", zap.Error(err))
		return
	}

	for _, name := range names {
		if m.registry.Contains(name) {
			continue
		}
		l, err := m.open(name)
		if err != nil {
			m.logger.Warn("sync: load module", zap.String("tool", name), zap.Error(err))
			continue
		}
		if m.ledger.Blocks(l.desc) {
			m.logger.Info("sync: removing deleted tool module", zap.String("tool", name))
			if err := m.store.Remove(name); err != nil {
				m.logger.Warn("sync: remove module", zap.String("tool", name), zap.Error(err))
			}
			continue
		}
		if err := m.registry.Register(l.desc, l.tool); err != nil {
			m.logger.Warn("sync: register module", zap.String("tool", name), zap.Error(err))
			continue
		}
		m.logger.Info("sync: dynamic tool registered", zap.String("tool", name))
	}

	for d := range m.registry.List() {
		if d.Kind != schema.KindDynamic {
			continue
		}
		if _, err := os.Stat(d.SourceLocation); err == nil {
			continue
		}
		if _, err := m.registry.Unregister(d.Name); err == nil {
			m.logger.Info("sync: dynamic tool unregistered", zap.String("tool", d.Name))
		}
	}
	m.metrics.SetRegisteredTools(m.registry.Len())
}

// ListTools returns every live descriptor sorted by name.
func (m *Manager) ListTools() []schema.ToolDescriptor {
	return slices.Collect(m.registry.List())
}

// DeleteTool records the deletion, unregisters the tool and removes its
// module directory. If the ledger write fails the tool stays registered.
func (m *Manager) DeleteTool(name string) (schema.ToolDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.registry.Lookup(name)
	if err != nil {
		return schema.ToolDescriptor{}, err
	}
	desc := entry.Descriptor

	if _, err := m.ledger.RecordDeletion(desc); err != nil {
		return schema.ToolDescriptor{}, fmt.Errorf("delete %q: %w", desc.Name, err)
	}
	if _, err := m.registry.Unregister(desc.Name); err != nil {
		return schema.ToolDescriptor{}, err
	}
	if desc.Kind == schema.KindDynamic {
		if err := m.store.Remove(desc.Name); err != nil {
			m.logger.Warn("module directory not removed", zap.String("tool", desc.Name), zap.Error(err))
		}
	}

	m.metrics.SetRegisteredTools(m.registry.Len())
	m.logger.Info("tool deleted", zap.String("tool", desc.Name), zap.String("kind", string(desc.Kind)))
	return desc, nil
}

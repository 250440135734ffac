package channels

import (
	"context"
	"maps"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/toolsmith/internal/bus"
	"github.com/crystaldolphin/toolsmith/internal/config/channel"
)

// Manager owns all enabled channels and routes outbound messages.
type Manager struct {
	channels map[bus.ChannelType]Channel
	bus      bus.Bus
	logger   *zap.Logger
}

// NewManager creates a Manager and initialises all enabled channels.
func NewManager(cfg *channel.ChannelsConfig, b bus.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		channels: make(map[bus.ChannelType]Channel),
		bus:      b,
		logger:   logger.Named("channels"),
	}

	if cfg.Telegram.Enabled {
		m.Register(NewTelegramChannel(&cfg.Telegram, b, logger))
	}
	if cfg.Slack.Enabled {
		m.Register(NewSlackChannel(&cfg.Slack, b, logger))
	}
	return m
}

// Register adds a channel, replacing any with the same name.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
	m.logger.Info("channel enabled", zap.String("name", string(ch.Name())))
}

// EnabledChannels returns the names of all enabled channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range maps.Keys(m.channels) {
		names = append(names, string(n))
	}
	slices.Sort(names)
	return names
}

// StartAll starts all channels concurrently and dispatches outbound messages.
// Blocks until ctx is cancelled. A channel that fails to start is logged and
// does not bring down the others.
func (m *Manager) StartAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.dispatchOutbound(ctx)
		return nil
	})

	for name, ch := range m.channels {
		g.Go(func() error {
			m.logger.Info("starting channel", zap.String("name", string(name)))
			if err := ch.Start(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("channel exited with error", zap.String("name", string(name)), zap.Error(err))
			}
			return nil
		})
	}

	<-ctx.Done()
	_ = g.Wait()
	return ctx.Err()
}

// dispatchOutbound routes each outbound message to its channel's Send.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.bus.OutboundChan():
			ch, ok := m.channels[msg.Channel()]
			if !ok {
				m.logger.Debug("unknown channel for outbound message", zap.String("channel", string(msg.Channel())))
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				m.logger.Error("send error", zap.String("channel", string(msg.Channel())), zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

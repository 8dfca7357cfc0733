package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
)

// Manager owns the hub channels, at most one live channel per organization.
// It reacts to organization-activation events: every activation (including
// the periodic org re-sync) replaces that organization's channel, which is
// the system's only reconnect path.
type Manager struct {
	config  *common.Config
	client  *httpclient.Client
	session interfaces.SessionManager
	applier MetricApplier
	logger  arbor.ILogger

	// invocation ids are monotonic for the process, shared by all channels
	invocations atomic.Int64

	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool
}

// NewManager creates a channel manager
func NewManager(config *common.Config, client *httpclient.Client, session interfaces.SessionManager, applier MetricApplier, logger arbor.ILogger) *Manager {
	return &Manager{
		config:   config,
		client:   client,
		session:  session,
		applier:  applier,
		logger:   logger,
		channels: make(map[string]*Channel),
	}
}

// Start subscribes the manager to organization activations
func (m *Manager) Start(events interfaces.EventService) error {
	return events.Subscribe(interfaces.EventOrgActivated, func(ctx context.Context, event interfaces.Event) error {
		orgPath, _ := event.Payload["org_path"].(string)
		nodePath, _ := event.Payload["node_path"].(string)
		if orgPath == "" || nodePath == "" {
			return fmt.Errorf("activation event without org path")
		}
		return m.OpenChannel(ctx, orgPath, nodePath)
	})
}

// OpenChannel opens a hub channel for an organization, closing and
// replacing any previous channel for the same organization first.
func (m *Manager) OpenChannel(ctx context.Context, orgPath, nodePath string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("channel manager is shut down")
	}
	if previous, ok := m.channels[orgPath]; ok {
		m.logger.Info().Str("org", orgPath).Msg("Replacing hub channel")
		previous.Close()
		delete(m.channels, orgPath)
	}
	m.mu.Unlock()

	channel := NewChannel(orgPath, nodePath, m.config, m.client, m.session, m.applier, &m.invocations, m.logger)
	if err := channel.Open(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		channel.Close()
		return fmt.Errorf("channel manager is shut down")
	}
	m.channels[orgPath] = channel
	return nil
}

// Channel returns the live channel for an organization, if any
func (m *Manager) Channel(orgPath string) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	channel, ok := m.channels[orgPath]
	return channel, ok
}

// Close shuts down every open channel; no new channels may be opened after
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for orgPath, channel := range m.channels {
		channel.Close()
		delete(m.channels, orgPath)
	}
	return nil
}

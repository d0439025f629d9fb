package realtime

import (
	"context"
	"fmt"

	"github.com/example/chat-backend/events"
	"github.com/example/chat-backend/modules/ratelimit"
	"github.com/example/chat-backend/modules/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// RealtimeModule serves chat rooms to websocket clients and pushes
// membership notifications to live connections.
type RealtimeModule struct {
	rooms    room.RoomPort
	limits   *ratelimit.PluginModule
	guard    ChatGuard
	registry *Registry
	groups   *Groups
	notifier *Notifier
	handler  *Handler
	gateway  *Gateway
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*RealtimeModule)(nil)
	_ mono.DependentModule       = (*RealtimeModule)(nil)
	_ mono.UsePluginModule       = (*RealtimeModule)(nil)
	_ mono.EventConsumerModule   = (*RealtimeModule)(nil)
	_ mono.HealthCheckableModule = (*RealtimeModule)(nil)
)

// NewModule creates a new RealtimeModule.
func NewModule(logger types.Logger) *RealtimeModule {
	logger = logger.WithModule("realtime")
	registry := NewRegistry()
	groups := NewGroups()
	return &RealtimeModule{
		registry: registry,
		groups:   groups,
		notifier: NewNotifier(registry, groups, logger),
		logger:   logger,
	}
}

// Name returns the module name.
func (m *RealtimeModule) Name() string {
	return "realtime"
}

// Dependencies returns the modules this module calls.
func (m *RealtimeModule) Dependencies() []string {
	return []string{"room"}
}

// SetDependencyServiceContainer receives the room module's container.
func (m *RealtimeModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "room" {
		m.rooms = room.NewRoomAdapter(container)
	}
}

// SetPlugin receives the rate limit plugin. Without it chat is not throttled.
func (m *RealtimeModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != ratelimit.Alias {
		return
	}
	limiter, ok := plugin.(*ratelimit.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for ratelimit",
			"alias", alias,
			"expected", "*ratelimit.PluginModule")
		return
	}
	m.limits = limiter
}

// RegisterEventConsumers subscribes to room membership and lifecycle events.
func (m *RealtimeModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.MembersAddedV1, m.handleMembersAdded, m); err != nil {
		return fmt.Errorf("failed to register MembersAdded consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.MemberRemovedV1, m.handleMemberRemoved, m); err != nil {
		return fmt.Errorf("failed to register MemberRemoved consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomDeletedV1, m.handleRoomDeleted, m); err != nil {
		return fmt.Errorf("failed to register RoomDeleted consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", []string{"MembersAdded", "MemberRemoved", "RoomDeleted"})
	return nil
}

// Start builds the protocol handler and the gateway.
func (m *RealtimeModule) Start(_ context.Context) error {
	if m.rooms == nil {
		return fmt.Errorf("room dependency not set")
	}

	// The plugin swaps in its Redis-backed guard during its own Start.
	throttled := false
	if m.limits != nil {
		guard := m.limits.ChatGuard()
		m.guard = guard
		throttled = guard.Enabled()
	}

	m.handler = NewHandler(m.rooms, m.groups, m.guard, m.logger)
	m.gateway = NewGateway(m.registry, m.groups, m.handler, m.logger)
	m.logger.Info("Realtime module started", "chatThrottling", throttled)
	return nil
}

// Stop closes every live connection.
func (m *RealtimeModule) Stop(_ context.Context) error {
	closed := 0
	if m.gateway != nil {
		closed = m.gateway.Close()
	}
	m.logger.Info("Realtime module stopped", "closedConnections", closed)
	return nil
}

// Health reports live connection and user counts.
func (m *RealtimeModule) Health(_ context.Context) mono.HealthStatus {
	if m.gateway == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "gateway not initialized",
		}
	}
	connections, users := m.registry.Counts()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections": connections,
			"users":       users,
			"rooms":       m.groups.Count(),
		},
	}
}

// Gateway returns the connection gateway, or nil before Start.
func (m *RealtimeModule) Gateway() *Gateway {
	return m.gateway
}

func (m *RealtimeModule) handleMembersAdded(ctx context.Context, event events.MembersAddedEvent, _ *mono.Msg) error {
	delivered := m.notifier.MembersAdded(ctx, event.Room, event.Added)
	m.logger.Debug("Delivered newRoom", "added", event.Added, "connections", delivered)
	return nil
}

func (m *RealtimeModule) handleMemberRemoved(ctx context.Context, event events.MemberRemovedEvent, _ *mono.Msg) error {
	delivered := m.notifier.MemberRemoved(ctx, event.RoomID, event.RemovedID)
	m.logger.Debug("Delivered roomDeleted", "roomID", event.RoomID, "userID", event.RemovedID, "connections", delivered)
	return nil
}

func (m *RealtimeModule) handleRoomDeleted(ctx context.Context, event events.RoomDeletedEvent, _ *mono.Msg) error {
	delivered := m.notifier.RoomDeleted(ctx, event.RoomID, event.Members)
	m.logger.Debug("Delivered roomDeleted",
		"roomID", event.RoomID,
		"reason", event.Reason,
		"connections", delivered)
	return nil
}

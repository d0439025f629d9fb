package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
	userdomain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/events"
	"github.com/example/chat-backend/modules/database"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Default cleanup settings.
const (
	DefaultCleanupInterval = time.Hour
	DefaultMaxIdle         = 20 * 24 * time.Hour
)

// Options configures the room module.
type Options struct {
	// Hasher hashes room passwords.
	Hasher          PasswordHasher
	CleanupInterval time.Duration
	MaxIdle         time.Duration
	// DisableCleanup turns the stale room job off.
	DisableCleanup bool
}

// RoomModule owns rooms, their membership and their message history.
type RoomModule struct {
	opts     Options
	db       *database.PluginModule
	store    *RoomStore
	service  *Service
	cleanup  *CleanupWorker
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*RoomModule)(nil)
	_ mono.UsePluginModule       = (*RoomModule)(nil)
	_ mono.ServiceProviderModule = (*RoomModule)(nil)
	_ mono.EventBusAwareModule   = (*RoomModule)(nil)
	_ mono.EventEmitterModule    = (*RoomModule)(nil)
	_ mono.EventConsumerModule   = (*RoomModule)(nil)
	_ mono.HealthCheckableModule = (*RoomModule)(nil)
)

// NewModule creates a new RoomModule.
func NewModule(opts Options, logger types.Logger) *RoomModule {
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = DefaultMaxIdle
	}
	return &RoomModule{
		opts:   opts,
		logger: logger.WithModule("room"),
	}
}

// Name returns the module name.
func (m *RoomModule) Name() string {
	return "room"
}

// SetPlugin receives the database plugin from the framework.
func (m *RoomModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != database.Alias {
		return
	}
	db, ok := plugin.(*database.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for database",
			"alias", alias,
			"expected", "*database.PluginModule")
		return
	}
	m.db = db
}

// SetEventBus receives the EventBus from the framework.
func (m *RoomModule) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *RoomModule) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.MembersAddedV1.ToBase(),
		events.MemberRemovedV1.ToBase(),
		events.RoomDeletedV1.ToBase(),
		events.MessageSentV1.ToBase(),
	}
}

// RegisterEventConsumers subscribes to account deletions.
func (m *RoomModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.UserDeletedV1, m.handleUserDeleted, m); err != nil {
		return fmt.Errorf("failed to register UserDeleted consumer: %w", err)
	}
	m.logger.Info("Registered event consumers", "events", []string{"UserDeleted"})
	return nil
}

// Start migrates the room tables, builds the service and starts the cleanup job.
func (m *RoomModule) Start(_ context.Context) error {
	if m.db == nil || m.db.DB() == nil {
		return fmt.Errorf("required plugin %q not registered", database.Alias)
	}
	if m.opts.Hasher == nil {
		return fmt.Errorf("room password hasher not configured")
	}

	db := m.db.DB()
	if err := db.AutoMigrate(&userdomain.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	m.store = NewRoomStore(db)
	if err := m.store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	service, err := NewService(m.store, m.opts.Hasher, m.eventBus, m.logger)
	if err != nil {
		return err
	}
	m.service = service

	if !m.opts.DisableCleanup {
		m.cleanup = NewCleanupWorker(service, m.opts.CleanupInterval, m.opts.MaxIdle, m.logger)
		m.cleanup.Start()
	}

	m.logger.Info("Room module started")
	return nil
}

// Stop waits for the cleanup job. The connection belongs to the database plugin.
func (m *RoomModule) Stop(ctx context.Context) error {
	if m.cleanup != nil {
		if err := m.cleanup.Stop(ctx); err != nil {
			m.logger.Warn("Cleanup job did not stop in time", "error", err)
		}
	}
	m.logger.Info("Room module stopped")
	return nil
}

// Health reports whether the service is ready.
func (m *RoomModule) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"cleanup_enabled": m.cleanup != nil,
			"max_idle":        m.opts.MaxIdle.String(),
		},
	}
}

// Service returns the in-process service.
func (m *RoomModule) Service() *Service {
	return m.service
}

// RegisterServices registers request-reply services in the service container.
func (m *RoomModule) RegisterServices(container mono.ServiceContainer) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{ServiceCreateRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceCreateRoom, json.Unmarshal, json.Marshal, m.handleCreateRoom)
		}},
		{ServiceGetRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceGetRoom, json.Unmarshal, json.Marshal, m.handleGetRoom)
		}},
		{ServiceGetRoomByName, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceGetRoomByName, json.Unmarshal, json.Marshal, m.handleGetRoomByName)
		}},
		{ServiceListRooms, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceListRooms, json.Unmarshal, json.Marshal, m.handleListRooms)
		}},
		{ServiceListUserRooms, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceListUserRooms, json.Unmarshal, json.Marshal, m.handleListUserRooms)
		}},
		{ServiceUpdateRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceUpdateRoom, json.Unmarshal, json.Marshal, m.handleUpdateRoom)
		}},
		{ServiceDeleteRoom, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceDeleteRoom, json.Unmarshal, json.Marshal, m.handleDeleteRoom)
		}},
		{ServiceAddMembers, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceAddMembers, json.Unmarshal, json.Marshal, m.handleAddMembers)
		}},
		{ServiceAddMember, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceAddMember, json.Unmarshal, json.Marshal, m.handleAddMember)
		}},
		{ServiceRemoveMember, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceRemoveMember, json.Unmarshal, json.Marshal, m.handleRemoveMember)
		}},
		{ServiceAppendMessage, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceAppendMessage, json.Unmarshal, json.Marshal, m.handleAppendMessage)
		}},
		{ServiceMarkRead, func() error {
			return helper.RegisterTypedRequestReplyService(container, ServiceMarkRead, json.Unmarshal, json.Marshal, m.handleMarkRead)
		}},
	}

	names := make([]string, 0, len(registrations))
	for _, r := range registrations {
		if err := r.register(); err != nil {
			return fmt.Errorf("failed to register %s service: %w", r.name, err)
		}
		names = append(names, r.name)
	}

	m.logger.Info("Registered services", "services", names)
	return nil
}

func (m *RoomModule) handleUserDeleted(ctx context.Context, event events.UserDeletedEvent, _ *mono.Msg) error {
	if m.service == nil {
		return fmt.Errorf("room service not started")
	}
	if err := m.service.RemoveDeletedUser(ctx, event.UserID, event.Rooms); err != nil {
		// Cleanup is best-effort; the account is already gone.
		m.logger.Warn("Membership cleanup incomplete", "userID", event.UserID, "error", err)
	}
	return nil
}

func (m *RoomModule) handleCreateRoom(ctx context.Context, req CreateRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	room, err := m.service.CreateRoom(ctx, req.ActorID, CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		Open:        req.Open,
		Password:    req.Password,
	})
	return m.roomResponse(room, err)
}

func (m *RoomModule) handleGetRoom(ctx context.Context, req RoomIDRequest, _ *mono.Msg) (RoomResponse, error) {
	return m.roomResponse(m.service.GetRoom(ctx, req.RoomID))
}

func (m *RoomModule) handleGetRoomByName(ctx context.Context, req RoomNameRequest, _ *mono.Msg) (RoomResponse, error) {
	return m.roomResponse(m.service.GetRoomByName(ctx, req.Name))
}

func (m *RoomModule) handleListRooms(ctx context.Context, _ ListRoomsRequest, _ *mono.Msg) (RoomsResponse, error) {
	return m.roomsResponse(m.service.ListRooms(ctx))
}

func (m *RoomModule) handleListUserRooms(ctx context.Context, req ListUserRoomsRequest, _ *mono.Msg) (RoomsResponse, error) {
	return m.roomsResponse(m.service.ListUserRooms(ctx, req.UserID))
}

func (m *RoomModule) handleUpdateRoom(ctx context.Context, req UpdateRoomRequest, _ *mono.Msg) (UpdateRoomResponse, error) {
	result, err := m.service.UpdateRoom(ctx, req.ActorID, req.RoomID, UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return UpdateRoomResponse{Error: m.payload(err)}, nil
	}
	return UpdateRoomResponse{
		RoomID:         result.RoomID,
		OldName:        result.OldName,
		NewName:        result.NewName,
		OldDescription: result.OldDescription,
		NewDescription: result.NewDescription,
	}, nil
}

func (m *RoomModule) handleDeleteRoom(ctx context.Context, req DeleteRoomRequest, _ *mono.Msg) (RoomResponse, error) {
	return m.roomResponse(m.service.DeleteRoom(ctx, req.ActorID, req.RoomID))
}

func (m *RoomModule) handleAddMembers(ctx context.Context, req AddMembersRequest, _ *mono.Msg) (MembershipResponse, error) {
	return m.membershipResponse(m.service.AddMembers(ctx, req.ActorID, req.RoomID, req.UserIDs))
}

func (m *RoomModule) handleAddMember(ctx context.Context, req MemberRequest, _ *mono.Msg) (MembershipResponse, error) {
	return m.membershipResponse(m.service.AddMember(ctx, req.ActorID, req.RoomID, req.UserID))
}

func (m *RoomModule) handleRemoveMember(ctx context.Context, req MemberRequest, _ *mono.Msg) (MembershipResponse, error) {
	return m.membershipResponse(m.service.RemoveMember(ctx, req.ActorID, req.RoomID, req.UserID))
}

func (m *RoomModule) handleAppendMessage(ctx context.Context, req AppendMessageRequest, _ *mono.Msg) (MessageResponse, error) {
	msg, err := m.service.AppendMessage(ctx, AppendMessageInput{
		RoomID:   req.RoomID,
		UserID:   req.UserID,
		UserName: req.UserName,
		Text:     req.Text,
		TempID:   req.TempID,
	})
	if err != nil {
		return MessageResponse{Error: m.payload(err)}, nil
	}
	return MessageResponse{Message: msg}, nil
}

func (m *RoomModule) handleMarkRead(ctx context.Context, req MarkReadRequest, _ *mono.Msg) (StatusResponse, error) {
	if err := m.service.MarkAsRead(ctx, req.RoomID, req.UserID); err != nil {
		return StatusResponse{Error: m.payload(err)}, nil
	}
	return StatusResponse{}, nil
}

func (m *RoomModule) roomResponse(room *domain.Room, err error) (RoomResponse, error) {
	if err != nil {
		return RoomResponse{Error: m.payload(err)}, nil
	}
	return RoomResponse{Room: room}, nil
}

func (m *RoomModule) roomsResponse(rooms []domain.Room, err error) (RoomsResponse, error) {
	if err != nil {
		return RoomsResponse{Error: m.payload(err)}, nil
	}
	return RoomsResponse{Rooms: rooms}, nil
}

func (m *RoomModule) membershipResponse(result *MembershipResult, err error) (MembershipResponse, error) {
	if err != nil {
		return MembershipResponse{Error: m.payload(err)}, nil
	}
	return MembershipResponse{
		Room:    result.Room,
		Added:   result.Added,
		Removed: result.Removed,
	}, nil
}

func (m *RoomModule) payload(err error) *apperr.Payload {
	return apperr.ToPayload(err)
}

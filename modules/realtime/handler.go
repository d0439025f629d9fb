package realtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
	"github.com/example/chat-backend/modules/room"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// ChatGuard throttles chat messages per user. *ratelimit.Guard satisfies it.
type ChatGuard interface {
	Allow(ctx context.Context, key string) bool
}

// Handler dispatches the events of one connection to the room module.
// Failures are reported to the originating connection only.
type Handler struct {
	rooms   room.RoomPort
	groups  *Groups
	guard   ChatGuard
	logger  types.Logger
	history singleflight.Group
}

// NewHandler creates a Handler. A nil guard never throttles.
func NewHandler(rooms room.RoomPort, groups *Groups, guard ChatGuard, logger types.Logger) *Handler {
	return &Handler{
		rooms:  rooms,
		groups: groups,
		guard:  guard,
		logger: logger,
	}
}

// Handle processes one raw frame received from c.
func (h *Handler) Handle(ctx context.Context, c *Client, raw []byte) {
	event, data, err := ParseFrame(raw)
	if err != nil {
		h.fail(c, event, err)
		return
	}

	switch event {
	case EventJoin:
		err = h.join(ctx, c, data)
	case EventLeave:
		err = h.leave(c, data)
	case EventChat:
		err = h.chat(ctx, c, data)
	case EventMarkAsRead:
		err = h.markAsRead(ctx, c, data)
	case EventAddUsersToRoom:
		err = h.addUsers(ctx, c, data)
	case EventAddUserToRoom:
		err = h.addUser(ctx, c, data)
	case EventRemoveUserFromRoom:
		err = h.removeUser(ctx, c, data)
	default:
		err = apperr.Validation(fmt.Sprintf(MsgUnknownEvent, event))
	}
	if err != nil {
		h.fail(c, event, err)
	}
}

// join subscribes c to the room and pushes its history back to c only.
// Membership is not required to join.
func (h *Handler) join(ctx context.Context, c *Client, data []byte) error {
	roomID, err := parseRoomRef(data)
	if err != nil {
		return err
	}
	loaded, err := h.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}

	h.groups.Join(roomID, c)
	h.logger.Debug("Joined room", "connID", c.ID(), "userID", c.UserID(), "roomID", roomID)

	history := loaded.Messages
	if history == nil {
		history = []domain.Message{}
	}
	h.deliver(c, EventRoomHistory, RoomHistoryData{Room: roomID, History: history})
	return nil
}

// loadRoom coalesces concurrent loads of the same room. The returned room is
// shared between callers and must not be modified.
func (h *Handler) loadRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	v, err, _ := h.history.Do(roomID, func() (any, error) {
		return h.rooms.GetRoom(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Room), nil
}

func (h *Handler) leave(c *Client, data []byte) error {
	roomID, err := parseRoomRef(data)
	if err != nil {
		return err
	}
	h.groups.Leave(roomID, c)
	return nil
}

// chat persists a message and broadcasts the stored copy to the room group.
// Posting does not require membership.
func (h *Handler) chat(ctx context.Context, c *Client, data []byte) error {
	payload, err := decode[ChatPayload](EventChat, data)
	if err != nil {
		return err
	}
	roomID := strings.TrimSpace(payload.Room)
	if roomID == "" {
		return apperr.Validation(MsgMissingRoom)
	}
	if h.guard != nil && !h.guard.Allow(ctx, c.UserID()) {
		return apperr.Validation(MsgThrottled)
	}

	session := c.Session()
	msg, err := h.rooms.AppendMessage(ctx, room.AppendMessageInput{
		RoomID:   roomID,
		UserID:   session.UserID,
		UserName: session.Name,
		Text:     payload.Message,
		TempID:   payload.TempID,
	})
	if err != nil {
		return err
	}

	h.Broadcast(roomID, EventChat, ChatData{NewMessage: msg, Room: roomID})
	return nil
}

// markAsRead is fire-and-forget; only failures are answered.
func (h *Handler) markAsRead(ctx context.Context, c *Client, data []byte) error {
	roomID, err := parseRoomRef(data)
	if err != nil {
		return err
	}
	return h.rooms.MarkAsRead(ctx, roomID, c.UserID())
}

func (h *Handler) addUsers(ctx context.Context, c *Client, data []byte) error {
	payload, err := decode[AddUsersPayload](EventAddUsersToRoom, data)
	if err != nil {
		return err
	}
	ids, err := room.ParseMemberIDs(payload.MembersToAdd)
	if err != nil {
		return err
	}
	result, err := h.rooms.AddMembers(ctx, c.UserID(), payload.RoomID, ids)
	if err != nil {
		return err
	}
	h.confirm(c, MsgUsersAdded, result.Room)
	return nil
}

func (h *Handler) addUser(ctx context.Context, c *Client, data []byte) error {
	payload, err := decode[AddUserPayload](EventAddUserToRoom, data)
	if err != nil {
		return err
	}
	ids, err := room.ParseMemberIDs(singleMember(payload.MemberToAdd))
	if err != nil {
		return err
	}
	result, err := h.rooms.AddMember(ctx, c.UserID(), payload.RoomID, ids[0])
	if err != nil {
		return err
	}
	h.confirm(c, MsgUserAdded, result.Room)
	return nil
}

func (h *Handler) removeUser(ctx context.Context, c *Client, data []byte) error {
	payload, err := decode[RemoveUserPayload](EventRemoveUserFromRoom, data)
	if err != nil {
		return err
	}
	ids, err := room.ParseMemberIDs(singleMember(payload.MemberToRemove))
	if err != nil {
		return err
	}
	result, err := h.rooms.RemoveMember(ctx, c.UserID(), payload.RoomID, ids[0])
	if err != nil {
		return err
	}
	h.confirm(c, MsgUserRemoved, result.Room)
	return nil
}

// Broadcast sends one event to every connection subscribed to roomID.
func (h *Handler) Broadcast(roomID, event string, data any) {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		h.logger.Error("Failed to encode broadcast", "event", event, "roomID", roomID, "error", err)
		return
	}
	for _, member := range h.groups.Members(roomID) {
		if err := member.write(frame); err != nil {
			h.logger.Debug("Broadcast delivery failed", "connID", member.ID(), "roomID", roomID, "error", err)
		}
	}
}

func (h *Handler) confirm(c *Client, message string, r *domain.Room) {
	h.deliver(c, EventConfirmation, ConfirmationData{
		Message: message,
		Data:    ConfirmedRoom{Room: r},
	})
}

func (h *Handler) deliver(c *Client, event string, data any) {
	if err := c.Send(event, data); err != nil {
		h.logger.Debug("Delivery failed", "connID", c.ID(), "event", event, "error", err)
	}
}

func (h *Handler) fail(c *Client, event string, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindStore, apperr.KindInternal:
		h.logger.Error("Socket event failed",
			"event", event,
			"connID", c.ID(),
			"userID", c.UserID(),
			"error", err)
	default:
		h.logger.Debug("Socket event rejected", "event", event, "connID", c.ID(), "error", err)
	}
	h.deliver(c, EventError, apperr.PublicMessage(err))
}

package room

import (
	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
)

// Service names registered in the service container.
const (
	ServiceCreateRoom    = "create-room"
	ServiceGetRoom       = "get-room"
	ServiceGetRoomByName = "get-room-by-name"
	ServiceListRooms     = "list-rooms"
	ServiceListUserRooms = "list-user-rooms"
	ServiceUpdateRoom    = "update-room"
	ServiceDeleteRoom    = "delete-room"
	ServiceAddMembers    = "add-members"
	ServiceAddMember     = "add-member"
	ServiceRemoveMember  = "remove-member"
	ServiceAppendMessage = "append-message"
	ServiceMarkRead      = "mark-read"
)

// CreateRoomRequest is the request for creating a room.
type CreateRoomRequest struct {
	ActorID     string `json:"actor_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Open        bool   `json:"open"`
	Password    string `json:"password,omitempty"`
}

// RoomIDRequest addresses a room by id.
type RoomIDRequest struct {
	RoomID string `json:"room_id"`
}

// RoomNameRequest addresses a room by name.
type RoomNameRequest struct {
	Name string `json:"name"`
}

// RoomResponse carries a single room.
type RoomResponse struct {
	Room  *domain.Room    `json:"room,omitempty"`
	Error *apperr.Payload `json:"error,omitempty"`
}

// ListRoomsRequest is empty; all rooms are returned.
type ListRoomsRequest struct{}

// ListUserRoomsRequest asks for the rooms of one user.
type ListUserRoomsRequest struct {
	UserID string `json:"user_id"`
}

// RoomsResponse carries a list of rooms.
type RoomsResponse struct {
	Rooms []domain.Room   `json:"rooms"`
	Error *apperr.Payload `json:"error,omitempty"`
}

// UpdateRoomRequest is the request for editing room details.
type UpdateRoomRequest struct {
	ActorID     string `json:"actor_id"`
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRoomResponse reports the details before and after the update.
type UpdateRoomResponse struct {
	RoomID         string          `json:"room_id,omitempty"`
	OldName        string          `json:"old_name,omitempty"`
	NewName        string          `json:"new_name,omitempty"`
	OldDescription string          `json:"old_description,omitempty"`
	NewDescription string          `json:"new_description,omitempty"`
	Error          *apperr.Payload `json:"error,omitempty"`
}

// DeleteRoomRequest is the request for deleting a room.
type DeleteRoomRequest struct {
	ActorID string `json:"actor_id"`
	RoomID  string `json:"room_id"`
}

// AddMembersRequest adds several users.
type AddMembersRequest struct {
	ActorID string   `json:"actor_id"`
	RoomID  string   `json:"room_id"`
	UserIDs []string `json:"user_ids"`
}

// MemberRequest adds or removes one user.
type MemberRequest struct {
	ActorID string `json:"actor_id"`
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
}

// MembershipResponse carries the room after a membership change.
type MembershipResponse struct {
	Room    *domain.Room    `json:"room,omitempty"`
	Added   []string        `json:"added,omitempty"`
	Removed string          `json:"removed,omitempty"`
	Error   *apperr.Payload `json:"error,omitempty"`
}

// AppendMessageRequest carries a chat message.
type AppendMessageRequest struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Text     string `json:"text"`
	TempID   string `json:"temp_id"`
}

// MessageResponse carries the stored message.
type MessageResponse struct {
	Message *domain.Message `json:"message,omitempty"`
	Error   *apperr.Payload `json:"error,omitempty"`
}

// MarkReadRequest marks a room read for one user.
type MarkReadRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// StatusResponse is returned by operations without a result body.
type StatusResponse struct {
	Error *apperr.Payload `json:"error,omitempty"`
}

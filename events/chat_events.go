package events

import (
	"time"

	domain "github.com/example/chat-backend/domain/room"
	"github.com/go-monolith/mono/pkg/helper"
)

// RoomCreatedEvent is emitted when a room is created.
type RoomCreatedEvent struct {
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	CreatedBy string    `json:"created_by"`
	Timestamp time.Time `json:"timestamp"`
}

// MembersAddedEvent is emitted after users were added to a room.
type MembersAddedEvent struct {
	Room      *domain.Room `json:"room"`
	Added     []string     `json:"added"`
	ActorID   string       `json:"actor_id"`
	Timestamp time.Time    `json:"timestamp"`
}

// MemberRemovedEvent is emitted after a user was removed from a room.
type MemberRemovedEvent struct {
	RoomID    string    `json:"room_id"`
	RemovedID string    `json:"removed_id"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomDeletedEvent is emitted after a room was deleted. Members lists who
// belonged to it at deletion time.
type RoomDeletedEvent struct {
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	Members   []string  `json:"members"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentEvent is emitted after a chat message was persisted.
type MessageSentEvent struct {
	RoomID    string    `json:"room_id"`
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserDeletedEvent is emitted when an account is deleted. Rooms is the
// account's room list at deletion time since the user row is already gone.
type UserDeletedEvent struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Rooms     []string  `json:"rooms"`
	Timestamp time.Time `json:"timestamp"`
}

// Reasons carried by RoomDeletedEvent.
const (
	RoomDeletedByCreator = "deleted"
	RoomDeletedStale     = "stale"
	RoomDeletedEmpty     = "empty"
)

// Event definitions for the room domain.
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"room",
		"RoomCreated",
		"v1",
	)

	MembersAddedV1 = helper.EventDefinition[MembersAddedEvent](
		"room",
		"MembersAdded",
		"v1",
	)

	MemberRemovedV1 = helper.EventDefinition[MemberRemovedEvent](
		"room",
		"MemberRemoved",
		"v1",
	)

	RoomDeletedV1 = helper.EventDefinition[RoomDeletedEvent](
		"room",
		"RoomDeleted",
		"v1",
	)

	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"room",
		"MessageSent",
		"v1",
	)
)

// Event definitions for the auth domain.
var (
	UserDeletedV1 = helper.EventDefinition[UserDeletedEvent](
		"auth",
		"UserDeleted",
		"v1",
	)
)

package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
	"github.com/tidwall/gjson"
)

// Client to server events.
const (
	EventJoin               = "join"
	EventLeave              = "leave"
	EventChat               = "chat"
	EventMarkAsRead         = "markAsRead"
	EventAddUsersToRoom     = "addUsersToRoom"
	EventAddUserToRoom      = "addUserToRoom"
	EventRemoveUserFromRoom = "removeUserFromRoom"
)

// Server to client events. EventChat is shared by both directions.
const (
	EventRoomHistory  = "roomHistory"
	EventNewRoom      = "newRoom"
	EventRoomDeleted  = "roomDeleted"
	EventConfirmation = "confirmation"
	EventError        = "error"
)

// User-facing protocol messages.
const (
	MsgInvalidFrame   = "Invalid message format."
	MsgInvalidPayload = "Invalid %s payload."
	MsgMissingRoom    = "Please provide a room."
	MsgUnknownEvent   = "Unknown event: %s"
	MsgThrottled      = "You're sending messages too quickly."
	MsgUsersAdded     = "Success, users added!"
	MsgUserAdded      = "Success, user added!"
	MsgUserRemoved    = "Success, user removed!"
)

// Frame is the envelope of every socket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeFrame marshals data into a frame for event.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// ParseFrame peeks the event name of a raw frame and returns it with the
// undecoded data. Data is nil when the frame carries none.
func ParseFrame(raw []byte) (string, []byte, error) {
	if !gjson.ValidBytes(raw) {
		return "", nil, apperr.Validation(MsgInvalidFrame)
	}
	event := gjson.GetBytes(raw, "event")
	if event.Type != gjson.String || event.Str == "" {
		return "", nil, apperr.Validation(MsgInvalidFrame)
	}
	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return event.Str, nil, nil
	}
	return event.Str, []byte(data.Raw), nil
}

// RoomPayload names a room. join and leave also accept a bare string.
type RoomPayload struct {
	Room string `json:"room"`
}

// ChatPayload is a message sent to a room.
type ChatPayload struct {
	Message string `json:"message"`
	Room    string `json:"room"`
	TempID  string `json:"tempID"`
}

// AddUsersPayload adds several users to a room.
type AddUsersPayload struct {
	RoomID       string            `json:"roomID"`
	MembersToAdd []json.RawMessage `json:"membersToAdd"`
}

// AddUserPayload adds one user to a room.
type AddUserPayload struct {
	RoomID      string          `json:"roomID"`
	MemberToAdd json.RawMessage `json:"memberToAdd"`
}

// RemoveUserPayload removes one user from a room.
type RemoveUserPayload struct {
	RoomID         string          `json:"roomID"`
	MemberToRemove json.RawMessage `json:"memberToRemove"`
}

// RoomHistoryData answers a join with the room's messages oldest first.
type RoomHistoryData struct {
	Room    string           `json:"room"`
	History []domain.Message `json:"history"`
}

// ChatData carries a persisted message to a room group.
type ChatData struct {
	NewMessage *domain.Message `json:"newMessage"`
	Room       string          `json:"room"`
}

// NewRoomData tells a user they were added to a room.
type NewRoomData struct {
	Room *domain.Room `json:"room"`
}

// RoomDeletedData tells a user a room is gone for them.
type RoomDeletedData struct {
	RoomID string `json:"roomID"`
}

// ConfirmationData acknowledges a membership change to its caller.
type ConfirmationData struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ConfirmedRoom is the data of a membership confirmation.
type ConfirmedRoom struct {
	Room *domain.Room `json:"room"`
}

// parseRoomRef accepts "roomId" or {"room": "roomId"}.
func parseRoomRef(data []byte) (string, error) {
	ref := gjson.ParseBytes(data)
	var roomID string
	switch {
	case ref.Type == gjson.String:
		roomID = ref.Str
	case ref.IsObject():
		roomID = ref.Get("room").String()
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", apperr.Validation(MsgMissingRoom)
	}
	return roomID, nil
}

func decode[T any](event string, data []byte) (T, error) {
	var payload T
	if len(data) == 0 {
		return payload, apperr.Validation(fmt.Sprintf(MsgInvalidPayload, event))
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, apperr.Wrap(apperr.KindValidation, fmt.Sprintf(MsgInvalidPayload, event), err)
	}
	return payload, nil
}

// singleMember wraps one raw member id so it goes through the same
// validation as a list.
func singleMember(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []json.RawMessage{raw}
}

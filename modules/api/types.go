package api

import (
	"encoding/json"

	domain "github.com/example/chat-backend/domain/room"
)

// SignupRequest represents a signup request.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CredentialsRequest carries an email and password, for login and account deletion.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse is returned by signup, login and token refresh.
type SessionResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Token   string `json:"token"`
}

// AccountResponse is returned after an account was deleted.
type AccountResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

// MessageResponse carries a bare status message.
type MessageResponse struct {
	Message string `json:"message"`
}

// CreateRoomRequest represents a room creation request.
type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Open        bool   `json:"open"`
	Password    string `json:"password"`
}

// CreateRoomResponse summarizes a new room.
type CreateRoomResponse struct {
	Message string   `json:"message"`
	RoomID  string   `json:"roomId"`
	Name    string   `json:"name"`
	Creator string   `json:"creator"`
	Admin   []string `json:"admin"`
	Members []string `json:"members"`
}

// UpdateRoomRequest edits a room's name and description.
type UpdateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRoomResponse reports the old and new values.
type UpdateRoomResponse struct {
	Message        string `json:"message"`
	UserID         string `json:"userId"`
	OldName        string `json:"oldName"`
	NewName        string `json:"newName"`
	OldDescription string `json:"oldDescription"`
	NewDescription string `json:"newDescription"`
}

// DeleteRoomResponse confirms a room deletion.
type DeleteRoomResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
	Name    string `json:"name"`
}

// AddUsersRequest lists users to add. Entries are validated individually.
type AddUsersRequest struct {
	MembersToAdd []json.RawMessage `json:"membersToAdd"`
}

// AddUserRequest names one user to add.
type AddUserRequest struct {
	MemberToAdd json.RawMessage `json:"memberToAdd"`
}

// RemoveUserRequest names one user to remove.
type RemoveUserRequest struct {
	MemberToRemove json.RawMessage `json:"memberToRemove"`
}

// RoomResponse wraps one room.
type RoomResponse struct {
	Message string       `json:"message,omitempty"`
	Room    *domain.Room `json:"room"`
}

// RoomsResponse wraps a list of rooms.
type RoomsResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

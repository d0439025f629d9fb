package api

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/example/chat-backend/domain/apperr"
	"github.com/example/chat-backend/modules/auth"
	"github.com/example/chat-backend/modules/realtime"
	"github.com/example/chat-backend/modules/room"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
)

const msgInvalidBody = "Invalid inputs passed, please check your data."

// Realtime is what the HTTP layer needs from the realtime module.
type Realtime interface {
	Gateway() *realtime.Gateway
	Health(ctx context.Context) mono.HealthStatus
}

// Handlers contains HTTP handlers for the API.
type Handlers struct {
	auth        auth.AuthPort
	rooms       room.RoomPort
	realtime    Realtime
	frontendURL string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(authPort auth.AuthPort, rooms room.RoomPort, rt Realtime, frontendURL string) *Handlers {
	return &Handlers{
		auth:        authPort,
		rooms:       rooms,
		realtime:    rt,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Health reports liveness with the realtime counters.
func (h *Handlers) Health(c *fiber.Ctx) error {
	details := map[string]any{"module": "api"}
	if h.realtime != nil {
		status := h.realtime.Health(c.UserContext())
		details["realtime"] = status.Message
		for k, v := range status.Details {
			details[k] = v
		}
	}
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"details": details,
	})
}

// --- users ---

// ListUsers returns every account without password hashes.
func (h *Handlers) ListUsers(c *fiber.Ctx) error {
	users, err := h.auth.ListUsers(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

// Signup creates an inactive account and mails its activation link.
func (h *Handlers) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	result, err := h.auth.Signup(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		Message: "signup successful",
		UserID:  result.UserID,
		Email:   result.Email,
		Token:   result.Token,
	})
}

// Login exchanges credentials for a session token.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		Message: "logging in successful",
		UserID:  result.UserID,
		Email:   result.Email,
		Token:   result.Token,
	})
}

// Activate verifies an activation link and sends the browser to the login page.
func (h *Handlers) Activate(c *fiber.Ctx) error {
	if err := h.auth.Activate(c.UserContext(), c.Params("token")); err != nil {
		return writeError(c, err)
	}
	return c.Redirect(h.frontendURL+"/login", fiber.StatusFound)
}

// DeleteAccount deletes the account named in the path after checking credentials.
func (h *Handlers) DeleteAccount(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	deleted, err := h.auth.DeleteAccount(c.UserContext(), c.Params("uid"), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(AccountResponse{
		Message: "delete successful",
		UserID:  deleted.ID,
		Email:   deleted.Email,
	})
}

// ResendVerification mails a fresh activation link to the caller.
func (h *Handlers) ResendVerification(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := h.auth.ResendVerification(c.UserContext(), identity.UserID); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(MessageResponse{Message: "verification email sent"})
}

// RefreshToken issues a new session token for the caller.
func (h *Handlers) RefreshToken(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	result, err := h.auth.Refresh(c.UserContext(), identity.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(SessionResponse{
		Message: "refresh successful",
		UserID:  result.UserID,
		Email:   result.Email,
		Token:   result.Token,
	})
}

// --- rooms ---

// ListMyRooms returns the caller's rooms.
func (h *Handlers) ListMyRooms(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	rooms, err := h.rooms.ListUserRooms(c.UserContext(), identity.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomsResponse{Rooms: rooms})
}

// ListAllRooms returns every room without messages.
func (h *Handlers) ListAllRooms(c *fiber.Ctx) error {
	rooms, err := h.rooms.ListRooms(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomsResponse{Rooms: rooms})
}

// GetRoomByName looks a room up by its unique name.
func (h *Handlers) GetRoomByName(c *fiber.Ctx) error {
	r, err := h.rooms.GetRoomByName(c.UserContext(), c.Params("name"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomResponse{Room: r})
}

// GetRoom returns a room with its messages oldest first.
func (h *Handlers) GetRoom(c *fiber.Ctx) error {
	r, err := h.rooms.GetRoom(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomResponse{Room: r})
}

// CreateRoom creates a room owned by the caller.
func (h *Handlers) CreateRoom(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	r, err := h.rooms.CreateRoom(c.UserContext(), identity.UserID, room.CreateRoomInput{
		Name:        req.Name,
		Description: req.Description,
		Open:        req.Open,
		Password:    req.Password,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(CreateRoomResponse{
		Message: "new room created!",
		RoomID:  r.ID,
		Name:    r.Name,
		Creator: r.CreatorID,
		Admin:   r.Admin,
		Members: r.Members,
	})
}

// UpdateRoom renames or redescribes a room. Only its creator may.
func (h *Handlers) UpdateRoom(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	var req UpdateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	result, err := h.rooms.UpdateRoom(c.UserContext(), identity.UserID, c.Params("id"), room.UpdateRoomInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(UpdateRoomResponse{
		Message:        "update successful",
		UserID:         identity.UserID,
		OldName:        result.OldName,
		NewName:        result.NewName,
		OldDescription: result.OldDescription,
		NewDescription: result.NewDescription,
	})
}

// DeleteRoom deletes a room. Only its creator may.
func (h *Handlers) DeleteRoom(c *fiber.Ctx) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	deleted, err := h.rooms.DeleteRoom(c.UserContext(), identity.UserID, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(DeleteRoomResponse{
		Message: "delete successful",
		UserID:  identity.UserID,
		Name:    deleted.Name,
	})
}

// AddUsers adds several users to a room.
func (h *Handlers) AddUsers(c *fiber.Ctx) error {
	var req AddUsersRequest
	return h.changeMembers(c, &req, realtime.MsgUsersAdded, func(ctx context.Context, actorID, roomID string) (*room.MembershipResult, error) {
		ids, err := room.ParseMemberIDs(req.MembersToAdd)
		if err != nil {
			return nil, err
		}
		return h.rooms.AddMembers(ctx, actorID, roomID, ids)
	})
}

// AddUser adds one user to a room.
func (h *Handlers) AddUser(c *fiber.Ctx) error {
	var req AddUserRequest
	return h.changeMembers(c, &req, realtime.MsgUserAdded, func(ctx context.Context, actorID, roomID string) (*room.MembershipResult, error) {
		target, err := singleMember(req.MemberToAdd)
		if err != nil {
			return nil, err
		}
		return h.rooms.AddMember(ctx, actorID, roomID, target)
	})
}

// RemoveUser removes one user from a room. Only admins may.
func (h *Handlers) RemoveUser(c *fiber.Ctx) error {
	var req RemoveUserRequest
	return h.changeMembers(c, &req, realtime.MsgUserRemoved, func(ctx context.Context, actorID, roomID string) (*room.MembershipResult, error) {
		target, err := singleMember(req.MemberToRemove)
		if err != nil {
			return nil, err
		}
		return h.rooms.RemoveMember(ctx, actorID, roomID, target)
	})
}

// changeMembers parses the body into req and runs change for the caller.
func (h *Handlers) changeMembers(c *fiber.Ctx, req any, message string, change func(ctx context.Context, actorID, roomID string) (*room.MembershipResult, error)) error {
	identity, err := identityFrom(c)
	if err != nil {
		return writeError(c, err)
	}
	if err := c.BodyParser(req); err != nil {
		return writeError(c, apperr.Validation(msgInvalidBody))
	}

	result, err := change(c.UserContext(), identity.UserID, c.Params("roomID"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomResponse{Message: message, Room: result.Room})
}

func singleMember(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", apperr.Validation(room.MsgInvalidUsers)
	}
	ids, err := room.ParseMemberIDs([]json.RawMessage{raw})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

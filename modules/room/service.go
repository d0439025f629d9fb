package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
	"github.com/example/chat-backend/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
	gonanoid "github.com/jaevor/go-nanoid"
)

// Validation limits.
const (
	MaxRoomNameLength    = 50
	MaxDescriptionLength = 250
	MaxMessageBytes      = 4096
	messageIDLength      = 21
)

// User-facing messages.
const (
	MsgNoUsers          = "No users added to chat because you didn't provide any."
	MsgInvalidUsers     = "Those don't look like valid users."
	MsgRoomMissing      = "That room doesn't exist. Maybe try creating it first?"
	MsgNotAdmin         = "Tsk Tsk. you need to be admin to edit that room"
	MsgUnknownUser      = "That user doesn't exist. What are you trying to do?"
	MsgAllPresent       = "All of those users are already in this room."
	MsgAlreadyPresent   = "Silly Willy, that user is already in this room"
	MsgLastAdmin        = "You can't remove yourself if you're the only admin. Do you want to delete the room instead?"
	MsgNotInRoom        = "That user isn't in this room."
	MsgRoomNotFound     = "Can't find your chat room."
	MsgSaveFailed       = "Couldn't save your message, please try again."
	MsgNameTaken        = "That room name is already taken."
	MsgInvalidRoom      = "Please provide valid room details."
	MsgNotCreator       = "I'm afraid I can't do that Dave. You're not an admin of this room."
	MsgEmptyMessage     = "You can't send an empty message."
	MsgMessageTooLong   = "That message is too long."
	MsgAddUsersFailed   = "Couldn't add users to room."
	MsgAddUserFailed    = "Couldn't add user to room."
	MsgRemoveUserFailed = "Couldn't remove user from room."
	MsgRoomsFailed      = "Something went wrong, couldn't load your chat rooms."
)

// PasswordHasher hashes optional room passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// CreateRoomInput holds the fields of a new room.
type CreateRoomInput struct {
	Name        string
	Description string
	Open        bool
	Password    string
}

// UpdateRoomInput holds editable room details.
type UpdateRoomInput struct {
	Name        string
	Description string
}

// UpdateResult reports a room's details before and after an update.
type UpdateResult struct {
	RoomID         string
	OldName        string
	NewName        string
	OldDescription string
	NewDescription string
}

// MembershipResult is the room after a membership change and the delta.
type MembershipResult struct {
	Room    *domain.Room
	Added   []string
	Removed string
}

// AppendMessageInput is a chat message on its way to the store.
type AppendMessageInput struct {
	RoomID   string
	UserID   string
	UserName string
	Text     string
	TempID   string
}

// Service implements room operations shared by the HTTP and socket layers.
type Service struct {
	store     *RoomStore
	hasher    PasswordHasher
	eventBus  mono.EventBus
	logger    types.Logger
	messageID func() string
}

// NewService creates a new room Service. eventBus may be nil, in which case
// no events are published.
func NewService(store *RoomStore, hasher PasswordHasher, eventBus mono.EventBus, logger types.Logger) (*Service, error) {
	messageID, err := gonanoid.Standard(messageIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create message id generator: %w", err)
	}
	return &Service{
		store:     store,
		hasher:    hasher,
		eventBus:  eventBus,
		logger:    logger,
		messageID: messageID,
	}, nil
}

// ParseMemberIDs validates a decoded member list. A missing or empty list and
// entries that are not non-blank strings are validation errors.
func ParseMemberIDs(raw []json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation(MsgNoUsers)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err != nil || strings.TrimSpace(id) == "" {
			return nil, apperr.Validation(MsgInvalidUsers)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateRoom creates a room owned by actorID.
func (s *Service) CreateRoom(ctx context.Context, actorID string, in CreateRoomInput) (*domain.Room, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLength ||
		utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return nil, apperr.Validation(MsgInvalidRoom)
	}

	var passwordHash string
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, s.internal("failed to hash room password", err)
		}
		passwordHash = hash
	}

	room := &domain.Room{
		ID:           uuid.New().String(),
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		Open:         in.Open,
		PasswordHash: passwordHash,
		CreatorID:    actorID,
	}

	if err := s.store.Create(ctx, room); err != nil {
		switch {
		case errors.Is(err, ErrRoomExists):
			return nil, apperr.Wrap(apperr.KindConflict, MsgNameTaken, err)
		case errors.Is(err, ErrUserNotFound):
			return nil, apperr.Wrap(apperr.KindNotFound, MsgUnknownUser, err)
		}
		return nil, s.storeFailure("", "failed to create room", err)
	}

	event := events.RoomCreatedEvent{
		RoomID:    room.ID,
		RoomName:  room.Name,
		CreatedBy: actorID,
		Timestamp: time.Now(),
	}
	s.publish("RoomCreated", func(bus mono.EventBus) error {
		return events.RoomCreatedV1.Publish(bus, event, nil)
	})
	s.logger.Info("Room created", "roomID", room.ID, "creator", actorID)
	return room.Summary(), nil
}

// GetRoom returns a room with its messages oldest first.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.store.FindByID(ctx, roomID, true)
	if err != nil {
		return nil, s.findFailure(err)
	}
	if room.Messages == nil {
		room.Messages = []domain.Message{}
	}
	return room, nil
}

// GetRoomByName returns a room without messages.
func (s *Service) GetRoomByName(ctx context.Context, name string) (*domain.Room, error) {
	room, err := s.store.FindByName(ctx, name)
	if err != nil {
		return nil, s.findFailure(err)
	}
	return room, nil
}

// ListRooms returns every room without messages.
func (s *Service) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, s.storeFailure(MsgRoomsFailed, "failed to list rooms", err)
	}
	return rooms, nil
}

// ListUserRooms returns the rooms userID belongs to.
func (s *Service) ListUserRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	rooms, err := s.store.FindForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, MsgUnknownUser, err)
		}
		return nil, s.storeFailure(MsgRoomsFailed, "failed to list user rooms", err)
	}
	return rooms, nil
}

// UpdateRoom renames or re-describes a room. Only the creator may do so.
func (s *Service) UpdateRoom(ctx context.Context, actorID, roomID string, in UpdateRoomInput) (*UpdateResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLength ||
		utf8.RuneCountInString(in.Description) > MaxDescriptionLength {
		return nil, apperr.Validation(MsgInvalidRoom)
	}

	before, after, err := s.store.Update(ctx, roomID, func(r *domain.Room) error {
		if !CanEditRoom(r, actorID) {
			return apperr.Forbidden(MsgNotCreator)
		}
		r.Name = name
		r.Description = strings.TrimSpace(in.Description)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRoomExists) {
			return nil, apperr.Wrap(apperr.KindConflict, MsgNameTaken, err)
		}
		return nil, s.mutationFailure(err, MsgRoomMissing, "failed to update room")
	}

	s.logger.Info("Room updated", "roomID", roomID, "actor", actorID)
	return &UpdateResult{
		RoomID:         after.ID,
		OldName:        before.Name,
		NewName:        after.Name,
		OldDescription: before.Description,
		NewDescription: after.Description,
	}, nil
}

// DeleteRoom deletes a room. Only the creator may do so.
func (s *Service) DeleteRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	room, err := s.store.Delete(ctx, roomID, func(r *domain.Room) error {
		if !CanEditRoom(r, actorID) {
			return apperr.Forbidden(MsgNotCreator)
		}
		return nil
	})
	if err != nil {
		return nil, s.mutationFailure(err, MsgRoomMissing, "failed to delete room")
	}

	s.publishRoomDeleted(room, events.RoomDeletedByCreator)
	s.logger.Info("Room deleted", "roomID", roomID, "actor", actorID)
	return room, nil
}

// AddMembers adds several users to a room.
func (s *Service) AddMembers(ctx context.Context, actorID, roomID string, ids []string) (*MembershipResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation(MsgNoUsers)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, apperr.Validation(MsgInvalidUsers)
		}
	}
	return s.addMembers(ctx, actorID, roomID, ids, MsgAllPresent, MsgAddUsersFailed)
}

// AddMember adds one user to a room.
func (s *Service) AddMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error) {
	if strings.TrimSpace(target) == "" {
		return nil, apperr.Validation(MsgInvalidUsers)
	}
	return s.addMembers(ctx, actorID, roomID, []string{target}, MsgAlreadyPresent, MsgAddUserFailed)
}

func (s *Service) addMembers(ctx context.Context, actorID, roomID string, ids []string, noOpMsg, failMsg string) (*MembershipResult, error) {
	room, change, err := s.store.MutateMembership(ctx, roomID, func(r *domain.Room) (MembershipChange, error) {
		if !CanAddMembers(r, actorID) {
			return MembershipChange{}, apperr.Forbidden(MsgNotAdmin)
		}
		added, err := ApplyAddMembers(r, ids)
		if err != nil {
			return MembershipChange{}, err
		}
		return MembershipChange{Added: added}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoOp):
			return nil, apperr.Wrap(apperr.KindConflict, noOpMsg, err)
		case errors.Is(err, ErrUserNotFound):
			return nil, apperr.Wrap(apperr.KindNotFound, MsgUnknownUser, err)
		}
		return nil, s.mutationFailure(err, MsgRoomMissing, failMsg)
	}

	summary := room.Summary()
	event := events.MembersAddedEvent{
		Room:      summary,
		Added:     change.Added,
		ActorID:   actorID,
		Timestamp: time.Now(),
	}
	s.publish("MembersAdded", func(bus mono.EventBus) error {
		return events.MembersAddedV1.Publish(bus, event, nil)
	})
	s.logger.Info("Members added", "roomID", roomID, "actor", actorID, "added", change.Added)
	return &MembershipResult{Room: summary, Added: change.Added}, nil
}

// RemoveMember removes target from a room. Only admins may remove members.
func (s *Service) RemoveMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error) {
	if strings.TrimSpace(target) == "" {
		return nil, apperr.Validation(MsgInvalidUsers)
	}

	room, _, err := s.store.MutateMembership(ctx, roomID, func(r *domain.Room) (MembershipChange, error) {
		if !CanRemoveMembers(r, actorID) {
			return MembershipChange{}, apperr.Forbidden(MsgNotAdmin)
		}
		if err := ApplyRemoveMember(r, target); err != nil {
			return MembershipChange{}, err
		}
		return MembershipChange{Removed: []string{target}}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotMember):
			return nil, apperr.Wrap(apperr.KindNotFound, MsgNotInRoom, err)
		case errors.Is(err, ErrLastAdmin):
			return nil, apperr.Wrap(apperr.KindConflict, MsgLastAdmin, err)
		}
		return nil, s.mutationFailure(err, MsgRoomMissing, MsgRemoveUserFailed)
	}

	event := events.MemberRemovedEvent{
		RoomID:    roomID,
		RemovedID: target,
		ActorID:   actorID,
		Timestamp: time.Now(),
	}
	s.publish("MemberRemoved", func(bus mono.EventBus) error {
		return events.MemberRemovedV1.Publish(bus, event, nil)
	})
	s.logger.Info("Member removed", "roomID", roomID, "actor", actorID, "removed", target)
	return &MembershipResult{Room: room.Summary(), Removed: target}, nil
}

// AppendMessage persists a chat message and returns the stored copy. Sending
// does not require membership.
func (s *Service) AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, apperr.Validation(MsgEmptyMessage)
	}
	if len(in.Text) > MaxMessageBytes {
		return nil, apperr.Validation(MsgMessageTooLong)
	}
	tempID := in.TempID
	if tempID == "" {
		tempID = uuid.New().String()
	}

	stored, err := s.store.AppendMessage(ctx, in.RoomID, &domain.Message{
		ID:       s.messageID(),
		UserID:   in.UserID,
		UserName: in.UserName,
		Text:     in.Text,
		TempID:   tempID,
	})
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, apperr.Wrap(apperr.KindNotFound, MsgRoomNotFound, err)
		}
		return nil, s.storeFailure(MsgSaveFailed, "failed to append message", err)
	}

	event := events.MessageSentEvent{
		RoomID:    in.RoomID,
		MessageID: stored.ID,
		UserID:    in.UserID,
		Timestamp: stored.TimeStamp,
	}
	s.publish("MessageSent", func(bus mono.EventBus) error {
		return events.MessageSentV1.Publish(bus, event, nil)
	})
	return stored, nil
}

// MarkAsRead marks the room read for userID.
func (s *Service) MarkAsRead(ctx context.Context, roomID, userID string) error {
	if err := s.store.MarkRead(ctx, roomID, userID); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return apperr.Wrap(apperr.KindNotFound, MsgRoomNotFound, err)
		}
		return s.storeFailure("", "failed to mark room read", err)
	}
	return nil
}

// CleanupStaleRooms deletes rooms idle for longer than maxIdle and returns
// how many were removed.
func (s *Service) CleanupStaleRooms(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := s.store.now().Add(-maxIdle)
	stale, err := s.store.StaleRooms(ctx, cutoff)
	if err != nil {
		return 0, s.storeFailure("", "failed to find stale rooms", err)
	}

	removed := 0
	var errs []error
	for _, candidate := range stale {
		room, err := s.store.Delete(ctx, candidate.ID, func(r *domain.Room) error {
			if !r.LastUpdated.Before(cutoff) {
				return errRoomActive
			}
			return nil
		})
		if errors.Is(err, errRoomActive) || errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", candidate.ID, err))
			continue
		}
		removed++
		s.publishRoomDeleted(room, events.RoomDeletedStale)
	}

	if len(errs) > 0 {
		return removed, s.storeFailure("", "failed to delete stale rooms", errors.Join(errs...))
	}
	return removed, nil
}

var errRoomActive = errors.New("room became active")

// RemoveDeletedUser cascades an account deletion into every room the account
// belonged to.
func (s *Service) RemoveDeletedUser(ctx context.Context, userID string, roomIDs []string) error {
	removals, err := s.store.RemoveUserEverywhere(ctx, userID, roomIDs)
	for _, r := range removals {
		if r.Deleted {
			s.publishRoomDeleted(r.Room, events.RoomDeletedEmpty)
			continue
		}
		if r.Promoted != "" {
			s.logger.Info("Promoted member to admin", "roomID", r.Room.ID, "userID", r.Promoted)
		}
		event := events.MemberRemovedEvent{
			RoomID:    r.Room.ID,
			RemovedID: userID,
			ActorID:   userID,
			Timestamp: time.Now(),
		}
		s.publish("MemberRemoved", func(bus mono.EventBus) error {
			return events.MemberRemovedV1.Publish(bus, event, nil)
		})
	}
	if err != nil {
		return s.storeFailure("", "failed to remove deleted user from rooms", err)
	}
	return nil
}

func (s *Service) publishRoomDeleted(room *domain.Room, reason string) {
	event := events.RoomDeletedEvent{
		RoomID:    room.ID,
		RoomName:  room.Name,
		Members:   room.Members,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	s.publish("RoomDeleted", func(bus mono.EventBus) error {
		return events.RoomDeletedV1.Publish(bus, event, nil)
	})
}

// publish sends an event when a bus is attached. Publishing is best-effort.
func (s *Service) publish(name string, fn func(bus mono.EventBus) error) {
	if s.eventBus == nil {
		return
	}
	if err := fn(s.eventBus); err != nil {
		s.logger.Warn("Failed to publish event", "event", name, "error", err)
	}
}

func (s *Service) findFailure(err error) error {
	if errors.Is(err, ErrRoomNotFound) {
		return apperr.Wrap(apperr.KindNotFound, MsgRoomNotFound, err)
	}
	return s.storeFailure("", "failed to find room", err)
}

// mutationFailure keeps classified errors raised inside a mutation and maps
// the rest.
func (s *Service) mutationFailure(err error, notFoundMsg, failMsg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrRoomNotFound) {
		return apperr.Wrap(apperr.KindNotFound, notFoundMsg, err)
	}
	return s.storeFailure(failMsg, "room mutation failed", err)
}

func (s *Service) storeFailure(message, logMsg string, err error) error {
	s.logger.Error("Room store failure", "operation", logMsg, "error", err)
	return apperr.Store(message, fmt.Errorf("%s: %w", logMsg, err))
}

func (s *Service) internal(logMsg string, err error) error {
	s.logger.Error("Room service failure", "operation", logMsg, "error", err)
	return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("%s: %w", logMsg, err))
}

package room

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chat-backend/domain/apperr"
	domain "github.com/example/chat-backend/domain/room"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// RoomPort is the room functionality other modules depend on.
type RoomPort interface {
	CreateRoom(ctx context.Context, actorID string, in CreateRoomInput) (*domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	GetRoomByName(ctx context.Context, name string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	ListUserRooms(ctx context.Context, userID string) ([]domain.Room, error)
	UpdateRoom(ctx context.Context, actorID, roomID string, in UpdateRoomInput) (*UpdateResult, error)
	DeleteRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error)
	AddMembers(ctx context.Context, actorID, roomID string, ids []string) (*MembershipResult, error)
	AddMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error)
	RemoveMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error)
	AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, error)
	MarkAsRead(ctx context.Context, roomID, userID string) error
}

var (
	_ RoomPort = (*RoomAdapter)(nil)
	_ RoomPort = (*Service)(nil)
)

// RoomAdapter implements RoomPort over the service container.
type RoomAdapter struct {
	container mono.ServiceContainer
}

// NewRoomAdapter creates a new RoomAdapter.
func NewRoomAdapter(container mono.ServiceContainer) *RoomAdapter {
	if container == nil {
		panic("room: ServiceContainer is nil")
	}
	return &RoomAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("%s request failed: %w", service, err))
	}
	return nil
}

func (a *RoomAdapter) CreateRoom(ctx context.Context, actorID string, in CreateRoomInput) (*domain.Room, error) {
	req := CreateRoomRequest{
		ActorID:     actorID,
		Name:        in.Name,
		Description: in.Description,
		Open:        in.Open,
		Password:    in.Password,
	}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceCreateRoom, &req, &resp); err != nil {
		return nil, err
	}
	return resp.room()
}

func (a *RoomAdapter) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	req := RoomIDRequest{RoomID: roomID}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceGetRoom, &req, &resp); err != nil {
		return nil, err
	}
	room, err := resp.room()
	if err != nil {
		return nil, err
	}
	if room.Messages == nil {
		room.Messages = []domain.Message{}
	}
	return room, nil
}

func (a *RoomAdapter) GetRoomByName(ctx context.Context, name string) (*domain.Room, error) {
	req := RoomNameRequest{Name: name}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceGetRoomByName, &req, &resp); err != nil {
		return nil, err
	}
	return resp.room()
}

func (a *RoomAdapter) ListRooms(ctx context.Context) ([]domain.Room, error) {
	req := ListRoomsRequest{}
	var resp RoomsResponse
	if err := call(ctx, a.container, ServiceListRooms, &req, &resp); err != nil {
		return nil, err
	}
	return resp.rooms()
}

func (a *RoomAdapter) ListUserRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	req := ListUserRoomsRequest{UserID: userID}
	var resp RoomsResponse
	if err := call(ctx, a.container, ServiceListUserRooms, &req, &resp); err != nil {
		return nil, err
	}
	return resp.rooms()
}

func (a *RoomAdapter) UpdateRoom(ctx context.Context, actorID, roomID string, in UpdateRoomInput) (*UpdateResult, error) {
	req := UpdateRoomRequest{
		ActorID:     actorID,
		RoomID:      roomID,
		Name:        in.Name,
		Description: in.Description,
	}
	var resp UpdateRoomResponse
	if err := call(ctx, a.container, ServiceUpdateRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	return &UpdateResult{
		RoomID:         resp.RoomID,
		OldName:        resp.OldName,
		NewName:        resp.NewName,
		OldDescription: resp.OldDescription,
		NewDescription: resp.NewDescription,
	}, nil
}

func (a *RoomAdapter) DeleteRoom(ctx context.Context, actorID, roomID string) (*domain.Room, error) {
	req := DeleteRoomRequest{ActorID: actorID, RoomID: roomID}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceDeleteRoom, &req, &resp); err != nil {
		return nil, err
	}
	return resp.room()
}

func (a *RoomAdapter) AddMembers(ctx context.Context, actorID, roomID string, ids []string) (*MembershipResult, error) {
	req := AddMembersRequest{ActorID: actorID, RoomID: roomID, UserIDs: ids}
	var resp MembershipResponse
	if err := call(ctx, a.container, ServiceAddMembers, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

func (a *RoomAdapter) AddMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error) {
	req := MemberRequest{ActorID: actorID, RoomID: roomID, UserID: target}
	var resp MembershipResponse
	if err := call(ctx, a.container, ServiceAddMember, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

func (a *RoomAdapter) RemoveMember(ctx context.Context, actorID, roomID, target string) (*MembershipResult, error) {
	req := MemberRequest{ActorID: actorID, RoomID: roomID, UserID: target}
	var resp MembershipResponse
	if err := call(ctx, a.container, ServiceRemoveMember, &req, &resp); err != nil {
		return nil, err
	}
	return resp.result()
}

func (a *RoomAdapter) AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, error) {
	req := AppendMessageRequest{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		UserName: in.UserName,
		Text:     in.Text,
		TempID:   in.TempID,
	}
	var resp MessageResponse
	if err := call(ctx, a.container, ServiceAppendMessage, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Error.Err(); err != nil {
		return nil, err
	}
	if resp.Message == nil {
		return nil, apperr.Store(MsgSaveFailed, fmt.Errorf("%s returned no message", ServiceAppendMessage))
	}
	return resp.Message, nil
}

func (a *RoomAdapter) MarkAsRead(ctx context.Context, roomID, userID string) error {
	req := MarkReadRequest{RoomID: roomID, UserID: userID}
	var resp StatusResponse
	if err := call(ctx, a.container, ServiceMarkRead, &req, &resp); err != nil {
		return err
	}
	return resp.Error.Err()
}

func (r *RoomResponse) room() (*domain.Room, error) {
	if err := r.Error.Err(); err != nil {
		return nil, err
	}
	if r.Room == nil {
		return nil, apperr.NotFound(MsgRoomNotFound)
	}
	return r.Room, nil
}

func (r *RoomsResponse) rooms() ([]domain.Room, error) {
	if err := r.Error.Err(); err != nil {
		return nil, err
	}
	if r.Rooms == nil {
		return []domain.Room{}, nil
	}
	return r.Rooms, nil
}

func (r *MembershipResponse) result() (*MembershipResult, error) {
	if err := r.Error.Err(); err != nil {
		return nil, err
	}
	return &MembershipResult{Room: r.Room, Added: r.Added, Removed: r.Removed}, nil
}

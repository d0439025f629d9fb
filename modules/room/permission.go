package room

import (
	"errors"
	"fmt"
	"slices"

	domain "github.com/example/chat-backend/domain/room"
)

var (
	// ErrNoOp is returned when every requested member is already in the room.
	ErrNoOp = errors.New("no new members to add")
	// ErrNotMember is returned when the removal target is not in the room.
	ErrNotMember = errors.New("user is not a member of this room")
	// ErrLastAdmin is returned when a removal would leave the room without an admin.
	ErrLastAdmin = errors.New("cannot remove the last admin")
)

// CanAddMembers reports whether actorID may add members. Open rooms are
// self-service; closed rooms require an admin.
func CanAddMembers(r *domain.Room, actorID string) bool {
	return r.Open || r.IsAdmin(actorID)
}

// CanRemoveMembers reports whether actorID may remove members. Removal always
// requires an admin regardless of openness.
func CanRemoveMembers(r *domain.Room, actorID string) bool {
	return r.IsAdmin(actorID)
}

// CanEditRoom reports whether actorID may rename or delete the room.
func CanEditRoom(r *domain.Room, actorID string) bool {
	return r.IsCreator(actorID)
}

// ApplyAddMembers appends the candidates that are not yet members and returns
// that delta. Duplicates in the input are collapsed. The room is unchanged
// when ErrNoOp is returned.
func ApplyAddMembers(r *domain.Room, candidates []string) ([]string, error) {
	added := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if r.IsMember(id) || slices.Contains(added, id) {
			continue
		}
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil, ErrNoOp
	}

	if r.MembersRead == nil {
		r.MembersRead = make(map[string]bool, len(r.Members)+len(added))
	}
	for _, id := range added {
		r.Members = append(r.Members, id)
		r.MembersRead[id] = false
	}
	return added, nil
}

// ApplyRemoveMember drops target from members, admins and read state. The
// room is unchanged when an error is returned.
func ApplyRemoveMember(r *domain.Room, target string) error {
	if !r.IsMember(target) {
		return ErrNotMember
	}

	admins := slices.DeleteFunc(slices.Clone(r.Admin), func(id string) bool { return id == target })
	if len(admins) == 0 {
		return ErrLastAdmin
	}

	r.Admin = admins
	r.Members = slices.DeleteFunc(r.Members, func(id string) bool { return id == target })
	delete(r.MembersRead, target)
	return nil
}

// CheckInvariants verifies the membership invariants of a room: a non-empty
// admin set contained in the members, and one read-state entry per member.
func CheckInvariants(r *domain.Room) error {
	if len(r.Admin) == 0 {
		return fmt.Errorf("room %s has no admin", r.ID)
	}
	for _, id := range r.Admin {
		if !r.IsMember(id) {
			return fmt.Errorf("room %s: admin %s is not a member", r.ID, id)
		}
	}
	if len(r.MembersRead) != len(r.Members) {
		return fmt.Errorf("room %s: %d read entries for %d members", r.ID, len(r.MembersRead), len(r.Members))
	}
	for _, id := range r.Members {
		if _, ok := r.MembersRead[id]; !ok {
			return fmt.Errorf("room %s: member %s has no read entry", r.ID, id)
		}
	}
	return nil
}

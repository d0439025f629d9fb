package room

import (
	"testing"

	domain "github.com/example/chat-backend/domain/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoom(open bool, admins []string, members ...string) *domain.Room {
	read := make(map[string]bool, len(members))
	for _, id := range members {
		read[id] = true
	}
	return &domain.Room{
		ID:          "room-1",
		Name:        "general",
		Open:        open,
		CreatorID:   admins[0],
		Admin:       admins,
		Members:     members,
		MembersRead: read,
	}
}

func TestCanAddMembers(t *testing.T) {
	tests := []struct {
		name  string
		open  bool
		actor string
		want  bool
	}{
		{name: "closed room admin", open: false, actor: "a", want: true},
		{name: "closed room member", open: false, actor: "b", want: false},
		{name: "closed room stranger", open: false, actor: "z", want: false},
		{name: "open room stranger", open: true, actor: "z", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRoom(tt.open, []string{"a"}, "a", "b")
			assert.Equal(t, tt.want, CanAddMembers(r, tt.actor))
		})
	}
}

func TestCanRemoveMembers_IgnoresOpenness(t *testing.T) {
	r := newTestRoom(true, []string{"a"}, "a", "b")

	assert.True(t, CanRemoveMembers(r, "a"))
	assert.False(t, CanRemoveMembers(r, "b"))
	assert.False(t, CanRemoveMembers(r, "z"))
}

func TestCanEditRoom_CreatorOnly(t *testing.T) {
	r := newTestRoom(false, []string{"a", "b"}, "a", "b")

	assert.True(t, CanEditRoom(r, "a"))
	assert.False(t, CanEditRoom(r, "b"), "admins who did not create the room cannot edit it")
}

func TestApplyAddMembers(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		wantAdded  []string
		wantErr    error
	}{
		{name: "new members", candidates: []string{"b", "c"}, wantAdded: []string{"b", "c"}},
		{name: "filters present", candidates: []string{"a", "b"}, wantAdded: []string{"b"}},
		{name: "dedupes input", candidates: []string{"b", "b", "c", "b"}, wantAdded: []string{"b", "c"}},
		{name: "all present", candidates: []string{"a"}, wantErr: ErrNoOp},
		{name: "empty", candidates: nil, wantErr: ErrNoOp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRoom(false, []string{"a"}, "a")

			added, err := ApplyAddMembers(r, tt.candidates)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, []string{"a"}, r.Members)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAdded, added)
			for _, id := range tt.wantAdded {
				assert.True(t, r.IsMember(id))
				assert.False(t, r.MembersRead[id], "new members start unread")
			}
			assert.NoError(t, CheckInvariants(r))
		})
	}
}

func TestApplyRemoveMember(t *testing.T) {
	t.Run("removes member and admin", func(t *testing.T) {
		r := newTestRoom(false, []string{"a", "b"}, "a", "b", "c")

		require.NoError(t, ApplyRemoveMember(r, "b"))
		assert.Equal(t, []string{"a", "c"}, r.Members)
		assert.Equal(t, []string{"a"}, r.Admin)
		assert.NotContains(t, r.MembersRead, "b")
		assert.NoError(t, CheckInvariants(r))
	})

	t.Run("not a member", func(t *testing.T) {
		r := newTestRoom(false, []string{"a"}, "a", "b")
		assert.ErrorIs(t, ApplyRemoveMember(r, "z"), ErrNotMember)
	})

	t.Run("last admin leaves room unchanged", func(t *testing.T) {
		r := newTestRoom(false, []string{"a"}, "a", "b")
		before := r.Clone()

		assert.ErrorIs(t, ApplyRemoveMember(r, "a"), ErrLastAdmin)
		assert.Equal(t, before, r)
	})
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *domain.Room)
		wantErr bool
	}{
		{name: "valid", mutate: func(*domain.Room) {}},
		{name: "no admin", mutate: func(r *domain.Room) { r.Admin = nil }, wantErr: true},
		{name: "admin outside members", mutate: func(r *domain.Room) { r.Admin = append(r.Admin, "z") }, wantErr: true},
		{name: "missing read entry", mutate: func(r *domain.Room) { delete(r.MembersRead, "b") }, wantErr: true},
		{name: "stale read entry", mutate: func(r *domain.Room) { r.MembersRead["z"] = false }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRoom(false, []string{"a"}, "a", "b")
			tt.mutate(r)
			if tt.wantErr {
				assert.Error(t, CheckInvariants(r))
			} else {
				assert.NoError(t, CheckInvariants(r))
			}
		})
	}
}

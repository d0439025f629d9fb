package room

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-backend/domain/room"
	userdomain "github.com/example/chat-backend/domain/user"
	"github.com/example/chat-backend/modules/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupStore(t *testing.T, userIDs ...string) (*RoomStore, *gorm.DB) {
	t.Helper()

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&userdomain.User{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := NewRoomStore(db)
	require.NoError(t, store.Migrate())

	for _, id := range userIDs {
		require.NoError(t, db.Create(&userdomain.User{
			ID:           id,
			Name:         "name-" + id,
			Email:        id + "@example.com",
			PasswordHash: "hash",
			Active:       true,
		}).Error)
	}
	return store, db
}

func createRoom(t *testing.T, store *RoomStore, id, name, creator string, open bool) *domain.Room {
	t.Helper()
	room := &domain.Room{ID: id, Name: name, Open: open, CreatorID: creator}
	require.NoError(t, store.Create(context.Background(), room))
	return room
}

func loadTestUser(t *testing.T, db *gorm.DB, id string) *userdomain.User {
	t.Helper()
	var user userdomain.User
	require.NoError(t, db.First(&user, "id = ?", id).Error)
	return &user
}

// assertConsistent checks that a user lists a room exactly when the room
// lists the user.
func assertConsistent(t *testing.T, db *gorm.DB) {
	t.Helper()

	var rooms []domain.Room
	require.NoError(t, db.Find(&rooms).Error)
	var users []userdomain.User
	require.NoError(t, db.Find(&users).Error)

	for _, u := range users {
		for i := range rooms {
			r := &rooms[i]
			assert.Equal(t, r.IsMember(u.ID), u.HasRoom(r.ID),
				"user %s and room %s disagree on membership", u.ID, r.ID)
		}
	}
	for i := range rooms {
		assert.NoError(t, CheckInvariants(&rooms[i]))
	}
}

func TestRoomStore_Create(t *testing.T) {
	store, db := setupStore(t, "a")
	ctx := context.Background()

	room := createRoom(t, store, "r1", "general", "a", false)

	assert.Equal(t, []string{"a"}, room.Admin)
	assert.Equal(t, []string{"a"}, room.Members)
	assert.Equal(t, map[string]bool{"a": true}, room.MembersRead)
	assert.Equal(t, []string{"r1"}, loadTestUser(t, db, "a").ChatRooms)

	t.Run("duplicate name", func(t *testing.T) {
		err := store.Create(ctx, &domain.Room{ID: "r2", Name: "general", CreatorID: "a"})
		assert.ErrorIs(t, err, ErrRoomExists)
		assert.Equal(t, []string{"r1"}, loadTestUser(t, db, "a").ChatRooms)
	})

	t.Run("unknown creator", func(t *testing.T) {
		err := store.Create(ctx, &domain.Room{ID: "r3", Name: "other", CreatorID: "ghost"})
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = store.FindByID(ctx, "r3", false)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	assertConsistent(t, db)
}

func TestRoomStore_Find(t *testing.T) {
	store, _ := setupStore(t, "a", "b")
	ctx := context.Background()

	createRoom(t, store, "r1", "general", "a", false)
	createRoom(t, store, "r2", "random", "b", true)

	byName, err := store.FindByName(ctx, "random")
	require.NoError(t, err)
	assert.Equal(t, "r2", byName.ID)

	_, err = store.FindByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	all, err := store.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.FindForUser(ctx, "a")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "r1", mine[0].ID)

	_, err = store.FindForUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRoomStore_MutateMembership(t *testing.T) {
	store, db := setupStore(t, "a", "b", "c")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", false)

	add := func(ids ...string) func(r *domain.Room) (MembershipChange, error) {
		return func(r *domain.Room) (MembershipChange, error) {
			added, err := ApplyAddMembers(r, ids)
			return MembershipChange{Added: added}, err
		}
	}

	room, change, err := store.MutateMembership(ctx, "r1", add("b", "c"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, change.Added)
	assert.Equal(t, []string{"a", "b", "c"}, room.Members)
	assertConsistent(t, db)

	_, _, err = store.MutateMembership(ctx, "r1", func(r *domain.Room) (MembershipChange, error) {
		if err := ApplyRemoveMember(r, "b"); err != nil {
			return MembershipChange{}, err
		}
		return MembershipChange{Removed: []string{"b"}}, nil
	})
	require.NoError(t, err)
	assert.Empty(t, loadTestUser(t, db, "b").ChatRooms)
	assertConsistent(t, db)

	t.Run("unknown user rolls back", func(t *testing.T) {
		_, _, err := store.MutateMembership(ctx, "r1", add("b", "ghost"))
		assert.ErrorIs(t, err, ErrUserNotFound)

		room, err := store.FindByID(ctx, "r1", false)
		require.NoError(t, err)
		assert.False(t, room.IsMember("b"))
		assert.Empty(t, loadTestUser(t, db, "b").ChatRooms)
		assertConsistent(t, db)
	})

	t.Run("missing room", func(t *testing.T) {
		_, _, err := store.MutateMembership(ctx, "nope", add("b"))
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestRoomStore_VersionedWrites(t *testing.T) {
	store, db := setupStore(t, "a")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", false)

	t.Run("stale version is rejected", func(t *testing.T) {
		stale, err := store.FindByID(ctx, "r1", false)
		require.NoError(t, err)
		require.NoError(t, store.MarkRead(ctx, "r1", "a"))
		_, _, err = store.Update(ctx, "r1", func(r *domain.Room) error {
			r.Description = "fresh"
			return nil
		})
		require.NoError(t, err)

		stale.Description = "stale"
		err = saveRoom(db, stale, detailColumns)
		assert.ErrorIs(t, err, errVersionConflict)
	})

	t.Run("conflicting transaction is retried", func(t *testing.T) {
		attempts := 0
		err := store.transact(ctx, func(tx *gorm.DB) error {
			attempts++
			if attempts < 3 {
				return errVersionConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		attempts := 0
		err := store.transact(ctx, func(tx *gorm.DB) error {
			attempts++
			return errVersionConflict
		})
		assert.ErrorIs(t, err, ErrConcurrentUpdate)
		assert.Equal(t, DefaultMaxAttempts, attempts)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		attempts := 0
		boom := errors.New("boom")
		err := store.transact(ctx, func(tx *gorm.DB) error {
			attempts++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, attempts)
	})
}

func TestRoomStore_Update(t *testing.T) {
	store, _ := setupStore(t, "a")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", false)
	createRoom(t, store, "r2", "random", "a", false)

	before, after, err := store.Update(ctx, "r1", func(r *domain.Room) error {
		r.Name = "lobby"
		r.Description = "hello"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "general", before.Name)
	assert.Equal(t, "lobby", after.Name)
	assert.Equal(t, "hello", after.Description)

	_, _, err = store.Update(ctx, "r1", func(r *domain.Room) error {
		r.Name = "random"
		return nil
	})
	assert.ErrorIs(t, err, ErrRoomExists)
}

func TestRoomStore_Delete(t *testing.T) {
	store, db := setupStore(t, "a", "b")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", true)
	_, _, err := store.MutateMembership(ctx, "r1", func(r *domain.Room) (MembershipChange, error) {
		added, err := ApplyAddMembers(r, []string{"b"})
		return MembershipChange{Added: added}, err
	})
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "r1", &domain.Message{ID: "m1", UserID: "a", Text: "hi", TempID: "t1"})
	require.NoError(t, err)

	veto := errors.New("veto")
	_, err = store.Delete(ctx, "r1", func(*domain.Room) error { return veto })
	assert.ErrorIs(t, err, veto)

	deleted, err := store.Delete(ctx, "r1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deleted.Members)

	_, err = store.FindByID(ctx, "r1", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	var count int64
	require.NoError(t, db.Model(&domain.Message{}).Where("room_id = ?", "r1").Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, loadTestUser(t, db, "a").ChatRooms)
	assert.Empty(t, loadTestUser(t, db, "b").ChatRooms)
}

func TestRoomStore_AppendMessage(t *testing.T) {
	store, _ := setupStore(t, "a", "b")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", true)
	_, _, err := store.MutateMembership(ctx, "r1", func(r *domain.Room) (MembershipChange, error) {
		added, err := ApplyAddMembers(r, []string{"b"})
		return MembershipChange{Added: added}, err
	})
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second)}
	store.now = func() time.Time {
		next := clock[0]
		clock = clock[1:]
		return next
	}

	texts := []string{"first", "second", "third"}
	for i, text := range texts {
		author := "a"
		if i == 1 {
			author = "b"
		}
		stored, err := store.AppendMessage(ctx, "r1", &domain.Message{
			ID:     "m" + text,
			UserID: author,
			Text:   text,
			TempID: "temp-" + text,
		})
		require.NoError(t, err)
		assert.Equal(t, text, stored.Text)
		assert.Equal(t, "temp-"+text, stored.TempID)
	}

	room, err := store.FindByID(ctx, "r1", true)
	require.NoError(t, err)
	require.Len(t, room.Messages, 3)
	for i, msg := range room.Messages {
		assert.Equal(t, texts[i], msg.Text)
		if i > 0 {
			assert.False(t, msg.TimeStamp.Before(room.Messages[i-1].TimeStamp),
				"timestamps must not go backwards")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": false}, room.MembersRead)
	assert.Equal(t, "a", room.UpdatedBy)

	_, err = store.AppendMessage(ctx, "missing", &domain.Message{ID: "x", UserID: "a", Text: "x", TempID: "x"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomStore_AppendMessage_SharedTempID(t *testing.T) {
	store, db := setupStore(t, "a", "b")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", true)

	// Commit a second message with the same correlation id between the first
	// append's commit and its read-back.
	type interleaveKey struct{}
	var once sync.Once
	var fromB *domain.Message
	var errB error
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:interleave", func(tx *gorm.DB) {
		if tx.Statement.Context.Value(interleaveKey{}) == nil || tx.Statement.Table != "messages" {
			return
		}
		if _, inTx := tx.Statement.ConnPool.(*sql.Tx); inTx {
			return
		}
		once.Do(func() {
			fromB, errB = store.AppendMessage(context.Background(), "r1", &domain.Message{
				ID: "from-b", UserID: "b", Text: "hello from b", TempID: "1",
			})
		})
	}))

	fromA, err := store.AppendMessage(context.WithValue(ctx, interleaveKey{}, true), "r1", &domain.Message{
		ID: "from-a", UserID: "a", Text: "hello from a", TempID: "1",
	})
	require.NoError(t, err)
	require.NoError(t, errB)
	require.NotNil(t, fromB, "second append ran before the read-back")

	assert.Equal(t, "from-a", fromA.ID)
	assert.Equal(t, "hello from a", fromA.Text)
	assert.Equal(t, "1", fromA.TempID)
	assert.Equal(t, "from-b", fromB.ID)
	assert.Equal(t, "hello from b", fromB.Text)

	room, err := store.FindByID(ctx, "r1", true)
	require.NoError(t, err)
	require.Len(t, room.Messages, 2)
	assert.Equal(t, "from-a", room.Messages[0].ID)
	assert.Equal(t, "from-b", room.Messages[1].ID)
}

func TestRoomStore_MarkRead(t *testing.T) {
	store, _ := setupStore(t, "a", "b")
	ctx := context.Background()
	createRoom(t, store, "r1", "general", "a", true)
	_, _, err := store.MutateMembership(ctx, "r1", func(r *domain.Room) (MembershipChange, error) {
		added, err := ApplyAddMembers(r, []string{"b"})
		return MembershipChange{Added: added}, err
	})
	require.NoError(t, err)

	require.NoError(t, store.MarkRead(ctx, "r1", "b"))
	require.NoError(t, store.MarkRead(ctx, "r1", "stranger"))

	room, err := store.FindByID(ctx, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, room.MembersRead)

	assert.ErrorIs(t, store.MarkRead(ctx, "missing", "a"), ErrRoomNotFound)
}

func TestRoomStore_RemoveUserEverywhere(t *testing.T) {
	store, db := setupStore(t, "a", "b", "c")
	ctx := context.Background()

	createRoom(t, store, "solo", "solo", "a", false)
	createRoom(t, store, "shared", "shared", "a", true)
	createRoom(t, store, "theirs", "theirs", "b", true)
	for _, roomID := range []string{"shared", "theirs"} {
		_, _, err := store.MutateMembership(ctx, roomID, func(r *domain.Room) (MembershipChange, error) {
			added, err := ApplyAddMembers(r, []string{"a", "b", "c"})
			return MembershipChange{Added: added}, err
		})
		require.NoError(t, err)
	}

	user := loadTestUser(t, db, "a")
	require.NoError(t, db.Delete(user).Error)

	removals, err := store.RemoveUserEverywhere(ctx, "a", append(user.ChatRooms, "gone"))
	require.NoError(t, err)
	require.Len(t, removals, 3)

	byRoom := make(map[string]Removal, len(removals))
	for _, r := range removals {
		byRoom[r.Room.ID] = r
	}
	assert.True(t, byRoom["solo"].Deleted)
	assert.Equal(t, "b", byRoom["shared"].Promoted)
	assert.Empty(t, byRoom["theirs"].Promoted)

	_, err = store.FindByID(ctx, "solo", false)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	shared, err := store.FindByID(ctx, "shared", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, shared.Admin)
	assert.Equal(t, []string{"b", "c"}, shared.Members)
	assertConsistent(t, db)
}

func TestRoomStore_StaleRooms(t *testing.T) {
	store, _ := setupStore(t, "a")
	ctx := context.Background()

	old := time.Now().Add(-30 * 24 * time.Hour)
	store.now = func() time.Time { return old }
	createRoom(t, store, "r1", "old", "a", false)
	store.now = time.Now
	createRoom(t, store, "r2", "new", "a", false)

	stale, err := store.StaleRooms(ctx, time.Now().Add(-20*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "r1", stale[0].ID)
}

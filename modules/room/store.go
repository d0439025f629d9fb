package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/chat-backend/domain/room"
	userdomain "github.com/example/chat-backend/domain/user"
	"gorm.io/gorm"
)

var (
	// ErrRoomNotFound is returned when a room is not found.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomExists is returned when the room name is taken.
	ErrRoomExists = errors.New("room with this name already exists")
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrConcurrentUpdate is returned when a write kept losing version races.
	ErrConcurrentUpdate = errors.New("too many concurrent updates")

	errVersionConflict = errors.New("version conflict")
)

// DefaultMaxAttempts bounds how often a transaction is retried after losing a
// version race.
const DefaultMaxAttempts = 5

// Columns written by each kind of room update.
var (
	membershipColumns = []string{"admin", "members", "members_read", "version", "updated_at"}
	messageColumns    = []string{"last_updated", "updated_by", "members_read", "version", "updated_at"}
	detailColumns     = []string{"name", "description", "version", "updated_at"}
	readStateColumns  = []string{"members_read", "version", "updated_at"}
	userRoomColumns   = []string{"chat_rooms", "version", "updated_at"}
)

// MembershipChange lists the users whose room lists must follow a membership
// mutation.
type MembershipChange struct {
	Added   []string
	Removed []string
}

// Removal describes what RemoveUserEverywhere did to one room.
type Removal struct {
	Room     *domain.Room
	Deleted  bool
	Promoted string
}

// RoomStore persists rooms, their messages and the users' room lists. Every
// write that touches more than one row runs in one transaction, conditional
// on the row versions read inside it.
type RoomStore struct {
	db          *gorm.DB
	maxAttempts int
	now         func() time.Time
}

// NewRoomStore creates a new RoomStore.
func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{
		db:          db,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
}

// Migrate creates the room and message tables.
func (s *RoomStore) Migrate() error {
	return s.db.AutoMigrate(&domain.Room{}, &domain.Message{})
}

// transact runs fn in a transaction and retries the whole transaction when a
// conditional write lost a version race.
func (s *RoomStore) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if !errors.Is(err, errVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConcurrentUpdate, s.maxAttempts)
}

// Create inserts the room with its creator as sole admin and member and adds
// the room to the creator's list.
func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	return s.transact(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Room{}).Where("name = ?", room.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check room name: %w", err)
		}
		if count > 0 {
			return ErrRoomExists
		}

		creator, err := loadUser(tx, room.CreatorID)
		if err != nil {
			return err
		}

		now := s.now()
		room.Admin = []string{room.CreatorID}
		room.Members = []string{room.CreatorID}
		room.MembersRead = map[string]bool{room.CreatorID: true}
		room.LastUpdated = now
		room.UpdatedBy = room.CreatorID
		room.Version = 0

		if err := tx.Create(room).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRoomExists
			}
			return fmt.Errorf("failed to create room: %w", err)
		}

		creator.AddRoom(room.ID)
		return saveUser(tx, creator)
	})
}

// FindByID loads a room, optionally with its messages oldest first.
func (s *RoomStore) FindByID(ctx context.Context, id string, withMessages bool) (*domain.Room, error) {
	query := s.db.WithContext(ctx)
	if withMessages {
		query = query.Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		})
	}
	return findRoom(query, "id = ?", id)
}

// FindByName loads a room by its unique name.
func (s *RoomStore) FindByName(ctx context.Context, name string) (*domain.Room, error) {
	return findRoom(s.db.WithContext(ctx), "name = ?", name)
}

// FindAll returns every room without messages.
func (s *RoomStore) FindAll(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to find rooms: %w", err)
	}
	return rooms, nil
}

// FindForUser returns the rooms listed in the user's room list.
func (s *RoomStore) FindForUser(ctx context.Context, userID string) ([]domain.Room, error) {
	db := s.db.WithContext(ctx)
	user, err := loadUser(db, userID)
	if err != nil {
		return nil, err
	}

	rooms := []domain.Room{}
	if len(user.ChatRooms) == 0 {
		return rooms, nil
	}
	if err := db.Where("id IN ?", user.ChatRooms).Order("last_updated DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to find rooms: %w", err)
	}
	return rooms, nil
}

// MutateMembership applies fn to the room and writes the room together with
// the room list of every user fn reports as added or removed. fn may run more
// than once and must only depend on the room it is given.
func (s *RoomStore) MutateMembership(ctx context.Context, roomID string, fn func(r *domain.Room) (MembershipChange, error)) (*domain.Room, MembershipChange, error) {
	var (
		result *domain.Room
		change MembershipChange
	)

	err := s.transact(ctx, func(tx *gorm.DB) error {
		room, err := findRoom(tx, "id = ?", roomID)
		if err != nil {
			return err
		}

		change, err = fn(room)
		if err != nil {
			return err
		}

		for _, id := range change.Added {
			user, err := loadUser(tx, id)
			if err != nil {
				return err
			}
			if user.AddRoom(room.ID) {
				if err := saveUser(tx, user); err != nil {
					return err
				}
			}
		}

		for _, id := range change.Removed {
			user, err := loadUser(tx, id)
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if user.RemoveRoom(room.ID) {
				if err := saveUser(tx, user); err != nil {
					return err
				}
			}
		}

		if err := saveRoom(tx, room, membershipColumns); err != nil {
			return err
		}
		result = room
		return nil
	})
	if err != nil {
		return nil, MembershipChange{}, err
	}
	return result, change, nil
}

// Update applies fn to the room's details. It returns the room before and
// after the change.
func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(r *domain.Room) error) (*domain.Room, *domain.Room, error) {
	var before, after *domain.Room

	err := s.transact(ctx, func(tx *gorm.DB) error {
		room, err := findRoom(tx, "id = ?", roomID)
		if err != nil {
			return err
		}
		before = room.Clone()

		if err := fn(room); err != nil {
			return err
		}

		if room.Name != before.Name {
			var count int64
			if err := tx.Model(&domain.Room{}).Where("name = ? AND id <> ?", room.Name, room.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check room name: %w", err)
			}
			if count > 0 {
				return ErrRoomExists
			}
		}

		if err := saveRoom(tx, room, detailColumns); err != nil {
			return err
		}
		after = room
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// Delete removes the room, its messages and its id from every member's room
// list. fn can veto the deletion after the room was loaded.
func (s *RoomStore) Delete(ctx context.Context, roomID string, fn func(r *domain.Room) error) (*domain.Room, error) {
	var deleted *domain.Room

	err := s.transact(ctx, func(tx *gorm.DB) error {
		room, err := findRoom(tx, "id = ?", roomID)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(room); err != nil {
				return err
			}
		}
		if err := deleteRoom(tx, room); err != nil {
			return err
		}
		deleted = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// AppendMessage stores msg in the room and resets the read state so that only
// the author has read the room. The message timestamp never precedes the
// room's previous message. The stored copy is read back by correlation id.
func (s *RoomStore) AppendMessage(ctx context.Context, roomID string, msg *domain.Message) (*domain.Message, error) {
	var seq uint64
	err := s.transact(ctx, func(tx *gorm.DB) error {
		room, err := findRoom(tx, "id = ?", roomID)
		if err != nil {
			return err
		}

		stamp := s.now()
		var last domain.Message
		result := tx.Where("room_id = ?", roomID).Order("seq DESC").Limit(1).Find(&last)
		if result.Error != nil {
			return fmt.Errorf("failed to load last message: %w", result.Error)
		}
		if result.RowsAffected > 0 && stamp.Before(last.TimeStamp) {
			stamp = last.TimeStamp
		}

		row := *msg
		row.Seq = 0
		row.RoomID = roomID
		row.TimeStamp = stamp
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		seq = row.Seq

		room.LastUpdated = stamp
		room.UpdatedBy = msg.UserID
		room.ResetReadState(msg.UserID)
		return saveRoom(tx, room, messageColumns)
	})
	if err != nil {
		return nil, err
	}

	// Read back by the row's own sequence; correlation ids come from clients
	// and may repeat.
	var stored domain.Message
	if err := s.db.WithContext(ctx).First(&stored, "seq = ?", seq).Error; err != nil {
		return nil, fmt.Errorf("failed to read back message: %w", err)
	}
	return &stored, nil
}

// MarkRead records that userID has read the room. Non-members are ignored so
// that membersRead keeps one entry per member.
func (s *RoomStore) MarkRead(ctx context.Context, roomID, userID string) error {
	return s.transact(ctx, func(tx *gorm.DB) error {
		room, err := findRoom(tx, "id = ?", roomID)
		if err != nil {
			return err
		}
		if !room.IsMember(userID) || room.MembersRead[userID] {
			return nil
		}
		if room.MembersRead == nil {
			room.MembersRead = make(map[string]bool, len(room.Members))
		}
		room.MembersRead[userID] = true
		return saveRoom(tx, room, readStateColumns)
	})
}

// StaleRooms returns rooms without activity since before.
func (s *RoomStore) StaleRooms(ctx context.Context, before time.Time) ([]domain.Room, error) {
	var rooms []domain.Room
	if err := s.db.WithContext(ctx).Where("last_updated < ?", before).Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale rooms: %w", err)
	}
	return rooms, nil
}

// RemoveUserEverywhere drops a deleted account from each listed room. When it
// was the only admin the first remaining member is promoted; a room left
// without members is deleted. Each room is handled in its own transaction and
// failures are collected rather than aborting the rest.
func (s *RoomStore) RemoveUserEverywhere(ctx context.Context, userID string, roomIDs []string) ([]Removal, error) {
	var (
		removals []Removal
		errs     []error
	)

	for _, roomID := range roomIDs {
		var removal *Removal
		err := s.transact(ctx, func(tx *gorm.DB) error {
			removal = nil
			room, err := findRoom(tx, "id = ?", roomID)
			if err != nil {
				return err
			}
			if !room.IsMember(userID) {
				return nil
			}

			r := Removal{Room: room}
			if len(room.Members) == 1 {
				if err := deleteRoom(tx, room); err != nil {
					return err
				}
				r.Deleted = true
				removal = &r
				return nil
			}

			if err := ApplyRemoveMember(room, userID); errors.Is(err, ErrLastAdmin) {
				r.Promoted = firstOther(room.Members, userID)
				room.Admin = append(room.Admin, r.Promoted)
				if err := ApplyRemoveMember(room, userID); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}

			if err := saveRoom(tx, room, membershipColumns); err != nil {
				return err
			}
			removal = &r
			return nil
		})
		if errors.Is(err, ErrRoomNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
			continue
		}
		if removal != nil {
			removals = append(removals, *removal)
		}
	}

	return removals, errors.Join(errs...)
}

func firstOther(ids []string, exclude string) string {
	for _, id := range ids {
		if id != exclude {
			return id
		}
	}
	return ""
}

func findRoom(db *gorm.DB, query string, arg any) (*domain.Room, error) {
	var room domain.Room
	if err := db.First(&room, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to find room: %w", err)
	}
	return &room, nil
}

func loadUser(db *gorm.DB, id string) (*userdomain.User, error) {
	var user userdomain.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// saveRoom writes the given columns if the row still has the version that
// was read. A lost race surfaces as errVersionConflict.
func saveRoom(tx *gorm.DB, room *domain.Room, columns []string) error {
	prev := room.Version
	room.Version++
	result := tx.Model(room).Where("version = ?", prev).Select(columns).Updates(room)
	if result.Error != nil {
		room.Version = prev
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrRoomExists
		}
		return fmt.Errorf("failed to update room: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		room.Version = prev
		return errVersionConflict
	}
	return nil
}

func saveUser(tx *gorm.DB, user *userdomain.User) error {
	prev := user.Version
	user.Version++
	result := tx.Model(user).Where("version = ?", prev).Select(userRoomColumns).Updates(user)
	if result.Error != nil {
		user.Version = prev
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		user.Version = prev
		return errVersionConflict
	}
	return nil
}

// deleteRoom removes the room and its messages and detaches it from every
// member that still exists.
func deleteRoom(tx *gorm.DB, room *domain.Room) error {
	for _, id := range room.Members {
		user, err := loadUser(tx, id)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if user.RemoveRoom(room.ID) {
			if err := saveUser(tx, user); err != nil {
				return err
			}
		}
	}

	if err := tx.Where("room_id = ?", room.ID).Delete(&domain.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	result := tx.Where("id = ? AND version = ?", room.ID, room.Version).Delete(&domain.Room{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete room: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}

package room

import (
	"maps"
	"slices"
	"time"
)

// Room is a named chat channel. Admin is always a non-empty subset of Members
// and MembersRead holds exactly one entry per member.
type Room struct {
	ID           string          `gorm:"primaryKey;type:text" json:"id"`
	Name         string          `gorm:"uniqueIndex;not null;type:text" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Open         bool            `gorm:"not null;default:false" json:"open"`
	PasswordHash string          `gorm:"type:text" json:"-"`
	CreatorID    string          `gorm:"not null;type:text;index" json:"creator"`
	Admin        []string        `gorm:"serializer:json" json:"admin"`
	Members      []string        `gorm:"serializer:json" json:"members"`
	MembersRead  map[string]bool `gorm:"serializer:json" json:"membersRead"`
	LastUpdated  time.Time       `gorm:"index" json:"lastUpdated"`
	UpdatedBy    string          `gorm:"type:text" json:"updatedBy,omitempty"`
	Version      int64           `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	Messages     []Message       `gorm:"foreignKey:RoomID" json:"messages,omitempty"`
}

// TableName returns the table name for the Room entity.
func (Room) TableName() string {
	return "rooms"
}

// Message is an append-only entry in a room's history. Seq orders messages
// in commit order.
type Message struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ID        string    `gorm:"uniqueIndex;not null;type:text" json:"id"`
	RoomID    string    `gorm:"index;not null;type:text" json:"roomID"`
	UserID    string    `gorm:"not null;type:text" json:"userID"`
	UserName  string    `gorm:"type:text" json:"userName"`
	Text      string    `gorm:"not null;type:text" json:"message"`
	TimeStamp time.Time `gorm:"not null" json:"timeStamp"`
	TempID    string    `gorm:"index;type:text" json:"tempID"`
}

// TableName returns the table name for the Message entity.
func (Message) TableName() string {
	return "messages"
}

// IsMember reports whether userID is in the member set.
func (r *Room) IsMember(userID string) bool {
	return slices.Contains(r.Members, userID)
}

// IsAdmin reports whether userID is in the admin set.
func (r *Room) IsAdmin(userID string) bool {
	return slices.Contains(r.Admin, userID)
}

// IsCreator reports whether userID created the room.
func (r *Room) IsCreator(userID string) bool {
	return r.CreatorID == userID
}

// HasPassword reports whether joining the room is password protected.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// Clone returns a deep copy of the mutable membership state. Messages are shared.
func (r *Room) Clone() *Room {
	c := *r
	c.Admin = slices.Clone(r.Admin)
	c.Members = slices.Clone(r.Members)
	c.MembersRead = maps.Clone(r.MembersRead)
	return &c
}

// ResetReadState marks the room read for authorID and unread for every other member.
func (r *Room) ResetReadState(authorID string) {
	read := make(map[string]bool, len(r.Members))
	for _, id := range r.Members {
		read[id] = id == authorID
	}
	r.MembersRead = read
}

// Summary is a room without its message history.
func (r *Room) Summary() *Room {
	c := r.Clone()
	c.Messages = nil
	return c
}

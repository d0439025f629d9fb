package user

import (
	"slices"
	"time"
)

// User represents an account. ChatRooms mirrors the member lists of the rooms
// the user belongs to and is only written together with them.
type User struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Name         string    `gorm:"uniqueIndex;not null;type:text" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null;type:text" json:"email"`
	PasswordHash string    `gorm:"not null;type:text" json:"-"`
	Active       bool      `gorm:"not null;default:false" json:"active"`
	ChatRooms    []string  `gorm:"serializer:json" json:"chatRooms"`
	Version      int64     `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName returns the table name for the User entity.
func (User) TableName() string {
	return "users"
}

// HasRoom reports whether roomID is in the user's room list.
func (u *User) HasRoom(roomID string) bool {
	return slices.Contains(u.ChatRooms, roomID)
}

// AddRoom appends roomID unless already present. It reports whether the list changed.
func (u *User) AddRoom(roomID string) bool {
	if u.HasRoom(roomID) {
		return false
	}
	u.ChatRooms = append(u.ChatRooms, roomID)
	return true
}

// RemoveRoom drops roomID from the list. It reports whether the list changed.
func (u *User) RemoveRoom(roomID string) bool {
	before := len(u.ChatRooms)
	u.ChatRooms = slices.DeleteFunc(u.ChatRooms, func(id string) bool { return id == roomID })
	return len(u.ChatRooms) != before
}

// Identity is the authenticated caller resolved from a session token.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Claims represents the identity carried inside a session token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// Friend is a confirmed peer. DeviceName is the stable identity; the
// address and port are refreshed from discovery and may be empty when
// the peer has never been seen on the current network.
type Friend struct {
	ID         uint   `gorm:"primaryKey"`
	DeviceName string `gorm:"uniqueIndex;not null"`
	PetName    string `gorm:"not null"`
	Address    string
	Port       int
	AddedAt    time.Time `gorm:"not null"`
	LastSeen   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

func (Friend) TableName() string {
	return "friends"
}

// Friend request status values
const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
)

// FriendRequest is an incoming request awaiting a local decision.
// Rejected requests are deleted rather than marked, so the same peer
// can ask again later.
type FriendRequest struct {
	ID             uint   `gorm:"primaryKey"`
	FromDeviceName string `gorm:"uniqueIndex;not null"`
	FromPetName    string `gorm:"not null"`
	Address        string
	Port           int
	Status         string    `gorm:"not null;default:'pending'"`
	ReceivedAt     time.Time `gorm:"not null"`
	ExpiresAt      time.Time `gorm:"not null;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

// IsExpired reports whether the request TTL has passed.
func (r *FriendRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

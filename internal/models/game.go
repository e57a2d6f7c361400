package models

import "time"

// Game session status values
const (
	GameStatusPending   = "pending"
	GameStatusActive    = "active"
	GameStatusCompleted = "completed"
	GameStatusForfeited = "forfeited"
	GameStatusDeclined  = "declined"
	GameStatusCancelled = "cancelled"
	GameStatusExpired   = "expired"
)

// Session roles
const (
	RoleInitiator = "initiator"
	RoleInvitee   = "invitee"
)

// GameSessionRecord is the durable record of a game session with one
// peer: lifecycle, outcome and the engine's serialized state, so a
// session survives a process restart and feeds history queries.
type GameSessionRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"uniqueIndex;not null"`
	GameType  string `gorm:"not null"`
	PeerName  string `gorm:"index;not null"`
	Role      string `gorm:"not null"`
	Status    string `gorm:"not null;default:'pending';index"`
	Winner    string
	State     string `gorm:"type:text"`
	StartedAt time.Time `gorm:"not null"`
	EndedAt   *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (GameSessionRecord) TableName() string {
	return "game_sessions"
}

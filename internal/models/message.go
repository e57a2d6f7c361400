package models

import "time"

// Message content types
const (
	ContentTypeText   = "text"
	ContentTypeEmoji  = "emoji"
	ContentTypePreset = "preset"
)

// Message directions
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// Message is a chat message in local history, sent or received.
// MessageID is globally unique so a redelivered payload is dropped
// instead of duplicated.
type Message struct {
	ID          uint   `gorm:"primaryKey"`
	MessageID   string `gorm:"uniqueIndex;not null"`
	PeerName    string `gorm:"index;not null"`
	Direction   string `gorm:"not null"`
	Content     string `gorm:"not null"`
	ContentType string `gorm:"not null;default:'text'"`
	Read        bool   `gorm:"not null;default:false"`
	Timestamp   time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
}

func (Message) TableName() string {
	return "messages"
}

// Queued message status values
const (
	QueueStatusPending   = "pending"
	QueueStatusDelivered = "delivered"
	QueueStatusFailed    = "failed"
)

// QueuedMessage is an outbound message awaiting delivery. The retry
// worker picks up pending rows whose NextRetry has passed.
type QueuedMessage struct {
	ID          uint   `gorm:"primaryKey"`
	MessageID   string `gorm:"uniqueIndex;not null"`
	ToDevice    string `gorm:"index;not null"`
	Content     string `gorm:"not null"`
	ContentType string `gorm:"not null;default:'text'"`
	Status      string `gorm:"not null;default:'pending';index"`
	Attempts    int    `gorm:"not null;default:0"`
	QueuedAt    time.Time `gorm:"not null"`
	NextRetry   time.Time `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (QueuedMessage) TableName() string {
	return "queued_messages"
}

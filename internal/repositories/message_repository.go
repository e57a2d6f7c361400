package repositories

import (
	"time"

	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/pkg/errors"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveMessage stores a message in local history. Returns ALREADY_EXISTS
// when the message ID was seen before, so redeliveries are dropped.
func (r *MessageRepository) SaveMessage(msg *models.Message) error {
	var count int64
	result := r.db.Model(&models.Message{}).
		Where("message_id = ?", msg.MessageID).
		Count(&count)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check message")
	}
	if count > 0 {
		return errors.New(errors.ErrCodeAlreadyExists, "message already stored")
	}

	if err := r.db.Create(msg).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to save message")
	}
	return nil
}

// GetConversation retrieves the most recent messages with a peer,
// newest first
func (r *MessageRepository) GetConversation(peerName string, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("peer_name = ?", peerName).
		Order("timestamp desc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get conversation")
	}
	return messages, nil
}

// GetUnreadMessages retrieves unread received messages, oldest first
func (r *MessageRepository) GetUnreadMessages() ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("direction = ? AND read = ?", models.DirectionReceived, false).
		Order("timestamp asc").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get unread messages")
	}
	return messages, nil
}

// CountUnread returns unread counts grouped by peer
func (r *MessageRepository) CountUnread() (map[string]int64, error) {
	type row struct {
		PeerName string
		Count    int64
	}
	var rows []row
	err := r.db.Model(&models.Message{}).
		Select("peer_name, count(*) as count").
		Where("direction = ? AND read = ?", models.DirectionReceived, false).
		Group("peer_name").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count unread messages")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.PeerName] = row.Count
	}
	return counts, nil
}

// MarkRead marks a single message as read
func (r *MessageRepository) MarkRead(messageID string) error {
	result := r.db.Model(&models.Message{}).
		Where("message_id = ?", messageID).
		Update("read", true)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to mark message read")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "message not found")
	}
	return nil
}

// MarkConversationRead marks all received messages from a peer as read
func (r *MessageRepository) MarkConversationRead(peerName string) (int64, error) {
	result := r.db.Model(&models.Message{}).
		Where("peer_name = ? AND direction = ? AND read = ?", peerName, models.DirectionReceived, false).
		Update("read", true)
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to mark conversation read")
	}
	return result.RowsAffected, nil
}

// DeleteMessage removes one message from history
func (r *MessageRepository) DeleteMessage(messageID string) error {
	result := r.db.Where("message_id = ?", messageID).Delete(&models.Message{})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete message")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "message not found")
	}
	return nil
}

// DeleteConversation removes all history with a peer
func (r *MessageRepository) DeleteConversation(peerName string) error {
	if err := r.db.Where("peer_name = ?", peerName).Delete(&models.Message{}).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to delete conversation")
	}
	return nil
}

// Enqueue stores an outbound message for delivery
func (r *MessageRepository) Enqueue(queued *models.QueuedMessage) error {
	if err := r.db.Create(queued).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to enqueue message")
	}
	return nil
}

// GetDueMessages retrieves up to limit pending messages whose retry time
// has passed, oldest first
func (r *MessageRepository) GetDueMessages(now time.Time, limit int) ([]models.QueuedMessage, error) {
	var queued []models.QueuedMessage
	err := r.db.Where("status = ? AND next_retry <= ?", models.QueueStatusPending, now).
		Order("queued_at asc").
		Limit(limit).
		Find(&queued).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get due messages")
	}
	return queued, nil
}

// MarkDelivered resolves a queued message after a successful send
func (r *MessageRepository) MarkDelivered(messageID string) error {
	result := r.db.Model(&models.QueuedMessage{}).
		Where("message_id = ?", messageID).
		Update("status", models.QueueStatusDelivered)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to mark message delivered")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "queued message not found")
	}
	return nil
}

// RecordAttempt bumps the attempt counter and schedules the next retry
func (r *MessageRepository) RecordAttempt(messageID string, attempts int, nextRetry time.Time) error {
	result := r.db.Model(&models.QueuedMessage{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"attempts":   attempts,
			"next_retry": nextRetry,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to record attempt")
	}
	return nil
}

// MarkFailed moves a queued message to its terminal failed state and
// records the final attempt count
func (r *MessageRepository) MarkFailed(messageID string, attempts int) error {
	result := r.db.Model(&models.QueuedMessage{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"status":   models.QueueStatusFailed,
			"attempts": attempts,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to mark message failed")
	}
	return nil
}

// UpdateQueueStatus sets a queued message's status directly
func (r *MessageRepository) UpdateQueueStatus(messageID, status string) error {
	result := r.db.Model(&models.QueuedMessage{}).
		Where("message_id = ?", messageID).
		Update("status", status)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update queue status")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "queued message not found")
	}
	return nil
}

// GetQueued retrieves a queued message by ID
func (r *MessageRepository) GetQueued(messageID string) (*models.QueuedMessage, error) {
	var queued models.QueuedMessage
	result := r.db.Where("message_id = ?", messageID).First(&queued)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "queued message not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get queued message")
	}
	return &queued, nil
}

// CountQueueByStatus returns queued message counts grouped by status
func (r *MessageRepository) CountQueueByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&models.QueuedMessage{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count queue")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteQueuedForPeer drops queued messages to a peer, used when a
// friendship ends
func (r *MessageRepository) DeleteQueuedForPeer(toDevice string) error {
	if err := r.db.Where("to_device = ?", toDevice).Delete(&models.QueuedMessage{}).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to delete queued messages")
	}
	return nil
}

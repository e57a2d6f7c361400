package messaging

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/repositories"
	"github.com/pockpet/social/internal/security"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
	"github.com/pockpet/social/pkg/utils"
)

// Sender delivers one payload to a peer and reports acknowledgement.
type Sender interface {
	Send(address string, port int, payload *transport.Payload) bool
}

// FriendDirectory is the slice of the friend store the queue needs:
// membership checks and current addresses. Implementations must not
// take the shared store mutex; this service calls them while holding
// it.
type FriendDirectory interface {
	IsFriend(deviceName string) (bool, error)
	Get(deviceName string) (*models.Friend, error)
	TouchLastSeen(deviceName string) error
}

// Service stores chat history and runs the durable outbound queue.
// Sends never fail for an offline peer; they queue and retry with
// exponential backoff until delivered or out of attempts.
type Service struct {
	mu       *sync.Mutex
	cfg      *config.Config
	repo     *repositories.MessageRepository
	friends  FriendDirectory
	sender   Sender
	notifier *notify.Notifier

	deviceName string
	petName    string
}

func NewService(
	mu *sync.Mutex,
	cfg *config.Config,
	repo *repositories.MessageRepository,
	friends FriendDirectory,
	sender Sender,
	notifier *notify.Notifier,
) *Service {
	return &Service{
		mu:         mu,
		cfg:        cfg,
		repo:       repo,
		friends:    friends,
		sender:     sender,
		notifier:   notifier,
		deviceName: cfg.DeviceName,
		petName:    cfg.PetName,
	}
}

// SetIdentity updates the names stamped on outgoing payloads.
func (s *Service) SetIdentity(deviceName, petName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceName = deviceName
	s.petName = petName
}

// Send validates and queues a message to a friend. Returns the message
// ID; delivery happens asynchronously.
func (s *Service) Send(toDevice, content, contentType string) (string, error) {
	content = security.SanitizeContent(content, 0)
	if strings.TrimSpace(content) == "" {
		return "", errors.New(errors.ErrCodeValidation, "message content is empty")
	}
	if len([]rune(content)) > s.cfg.MessageMaxLength {
		return "", errors.New(errors.ErrCodeValidation, "message content is too long")
	}

	switch contentType {
	case models.ContentTypeText, models.ContentTypeEmoji, models.ContentTypePreset:
	case "":
		contentType = models.ContentTypeText
	default:
		return "", errors.New(errors.ErrCodeValidation, "unknown content type "+contentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	isFriend, err := s.friends.IsFriend(toDevice)
	if err != nil {
		return "", err
	}
	if !isFriend {
		return "", errors.New(errors.ErrCodeNotFriend, "can only message friends")
	}

	now := time.Now().UTC()
	messageID := uuid.NewString()

	if err := s.repo.SaveMessage(&models.Message{
		MessageID:   messageID,
		PeerName:    toDevice,
		Direction:   models.DirectionSent,
		Content:     content,
		ContentType: contentType,
		Read:        true,
		Timestamp:   now,
	}); err != nil {
		return "", err
	}

	if err := s.repo.Enqueue(&models.QueuedMessage{
		MessageID:   messageID,
		ToDevice:    toDevice,
		Content:     content,
		ContentType: contentType,
		Status:      models.QueueStatusPending,
		Attempts:    0,
		QueuedAt:    now,
		NextRetry:   now,
	}); err != nil {
		return "", err
	}

	logger.Debug("Message queued", "to", toDevice, "preview", utils.Truncate(content, 30))
	return messageID, nil
}

// Receive stores an inbound message. Redeliveries of an already-stored
// message ID are acknowledged without a second notification.
func (s *Service) Receive(payload *transport.Payload, remoteAddr string) error {
	messageID := payload.GetString("message_id")
	if messageID == "" {
		return errors.New(errors.ErrCodeValidation, "message_id is required")
	}

	content := security.SanitizeContent(payload.GetString("content"), 0)
	if content == "" {
		return errors.New(errors.ErrCodeValidation, "message content is empty")
	}
	if len([]rune(content)) > s.cfg.MessageMaxLength {
		return errors.New(errors.ErrCodeValidation, "message content is too long")
	}

	contentType := payload.GetString("content_type")
	switch contentType {
	case models.ContentTypeText, models.ContentTypeEmoji, models.ContentTypePreset:
	case "":
		contentType = models.ContentTypeText
	default:
		return errors.New(errors.ErrCodeValidation, "unknown content type "+contentType)
	}

	s.mu.Lock()

	isFriend, err := s.friends.IsFriend(payload.FromDeviceName)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !isFriend {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeNotFriend, "message from non-friend dropped")
	}

	timestamp := payload.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	err = s.repo.SaveMessage(&models.Message{
		MessageID:   messageID,
		PeerName:    payload.FromDeviceName,
		Direction:   models.DirectionReceived,
		Content:     content,
		ContentType: contentType,
		Read:        false,
		Timestamp:   timestamp,
	})
	if err != nil && errors.Code(err) == errors.ErrCodeAlreadyExists {
		// Duplicate delivery, the peer retried after missing our ack.
		s.mu.Unlock()
		logger.Debug("Duplicate message dropped", "message_id", messageID)
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}

	_ = s.friends.TouchLastSeen(payload.FromDeviceName)
	s.mu.Unlock()

	s.notifier.Publish(notify.KindMessage, payload.FromDeviceName, map[string]interface{}{
		"message_id":   messageID,
		"content_type": contentType,
	})
	return nil
}

// History returns the most recent messages with a peer, newest first.
func (s *Service) History(peerName string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetConversation(peerName, limit)
}

// Inbox returns all unread received messages, oldest first.
func (s *Service) Inbox() ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetUnreadMessages()
}

// UnreadCounts returns unread totals per peer.
func (s *Service) UnreadCounts() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.CountUnread()
}

// MarkRead marks one message as read.
func (s *Service) MarkRead(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.MarkRead(messageID)
}

// MarkConversationRead marks everything from one peer as read.
func (s *Service) MarkConversationRead(peerName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.MarkConversationRead(peerName)
}

// DeleteMessage removes one message from history.
func (s *Service) DeleteMessage(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.DeleteMessage(messageID)
}

// DeleteConversation removes history and pending deliveries for a peer.
func (s *Service) DeleteConversation(peerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteConversation(peerName); err != nil {
		return err
	}
	return s.repo.DeleteQueuedForPeer(peerName)
}

// QueueStatus returns queued message counts by status.
func (s *Service) QueueStatus() (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.CountQueueByStatus()
}

package messaging

import (
	"sync"
	"time"

	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
)

// Delivery batch size per queue pass.
const queueBatchSize = 10

// StartQueue launches the delivery worker. It wakes on the configured
// cadence, drains due messages and reschedules failures.
func (s *Service) StartQueue() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(s.cfg.QueueInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.ProcessQueue()
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// ProcessQueue attempts delivery of every due message, oldest first.
func (s *Service) ProcessQueue() {
	s.mu.Lock()
	due, err := s.repo.GetDueMessages(time.Now().UTC(), queueBatchSize)
	s.mu.Unlock()
	if err != nil {
		logger.Warn("Failed to load due messages", "error", err)
		return
	}

	for i := range due {
		s.attemptDelivery(&due[i])
	}
}

func (s *Service) attemptDelivery(queued *models.QueuedMessage) {
	s.mu.Lock()
	friend, err := s.friends.Get(queued.ToDevice)
	deviceName, petName := s.deviceName, s.petName
	s.mu.Unlock()

	delivered := false
	if err != nil {
		// Friendship ended while the message was queued.
		logger.Debug("Queued message has no recipient", "to", queued.ToDevice)
	} else if friend.Address == "" {
		// Never seen on the current network; burn an attempt so the
		// message eventually fails instead of retrying forever.
		logger.Debug("No known address for peer", "to", queued.ToDevice)
	} else {
		payload := &transport.Payload{
			Type:           transport.TypeMessage,
			FromDeviceName: deviceName,
			FromPetName:    petName,
			Timestamp:      time.Now().UTC(),
			Extra: map[string]interface{}{
				"message_id":   queued.MessageID,
				"content":      queued.Content,
				"content_type": queued.ContentType,
			},
		}
		delivered = s.sender.Send(friend.Address, friend.Port, payload)
	}

	s.mu.Lock()
	if delivered {
		if err := s.repo.MarkDelivered(queued.MessageID); err != nil {
			logger.Warn("Failed to mark message delivered", "message_id", queued.MessageID, "error", err)
		}
		_ = s.friends.TouchLastSeen(queued.ToDevice)
		s.mu.Unlock()

		logger.Info("Message delivered", "to", queued.ToDevice, "attempts", queued.Attempts+1)
		s.notifier.Publish(notify.KindMessageDelivered, queued.ToDevice, map[string]interface{}{
			"message_id": queued.MessageID,
		})
		return
	}

	attempts := queued.Attempts + 1
	if attempts >= s.cfg.RetryMaxAttempts {
		if err := s.repo.MarkFailed(queued.MessageID, attempts); err != nil {
			logger.Warn("Failed to mark message failed", "message_id", queued.MessageID, "error", err)
		}
		s.mu.Unlock()

		logger.Warn("Message delivery gave up", "to", queued.ToDevice, "attempts", attempts)
		s.notifier.Publish(notify.KindMessageFailed, queued.ToDevice, map[string]interface{}{
			"message_id": queued.MessageID,
		})
		return
	}

	nextRetry := time.Now().UTC().Add(BackoffDelay(s.cfg.RetryInitialDelay, s.cfg.RetryMaxDelay, attempts))
	if err := s.repo.RecordAttempt(queued.MessageID, attempts, nextRetry); err != nil {
		logger.Warn("Failed to record delivery attempt", "message_id", queued.MessageID, "error", err)
	}
	s.mu.Unlock()

	logger.Debug("Delivery attempt failed, rescheduled",
		"to", queued.ToDevice, "attempts", attempts, "next_retry", nextRetry)
}

// BackoffDelay computes the wait before the next attempt: the initial
// delay doubled per failed attempt, capped at the maximum.
func BackoffDelay(initial, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := initial
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RetryNow reschedules a failed message for immediate delivery with a
// fresh attempt budget.
func (s *Service) RetryNow(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued, err := s.repo.GetQueued(messageID)
	if err != nil {
		return err
	}
	if queued.Status == models.QueueStatusDelivered {
		return errors.New(errors.ErrCodeValidation, "message was already delivered")
	}

	now := time.Now().UTC()
	if err := s.repo.RecordAttempt(messageID, 0, now); err != nil {
		return err
	}
	if queued.Status == models.QueueStatusFailed {
		// Reopen the terminal state.
		return s.repo.UpdateQueueStatus(messageID, models.QueueStatusPending)
	}
	return nil
}

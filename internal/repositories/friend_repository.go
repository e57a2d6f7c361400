package repositories

import (
	"time"

	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/pkg/errors"
	"gorm.io/gorm"
)

type FriendRepository struct {
	db *gorm.DB
}

func NewFriendRepository(db *gorm.DB) *FriendRepository {
	return &FriendRepository{db: db}
}

// CreateFriend adds a confirmed friend
func (r *FriendRepository) CreateFriend(friend *models.Friend) error {
	var existing models.Friend
	result := r.db.Where("device_name = ?", friend.DeviceName).First(&existing)
	if result.Error == nil {
		return errors.New(errors.ErrCodeAlreadyExists, "already friends with this device")
	}
	if result.Error != gorm.ErrRecordNotFound {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check existing friend")
	}

	if err := r.db.Create(friend).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create friend")
	}

	return nil
}

// GetFriend retrieves a friend by device name
func (r *FriendRepository) GetFriend(deviceName string) (*models.Friend, error) {
	var friend models.Friend
	result := r.db.Where("device_name = ?", deviceName).First(&friend)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "friend not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get friend")
	}
	return &friend, nil
}

// GetFriends retrieves all friends ordered by pet name
func (r *FriendRepository) GetFriends() ([]models.Friend, error) {
	var friends []models.Friend
	if err := r.db.Order("pet_name asc").Find(&friends).Error; err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get friends")
	}
	return friends, nil
}

// CountFriends returns the number of confirmed friends
func (r *FriendRepository) CountFriends() (int64, error) {
	var count int64
	if err := r.db.Model(&models.Friend{}).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeInternalError, "failed to count friends")
	}
	return count, nil
}

// IsFriend checks whether a device is a confirmed friend
func (r *FriendRepository) IsFriend(deviceName string) (bool, error) {
	var count int64
	result := r.db.Model(&models.Friend{}).
		Where("device_name = ?", deviceName).
		Count(&count)
	if result.Error != nil {
		return false, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to check friend")
	}
	return count > 0, nil
}

// UpdateContact refreshes a friend's network address and last seen time
func (r *FriendRepository) UpdateContact(deviceName, address string, port int, seenAt time.Time) error {
	result := r.db.Model(&models.Friend{}).
		Where("device_name = ?", deviceName).
		Updates(map[string]interface{}{
			"address":   address,
			"port":      port,
			"last_seen": seenAt,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update contact")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "friend not found")
	}
	return nil
}

// TouchLastSeen updates only the last seen timestamp
func (r *FriendRepository) TouchLastSeen(deviceName string, seenAt time.Time) error {
	result := r.db.Model(&models.Friend{}).
		Where("device_name = ?", deviceName).
		Update("last_seen", seenAt)
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to update last seen")
	}
	return nil
}

// RemoveFriend deletes a friendship
func (r *FriendRepository) RemoveFriend(deviceName string) error {
	result := r.db.Where("device_name = ?", deviceName).Delete(&models.Friend{})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to remove friend")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "friend not found")
	}
	return nil
}

// CreateRequest stores an incoming friend request
func (r *FriendRepository) CreateRequest(request *models.FriendRequest) error {
	if err := r.db.Create(request).Error; err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create friend request")
	}
	return nil
}

// GetRequest retrieves a pending request from a device
func (r *FriendRepository) GetRequest(fromDevice string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	result := r.db.Where("from_device_name = ? AND status = ?", fromDevice, models.RequestStatusPending).
		First(&request)
	if result.Error == gorm.ErrRecordNotFound {
		return nil, errors.New(errors.ErrCodeNotFound, "friend request not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get friend request")
	}
	return &request, nil
}

// GetPendingRequests retrieves all pending requests, oldest first
func (r *FriendRepository) GetPendingRequests() ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.Where("status = ?", models.RequestStatusPending).
		Order("received_at asc").
		Find(&requests).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to get pending requests")
	}
	return requests, nil
}

// DeleteRequest removes a request so the same peer can ask again later
func (r *FriendRepository) DeleteRequest(fromDevice string) error {
	result := r.db.Where("from_device_name = ?", fromDevice).Delete(&models.FriendRequest{})
	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete friend request")
	}
	if result.RowsAffected == 0 {
		return errors.New(errors.ErrCodeNotFound, "friend request not found")
	}
	return nil
}

// DeleteExpiredRequests removes pending requests whose TTL has passed
func (r *FriendRepository) DeleteExpiredRequests(now time.Time) (int64, error) {
	result := r.db.Where("status = ? AND expires_at < ?", models.RequestStatusPending, now).
		Delete(&models.FriendRequest{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to delete expired requests")
	}
	return result.RowsAffected, nil
}

// AcceptRequest atomically records the friendship and resolves the request.
// Both rows change or neither does.
func (r *FriendRepository) AcceptRequest(fromDevice string, friend *models.Friend) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FriendRequest{}).
			Where("from_device_name = ? AND status = ?", fromDevice, models.RequestStatusPending).
			Update("status", models.RequestStatusAccepted)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(friend).Error
	})

	if err == gorm.ErrRecordNotFound {
		return errors.New(errors.ErrCodeNotFound, "friend request not found or already processed")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to accept friend request")
	}

	return nil
}

package friends

import (
	"time"

	"github.com/pockpet/social/internal/models"
)

// Directory is the friend store view for code that already holds the
// shared store mutex, such as the messaging queue mid-operation. Its
// methods never take the lock; calling them without holding it races.
type Directory struct {
	s *Service
}

// Directory returns the non-locking view of this service.
func (s *Service) Directory() *Directory {
	return &Directory{s: s}
}

// IsFriend reports whether a device is a confirmed friend.
func (d *Directory) IsFriend(deviceName string) (bool, error) {
	return d.s.repo.IsFriend(deviceName)
}

// Get returns one friend by device name.
func (d *Directory) Get(deviceName string) (*models.Friend, error) {
	return d.s.repo.GetFriend(deviceName)
}

// TouchLastSeen records that a friend was just heard from.
func (d *Directory) TouchLastSeen(deviceName string) error {
	return d.s.repo.TouchLastSeen(deviceName, time.Now().UTC())
}

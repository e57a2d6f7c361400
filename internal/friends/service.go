package friends

import (
	"context"
	"sync"
	"time"

	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/repositories"
	"github.com/pockpet/social/internal/security"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
)

const maxNameLength = 50

// Sender delivers one payload to a peer and reports acknowledgement.
type Sender interface {
	Send(address string, port int, payload *transport.Payload) bool
}

// Finder locates a peer on the local network.
type Finder interface {
	Find(ctx context.Context, deviceName string) (*transport.Peer, error)
}

// Service manages the friendship lifecycle: outgoing requests, incoming
// requests, acceptance, rejection and removal.
//
// The injected mutex is shared with the messaging service so that
// cross-service sequences see a consistent view. Public methods lock;
// *Locked methods and the Directory view assume the caller already
// holds it.
type Service struct {
	mu       *sync.Mutex
	cfg      *config.Config
	repo     *repositories.FriendRepository
	sender   Sender
	finder   Finder
	notifier *notify.Notifier

	deviceName string
	petName    string
}

func NewService(
	mu *sync.Mutex,
	cfg *config.Config,
	repo *repositories.FriendRepository,
	sender Sender,
	finder Finder,
	notifier *notify.Notifier,
) *Service {
	return &Service{
		mu:         mu,
		cfg:        cfg,
		repo:       repo,
		sender:     sender,
		finder:     finder,
		notifier:   notifier,
		deviceName: cfg.DeviceName,
		petName:    cfg.PetName,
	}
}

// SetIdentity updates the advertised names after an owner rename.
func (s *Service) SetIdentity(deviceName, petName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceName = deviceName
	s.petName = petName
}

// SendRequest asks a discovered peer to become a friend.
func (s *Service) SendRequest(ctx context.Context, peer transport.Peer) error {
	s.mu.Lock()

	if peer.DeviceName == s.deviceName {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeValidation, "cannot befriend yourself")
	}

	already, err := s.repo.IsFriend(peer.DeviceName)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if already {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeAlreadyExists, "already friends with this device")
	}

	if err := s.checkLimitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	payload := &transport.Payload{
		Type:           transport.TypeFriendRequest,
		FromDeviceName: s.deviceName,
		FromPetName:    s.petName,
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"from_ip":   transport.LocalIP(),
			"from_port": s.cfg.ListenPort,
		},
	}
	s.mu.Unlock()

	// The network call runs outside the lock.
	if !s.sender.Send(peer.Address, peer.Port, payload) {
		return errors.New(errors.ErrCodeUnreachable, "peer did not acknowledge the request")
	}

	logger.Info("Friend request sent", "to", peer.DeviceName)
	return nil
}

// ReceiveRequest records an incoming friend request. At most one
// request per peer may be pending; repeats are rejected so the
// original keeps its TTL.
func (s *Service) ReceiveRequest(payload *transport.Payload, remoteAddr string) error {
	deviceName := security.SanitizeName(payload.FromDeviceName, maxNameLength)
	petName := security.SanitizeName(payload.FromPetName, maxNameLength)
	if deviceName == "" {
		return errors.New(errors.ErrCodeValidation, "request sender name is empty")
	}

	address := payload.GetString("from_ip")
	if address == "" {
		address = remoteAddr
	}
	port := payload.GetInt("from_port")
	if port == 0 {
		port = s.cfg.ListenPort
	}

	s.mu.Lock()

	s.sweepExpiredLocked()

	if deviceName == s.deviceName {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeValidation, "request from own device name")
	}

	already, err := s.repo.IsFriend(deviceName)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if already {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeAlreadyExists, "already friends with this device")
	}

	if _, err := s.repo.GetRequest(deviceName); err == nil {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeAlreadyExists, "a request from this device is already pending")
	}

	now := time.Now().UTC()
	request := &models.FriendRequest{
		FromDeviceName: deviceName,
		FromPetName:    petName,
		Address:        address,
		Port:           port,
		Status:         models.RequestStatusPending,
		ReceivedAt:     now,
		ExpiresAt:      now.Add(s.cfg.RequestTTL),
	}
	if err := s.repo.CreateRequest(request); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	logger.Info("Friend request received", "from", deviceName)
	s.notifier.Publish(notify.KindFriendRequest, deviceName, map[string]interface{}{
		"pet_name": petName,
	})
	return nil
}

// Accept confirms a pending request. The friend row and the request
// resolution commit together; then the peer is told, best effort.
func (s *Service) Accept(fromDevice string) error {
	s.mu.Lock()

	s.sweepExpiredLocked()

	request, err := s.repo.GetRequest(fromDevice)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	now := time.Now().UTC()
	if request.IsExpired(now) {
		_ = s.repo.DeleteRequest(fromDevice)
		s.mu.Unlock()
		return errors.New(errors.ErrCodeExpired, "friend request has expired")
	}

	if err := s.checkLimitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	friend := &models.Friend{
		DeviceName: request.FromDeviceName,
		PetName:    request.FromPetName,
		Address:    request.Address,
		Port:       request.Port,
		AddedAt:    now,
		LastSeen:   &now,
	}
	if err := s.repo.AcceptRequest(fromDevice, friend); err != nil {
		s.mu.Unlock()
		return err
	}

	payload := &transport.Payload{
		Type:           transport.TypeFriendAccepted,
		FromDeviceName: s.deviceName,
		FromPetName:    s.petName,
		Timestamp:      now,
		Extra: map[string]interface{}{
			"from_ip":              transport.LocalIP(),
			"from_port":            s.cfg.ListenPort,
			"accepted_device_name": request.FromDeviceName,
		},
	}
	address, port := request.Address, request.Port
	s.mu.Unlock()

	if !s.sender.Send(address, port, payload) {
		// The friendship stands locally; the peer learns of it when it
		// next comes online and we reply to its traffic.
		logger.Warn("Could not notify peer of acceptance", "peer", fromDevice)
	}

	logger.Info("Friend request accepted", "peer", fromDevice)
	s.notifier.Publish(notify.KindFriendAdded, fromDevice, map[string]interface{}{
		"pet_name": friend.PetName,
	})
	return nil
}

// ReceiveAcceptance handles the peer's confirmation of a request this
// device sent earlier.
func (s *Service) ReceiveAcceptance(payload *transport.Payload, remoteAddr string) error {
	deviceName := security.SanitizeName(payload.FromDeviceName, maxNameLength)
	petName := security.SanitizeName(payload.FromPetName, maxNameLength)
	if deviceName == "" {
		return errors.New(errors.ErrCodeValidation, "acceptance sender name is empty")
	}

	address := payload.GetString("from_ip")
	if address == "" {
		address = remoteAddr
	}
	port := payload.GetInt("from_port")
	if port == 0 {
		port = s.cfg.ListenPort
	}

	s.mu.Lock()

	if target := payload.GetString("accepted_device_name"); target != "" && target != s.deviceName {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeValidation, "acceptance addressed to a different device")
	}

	already, err := s.repo.IsFriend(deviceName)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if already {
		s.mu.Unlock()
		return nil
	}

	if err := s.checkLimitLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	now := time.Now().UTC()
	friend := &models.Friend{
		DeviceName: deviceName,
		PetName:    petName,
		Address:    address,
		Port:       port,
		AddedAt:    now,
		LastSeen:   &now,
	}
	if err := s.repo.CreateFriend(friend); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	logger.Info("Friend request was accepted by peer", "peer", deviceName)
	s.notifier.Publish(notify.KindFriendAdded, deviceName, map[string]interface{}{
		"pet_name": petName,
	})
	return nil
}

// Reject deletes a pending request so the peer may ask again later.
func (s *Service) Reject(fromDevice string) error {
	s.mu.Lock()
	err := s.repo.DeleteRequest(fromDevice)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	logger.Info("Friend request rejected", "peer", fromDevice)
	return nil
}

// Remove ends a friendship.
func (s *Service) Remove(deviceName string) error {
	s.mu.Lock()
	err := s.repo.RemoveFriend(deviceName)
	s.mu.Unlock()

	if err != nil {
		return err
	}

	logger.Info("Friend removed", "peer", deviceName)
	s.notifier.Publish(notify.KindFriendRemoved, deviceName, nil)
	return nil
}

// List returns all confirmed friends.
func (s *Service) List() ([]models.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetFriends()
}

// Get returns one friend by device name.
func (s *Service) Get(deviceName string) (*models.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetFriend(deviceName)
}

// IsFriend reports whether a device is a confirmed friend.
func (s *Service) IsFriend(deviceName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.IsFriend(deviceName)
}

// PendingRequests returns live pending requests, sweeping expired ones
// first.
func (s *Service) PendingRequests() ([]models.FriendRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepExpiredLocked()
	return s.repo.GetPendingRequests()
}

// UpdateContact refreshes a friend's network location after discovery
// or inbound traffic.
func (s *Service) UpdateContact(deviceName, address string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.UpdateContact(deviceName, address, port, time.Now().UTC())
}

// TouchLastSeen records that a friend was just heard from.
func (s *Service) TouchLastSeen(deviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.TouchLastSeen(deviceName, time.Now().UTC())
}

func (s *Service) checkLimitLocked() error {
	count, err := s.repo.CountFriends()
	if err != nil {
		return err
	}
	if count >= int64(s.cfg.MaxFriends) {
		return errors.New(errors.ErrCodeLimitReached, "friend list is full")
	}
	return nil
}

func (s *Service) sweepExpiredLocked() {
	removed, err := s.repo.DeleteExpiredRequests(time.Now().UTC())
	if err != nil {
		logger.Warn("Failed to sweep expired requests", "error", err)
		return
	}
	if removed > 0 {
		logger.Debug("Expired friend requests removed", "count", removed)
	}
}

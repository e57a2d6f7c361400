package social

import (
	"context"
	"sync"

	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/dispatch"
	"github.com/pockpet/social/internal/friends"
	"github.com/pockpet/social/internal/games"
	"github.com/pockpet/social/internal/messaging"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/presence"
	"github.com/pockpet/social/internal/repositories"
	"github.com/pockpet/social/internal/security"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
	"gorm.io/gorm"
)

// FriendInfo pairs a friend with its last observed presence.
type FriendInfo struct {
	models.Friend
	Online bool
}

// Coordinator assembles the transport, discovery, dispatch and the
// domain services into the single object the device UI talks to.
type Coordinator struct {
	cfg       *config.Config
	transport *transport.Transport
	discovery *transport.Discovery
	registry  *dispatch.Registry
	notifier  *notify.Notifier
	presets   *repositories.PresetRepository

	Friends  *friends.Service
	Messages *messaging.Service
	Games    *games.Manager
	Presence *presence.Poller

	stopQueue  func()
	stopPoller func()

	mu      sync.Mutex
	started bool
}

func NewCoordinator(cfg *config.Config, db *gorm.DB) (*Coordinator, error) {
	tr := transport.NewTransport(cfg)
	discovery := transport.NewDiscovery(cfg)
	notifier := notify.NewNotifier(cfg.EventBuffer)

	friendRepo := repositories.NewFriendRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	gameRepo := repositories.NewGameRepository(db)
	presetRepo := repositories.NewPresetRepository(db)

	// Friends and messaging share one lock so that sequences spanning
	// both, like accepting a request then queueing a greeting, see a
	// consistent view. Messaging consults the friend store while it
	// holds that lock, so it gets the non-locking Directory view; the
	// mutex is not reentrant.
	shared := &sync.Mutex{}
	friendSvc := friends.NewService(shared, cfg, friendRepo, tr, discovery, notifier)
	messageSvc := messaging.NewService(shared, cfg, messageRepo, friendSvc.Directory(), tr, notifier)
	gameMgr := games.NewManager(cfg, gameRepo, friendSvc, tr, notifier)
	poller := presence.NewPoller(cfg, friendSvc, tr, notifier)

	c := &Coordinator{
		cfg:       cfg,
		transport: tr,
		discovery: discovery,
		registry:  dispatch.NewRegistry(),
		notifier:  notifier,
		presets:   presetRepo,
		Friends:   friendSvc,
		Messages:  messageSvc,
		Games:     gameMgr,
		Presence:  poller,
	}

	handlers := []dispatch.Handler{
		friends.NewRequestHandler(friendSvc),
		friends.NewAcceptedHandler(friendSvc),
		messaging.NewHandler(messageSvc),
	}
	for _, h := range games.Handlers(gameMgr) {
		handlers = append(handlers, h)
	}
	for _, h := range handlers {
		if err := c.registry.Register(h); err != nil {
			return nil, err
		}
	}

	// Any inbound payload proves the sender is alive at that address.
	tr.OnPayload(c.refreshContact)
	c.registry.Bind(tr)

	return c, nil
}

// refreshContact updates a known friend's address before dispatch.
func (c *Coordinator) refreshContact(payload *transport.Payload, remoteAddr string) {
	isFriend, err := c.Friends.IsFriend(payload.FromDeviceName)
	if err != nil || !isFriend {
		return
	}

	port := payload.GetInt("from_port")
	if port == 0 {
		if friend, err := c.Friends.Get(payload.FromDeviceName); err == nil && friend.Port != 0 {
			port = friend.Port
		} else {
			port = c.cfg.ListenPort
		}
	}

	if err := c.Friends.UpdateContact(payload.FromDeviceName, remoteAddr, port); err != nil {
		logger.Debug("Failed to refresh contact", "peer", payload.FromDeviceName, "error", err)
	}
}

// Start brings up the listener, the mDNS advertisement, the delivery
// queue and the presence poller.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	if err := c.transport.Start(); err != nil {
		return err
	}
	if err := c.discovery.Advertise(c.transport.Port()); err != nil {
		c.transport.Stop()
		return err
	}

	c.stopQueue = c.Messages.StartQueue()
	c.stopPoller = c.Presence.Start()
	c.started = true

	logger.Info("Social stack started", "device", c.cfg.DeviceName, "port", c.transport.Port())
	return nil
}

// Stop shuts everything down in reverse order.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.started = false

	c.stopPoller()
	c.stopQueue()
	c.discovery.Stop()
	c.transport.Stop()
	c.notifier.Close()

	logger.Info("Social stack stopped")
}

// Events is the notification stream for the device UI.
func (c *Coordinator) Events() <-chan notify.Event {
	return c.notifier.Events()
}

// Discover scans the local network for other devices.
func (c *Coordinator) Discover(ctx context.Context) ([]transport.Peer, error) {
	return c.discovery.Browse(ctx)
}

// SendFriendRequest finds a device on the network and asks to be
// friends.
func (c *Coordinator) SendFriendRequest(ctx context.Context, deviceName string) error {
	peer, err := c.discovery.Find(ctx, deviceName)
	if err != nil {
		return err
	}
	if peer == nil {
		return errors.New(errors.ErrCodeNotFound, "device not found on the network")
	}
	return c.Friends.SendRequest(ctx, *peer)
}

// RemoveFriend ends a friendship and clears the conversation with it.
func (c *Coordinator) RemoveFriend(deviceName string) error {
	if err := c.Friends.Remove(deviceName); err != nil {
		return err
	}
	return c.Messages.DeleteConversation(deviceName)
}

// ListFriends returns every friend with its presence state.
func (c *Coordinator) ListFriends() ([]FriendInfo, error) {
	list, err := c.Friends.List()
	if err != nil {
		return nil, err
	}

	snapshot := c.Presence.Snapshot()
	infos := make([]FriendInfo, len(list))
	for i, friend := range list {
		infos[i] = FriendInfo{Friend: friend, Online: snapshot[friend.DeviceName]}
	}
	return infos, nil
}

// Presets lists the canned phrases available for one-press sending.
func (c *Coordinator) Presets() ([]models.PresetPhrase, error) {
	return c.presets.List()
}

// SendPreset sends a canned phrase to a friend.
func (c *Coordinator) SendPreset(toDevice string, presetID uint) (string, error) {
	preset, err := c.presets.Get(presetID)
	if err != nil {
		return "", err
	}
	return c.Messages.Send(toDevice, preset.Text, models.ContentTypePreset)
}

// Rename changes the advertised identity while running. Friends learn
// the new name from the next payload they receive.
func (c *Coordinator) Rename(deviceName, petName string) error {
	deviceName = security.SanitizeName(deviceName, 50)
	petName = security.SanitizeName(petName, 50)
	if deviceName == "" {
		return errors.New(errors.ErrCodeValidation, "device name is empty")
	}

	if err := c.discovery.SetDeviceName(deviceName, petName); err != nil {
		return err
	}

	c.Friends.SetIdentity(deviceName, petName)
	c.Messages.SetIdentity(deviceName, petName)
	c.Games.SetIdentity(deviceName, petName)

	logger.Info("Device renamed", "device", deviceName, "pet", petName)
	return nil
}

package presence

import (
	"sync"
	"time"

	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/pkg/logger"
)

// FriendLister supplies the friends to watch.
type FriendLister interface {
	List() ([]models.Friend, error)
	TouchLastSeen(deviceName string) error
}

// Prober checks whether a peer accepts connections.
type Prober interface {
	IsReachable(address string, port int) bool
}

// Poller periodically probes every friend and emits edge-triggered
// online/offline events. A friend counts as online when it is reachable
// right now or was heard from within the online threshold.
type Poller struct {
	cfg      *config.Config
	friends  FriendLister
	prober   Prober
	notifier *notify.Notifier

	mu    sync.Mutex
	state map[string]bool
}

func NewPoller(cfg *config.Config, friends FriendLister, prober Prober, notifier *notify.Notifier) *Poller {
	return &Poller{
		cfg:      cfg,
		friends:  friends,
		prober:   prober,
		notifier: notifier,
		state:    make(map[string]bool),
	}
}

// Start launches the poll loop. The returned stop function blocks until
// the loop exits. Sleeps run in short slices so Stop is prompt even
// with a long poll interval.
func (p *Poller) Start() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			p.Poll()

			deadline := time.Now().Add(p.cfg.PollInterval)
			for time.Now().Before(deadline) {
				select {
				case <-done:
					return
				case <-time.After(500 * time.Millisecond):
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// Poll runs one probe cycle across all friends. A panic in a cycle is
// contained so the loop survives.
func (p *Poller) Poll() {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Presence poll cycle panicked", "panic", r)
		}
	}()

	friends, err := p.friends.List()
	if err != nil {
		logger.Warn("Failed to list friends for polling", "error", err)
		return
	}

	results := make([]bool, len(friends))
	sem := make(chan struct{}, p.cfg.PollWorkers)
	var wg sync.WaitGroup

	for i := range friends {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.probe(&friends[i])
		}(i)
	}
	wg.Wait()

	p.applyResults(friends, results)
}

func (p *Poller) probe(friend *models.Friend) bool {
	reachable := false
	if friend.Address != "" {
		reachable = p.prober.IsReachable(friend.Address, friend.Port)
	}

	if reachable {
		if err := p.friends.TouchLastSeen(friend.DeviceName); err != nil {
			logger.Debug("Failed to update last seen", "peer", friend.DeviceName, "error", err)
		}
		return true
	}

	// Recent traffic keeps a briefly unreachable friend online.
	if friend.LastSeen != nil && time.Since(*friend.LastSeen) < p.cfg.OnlineThreshold {
		return true
	}
	return false
}

func (p *Poller) applyResults(friends []models.Friend, results []bool) {
	type transition struct {
		peer   string
		online bool
	}
	var transitions []transition

	p.mu.Lock()
	current := make(map[string]bool, len(friends))
	for i := range friends {
		name := friends[i].DeviceName
		online := results[i]
		current[name] = online

		previous, known := p.state[name]
		if !known {
			// First observation only fires when the friend is there.
			if online {
				transitions = append(transitions, transition{name, true})
			}
			continue
		}
		if previous != online {
			transitions = append(transitions, transition{name, online})
		}
	}
	p.state = current
	p.mu.Unlock()

	for _, tr := range transitions {
		kind := notify.KindFriendOffline
		if tr.online {
			kind = notify.KindFriendOnline
		}
		logger.Info("Friend presence changed", "peer", tr.peer, "online", tr.online)
		p.notifier.Publish(kind, tr.peer, nil)
	}
}

// IsOnline reports the last observed state for a friend.
func (p *Poller) IsOnline(deviceName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[deviceName]
}

// Snapshot returns the last observed state of every watched friend.
func (p *Poller) Snapshot() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]bool, len(p.state))
	for name, online := range p.state {
		snapshot[name] = online
	}
	return snapshot
}

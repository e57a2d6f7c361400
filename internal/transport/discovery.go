package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/pkg/logger"
)

// Peer is a device found on the local network.
type Peer struct {
	DeviceName string
	PetName    string
	Address    string
	Port       int
}

// Discovery advertises this device over mDNS and browses for others.
type Discovery struct {
	cfg *config.Config

	mu         sync.Mutex
	server     *zeroconf.Server
	deviceName string
	petName    string
}

func NewDiscovery(cfg *config.Config) *Discovery {
	return &Discovery{
		cfg:        cfg,
		deviceName: cfg.DeviceName,
		petName:    cfg.PetName,
	}
}

// Advertise registers the mDNS service with the device and pet names in
// the TXT record.
func (d *Discovery) Advertise(port int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.advertiseLocked(port)
}

func (d *Discovery) advertiseLocked(port int) error {
	if d.server != nil {
		d.server.Shutdown()
		d.server = nil
	}

	txt := []string{
		"device_name=" + d.deviceName,
		"pet_name=" + d.petName,
	}

	server, err := zeroconf.Register(d.deviceName, d.cfg.ServiceType, "local.", port, txt, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	d.server = server
	logger.Info("Advertising on local network", "device", d.deviceName, "port", port)
	return nil
}

// SetDeviceName re-registers the service under a new identity, used
// when the owner renames the device while advertising.
func (d *Discovery) SetDeviceName(deviceName, petName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.deviceName = deviceName
	d.petName = petName

	if d.server == nil {
		return nil
	}
	return d.advertiseLocked(d.cfg.ListenPort)
}

// Stop withdraws the mDNS advertisement.
func (d *Discovery) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.server != nil {
		d.server.Shutdown()
		d.server = nil
		logger.Info("Stopped advertising")
	}
}

// Browse scans the local network for peers until the discovery timeout
// elapses. The local device is filtered out of the results.
func (d *Discovery) Browse(ctx context.Context) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var peers []Peer
	var collectWg sync.WaitGroup

	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for entry := range entries {
			peer := entryToPeer(entry)
			if peer == nil {
				continue
			}
			if peer.DeviceName == d.DeviceName() {
				continue
			}
			peers = append(peers, *peer)
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, d.cfg.DiscoveryTimeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, d.cfg.ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("failed to browse mDNS: %w", err)
	}

	<-browseCtx.Done()
	collectWg.Wait()

	logger.Debug("Discovery scan finished", "peers", len(peers))
	return peers, nil
}

// Find browses until a specific device is found or the timeout elapses.
func (d *Discovery) Find(ctx context.Context, deviceName string) (*Peer, error) {
	peers, err := d.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for i := range peers {
		if peers[i].DeviceName == deviceName {
			return &peers[i], nil
		}
	}
	return nil, nil
}

// DeviceName returns the currently advertised device name.
func (d *Discovery) DeviceName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deviceName
}

func entryToPeer(entry *zeroconf.ServiceEntry) *Peer {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return nil
	}

	peer := &Peer{
		DeviceName: entry.Instance,
		Address:    entry.AddrIPv4[0].String(),
		Port:       entry.Port,
	}

	for _, record := range entry.Text {
		if name, ok := strings.CutPrefix(record, "device_name="); ok {
			peer.DeviceName = name
		}
		if name, ok := strings.CutPrefix(record, "pet_name="); ok {
			peer.PetName = name
		}
	}

	if peer.DeviceName == "" {
		return nil
	}
	return peer
}

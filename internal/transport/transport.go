package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/pkg/logger"
)

// Callback is invoked for every accepted payload. Callbacks run on the
// connection goroutine after the ack is written, so a slow callback
// never delays the sender.
type Callback func(payload *Payload, remoteAddr string)

// Transport exchanges one JSON payload per TCP connection. The sender
// writes its document and half-closes; the receiver reads to EOF,
// answers with an ack, then dispatches.
type Transport struct {
	cfg       *config.Config
	listener  net.Listener
	callbacks []Callback

	mu      sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}
	started bool
}

func NewTransport(cfg *config.Config) *Transport {
	return &Transport{cfg: cfg}
}

// OnPayload registers a callback for accepted payloads. Must be called
// before Start.
func (t *Transport) OnPayload(cb Callback) {
	t.callbacks = append(t.callbacks, cb)
}

// Start begins accepting connections on the configured port.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return nil
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", t.cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", t.cfg.ListenPort, err)
	}

	t.listener = listener
	t.done = make(chan struct{})
	t.started = true

	t.wg.Add(1)
	go t.acceptLoop()

	logger.Info("Transport listening", "port", t.cfg.ListenPort)
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.done)
	t.listener.Close()
	t.mu.Unlock()

	t.wg.Wait()
	logger.Info("Transport stopped")
}

// Port returns the bound port, useful when the configured port is 0.
func (t *Transport) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return t.cfg.ListenPort
	}
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return t.cfg.ListenPort
}

func (t *Transport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			logger.Warn("Accept failed", "error", err)
			continue
		}

		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

func (t *Transport) handleConnection(conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(t.cfg.ConnectionTimeout))

	// The sender half-closes after writing, so reading to EOF yields
	// exactly one document. LimitReader caps hostile payloads.
	data, err := io.ReadAll(io.LimitReader(conn, int64(t.cfg.MaxPayloadBytes)+1))
	if err != nil {
		logger.Warn("Failed to read payload", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	if len(data) > t.cfg.MaxPayloadBytes {
		logger.Warn("Payload exceeds size cap", "remote", conn.RemoteAddr().String(), "bytes", len(data))
		return
	}

	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warn("Failed to decode payload", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	if err := payload.Validate(); err != nil {
		logger.Warn("Invalid payload", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	ack := Ack{Status: AckStatusReceived, Timestamp: time.Now().UTC()}
	ackBytes, _ := json.Marshal(ack)
	if _, err := conn.Write(ackBytes); err != nil {
		logger.Warn("Failed to write ack", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}

	remoteHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	for _, cb := range t.callbacks {
		t.invoke(cb, &payload, remoteHost)
	}
}

// invoke runs a single callback with panic isolation so one bad handler
// cannot take down the connection worker.
func (t *Transport) invoke(cb Callback, payload *Payload, remoteAddr string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Payload callback panicked", "type", payload.Type, "panic", r)
		}
	}()
	cb(payload, remoteAddr)
}

// Send delivers one payload to address:port and reports whether the
// peer acknowledged it. All failures return false; the caller decides
// whether to queue a retry.
func (t *Transport) Send(address string, port int, payload *Payload) bool {
	target := net.JoinHostPort(address, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", target, t.cfg.ConnectionTimeout)
	if err != nil {
		logger.Debug("Failed to connect to peer", "target", target, "error", err)
		return false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(t.cfg.ConnectionTimeout))

	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to encode payload", "type", payload.Type, "error", err)
		return false
	}

	if _, err := conn.Write(data); err != nil {
		logger.Debug("Failed to write payload", "target", target, "error", err)
		return false
	}

	// Half-close signals end of document to the receiver.
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			logger.Debug("Failed to half-close connection", "target", target, "error", err)
			return false
		}
	}

	ackBytes, err := io.ReadAll(io.LimitReader(conn, 1024))
	if err != nil || len(ackBytes) == 0 {
		logger.Debug("No ack from peer", "target", target, "error", err)
		return false
	}

	var ack Ack
	if err := json.Unmarshal(ackBytes, &ack); err != nil {
		logger.Debug("Malformed ack from peer", "target", target, "error", err)
		return false
	}

	return ack.Status == AckStatusReceived
}

// IsReachable probes whether a peer accepts TCP connections, without
// sending a payload.
func (t *Transport) IsReachable(address string, port int) bool {
	target := net.JoinHostPort(address, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", target, t.cfg.ProbeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

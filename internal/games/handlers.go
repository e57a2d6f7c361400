package games

import (
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/logger"
)

// handler adapts one manager method to the dispatch interface.
type handler struct {
	payloadType string
	fn          func(payload *transport.Payload, remoteAddr string) error
}

func (h *handler) Type() string { return h.payloadType }

func (h *handler) Handle(payload *transport.Payload, remoteAddr string) bool {
	if err := h.fn(payload, remoteAddr); err != nil {
		logger.Debug("Game payload not processed", "type", h.payloadType, "from", payload.FromDeviceName, "error", err)
		return false
	}
	return true
}

// Handler is implemented by the dispatch registry entries this package
// exports.
type Handler interface {
	Type() string
	Handle(payload *transport.Payload, remoteAddr string) bool
}

// Handlers returns one dispatch handler per game payload type.
func Handlers(m *Manager) []Handler {
	return []Handler{
		&handler{transport.TypeGameInvite, m.ReceiveInvite},
		&handler{transport.TypeGameAccept, m.ReceiveAccept},
		&handler{transport.TypeGameDecline, m.ReceiveDecline},
		&handler{transport.TypeGameCancel, m.ReceiveCancel},
		&handler{transport.TypeGameMove, m.ReceiveMove},
		&handler{transport.TypeGameForfeit, m.ReceiveForfeit},
		&handler{transport.TypeGameSync, m.ReceiveSync},
	}
}

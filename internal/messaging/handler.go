package messaging

import (
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/logger"
)

// Handler routes message payloads to the service.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Type() string {
	return transport.TypeMessage
}

func (h *Handler) Handle(payload *transport.Payload, remoteAddr string) bool {
	if err := h.service.Receive(payload, remoteAddr); err != nil {
		logger.Warn("Inbound message dropped", "from", payload.FromDeviceName, "error", err)
		return false
	}
	return true
}

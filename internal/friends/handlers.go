package friends

import (
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/logger"
)

// RequestHandler routes friend_request payloads to the service.
type RequestHandler struct {
	service *Service
}

func NewRequestHandler(service *Service) *RequestHandler {
	return &RequestHandler{service: service}
}

func (h *RequestHandler) Type() string {
	return transport.TypeFriendRequest
}

func (h *RequestHandler) Handle(payload *transport.Payload, remoteAddr string) bool {
	if err := h.service.ReceiveRequest(payload, remoteAddr); err != nil {
		logger.Warn("Friend request not accepted for processing", "from", payload.FromDeviceName, "error", err)
		return false
	}
	return true
}

// AcceptedHandler routes friend_request_accepted payloads to the service.
type AcceptedHandler struct {
	service *Service
}

func NewAcceptedHandler(service *Service) *AcceptedHandler {
	return &AcceptedHandler{service: service}
}

func (h *AcceptedHandler) Type() string {
	return transport.TypeFriendAccepted
}

func (h *AcceptedHandler) Handle(payload *transport.Payload, remoteAddr string) bool {
	if err := h.service.ReceiveAcceptance(payload, remoteAddr); err != nil {
		logger.Warn("Friend acceptance not processed", "from", payload.FromDeviceName, "error", err)
		return false
	}
	return true
}

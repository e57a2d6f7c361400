package transport

import (
	"encoding/json"
	"time"

	"github.com/pockpet/social/pkg/errors"
)

// Wire payload types
const (
	TypeFriendRequest  = "friend_request"
	TypeFriendAccepted = "friend_request_accepted"
	TypeMessage        = "message"
	TypeGameInvite     = "game_invite"
	TypeGameAccept     = "game_accept"
	TypeGameDecline    = "game_decline"
	TypeGameCancel     = "game_cancel"
	TypeGameMove       = "game_move"
	TypeGameForfeit    = "game_forfeit"
	TypeGameSync       = "game_sync"
)

// Payload is the single JSON document exchanged per connection. Type
// selects the handler; Extra carries the type-specific fields.
type Payload struct {
	Type           string                 `json:"type"`
	FromDeviceName string                 `json:"from_device_name"`
	FromPetName    string                 `json:"from_pet_name,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Extra          map[string]interface{} `json:"-"`
}

// Ack is written back by the receiver once the payload is accepted.
type Ack struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

const AckStatusReceived = "received"

// MarshalJSON flattens Extra into the top-level object.
func (p *Payload) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	out["type"] = p.Type
	out["from_device_name"] = p.FromDeviceName
	if p.FromPetName != "" {
		out["from_pet_name"] = p.FromPetName
	}
	out["timestamp"] = p.Timestamp.UTC().Format(time.RFC3339)
	return json.Marshal(out)
}

// UnmarshalJSON splits the known envelope fields from the rest, which
// land in Extra.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["type"].(string); ok {
		p.Type = v
	}
	if v, ok := raw["from_device_name"].(string); ok {
		p.FromDeviceName = v
	}
	if v, ok := raw["from_pet_name"].(string); ok {
		p.FromPetName = v
	}
	if v, ok := raw["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			p.Timestamp = ts
		}
	}

	delete(raw, "type")
	delete(raw, "from_device_name")
	delete(raw, "from_pet_name")
	delete(raw, "timestamp")
	p.Extra = raw
	return nil
}

// GetString reads a string field from Extra.
func (p *Payload) GetString(key string) string {
	if p.Extra == nil {
		return ""
	}
	if v, ok := p.Extra[key].(string); ok {
		return v
	}
	return ""
}

// GetInt reads an integer field from Extra. JSON numbers decode as
// float64, so both forms are accepted.
func (p *Payload) GetInt(key string) int {
	if p.Extra == nil {
		return 0
	}
	switch v := p.Extra[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// GetBool reads a boolean field from Extra.
func (p *Payload) GetBool(key string) bool {
	if p.Extra == nil {
		return false
	}
	if v, ok := p.Extra[key].(bool); ok {
		return v
	}
	return false
}

// Validate checks the envelope fields every payload must carry.
func (p *Payload) Validate() error {
	if p.Type == "" {
		return errors.New(errors.ErrCodeValidation, "payload type is required")
	}
	if p.FromDeviceName == "" {
		return errors.New(errors.ErrCodeValidation, "payload sender is required")
	}
	return nil
}

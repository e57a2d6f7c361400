package games

import (
	"sync"

	"github.com/pockpet/social/pkg/errors"
)

// Role of either side in a session.
const (
	RoleInitiator = "initiator"
	RoleInvitee   = "invitee"
)

// State is one engine's in-progress game data. Engines define their own
// concrete type; the manager treats it as opaque and round-trips it
// through Serialize for persistence and the sync protocol.
type State interface{}

// Engine implements the rules of one game type. The manager owns the
// session lifecycle; the engine owns everything about positions and
// moves, including whose turn it is.
type Engine interface {
	Name() string

	// NewState returns the starting position.
	NewState() State

	// ValidateMove checks a move for a role against the current state,
	// including the game's turn discipline.
	ValidateMove(state State, role, move string) error

	// ApplyMove returns the state after a validated move. The input
	// state is not modified.
	ApplyMove(state State, role, move string) (State, error)

	// GameOver reports whether the game ended, the winning role and
	// whether it was a draw. winnerRole is empty unless the game is
	// over and not drawn.
	GameOver(state State) (over bool, winnerRole string, draw bool)

	// IsMyTurn reports whether a role may act on the current state.
	IsMyTurn(state State, role string) bool

	// DisplayState renders the state from one role's point of view,
	// hiding whatever that role is not allowed to see yet.
	DisplayState(state State, role string) string

	// Serialize and Deserialize round-trip the state for the session
	// record and for game_sync payloads.
	Serialize(state State) (string, error)
	Deserialize(data string) (State, error)

	// Merge reconciles this device's state with a peer's view received
	// over game_sync. Local knowledge wins on conflict.
	Merge(local, remote State) (State, error)
}

var (
	enginesMu sync.RWMutex
	engines   = make(map[string]Engine)
)

// RegisterEngine makes a game type available for sessions. Registering
// the same name twice panics, mirroring database/sql driver semantics.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()

	if _, dup := engines[e.Name()]; dup {
		panic("games: RegisterEngine called twice for " + e.Name())
	}
	engines[e.Name()] = e
}

// GetEngine looks up the rules for a game type.
func GetEngine(name string) (Engine, error) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()

	e, ok := engines[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "unknown game type "+name)
	}
	return e, nil
}

// EngineNames lists the registered game types.
func EngineNames() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()

	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	return names
}

func otherRole(role string) string {
	if role == RoleInitiator {
		return RoleInvitee
	}
	return RoleInitiator
}

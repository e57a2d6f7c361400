package games

import (
	"encoding/json"

	"github.com/pockpet/social/pkg/errors"
)

// GameTypeRPS is the built-in rock paper scissors game.
const GameTypeRPS = "rock_paper_scissors"

// RPS moves
const (
	MoveRock     = "rock"
	MovePaper    = "paper"
	MoveScissors = "scissors"
)

var rpsBeats = map[string]string{
	MoveRock:     MoveScissors,
	MovePaper:    MoveRock,
	MoveScissors: MovePaper,
}

// rpsState records the committed move per role. Both sides commit once,
// in any order; the round resolves when both moves are in.
type rpsState struct {
	Moves map[string]string `json:"moves"`
}

type rpsEngine struct{}

func (rpsEngine) Name() string { return GameTypeRPS }

func (rpsEngine) NewState() State {
	return &rpsState{Moves: make(map[string]string)}
}

func (rpsEngine) ValidateMove(state State, role, move string) error {
	s, ok := state.(*rpsState)
	if !ok {
		return errors.New(errors.ErrCodeInternalError, "not a rock paper scissors state")
	}
	if _, known := rpsBeats[move]; !known {
		return errors.New(errors.ErrCodeValidation, "invalid move "+move)
	}
	if _, committed := s.Moves[role]; committed {
		return errors.New(errors.ErrCodeAlreadyExists, "move already made")
	}
	return nil
}

func (e rpsEngine) ApplyMove(state State, role, move string) (State, error) {
	if err := e.ValidateMove(state, role, move); err != nil {
		return nil, err
	}
	s := state.(*rpsState)

	next := &rpsState{Moves: make(map[string]string, len(s.Moves)+1)}
	for r, m := range s.Moves {
		next.Moves[r] = m
	}
	next.Moves[role] = move
	return next, nil
}

func (rpsEngine) GameOver(state State) (bool, string, bool) {
	s, ok := state.(*rpsState)
	if !ok {
		return false, "", false
	}
	initiator, a := s.Moves[RoleInitiator]
	invitee, b := s.Moves[RoleInvitee]
	if !a || !b {
		return false, "", false
	}
	if initiator == invitee {
		return true, "", true
	}
	if rpsBeats[initiator] == invitee {
		return true, RoleInitiator, false
	}
	return true, RoleInvitee, false
}

// IsMyTurn is the commit gate: a role may act until its move is in.
func (rpsEngine) IsMyTurn(state State, role string) bool {
	s, ok := state.(*rpsState)
	if !ok {
		return false
	}
	_, committed := s.Moves[role]
	return !committed
}

func (e rpsEngine) DisplayState(state State, role string) string {
	s, ok := state.(*rpsState)
	if !ok {
		return ""
	}

	mine := s.Moves[role]
	over, winnerRole, draw := e.GameOver(state)
	if over {
		theirs := s.Moves[otherRole(role)]
		switch {
		case draw:
			return "Draw: both played " + mine
		case winnerRole == role:
			return "You win: " + mine + " beats " + theirs
		default:
			return "You lose: " + theirs + " beats " + mine
		}
	}
	// The opponent's committed move stays hidden until the round ends.
	if mine != "" {
		return "You played " + mine + ", waiting for the opponent"
	}
	return "Choose rock, paper or scissors"
}

func (rpsEngine) Serialize(state State) (string, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternalError, "failed to serialize game state")
	}
	return string(data), nil
}

func (rpsEngine) Deserialize(data string) (State, error) {
	s := &rpsState{}
	if err := json.Unmarshal([]byte(data), s); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "malformed game state")
	}
	if s.Moves == nil {
		s.Moves = make(map[string]string)
	}
	return s, nil
}

func (rpsEngine) Merge(local, remote State) (State, error) {
	l, lok := local.(*rpsState)
	r, rok := remote.(*rpsState)
	if !lok || !rok {
		return nil, errors.New(errors.ErrCodeInternalError, "not a rock paper scissors state")
	}

	merged := &rpsState{Moves: make(map[string]string, 2)}
	for role, move := range r.Moves {
		if _, known := rpsBeats[move]; known {
			merged.Moves[role] = move
		}
	}
	for role, move := range l.Moves {
		merged.Moves[role] = move
	}
	return merged, nil
}

func init() {
	RegisterEngine(rpsEngine{})
}

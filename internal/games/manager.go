package games

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/repositories"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
)

// Sender delivers one payload to a peer and reports acknowledgement.
type Sender interface {
	Send(address string, port int, payload *transport.Payload) bool
}

// FriendDirectory is the slice of the friends service the manager needs.
type FriendDirectory interface {
	IsFriend(deviceName string) (bool, error)
	Get(deviceName string) (*models.Friend, error)
}

// Session is the live state of the one active game. A pending session
// is an unanswered invite this device sent; it expires at ExpiresAt.
type Session struct {
	SessionID string
	GameType  string
	Peer      string
	Role      string
	Status    string
	StartedAt time.Time
	ExpiresAt time.Time

	state     State
	moveCount int
}

// Invite is a queued incoming game invitation. ExpiresAt comes from the
// sender so both sides agree on the deadline.
type Invite struct {
	SessionID  string
	GameType   string
	From       string
	FromPet    string
	ReceivedAt time.Time
	ExpiresAt  time.Time
}

// Manager runs game sessions against peers. At most one session is
// active at a time; further incoming invites queue until the owner
// deals with them or they expire. The engine's state is kept in memory
// and mirrored to the session record after every change.
type Manager struct {
	cfg      *config.Config
	repo     *repositories.GameRepository
	friends  FriendDirectory
	sender   Sender
	notifier *notify.Notifier

	mu         sync.Mutex
	active     *Session
	invites    []Invite
	deviceName string
	petName    string
}

func NewManager(
	cfg *config.Config,
	repo *repositories.GameRepository,
	friends FriendDirectory,
	sender Sender,
	notifier *notify.Notifier,
) *Manager {
	return &Manager{
		cfg:        cfg,
		repo:       repo,
		friends:    friends,
		sender:     sender,
		notifier:   notifier,
		deviceName: cfg.DeviceName,
		petName:    cfg.PetName,
	}
}

// SetIdentity updates the names stamped on outgoing payloads.
func (m *Manager) SetIdentity(deviceName, petName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deviceName = deviceName
	m.petName = petName
}

// Invite challenges a friend to a game. The pending session occupies
// the active slot until the peer answers or the invite expires.
func (m *Manager) Invite(peer, gameType string) (string, error) {
	engine, err := GetEngine(gameType)
	if err != nil {
		return "", err
	}

	isFriend, err := m.friends.IsFriend(peer)
	if err != nil {
		return "", err
	}
	if !isFriend {
		return "", errors.New(errors.ErrCodeNotFriend, "can only play with friends")
	}

	friend, err := m.friends.Get(peer)
	if err != nil {
		return "", err
	}
	if friend.Address == "" {
		return "", errors.New(errors.ErrCodeUnreachable, "no known address for peer")
	}

	now := time.Now().UTC()

	m.mu.Lock()
	m.expirePendingLocked(now)
	if m.active != nil {
		m.mu.Unlock()
		return "", errors.New(errors.ErrCodeSessionActive, "a game is already in progress")
	}

	sessionID := uuid.NewString()
	expiresAt := now.Add(m.cfg.InviteTTL)
	session := &Session{
		SessionID: sessionID,
		GameType:  gameType,
		Peer:      peer,
		Role:      RoleInitiator,
		Status:    models.GameStatusPending,
		StartedAt: now,
		ExpiresAt: expiresAt,
		state:     engine.NewState(),
	}
	m.active = session
	serialized, serr := engine.Serialize(session.state)
	payload := m.payloadLocked(transport.TypeGameInvite, map[string]interface{}{
		"game_session_id": sessionID,
		"game_type":       gameType,
		"expires_at":      expiresAt.Format(time.RFC3339),
	})
	m.mu.Unlock()

	if !m.sender.Send(friend.Address, friend.Port, payload) {
		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		return "", errors.New(errors.ErrCodeUnreachable, "peer did not acknowledge the invite")
	}

	if serr != nil {
		logger.Warn("Failed to serialize game state", "session_id", sessionID, "error", serr)
	}
	if err := m.repo.CreateSession(&models.GameSessionRecord{
		SessionID: sessionID,
		GameType:  gameType,
		PeerName:  peer,
		Role:      models.RoleInitiator,
		Status:    models.GameStatusPending,
		State:     serialized,
		StartedAt: now,
	}); err != nil {
		logger.Warn("Failed to persist game session", "session_id", sessionID, "error", err)
	}

	logger.Info("Game invite sent", "peer", peer, "game", gameType)
	return sessionID, nil
}

// ReceiveInvite queues an incoming invitation from a friend. The
// sender's deadline is honored; an invite that arrives already expired
// is refused.
func (m *Manager) ReceiveInvite(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")
	gameType := payload.GetString("game_type")
	if sessionID == "" || gameType == "" {
		return errors.New(errors.ErrCodeValidation, "invite is missing game_session_id or game_type")
	}
	if _, err := GetEngine(gameType); err != nil {
		return err
	}

	isFriend, err := m.friends.IsFriend(payload.FromDeviceName)
	if err != nil {
		return err
	}
	if !isFriend {
		return errors.New(errors.ErrCodeNotFriend, "invite from non-friend dropped")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.cfg.InviteTTL)
	if raw := payload.GetString("expires_at"); raw != "" {
		parsed, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return errors.New(errors.ErrCodeValidation, "malformed expires_at")
		}
		expiresAt = parsed
	}
	if !now.Before(expiresAt) {
		return errors.New(errors.ErrCodeExpired, "invite has already expired")
	}

	m.mu.Lock()
	m.pruneInvitesLocked(now)

	for _, inv := range m.invites {
		if inv.SessionID == sessionID {
			m.mu.Unlock()
			return nil
		}
	}

	m.invites = append(m.invites, Invite{
		SessionID:  sessionID,
		GameType:   gameType,
		From:       payload.FromDeviceName,
		FromPet:    payload.FromPetName,
		ReceivedAt: now,
		ExpiresAt:  expiresAt,
	})
	m.mu.Unlock()

	logger.Info("Game invite received", "from", payload.FromDeviceName, "game", gameType)
	m.notifier.Publish(notify.KindGameInvite, payload.FromDeviceName, map[string]interface{}{
		"session_id": sessionID,
		"game_type":  gameType,
	})
	return nil
}

// AcceptInvite starts a queued game. Fails while another session is
// active; the invite stays queued for later unless it expires first.
func (m *Manager) AcceptInvite(sessionID string) error {
	now := time.Now().UTC()

	m.mu.Lock()
	m.expirePendingLocked(now)
	m.pruneInvitesLocked(now)

	if m.active != nil {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeSessionActive, "a game is already in progress")
	}

	idx := -1
	for i, inv := range m.invites {
		if inv.SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "invite not found or expired")
	}

	invite := m.invites[idx]
	m.invites = append(m.invites[:idx], m.invites[idx+1:]...)

	engine, err := GetEngine(invite.GameType)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	m.active = &Session{
		SessionID: invite.SessionID,
		GameType:  invite.GameType,
		Peer:      invite.From,
		Role:      RoleInvitee,
		Status:    models.GameStatusActive,
		StartedAt: now,
		state:     engine.NewState(),
	}
	serialized, serr := engine.Serialize(m.active.state)
	payload := m.payloadLocked(transport.TypeGameAccept, map[string]interface{}{
		"game_session_id": invite.SessionID,
	})
	m.mu.Unlock()

	friend, err := m.friends.Get(invite.From)
	if err != nil || friend.Address == "" || !m.sender.Send(friend.Address, friend.Port, payload) {
		m.mu.Lock()
		m.active = nil
		m.mu.Unlock()
		return errors.New(errors.ErrCodeUnreachable, "could not reach the inviter")
	}

	if serr != nil {
		logger.Warn("Failed to serialize game state", "session_id", invite.SessionID, "error", serr)
	}
	if err := m.repo.CreateSession(&models.GameSessionRecord{
		SessionID: invite.SessionID,
		GameType:  invite.GameType,
		PeerName:  invite.From,
		Role:      models.RoleInvitee,
		Status:    models.GameStatusActive,
		State:     serialized,
		StartedAt: now,
	}); err != nil {
		logger.Warn("Failed to persist game session", "session_id", invite.SessionID, "error", err)
	}

	logger.Info("Game started", "peer", invite.From, "game", invite.GameType)
	m.notifier.Publish(notify.KindGameStarted, invite.From, map[string]interface{}{
		"session_id": invite.SessionID,
		"game_type":  invite.GameType,
	})
	return nil
}

// ReceiveAccept activates the session this device initiated.
func (m *Manager) ReceiveAccept(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")

	m.mu.Lock()
	m.expirePendingLocked(time.Now().UTC())
	if m.active == nil || m.active.SessionID != sessionID || m.active.Role != RoleInitiator {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no pending session for acceptance")
	}
	m.active.Status = models.GameStatusActive
	peer, gameType := m.active.Peer, m.active.GameType
	m.mu.Unlock()

	if err := m.repo.UpdateStatus(sessionID, models.GameStatusActive); err != nil {
		logger.Warn("Failed to activate game session", "session_id", sessionID, "error", err)
	}

	logger.Info("Game invite accepted", "peer", peer, "game", gameType)
	m.notifier.Publish(notify.KindGameStarted, peer, map[string]interface{}{
		"session_id": sessionID,
		"game_type":  gameType,
	})
	return nil
}

// DeclineInvite refuses a queued invitation.
func (m *Manager) DeclineInvite(sessionID string) error {
	m.mu.Lock()
	idx := -1
	for i, inv := range m.invites {
		if inv.SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "invite not found")
	}
	invite := m.invites[idx]
	m.invites = append(m.invites[:idx], m.invites[idx+1:]...)
	payload := m.payloadLocked(transport.TypeGameDecline, map[string]interface{}{
		"game_session_id": sessionID,
	})
	m.mu.Unlock()

	if friend, err := m.friends.Get(invite.From); err == nil && friend.Address != "" {
		m.sender.Send(friend.Address, friend.Port, payload)
	}

	logger.Info("Game invite declined", "peer", invite.From)
	return nil
}

// ReceiveDecline clears the pending session the peer refused.
func (m *Manager) ReceiveDecline(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")

	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no session for decline")
	}
	peer := m.active.Peer
	m.active = nil
	m.mu.Unlock()

	now := time.Now().UTC()
	if err := m.repo.FinishSession(sessionID, models.GameStatusDeclined, "", now); err != nil {
		logger.Warn("Failed to record declined session", "session_id", sessionID, "error", err)
	}

	logger.Info("Game invite was declined", "peer", peer)
	m.notifier.Publish(notify.KindGameDeclined, peer, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// Cancel withdraws a pending invite this device sent.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	m.expirePendingLocked(time.Now().UTC())
	if m.active == nil || m.active.Status != models.GameStatusPending || m.active.Role != RoleInitiator {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no pending invite to cancel")
	}
	session := m.active
	m.active = nil
	payload := m.payloadLocked(transport.TypeGameCancel, map[string]interface{}{
		"game_session_id": session.SessionID,
	})
	m.mu.Unlock()

	if friend, err := m.friends.Get(session.Peer); err == nil && friend.Address != "" {
		m.sender.Send(friend.Address, friend.Port, payload)
	}

	now := time.Now().UTC()
	if err := m.repo.FinishSession(session.SessionID, models.GameStatusCancelled, "", now); err != nil {
		logger.Warn("Failed to record cancelled session", "session_id", session.SessionID, "error", err)
	}

	logger.Info("Game invite cancelled", "peer", session.Peer)
	return nil
}

// ReceiveCancel drops the matching queued invite.
func (m *Manager) ReceiveCancel(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")

	m.mu.Lock()
	idx := -1
	for i, inv := range m.invites {
		if inv.SessionID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no queued invite for cancel")
	}
	invite := m.invites[idx]
	m.invites = append(m.invites[:idx], m.invites[idx+1:]...)
	m.mu.Unlock()

	logger.Info("Game invite withdrawn by peer", "peer", invite.From)
	m.notifier.Publish(notify.KindGameCancelled, invite.From, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// Move submits this device's move for the active session. The state
// only advances once the peer acknowledges the payload.
func (m *Manager) Move(move string) error {
	m.mu.Lock()
	if m.active == nil || m.active.Status != models.GameStatusActive {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no active game")
	}

	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := engine.ValidateMove(m.active.state, m.active.Role, move); err != nil {
		m.mu.Unlock()
		return err
	}

	sessionID := m.active.SessionID
	peer := m.active.Peer
	payload := m.payloadLocked(transport.TypeGameMove, map[string]interface{}{
		"game_session_id": sessionID,
		"move_number":     m.active.moveCount + 1,
		"move_data":       move,
	})
	m.mu.Unlock()

	friend, ferr := m.friends.Get(peer)
	if ferr != nil || friend.Address == "" || !m.sender.Send(friend.Address, friend.Port, payload) {
		return errors.New(errors.ErrCodeUnreachable, "peer did not acknowledge the move")
	}

	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return nil
	}
	// Re-apply against the current state; the peer's move may have
	// arrived while the send was in flight.
	next, aerr := engine.ApplyMove(m.active.state, m.active.Role, move)
	if aerr != nil {
		m.mu.Unlock()
		return aerr
	}
	m.active.state = next
	m.active.moveCount++
	m.persistStateLocked(engine)
	m.mu.Unlock()

	m.finishIfOver(sessionID)
	return nil
}

// ReceiveMove applies the peer's move to the active session.
func (m *Manager) ReceiveMove(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")
	move := payload.GetString("move_data")

	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID || m.active.Status != models.GameStatusActive {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no active session for move")
	}

	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	peerRole := otherRole(m.active.Role)
	if err := engine.ValidateMove(m.active.state, peerRole, move); err != nil {
		m.mu.Unlock()
		// A redelivered move was applied already; keep the ack quiet.
		if errors.Code(err) == errors.ErrCodeAlreadyExists {
			return nil
		}
		return err
	}
	next, err := engine.ApplyMove(m.active.state, peerRole, move)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.active.state = next
	m.active.moveCount++
	m.persistStateLocked(engine)
	peer := m.active.Peer
	m.mu.Unlock()

	m.notifier.Publish(notify.KindGameMove, peer, map[string]interface{}{
		"session_id": sessionID,
	})
	m.finishIfOver(sessionID)
	return nil
}

// Forfeit gives up the active session. The forfeiter loses.
func (m *Manager) Forfeit() error {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no active game")
	}
	session := m.active
	m.active = nil
	payload := m.payloadLocked(transport.TypeGameForfeit, map[string]interface{}{
		"game_session_id": session.SessionID,
		"reason":          "forfeit",
	})
	m.mu.Unlock()

	if friend, err := m.friends.Get(session.Peer); err == nil && friend.Address != "" {
		m.sender.Send(friend.Address, friend.Port, payload)
	}

	now := time.Now().UTC()
	if err := m.repo.FinishSession(session.SessionID, models.GameStatusForfeited, session.Peer, now); err != nil {
		logger.Warn("Failed to record forfeit", "session_id", session.SessionID, "error", err)
	}

	logger.Info("Game forfeited", "peer", session.Peer)
	m.notifier.Publish(notify.KindGameOver, session.Peer, map[string]interface{}{
		"session_id": session.SessionID,
		"winner":     session.Peer,
		"forfeit":    true,
	})
	return nil
}

// ReceiveForfeit ends the session in this device's favor.
func (m *Manager) ReceiveForfeit(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")
	reason := payload.GetString("reason")

	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no session for forfeit")
	}
	session := m.active
	m.active = nil
	deviceName := m.deviceName
	m.mu.Unlock()

	now := time.Now().UTC()
	if err := m.repo.FinishSession(sessionID, models.GameStatusForfeited, deviceName, now); err != nil {
		logger.Warn("Failed to record forfeit", "session_id", sessionID, "error", err)
	}

	logger.Info("Peer forfeited the game", "peer", session.Peer, "reason", reason)
	m.notifier.Publish(notify.KindGameOver, session.Peer, map[string]interface{}{
		"session_id": sessionID,
		"winner":     deviceName,
		"forfeit":    true,
	})
	return nil
}

// SendSync asks the peer to reconcile state, carrying this device's
// serialized view. Used after reconnecting mid-game.
func (m *Manager) SendSync() error {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no active game")
	}
	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	serialized, err := engine.Serialize(m.active.state)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	peer := m.active.Peer
	payload := m.payloadLocked(transport.TypeGameSync, map[string]interface{}{
		"game_session_id": m.active.SessionID,
		"game_type":       m.active.GameType,
		"game_state":      serialized,
		"is_request":      true,
	})
	m.mu.Unlock()

	friend, ferr := m.friends.Get(peer)
	if ferr != nil || friend.Address == "" || !m.sender.Send(friend.Address, friend.Port, payload) {
		return errors.New(errors.ErrCodeUnreachable, "could not sync with peer")
	}
	return nil
}

// ReceiveSync merges the peer's view into the local state and, for a
// sync request, answers with this device's own view.
func (m *Manager) ReceiveSync(payload *transport.Payload, remoteAddr string) error {
	sessionID := payload.GetString("game_session_id")
	remoteState := payload.GetString("game_state")
	isRequest := payload.GetBool("is_request")

	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return errors.New(errors.ErrCodeNotFound, "no session for sync")
	}

	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if remoteState != "" {
		remote, derr := engine.Deserialize(remoteState)
		if derr != nil {
			m.mu.Unlock()
			return derr
		}
		merged, merr := engine.Merge(m.active.state, remote)
		if merr != nil {
			m.mu.Unlock()
			return merr
		}
		m.active.state = merged
		m.persistStateLocked(engine)
	}

	var reply *transport.Payload
	peer := m.active.Peer
	if isRequest {
		if serialized, serr := engine.Serialize(m.active.state); serr == nil {
			reply = m.payloadLocked(transport.TypeGameSync, map[string]interface{}{
				"game_session_id": sessionID,
				"game_type":       m.active.GameType,
				"game_state":      serialized,
				"is_request":      false,
			})
		}
	}
	m.mu.Unlock()

	if reply != nil {
		if friend, ferr := m.friends.Get(peer); ferr == nil && friend.Address != "" {
			m.sender.Send(friend.Address, friend.Port, reply)
		}
	}

	m.finishIfOver(sessionID)
	return nil
}

// Active returns a copy of the live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expirePendingLocked(time.Now().UTC())
	if m.active == nil {
		return nil
	}
	session := *m.active
	return &session
}

// Display renders the active session from this device's point of view.
func (m *Manager) Display() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return "", errors.New(errors.ErrCodeNotFound, "no active game")
	}
	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		return "", err
	}
	return engine.DisplayState(m.active.state, m.active.Role), nil
}

// MyTurn reports whether this device may act on the active session.
func (m *Manager) MyTurn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.Status != models.GameStatusActive {
		return false
	}
	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		return false
	}
	return engine.IsMyTurn(m.active.state, m.active.Role)
}

// PendingInvites returns the queued invitations still alive.
func (m *Manager) PendingInvites() []Invite {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneInvitesLocked(time.Now().UTC())
	out := make([]Invite, len(m.invites))
	copy(out, m.invites)
	return out
}

// History returns recent finished sessions.
func (m *Manager) History(limit int) ([]models.GameSessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return m.repo.GetHistory(limit)
}

// Stats returns overall win/loss/draw counts.
func (m *Manager) Stats() (wins, losses, draws int64, err error) {
	m.mu.Lock()
	deviceName := m.deviceName
	m.mu.Unlock()
	return m.repo.GetStats(deviceName)
}

// finishIfOver resolves the session once the engine reports the game
// ended.
func (m *Manager) finishIfOver(sessionID string) {
	m.mu.Lock()
	if m.active == nil || m.active.SessionID != sessionID {
		m.mu.Unlock()
		return
	}
	engine, err := GetEngine(m.active.GameType)
	if err != nil {
		m.mu.Unlock()
		return
	}
	over, winnerRole, draw := engine.GameOver(m.active.state)
	if !over {
		m.mu.Unlock()
		return
	}

	session := m.active
	m.active = nil

	winner := ""
	if !draw {
		if winnerRole == session.Role {
			winner = m.deviceName
		} else {
			winner = session.Peer
		}
	}
	serialized, serr := engine.Serialize(session.state)
	m.mu.Unlock()

	now := time.Now().UTC()
	if serr == nil {
		if err := m.repo.UpdateState(session.SessionID, serialized); err != nil {
			logger.Warn("Failed to persist final game state", "session_id", session.SessionID, "error", err)
		}
	}
	if err := m.repo.FinishSession(session.SessionID, models.GameStatusCompleted, winner, now); err != nil {
		logger.Warn("Failed to record game result", "session_id", session.SessionID, "error", err)
	}

	logger.Info("Game finished", "peer", session.Peer, "winner", winner)
	m.notifier.Publish(notify.KindGameOver, session.Peer, map[string]interface{}{
		"session_id": session.SessionID,
		"winner":     winner,
		"draw":       draw,
	})
}

// expirePendingLocked clears an unanswered outgoing invite once its
// deadline passes, so the active slot cannot stay occupied forever.
func (m *Manager) expirePendingLocked(now time.Time) {
	if m.active == nil || m.active.Status != models.GameStatusPending {
		return
	}
	if now.Before(m.active.ExpiresAt) {
		return
	}
	session := m.active
	m.active = nil

	if err := m.repo.FinishSession(session.SessionID, models.GameStatusExpired, "", now); err != nil {
		logger.Warn("Failed to record expired invite", "session_id", session.SessionID, "error", err)
	}
	logger.Info("Unanswered game invite expired", "peer", session.Peer)
}

func (m *Manager) persistStateLocked(engine Engine) {
	serialized, err := engine.Serialize(m.active.state)
	if err != nil {
		logger.Warn("Failed to serialize game state", "session_id", m.active.SessionID, "error", err)
		return
	}
	if err := m.repo.UpdateState(m.active.SessionID, serialized); err != nil {
		logger.Warn("Failed to persist game state", "session_id", m.active.SessionID, "error", err)
	}
}

func (m *Manager) pruneInvitesLocked(now time.Time) {
	alive := m.invites[:0]
	for _, inv := range m.invites {
		if now.Before(inv.ExpiresAt) {
			alive = append(alive, inv)
		}
	}
	m.invites = alive
}

func (m *Manager) payloadLocked(payloadType string, extra map[string]interface{}) *transport.Payload {
	return &transport.Payload{
		Type:           payloadType,
		FromDeviceName: m.deviceName,
		FromPetName:    m.petName,
		Timestamp:      time.Now().UTC(),
		Extra:          extra,
	}
}

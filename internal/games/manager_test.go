package games

import (
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pockpet/social/internal/config"
	"github.com/pockpet/social/internal/models"
	"github.com/pockpet/social/internal/notify"
	"github.com/pockpet/social/internal/repositories"
	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.Init()
}

type fakeSender struct {
	mu   sync.Mutex
	ack  bool
	sent []*transport.Payload
}

func (f *fakeSender) Send(address string, port int, payload *transport.Payload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return f.ack
}

func (f *fakeSender) lastType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Type
}

type fakeDirectory struct {
	friends map[string]*models.Friend
}

func (f *fakeDirectory) IsFriend(deviceName string) (bool, error) {
	_, ok := f.friends[deviceName]
	return ok, nil
}

func (f *fakeDirectory) Get(deviceName string) (*models.Friend, error) {
	friend, ok := f.friends[deviceName]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "friend not found")
	}
	return friend, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.GameSessionRecord{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testManager(t *testing.T, sender *fakeSender) (*Manager, *repositories.GameRepository) {
	t.Helper()
	cfg := &config.Config{
		DeviceName: "pet-local",
		PetName:    "Local",
		InviteTTL:  2 * time.Minute,
	}
	repo := repositories.NewGameRepository(testDB(t))
	directory := &fakeDirectory{friends: map[string]*models.Friend{
		"pet-remote": {DeviceName: "pet-remote", PetName: "Rex", Address: "192.168.1.10", Port: 5555},
		"pet-other":  {DeviceName: "pet-other", PetName: "Momo", Address: "192.168.1.11", Port: 5555},
	}}
	notifier := notify.NewNotifier(32)
	t.Cleanup(notifier.Close)
	return NewManager(cfg, repo, directory, sender, notifier), repo
}

func invitePayload(from, sessionID string) *transport.Payload {
	return &transport.Payload{
		Type:           transport.TypeGameInvite,
		FromDeviceName: from,
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"game_session_id": sessionID,
			"game_type":       GameTypeRPS,
			"expires_at":      time.Now().UTC().Add(2 * time.Minute).Format(time.RFC3339),
		},
	}
}

func movePayload(from, sessionID, move string, number int) *transport.Payload {
	return &transport.Payload{
		Type:           transport.TypeGameMove,
		FromDeviceName: from,
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"game_session_id": sessionID,
			"move_number":     float64(number),
			"move_data":       move,
		},
	}
}

func TestInviteOccupiesActiveSlot(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, _ := testManager(t, sender)

	sessionID, err := m.Invite("pet-remote", GameTypeRPS)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	if sessionID == "" {
		t.Fatal("Invite() returned empty session ID")
	}
	if sender.lastType() != transport.TypeGameInvite {
		t.Errorf("sent type = %q, want game_invite", sender.lastType())
	}

	// Second invite is blocked while one is outstanding.
	_, err = m.Invite("pet-other", GameTypeRPS)
	if errors.Code(err) != errors.ErrCodeSessionActive {
		t.Errorf("second Invite() error code = %q, want SESSION_ACTIVE", errors.Code(err))
	}
}

func TestInviteRejectsNonFriend(t *testing.T) {
	m, _ := testManager(t, &fakeSender{ack: true})

	_, err := m.Invite("pet-stranger", GameTypeRPS)
	if errors.Code(err) != errors.ErrCodeNotFriend {
		t.Errorf("error code = %q, want NOT_FRIEND", errors.Code(err))
	}
}

func TestInviteUnreachablePeerFreesSlot(t *testing.T) {
	m, _ := testManager(t, &fakeSender{ack: false})

	_, err := m.Invite("pet-remote", GameTypeRPS)
	if errors.Code(err) != errors.ErrCodeUnreachable {
		t.Fatalf("error code = %q, want UNREACHABLE", errors.Code(err))
	}

	// The failed invite must not hold the slot.
	if m.Active() != nil {
		t.Error("failed invite left an active session")
	}
}

func TestInvitesQueueWhileSessionActive(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, _ := testManager(t, sender)

	// Take the active slot as invitee.
	if err := m.ReceiveInvite(invitePayload("pet-remote", "s-1"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}
	if err := m.AcceptInvite("s-1"); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}

	// A second invite queues instead of interrupting.
	if err := m.ReceiveInvite(invitePayload("pet-other", "s-2"), "192.168.1.11"); err != nil {
		t.Fatalf("ReceiveInvite() while active error = %v", err)
	}

	invites := m.PendingInvites()
	if len(invites) != 1 || invites[0].SessionID != "s-2" {
		t.Fatalf("pending invites = %v, want [s-2]", invites)
	}

	// Accepting the queued invite is refused while the game runs.
	err := m.AcceptInvite("s-2")
	if errors.Code(err) != errors.ErrCodeSessionActive {
		t.Errorf("AcceptInvite() under contention = %q, want SESSION_ACTIVE", errors.Code(err))
	}

	// After the active game ends, the queued invite is playable.
	if err := m.Forfeit(); err != nil {
		t.Fatalf("Forfeit() error = %v", err)
	}
	if err := m.AcceptInvite("s-2"); err != nil {
		t.Errorf("AcceptInvite() after game end error = %v", err)
	}
}

func TestExpiredInvitePruned(t *testing.T) {
	m, _ := testManager(t, &fakeSender{ack: true})

	payload := invitePayload("pet-remote", "s-1")
	payload.Extra["expires_at"] = time.Now().UTC().Add(30 * time.Millisecond).Format(time.RFC3339Nano)

	if err := m.ReceiveInvite(payload, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if invites := m.PendingInvites(); len(invites) != 0 {
		t.Errorf("pending invites = %d, want 0 after expiry", len(invites))
	}

	err := m.AcceptInvite("s-1")
	if errors.Code(err) != errors.ErrCodeNotFound {
		t.Errorf("AcceptInvite() of expired invite = %q, want NOT_FOUND", errors.Code(err))
	}
}

func TestReceiveInviteHonorsSenderExpiry(t *testing.T) {
	m, _ := testManager(t, &fakeSender{ack: true})

	stale := invitePayload("pet-remote", "s-1")
	stale.Extra["expires_at"] = time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)

	err := m.ReceiveInvite(stale, "192.168.1.10")
	if errors.Code(err) != errors.ErrCodeExpired {
		t.Fatalf("error code = %q, want EXPIRED", errors.Code(err))
	}
	if len(m.PendingInvites()) != 0 {
		t.Error("expired invite was queued")
	}

	// A live invite keeps the sender's deadline, not the local default.
	deadline := time.Now().UTC().Add(30 * time.Second).Truncate(time.Second)
	live := invitePayload("pet-remote", "s-2")
	live.Extra["expires_at"] = deadline.Format(time.RFC3339)
	if err := m.ReceiveInvite(live, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}

	invites := m.PendingInvites()
	if len(invites) != 1 || !invites[0].ExpiresAt.Equal(deadline) {
		t.Errorf("queued expiry = %v, want %v", invites[0].ExpiresAt, deadline)
	}
}

func TestPendingInviteExpires(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)
	m.cfg.InviteTTL = -time.Second

	sessionID, err := m.Invite("pet-remote", GameTypeRPS)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	if m.Active() != nil {
		t.Error("expired pending invite still holds the active slot")
	}
	record, err := repo.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if record.Status != models.GameStatusExpired {
		t.Errorf("status = %q, want expired", record.Status)
	}

	// A too-late acceptance finds no session.
	accept := &transport.Payload{
		Type:           transport.TypeGameAccept,
		FromDeviceName: "pet-remote",
		Timestamp:      time.Now().UTC(),
		Extra:          map[string]interface{}{"game_session_id": sessionID},
	}
	if err := m.ReceiveAccept(accept, "192.168.1.10"); errors.Code(err) != errors.ErrCodeNotFound {
		t.Errorf("ReceiveAccept() after expiry = %q, want NOT_FOUND", errors.Code(err))
	}

	// The slot is free again.
	m.cfg.InviteTTL = 2 * time.Minute
	if _, err := m.Invite("pet-other", GameTypeRPS); err != nil {
		t.Errorf("Invite() after expiry error = %v", err)
	}
}

func TestSyncRepairsLostMove(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)

	sessionID, err := m.Invite("pet-remote", GameTypeRPS)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}
	accept := &transport.Payload{
		Type:           transport.TypeGameAccept,
		FromDeviceName: "pet-remote",
		Timestamp:      time.Now().UTC(),
		Extra:          map[string]interface{}{"game_session_id": sessionID},
	}
	if err := m.ReceiveAccept(accept, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveAccept() error = %v", err)
	}
	if err := m.Move(MoveRock); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	// The peer's game_move never arrived; its sync request carries the
	// missing move, and the round resolves from the merged state.
	sync := &transport.Payload{
		Type:           transport.TypeGameSync,
		FromDeviceName: "pet-remote",
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"game_session_id": sessionID,
			"game_type":       GameTypeRPS,
			"game_state":      `{"moves":{"invitee":"scissors"}}`,
			"is_request":      true,
		},
	}
	if err := m.ReceiveSync(sync, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveSync() error = %v", err)
	}

	if sender.lastType() != transport.TypeGameSync {
		t.Errorf("last sent type = %q, want game_sync reply", sender.lastType())
	}
	if m.Active() != nil {
		t.Error("session still active after the sync completed the round")
	}

	record, _ := repo.GetSession(sessionID)
	if record.Status != models.GameStatusCompleted {
		t.Errorf("status = %q, want completed", record.Status)
	}
	if record.Winner != "pet-local" {
		t.Errorf("winner = %q, want pet-local", record.Winner)
	}
}

func TestFullGameInitiatorWins(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)

	sessionID, err := m.Invite("pet-remote", GameTypeRPS)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	accept := &transport.Payload{
		Type:           transport.TypeGameAccept,
		FromDeviceName: "pet-remote",
		Timestamp:      time.Now().UTC(),
		Extra:          map[string]interface{}{"game_session_id": sessionID},
	}
	if err := m.ReceiveAccept(accept, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveAccept() error = %v", err)
	}

	if !m.MyTurn() {
		t.Error("MyTurn() = false before committing a move")
	}
	if err := m.Move(MoveRock); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if m.MyTurn() {
		t.Error("MyTurn() = true after committing a move")
	}

	if err := m.ReceiveMove(movePayload("pet-remote", sessionID, MoveScissors, 1), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveMove() error = %v", err)
	}

	if m.Active() != nil {
		t.Error("session still active after resolution")
	}

	record, err := repo.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if record.Status != models.GameStatusCompleted {
		t.Errorf("status = %q, want completed", record.Status)
	}
	if record.Winner != "pet-local" {
		t.Errorf("winner = %q, want pet-local", record.Winner)
	}
	if record.State == "" {
		t.Error("finished session has no recorded state")
	}
}

func TestDrawRecordedWithoutWinner(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)

	if err := m.ReceiveInvite(invitePayload("pet-remote", "s-1"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}
	if err := m.AcceptInvite("s-1"); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}

	if err := m.Move(MovePaper); err != nil {
		t.Fatalf("Move() error = %v", err)
	}

	if err := m.ReceiveMove(movePayload("pet-remote", "s-1", MovePaper, 1), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveMove() error = %v", err)
	}

	record, _ := repo.GetSession("s-1")
	if record.Status != models.GameStatusCompleted {
		t.Errorf("status = %q, want completed", record.Status)
	}
	if record.Winner != "" {
		t.Errorf("winner = %q, want empty for draw", record.Winner)
	}
}

func TestForfeitLosesGame(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)

	if err := m.ReceiveInvite(invitePayload("pet-remote", "s-1"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}
	if err := m.AcceptInvite("s-1"); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}

	if err := m.Forfeit(); err != nil {
		t.Fatalf("Forfeit() error = %v", err)
	}

	record, _ := repo.GetSession("s-1")
	if record.Status != models.GameStatusForfeited {
		t.Errorf("status = %q, want forfeited", record.Status)
	}
	if record.Winner != "pet-remote" {
		t.Errorf("winner = %q, want pet-remote", record.Winner)
	}
}

func TestDoubleMoveRejected(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, _ := testManager(t, sender)

	if err := m.ReceiveInvite(invitePayload("pet-remote", "s-1"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveInvite() error = %v", err)
	}
	if err := m.AcceptInvite("s-1"); err != nil {
		t.Fatalf("AcceptInvite() error = %v", err)
	}

	if err := m.Move(MoveRock); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	err := m.Move(MovePaper)
	if errors.Code(err) != errors.ErrCodeAlreadyExists {
		t.Errorf("second Move() = %q, want ALREADY_EXISTS", errors.Code(err))
	}
}

func TestDeclineClearsInitiatorSession(t *testing.T) {
	sender := &fakeSender{ack: true}
	m, repo := testManager(t, sender)

	sessionID, err := m.Invite("pet-remote", GameTypeRPS)
	if err != nil {
		t.Fatalf("Invite() error = %v", err)
	}

	decline := &transport.Payload{
		Type:           transport.TypeGameDecline,
		FromDeviceName: "pet-remote",
		Timestamp:      time.Now().UTC(),
		Extra:          map[string]interface{}{"game_session_id": sessionID},
	}
	if err := m.ReceiveDecline(decline, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveDecline() error = %v", err)
	}

	if m.Active() != nil {
		t.Error("session still active after decline")
	}
	record, _ := repo.GetSession(sessionID)
	if record.Status != models.GameStatusDeclined {
		t.Errorf("status = %q, want declined", record.Status)
	}
}

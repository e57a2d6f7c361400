package friends

import (
	"context"
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
	mu       sync.Mutex
	sent     []*transport.Payload
	ackAll   bool
}

func (f *fakeSender) Send(address string, port int, payload *transport.Payload) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return f.ackAll
}

func (f *fakeSender) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.sent))
	for i, p := range f.sent {
		types[i] = p.Type
	}
	return types
}

type fakeFinder struct {
	peer *transport.Peer
}

func (f *fakeFinder) Find(ctx context.Context, deviceName string) (*transport.Peer, error) {
	return f.peer, nil
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
	if err := db.AutoMigrate(&models.Friend{}, &models.FriendRequest{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func testService(t *testing.T, sender *fakeSender) (*Service, *repositories.FriendRepository) {
	t.Helper()
	cfg := &config.Config{
		DeviceName: "pet-local",
		PetName:    "Local",
		ListenPort: 5555,
		RequestTTL: 72 * time.Hour,
		MaxFriends: 3,
	}
	repo := repositories.NewFriendRepository(testDB(t))
	notifier := notify.NewNotifier(16)
	t.Cleanup(notifier.Close)
	svc := NewService(&sync.Mutex{}, cfg, repo, sender, &fakeFinder{}, notifier)
	return svc, repo
}

func requestPayload(device, pet string) *transport.Payload {
	return &transport.Payload{
		Type:           transport.TypeFriendRequest,
		FromDeviceName: device,
		FromPetName:    pet,
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"from_ip":   "192.168.1.10",
			"from_port": float64(5555),
		},
	}
}

func TestFriendLifecycle(t *testing.T) {
	sender := &fakeSender{ackAll: true}
	svc, _ := testService(t, sender)

	if err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}

	pending, err := svc.PendingRequests()
	if err != nil {
		t.Fatalf("PendingRequests() error = %v", err)
	}
	if len(pending) != 1 || pending[0].FromDeviceName != "pet-remote" {
		t.Fatalf("pending = %v, want one request from pet-remote", pending)
	}

	if err := svc.Accept("pet-remote"); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	isFriend, err := svc.IsFriend("pet-remote")
	if err != nil {
		t.Fatalf("IsFriend() error = %v", err)
	}
	if !isFriend {
		t.Error("IsFriend() = false after accept")
	}

	pending, _ = svc.PendingRequests()
	if len(pending) != 0 {
		t.Errorf("pending after accept = %d, want 0", len(pending))
	}

	types := sender.sentTypes()
	if len(types) != 1 || types[0] != transport.TypeFriendAccepted {
		t.Errorf("sent payloads = %v, want [friend_request_accepted]", types)
	}

	friend, err := svc.Get("pet-remote")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if friend.PetName != "Rex" || friend.Address != "192.168.1.10" {
		t.Errorf("friend = %+v, want Rex at 192.168.1.10", friend)
	}
}

func TestRejectAllowsReRequest(t *testing.T) {
	svc, _ := testService(t, &fakeSender{ackAll: true})

	if err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}
	if err := svc.Reject("pet-remote"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	pending, _ := svc.PendingRequests()
	if len(pending) != 0 {
		t.Fatalf("pending after reject = %d, want 0", len(pending))
	}

	// The same peer can ask again.
	if err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10"); err != nil {
		t.Errorf("ReceiveRequest() after reject error = %v", err)
	}
}

func TestRepeatRequestKeepsOriginal(t *testing.T) {
	svc, repo := testService(t, &fakeSender{ackAll: true})

	if err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}
	first, err := repo.GetRequest("pet-remote")
	if err != nil {
		t.Fatalf("GetRequest() error = %v", err)
	}

	err = svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10")
	if errors.Code(err) != errors.ErrCodeAlreadyExists {
		t.Fatalf("repeat ReceiveRequest() error code = %q, want ALREADY_EXISTS", errors.Code(err))
	}

	second, err := repo.GetRequest("pet-remote")
	if err != nil {
		t.Fatalf("GetRequest() after repeat error = %v", err)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("repeat request moved the expiry: %v -> %v", first.ExpiresAt, second.ExpiresAt)
	}

	pending, _ := svc.PendingRequests()
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1", len(pending))
	}
}

func TestAcceptRollsBackOnConflict(t *testing.T) {
	sender := &fakeSender{ackAll: true}
	svc, repo := testService(t, sender)

	if err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}

	// A friend row with the same device name makes the insert inside the
	// accept transaction fail, which must roll the request back too.
	if err := repo.CreateFriend(&models.Friend{
		DeviceName: "pet-remote",
		PetName:    "Rex",
		AddedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateFriend() error = %v", err)
	}

	if err := svc.Accept("pet-remote"); err == nil {
		t.Fatal("Accept() with a conflicting friend row succeeded")
	}

	request, err := repo.GetRequest("pet-remote")
	if err != nil {
		t.Fatalf("request row gone after failed accept: %v", err)
	}
	if request.Status != models.RequestStatusPending {
		t.Errorf("request status = %q, want pending", request.Status)
	}
	if len(sender.sentTypes()) != 0 {
		t.Error("acceptance was sent for a failed accept")
	}
}

func TestAcceptExpiredRequest(t *testing.T) {
	sender := &fakeSender{ackAll: true}
	svc, repo := testService(t, sender)

	past := time.Now().UTC().Add(-time.Hour)
	request := &models.FriendRequest{
		FromDeviceName: "pet-remote",
		FromPetName:    "Rex",
		Address:        "192.168.1.10",
		Port:           5555,
		Status:         models.RequestStatusPending,
		ReceivedAt:     past.Add(-72 * time.Hour),
		ExpiresAt:      past,
	}
	if err := repo.CreateRequest(request); err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	err := svc.Accept("pet-remote")
	if err == nil {
		t.Fatal("Accept() of expired request succeeded")
	}
	if errors.Code(err) != errors.ErrCodeNotFound && errors.Code(err) != errors.ErrCodeExpired {
		t.Errorf("Accept() error code = %q, want NOT_FOUND or EXPIRED", errors.Code(err))
	}

	if isFriend, _ := svc.IsFriend("pet-remote"); isFriend {
		t.Error("expired request produced a friendship")
	}
	if len(sender.sentTypes()) != 0 {
		t.Error("acceptance was sent for an expired request")
	}
}

func TestAcceptMissingRequest(t *testing.T) {
	svc, _ := testService(t, &fakeSender{ackAll: true})

	err := svc.Accept("pet-stranger")
	if err == nil {
		t.Fatal("Accept() of missing request succeeded")
	}
	if errors.Code(err) != errors.ErrCodeNotFound {
		t.Errorf("error code = %q, want NOT_FOUND", errors.Code(err))
	}
}

func TestFriendLimit(t *testing.T) {
	svc, repo := testService(t, &fakeSender{ackAll: true})

	now := time.Now().UTC()
	for _, name := range []string{"pet-a", "pet-b", "pet-c"} {
		if err := repo.CreateFriend(&models.Friend{
			DeviceName: name,
			PetName:    name,
			AddedAt:    now,
		}); err != nil {
			t.Fatalf("CreateFriend(%s) error = %v", name, err)
		}
	}

	if err := svc.ReceiveRequest(requestPayload("pet-d", "Dee"), "192.168.1.20"); err != nil {
		t.Fatalf("ReceiveRequest() error = %v", err)
	}

	err := svc.Accept("pet-d")
	if err == nil {
		t.Fatal("Accept() over the friend limit succeeded")
	}
	if errors.Code(err) != errors.ErrCodeLimitReached {
		t.Errorf("error code = %q, want LIMIT_REACHED", errors.Code(err))
	}
}

func TestReceiveRequestFromFriend(t *testing.T) {
	svc, repo := testService(t, &fakeSender{ackAll: true})

	now := time.Now().UTC()
	repo.CreateFriend(&models.Friend{DeviceName: "pet-remote", PetName: "Rex", AddedAt: now})

	err := svc.ReceiveRequest(requestPayload("pet-remote", "Rex"), "192.168.1.10")
	if err == nil {
		t.Fatal("ReceiveRequest() from existing friend succeeded")
	}
	if errors.Code(err) != errors.ErrCodeAlreadyExists {
		t.Errorf("error code = %q, want ALREADY_EXISTS", errors.Code(err))
	}
}

func TestReceiveAcceptanceIdempotent(t *testing.T) {
	svc, _ := testService(t, &fakeSender{ackAll: true})

	payload := &transport.Payload{
		Type:           transport.TypeFriendAccepted,
		FromDeviceName: "pet-remote",
		FromPetName:    "Rex",
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"from_port":            float64(5555),
			"accepted_device_name": "pet-local",
		},
	}

	if err := svc.ReceiveAcceptance(payload, "192.168.1.10"); err != nil {
		t.Fatalf("ReceiveAcceptance() error = %v", err)
	}
	// A duplicate acceptance is a quiet no-op.
	if err := svc.ReceiveAcceptance(payload, "192.168.1.10"); err != nil {
		t.Errorf("duplicate ReceiveAcceptance() error = %v", err)
	}

	friends, _ := svc.List()
	if len(friends) != 1 {
		t.Errorf("friends = %d, want 1", len(friends))
	}
}

func TestReceiveAcceptanceForOtherDevice(t *testing.T) {
	svc, _ := testService(t, &fakeSender{ackAll: true})

	payload := &transport.Payload{
		Type:           transport.TypeFriendAccepted,
		FromDeviceName: "pet-remote",
		FromPetName:    "Rex",
		Timestamp:      time.Now().UTC(),
		Extra: map[string]interface{}{
			"from_port":            float64(5555),
			"accepted_device_name": "pet-somebody-else",
		},
	}

	err := svc.ReceiveAcceptance(payload, "192.168.1.10")
	if errors.Code(err) != errors.ErrCodeValidation {
		t.Errorf("error code = %q, want VALIDATION_ERROR", errors.Code(err))
	}
	if isFriend, _ := svc.IsFriend("pet-remote"); isFriend {
		t.Error("misaddressed acceptance produced a friendship")
	}
}

func TestSendRequestUnreachable(t *testing.T) {
	svc, _ := testService(t, &fakeSender{ackAll: false})

	err := svc.SendRequest(context.Background(), transport.Peer{
		DeviceName: "pet-remote",
		Address:    "192.168.1.10",
		Port:       5555,
	})
	if err == nil {
		t.Fatal("SendRequest() to unreachable peer succeeded")
	}
	if errors.Code(err) != errors.ErrCodeUnreachable {
		t.Errorf("error code = %q, want UNREACHABLE", errors.Code(err))
	}
}

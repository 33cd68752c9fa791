package zerofriction

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("test-credential-secret-32-bytes!")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	// Short backoff keeps failure-path tests fast.
	cfg.Verify.BackoffCap = 10 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, cfg Config) *Engine {
	t.Helper()

	return &Engine{
		config:      cfg,
		secret:      testSecret,
		rateLimiter: newRateLimiter(rdb, cfg.RateLimit),
		credentials: newCredentialStore(rdb),
		attempts:    newAttemptLimiter(rdb, cfg.Verify),
		guests:      newGuestStore(rdb),
		metrics:     NewMetrics(cfg.Metrics),
	}
}

// withCapturedAudit attaches a channel sink and a synchronous dispatcher so
// tests can assert on emitted events.
func withCapturedAudit(t *testing.T, engine *Engine) *ChannelSink {
	t.Helper()

	sink := NewChannelSink(64)
	engine.audit = newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 64,
		DropIfFull: false,
	}, sink)
	t.Cleanup(engine.audit.Close)
	return sink
}

func waitForAudit(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.EventType == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audit event %q", eventType)
		}
	}
}

type mockUserProvider struct {
	mu      sync.Mutex
	users   map[string]UserRecord
	nextID  int
	failGet bool
}

func newMockUserProvider(users ...UserRecord) *mockUserProvider {
	p := &mockUserProvider{
		users:  map[string]UserRecord{},
		nextID: 100,
	}
	for _, u := range users {
		p.users[u.Email] = u
	}
	return p
}

func (p *mockUserProvider) GetUserByEmail(_ context.Context, email string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet {
		return UserRecord{}, context.DeadlineExceeded
	}
	user, ok := p.users[email]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (p *mockUserProvider) CreateUser(_ context.Context, input CreateUserInput) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	user := UserRecord{
		UserID:      fmt.Sprintf("u-%d", p.nextID),
		Email:       input.Email,
		DisplayName: input.DisplayName,
	}
	p.users[user.Email] = user
	return user, nil
}

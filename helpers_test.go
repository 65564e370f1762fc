package keygate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("keygate-test-secret-0123456789ab")

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = testSecret
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

// fakeClock is a settable clock shared by the engine and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	to, subject, body string
}

// captureNotifier records messages instead of sending them.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *captureNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

func (n *captureNotifier) last(t *testing.T) sentMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatal("expected a notification to be sent")
	}
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// mockAccountStore is a map-backed AccountStore with injectable failures.
type mockAccountStore struct {
	mu        sync.Mutex
	accounts  map[string]Account
	createErr error
	findErr   error
	creates   int
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[string]Account)}
}

func (m *mockAccountStore) find(match func(Account) bool) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Account{}, m.findErr
	}
	for _, a := range m.accounts {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *mockAccountStore) FindByEmail(_ context.Context, email string) (Account, error) {
	return m.find(func(a Account) bool { return a.Email == email })
}

func (m *mockAccountStore) FindByNickname(_ context.Context, nickname string) (Account, error) {
	return m.find(func(a Account) bool { return a.Nickname == nickname })
}

func (m *mockAccountStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return exists(err)
}

func (m *mockAccountStore) ExistsByNickname(ctx context.Context, nickname string) (bool, error) {
	_, err := m.FindByNickname(ctx, nickname)
	return exists(err)
}

func exists(err error) (bool, error) {
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *mockAccountStore) Create(_ context.Context, account Account) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return Account{}, m.createErr
	}
	for _, a := range m.accounts {
		if a.Nickname == account.Nickname {
			return Account{}, &ConflictError{Field: FieldNickname}
		}
		if a.Email == account.Email {
			return Account{}, &ConflictError{Field: FieldEmail}
		}
	}
	m.accounts[account.ID] = account
	return account, nil
}

func (m *mockAccountStore) Save(_ context.Context, account Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[account.ID] = account
	return nil
}

func (m *mockAccountStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

type testEngine struct {
	*Engine
	redis    *miniredis.Miniredis
	accounts *mockAccountStore
	notifier *captureNotifier
	clock    *fakeClock
}

func newTestEngine(t testing.TB, mutate ...func(*Config, *Builder)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	te := &testEngine{
		redis:    mr,
		accounts: newMockAccountStore(),
		notifier: &captureNotifier{},
		clock:    newFakeClock(),
	}

	cfg := testConfig()
	b := New().
		WithRedis(rdb).
		WithAccountStore(te.accounts).
		WithNotifier(te.notifier).
		WithClock(te.clock.Now)
	for _, m := range mutate {
		m(&cfg, b)
	}
	b.WithConfig(cfg)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

func validRegistration() RegistrationRequest {
	return RegistrationRequest{
		Nickname:        "neo",
		DisplayName:     "Thomas Anderson",
		Email:           "neo@example.com",
		Password:        "Secr3t!pass",
		ConfirmPassword: "Secr3t!pass",
	}
}

// registerAccount runs the full request/confirm cycle.
func registerAccount(t testing.TB, te *testEngine, req RegistrationRequest) AccountIdentity {
	t.Helper()
	pending, err := te.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	identity, err := te.ConfirmRegistration(context.Background(), pending.Code)
	if err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	return identity
}

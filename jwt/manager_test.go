package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, clock *testClock) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    21 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    testSecret,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestCreatePairLifetimesAndSubject(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)

	pair, err := m.CreatePair("acct-1")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}
	if got := pair.AccessExpiresAt.Sub(clock.now); got != 24*time.Hour {
		t.Fatalf("access lifetime = %v", got)
	}
	if got := pair.RefreshExpiresAt.Sub(clock.now); got != 21*24*time.Hour {
		t.Fatalf("refresh lifetime = %v", got)
	}

	access, err := m.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if access.Subject != "acct-1" || access.Type != TokenAccess || access.ID == "" {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	refresh, err := m.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh failed: %v", err)
	}
	if refresh.Subject != "acct-1" || refresh.Type != TokenRefresh {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
}

func TestRefreshIssuesAccessForSameSubject(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)
	pair, _ := m.CreatePair("acct-7")

	clock.now = clock.now.Add(20 * 24 * time.Hour)
	access, exp, err := m.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !exp.Equal(clock.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected access expiry %v", exp)
	}
	claims, err := m.ParseAccess(access)
	if err != nil || claims.Subject != "acct-7" {
		t.Fatalf("expected fresh access token for acct-7, claims=%+v err=%v", claims, err)
	}

	// Stateless: the same refresh token keeps working until it expires.
	if _, _, err := m.Refresh(pair.RefreshToken); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	m := newTestManager(t, clock)
	pair, _ := m.CreatePair("acct-1")

	clock.now = clock.now.Add(21*24*time.Hour + time.Second)
	if _, _, err := m.Refresh(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	clock := &testClock{now: time.Now()}
	m := newTestManager(t, clock)
	pair, _ := m.CreatePair("acct-1")

	if _, _, err := m.Refresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	if _, err := m.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token must not pass as access, got %v", err)
	}
}

func TestParseRejectsTamperedAndForeignTokens(t *testing.T) {
	clock := &testClock{now: time.Now()}
	m := newTestManager(t, clock)
	pair, _ := m.CreatePair("acct-1")

	parts := strings.Split(pair.RefreshToken, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	other, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    2 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	foreign, _ := other.CreatePair("acct-1")

	none := gojwt.NewWithClaims(gojwt.SigningMethodNone, Claims{
		Type: TokenRefresh,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "acct-1",
			ExpiresAt: gojwt.NewNumericDate(clock.now.Add(time.Hour)),
		},
	})
	unsigned, _ := none.SignedString(gojwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"tampered": tampered,
		"foreign":  foreign.RefreshToken,
		"none":     unsigned,
		"garbage":  "not.a.token",
		"empty":    "",
	} {
		if _, _, err := m.Refresh(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	m, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "keygate",
		Audience:      "web",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	pair, err := m.CreatePair("acct-9")
	if err != nil {
		t.Fatalf("CreatePair failed: %v", err)
	}

	verifier, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		SigningMethod: MethodEd25519,
		PublicKey:     pub,
		Issuer:        "keygate",
		Audience:      "web",
	})
	if err != nil {
		t.Fatalf("verify-only NewManager failed: %v", err)
	}
	if _, err := verifier.ParseAccess(pair.AccessToken); err != nil {
		t.Fatalf("verify-only ParseAccess failed: %v", err)
	}
	if _, _, err := verifier.Refresh(pair.RefreshToken); err == nil {
		t.Fatal("verify-only manager must not issue tokens")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cases := map[string]Config{
		"zero ttl":      {RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret},
		"short refresh": {AccessTTL: 2 * time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret},
		"short secret":  {AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: []byte("short")},
		"no ed pubkey":  {AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodEd25519},
		"unknown alg":   {AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: "rs256", PrivateKey: testSecret},
		"huge leeway":   {AccessTTL: time.Hour, RefreshTTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: testSecret, Leeway: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected NewManager to fail", name)
		}
	}
}

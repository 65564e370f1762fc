package keygate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestBuildRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	tests := []struct {
		name    string
		builder *Builder
		want    string
	}{
		{
			name:    "no secret store",
			builder: New().WithConfig(testConfig()).WithAccountStore(newMockAccountStore()).WithNotifier(&captureNotifier{}),
			want:    "secret store",
		},
		{
			name:    "no account store",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithNotifier(&captureNotifier{}),
			want:    "account store",
		},
		{
			name:    "no notifier",
			builder: New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(newMockAccountStore()),
			want:    "notifier",
		},
		{
			name:    "no signing key",
			builder: New().WithRedis(rdb).WithAccountStore(newMockAccountStore()).WithNotifier(&captureNotifier{}),
			want:    "PrivateKey",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	b := New().WithConfig(testConfig()).WithRedis(rdb).WithAccountStore(newMockAccountStore()).WithNotifier(&captureNotifier{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildWithBcryptHasher(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Password.Algorithm = "bcrypt"
		cfg.Password.BcryptCost = 4
	})
	registerAccount(t, te, validRegistration())

	stored, _ := te.accounts.FindByNickname(context.Background(), "neo")
	if !strings.HasPrefix(stored.PasswordHash, "$2") {
		t.Fatalf("expected a bcrypt digest, got %q", stored.PasswordHash)
	}
	if _, err := te.Authenticate(context.Background(), "neo", "Secr3t!pass"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
}

func TestBuildWithEd25519Tokens(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	te := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Token.SigningMethod = "ed25519"
		cfg.Token.PrivateKey = priv
		cfg.Token.PublicKey = pub
		cfg.Token.Issuer = "keygate-test"
	})
	result := login(t, te)

	if _, err := te.ValidateAccess(result.Tokens.AccessToken); err != nil {
		t.Fatalf("ed25519 access token rejected: %v", err)
	}
	if _, err := te.Refresh(context.Background(), result.Tokens.RefreshToken); err != nil {
		t.Fatalf("ed25519 refresh failed: %v", err)
	}
}

func TestBuildRejectsBrokenTemplateAtExecution(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Notification.RegistrationBody = "code {{.Code}} {{.Missing}}"
	})

	_, err := te.Register(context.Background(), validRegistration())
	if !errors.Is(err, ErrNotification) {
		t.Fatalf("expected ErrNotification for an unrenderable body, got %v", err)
	}
}

func TestCustomNotificationTemplate(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config, _ *Builder) {
		cfg.Registration.CodeTTL = 10 * time.Minute
		cfg.Notification.RegistrationSubject = "Your code"
		cfg.Notification.RegistrationLink = "https://app.example.com/confirm"
		cfg.Notification.RegistrationBody = "{{.Code}}|{{.Link}}|{{.TTL}}"
	})

	pending, err := te.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	msg := te.notifier.last(t)
	want := strings.Join([]string{strconv.Itoa(pending.Code), "https://app.example.com/confirm", "10m0s"}, "|")
	if msg.subject != "Your code" || msg.body != want {
		t.Fatalf("got %q / %q, want body %q", msg.subject, msg.body, want)
	}
}

func TestUnbuiltEngineIsNotReady(t *testing.T) {
	var e Engine
	if _, err := e.Register(context.Background(), validRegistration()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Authenticate(context.Background(), "neo", "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Refresh(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

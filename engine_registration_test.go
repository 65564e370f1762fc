package keygate

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterThenConfirmCreatesAccount(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	pending, err := te.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if pending.Code < 100000 || pending.Code > 999999 {
		t.Fatalf("code %d outside six-digit range", pending.Code)
	}
	if !pending.ExpiresAt.Equal(te.clock.Now().Add(180 * time.Second)) {
		t.Fatalf("unexpected expiry %v", pending.ExpiresAt)
	}
	if te.accounts.len() != 0 {
		t.Fatal("no account may exist before confirmation")
	}

	msg := te.notifier.last(t)
	if msg.to != "neo@example.com" || msg.subject != "Registration code" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if !strings.Contains(msg.body, strconv.Itoa(pending.Code)) || !strings.Contains(msg.body, "register-confirm") {
		t.Fatalf("body must carry the code and the link: %q", msg.body)
	}

	identity, err := te.ConfirmRegistration(ctx, pending.Code)
	if err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
	if identity.Nickname != "neo" || identity.Email != "neo@example.com" || identity.ID == "" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	stored, err := te.accounts.FindByNickname(ctx, "neo")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if stored.PasswordHash == "" || strings.Contains(stored.PasswordHash, "Secr3t!pass") {
		t.Fatalf("password must be stored hashed, got %q", stored.PasswordHash)
	}
	if stored.DisplayName != "Thomas Anderson" {
		t.Fatalf("display name lost: %+v", stored)
	}
}

func TestConfirmRegistrationIsSingleUse(t *testing.T) {
	te := newTestEngine(t)
	pending, err := te.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := te.ConfirmRegistration(context.Background(), pending.Code); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if _, err := te.ConfirmRegistration(context.Background(), pending.Code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on replay, got %v", err)
	}
}

func TestConfirmRegistrationExpiresAfterTTL(t *testing.T) {
	te := newTestEngine(t)
	pending, err := te.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	te.redis.FastForward(181 * time.Second)

	if _, err := te.ConfirmRegistration(context.Background(), pending.Code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode after expiry, got %v", err)
	}
	if te.accounts.len() != 0 {
		t.Fatal("expired registration must not create an account")
	}
}

func TestConfirmRegistrationRejectsUnknownAndOutOfRangeCodes(t *testing.T) {
	te := newTestEngine(t)
	for _, code := range []int{0, 99999, 100000, 999999, 1000000} {
		if _, err := te.ConfirmRegistration(context.Background(), code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %d: expected ErrInvalidCode, got %v", code, err)
		}
	}
}

func TestConcurrentConfirmCreatesOneAccount(t *testing.T) {
	te := newTestEngine(t)
	pending, err := te.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	const workers = 12
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		invalid   atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := te.ConfirmRegistration(context.Background(), pending.Code)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidCode):
				invalid.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 || invalid.Load() != workers-1 {
		t.Fatalf("expected 1 success and %d invalid, got %d/%d", workers-1, successes.Load(), invalid.Load())
	}
	if te.accounts.len() != 1 {
		t.Fatalf("expected exactly one account, got %d", te.accounts.len())
	}
}

func TestRegisterValidationReportsEveryField(t *testing.T) {
	te := newTestEngine(t)

	_, err := te.Register(context.Background(), RegistrationRequest{
		Nickname:        "",
		DisplayName:     strings.Repeat("x", 31),
		Email:           "not-an-email",
		Password:        "short1!",
		ConfirmPassword: "different",
	})
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	want := map[string]string{
		FieldNickname:        msgRequired,
		FieldDisplayName:     msgTooLong,
		FieldEmail:           msgInvalidEmail,
		FieldPassword:        msgPasswordWeak,
		FieldConfirmPassword: msgPasswordMismatch,
	}
	for field, msg := range want {
		if verr.Fields[field] != msg {
			t.Fatalf("field %s: got %q want %q", field, verr.Fields[field], msg)
		}
	}
	if te.notifier.count() != 0 || len(te.redis.Keys()) != 0 {
		t.Fatal("rejected registration must neither notify nor store a code")
	}
}

func TestRegisterPasswordRule(t *testing.T) {
	te := newTestEngine(t)
	cases := map[string]bool{
		"Secr3t!pass": true,
		"abcdefg1#":   true,
		"1234567$":    true,
		"short1!":     false,
		"NoDigits!!":  false,
		"NoSymbol123": false,
		"has space1!": false,
		"tab\tpass1!": false,
	}
	for pw, ok := range cases {
		req := validRegistration()
		req.Password, req.ConfirmPassword = pw, pw
		_, err := te.Register(context.Background(), req)
		if ok && err != nil {
			t.Fatalf("%q: expected acceptance, got %v", pw, err)
		}
		if !ok {
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Fields[FieldPassword] == "" {
				t.Fatalf("%q: expected password field error, got %v", pw, err)
			}
		}
	}
}

func TestRegisterRejectsTakenNicknameAndEmail(t *testing.T) {
	te := newTestEngine(t)
	registerAccount(t, te, validRegistration())

	req := validRegistration()
	req.Email = "NEO@Example.com"
	_, err := te.Register(context.Background(), req)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Fields[FieldNickname] != msgNicknameTaken {
		t.Fatalf("expected nickname taken, got %+v", verr.Fields)
	}
	// Local part is case-sensitive, so only the domain normalizes.
	if _, bad := verr.Fields[FieldEmail]; bad {
		t.Fatalf("different local part must not collide: %+v", verr.Fields)
	}

	req = validRegistration()
	req.Nickname = "trinity"
	req.Email = "neo@EXAMPLE.com"
	_, err = te.Register(context.Background(), req)
	if !errors.As(err, &verr) || verr.Fields[FieldEmail] != msgEmailTaken {
		t.Fatalf("expected email taken after domain normalization, got %v", err)
	}
}

func TestConfirmRechecksUniqueness(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	first, err := te.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	second := validRegistration()
	second.Email = "other@example.com"
	pendingSecond, err := te.Register(ctx, second)
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	if _, err := te.ConfirmRegistration(ctx, first.Code); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	_, err = te.ConfirmRegistration(ctx, pendingSecond.Code)
	var conflict *ConflictError
	if !errors.As(err, &conflict) || conflict.Field != FieldNickname || !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected nickname conflict, got %v", err)
	}
	if _, err := te.ConfirmRegistration(ctx, pendingSecond.Code); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("conflicting code must be consumed, got %v", err)
	}
}

func TestConfirmRestoresCodeOnStorageFailure(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	pending, err := te.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	te.accounts.createErr = errors.New("connection reset")
	if _, err := te.ConfirmRegistration(ctx, pending.Code); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	te.accounts.createErr = nil
	if _, err := te.ConfirmRegistration(ctx, pending.Code); err != nil {
		t.Fatalf("expected retry with the same code to succeed, got %v", err)
	}
}

func TestRegisterNotificationFailure(t *testing.T) {
	te := newTestEngine(t)
	te.notifier.err = errors.New("smtp: 421 service not available")

	_, err := te.Register(context.Background(), validRegistration())
	if !errors.Is(err, ErrNotification) || KindOf(err) != KindNotification {
		t.Fatalf("expected ErrNotification, got %v", err)
	}
	if keys := te.redis.Keys(); len(keys) != 0 {
		t.Fatalf("undelivered code must not stay stored, got keys %v", keys)
	}
}

func TestRegisterSecretStoreUnavailable(t *testing.T) {
	te := newTestEngine(t)
	te.redis.Close()

	_, err := te.Register(context.Background(), validRegistration())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRegisterRegeneratesCollidingCodes(t *testing.T) {
	codes := []int{424242, 424242, 515151}
	var i atomic.Int32
	te := newTestEngine(t)
	te.newCode = func() (int, error) {
		return codes[int(i.Add(1)-1)%len(codes)], nil
	}

	first, err := te.Register(context.Background(), validRegistration())
	if err != nil || first.Code != 424242 {
		t.Fatalf("first Register: code=%d err=%v", first.Code, err)
	}
	req := validRegistration()
	req.Nickname, req.Email = "trinity", "trinity@example.com"
	second, err := te.Register(context.Background(), req)
	if err != nil || second.Code != 515151 {
		t.Fatalf("second Register must skip the pending code: code=%d err=%v", second.Code, err)
	}
	if got := te.MetricsSnapshot().Counters[MetricCodeCollision]; got != 1 {
		t.Fatalf("expected one collision, got %d", got)
	}

	identity, err := te.ConfirmRegistration(context.Background(), 424242)
	if err != nil || identity.Nickname != "neo" {
		t.Fatalf("first pending registration must be intact: %+v err=%v", identity, err)
	}
}

func TestRegistrationAndRecoveryCodesDoNotCollide(t *testing.T) {
	te := newTestEngine(t)
	registerAccount(t, te, validRegistration())

	te.newCode = func() (int, error) { return 777777, nil }
	req := validRegistration()
	req.Nickname, req.Email = "trinity", "trinity@example.com"
	if _, err := te.Register(context.Background(), req); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := te.RequestRecovery(context.Background(), "neo@example.com"); err != nil {
		t.Fatalf("RequestRecovery with the same code must succeed, got %v", err)
	}
	if _, err := te.RedeemRecovery(context.Background(), 777777, "N3w!password", "N3w!password"); err != nil {
		t.Fatalf("RedeemRecovery failed: %v", err)
	}
	if _, err := te.ConfirmRegistration(context.Background(), 777777); err != nil {
		t.Fatalf("ConfirmRegistration failed: %v", err)
	}
}

func TestRegisterBoundsEmailLength(t *testing.T) {
	te := newTestEngine(t)

	req := validRegistration()
	req.Email = strings.Repeat("a", 300) + "@example.com"
	_, err := te.Register(context.Background(), req)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldEmail] != msgEmailTooLong {
		t.Fatalf("expected email length error, got %v", err)
	}
	if len(te.redis.Keys()) != 0 {
		t.Fatal("rejected registration must not store a code")
	}

	req.Email = strings.Repeat("a", maxEmailLength-len("@example.com")) + "@example.com"
	if _, err := te.Register(context.Background(), req); err != nil {
		t.Fatalf("email of exactly %d characters rejected: %v", maxEmailLength, err)
	}
}

func TestRegisterTrimsNames(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	req := validRegistration()
	req.Nickname = "  spaced  "
	req.DisplayName = "\tSpaced Out "
	identity := registerAccount(t, te, req)
	if identity.Nickname != "spaced" {
		t.Fatalf("nickname stored untrimmed: %q", identity.Nickname)
	}
	stored, err := te.accounts.FindByNickname(ctx, "spaced")
	if err != nil || stored.DisplayName != "Spaced Out" {
		t.Fatalf("unexpected stored account %+v err=%v", stored, err)
	}

	if _, err := te.Authenticate(ctx, " spaced ", "Secr3t!pass"); err != nil {
		t.Fatalf("login with surrounding spaces failed: %v", err)
	}

	dup := validRegistration()
	dup.Nickname = "spaced "
	dup.Email = "other@example.com"
	_, err = te.Register(ctx, dup)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Fields[FieldNickname] != msgNicknameTaken {
		t.Fatalf("expected taken nickname, got %v", err)
	}
}

func TestConfirmUndecodableRecordConsumesCode(t *testing.T) {
	te := newTestEngine(t)
	pending, err := te.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	keys := te.redis.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one pending key, got %v", keys)
	}
	if err := te.redis.Set(keys[0], "\xffgarbage"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	te.redis.SetTTL(keys[0], time.Minute)

	_, err = te.ConfirmRegistration(context.Background(), pending.Code)
	if !errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if len(te.redis.Keys()) != 0 || te.accounts.len() != 0 {
		t.Fatal("undecodable record must be consumed without creating an account")
	}
}

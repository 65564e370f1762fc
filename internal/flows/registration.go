package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type RegistrationMetrics struct {
	RegistrationRequest        int
	RegistrationRejected       int
	RegistrationConfirmSuccess int
	RegistrationConfirmFailure int
	CodeCollision              int
	NotificationFailure        int
}

type RegistrationEvents struct {
	RegistrationRequest string
	RegistrationConfirm string
}

type RegistrationErrors struct {
	EngineNotReady     error
	InvalidCode        error
	Unavailable        error
	Notification       error
	CodeSpaceExhausted error
}

// RegistrationDeps captures registration flow dependencies. Validate covers
// field rules and uniqueness at request time; CheckUnique repeats the
// uniqueness part at confirmation and returns a conflict error.
type RegistrationDeps struct {
	CodeTTL      time.Duration
	CodeAttempts int
	Now          func() time.Time
	Logger       *zap.Logger

	Validate      func(context.Context, Candidate) error
	NewCode       func() (int, error)
	ValidCode     func(int) bool
	SavePending   func(context.Context, int, Candidate, time.Duration) (bool, error)
	TakePending   func(context.Context, int) (Candidate, time.Duration, error)
	DeletePending func(context.Context, int) error
	IsNotFound    func(error) bool
	Notify        func(context.Context, Candidate, int) error

	CheckUnique   func(context.Context, string, string) error
	HashPassword  func(string) (string, error)
	NewAccountID  func() string
	CreateAccount func(context.Context, Account) (Account, error)
	IsConflict    func(error) bool

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RegistrationMetrics
	Events  RegistrationEvents
	Errors  RegistrationErrors
}

func normalizeRegistrationDeps(deps *RegistrationDeps) {
	normalizeCommon(&deps.Now, &deps.MetricInc, &deps.EmitAudit, &deps.Logger)
	if deps.IsConflict == nil {
		deps.IsConflict = func(error) bool { return false }
	}
}

func registrationReady(deps *RegistrationDeps) bool {
	return deps.Validate != nil && deps.NewCode != nil && deps.ValidCode != nil &&
		deps.SavePending != nil && deps.TakePending != nil && deps.DeletePending != nil &&
		deps.IsNotFound != nil && deps.Notify != nil && deps.CheckUnique != nil &&
		deps.HashPassword != nil && deps.NewAccountID != nil && deps.CreateAccount != nil &&
		deps.CodeTTL > 0
}

// RunRequestRegistration validates c, parks it under a fresh code and sends
// the code to c.Email. It returns the code and when it lapses.
func RunRequestRegistration(ctx context.Context, c Candidate, deps RegistrationDeps) (int, time.Time, error) {
	normalizeRegistrationDeps(&deps)
	if !registrationReady(&deps) {
		return 0, time.Time{}, deps.Errors.EngineNotReady
	}

	if err := deps.Validate(ctx, c); err != nil {
		deps.MetricInc(deps.Metrics.RegistrationRejected)
		deps.EmitAudit(ctx, deps.Events.RegistrationRequest, false, "", err, func() map[string]string {
			return map[string]string{"email": c.Email, "reason": "validation"}
		})
		return 0, time.Time{}, err
	}

	code, err := issueCode(ctx, codeIssue{
		attempts: deps.CodeAttempts,
		newCode:  deps.NewCode,
		save: func(ctx context.Context, code int) (bool, error) {
			return deps.SavePending(ctx, code, c, deps.CodeTTL)
		},
		onCollision: func() { deps.MetricInc(deps.Metrics.CodeCollision) },
		unavailable: deps.Errors.Unavailable,
		exhausted:   deps.Errors.CodeSpaceExhausted,
	})
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.RegistrationRequest, false, "", err, func() map[string]string {
			return map[string]string{"email": c.Email, "reason": "code_store"}
		})
		return 0, time.Time{}, err
	}
	expiresAt := deps.Now().Add(deps.CodeTTL)

	if err := deps.Notify(ctx, c, code); err != nil {
		deps.MetricInc(deps.Metrics.NotificationFailure)
		// The user never saw this code; do not leave it redeemable.
		if delErr := deps.DeletePending(context.WithoutCancel(ctx), code); delErr != nil {
			deps.Logger.Warn("drop undelivered registration code", zap.Error(delErr))
		}
		deps.Logger.Warn("registration notification failed", zap.String("email", c.Email), zap.Error(err))
		deps.EmitAudit(ctx, deps.Events.RegistrationRequest, false, "", err, func() map[string]string {
			return map[string]string{"email": c.Email, "reason": "notification"}
		})
		return 0, time.Time{}, fmt.Errorf("%w: %v", deps.Errors.Notification, err)
	}

	deps.MetricInc(deps.Metrics.RegistrationRequest)
	deps.EmitAudit(ctx, deps.Events.RegistrationRequest, true, "", nil, func() map[string]string {
		return map[string]string{"email": c.Email}
	})
	return code, expiresAt, nil
}

// RunConfirmRegistration redeems code and creates the account it was issued
// for. The pending record is taken atomically, so concurrent confirmations of
// one code yield at most one account.
func RunConfirmRegistration(ctx context.Context, code int, deps RegistrationDeps) (Account, error) {
	normalizeRegistrationDeps(&deps)
	if !registrationReady(&deps) {
		return Account{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) (Account, error) {
		deps.MetricInc(deps.Metrics.RegistrationConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.RegistrationConfirm, false, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return Account{}, err
	}

	if !deps.ValidCode(code) {
		return fail(deps.Errors.InvalidCode, "code_out_of_range")
	}

	c, remaining, err := deps.TakePending(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCorruptPending) {
			deps.Logger.Error("undecodable registration code record", zap.Int("code", code), zap.Error(err))
			return fail(deps.Errors.InvalidCode, "code_corrupt")
		}
		if deps.IsNotFound(err) {
			return fail(deps.Errors.InvalidCode, "code_unknown")
		}
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, err), "code_store")
	}

	// Failures past this point either invalidate the registration for good
	// (conflict) or are transient, in which case the code is put back.
	restore := func(cause error, reason string) (Account, error) {
		if rErr := restorePending(ctx, remaining, func(ctx context.Context, ttl time.Duration) error {
			_, err := deps.SavePending(ctx, code, c, ttl)
			return err
		}); rErr != nil {
			deps.Logger.Warn("restore registration code", zap.Error(rErr))
		}
		if isContextErr(cause) {
			return fail(cause, reason)
		}
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, cause), reason)
	}

	if err := deps.CheckUnique(ctx, c.Nickname, c.Email); err != nil {
		if deps.IsConflict(err) {
			return fail(err, "conflict")
		}
		return restore(err, "uniqueness_check")
	}

	digest, err := deps.HashPassword(c.Password)
	if err != nil {
		return restore(err, "hash")
	}

	account, err := deps.CreateAccount(ctx, Account{
		ID:           deps.NewAccountID(),
		Nickname:     c.Nickname,
		DisplayName:  c.DisplayName,
		Email:        c.Email,
		PasswordHash: digest,
		CreatedAt:    deps.Now().UTC(),
	})
	if err != nil {
		if deps.IsConflict(err) {
			return fail(err, "conflict")
		}
		return restore(err, "create")
	}

	deps.MetricInc(deps.Metrics.RegistrationConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.RegistrationConfirm, true, account.ID, nil, func() map[string]string {
		return map[string]string{"nickname": account.Nickname}
	})
	return account, nil
}

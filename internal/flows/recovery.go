package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type RecoveryMetrics struct {
	RecoveryRequest       int
	RecoveryUnknownEmail  int
	RecoveryRedeemSuccess int
	RecoveryRedeemFailure int
	CodeCollision         int
	NotificationFailure   int
}

type RecoveryEvents struct {
	RecoveryRequest string
	RecoveryRedeem  string
}

type RecoveryErrors struct {
	EngineNotReady     error
	InvalidCode        error
	UserNotFound       error
	Unavailable        error
	Notification       error
	CodeSpaceExhausted error
}

// RecoveryDeps captures password recovery flow dependencies.
type RecoveryDeps struct {
	CodeTTL      time.Duration
	CodeAttempts int
	Now          func() time.Time
	Logger       *zap.Logger

	ValidateEmail    func(string) error
	ValidatePassword func(string, string) error

	NewCode       func() (int, error)
	ValidCode     func(int) bool
	SavePending   func(context.Context, int, string, time.Duration) (bool, error)
	TakePending   func(context.Context, int) (string, time.Duration, error)
	DeletePending func(context.Context, int) error
	IsNotFound    func(error) bool
	Notify        func(context.Context, string, int) error

	FindByEmail     func(context.Context, string) (Account, error)
	IsAccountAbsent func(error) bool
	HashPassword    func(string) (string, error)
	SaveAccount     func(context.Context, Account) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics RecoveryMetrics
	Events  RecoveryEvents
	Errors  RecoveryErrors
}

func normalizeRecoveryDeps(deps *RecoveryDeps) {
	normalizeCommon(&deps.Now, &deps.MetricInc, &deps.EmitAudit, &deps.Logger)
	if deps.ValidateEmail == nil {
		deps.ValidateEmail = func(string) error { return nil }
	}
}

func recoveryReady(deps *RecoveryDeps) bool {
	return deps.ValidatePassword != nil && deps.NewCode != nil && deps.ValidCode != nil &&
		deps.SavePending != nil && deps.TakePending != nil && deps.DeletePending != nil &&
		deps.IsNotFound != nil && deps.Notify != nil && deps.FindByEmail != nil &&
		deps.IsAccountAbsent != nil && deps.HashPassword != nil && deps.SaveAccount != nil &&
		deps.CodeTTL > 0
}

// RunRequestRecovery issues a recovery code for the account registered under
// email and sends it there.
func RunRequestRecovery(ctx context.Context, email string, deps RecoveryDeps) (int, time.Time, error) {
	normalizeRecoveryDeps(&deps)
	if !recoveryReady(&deps) {
		return 0, time.Time{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) (int, time.Time, error) {
		deps.EmitAudit(ctx, deps.Events.RecoveryRequest, false, "", err, func() map[string]string {
			return map[string]string{"email": email, "reason": reason}
		})
		return 0, time.Time{}, err
	}

	if err := deps.ValidateEmail(email); err != nil {
		return fail(err, "validation")
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsAccountAbsent(err) {
			deps.MetricInc(deps.Metrics.RecoveryUnknownEmail)
			return fail(deps.Errors.UserNotFound, "user_not_found")
		}
		if isContextErr(err) {
			return 0, time.Time{}, err
		}
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, err), "account_store")
	}

	code, err := issueCode(ctx, codeIssue{
		attempts: deps.CodeAttempts,
		newCode:  deps.NewCode,
		save: func(ctx context.Context, code int) (bool, error) {
			return deps.SavePending(ctx, code, account.Email, deps.CodeTTL)
		},
		onCollision: func() { deps.MetricInc(deps.Metrics.CodeCollision) },
		unavailable: deps.Errors.Unavailable,
		exhausted:   deps.Errors.CodeSpaceExhausted,
	})
	if err != nil {
		return fail(err, "code_store")
	}
	expiresAt := deps.Now().Add(deps.CodeTTL)

	if err := deps.Notify(ctx, account.Email, code); err != nil {
		deps.MetricInc(deps.Metrics.NotificationFailure)
		if delErr := deps.DeletePending(context.WithoutCancel(ctx), code); delErr != nil {
			deps.Logger.Warn("drop undelivered recovery code", zap.Error(delErr))
		}
		deps.Logger.Warn("recovery notification failed", zap.String("account_id", account.ID), zap.Error(err))
		return fail(fmt.Errorf("%w: %v", deps.Errors.Notification, err), "notification")
	}

	deps.MetricInc(deps.Metrics.RecoveryRequest)
	deps.EmitAudit(ctx, deps.Events.RecoveryRequest, true, account.ID, nil, nil)
	return code, expiresAt, nil
}

// RunRedeemRecovery checks the new password, redeems code and replaces the
// password of the account the code was issued for.
func RunRedeemRecovery(ctx context.Context, code int, newPassword, confirmPassword string, deps RecoveryDeps) (Account, error) {
	normalizeRecoveryDeps(&deps)
	if !recoveryReady(&deps) {
		return Account{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, accountID, reason string) (Account, error) {
		deps.MetricInc(deps.Metrics.RecoveryRedeemFailure)
		deps.EmitAudit(ctx, deps.Events.RecoveryRedeem, false, accountID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return Account{}, err
	}

	if err := deps.ValidatePassword(newPassword, confirmPassword); err != nil {
		return fail(err, "", "validation")
	}
	if !deps.ValidCode(code) {
		return fail(deps.Errors.InvalidCode, "", "code_out_of_range")
	}

	email, remaining, err := deps.TakePending(ctx, code)
	if err != nil {
		if errors.Is(err, ErrCorruptPending) {
			deps.Logger.Error("undecodable recovery code record", zap.Int("code", code), zap.Error(err))
			return fail(deps.Errors.InvalidCode, "", "code_corrupt")
		}
		if deps.IsNotFound(err) {
			return fail(deps.Errors.InvalidCode, "", "code_unknown")
		}
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, err), "", "code_store")
	}

	restore := func(cause error, accountID, reason string) (Account, error) {
		if rErr := restorePending(ctx, remaining, func(ctx context.Context, ttl time.Duration) error {
			_, err := deps.SavePending(ctx, code, email, ttl)
			return err
		}); rErr != nil {
			deps.Logger.Warn("restore recovery code", zap.Error(rErr))
		}
		if isContextErr(cause) {
			return fail(cause, accountID, reason)
		}
		return fail(fmt.Errorf("%w: %v", deps.Errors.Unavailable, cause), accountID, reason)
	}

	account, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.IsAccountAbsent(err) {
			return fail(deps.Errors.UserNotFound, "", "user_not_found")
		}
		return restore(err, "", "account_store")
	}

	digest, err := deps.HashPassword(newPassword)
	if err != nil {
		return restore(err, account.ID, "hash")
	}
	account.PasswordHash = digest

	if err := deps.SaveAccount(ctx, account); err != nil {
		if deps.IsAccountAbsent(err) {
			return fail(deps.Errors.UserNotFound, account.ID, "user_not_found")
		}
		return restore(err, account.ID, "save")
	}

	deps.MetricInc(deps.Metrics.RecoveryRedeemSuccess)
	deps.EmitAudit(ctx, deps.Events.RecoveryRedeem, true, account.ID, nil, nil)
	return account, nil
}

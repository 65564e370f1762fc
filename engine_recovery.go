package keygate

import (
	"context"
	"fmt"
	"time"

	"github.com/plextask/keygate/internal"
	"github.com/plextask/keygate/internal/flows"
	"github.com/plextask/keygate/internal/stores"
)

// RequestRecovery issues a password recovery code for the account
// registered under email and sends it there. An unknown email fails with
// ErrUserNotFound.
func (e *Engine) RequestRecovery(ctx context.Context, email string) (PendingCode, error) {
	email = normalizeEmail(email)
	code, expiresAt, err := flows.RunRequestRecovery(ctx, email, e.recoveryDeps())
	if err != nil {
		return PendingCode{}, err
	}
	return PendingCode{Code: code, Email: email, ExpiresAt: expiresAt}, nil
}

// RedeemRecovery replaces the password of the account code was issued for.
// The new password must satisfy the strength rule and equal confirm,
// otherwise a *ValidationError is returned and the code stays redeemable.
func (e *Engine) RedeemRecovery(ctx context.Context, code int, newPassword, confirm string) (AccountIdentity, error) {
	account, err := flows.RunRedeemRecovery(ctx, code, newPassword, confirm, e.recoveryDeps())
	if err != nil {
		return AccountIdentity{}, err
	}
	return fromFlowAccount(account).Identity(), nil
}

func (e *Engine) recoveryDeps() flows.RecoveryDeps {
	if !e.ready() {
		return flows.RecoveryDeps{Errors: flows.RecoveryErrors{EngineNotReady: ErrEngineNotReady}}
	}
	cfg := e.config.Recovery

	return flows.RecoveryDeps{
		CodeTTL:      cfg.CodeTTL,
		CodeAttempts: cfg.CodeAttempts,
		Now:          e.now,
		Logger:       e.log(),

		ValidateEmail:    validateRecoveryEmail,
		ValidatePassword: validateNewPassword,

		NewCode:   e.newCode,
		ValidCode: internal.ValidCode,
		SavePending: func(ctx context.Context, code int, email string, ttl time.Duration) (bool, error) {
			data, err := stores.EncodeRecoveryRecord(&stores.RecoveryRecord{Email: email})
			if err != nil {
				return false, err
			}
			return e.secrets.PutNew(ctx, e.codeKey(cfg.KeyPrefix, code), data, ttl)
		},
		TakePending: func(ctx context.Context, code int) (string, time.Duration, error) {
			data, remaining, err := e.secrets.Take(ctx, e.codeKey(cfg.KeyPrefix, code))
			if err != nil {
				return "", 0, err
			}
			record, err := stores.DecodeRecoveryRecord(data)
			if err != nil {
				return "", 0, fmt.Errorf("%w: %v", flows.ErrCorruptPending, err)
			}
			return record.Email, remaining, nil
		},
		DeletePending: func(ctx context.Context, code int) error {
			return e.secrets.Delete(ctx, e.codeKey(cfg.KeyPrefix, code))
		},
		IsNotFound: isSecretAbsent,
		Notify: func(ctx context.Context, email string, code int) error {
			return e.recoveryMessage.send(ctx, e.notifier, email, code)
		},

		FindByEmail: func(ctx context.Context, email string) (flows.Account, error) {
			account, err := e.accounts.FindByEmail(ctx, email)
			return toFlowAccount(account), err
		},
		IsAccountAbsent: isAccountAbsent,
		HashPassword:    e.hashPassword,
		SaveAccount: func(ctx context.Context, a flows.Account) error {
			return e.accounts.Save(ctx, fromFlowAccount(a))
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.auditFunc(),

		Metrics: flows.RecoveryMetrics{
			RecoveryRequest:       int(MetricRecoveryRequest),
			RecoveryUnknownEmail:  int(MetricRecoveryUnknownEmail),
			RecoveryRedeemSuccess: int(MetricRecoveryRedeemSuccess),
			RecoveryRedeemFailure: int(MetricRecoveryRedeemFailure),
			CodeCollision:         int(MetricCodeCollision),
			NotificationFailure:   int(MetricNotificationFailure),
		},
		Events: flows.RecoveryEvents{
			RecoveryRequest: auditEventRecoveryRequest,
			RecoveryRedeem:  auditEventRecoveryRedeem,
		},
		Errors: flows.RecoveryErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCode:        ErrInvalidCode,
			UserNotFound:       ErrUserNotFound,
			Unavailable:        ErrUnavailable,
			Notification:       ErrNotification,
			CodeSpaceExhausted: ErrCodeSpaceExhausted,
		},
	}
}

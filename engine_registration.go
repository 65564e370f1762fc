package keygate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/plextask/keygate/internal"
	"github.com/plextask/keygate/internal/flows"
	"github.com/plextask/keygate/internal/stores"
)

// Register validates req, parks it under a fresh six-digit code for the
// configured TTL and emails the code to req.Email. Nothing is written to
// the account store until ConfirmRegistration.
//
// Nickname and display name are trimmed before validation and storage.
//
// Field problems, including a nickname or email already in use, are
// reported together as a *ValidationError.
func (e *Engine) Register(ctx context.Context, req RegistrationRequest) (PendingCode, error) {
	req.Nickname = strings.TrimSpace(req.Nickname)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = normalizeEmail(req.Email)
	candidate := flows.Candidate{
		Nickname:    req.Nickname,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
	}

	deps := e.registrationDeps()
	deps.Validate = func(ctx context.Context, _ flows.Candidate) error {
		return e.validateRegistration(ctx, req)
	}

	code, expiresAt, err := flows.RunRequestRegistration(ctx, candidate, deps)
	if err != nil {
		return PendingCode{}, err
	}
	return PendingCode{Code: code, Email: req.Email, ExpiresAt: expiresAt}, nil
}

// ConfirmRegistration redeems code and creates the account. The code is
// consumed atomically; a second confirmation of the same code, concurrent
// or not, fails with ErrInvalidCode. A nickname or email claimed in the
// meantime fails with a *ConflictError.
func (e *Engine) ConfirmRegistration(ctx context.Context, code int) (AccountIdentity, error) {
	account, err := flows.RunConfirmRegistration(ctx, code, e.registrationDeps())
	if err != nil {
		return AccountIdentity{}, err
	}
	return fromFlowAccount(account).Identity(), nil
}

func (e *Engine) registrationDeps() flows.RegistrationDeps {
	if !e.ready() {
		return flows.RegistrationDeps{Errors: flows.RegistrationErrors{EngineNotReady: ErrEngineNotReady}}
	}
	cfg := e.config.Registration

	return flows.RegistrationDeps{
		CodeTTL:      cfg.CodeTTL,
		CodeAttempts: cfg.CodeAttempts,
		Now:          e.now,
		Logger:       e.log(),

		NewCode:   e.newCode,
		ValidCode: internal.ValidCode,
		SavePending: func(ctx context.Context, code int, c flows.Candidate, ttl time.Duration) (bool, error) {
			data, err := stores.EncodeRegistrationRecord(&stores.RegistrationRecord{
				Nickname:    c.Nickname,
				DisplayName: c.DisplayName,
				Email:       c.Email,
				Password:    c.Password,
			})
			if err != nil {
				return false, err
			}
			return e.secrets.PutNew(ctx, e.codeKey(cfg.KeyPrefix, code), data, ttl)
		},
		TakePending: func(ctx context.Context, code int) (flows.Candidate, time.Duration, error) {
			data, remaining, err := e.secrets.Take(ctx, e.codeKey(cfg.KeyPrefix, code))
			if err != nil {
				return flows.Candidate{}, 0, err
			}
			record, err := stores.DecodeRegistrationRecord(data)
			if err != nil {
				return flows.Candidate{}, 0, fmt.Errorf("%w: %v", flows.ErrCorruptPending, err)
			}
			return flows.Candidate{
				Nickname:    record.Nickname,
				DisplayName: record.DisplayName,
				Email:       record.Email,
				Password:    record.Password,
			}, remaining, nil
		},
		DeletePending: func(ctx context.Context, code int) error {
			return e.secrets.Delete(ctx, e.codeKey(cfg.KeyPrefix, code))
		},
		IsNotFound: isSecretAbsent,
		Notify: func(ctx context.Context, c flows.Candidate, code int) error {
			return e.registrationMessage.send(ctx, e.notifier, c.Email, code)
		},

		Validate: func(context.Context, flows.Candidate) error { return nil },
		CheckUnique: func(ctx context.Context, nickname, email string) error {
			return e.checkUnique(ctx, nickname, email)
		},
		HashPassword: e.hashPassword,
		NewAccountID: e.newID,
		CreateAccount: func(ctx context.Context, a flows.Account) (flows.Account, error) {
			created, err := e.accounts.Create(ctx, fromFlowAccount(a))
			if err != nil {
				return flows.Account{}, err
			}
			return toFlowAccount(created), nil
		},
		IsConflict: isConflict,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.auditFunc(),

		Metrics: flows.RegistrationMetrics{
			RegistrationRequest:        int(MetricRegistrationRequest),
			RegistrationRejected:       int(MetricRegistrationRejected),
			RegistrationConfirmSuccess: int(MetricRegistrationConfirmSuccess),
			RegistrationConfirmFailure: int(MetricRegistrationConfirmFailure),
			CodeCollision:              int(MetricCodeCollision),
			NotificationFailure:        int(MetricNotificationFailure),
		},
		Events: flows.RegistrationEvents{
			RegistrationRequest: auditEventRegistrationRequest,
			RegistrationConfirm: auditEventRegistrationConfirm,
		},
		Errors: flows.RegistrationErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCode:        ErrInvalidCode,
			Unavailable:        ErrUnavailable,
			Notification:       ErrNotification,
			CodeSpaceExhausted: ErrCodeSpaceExhausted,
		},
	}
}

package keygate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/plextask/keygate/internal/flows"
	"github.com/plextask/keygate/internal/stores"
	"github.com/plextask/keygate/jwt"
	"go.uber.org/zap"
)

// ErrSecretAbsent is what SecretStore implementations return for a key that
// is missing or has expired.
var ErrSecretAbsent = stores.ErrSecretNotFound

// Engine runs the registration, authentication, refresh and recovery
// workflows. Build one with the Builder returned by New; all methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	secrets  SecretStore
	accounts AccountStore
	notifier Notifier
	hasher   PasswordHasher
	tokens   *jwt.Manager
	audit    *auditDispatcher
	metrics  *Metrics
	logger   *zap.Logger

	registrationMessage *codeMessage
	recoveryMessage     *codeMessage

	clock   func() time.Time
	newCode func() (int, error)
	newID   func() string
}

// Close flushes the audit dispatcher. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) hashPassword(plaintext string) (string, error) {
	start := e.now()
	digest, err := e.hasher.Hash(plaintext)
	e.metricObserve(MetricPasswordHashLatency, e.now().Sub(start))
	return digest, err
}

func (e *Engine) codeKey(prefix string, code int) string {
	return prefix + ":" + strconv.Itoa(code)
}

func (e *Engine) ready() bool {
	return e != nil && e.secrets != nil && e.accounts != nil && e.notifier != nil &&
		e.hasher != nil && e.tokens != nil && e.newCode != nil && e.newID != nil &&
		e.registrationMessage != nil && e.recoveryMessage != nil
}

func (e *Engine) log() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isSecretAbsent(err error) bool {
	return errors.Is(err, ErrSecretAbsent)
}

func isAccountAbsent(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

func toFlowAccount(a Account) flows.Account {
	return flows.Account{
		ID:           a.ID,
		Nickname:     a.Nickname,
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
}

func fromFlowAccount(a flows.Account) Account {
	return Account{
		ID:           a.ID,
		Nickname:     a.Nickname,
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
	}
}

func (e *Engine) auditFunc() flows.AuditFunc {
	return func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string) {
		e.emitAudit(ctx, event, success, accountID, err, metadata)
	}
}

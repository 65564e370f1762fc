package flows

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrCorruptPending marks a pending record that was taken from the store but
// could not be decoded. The code is gone either way.
var ErrCorruptPending = errors.New("corrupt pending record")

// Account is the flow-local account model.
type Account struct {
	ID           string
	Nickname     string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Candidate is a registration request that has passed field validation.
type Candidate struct {
	Nickname    string
	DisplayName string
	Email       string
	Password    string
}

// AuditFunc emits one audit event. Metadata is built lazily.
type AuditFunc func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopMetric(int) {}

func normalizeCommon(now *func() time.Time, metricInc *func(int), emit *AuditFunc, logger **zap.Logger) {
	if *now == nil {
		*now = time.Now
	}
	if *metricInc == nil {
		*metricInc = noopMetric
	}
	if *emit == nil {
		*emit = noopAudit
	}
	if *logger == nil {
		*logger = zap.NewNop()
	}
}

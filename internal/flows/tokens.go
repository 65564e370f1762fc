package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/plextask/keygate/jwt"
)

type TokenMetrics struct {
	RefreshSuccess int
	RefreshFailure int
}

type TokenEvents struct {
	Refresh string
}

type TokenErrors struct {
	EngineNotReady error
	TokenInvalid   error
}

// TokenDeps captures refresh and access validation dependencies.
type TokenDeps struct {
	Refresh     func(string) (string, time.Time, error)
	ParseAccess func(string) (*jwt.Claims, error)

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics TokenMetrics
	Events  TokenEvents
	Errors  TokenErrors
}

func normalizeTokenDeps(deps *TokenDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
}

// RunRefresh exchanges a refresh token for a new access token.
func RunRefresh(ctx context.Context, refreshToken string, deps TokenDeps) (string, time.Time, error) {
	normalizeTokenDeps(&deps)
	if deps.Refresh == nil {
		return "", time.Time{}, deps.Errors.EngineNotReady
	}

	access, expiresAt, err := deps.Refresh(refreshToken)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err)
		deps.MetricInc(deps.Metrics.RefreshFailure)
		deps.EmitAudit(ctx, deps.Events.Refresh, false, "", wrapped, nil)
		return "", time.Time{}, wrapped
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, deps.Events.Refresh, true, "", nil, nil)
	return access, expiresAt, nil
}

// RunValidateAccess verifies an access token and returns its claims. It has
// no audit side effects; it sits on every protected request.
func RunValidateAccess(accessToken string, deps TokenDeps) (*jwt.Claims, error) {
	if deps.ParseAccess == nil {
		return nil, deps.Errors.EngineNotReady
	}
	claims, err := deps.ParseAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err)
	}
	return claims, nil
}

package keygate

import (
	"context"
	"time"

	"github.com/plextask/keygate/internal/flows"
	"github.com/plextask/keygate/jwt"
)

// Refresh exchanges a refresh token for a new access token bound to the
// same account. Refresh tokens are stateless: they are not rotated, and
// remain usable until they expire. Any invalid token yields ErrTokenInvalid.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (AccessToken, error) {
	token, expiresAt, err := flows.RunRefresh(ctx, refreshToken, e.tokenDeps())
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateAccess verifies an access token and returns its subject.
func (e *Engine) ValidateAccess(accessToken string) (Principal, error) {
	claims, err := flows.RunValidateAccess(accessToken, e.tokenDeps())
	if err != nil {
		return Principal{}, err
	}
	p := Principal{AccountID: claims.Subject, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// RefreshTTL reports the refresh token lifetime, for cookie expiry.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil || e.tokens == nil {
		return 0
	}
	return e.tokens.RefreshTTL()
}

func (e *Engine) tokenDeps() flows.TokenDeps {
	if e == nil || e.tokens == nil {
		return flows.TokenDeps{Errors: flows.TokenErrors{EngineNotReady: ErrEngineNotReady}}
	}
	return flows.TokenDeps{
		Refresh:     e.tokens.Refresh,
		ParseAccess: func(token string) (*jwt.Claims, error) { return e.tokens.ParseAccess(token) },

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.auditFunc(),

		Metrics: flows.TokenMetrics{
			RefreshSuccess: int(MetricRefreshSuccess),
			RefreshFailure: int(MetricRefreshFailure),
		},
		Events: flows.TokenEvents{Refresh: auditEventTokenRefresh},
		Errors: flows.TokenErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
		},
	}
}

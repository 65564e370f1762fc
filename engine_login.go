package keygate

import (
	"context"
	"strings"
	"time"

	"github.com/plextask/keygate/internal/flows"
	"github.com/plextask/keygate/jwt"
)

// Authenticate resolves identifier as an email first and then as a
// nickname, checks password and issues a token pair for the account.
//
// It fails with ErrUserNotFound or ErrWrongPassword. The two stay distinct
// here; IsCredentialFailure lets a boundary merge them.
func (e *Engine) Authenticate(ctx context.Context, identifier, password string) (LoginResult, error) {
	identifier = strings.TrimSpace(identifier)
	account, pair, err := flows.RunAuthenticate(ctx, identifier, password, e.loginDeps())
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Account: fromFlowAccount(account).Identity(),
		Tokens: TokenPair{
			AccessToken:      pair.AccessToken,
			RefreshToken:     pair.RefreshToken,
			AccessExpiresAt:  pair.AccessExpiresAt,
			RefreshExpiresAt: pair.RefreshExpiresAt,
		},
	}, nil
}

// identityLookups is the fixed resolution order for login identifiers.
func (e *Engine) identityLookups() []flows.LookupFunc {
	byEmail := func(ctx context.Context, identifier string) (flows.Account, error) {
		account, err := e.accounts.FindByEmail(ctx, normalizeEmail(identifier))
		return toFlowAccount(account), err
	}
	byNickname := func(ctx context.Context, identifier string) (flows.Account, error) {
		account, err := e.accounts.FindByNickname(ctx, identifier)
		return toFlowAccount(account), err
	}
	return []flows.LookupFunc{byEmail, byNickname}
}

func (e *Engine) loginDeps() flows.LoginDeps {
	if !e.ready() {
		return flows.LoginDeps{Errors: flows.LoginErrors{EngineNotReady: ErrEngineNotReady}}
	}

	return flows.LoginDeps{
		Now:    e.now,
		Logger: e.log(),

		Lookups:        e.identityLookups(),
		IsNotFound:     isAccountAbsent,
		VerifyPassword: e.hasher.Verify,
		IssueTokens:    func(subject string) (jwt.Pair, error) { return e.tokens.CreatePair(subject) },

		MetricInc:     func(id int) { e.metricInc(MetricID(id)) },
		MetricObserve: func(id int, d time.Duration) { e.metricObserve(MetricID(id), d) },
		EmitAudit:     e.auditFunc(),

		Metrics: flows.LoginMetrics{
			LoginSuccess:         int(MetricLoginSuccess),
			LoginUnknownIdentity: int(MetricLoginUnknownIdentity),
			LoginWrongPassword:   int(MetricLoginWrongPassword),
			PasswordVerify:       int(MetricPasswordVerifyLatency),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: flows.LoginErrors{
			EngineNotReady: ErrEngineNotReady,
			UserNotFound:   ErrUserNotFound,
			WrongPassword:  ErrWrongPassword,
			Unavailable:    ErrUnavailable,
		},
	}
}

package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/plextask/keygate/jwt"
	"go.uber.org/zap"
)

type LoginMetrics struct {
	LoginSuccess         int
	LoginUnknownIdentity int
	LoginWrongPassword   int
	PasswordVerify       int
}

type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

type LoginErrors struct {
	EngineNotReady error
	UserNotFound   error
	WrongPassword  error
	Unavailable    error
}

// LookupFunc resolves an identifier to an account by one attribute.
type LookupFunc func(context.Context, string) (Account, error)

// LoginDeps captures authentication flow dependencies. Lookups are tried in
// order; the first hit wins.
type LoginDeps struct {
	Now    func() time.Time
	Logger *zap.Logger

	Lookups        []LookupFunc
	IsNotFound     func(error) bool
	VerifyPassword func(string, string) (bool, error)
	IssueTokens    func(string) (jwt.Pair, error)

	MetricInc     func(int)
	MetricObserve func(int, time.Duration)
	EmitAudit     AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	normalizeCommon(&deps.Now, &deps.MetricInc, &deps.EmitAudit, &deps.Logger)
	if deps.MetricObserve == nil {
		deps.MetricObserve = func(int, time.Duration) {}
	}
}

// RunAuthenticate resolves identifier, checks password and issues a token
// pair. Unknown identity and wrong password stay distinct errors.
func RunAuthenticate(ctx context.Context, identifier, password string, deps LoginDeps) (Account, jwt.Pair, error) {
	normalizeLoginDeps(&deps)
	if len(deps.Lookups) == 0 || deps.IsNotFound == nil || deps.VerifyPassword == nil || deps.IssueTokens == nil {
		return Account{}, jwt.Pair{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, metric int, accountID, reason string) (Account, jwt.Pair, error) {
		deps.MetricInc(metric)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, accountID, err, func() map[string]string {
			return map[string]string{"identifier": identifier, "reason": reason}
		})
		return Account{}, jwt.Pair{}, err
	}

	account, found, err := resolveIdentity(ctx, identifier, deps)
	if err != nil {
		if isContextErr(err) {
			return Account{}, jwt.Pair{}, err
		}
		deps.Logger.Error("account lookup failed", zap.Error(err))
		return Account{}, jwt.Pair{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !found {
		return fail(deps.Errors.UserNotFound, deps.Metrics.LoginUnknownIdentity, "", "user_not_found")
	}

	start := deps.Now()
	ok, err := deps.VerifyPassword(password, account.PasswordHash)
	deps.MetricObserve(deps.Metrics.PasswordVerify, deps.Now().Sub(start))
	if err != nil {
		deps.Logger.Error("stored password digest unusable", zap.String("account_id", account.ID), zap.Error(err))
		return Account{}, jwt.Pair{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !ok {
		return fail(deps.Errors.WrongPassword, deps.Metrics.LoginWrongPassword, account.ID, "wrong_password")
	}

	pair, err := deps.IssueTokens(account.ID)
	if err != nil {
		return Account{}, jwt.Pair{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, nil, nil)
	return account, pair, nil
}

func resolveIdentity(ctx context.Context, identifier string, deps LoginDeps) (Account, bool, error) {
	if identifier == "" {
		return Account{}, false, nil
	}
	for _, lookup := range deps.Lookups {
		account, err := lookup(ctx, identifier)
		if err == nil {
			return account, true, nil
		}
		if !deps.IsNotFound(err) {
			return Account{}, false, err
		}
	}
	return Account{}, false, nil
}

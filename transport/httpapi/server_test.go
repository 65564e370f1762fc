package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plextask/keygate"
	"github.com/plextask/keygate/storage/memory"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var codePattern = regexp.MustCompile(`code for [a-z ]+: (\d{6})`)

type mailbox struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

func (m *mailbox) Send(_ context.Context, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.last == nil {
		m.last = make(map[string]string)
	}
	m.last[to] = body
	return nil
}

func (m *mailbox) code(t *testing.T, to string) int {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	match := codePattern.FindStringSubmatch(m.last[to])
	require.Len(t, match, 2, "no code mailed to %s", to)
	code, err := strconv.Atoi(match[1])
	require.NoError(t, err)
	return code
}

type fixture struct {
	engine *keygate.Engine
	redis  *miniredis.Miniredis
	mail   *mailbox
	logs   *observer.ObservedLogs
	srv    *Server
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := keygate.DefaultConfig()
	cfg.Token.PrivateKey = []byte("httpapi-test-secret-0123456789ab")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	mail := &mailbox{}
	engine, err := keygate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(memory.New()).
		WithNotifier(mail).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	core, logs := observer.New(zap.InfoLevel)
	opts := Options{Logger: zap.New(core), AllowedOrigins: []string{"http://localhost:4200"}}
	for _, fn := range mutate {
		fn(&opts)
	}

	return &fixture{engine: engine, redis: mr, mail: mail, logs: logs, srv: New(engine, opts)}
}

func (f *fixture) do(t *testing.T, method, path string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, fn := range opts {
		fn(req)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorsOf(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	errs, ok := decode(t, rec)["errors"].(map[string]any)
	require.True(t, ok, "no errors object in %s", rec.Body.String())
	return errs
}

func refreshCookieOf(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == refreshCookie {
			return c
		}
	}
	return nil
}

var neo = registerRequest{
	Nickname:        "neo",
	Username:        "Thomas Anderson",
	Email:           "neo@example.com",
	Password:        "Secr3t!pass",
	ConfirmPassword: "Secr3t!pass",
}

func (f *fixture) registerNeo(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/register", neo)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/auth/register-confirm", gin.H{"code": f.mail.code(t, neo.Email)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) loginNeo(t *testing.T, tokenTime int) *httptest.ResponseRecorder {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", gin.H{"nickname": neo.Nickname, "password": neo.Password, "token_time": tokenTime})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec
}

func TestRegisterAndConfirm(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", neo)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgRegisterSent, decode(t, rec)["message"])
	assert.NotContains(t, rec.Body.String(), strconv.Itoa(f.mail.code(t, neo.Email)))

	// Codes sent as strings are accepted too.
	code := strconv.Itoa(f.mail.code(t, neo.Email))
	rec = f.do(t, http.MethodPost, "/auth/register-confirm", gin.H{"code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, msgRegistered, decode(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/auth/register-confirm", gin.H{"code": code})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgWrongCode, errorsOf(t, rec)["message"])
}

func TestRegisterValidationErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/register", registerRequest{
		Nickname:        "neo",
		Email:           "not-an-email",
		Password:        "short",
		ConfirmPassword: "other",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errs := errorsOf(t, rec)
	assert.Equal(t, "This field is required.", errs["username"])
	assert.Equal(t, "Invalid email format.", errs["email"])
	assert.Contains(t, errs["password"], "at least 8 characters")
	assert.Equal(t, "Passwords must match.", errs["confirm_password"])
}

func TestRegisterTakenNickname(t *testing.T) {
	f := newFixture(t)
	f.registerNeo(t)

	again := neo
	again.Email = "other@example.com"
	rec := f.do(t, http.MethodPost, "/auth/register", again)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User with this nickname already exists.", errorsOf(t, rec)["nickname"])
}

func TestRegisterConfirmRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`{"code": 12}`, `{"code": "abc"}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/auth/register-confirm", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		f.srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msgWrongCode, errorsOf(t, rec)["message"], body)
	}
}

func TestRegisterNotificationFailure(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")

	rec := f.do(t, http.MethodPost, "/auth/register", neo)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgNotification, errorsOf(t, rec)["message"])
}

func TestRegisterRedisDown(t *testing.T) {
	f := newFixture(t)
	f.redis.Close()

	rec := f.do(t, http.MethodPost, "/auth/register", neo)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, msgUnavailable, errorsOf(t, rec)["message"])
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	f := newFixture(t)
	f.registerNeo(t)

	rec := f.loginNeo(t, 3600)
	body := decode(t, rec)
	require.NotEmpty(t, body["access_token"])

	user := body["user"].(map[string]any)
	assert.Equal(t, "neo", user["nickname"])
	assert.Equal(t, "Thomas Anderson", user["username"])
	assert.Equal(t, neo.Email, user["email"])
	assert.EqualValues(t, 3600, user["refresh_token_time"])
	assert.NotEmpty(t, user["pk"])

	cookie := refreshCookieOf(rec)
	require.NotNil(t, cookie)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestLoginCookieLifetime(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.InsecureCookies = true })
	f.registerNeo(t)

	session := refreshCookieOf(f.loginNeo(t, 0))
	require.NotNil(t, session)
	assert.Zero(t, session.MaxAge)
	assert.False(t, session.Secure)

	capped := f.loginNeo(t, 100*24*3600)
	assert.Equal(t, int(f.engine.RefreshTTL()/time.Second), refreshCookieOf(capped).MaxAge)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.registerNeo(t)

	cases := []struct {
		name   string
		body   gin.H
		status int
		field  string
		msg    string
	}{
		{"missing nickname", gin.H{"password": "x"}, http.StatusNotFound, "nickname", msgRequired},
		{"missing password", gin.H{"nickname": "neo"}, http.StatusBadRequest, "password", msgRequired},
		{"negative token time", gin.H{"nickname": "neo", "password": "x", "token_time": -1}, http.StatusBadRequest, "token_time", msgNegativeTime},
		{"unknown user", gin.H{"nickname": "morpheus", "password": neo.Password}, http.StatusNotFound, "nickname", msgUserNotExist},
		{"wrong password", gin.H{"nickname": "neo@example.com", "password": "Wr0ng!pass"}, http.StatusNotFound, "password", msgWrongPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/login", tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.msg, errorsOf(t, rec)[tc.field])
			assert.Nil(t, refreshCookieOf(rec))
		})
	}
}

func TestLoginMaskedCredentialErrors(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaskCredentialErrors = true })
	f.registerNeo(t)

	unknown := f.do(t, http.MethodPost, "/auth/login", gin.H{"nickname": "morpheus", "password": neo.Password})
	wrong := f.do(t, http.MethodPost, "/auth/login", gin.H{"nickname": "neo", "password": "Wr0ng!pass"})

	for _, rec := range []*httptest.ResponseRecorder{unknown, wrong} {
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, msgInvalidCreds, errorsOf(t, rec)["error"])
	}
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestRefreshFromCookie(t *testing.T) {
	f := newFixture(t)
	f.registerNeo(t)
	cookie := refreshCookieOf(f.loginNeo(t, 60))

	rec := f.do(t, http.MethodPost, "/auth/token/refresh", nil, func(r *http.Request) { r.AddCookie(cookie) })
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	access, _ := decode(t, rec)["access_token"].(string)
	require.NotEmpty(t, access)

	rec = f.do(t, http.MethodGet, "/auth/session", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+access)
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["account_id"])
}

func TestRefreshFailures(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/token/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgRefreshMissing, decode(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/auth/token/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: refreshCookie, Value: "garbage"})
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgRefreshInvalid, decode(t, rec)["error"])
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgLoggedOut, decode(t, rec)["message"])

	cookie := refreshCookieOf(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestPasswordRecovery(t *testing.T) {
	f := newFixture(t)
	f.registerNeo(t)

	rec := f.do(t, http.MethodPost, "/auth/request-password-recovery", gin.H{"email": neo.Email})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, msgRecoverySent, decode(t, rec)["message"])
	code := f.mail.code(t, neo.Email)

	rec = f.do(t, http.MethodPost, "/auth/password-recovery", gin.H{"code": code, "password": "N3w!secret", "confirm_password": "mismatch"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Passwords must match.", errorsOf(t, rec)["confirm_password"])

	rec = f.do(t, http.MethodPost, "/auth/password-recovery", gin.H{"code": code, "password": "N3w!secret", "confirm_password": "N3w!secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, msgPasswordChanged, decode(t, rec)["message"])

	rec = f.do(t, http.MethodPost, "/auth/login", gin.H{"nickname": "neo", "password": "N3w!secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password-recovery", gin.H{"code": code, "password": "N3w!secret", "confirm_password": "N3w!secret"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgWrongCode, errorsOf(t, rec)["message"])
}

func TestRequestRecoveryErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/request-password-recovery", gin.H{"email": "ghost@example.com"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgEmailNotExist, errorsOf(t, rec)["email"])

	rec = f.do(t, http.MethodPost, "/auth/request-password-recovery", gin.H{"email": "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email format.", errorsOf(t, rec)["email"])
}

func TestSessionRequiresToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	healthErr := errors.New("redis down")
	var fail bool
	f := newFixture(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("keygate_login_success_total 0\n"))
		})
		o.Health = func(context.Context) error {
			if fail {
				return healthErr
			}
			return nil
		}
	})

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	fail = true
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "keygate_login_success_total")
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/auth/login", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:4200")
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(t, http.MethodPost, "/auth/logout", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://evil.example")
	})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestsAreLogged(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/auth/logout", nil)

	entries := f.logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/auth/logout", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
}

type panicService struct{ Service }

func (panicService) Register(context.Context, keygate.RegistrationRequest) (keygate.PendingCode, error) {
	panic("boom")
}

func TestRecovererAnswers500(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	srv := New(panicService{}, Options{Logger: zap.New(core)})

	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, 1, logs.FilterMessage("panic").Len())
}

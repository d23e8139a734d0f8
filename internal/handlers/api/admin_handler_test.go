package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/rootgate/internal/credentials"
	"github.com/khanghh/rootgate/internal/gate"
	"github.com/khanghh/rootgate/internal/handlers/api"
	"github.com/khanghh/rootgate/internal/middlewares"
	"github.com/khanghh/rootgate/internal/middlewares/sessions"
	"github.com/khanghh/rootgate/internal/ratelimit"
	"github.com/khanghh/rootgate/internal/session"
	"github.com/khanghh/rootgate/internal/store"
	"github.com/khanghh/rootgate/internal/totp"
	"github.com/khanghh/rootgate/params"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "admin@example.com"
	testPassword = "correct horse battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type testServer struct {
	app    *fiber.App
	clock  *testClock
	engine *totp.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := &testClock{now: time.Now().Truncate(time.Second)}
	storage := store.NewMemoryStorage(store.MemoryConfig{Now: clock.Now, SweepInterval: time.Hour})
	t.Cleanup(func() { storage.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	checker, err := credentials.NewStaticChecker([]credentials.StaticAdmin{{Email: testEmail, PasswordHash: string(hash)}})
	require.NoError(t, err)
	engine, err := totp.NewEngine("12345678901234567890", totp.SkewSymmetric)
	require.NoError(t, err)
	tokens, err := session.NewTokenService(session.Config{Secret: strings.Repeat("s", 32), Now: clock.Now})
	require.NoError(t, err)

	g, err := gate.NewGate(storage, gate.Config{
		Credentials: checker,
		TOTP:        engine,
		Limiter:     ratelimit.NewLimiter(storage, ratelimit.Config{Now: clock.Now}),
		Sessions:    tokens,
		Legacy: &session.LegacyVerifier{
			Enabled:  true,
			Identity: "owner@example.com",
			Until:    clock.Now().Add(24 * time.Hour),
			Now:      clock.Now,
		},
		ChallengeKey: strings.Repeat("c", 32),
		Now:          clock.Now,
	})
	require.NoError(t, err)

	cookies := &sessions.CookieConfig{SessionMaxAge: time.Hour}
	handler := api.NewAdminHandler(g, cookies)
	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	app.Use(sessions.New(g, cookies))
	admin := app.Group("/admin")
	admin.Post("/login", handler.PostLogin)
	admin.Post("/login/otp", handler.PostLoginOTP)
	admin.Post("/logout", handler.PostLogout)
	admin.Get("/session", sessions.RequireRootAdmin(), handler.GetSession)
	return &testServer{app: app, clock: clock, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) (*http.Response, api.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	var out api.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, params.APIVersion, out.APIVersion)
	return resp, out
}

func (s *testServer) code(t *testing.T) string {
	t.Helper()
	code, err := s.engine.Generate(s.clock.Now())
	require.NoError(t, err)
	return code
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	resp, out := s.do(t, fiber.MethodPost, "/admin/login", `{"email":"admin@example.com","password":"correct horse battery"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, string(gate.StateAwaitingOTP), out.Data.(map[string]any)["state"])
	challenge := findCookie(resp, params.ChallengeCookieName)
	require.NotNil(t, challenge)
	require.NotEmpty(t, challenge.Value)
	require.True(t, challenge.HttpOnly)
	return challenge
}

func TestAdminHandler_LoginFlow(t *testing.T) {
	s := newTestServer(t)
	challenge := s.login(t)

	legacy := &http.Cookie{Name: params.LegacySessionCookieName, Value: "1"}
	resp, out := s.do(t, fiber.MethodPost, "/admin/login/otp", `{"email":"admin@example.com","code":"`+s.code(t)+`"}`, challenge, legacy)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := out.Data.(map[string]any)
	require.Equal(t, string(gate.StateAuthenticated), data["state"])
	require.Equal(t, testEmail, data["identity"])

	sessionCookie := findCookie(resp, params.SessionCookieName)
	require.NotNil(t, sessionCookie)
	require.Equal(t, 3600, sessionCookie.MaxAge)
	require.True(t, sessionCookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, sessionCookie.SameSite)
	require.Equal(t, "/", sessionCookie.Path)
	require.Empty(t, findCookie(resp, params.LegacySessionCookieName).Value)
	require.Empty(t, findCookie(resp, params.ChallengeCookieName).Value)

	resp, out = s.do(t, fiber.MethodGet, "/admin/session", "", sessionCookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data = out.Data.(map[string]any)
	require.Equal(t, testEmail, data["identity"])
	require.Equal(t, string(session.VariantSigned), data["variant"])

	resp, _ = s.do(t, fiber.MethodPost, "/admin/logout", "", sessionCookie)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Empty(t, findCookie(resp, params.SessionCookieName).Value)
}

func TestAdminHandler_WrongCredentials(t *testing.T) {
	s := newTestServer(t)

	resp, out := s.do(t, fiber.MethodPost, "/admin/login", `{"email":"admin@example.com","password":"nope"}`)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, api.MsgLoginWrongCredentials, out.Error.Message)

	resp, out = s.do(t, fiber.MethodPost, "/admin/login", `{"email":""}`)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, api.MsgInvalidRequest, out.Error.Message)

	resp, _ = s.do(t, fiber.MethodPost, "/admin/login", `not json`)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminHandler_MismatchAndRateLimitLookAlike(t *testing.T) {
	s := newTestServer(t)
	wrong := `{"email":"admin@example.com","code":"000000"}`
	require.False(t, s.engine.Verify("000000", s.clock.Now()))

	var mismatch api.APIResponse
	for i := 0; i < 5; i++ {
		resp, out := s.do(t, fiber.MethodPost, "/admin/login/otp", wrong, s.login(t))
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		require.Empty(t, resp.Header.Get(fiber.HeaderRetryAfter))
		require.Zero(t, out.Error.RetryAfter)
		mismatch = out
	}

	resp, out := s.do(t, fiber.MethodPost, "/admin/login/otp", `{"email":"admin@example.com","code":"`+s.code(t)+`"}`, s.login(t))
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, mismatch.Error.Message, out.Error.Message)
	require.Equal(t, "900", resp.Header.Get(fiber.HeaderRetryAfter))
	require.Equal(t, 900, out.Error.RetryAfter)
}

func TestAdminHandler_ChallengeRequired(t *testing.T) {
	s := newTestServer(t)

	resp, out := s.do(t, fiber.MethodPost, "/admin/login/otp", `{"email":"admin@example.com","code":"`+s.code(t)+`"}`)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, api.MsgLoginSessionExpired, out.Error.Message)
	require.Nil(t, findCookie(resp, params.SessionCookieName))

	resp, _ = s.do(t, fiber.MethodPost, "/admin/login/otp", `{}`, s.login(t))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestAdminHandler_ChallengeTokenInBody(t *testing.T) {
	s := newTestServer(t)
	challenge := s.login(t)

	body := `{"code":"` + s.code(t) + `","challengeToken":"` + challenge.Value + `"}`
	resp, _ := s.do(t, fiber.MethodPost, "/admin/login/otp", body)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NotNil(t, findCookie(resp, params.SessionCookieName))
}

func TestAdminHandler_Session(t *testing.T) {
	s := newTestServer(t)

	resp, out := s.do(t, fiber.MethodGet, "/admin/session", "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, api.MsgNotAuthenticated, out.Error.Message)

	resp, _ = s.do(t, fiber.MethodGet, "/admin/session", "", &http.Cookie{Name: params.SessionCookieName, Value: "forged.token"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, out = s.do(t, fiber.MethodGet, "/admin/session", "", &http.Cookie{Name: params.LegacySessionCookieName, Value: "1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := out.Data.(map[string]any)
	require.Equal(t, "owner@example.com", data["identity"])
	require.Equal(t, string(session.VariantLegacy), data["variant"])
	require.Equal(t, true, data["deprecated"])
}

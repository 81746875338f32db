package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deskhub.org/internal/attendance"
	"deskhub.org/internal/identity"
	"deskhub.org/internal/obs"
	"deskhub.org/internal/resource"
	"deskhub.org/internal/role"
	"deskhub.org/internal/store/mem"
	"deskhub.org/internal/token"
)

type testEnv struct {
	api    *API
	tokens *token.Manager
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mem.New()
	tokens, err := token.NewManager(token.Config{SigningKey: []byte("test-secret")})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	att := attendance.NewService(store.Sessions())
	ids := identity.NewService(store.Users(), store.Desks(), tokens, att)
	res := resource.NewService(store)

	api := New(ids, att, res, tokens, ReadyProbe{}, Config{
		Version:       "test",
		RateBurst:     1000,
		RatePerSecond: 1000,
	})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testEnv{
		api:    api,
		tokens: tokens,
		server: server,
		client: &http.Client{Jar: jar},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) doList(t *testing.T, path string) (*http.Response, []map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var decoded []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) register(t *testing.T, email string, r role.Role) map[string]any {
	t.Helper()
	invite, _, err := e.tokens.IssueInvite(r)
	if err != nil {
		t.Fatalf("IssueInvite failed: %v", err)
	}
	resp, body := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"name":             "Test " + string(r),
		"email":            email,
		"password":         "secret123",
		"adminInviteToken": invite,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %v", email, resp.StatusCode, body)
	}
	return body
}

func (e *testEnv) enterDesk(t *testing.T, title string) string {
	t.Helper()
	resp, desk := e.do(t, http.MethodPost, "/api/desks", map[string]any{"title": title})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create desk: status %d, body %v", resp.StatusCode, desk)
	}
	deskID, _ := desk["_id"].(string)
	resp, body := e.do(t, http.MethodPost, "/api/desks/token", map[string]any{"deskId": deskID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("desk token: status %d, body %v", resp.StatusCode, body)
	}
	return deskID
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	body := env.register(t, "owner@example.com", role.Owner)
	if body["role"] != "owner" {
		t.Fatalf("registered role = %v, want owner", body["role"])
	}
	if body["token"] == nil || body["token"] == "" {
		t.Fatal("register should return a session token")
	}
	if _, ok := body["passwordHash"]; ok {
		t.Fatal("password hash must never appear in responses")
	}

	resp, login := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "owner@example.com",
		"password": "secret123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d, body %v", resp.StatusCode, login)
	}
	for _, key := range []string{"_id", "name", "email", "role", "token"} {
		if login[key] == nil {
			t.Fatalf("login response missing %q: %v", key, login)
		}
	}

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "authToken" && c.Value != "" {
			found = true
			if !c.HttpOnly {
				t.Fatal("authToken cookie must be httpOnly")
			}
		}
	}
	if !found {
		t.Fatal("login should set the authToken cookie")
	}
}

func TestRegisterRejectsBadInvite(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"name":             "Eve",
		"email":            "eve@example.com",
		"password":         "secret123",
		"adminInviteToken": "forged",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if body["message"] != "Unauthorized token" {
		t.Fatalf("message = %v, want Unauthorized token", body["message"])
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana@example.com", role.User)
	resp, _ := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDeskGateOrdering(t *testing.T) {
	env := newTestEnv(t)

	// No identity at all: 401.
	resp, _ := env.doList(t, "/api/tasks")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	// Identity but no desk token: 403 with the denial message.
	env.register(t, "owner@example.com", role.Owner)
	resp, body := env.do(t, http.MethodGet, "/api/tasks", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("no-desk status = %d, want 403", resp.StatusCode)
	}
	if body["message"] != "Acceso denegado" {
		t.Fatalf("message = %v, want Acceso denegado", body["message"])
	}

	// With a desk token the route opens.
	env.enterDesk(t, "Oficina")
	resp, _ = env.doList(t, "/api/tasks")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("desk-scoped status = %d, want 200", resp.StatusCode)
	}
}

func TestDeskTokenRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", role.Owner)
	deskID := env.enterDesk(t, "Oficina")

	// A second authenticated user who is not a member gets 401. Same server,
	// fresh cookie jar.
	jar, _ := cookiejar.New(nil)
	stranger := &http.Client{Jar: jar}

	invite, _, _ := env.tokens.IssueInvite(role.User)
	payload, _ := json.Marshal(map[string]any{
		"name": "Stranger", "email": "s@example.com", "password": "secret123",
		"adminInviteToken": invite,
	})
	resp, err := stranger.Post(env.server.URL+"/api/auth/register", "application/json", bytes.NewReader(payload))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("stranger register failed: %v %d", err, resp.StatusCode)
	}
	resp.Body.Close()

	payload, _ = json.Marshal(map[string]any{"deskId": deskID})
	resp, err = stranger.Post(env.server.URL+"/api/desks/token", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("desk token request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("non-member desk token status = %d, want 401", resp.StatusCode)
	}
}

func TestInviteTokenGates(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "user@example.com", role.User)

	// Plain user: neither issuance route opens.
	resp, _ := env.do(t, http.MethodGet, "/api/auth/invite-token?role=client", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user invite-token status = %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/auth/invite-token/member", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user member invite status = %d, want 403", resp.StatusCode)
	}

	admin := newTestEnv(t)
	admin.register(t, "admin@example.com", role.Admin)
	resp, _ = admin.do(t, http.MethodGet, "/api/auth/invite-token?role=client", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("admin on owner route status = %d, want 403", resp.StatusCode)
	}
	resp, body := admin.do(t, http.MethodGet, "/api/auth/invite-token/member", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin member invite status = %d, body %v", resp.StatusCode, body)
	}
	if body["role"] != "user" {
		t.Fatalf("member invite role = %v, want user", body["role"])
	}

	owner := newTestEnv(t)
	owner.register(t, "owner@example.com", role.Owner)
	resp, _ = owner.do(t, http.MethodGet, "/api/auth/invite-token?role=superadmin", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown role status = %d, want 400", resp.StatusCode)
	}
	resp, body = owner.do(t, http.MethodGet, "/api/auth/invite-token?role=admin", nil)
	if resp.StatusCode != http.StatusOK || body["token"] == nil {
		t.Fatalf("owner invite status = %d, body %v", resp.StatusCode, body)
	}
}

func TestResourceFlowWithSalesAndMovements(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", role.Owner)
	env.enterDesk(t, "Oficina")

	resp, acc := env.do(t, http.MethodPost, "/api/accounts", map[string]any{
		"name": "Caja principal",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create account: status %d, body %v", resp.StatusCode, acc)
	}
	accID := acc["_id"].(string)

	resp, sale := env.do(t, http.MethodPost, fmt.Sprintf("/api/accounts/%s/sales", accID), map[string]any{
		"amount":  2500,
		"concept": "venta mostrador",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record sale: status %d, body %v", resp.StatusCode, sale)
	}

	resp, got := env.do(t, http.MethodGet, "/api/accounts/"+accID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get account: status %d", resp.StatusCode)
	}
	if got["balance"] != float64(2500) {
		t.Fatalf("balance = %v, want 2500", got["balance"])
	}

	resp, item := env.do(t, http.MethodPost, "/api/inventories", map[string]any{"name": "Cafetera"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item: status %d, body %v", resp.StatusCode, item)
	}
	itemID := item["_id"].(string)

	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/inventories/%s/movements", itemID), map[string]any{
		"delta": 3, "note": "alta inicial",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("movement: status %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodPost, fmt.Sprintf("/api/inventories/%s/movements", itemID), map[string]any{
		"delta": -5, "note": "venta",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("underflow status = %d, want 409, body %v", resp.StatusCode, body)
	}
}

func TestTaskProgressDerivedOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", role.Owner)
	env.enterDesk(t, "Oficina")

	resp, task := env.do(t, http.MethodPost, "/api/tasks", map[string]any{
		"title": "Cierre mensual",
		"checklist": []map[string]any{
			{"text": "conciliar", "completed": true},
			{"text": "archivar", "completed": false},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d, body %v", resp.StatusCode, task)
	}
	if task["status"] != "En curso" || task["progress"] != float64(50) {
		t.Fatalf("derived = %v/%v, want En curso/50", task["status"], task["progress"])
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "owner@example.com", role.Owner)
	env.enterDesk(t, "Oficina")

	resp, body := env.do(t, http.MethodGet, "/api/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d, body %v", resp.StatusCode, body)
	}
	cleared := map[string]bool{}
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	if !cleared["authToken"] || !cleared["deskToken"] {
		t.Fatalf("logout should clear both cookies, got %v", cleared)
	}

	// Session is gone for cookie-based requests.
	resp, _ = env.do(t, http.MethodGet, "/api/auth/profile", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("post-logout profile status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodPost, "/api/auth/login", map[string]any{
		"email": "a@example.com", "password": "x", "extra": true,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RateLimit(base, 1, 1))

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first call 200, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode rate limit body: %v", err)
	}
	if body["message"] == "" || body["message"] == nil {
		t.Fatal("expected message in body")
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatal("expected request_id in body")
	}
}

func TestRoleChangeGate(t *testing.T) {
	env := newTestEnv(t)
	target := env.register(t, "target@example.com", role.User)
	targetID := target["_id"].(string)

	// The cookie jar now carries the target's own session; a plain user may
	// not change roles.
	resp, body := env.do(t, http.MethodPut, "/api/users/"+targetID+"/role", map[string]any{"role": "client"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("user role-change status = %d, want 403, body %v", resp.StatusCode, body)
	}
	if body["message"] != "Acceso denegado" {
		t.Fatalf("message = %v, want Acceso denegado", body["message"])
	}

	// An admin is enough; the route is not owner-exclusive.
	env.register(t, "admin@example.com", role.Admin)
	resp, body = env.do(t, http.MethodPut, "/api/users/"+targetID+"/role", map[string]any{"role": "client"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin role-change status = %d, body %v", resp.StatusCode, body)
	}
	if body["role"] != "client" {
		t.Fatalf("changed role = %v, want client", body["role"])
	}
}

type failingSessionStore struct {
	attendance.Store
}

func (f *failingSessionStore) LatestOpen(ctx context.Context, userID string, since time.Time) (*attendance.Session, error) {
	return nil, errors.New("sessions unavailable")
}

func TestLogoutSurvivesSessionStoreFailure(t *testing.T) {
	store := mem.New()
	tokens, err := token.NewManager(token.Config{SigningKey: []byte("test-secret")})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	att := attendance.NewService(&failingSessionStore{Store: store.Sessions()})
	ids := identity.NewService(store.Users(), store.Desks(), tokens, att)
	res := resource.NewService(store)

	api := New(ids, att, res, tokens, ReadyProbe{}, Config{
		Version:       "test",
		RateBurst:     1000,
		RatePerSecond: 1000,
	})
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	jar, _ := cookiejar.New(nil)
	env := &testEnv{api: api, tokens: tokens, server: server, client: &http.Client{Jar: jar}}
	env.register(t, "ana@example.com", role.User)

	// The session close fails, but the client must still be logged out.
	resp, body := env.do(t, http.MethodGet, "/api/auth/logout", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d, want 200, body %v", resp.StatusCode, body)
	}
	if body["sessionClosed"] != false {
		t.Fatalf("sessionClosed = %v, want false", body["sessionClosed"])
	}
	cleared := map[string]bool{}
	for _, c := range resp.Cookies() {
		if c.MaxAge < 0 {
			cleared[c.Name] = true
		}
	}
	if !cleared["authToken"] || !cleared["deskToken"] {
		t.Fatalf("logout should clear both cookies, got %v", cleared)
	}
}

func TestCORSConfiguredOrigins(t *testing.T) {
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), []string{"https://app.example.com"})

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"https://app.example.com", true},
		{"http://localhost:3000", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tc.origin)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		got := rr.Header().Get("Access-Control-Allow-Origin")
		if tc.allowed && got != tc.origin {
			t.Fatalf("%s: Allow-Origin = %q, want %q", tc.origin, got, tc.origin)
		}
		if !tc.allowed && got != "" {
			t.Fatalf("%s: Allow-Origin = %q, want unset", tc.origin, got)
		}
		if tc.allowed && rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("%s: credentials should be allowed", tc.origin)
		}
	}
}

func TestLoggingJSONEmitsStructuredEntry(t *testing.T) {
	logger := obs.Logger()
	origWriter := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	handler := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/log-test", nil)
	req.Header.Set("User-Agent", "middleware-test")
	req.RemoteAddr = "127.0.0.1:1234"

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.Clone(req.Context()))

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "request_id", "method", "path", "status", "duration_ms"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in log entry", key)
		}
	}
	if entry["msg"] != "request_complete" {
		t.Fatalf("unexpected msg: %v", entry["msg"])
	}
	if entry["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected status: %v", entry["status"])
	}
}

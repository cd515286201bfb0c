package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/basket/sentinel/internal/analysis"
	"github.com/basket/sentinel/internal/ingest"
	"github.com/basket/sentinel/internal/settings"
	"github.com/basket/sentinel/internal/store"
)

type stubBotClient struct {
	started bool
	handler ingest.EventHandler
}

func (c *stubBotClient) Start(ctx context.Context, handler ingest.EventHandler, targetChats []string) error {
	c.started = true
	c.handler = handler
	return nil
}
func (c *stubBotClient) Stop() { c.started = false }
func (c *stubBotClient) ListChats(ctx context.Context, seed []string) ([]ingest.ChatSummary, error) {
	return []ingest.ChatSummary{{ID: "-100111", Title: "Seeded Chat"}}, nil
}

type zeroRunner struct{}

func (zeroRunner) Classify(context.Context, analysis.ClassifyRequest) (analysis.ClassifyResponse, error) {
	return analysis.ClassifyResponse{}, nil
}

type staticInstantiator struct{}

func (staticInstantiator) Instantiate(context.Context, settings.ModelDef) (analysis.InferenceRunner, error) {
	return zeroRunner{}, nil
}

func newTestServer(t *testing.T) (*Server, *stubBotClient) {
	t.Helper()
	dir := t.TempDir()

	ss, err := settings.New(dir, nil)
	if err != nil {
		t.Fatalf("settings.New: %v", err)
	}
	ms, err := store.Open(filepath.Join(dir, "messages.sqlite3"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = ms.Close() })

	engine := analysis.NewEngine(analysis.NewCache(staticInstantiator{}), nil)
	bot := &stubBotClient{}
	botFactory := func(s settings.Settings) (ingest.BotClient, error) { return bot, nil }
	userFactory := func(s settings.Settings) (ingest.UserClient, error) {
		return nil, nil
	}
	rt := ingest.NewRuntime(ss, ms, engine, nil, botFactory, userFactory)

	srv := NewServer(Config{
		SettingsStore: ss,
		MessageStore:  ms,
		Engine:        engine,
		Runtime:       rt,
		UserFactory:   userFactory,
		BotFactory:    botFactory,
		SecureCookies: false,
	})
	t.Cleanup(srv.Close)
	return srv, bot
}

func loginAs(t *testing.T, handler http.Handler, username, password string) *http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set by login")
	return nil
}

func TestGateway_StatusRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", rec.Code)
	}
}

func TestGateway_LoginThenStatusSucceeds(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGateway_ViewerCannotSaveSettings(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "viewer", "viewer")

	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader([]byte(`{}`)))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer save, got %d", rec.Code)
	}
}

func TestGateway_AdminCanSaveAndGetSettings(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	req := httptest.NewRequest(http.MethodPost, "/api/settings", bytes.NewReader([]byte(`{"threatThreshold": 70}`)))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 saving settings, got %d: %s", rec.Code, rec.Body.String())
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	getReq.AddCookie(cookie)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)

	var got settings.Settings
	if err := json.Unmarshal(getRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if got.ThreatThreshold != 70 {
		t.Fatalf("expected persisted threshold 70, got %d", got.ThreatThreshold)
	}
}

func TestGateway_EngineTestWithPreset(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	body := []byte(`{"preset": "threat"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/engine/test", bytes.NewReader(body))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Results []struct {
			Type string `json:"type"`
		} `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Results) == 0 {
		t.Fatal("expected at least one preset message to be analyzed")
	}
}

func TestGateway_StartStopRoundtrip(t *testing.T) {
	srv, bot := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	startReq := httptest.NewRequest(http.MethodPost, "/api/start", bytes.NewReader([]byte(`{}`)))
	startReq.AddCookie(cookie)
	startRec := httptest.NewRecorder()
	handler.ServeHTTP(startRec, startReq)
	if startRec.Code != http.StatusOK {
		t.Fatalf("expected 200 starting runtime, got %d: %s", startRec.Code, startRec.Body.String())
	}
	if !bot.started {
		t.Fatal("expected bot client to be started")
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/api/stop", nil)
	stopReq.AddCookie(cookie)
	stopRec := httptest.NewRecorder()
	handler.ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusOK {
		t.Fatalf("expected 200 stopping runtime, got %d", stopRec.Code)
	}
	if bot.started {
		t.Fatal("expected bot client to be stopped")
	}
}

func TestGateway_RateLimitReturns429(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	var lastCode int
	for i := 0; i < 12; i++ {
		body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
		req.RemoteAddr = "9.9.9.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected eventual 429 from repeated login attempts, got %d", lastCode)
	}
}

type sessionFakeClient struct {
	signInErr     error
	signInCalls   int
	passwordCalls int
	disconnected  bool
}

func (f *sessionFakeClient) Connect(ctx context.Context) error { return nil }
func (f *sessionFakeClient) AuthStatus(ctx context.Context) (bool, bool, error) {
	return true, false, nil
}
func (f *sessionFakeClient) SendCode(ctx context.Context, phone string) (ingest.CodeInfo, error) {
	return ingest.CodeInfo{PhoneCodeHash: "hash-42", IsCodeViaApp: true}, nil
}
func (f *sessionFakeClient) SignIn(ctx context.Context, phone, hash, code string) error {
	f.signInCalls++
	return f.signInErr
}
func (f *sessionFakeClient) SignInPassword(ctx context.Context, password string) error {
	f.passwordCalls++
	return nil
}
func (f *sessionFakeClient) GetDialogs(ctx context.Context) ([]ingest.ChatSummary, error) {
	return nil, nil
}
func (f *sessionFakeClient) Subscribe(ctx context.Context, handler ingest.EventHandler, allMessages bool, targetChats []string) error {
	return nil
}
func (f *sessionFakeClient) SessionString() string { return "fresh-session-string" }
func (f *sessionFakeClient) Disconnect()           { f.disconnected = true }

func TestGateway_SessionRequestCodeValidatesAPIID(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	body := []byte(`{"apiId": "not-a-number", "apiHash": "h", "phoneNumber": "+100"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session/request-code", bytes.NewReader(body))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric apiId, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGateway_SessionRequestCodeAndComplete(t *testing.T) {
	srv, _ := newTestServer(t)
	fake := &sessionFakeClient{}
	srv.userFactory = func(s settings.Settings) (ingest.UserClient, error) { return fake, nil }
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	body := []byte(`{"apiId": "12345", "apiHash": "h", "phoneNumber": "+100"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session/request-code", bytes.NewReader(body))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 requesting code, got %d: %s", rec.Code, rec.Body.String())
	}

	var requested struct {
		RequestID        string `json:"requestId"`
		IsCodeViaApp     bool   `json:"isCodeViaApp"`
		ExpiresInSeconds int    `json:"expiresInSeconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &requested); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if requested.RequestID == "" || !requested.IsCodeViaApp || requested.ExpiresInSeconds != 900 {
		t.Fatalf("unexpected request-code response: %+v", requested)
	}

	completeBody, _ := json.Marshal(map[string]string{"requestId": requested.RequestID, "code": "11111"})
	completeReq := httptest.NewRequest(http.MethodPost, "/api/session/complete", bytes.NewReader(completeBody))
	completeReq.AddCookie(cookie)
	completeRec := httptest.NewRecorder()
	handler.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusOK {
		t.Fatalf("expected 200 completing session, got %d: %s", completeRec.Code, completeRec.Body.String())
	}

	var completed struct {
		SessionString string `json:"sessionString"`
	}
	if err := json.Unmarshal(completeRec.Body.Bytes(), &completed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if completed.SessionString != "fresh-session-string" {
		t.Fatalf("unexpected session string %q", completed.SessionString)
	}
	if srv.pending.Count() != 0 {
		t.Fatalf("expected pending entry to be consumed, %d remain", srv.pending.Count())
	}
}

func TestGateway_SessionCompleteRequiresPasswordFor2FA(t *testing.T) {
	srv, _ := newTestServer(t)
	fake := &sessionFakeClient{signInErr: ingest.ErrPasswordNeeded}
	srv.userFactory = func(s settings.Settings) (ingest.UserClient, error) { return fake, nil }
	handler := srv.Handler()
	cookie := loginAs(t, handler, "admin", "admin")

	body := []byte(`{"apiId": "12345", "apiHash": "h", "phoneNumber": "+100"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session/request-code", bytes.NewReader(body))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var requested struct {
		RequestID string `json:"requestId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &requested); err != nil {
		t.Fatalf("decode: %v", err)
	}

	completeBody, _ := json.Marshal(map[string]string{"requestId": requested.RequestID, "code": "11111"})
	completeReq := httptest.NewRequest(http.MethodPost, "/api/session/complete", bytes.NewReader(completeBody))
	completeReq.AddCookie(cookie)
	completeRec := httptest.NewRecorder()
	handler.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusConflict {
		t.Fatalf("expected 409 when 2FA is required, got %d: %s", completeRec.Code, completeRec.Body.String())
	}
	var conflict struct {
		RequiresPassword bool `json:"requiresPassword"`
	}
	if err := json.Unmarshal(completeRec.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !conflict.RequiresPassword {
		t.Fatal("expected requiresPassword=true in 409 body")
	}
	if srv.pending.Count() != 1 {
		t.Fatal("expected pending entry to survive the 2FA round-trip")
	}

	retryBody, _ := json.Marshal(map[string]string{"requestId": requested.RequestID, "code": "11111", "password": "hunter2"})
	retryReq := httptest.NewRequest(http.MethodPost, "/api/session/complete", bytes.NewReader(retryBody))
	retryReq.AddCookie(cookie)
	retryRec := httptest.NewRecorder()
	handler.ServeHTTP(retryRec, retryReq)
	if retryRec.Code != http.StatusOK {
		t.Fatalf("expected 200 once password is supplied, got %d: %s", retryRec.Code, retryRec.Body.String())
	}
	if fake.passwordCalls != 1 {
		t.Fatalf("expected exactly one password sign-in, got %d", fake.passwordCalls)
	}
}

func TestGateway_RateLimitBodyCarriesRetryMetadata(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Handler()

	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
		req.RemoteAddr = "9.9.9.9:1234"
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on 429")
	}
	var body struct {
		Error         string `json:"error"`
		Action        string `json:"action"`
		RetryAfterMs  int64  `json:"retryAfterMs"`
		RetryAfterSec int64  `json:"retryAfterSec"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Action != "login" || body.RetryAfterMs <= 0 || body.RetryAfterSec < 300 {
		t.Fatalf("unexpected 429 body: %+v", body)
	}
}

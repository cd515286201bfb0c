// Package gateway implements the Control API: the authenticated,
// rate-limited HTTP surface the admin UI drives (login, settings,
// Telegram session bootstrap, engine test harness, start/stop, and the
// read-only status/messages/stats views).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/basket/sentinel/internal/analysis"
	"github.com/basket/sentinel/internal/apierr"
	"github.com/basket/sentinel/internal/ingest"
	"github.com/basket/sentinel/internal/settings"
	"github.com/basket/sentinel/internal/shared"
	"github.com/basket/sentinel/internal/store"
	"github.com/basket/sentinel/internal/sweep"
)

// authLevel is how strict a route's access control is.
type authLevel int

const (
	authNone authLevel = iota
	authAny
	authAdmin
)

// Server wires the Control API's collaborators and exposes an http.Handler.
type Server struct {
	settingsStore *settings.Store
	messageStore  *store.Store
	engine        *analysis.Engine
	runtime       *ingest.Runtime

	userFactory ingest.UserClientFactory
	botFactory  ingest.BotClientFactory

	auth    *Auth
	limiter *RateLimiter
	pending *PendingRegistry

	rateSweeper    *sweep.Sweeper
	pendingSweeper *sweep.Sweeper

	logger *slog.Logger
}

// Config bundles Server's constructor dependencies.
type Config struct {
	SettingsStore *settings.Store
	MessageStore  *store.Store
	Engine        *analysis.Engine
	Runtime       *ingest.Runtime
	UserFactory   ingest.UserClientFactory
	BotFactory    ingest.BotClientFactory
	SecureCookies bool
	Logger        *slog.Logger
}

// NewServer builds a Server and starts its background sweepers.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		settingsStore: cfg.SettingsStore,
		messageStore:  cfg.MessageStore,
		engine:        cfg.Engine,
		runtime:       cfg.Runtime,
		userFactory:   cfg.UserFactory,
		botFactory:    cfg.BotFactory,
		auth:          NewAuth(cfg.SecureCookies),
		limiter:       NewRateLimiter(),
		pending:       NewPendingRegistry(),
		logger:        logger,
	}

	s.rateSweeper = sweep.New(5*time.Minute, func() { s.limiter.Evict(30 * time.Minute) })
	s.rateSweeper.Start(context.Background())
	s.pendingSweeper = sweep.New(time.Minute, s.pending.Sweep)
	s.pendingSweeper.Start(context.Background())

	return s
}

// Close stops the Server's background sweepers.
func (s *Server) Close() {
	s.rateSweeper.Stop()
	s.pendingSweeper.Stop()
}

// Handler returns the Control API's routed http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/login", s.wrap("login", authNone, s.handleLogin))
	mux.HandleFunc("POST /api/logout", s.wrap("login", authAny, s.handleLogout))

	mux.HandleFunc("GET /api/settings", s.wrap("settings_get", authAdmin, s.handleSettingsGet))
	mux.HandleFunc("POST /api/settings", s.wrap("settings_save", authAdmin, s.handleSettingsSave))

	mux.HandleFunc("POST /api/session/request-code", s.wrap("session_request_code", authAdmin, s.handleSessionRequestCode))
	mux.HandleFunc("POST /api/session/complete", s.wrap("session_complete", authAdmin, s.handleSessionComplete))

	mux.HandleFunc("GET /api/telegram/chats", s.wrap("chat_sync", authAdmin, s.handleTelegramChats))

	mux.HandleFunc("POST /api/engine/test", s.wrap("engine_test", authAdmin, s.handleEngineTest))

	mux.HandleFunc("POST /api/start", s.wrap("engine_control", authAdmin, s.handleStart))
	mux.HandleFunc("POST /api/stop", s.wrap("engine_control", authAdmin, s.handleStop))

	mux.HandleFunc("GET /api/status", s.wrap("status", authAny, s.handleStatus))
	mux.HandleFunc("GET /api/messages", s.wrap("messages", authAny, s.handleMessages))
	mux.HandleFunc("GET /api/stats", s.wrap("stats", authAny, s.handleStats))

	return mux
}

// wrap applies the action's rate-limit policy, then its auth requirement,
// before delegating to fn.
func (s *Server) wrap(action string, level authLevel, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := shared.NewTraceID()
		r = r.WithContext(shared.WithTraceID(r.Context(), traceID))
		w.Header().Set("X-Trace-Id", traceID)

		username, role, sessionID, authenticated := s.auth.Authenticate(r)

		actorKey := ActorKey(username, sessionID, r.RemoteAddr)
		decision := s.limiter.Consume(action, actorKey)
		if !decision.Allowed {
			writeRateLimited(w, action, decision)
			return
		}

		switch level {
		case authAny:
			if !authenticated {
				writeAPIErr(w, apierr.AuthRequired("authentication required"))
				return
			}
		case authAdmin:
			if !authenticated {
				writeAPIErr(w, apierr.AuthRequired("authentication required"))
				return
			}
			if role != RoleAdmin {
				writeAPIErr(w, apierr.Forbidden("admin role required"))
				return
			}
		}

		s.logger.Debug("control api request", "trace_id", traceID, "action", action, "actor", actorKey)
		fn(w, r)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeAPIErr(w, apierr.Validation("malformed request body"))
		return
	}

	token, role, ok := s.auth.Login(body.Username, body.Password)
	if !ok {
		writeAPIErr(w, apierr.AuthRequired("invalid username or password"))
		return
	}
	s.auth.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"username": body.Username, "role": role})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.auth.Logout(cookie.Value)
	}
	s.auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	current, err := s.settingsStore.Load()
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIErr(w, apierr.Validation("could not read request body"))
		return
	}

	current, err := s.settingsStore.Load()
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	merged, err := settings.MergeJSON(current, body)
	if err != nil {
		writeAPIErr(w, apierr.Validation(err.Error()))
		return
	}
	if err := s.settingsStore.Save(merged); err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func (s *Server) handleSessionRequestCode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		APIID       string `json:"apiId"`
		APIHash     string `json:"apiHash"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeAPIErr(w, apierr.Validation("malformed request body"))
		return
	}
	if body.APIHash == "" || body.PhoneNumber == "" {
		writeAPIErr(w, apierr.Validation("apiId, apiHash and phoneNumber are required"))
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(body.APIID)); err != nil || n <= 0 {
		writeAPIErr(w, apierr.Validation("apiId must be a positive integer"))
		return
	}

	transient := settings.Settings{APIID: body.APIID, APIHash: body.APIHash, SessionName: "sentinel-login"}
	client, err := s.userFactory(transient)
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	if err := client.Connect(r.Context()); err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}

	info, err := client.SendCode(r.Context(), body.PhoneNumber)
	if err != nil {
		client.Disconnect()
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}

	requestID := s.pending.Create(client, body.PhoneNumber, info.PhoneCodeHash)
	writeJSON(w, http.StatusOK, map[string]any{
		"requestId":        requestID,
		"isCodeViaApp":     info.IsCodeViaApp,
		"expiresInSeconds": int(pendingTTL.Seconds()),
	})
}

func (s *Server) handleSessionComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RequestID string `json:"requestId"`
		Code      string `json:"code"`
		Password  string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeAPIErr(w, apierr.Validation("malformed request body"))
		return
	}

	entry, ok := s.pending.Get(body.RequestID)
	if !ok {
		writeAPIErr(w, apierr.NotFound("pending session not found or expired"))
		return
	}

	if body.Code != "" {
		err := entry.client.SignIn(r.Context(), entry.phoneNumber, entry.phoneCodeHash, body.Code)
		if err == ingest.ErrPasswordNeeded {
			if body.Password == "" {
				writeAPIErr(w, apierr.Conflict("two-factor password required", map[string]any{"requiresPassword": true}))
				return
			}
			if err := entry.client.SignInPassword(r.Context(), body.Password); err != nil {
				s.pending.Delete(body.RequestID)
				entry.client.Disconnect()
				writeAPIErr(w, apierr.Upstream(err.Error()))
				return
			}
		} else if err != nil {
			s.pending.Delete(body.RequestID)
			entry.client.Disconnect()
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
	} else if body.Password != "" {
		if err := entry.client.SignInPassword(r.Context(), body.Password); err != nil {
			s.pending.Delete(body.RequestID)
			entry.client.Disconnect()
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
	} else {
		writeAPIErr(w, apierr.Validation("code or password is required"))
		return
	}

	sessionString := entry.client.SessionString()
	s.pending.Delete(body.RequestID)
	writeJSON(w, http.StatusOK, map[string]any{"sessionString": sessionString})
}

func (s *Server) handleTelegramChats(w http.ResponseWriter, r *http.Request) {
	current, err := s.settingsStore.Load()
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}

	var chats []ingest.ChatSummary
	if current.AuthMode == settings.AuthModeUser {
		client, err := s.userFactory(current)
		if err != nil {
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
		defer client.Disconnect()
		if err := client.Connect(r.Context()); err != nil {
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
		chats, err = client.GetDialogs(r.Context())
		if err == ingest.ErrBotMethodInvalid && current.BotToken != "" {
			chats, err = s.botChats(r.Context(), current)
		}
		if err != nil {
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
	} else {
		chats, err = s.botChats(r.Context(), current)
		if err != nil {
			writeAPIErr(w, apierr.Upstream(err.Error()))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) botChats(ctx context.Context, current settings.Settings) ([]ingest.ChatSummary, error) {
	client, err := s.botFactory(current)
	if err != nil {
		return nil, err
	}
	defer client.Stop()
	seed := current.BotTargetChats
	if len(seed) == 0 {
		seed = current.TargetChats
	}
	return client.ListChats(ctx, seed)
}

func (s *Server) handleEngineTest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Settings json.RawMessage `json:"settings"`
		Messages []string        `json:"messages"`
		Preset   string          `json:"preset"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeAPIErr(w, apierr.Validation("malformed request body"))
		return
	}

	current, err := s.settingsStore.Load()
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	if len(body.Settings) > 0 {
		current, err = settings.MergeJSON(current, body.Settings)
		if err != nil {
			writeAPIErr(w, apierr.Validation(err.Error()))
			return
		}
	}

	messages := body.Messages
	if len(messages) == 0 {
		messages = analysis.PresetMessages(body.Preset)
	}

	type verdict struct {
		Text   string             `json:"text"`
		Type   string             `json:"type"`
		Score  float64            `json:"score"`
		Scores map[string]float64 `json:"scores"`
	}
	results := make([]verdict, 0, len(messages))
	counts := make(map[string]int, len(analysis.Categories)+1)
	for _, msg := range messages {
		res := s.engine.Analyze(r.Context(), msg, current)
		results = append(results, verdict{Text: msg, Type: res.Type, Score: res.Score, Scores: res.Scores})
		counts[res.Type]++
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results, "counts": counts})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIErr(w, apierr.Validation("could not read request body"))
		return
	}
	if err := s.runtime.Start(r.Context(), body); err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, s.runtime.Status())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.runtime.Stop()
	writeJSON(w, http.StatusOK, s.runtime.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Status())
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	rows, err := s.messageStore.ReadRecent(r.Context(), limit)
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}

	type row struct {
		ID     int64   `json:"id"`
		Time   string  `json:"time"`
		Chat   string  `json:"chat"`
		Sender string  `json:"sender"`
		Text   string  `json:"text"`
		Type   string  `json:"type"`
		Score  float64 `json:"score"`
	}
	out := make([]row, 0, len(rows))
	for _, m := range rows {
		out = append(out, row{
			ID:     m.ID,
			Time:   time.Unix(m.MessageTS, 0).Format("2006-01-02 15:04:05"),
			Chat:   m.Chat,
			Sender: m.Sender,
			Text:   m.Text,
			Type:   m.Type,
			Score:  m.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.messageStore.ReadStats(r.Context())
	if err != nil {
		writeAPIErr(w, apierr.Upstream(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIErr(w http.ResponseWriter, err *apierr.Error) {
	body := map[string]any{"error": err.Message}
	for k, v := range err.Extra {
		body[k] = v
	}
	writeJSON(w, err.Kind.Status(), body)
}

func writeRateLimited(w http.ResponseWriter, action string, d Decision) {
	retryAfterSec := (d.RetryAfterMs + 999) / 1000
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSec))
	message := "rate limit exceeded"
	if p, ok := Policies[action]; ok && p.Message != "" {
		message = p.Message
	}
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":         message,
		"action":        action,
		"retryAfterMs":  d.RetryAfterMs,
		"retryAfterSec": retryAfterSec,
	})
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/sentinel/internal/analysis"
	"github.com/basket/sentinel/internal/settings"
	"github.com/basket/sentinel/internal/store"
)

// activeClient is the minimal handle the runtime needs to tear down
// whichever collaborator is currently running.
type activeClient interface {
	disconnect()
}

type botHandle struct{ client BotClient }

func (h botHandle) disconnect() { h.client.Stop() }

type userHandle struct{ client UserClient }

func (h userHandle) disconnect() { h.client.Disconnect() }

// Runtime is the Ingestion Runtime: it owns the Telegram client lifecycle,
// routes events into the Analysis Engine, and persists verdicts.
type Runtime struct {
	mu sync.RWMutex

	state                      State
	client                     activeClient
	selectedModelID            string
	threatThreshold            float64
	targetChats                []string
	monitorAllUserAuthMessages bool
	runtimeAuthMode            settings.AuthMode

	settingsStore *settings.Store
	messageStore  *store.Store
	engine        *analysis.Engine
	logger        *slog.Logger

	botFactory  BotClientFactory
	userFactory UserClientFactory
}

// NewRuntime wires the Ingestion Runtime's collaborators together.
func NewRuntime(settingsStore *settings.Store, messageStore *store.Store, engine *analysis.Engine, logger *slog.Logger, botFactory BotClientFactory, userFactory UserClientFactory) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		state:         StateStopped,
		settingsStore: settingsStore,
		messageStore:  messageStore,
		engine:        engine,
		logger:        logger,
		botFactory:    botFactory,
		userFactory:   userFactory,
	}
}

// Status returns a snapshot safe for concurrent reads.
func (r *Runtime) Status() StatusView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return StatusView{
		IsRunning: r.state == StateRunning,
		Model:     r.selectedModelID,
		Threshold: r.threatThreshold,
	}
}

// Start implements the five-step start procedure. overridesJSON may be nil;
// when non-nil it is merged into the persisted Settings and saved before
// the client is constructed. On any error, the runtime returns to stopped
// and the error text is returned verbatim.
func (r *Runtime) Start(ctx context.Context, overridesJSON []byte) error {
	r.mu.Lock()
	if r.state == StateRunning || r.state == StateStarting {
		r.mu.Unlock()
		return fmt.Errorf("already running")
	}
	r.state = StateStarting
	r.mu.Unlock()

	fail := func(err error) error {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		return err
	}

	current, err := r.settingsStore.Load()
	if err != nil {
		return fail(err)
	}
	if len(overridesJSON) > 0 {
		merged, err := settings.MergeJSON(current, overridesJSON)
		if err != nil {
			return fail(fmt.Errorf("apply overrides: %w", err))
		}
		current = merged
	}
	if err := r.settingsStore.Save(current); err != nil {
		return fail(fmt.Errorf("persist settings: %w", err))
	}

	// Pre-warm is best-effort: a missing or broken inference runtime demotes
	// the engine to heuristics-only scoring, it does not block ingestion.
	if _, err := r.engineCache().Get(ctx, current.MLModel); err != nil {
		r.logger.Warn("classifier pre-warm failed; engine will score heuristics-only", "model", current.MLModel, "error", err.Error())
	}

	handler := r.eventHandler(current)

	var client activeClient
	var targetChats []string
	var monitorAll bool

	switch current.AuthMode {
	case settings.AuthModeUser:
		uc, err := r.userFactory(current)
		if err != nil {
			return fail(err)
		}
		if err := uc.Connect(ctx); err != nil {
			return fail(err)
		}
		authorized, isBot, err := uc.AuthStatus(ctx)
		if err != nil {
			uc.Disconnect()
			return fail(err)
		}
		if !authorized {
			uc.Disconnect()
			return fail(fmt.Errorf("user session is not authorized"))
		}
		if isBot {
			uc.Disconnect()
			return fail(fmt.Errorf("configured session belongs to a bot account"))
		}
		if newSession := uc.SessionString(); newSession != "" && newSession != current.SessionString {
			current.SessionString = newSession
			if err := r.settingsStore.Save(current); err != nil {
				r.logger.Warn("failed to persist refreshed session string", "error", err.Error())
			}
		}

		monitorAll = current.UserAuthAllMessages
		targetChats = current.UserTargetChats
		if len(targetChats) == 0 {
			targetChats = current.TargetChats
		}

		if err := uc.Subscribe(ctx, handler, monitorAll, targetChats); err != nil {
			uc.Disconnect()
			return fail(err)
		}
		client = userHandle{client: uc}

	default:
		bc, err := r.botFactory(current)
		if err != nil {
			return fail(err)
		}
		targetChats = current.BotTargetChats
		if len(targetChats) == 0 {
			targetChats = current.TargetChats
		}
		if err := bc.Start(ctx, handler, targetChats); err != nil {
			return fail(err)
		}
		client = botHandle{client: bc}
	}

	r.mu.Lock()
	r.client = client
	r.selectedModelID = current.MLModel
	r.threatThreshold = float64(current.ThreatThreshold) / 100.0
	r.targetChats = targetChats
	r.monitorAllUserAuthMessages = monitorAll
	r.runtimeAuthMode = current.AuthMode
	r.state = StateRunning
	r.mu.Unlock()

	return nil
}

// Stop disconnects the active client (best-effort) and returns the runtime
// to stopped.
func (r *Runtime) Stop() {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return
	}
	r.state = StateStopping
	client := r.client
	r.client = nil
	r.mu.Unlock()

	if client != nil {
		client.disconnect()
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
}

func (r *Runtime) engineCache() *analysis.Cache {
	return r.engine.CacheFor()
}

// eventHandler closes over the settings snapshot active at start time and
// feeds every incoming message through the Analysis Engine and into the
// Message Store. Storage and inference errors never propagate back to the
// adapter.
func (r *Runtime) eventHandler(s settings.Settings) EventHandler {
	return func(ctx context.Context, msg IncomingMessage) {
		result := r.engine.Analyze(ctx, msg.Text, s)

		ts := msg.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}

		entry := store.NewEntry{
			TelegramMessageID: msg.TelegramMessageID,
			TelegramChatID:    chatIDPtr(msg.ChatID),
			MessageTS:         ts.Unix(),
			Chat:              msg.ChatTitle,
			Sender:            msg.SenderDisplay,
			Text:              msg.Text,
			Type:              result.Type,
			Score:             result.Score,
		}
		if err := r.messageStore.StoreMessage(ctx, entry); err != nil {
			r.logger.Error("failed to store classified message", "error", err.Error())
		}
	}
}

func chatIDPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// Package ingest owns the Telegram client lifecycle: the Ingestion Runtime
// that starts/stops a bot- or user-mode collaborator, routes its events
// into the Analysis Engine, and persists the verdicts.
package ingest

import (
	"context"
	"time"

	"github.com/basket/sentinel/internal/settings"
)

// State is one of the five Ingestion Runtime states.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// IncomingMessage is what an adapter hands to the runtime for every new
// Telegram message event.
type IncomingMessage struct {
	Text              string
	SenderDisplay     string
	ChatTitle         string
	ChatID            string
	TelegramMessageID *int64
	Timestamp         time.Time
}

// EventHandler is called by an adapter for every new message.
type EventHandler func(ctx context.Context, msg IncomingMessage)

// ChatSummary is one entry in a chat-listing response (telegram/chats).
// Photo is a best-effort Bot API file link to the chat's small profile
// photo; empty when unavailable or not resolved.
type ChatSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Photo string `json:"photo,omitempty"`
}

// CodeInfo is returned by SendCode; IsCodeViaApp mirrors whether Telegram
// delivered the login code through the app (vs SMS).
type CodeInfo struct {
	PhoneCodeHash string
	IsCodeViaApp  bool
}

// ErrPasswordNeeded is returned by SignIn when 2FA must be completed via
// SignInPassword before authorization succeeds.
var ErrPasswordNeeded = passwordNeededError{}

type passwordNeededError struct{}

func (passwordNeededError) Error() string { return "SESSION_PASSWORD_NEEDED" }

// ErrBotMethodInvalid signals that a bot-mode-only or user-mode-only API
// call was attempted against the wrong collaborator; telegram/chats uses it
// to decide whether to fall back to the bot path.
var ErrBotMethodInvalid = botMethodInvalidError{}

type botMethodInvalidError struct{}

func (botMethodInvalidError) Error() string { return "BOT_METHOD_INVALID" }

// BotClient is the bot-mode Telegram collaborator (backed by
// telegram-bot-api/v5). Only the calls the Ingestion Runtime needs are
// exposed.
type BotClient interface {
	Start(ctx context.Context, handler EventHandler, targetChats []string) error
	Stop()
	ListChats(ctx context.Context, seed []string) ([]ChatSummary, error)
}

// UserClient is the user-mode (MTProto) Telegram collaborator (backed by
// gotd/td).
type UserClient interface {
	Connect(ctx context.Context) error
	AuthStatus(ctx context.Context) (authorized bool, isBot bool, err error)
	SendCode(ctx context.Context, phoneNumber string) (CodeInfo, error)
	SignIn(ctx context.Context, phoneNumber, phoneCodeHash, code string) error
	SignInPassword(ctx context.Context, password string) error
	GetDialogs(ctx context.Context) ([]ChatSummary, error)
	Subscribe(ctx context.Context, handler EventHandler, allMessages bool, targetChats []string) error
	SessionString() string
	Disconnect()
}

// BotClientFactory constructs a BotClient from the active settings.
type BotClientFactory func(s settings.Settings) (BotClient, error)

// UserClientFactory constructs a UserClient from the active settings.
type UserClientFactory func(s settings.Settings) (UserClient, error)

// StatusView is the read-only snapshot returned by the status route.
type StatusView struct {
	IsRunning bool    `json:"isRunning"`
	Model     string  `json:"model"`
	Threshold float64 `json:"threshold"`
}

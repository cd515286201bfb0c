package ingest

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/basket/sentinel/internal/settings"
)

// stringSessionStorage adapts a base64-encoded session string to gotd's
// session.Storage, so the Settings Store's sessionString field is the
// single source of truth instead of a session file on disk.
type stringSessionStorage struct {
	mu   sync.Mutex
	data []byte
}

func newStringSessionStorage(encoded string) *stringSessionStorage {
	s := &stringSessionStorage{}
	if encoded != "" {
		if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil {
			s.data = raw
		}
	}
	return s
}

func (s *stringSessionStorage) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return s.data, nil
}

func (s *stringSessionStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

func (s *stringSessionStorage) Encoded() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.data)
}

// userClient implements UserClient over gotd/td MTProto.
type userClient struct {
	client     *telegram.Client
	api        *tg.Client
	session    *stringSessionStorage
	dispatcher tg.UpdateDispatcher
	logger     *slog.Logger

	cancel context.CancelFunc
	ready  chan struct{}
	runErr chan error

	subMu       sync.RWMutex
	handler     EventHandler
	allMessages bool
	allowed     map[string]struct{}

	pendingPhone         string
	pendingPhoneCodeHash string
}

// NewUserClientFactory returns a UserClientFactory backed by gotd/td,
// wrapped with flood-wait retry middleware. The update dispatcher is wired
// at construction time (gotd delivers one update stream per client); which
// messages actually reach the subscribed handler is decided per-update
// against the filter Subscribe installs.
func NewUserClientFactory(logger *slog.Logger) UserClientFactory {
	return func(s settings.Settings) (UserClient, error) {
		apiID, err := strconv.Atoi(strings.TrimSpace(s.APIID))
		if err != nil {
			return nil, errors.Wrap(err, "user mode requires a numeric apiId")
		}
		if s.APIHash == "" {
			return nil, errors.New("user mode requires apiHash")
		}

		store := newStringSessionStorage(s.SessionString)
		waiter := floodwait.NewSimpleWaiter()
		dispatcher := tg.NewUpdateDispatcher()

		client := telegram.NewClient(apiID, s.APIHash, telegram.Options{
			SessionStorage: store,
			UpdateHandler:  dispatcher,
			Middlewares:    []telegram.Middleware{waiter},
		})

		c := &userClient{
			client:     client,
			api:        client.API(),
			session:    store,
			dispatcher: dispatcher,
			logger:     logger,
		}
		dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
			c.dispatch(ctx, e, u.Message)
			return nil
		})
		dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
			c.dispatch(ctx, e, u.Message)
			return nil
		})
		return c, nil
	}
}

// Connect starts the MTProto connection loop in the background and blocks
// until the connection is established or fails.
func (c *userClient) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.ready = make(chan struct{})
	c.runErr = make(chan error, 1)

	go func() {
		err := c.client.Run(runCtx, func(ctx context.Context) error {
			close(c.ready)
			<-ctx.Done()
			return ctx.Err()
		})
		select {
		case c.runErr <- err:
		default:
		}
	}()

	select {
	case <-c.ready:
		return nil
	case err := <-c.runErr:
		return errors.Wrap(err, "connect")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *userClient) AuthStatus(ctx context.Context) (authorized bool, isBot bool, err error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, false, err
	}
	return status.Authorized, status.User != nil && status.User.Bot, nil
}

func (c *userClient) SendCode(ctx context.Context, phoneNumber string) (CodeInfo, error) {
	sent, err := c.client.Auth().SendCode(ctx, phoneNumber, auth.SendCodeOptions{})
	if err != nil {
		return CodeInfo{}, err
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return CodeInfo{}, errors.New("unexpected SendCode response type")
	}
	c.pendingPhone = phoneNumber
	c.pendingPhoneCodeHash = code.PhoneCodeHash
	_, isApp := code.Type.(*tg.AuthSentCodeTypeApp)
	return CodeInfo{PhoneCodeHash: code.PhoneCodeHash, IsCodeViaApp: isApp}, nil
}

func (c *userClient) SignIn(ctx context.Context, phoneNumber, phoneCodeHash, code string) error {
	_, err := c.client.Auth().SignIn(ctx, phoneNumber, code, phoneCodeHash)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED") {
			return ErrPasswordNeeded
		}
		return err
	}
	return nil
}

func (c *userClient) SignInPassword(ctx context.Context, password string) error {
	_, err := c.client.Auth().Password(ctx, password)
	return err
}

func (c *userClient) GetDialogs(ctx context.Context) ([]ChatSummary, error) {
	resp, err := c.api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if tgerr.Is(err, "BOT_METHOD_INVALID") {
		return nil, ErrBotMethodInvalid
	}
	if err != nil {
		return nil, err
	}

	var out []ChatSummary
	switch d := resp.(type) {
	case *tg.MessagesDialogs:
		out = append(out, chatsFromEntities(d.Chats)...)
	case *tg.MessagesDialogsSlice:
		out = append(out, chatsFromEntities(d.Chats)...)
	default:
		return nil, ErrBotMethodInvalid
	}
	return out, nil
}

// chatsFromEntities renders dialog entities using Bot-API-style ids
// ("-<chatId>" for basic groups, "-100<channelId>" for channels), the same
// form the Settings document stores target chats in.
func chatsFromEntities(chats []tg.ChatClass) []ChatSummary {
	out := make([]ChatSummary, 0, len(chats))
	for _, ch := range chats {
		switch c := ch.(type) {
		case *tg.Chat:
			out = append(out, ChatSummary{ID: "-" + strconv.FormatInt(c.ID, 10), Title: c.Title})
		case *tg.Channel:
			out = append(out, ChatSummary{ID: "-100" + strconv.FormatInt(c.ID, 10), Title: c.Title})
		}
	}
	return out
}

// Subscribe installs the update handler. allMessages observes every dialog;
// otherwise only targetChats pass the filter. Configured chat ids may be in
// the raw MTProto form ("123"), the negated basic-group form ("-123"), or
// the Bot-API channel form ("-100123"); all three are matched.
func (c *userClient) Subscribe(ctx context.Context, handler EventHandler, allMessages bool, targetChats []string) error {
	allowed := make(map[string]struct{}, len(targetChats))
	for _, id := range targetChats {
		allowed[strings.TrimSpace(id)] = struct{}{}
	}
	c.subMu.Lock()
	c.handler = handler
	c.allMessages = allMessages
	c.allowed = allowed
	c.subMu.Unlock()
	return nil
}

// dispatch routes one raw update through the subscription filter and, when
// it passes, into the installed handler.
func (c *userClient) dispatch(ctx context.Context, e tg.Entities, m tg.MessageClass) {
	msg, ok := m.(*tg.Message)
	if !ok || msg.Out {
		return
	}

	c.subMu.RLock()
	handler := c.handler
	allMessages := c.allMessages
	allowed := c.allowed
	c.subMu.RUnlock()
	if handler == nil {
		return
	}

	var chatID int64
	var chatTitle string
	var botAPIPrefix string
	switch p := msg.PeerID.(type) {
	case *tg.PeerChannel:
		chatID = p.ChannelID
		botAPIPrefix = "-100"
		if ch, ok := e.Channels[chatID]; ok {
			chatTitle = ch.Title
		}
	case *tg.PeerChat:
		chatID = p.ChatID
		botAPIPrefix = "-"
		if ch, ok := e.Chats[chatID]; ok {
			chatTitle = ch.Title
		}
	case *tg.PeerUser:
		chatID = p.UserID
		if u, ok := e.Users[chatID]; ok {
			chatTitle = displayName(u)
		}
	default:
		return
	}

	raw := strconv.FormatInt(chatID, 10)
	if !allMessages && len(allowed) > 0 {
		if !chatAllowed(allowed, raw, botAPIPrefix) {
			return
		}
	}

	var sender string
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		if u, found := e.Users[from.UserID]; found {
			sender = displayName(u)
		}
	}
	if sender == "" {
		sender = chatTitle
	}

	handler(ctx, IncomingMessage{
		Text:              msg.Message,
		SenderDisplay:     sender,
		ChatTitle:         chatTitle,
		ChatID:            botAPIPrefix + raw,
		TelegramMessageID: ptrInt64(int64(msg.ID)),
		Timestamp:         time.Unix(int64(msg.Date), 0),
	})
}

func chatAllowed(allowed map[string]struct{}, raw, botAPIPrefix string) bool {
	candidates := []string{raw, botAPIPrefix + raw}
	for _, candidate := range candidates {
		if _, ok := allowed[candidate]; ok {
			return true
		}
	}
	return false
}

func displayName(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (c *userClient) SessionString() string { return c.session.Encoded() }

func (c *userClient) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
}

package edclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config describes how a session reaches the server.
type Config struct {
	// BaseURL is the server root, for example http://localhost:8000.
	BaseURL string
	// SocketPath is appended to BaseURL for the realtime endpoint.
	SocketPath string
	Timeout    time.Duration
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Backoff    *Backoff
	Logger     *zerolog.Logger
}

// Session ties the client components to one login. It is created by Login
// or NewSession and must be closed on logout.
type Session struct {
	API           *APIClient
	Socket        *SocketManager
	Notifications *NotificationStore
	Triage        *TriageList
	User          *User

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Login authenticates and starts a session for the returned token.
func Login(ctx context.Context, cfg Config, login, password string) (*Session, error) {
	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}
	res, err := api.Login(ctx, login, password)
	if err != nil {
		return nil, err
	}
	s, err := start(ctx, cfg, api, res.Token)
	if err != nil {
		return nil, err
	}
	s.User = res.User
	return s, nil
}

// NewSession starts a session for an existing token.
func NewSession(ctx context.Context, cfg Config, token string) (*Session, error) {
	api, err := newAPI(cfg)
	if err != nil {
		return nil, err
	}
	api.SetToken(token)
	return start(ctx, cfg, api, token)
}

func newAPI(cfg Config) (*APIClient, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return NewAPIClient(cfg.BaseURL, hc)
}

// SocketURL derives the realtime endpoint from an http(s) base URL.
func SocketURL(api *APIClient, path string) string {
	u := api.BaseURL()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	if path == "" {
		path = "/ws"
	}
	u.Path += path
	return u.String()
}

func start(ctx context.Context, cfg Config, api *APIClient, token string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("session requires a token")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	opts := []SocketOption{WithSocketLogger(logger.With().Str("component", "socket").Logger())}
	if cfg.Dialer != nil {
		opts = append(opts, WithDialer(cfg.Dialer))
	}
	if cfg.Backoff != nil {
		opts = append(opts, WithBackoff(*cfg.Backoff))
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		API:           api,
		Socket:        NewSocketManager(SocketURL(api, cfg.SocketPath), opts...),
		Notifications: NewNotificationStore(api, logger.With().Str("component", "notifications").Logger()),
		Triage:        NewTriageList(api, logger.With().Str("component", "triage").Logger()),
		ctx:           sctx,
		cancel:        cancel,
	}

	s.Socket.On(EventNotification, func(ev Event) {
		s.Notifications.AddRealtimeNotification(s.ctx, ev.Data)
	})
	s.Socket.On(EventEmergencyChanged, func(Event) {
		s.Triage.Fetch(s.ctx)
	})

	s.Notifications.Fetch(ctx)
	s.Socket.SetToken(token)
	return s, nil
}

// Close disconnects the socket, drops the token and clears cached data.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.Socket.Close()
		s.API.SetToken("")
		s.Notifications.ClearAll()
	})
}

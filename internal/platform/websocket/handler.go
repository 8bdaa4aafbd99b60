package websocket

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/platform/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// WebSocketHandler upgrades authenticated HTTP requests and pumps events
// between the hub and the connection.
type WebSocketHandler struct {
	hub      *Hub
	jwt      auth.JWTConfig
	logger   zerolog.Logger
	upgrader gorillawebsocket.Upgrader
}

// NewWebSocketHandler binds the handler to hub. allowedOrigins restricts
// browser origins; an empty list accepts any origin.
func NewWebSocketHandler(hub *Hub, jwtCfg auth.JWTConfig, allowedOrigins []string, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hub,
		jwt:    jwtCfg,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			// Non-browser clients do not send Origin.
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// RegisterRoutes registers the socket endpoint. The handshake authenticates
// itself, so the route does not depend on the JWT middleware.
func (wsh *WebSocketHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect authenticates the handshake, upgrades the connection and
// registers the client on its user, role and emergencies topics.
func (wsh *WebSocketHandler) HandleConnect(c echo.Context) error {
	tokenStr, err := auth.TokenFromRequest(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	claims, err := auth.ParseToken(wsh.jwt, tokenStr)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		return nil
	}

	topics := []string{UserTopic(claims.Subject), TopicEmergencies}
	for _, r := range claims.Roles {
		topics = append(topics, RoleTopic(r))
	}
	client := &Client{
		ID:     uuid.New().String(),
		UserID: claims.Subject,
		Roles:  claims.Roles,
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
	}
	wsh.hub.Register(client)

	wsh.logger.Info().
		Str("client_id", client.ID).
		Str("user_id", client.UserID).
		Msg("websocket: client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)

	return nil
}

// readPump reads client messages until the connection fails or goes quiet
// for longer than pongWait.
func (wsh *WebSocketHandler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
		wsh.logger.Info().
			Str("client_id", client.ID).
			Str("user_id", client.UserID).
			Msg("websocket: client disconnected")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wsh.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket: read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

// writePump drains client.Send to the connection and keeps it alive with
// pings. A closed Send channel ends the session with a close frame.
func (wsh *WebSocketHandler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage,
					gorillawebsocket.FormatCloseMessage(gorillawebsocket.CloseGoingAway, "server closing"))
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

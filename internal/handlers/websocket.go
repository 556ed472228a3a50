package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lootbox-backend/internal/models"
	"lootbox-backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub fans session updates and notifications out to every
// connection of the owner they belong to.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	logger     zerolog.Logger
}

type Client struct {
	Owner string
	Conn  *websocket.Conn
	send  chan *Message
}

type Message struct {
	Type  string `json:"type"`
	Owner string `json:"owner,omitempty"`
	Data  any    `json:"data"`
}

func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "ws").Logger(),
	}
}

func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range hub.clients {
				for client := range conns {
					client.Conn.Close()
				}
			}
			return

		case client := <-hub.register:
			conns, ok := hub.clients[client.Owner]
			if !ok {
				conns = make(map[*Client]struct{})
				hub.clients[client.Owner] = conns
			}
			conns[client] = struct{}{}
			hub.logger.Debug().Str("owner", client.Owner).Int("connections", len(conns)).Msg("client registered")

		case client := <-hub.unregister:
			if conns, ok := hub.clients[client.Owner]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
				}
				if len(conns) == 0 {
					delete(hub.clients, client.Owner)
				}
			}
			hub.logger.Debug().Str("owner", client.Owner).Msg("client unregistered")

		case message := <-hub.broadcast:
			for client := range hub.clients[message.Owner] {
				if !client.trySend(message) {
					hub.logger.Warn().Str("owner", message.Owner).Str("type", message.Type).Msg("dropping message for slow client")
				}
			}
		}
	}
}

func (hub *WebSocketHub) publish(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		hub.logger.Warn().Str("owner", msg.Owner).Str("type", msg.Type).Msg("broadcast queue full, dropping message")
	}
}

func (hub *WebSocketHub) BroadcastSession(owner string, session models.OpeningSession) {
	hub.publish(&Message{Type: "SESSION_UPDATE", Owner: owner, Data: session})
}

func (hub *WebSocketHub) BroadcastNotification(n models.Notification) {
	hub.publish(&Message{Type: "NOTIFICATION", Owner: n.Owner, Data: n})
}

func (c *Client) trySend(msg *Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()
	for msg := range c.send {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteJSON(msg); err != nil {
			return
		}
	}
	c.Conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

type WebSocketHandler struct {
	hub     *WebSocketHub
	openers *services.Openers
	logger  zerolog.Logger
}

func NewWebSocketHandler(hub *WebSocketHub, openers *services.Openers, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		openers: openers,
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	owner := c.GetString("address")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("owner", owner).Msg("failed to upgrade to websocket")
		return
	}

	client := &Client{
		Owner: owner,
		Conn:  conn,
		send:  make(chan *Message, clientSendSize),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}
	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
			close(client.send)
		}
	}()

	client.trySend(&Message{Type: "SESSION_UPDATE", Owner: owner, Data: h.openers.Session(owner)})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("owner", owner).Msg("websocket error")
			}
			break
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *Message) {
	switch msg.Type {
	case "PING":
		client.trySend(&Message{
			Type: "PONG",
			Data: gin.H{"timestamp": time.Now().Unix()},
		})
	case "CANCEL_OPENING":
		if _, err := h.openers.Cancel(client.Owner); err != nil {
			h.sendError(client, msg.Type, err)
		}
	case "DISMISS_OPENING":
		if !h.openers.Dismiss(client.Owner) {
			h.sendError(client, msg.Type, services.ErrNotDismissable)
		}
	default:
		h.sendError(client, msg.Type, errors.New("unknown message type"))
	}
}

func (h *WebSocketHandler) sendError(client *Client, msgType string, err error) {
	client.trySend(&Message{
		Type: "ERROR",
		Data: gin.H{"request": msgType, "error": err.Error()},
	})
}

// README: WebSocket hub. Connections join ride rooms; events and chat are relayed to room members.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ridebook/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var ErrHubClosed = errors.New("notification hub closed")

// RoomAuthorizer decides whether a user may join a ride's room.
type RoomAuthorizer interface {
	CanJoinRide(ctx context.Context, rideID types.ID, who types.Identity) (bool, error)
}

// WSMessage is the frame written to sockets.
type WSMessage struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// clientMessage is a frame read from sockets.
type clientMessage struct {
	Type    string   `json:"type"`
	RideID  types.ID `json:"rideId"`
	Message string   `json:"message"`
}

type envelope struct {
	channel string
	data    []byte
}

type subscription struct {
	client  *Client
	channel string
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	broadcast  chan envelope
	done       chan struct{}

	rooms   map[string]map[*Client]bool
	clients map[*Client]bool

	auth     RoomAuthorizer
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHub(auth RoomAuthorizer, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		auth:       auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// SetAuthorizer replaces the room authorizer. Call it before serving sockets.
func (h *Hub) SetAuthorizer(auth RoomAuthorizer) {
	h.auth = auth
}

// Run owns the room tables until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			if c.identity.Role == types.RoleDriver {
				h.join(c, DriverChannel(c.identity.UserID))
			}
			h.log.Debug("ws client registered", zap.String("user_id", string(c.identity.UserID)))

		case c := <-h.unregister:
			h.drop(c)

		case sub := <-h.subscribe:
			if h.clients[sub.client] {
				h.join(sub.client, sub.channel)
			}

		case env := <-h.broadcast:
			for c := range h.rooms[env.channel] {
				select {
				case c.send <- env.data:
				default:
					// Slow consumer; at-most-once delivery lets us drop it.
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) join(c *Client, channel string) {
	room, ok := h.rooms[channel]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[channel] = room
	}
	room[c] = true
	c.channels[channel] = true

	ack, _ := json.Marshal(WSMessage{Type: "joined", Channel: channel, Timestamp: time.Now().UTC()})
	select {
	case c.send <- ack:
	default:
	}
}

func (h *Hub) drop(c *Client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	for ch := range c.channels {
		if room, ok := h.rooms[ch]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, ch)
			}
		}
	}
	close(c.send)
}

// Publish implements Notifier.
func (h *Hub) Publish(ctx context.Context, channel string, ev Event) error {
	data, err := json.Marshal(WSMessage{
		Type:      ev.Name,
		Channel:   channel,
		Payload:   ev.Data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- envelope{channel: channel, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the request and attaches the connection for an authenticated user.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, who types.Identity) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: who,
		channels: make(map[string]bool),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return ErrHubClosed
	}
	go c.writePump()
	go c.readPump()
	return nil
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity types.Identity
	// channels is only touched by the hub's Run loop.
	channels map[string]bool
	// joined is only touched by readPump.
	joined map[types.ID]bool
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.joined = make(map[types.ID]bool)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("ws read failed", zap.String("user_id", string(c.identity.UserID)), zap.Error(err))
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Debug("ws bad frame", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg clientMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch msg.Type {
	case "join_ride":
		if msg.RideID == "" || c.hub.auth == nil {
			return
		}
		ok, err := c.hub.auth.CanJoinRide(ctx, msg.RideID, c.identity)
		if err != nil || !ok {
			c.hub.log.Info("ws join denied",
				zap.String("user_id", string(c.identity.UserID)),
				zap.String("ride_id", string(msg.RideID)),
				zap.Error(err))
			return
		}
		select {
		case c.hub.subscribe <- subscription{client: c, channel: RideChannel(msg.RideID)}:
			c.joined[msg.RideID] = true
		case <-c.hub.done:
		}

	case EventChatMessage:
		if !c.joined[msg.RideID] || msg.Message == "" {
			return
		}
		ev := Event{Name: EventChatMessage, Data: ChatPayload{
			RideID:  msg.RideID,
			From:    c.identity.UserID,
			Role:    string(c.identity.Role),
			Message: msg.Message,
		}}
		if err := c.hub.Publish(ctx, RideChannel(msg.RideID), ev); err != nil {
			c.hub.log.Warn("ws chat relay failed", zap.Error(err))
		}

	default:
		c.hub.log.Debug("ws unknown frame", zap.String("type", msg.Type))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/models"
	"github.com/kmpdu/evote/internal/services"
)

// Message types sent to clients
const (
	TypeResults        = "results"
	TypeElectionStatus = "election_status"
	TypeNotification   = "notification"
	TypeCountdown      = "countdown"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// ElectionSource supplies the state sent to newly connected clients
type ElectionSource interface {
	Status() models.ElectionStatus
	Views() []models.PositionView
	Positions() []models.Position
}

// NotificationArchive stores notifications pushed through the hub
type NotificationArchive interface {
	ArchiveNotification(ctx context.Context, memberKey string, n models.Notification) error
}

// Authenticator resolves the member behind an upgrade request
type Authenticator interface {
	UserFromRequest(r *http.Request) (*models.User, error)
}

// envelope is a message with an optional recipient; empty memberKey means everyone
type envelope struct {
	memberKey string
	msg       models.WSMessage
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	log        logger.Logger
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex

	election ElectionSource
	archive  NotificationArchive
	auth     Authenticator
	now      func() time.Time
}

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan models.WSMessage
	memberKey string
}

// New creates a new Hub instance with injected dependencies.
// archive and auth may be nil.
func New(log logger.Logger, election ElectionSource, archive NotificationArchive, auth Authenticator) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		election:   election,
		archive:    archive,
		auth:       auth,
		now:        time.Now,
	}
}

// Start begins the hub's main loop in a goroutine
func (h *Hub) Start() {
	go h.run()
}

// run handles client registration/unregistration and message broadcasting
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client connected", "total_clients", total, "member_id", client.memberKey)

			// Send current status and results to the new client
			if h.election != nil {
				client.trySend(models.WSMessage{Type: TypeElectionStatus, Payload: h.election.Status()})
				client.trySend(models.WSMessage{Type: TypeResults, Payload: h.election.Views()})
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Debug("Client disconnected", "total_clients", total)

		case env := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				if env.memberKey != "" && client.memberKey != env.memberKey {
					continue
				}
				select {
				case client.send <- env.msg:
				default:
					// Client's send channel is full, unregister
					go func(c *Client) {
						h.unregister <- c
					}(client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

func (c *Client) trySend(msg models.WSMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// BroadcastMessage sends a message to all connected clients. Messages are
// dropped when the queue is full so ledger writers never block on slow clients.
func (h *Hub) BroadcastMessage(msgType string, payload interface{}) {
	h.enqueue(envelope{msg: models.WSMessage{Type: msgType, Payload: payload}})
}

// SendToMember sends a message to the clients of one member
func (h *Hub) SendToMember(memberKey, msgType string, payload interface{}) {
	h.enqueue(envelope{memberKey: memberKey, msg: models.WSMessage{Type: msgType, Payload: payload}})
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.log.Warn("Broadcast queue full, dropping message", "type", env.msg.Type)
	}
}

// BroadcastResults implements services.Broadcaster
func (h *Hub) BroadcastResults(positions []models.PositionView) {
	h.BroadcastMessage(TypeResults, positions)
}

// BroadcastElectionStatus implements services.Broadcaster
func (h *Hub) BroadcastElectionStatus(status models.ElectionStatus) {
	h.BroadcastMessage(TypeElectionStatus, status)
}

// Notify implements services.NotificationSink. The notification is archived
// and pushed to the member's connected clients.
func (h *Hub) Notify(memberKey string, n models.Notification) {
	if h.archive != nil && memberKey != "" {
		if err := h.archive.ArchiveNotification(context.Background(), memberKey, n); err != nil {
			h.log.Error("Failed to archive notification", "member_id", memberKey, "notification_id", n.ID, "error", err)
		}
	}
	if memberKey == "" {
		return
	}
	h.SendToMember(memberKey, TypeNotification, n)
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("WebSocket error", "error", err)
			}
			break
		}

		var msg models.WSMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.hub.log.Debug("Received message", "type", msg.Type)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles websocket requests from clients. Requests carrying a valid
// session token also receive that member's notifications.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var memberKey string
	if h.auth != nil {
		if u, err := h.auth.UserFromRequest(r); err == nil {
			memberKey = u.Key()
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan models.WSMessage, 256),
		memberKey: memberKey,
	}
	h.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}

// StartVotingCountdown broadcasts the time left until polls close every
// interval until ctx is cancelled
func (h *Hub) StartVotingCountdown(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Voting countdown stopped")
			return
		case <-ticker.C:
			h.checkAndUpdateCountdown()
		}
	}
}

// checkAndUpdateCountdown broadcasts the seconds until the last active position closes
func (h *Hub) checkAndUpdateCountdown() {
	if h.election == nil {
		return
	}
	closesAt, ok := ClosingTime(h.election.Positions())
	if !ok {
		return
	}

	remaining := int(closesAt.Sub(h.now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	h.BroadcastMessage(TypeCountdown, map[string]interface{}{
		"seconds_remaining": remaining,
		"closes_at":         closesAt,
	})
}

// ClosingTime returns the latest end time among active positions
func ClosingTime(positions []models.Position) (time.Time, bool) {
	var latest time.Time
	for _, p := range positions {
		if p.Status != models.StatusActive || p.EndTime.IsZero() {
			continue
		}
		if p.EndTime.After(latest) {
			latest = p.EndTime
		}
	}
	return latest, !latest.IsZero()
}

// Ensure Hub implements the service-side sinks
var (
	_ services.Broadcaster      = (*Hub)(nil)
	_ services.NotificationSink = (*Hub)(nil)
)

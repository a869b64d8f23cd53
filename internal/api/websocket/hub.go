// Package websocket is the real-time messaging fabric: per-auction rooms,
// targeted per-user delivery, and global broadcast.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hammerstone/live-auction-backend/internal/domain/errors"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
	"github.com/hammerstone/live-auction-backend/internal/service/bidding"
	"github.com/hammerstone/live-auction-backend/internal/service/lifecycle"
)

// RoomKey derives the stable room name for an auction.
func RoomKey(auctionID uuid.UUID) string {
	return "auction_" + auctionID.String()
}

// EventLiveStatsUpdated is broadcast to every connection.
const EventLiveStatsUpdated = "LiveStatsUpdated"

// LiveStatsEvent carries the periodic global stats broadcast.
type LiveStatsEvent struct {
	ActiveAuctions int       `json:"active_auctions"`
	ConnectedUsers int       `json:"connected_users"`
	Timestamp      time.Time `json:"timestamp"`
}

// BidPlacer submits bids on behalf of authenticated socket clients.
type BidPlacer interface {
	PlaceBid(ctx context.Context, req bidding.PlaceBidRequest) (*bidding.BidResult, error)
}

// TimerSyncer produces authoritative countdown state.
type TimerSyncer interface {
	TimerSync(ctx context.Context, auctionID uuid.UUID) (*lifecycle.TimerSyncEvent, error)
}

// ActiveCounter reports the number of live auctions.
type ActiveCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// Message is the wire envelope for both directions.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Event     string          `json:"event,omitempty"`
	Room      string          `json:"room,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Config holds connection tuning.
type Config struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	CheckOrigin    func(r *http.Request) bool
}

// DefaultConfig returns the connection tuning used in production.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingPeriod:     54 * time.Second, // must be less than PongTimeout
		MaxMessageSize: 8 * 1024,
		SendBuffer:     64,
		CheckOrigin:    func(*http.Request) bool { return true },
	}
}

// Hub owns every connection and the room membership tables. It implements
// the Notifier interfaces the bidding and lifecycle services consume.
type Hub struct {
	clients   map[uuid.UUID]*Client
	clientsMu sync.RWMutex

	rooms  map[string]map[uuid.UUID]bool // room -> client ids
	roomMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	outbound   chan *envelope

	tokens *auth.TokenService
	bids   BidPlacer
	timers TimerSyncer
	logger *slog.Logger
	config Config
}

// envelope is an internal routing instruction: room fan-out, single-user
// delivery, or global broadcast.
type envelope struct {
	room    string
	userID  *uuid.UUID
	message *Message
}

// NewHub creates the hub and starts its routing loop.
func NewHub(tokens *auth.TokenService, logger *slog.Logger) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan *envelope, 256),
		tokens:     tokens,
		logger:     logger,
		config:     DefaultConfig(),
	}
	go h.run()
	return h
}

// SetServices wires the services the hub dispatches client actions to.
// Separate from NewHub because the bidding service itself needs the hub
// as its notifier.
func (h *Hub) SetServices(bids BidPlacer, timers TimerSyncer) {
	h.bids = bids
	h.timers = timers
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case env := <-h.outbound:
			h.deliver(env)
		}
	}
}

// ServeHTTP upgrades the connection. Anonymous clients may subscribe;
// an access_token query parameter (or bearer header) enables actions.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if token := connectionToken(r); token != "" {
		claims, err := h.tokens.ValidateAccessToken(token)
		if err != nil {
			http.Error(w, "invalid access token", http.StatusUnauthorized)
			return
		}
		userID = &claims.UserID
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.config.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, h.config.SendBuffer),
		hub:    h,
		rooms:  make(map[string]bool),
	}

	conn.SetReadLimit(h.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	h.register <- client
	go client.writePump()
	go client.readPump()

	client.sendSystem("connected", map[string]interface{}{
		"client_id":     client.ID,
		"authenticated": userID != nil,
	})
}

func connectionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

// NotifyAuction fans an event out to the auction's room.
func (h *Hub) NotifyAuction(auctionID uuid.UUID, event string, payload interface{}) {
	h.enqueue(&envelope{room: RoomKey(auctionID), message: newEventMessage(event, RoomKey(auctionID), payload)})
}

// NotifyUser delivers an event to every live connection of a user.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, payload interface{}) {
	id := userID
	h.enqueue(&envelope{userID: &id, message: newEventMessage(event, "", payload)})
}

// Broadcast delivers an event to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.enqueue(&envelope{message: newEventMessage(event, "", payload)})
}

func (h *Hub) enqueue(env *envelope) {
	if env.message == nil {
		return
	}
	select {
	case h.outbound <- env:
	default:
		// Delivery is best-effort; dropping beats blocking a bid's
		// critical section on a saturated fabric.
		h.logger.Warn("outbound event queue full, dropping event",
			"event", env.message.Event, "room", env.room)
	}
}

func newEventMessage(event, room string, payload interface{}) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      "event",
		Event:     event,
		Room:      room,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

func (h *Hub) deliver(env *envelope) {
	data, err := json.Marshal(env.message)
	if err != nil {
		h.logger.Error("failed to marshal event", "error", err)
		return
	}

	switch {
	case env.room != "":
		h.roomMu.RLock()
		members := make([]uuid.UUID, 0, len(h.rooms[env.room]))
		for id := range h.rooms[env.room] {
			members = append(members, id)
		}
		h.roomMu.RUnlock()
		h.sendTo(members, data)

	case env.userID != nil:
		h.clientsMu.RLock()
		var targets []uuid.UUID
		for id, c := range h.clients {
			if c.UserID != nil && *c.UserID == *env.userID {
				targets = append(targets, id)
			}
		}
		h.clientsMu.RUnlock()
		h.sendTo(targets, data)

	default:
		h.clientsMu.RLock()
		all := make([]uuid.UUID, 0, len(h.clients))
		for id := range h.clients {
			all = append(all, id)
		}
		h.clientsMu.RUnlock()
		h.sendTo(all, data)
	}
}

func (h *Hub) sendTo(clientIDs []uuid.UUID, data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, id := range clientIDs {
		client, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping event", "client_id", id)
		}
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info("client connected", "client_id", c.ID, "total_clients", total)
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.roomMu.Lock()
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.roomMu.Unlock()

	h.logger.Info("client disconnected", "client_id", c.ID, "total_clients", total)
}

func (h *Hub) joinRoom(c *Client, room string) {
	c.roomMu.Lock()
	c.rooms[room] = true
	c.roomMu.Unlock()

	h.roomMu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[uuid.UUID]bool)
	}
	h.rooms[room][c.ID] = true
	h.roomMu.Unlock()
}

func (h *Hub) leaveRoom(c *Client, room string) {
	c.roomMu.Lock()
	delete(c.rooms, room)
	c.roomMu.Unlock()

	h.roomMu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.roomMu.Unlock()
}

// ConnectedClients returns the number of live connections.
func (h *Hub) ConnectedClients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in a room.
func (h *Hub) RoomSize(room string) int {
	h.roomMu.RLock()
	defer h.roomMu.RUnlock()
	return len(h.rooms[room])
}

// RunStats broadcasts LiveStatsUpdated on every tick until ctx ends.
func (h *Hub) RunStats(ctx context.Context, counter ActiveCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active, err := counter.CountActive(ctx)
			if err != nil {
				h.logger.Error("failed to count active auctions", "error", err)
				continue
			}
			h.Broadcast(EventLiveStatsUpdated, LiveStatsEvent{
				ActiveAuctions: active,
				ConnectedUsers: h.ConnectedClients(),
				Timestamp:      time.Now().UTC(),
			})
		}
	}
}

func errorMessage(err error) string {
	if appErr, ok := err.(*errors.AppError); ok {
		return appErr.Message
	}
	return fmt.Sprintf("request failed: %v", err)
}

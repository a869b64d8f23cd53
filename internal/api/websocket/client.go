package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hammerstone/live-auction-backend/internal/domain/values"
	"github.com/hammerstone/live-auction-backend/internal/service/bidding"
	"github.com/hammerstone/live-auction-backend/internal/service/lifecycle"
)

// Client is one live connection. UserID is nil for anonymous subscribers.
type Client struct {
	ID     uuid.UUID
	UserID *uuid.UUID

	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	rooms  map[string]bool
	roomMu sync.RWMutex
}

// joinPayload is the argument of JoinAuction, LeaveAuction and
// RequestTimerSync.
type joinPayload struct {
	AuctionID uuid.UUID `json:"auction_id"`
}

// placeBidPayload is the argument of PlaceBid.
type placeBidPayload struct {
	AuctionID uuid.UUID `json:"auction_id"`
	Amount    string    `json:"amount"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err, "client_id", c.ID)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case "JoinAuction":
		c.handleJoin(msg)
	case "LeaveAuction":
		c.handleLeave(msg)
	case "RequestTimerSync":
		c.handleTimerSync(msg)
	case "PlaceBid":
		c.handlePlaceBid(msg)
	case "ping":
		c.sendSystem("pong", nil)
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) handleJoin(msg *Message) {
	var payload joinPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.AuctionID == uuid.Nil {
		c.sendError("JoinAuction requires auction_id")
		return
	}
	// Idempotent: joining a room twice is a no-op.
	c.hub.joinRoom(c, RoomKey(payload.AuctionID))
	c.sendSystem("joined", map[string]interface{}{"room": RoomKey(payload.AuctionID)})
}

func (c *Client) handleLeave(msg *Message) {
	var payload joinPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.AuctionID == uuid.Nil {
		c.sendError("LeaveAuction requires auction_id")
		return
	}
	c.hub.leaveRoom(c, RoomKey(payload.AuctionID))
	c.sendSystem("left", map[string]interface{}{"room": RoomKey(payload.AuctionID)})
}

func (c *Client) handleTimerSync(msg *Message) {
	if c.hub.timers == nil {
		c.sendError("timer sync unavailable")
		return
	}
	var payload joinPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.AuctionID == uuid.Nil {
		c.sendError("RequestTimerSync requires auction_id")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := c.hub.timers.TimerSync(ctx, payload.AuctionID)
	if err != nil {
		c.sendError(errorMessage(err))
		return
	}
	c.sendEvent(lifecycle.EventTimerSync, state)
}

func (c *Client) handlePlaceBid(msg *Message) {
	if c.UserID == nil {
		c.sendError("authentication required to place bids")
		return
	}
	if c.hub.bids == nil {
		c.sendError("bidding unavailable")
		return
	}

	var payload placeBidPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.AuctionID == uuid.Nil {
		c.sendError("PlaceBid requires auction_id and amount")
		return
	}
	amount, err := values.NewMoneyFromString(payload.Amount)
	if err != nil {
		c.sendError("invalid bid amount")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := c.hub.bids.PlaceBid(ctx, bidding.PlaceBidRequest{
		AuctionID:     payload.AuctionID,
		BidderID:      *c.UserID,
		Amount:        amount,
		SourceAddress: c.conn.RemoteAddr().String(),
	})
	if err != nil {
		c.sendError(errorMessage(err))
		return
	}

	// Room subscribers get NewBid via the coordinator's emission; this is
	// the direct acknowledgement to the bidder.
	c.sendSystem("bid_accepted", map[string]interface{}{
		"bid_id":            result.Bid.ID,
		"new_current_price": result.NewCurrentPrice.String(),
		"total_bids":        result.TotalBids,
	})
}

func (c *Client) sendEvent(event string, payload interface{}) {
	c.enqueueLocal(newEventMessage(event, "", payload))
}

func (c *Client) sendSystem(event string, payload interface{}) {
	msg := newEventMessage(event, "", payload)
	if msg == nil {
		return
	}
	msg.Type = "system"
	c.enqueueLocal(msg)
}

func (c *Client) sendError(text string) {
	msg := newEventMessage("error", "", map[string]string{"message": text})
	if msg == nil {
		return
	}
	msg.Type = "error"
	c.enqueueLocal(msg)
}

func (c *Client) enqueueLocal(msg *Message) {
	if msg == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("client send buffer full, dropping message", "client_id", c.ID)
	}
}

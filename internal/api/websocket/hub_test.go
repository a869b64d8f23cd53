package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammerstone/live-auction-backend/internal/infrastructure/auth"
	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server, *auth.TokenService) {
	t.Helper()
	tokens := auth.NewTokenService(&config.SecurityConfig{
		JWTSecret:         "0123456789abcdef0123456789abcdef",
		Issuer:            "live-auction",
		Audience:          "api",
		AccessTokenExpiry: time.Minute,
	})
	hub := NewHub(tokens, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv, tokens
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func dial(t *testing.T, srv *httptest.Server, accessToken string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if accessToken != "" {
		url += "?access_token=" + accessToken
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Consume the connected handshake message.
	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "connected", hello.Event)
	return conn
}

func sendAction(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{
		ID:   uuid.New().String(),
		Type: msgType,
		Data: data,
	}))
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg), "waiting for event %q", event)
		if msg.Event == event {
			return msg
		}
	}
}

func joinAuction(t *testing.T, conn *websocket.Conn, auctionID uuid.UUID) {
	t.Helper()
	sendAction(t, conn, "JoinAuction", map[string]string{"auction_id": auctionID.String()})
	readEvent(t, conn, "joined")
}

func waitForRoomSize(t *testing.T, hub *Hub, room string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(room) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, hub.RoomSize(room))
}

func TestHub_RoomDelivery(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	auctionID := uuid.New()

	member := dial(t, srv, "")
	outsider := dial(t, srv, "")
	joinAuction(t, member, auctionID)
	waitForRoomSize(t, hub, RoomKey(auctionID), 1)

	hub.NotifyAuction(auctionID, "NewBid", map[string]string{"amount": "100.00"})

	msg := readEvent(t, member, "NewBid")
	assert.Equal(t, RoomKey(auctionID), msg.Room)

	outsider.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray Message
	err := outsider.ReadJSON(&stray)
	assert.Error(t, err, "non-member must not receive room events")
}

func TestHub_JoinIsIdempotent(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	auctionID := uuid.New()

	conn := dial(t, srv, "")
	joinAuction(t, conn, auctionID)
	joinAuction(t, conn, auctionID)

	waitForRoomSize(t, hub, RoomKey(auctionID), 1)
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub, srv, _ := newTestHub(t)
	auctionID := uuid.New()

	conn := dial(t, srv, "")
	joinAuction(t, conn, auctionID)
	waitForRoomSize(t, hub, RoomKey(auctionID), 1)

	sendAction(t, conn, "LeaveAuction", map[string]string{"auction_id": auctionID.String()})
	readEvent(t, conn, "left")
	waitForRoomSize(t, hub, RoomKey(auctionID), 0)
}

func TestHub_PerUserDelivery(t *testing.T) {
	hub, srv, tokens := newTestHub(t)
	aliceID, bobID := uuid.New(), uuid.New()

	aliceToken, err := tokens.GenerateAccessToken(aliceID, "alice@example.com", "alice")
	require.NoError(t, err)
	bobToken, err := tokens.GenerateAccessToken(bobID, "bob@example.com", "bob")
	require.NoError(t, err)

	// Alice has two connections; both must receive the targeted event.
	alice1 := dial(t, srv, aliceToken)
	alice2 := dial(t, srv, aliceToken)
	bob := dial(t, srv, bobToken)

	hub.NotifyUser(aliceID, "Outbid", map[string]string{"your_bid": "100.00"})

	readEvent(t, alice1, "Outbid")
	readEvent(t, alice2, "Outbid")

	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray Message
	assert.Error(t, bob.ReadJSON(&stray), "targeted events must not leak to other users")
}

func TestHub_Broadcast(t *testing.T) {
	hub, srv, _ := newTestHub(t)

	a := dial(t, srv, "")
	b := dial(t, srv, "")

	hub.Broadcast(EventLiveStatsUpdated, LiveStatsEvent{
		ActiveAuctions: 3,
		ConnectedUsers: 2,
		Timestamp:      time.Now().UTC(),
	})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readEvent(t, conn, EventLiveStatsUpdated)
		var stats LiveStatsEvent
		require.NoError(t, json.Unmarshal(msg.Data, &stats))
		assert.Equal(t, 3, stats.ActiveAuctions)
	}
}

func TestHub_AnonymousCannotBid(t *testing.T) {
	_, srv, _ := newTestHub(t)

	conn := dial(t, srv, "")
	sendAction(t, conn, "PlaceBid", map[string]string{
		"auction_id": uuid.New().String(),
		"amount":     "100.00",
	})

	msg := readEvent(t, conn, "error")
	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Contains(t, payload["message"], "authentication required")
}

func TestHub_RejectsBadToken(t *testing.T) {
	_, srv, _ := newTestHub(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?access_token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

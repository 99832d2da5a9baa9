package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outboundBuffer = 16
)

// Client is one live connection. Role and SubjectID are resolved once at
// handshake and immutable afterwards; a role change requires a new
// connection.
type Client struct {
	ID        uuid.UUID
	Role      types.Role
	SubjectID uuid.UUID

	conn      *websocket.Conn
	outbound  chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	log       *logger.Logger
}

func NewClient(conn *websocket.Conn, identity ClientIdentity, log *logger.Logger) *Client {
	id := uuid.New()
	return &Client{
		ID:        id,
		Role:      identity.Role,
		SubjectID: identity.SubjectID,
		conn:      conn,
		outbound:  make(chan Envelope, outboundBuffer),
		done:      make(chan struct{}),
		log:       log.With("clientID", id),
	}
}

type ClientIdentity struct {
	Role      types.Role
	SubjectID uuid.UUID
}

// Send queues an envelope without blocking. A full buffer drops the frame:
// delivery is at-most-once, best-effort.
func (c *Client) Send(env Envelope) {
	select {
	case <-c.done:
	case c.outbound <- env:
	default:
		c.log.Warn("Dropping outbound frame; buffer full", "event", env.Event)
	}
}

// Outbound exposes the send queue for delivery loops and tests.
func (c *Client) Outbound() <-chan Envelope {
	return c.outbound
}

// Close makes every subsequent Send a no-op. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadPump decodes inbound frames and hands them to onEvent until the
// connection drops. Runs on the connection's reader goroutine.
func (c *Client) ReadPump(onEvent func(env Envelope)) {
	defer func() {
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Connection closed unexpectedly", "error", err)
			}
			return
		}
		var env Envelope
		if uErr := json.Unmarshal(raw, &env); uErr != nil {
			c.log.Debug("Discarding malformed frame", "error", uErr)
			continue
		}
		onEvent(env)
	}
}

// WritePump drains the outbound queue onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
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

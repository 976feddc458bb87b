/*
Package ws is the websocket transport for the communication hub.

This file defines the Client struct wrapping one live socket. Clients are
push-only: all sends enter through the REST API and reach the socket via the
buffered send channel; the read side exists to service ping/pong heartbeats
and to detect the peer closing.
*/
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"commhub/internal/pkg/logx"
)

const (
	// writeWait is the timeout for a single write to the socket.
	writeWait = 10 * time.Second

	// pongWait is the maximum wait for a Pong before the peer is considered gone.
	pongWait = 60 * time.Second

	// pingPeriod is how often the server pings the peer.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; clients are not expected to send
	// payloads at all, so anything large is abusive.
	maxMessageSize = 1024

	// sendQueueSize is the per-connection outbound buffer.
	sendQueueSize = 256
)

// Client represents one live websocket connection owned by a logical user.
type Client struct {
	// ID is the physical connection ID assigned at upgrade time.
	ID string

	// UserID is the logical identity the connection authenticated as.
	UserID string

	conn *websocket.Conn
	send chan []byte

	// mu guards closed and the close of send, so Enqueue never races a
	// teardown into a send on a closed channel.
	mu     sync.Mutex
	closed bool

	logger zerolog.Logger
}

// NewClient wraps an upgraded websocket connection.
func NewClient(connID, userID string, conn *websocket.Conn) *Client {
	clientLogger := logx.Logger().With().
		Str("conn_id", connID).
		Str("user_id", userID).
		Logger()

	return &Client{
		ID:     connID,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		logger: clientLogger,
	}
}

// Enqueue queues a payload for delivery to this connection. It fails when
// the connection is already torn down or the outbound buffer is full (a slow
// or stalled peer) rather than blocking the fan-out path.
func (c *Client) Enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionGone
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping payload.")
		return ErrSendQueueFull
	}
}

// ReadPump services the inbound side: heartbeat deadlines and close
// detection. Inbound data frames are discarded. onClose runs exactly once
// when the connection dies, letting the caller unwind presence state.
func (c *Client) ReadPump(onClose func()) {
	defer func() {
		onClose()
		c.CloseSend()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in ReadPump.")
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline.")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly.")
			}
			return
		}
		// Inbound frames carry no protocol; sends go through the REST API.
	}
}

// WritePump drains the send channel onto the socket and keeps the heartbeat
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump.")
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline.")
				return
			}

			if !ok {
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug().Err(err).Msg("Error writing close message.")
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Error().Err(err).Msg("Error writing message.")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping.")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing ping.")
				return
			}
		}
	}
}

// CloseSend closes the outbound channel, which terminates WritePump. Safe to
// call more than once and concurrently with Enqueue: deliveries racing the
// teardown get ErrConnectionGone instead of a closed-channel send.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

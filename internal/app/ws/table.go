/*
Package ws is the websocket transport for the communication hub.

This file defines the Table, the process-wide map from physical connection ID
to its live Client. The Table implements the hub's Deliverer interface, so
resolved connection IDs translate into actual socket writes here.
*/
package ws

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"commhub/internal/pkg/logx"
)

// Transport-level delivery errors. These are per-connection conditions; the
// hub logs them and moves on to the next target.
var (
	// ErrConnectionGone means the connection ID has no live socket.
	ErrConnectionGone = errors.New("ws: connection not found")

	// ErrSendQueueFull means the peer is too slow to drain its buffer.
	ErrSendQueueFull = errors.New("ws: send queue full")
)

// Table tracks all live websocket clients by connection ID.
type Table struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

// NewTable returns an empty Table.
func NewTable() *Table {
	tableLogger := logx.Logger().With().Str("component", "ConnTable").Logger()

	return &Table{
		clients: make(map[string]*Client),
		logger:  tableLogger,
	}
}

// Add registers a live client under its connection ID.
func (t *Table) Add(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clients[c.ID] = c
}

// Remove forgets the connection. Removing an unknown ID is a no-op.
func (t *Table) Remove(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.clients, connID)
}

// Deliver queues the payload onto the connection's send buffer. Implements
// the hub's Deliverer contract: each call is independent and failures only
// concern this one connection.
func (t *Table) Deliver(connID string, payload []byte) error {
	t.mu.RLock()
	client, ok := t.clients[connID]
	t.mu.RUnlock()

	if !ok {
		return ErrConnectionGone
	}

	return client.Enqueue(payload)
}

// Len reports the number of live connections.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.clients)
}

// Shutdown closes every client's send channel, letting write pumps flush
// their close frames and exit.
func (t *Table) Shutdown() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, client := range t.clients {
		client.CloseSend()
	}
	t.clients = make(map[string]*Client)

	t.logger.Info().Msg("Connection table shut down.")
}

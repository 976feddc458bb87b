/*
Package presence tracks which physical connections belong to which logical
user, and which group conversations each user's connections should receive
broadcasts for.

The registry is process-wide in-memory state. It is not the source of truth
for conversation membership: the room set is a cache of "who is currently
reachable and in which rooms", rebuilt per connection from the chat store at
connect time. An entry exists if and only if its connection set is non-empty.
*/
package presence

import (
	"sync"
)

// Entry is a read-only snapshot of one user's presence. Queries return
// copies so callers never observe the registry mid-mutation.
type Entry struct {
	// UserID is the stable identity the connections authenticated as.
	UserID string

	// DisplayName and Language are carried from the session claims at
	// connect time and stay fixed for the entry's lifetime.
	DisplayName string
	Language    string

	// ConnectionIDs holds the transport-level IDs of every live connection
	// (one per device or tab).
	ConnectionIDs []string

	// Rooms holds the group conversation IDs this user's connections are
	// subscribed to.
	Rooms []string
}

// userConnection is the mutable registry record behind an Entry.
type userConnection struct {
	userID      string
	displayName string
	language    string
	connections map[string]struct{}
	rooms       map[string]struct{}
}

// Registry maps logical users to their live physical connections.
// All access goes through a single RWMutex; mutations happen only via the
// hub's lifecycle path, reads via the fan-out path.
type Registry struct {
	mu sync.RWMutex

	// users is keyed by user ID.
	users map[string]*userConnection

	// owners is the reverse index from physical connection ID to user ID,
	// so disconnects resolve without scanning every entry.
	owners map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]*userConnection),
		owners: make(map[string]string),
	}
}

// AddConnection registers a physical connection for the given user, creating
// the user's entry on first connection. Adding an ID that is already present
// is a no-op: the connection set has set semantics so a duplicate register
// can never cause duplicate delivery. The registry assumes a valid non-empty
// userID; the lifecycle layer rejects empty identities before reaching here.
func (r *Registry) AddConnection(userID, connID, displayName, language string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uc, ok := r.users[userID]
	if !ok {
		uc = &userConnection{
			userID:      userID,
			displayName: displayName,
			language:    language,
			connections: make(map[string]struct{}),
			rooms:       make(map[string]struct{}),
		}
		r.users[userID] = uc
	}

	uc.connections[connID] = struct{}{}
	r.owners[connID] = userID
}

// RemoveConnection drops the physical connection with the given ID. When the
// owning entry's connection set becomes empty the whole entry is removed, so
// no zero-device entries persist. Removing an unknown ID is a silent no-op:
// double disconnects are a normal race, not an error.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[connID]
	if !ok {
		return
	}
	delete(r.owners, connID)

	uc, ok := r.users[userID]
	if !ok {
		return
	}

	delete(uc.connections, connID)
	if len(uc.connections) == 0 {
		delete(r.users, userID)
	}
}

// FindByUser returns a snapshot of the entry for userID, if one exists.
func (r *Registry) FindByUser(userID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uc, ok := r.users[userID]
	if !ok {
		return Entry{}, false
	}
	return uc.snapshot(), true
}

// FindByConnection returns a snapshot of the entry owning the given physical
// connection ID, if any.
func (r *Registry) FindByConnection(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.owners[connID]
	if !ok {
		return Entry{}, false
	}

	uc, ok := r.users[userID]
	if !ok {
		return Entry{}, false
	}
	return uc.snapshot(), true
}

// ConnectionsFor returns the live connection IDs for userID. A user with no
// entry yields nil, which fan-out treats as "offline, skip".
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uc, ok := r.users[userID]
	if !ok {
		return nil
	}
	return keys(uc.connections)
}

// SyncRooms merges roomIDs into the user's cached room set. The merge is a
// union: rooms accrued by another device's session in the same window are
// never lost on reconnect. Rooms the user left are not removed here; that
// staleness is tolerated until the next reconnect or an explicit RemoveRoom.
func (r *Registry) SyncRooms(userID string, roomIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	uc, ok := r.users[userID]
	if !ok {
		return
	}

	for _, id := range roomIDs {
		uc.rooms[id] = struct{}{}
	}
}

// AddRoom subscribes the user's connections to a single room. No-op when the
// user is offline; they pick the room up at their next connect.
func (r *Registry) AddRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uc, ok := r.users[userID]; ok {
		uc.rooms[roomID] = struct{}{}
	}
}

// RemoveRoom drops a single room from the user's cached set.
func (r *Registry) RemoveRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uc, ok := r.users[userID]; ok {
		delete(uc.rooms, roomID)
	}
}

// ConnectionsInRoom flattens the connection IDs of every entry whose cached
// room set contains roomID. The scan is O(connected users), which tracks
// concurrently-online users rather than total users.
func (r *Registry) ConnectionsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []string
	for _, uc := range r.users {
		if _, ok := uc.rooms[roomID]; ok {
			for connID := range uc.connections {
				conns = append(conns, connID)
			}
		}
	}
	return conns
}

// OnlineUsers reports the number of users with at least one live connection.
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}

func (uc *userConnection) snapshot() Entry {
	return Entry{
		UserID:        uc.userID,
		DisplayName:   uc.displayName,
		Language:      uc.language,
		ConnectionIDs: keys(uc.connections),
		Rooms:         keys(uc.rooms),
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

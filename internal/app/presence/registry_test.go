package presence

import (
	"sort"
	"sync"
	"testing"
)

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func equalSets(got, want []string) bool {
	g, w := sorted(got), sorted(want)
	if len(g) != len(w) {
		return false
	}
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}

func TestAddConnectionCreatesEntry(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.FindByUser("alice"); ok {
		t.Fatal("expected no entry before first connection")
	}

	r.AddConnection("alice", "c1", "Alice", "en")

	entry, ok := r.FindByUser("alice")
	if !ok {
		t.Fatal("expected entry after first connection")
	}
	if entry.UserID != "alice" || entry.DisplayName != "Alice" || entry.Language != "en" {
		t.Errorf("unexpected entry fields: %+v", entry)
	}
	if !equalSets(entry.ConnectionIDs, []string{"c1"}) {
		t.Errorf("unexpected connections: %v", entry.ConnectionIDs)
	}
}

func TestAddConnectionDuplicateIDStoredOnce(t *testing.T) {
	r := NewRegistry()

	r.AddConnection("alice", "c1", "Alice", "en")
	r.AddConnection("alice", "c1", "Alice", "en")

	conns := r.ConnectionsFor("alice")
	if len(conns) != 1 {
		t.Fatalf("expected exactly 1 connection after duplicate add, got %d", len(conns))
	}
}

func TestRemoveLastConnectionDropsEntry(t *testing.T) {
	r := NewRegistry()

	r.AddConnection("alice", "c1", "Alice", "en")
	r.AddConnection("alice", "c2", "Alice", "en")

	r.RemoveConnection("c1")
	if _, ok := r.FindByUser("alice"); !ok {
		t.Fatal("entry should survive while one connection remains")
	}

	r.RemoveConnection("c2")
	if _, ok := r.FindByUser("alice"); ok {
		t.Fatal("entry should be gone once the last connection is removed")
	}
	if r.OnlineUsers() != 0 {
		t.Errorf("expected 0 online users, got %d", r.OnlineUsers())
	}
}

func TestRemoveUnknownConnectionIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.AddConnection("alice", "c1", "Alice", "en")

	r.RemoveConnection("never-registered")
	r.RemoveConnection("c1")
	r.RemoveConnection("c1")

	if r.OnlineUsers() != 0 {
		t.Errorf("expected empty registry, got %d users", r.OnlineUsers())
	}
}

func TestFindByConnection(t *testing.T) {
	r := NewRegistry()
	r.AddConnection("alice", "c1", "Alice", "en")
	r.AddConnection("bob", "c2", "Bob", "fr")

	entry, ok := r.FindByConnection("c2")
	if !ok {
		t.Fatal("expected entry for live connection")
	}
	if entry.UserID != "bob" {
		t.Errorf("expected owner bob, got %q", entry.UserID)
	}

	if _, ok := r.FindByConnection("c3"); ok {
		t.Error("expected no entry for unknown connection")
	}
}

func TestSyncRoomsMergesAsUnion(t *testing.T) {
	r := NewRegistry()

	r.AddConnection("alice", "c1", "Alice", "en")
	r.SyncRooms("alice", []string{"g1", "g2"})

	// Second device reconnects with a membership snapshot that no longer
	// mentions g2; the cached room must survive the merge.
	r.AddConnection("alice", "c2", "Alice", "en")
	r.SyncRooms("alice", []string{"g1", "g3"})

	entry, _ := r.FindByUser("alice")
	if !equalSets(entry.Rooms, []string{"g1", "g2", "g3"}) {
		t.Errorf("expected union of room sets, got %v", entry.Rooms)
	}
}

func TestSyncRoomsOfflineUserIsNoOp(t *testing.T) {
	r := NewRegistry()
	r.SyncRooms("ghost", []string{"g1"})

	if _, ok := r.FindByUser("ghost"); ok {
		t.Fatal("syncing rooms must not create an entry")
	}
}

func TestAddRemoveRoom(t *testing.T) {
	r := NewRegistry()
	r.AddConnection("alice", "c1", "Alice", "en")

	r.AddRoom("alice", "g1")
	r.AddRoom("alice", "g1")

	entry, _ := r.FindByUser("alice")
	if !equalSets(entry.Rooms, []string{"g1"}) {
		t.Errorf("expected single room g1, got %v", entry.Rooms)
	}

	r.RemoveRoom("alice", "g1")
	entry, _ = r.FindByUser("alice")
	if len(entry.Rooms) != 0 {
		t.Errorf("expected no rooms after removal, got %v", entry.Rooms)
	}

	// Offline users are skipped without effect.
	r.AddRoom("ghost", "g1")
	if _, ok := r.FindByUser("ghost"); ok {
		t.Fatal("AddRoom must not create an entry")
	}
}

func TestConnectionsInRoom(t *testing.T) {
	r := NewRegistry()

	r.AddConnection("alice", "a1", "Alice", "en")
	r.AddConnection("bob", "b1", "Bob", "en")
	r.AddConnection("bob", "b2", "Bob", "en")
	r.AddConnection("carol", "c1", "Carol", "en")

	r.SyncRooms("alice", []string{"g1"})
	r.SyncRooms("bob", []string{"g1"})
	r.SyncRooms("carol", []string{"g2"})

	conns := r.ConnectionsInRoom("g1")
	if !equalSets(conns, []string{"a1", "b1", "b2"}) {
		t.Errorf("unexpected room connections: %v", conns)
	}

	if got := r.ConnectionsInRoom("empty-room"); len(got) != 0 {
		t.Errorf("expected no connections for unknown room, got %v", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	r.AddConnection("alice", "c1", "Alice", "en")
	r.SyncRooms("alice", []string{"g1"})

	entry, _ := r.FindByUser("alice")
	entry.ConnectionIDs[0] = "tampered"
	entry.Rooms[0] = "tampered"

	fresh, _ := r.FindByUser("alice")
	if !equalSets(fresh.ConnectionIDs, []string{"c1"}) || !equalSets(fresh.Rooms, []string{"g1"}) {
		t.Error("mutating a snapshot leaked into the registry")
	}
}

func TestConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	users := []string{"u1", "u2", "u3", "u4"}

	for _, userID := range users {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(userID string, i int) {
				defer wg.Done()
				connID := userID + "-conn-" + string(rune('a'+i))
				r.AddConnection(userID, connID, userID, "en")
				r.SyncRooms(userID, []string{"g1"})
				r.ConnectionsInRoom("g1")
				r.ConnectionsFor(userID)
				r.RemoveConnection(connID)
			}(userID, i)
		}
	}

	wg.Wait()

	if r.OnlineUsers() != 0 {
		t.Errorf("expected empty registry after churn, got %d users", r.OnlineUsers())
	}
	if got := r.ConnectionsInRoom("g1"); len(got) != 0 {
		t.Errorf("expected no room connections after churn, got %v", got)
	}
}

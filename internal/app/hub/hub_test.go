package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"commhub/internal/app/chatstore"
	"commhub/internal/app/presence"
	"commhub/internal/pkg/errs"
)

// fakeChatStore lets each test script the persistence slice the hub sees.
type fakeChatStore struct {
	ListGroupConversationsFunc func(ctx context.Context, userID string) ([]string, error)
	AppendMessageFunc          func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error)
}

func (f *fakeChatStore) ListGroupConversations(ctx context.Context, userID string) ([]string, error) {
	if f.ListGroupConversationsFunc == nil {
		return nil, nil
	}
	return f.ListGroupConversationsFunc(ctx, userID)
}

func (f *fakeChatStore) AppendMessage(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
	if f.AppendMessageFunc == nil {
		return chatstore.Conversation{}, chatstore.Message{}, errors.New("AppendMessage not scripted")
	}
	return f.AppendMessageFunc(ctx, convID, msg)
}

// fakeDeliverer records every delivery attempt and can fail chosen targets.
type fakeDeliverer struct {
	mu      sync.Mutex
	sent    map[string][][]byte
	failFor map[string]struct{}
}

func newFakeDeliverer() *fakeDeliverer {
	return &fakeDeliverer{
		sent:    make(map[string][][]byte),
		failFor: make(map[string]struct{}),
	}
}

func (f *fakeDeliverer) Deliver(connID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.failFor[connID]; ok {
		return errors.New("connection gone")
	}
	f.sent[connID] = append(f.sent[connID], payload)
	return nil
}

func (f *fakeDeliverer) reached() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.sent))
	for connID := range f.sent {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

func (f *fakeDeliverer) countFor(connID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[connID])
}

func newTestHub(store ChatStore) (*Hub, *presence.Registry, *fakeDeliverer) {
	registry := presence.NewRegistry()
	deliverer := newFakeDeliverer()
	return New(registry, store, deliverer), registry, deliverer
}

func appendEcho(conv chatstore.Conversation) func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
	return func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
		msg.ID = "m1"
		msg.ConversationID = convID
		return conv, msg, nil
	}
}

func TestConnectSeedsRoomCache(t *testing.T) {
	store := &fakeChatStore{
		ListGroupConversationsFunc: func(ctx context.Context, userID string) ([]string, error) {
			return []string{"g1", "g2"}, nil
		},
	}
	h, registry, _ := newTestHub(store)

	if err := h.Connect(context.Background(), "c1", Identity{UserID: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("unexpected connect refusal: %v", err)
	}

	entry, ok := registry.FindByUser("alice")
	if !ok {
		t.Fatal("expected registry entry after connect")
	}
	rooms := append([]string(nil), entry.Rooms...)
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "g1" || rooms[1] != "g2" {
		t.Errorf("expected room cache [g1 g2], got %v", rooms)
	}
}

func TestConnectRefusesEmptyUserID(t *testing.T) {
	h, registry, _ := newTestHub(&fakeChatStore{})

	customErr := h.Connect(context.Background(), "c1", Identity{UserID: ""})
	if customErr == nil {
		t.Fatal("expected refusal for empty user ID")
	}
	if customErr.Code != errs.ErrIdentityMissing {
		t.Errorf("expected code %d, got %d", errs.ErrIdentityMissing, customErr.Code)
	}
	if registry.OnlineUsers() != 0 {
		t.Error("refused connection must not leave a registry entry")
	}
}

func TestConnectRollsBackOnMembershipFailure(t *testing.T) {
	store := &fakeChatStore{
		ListGroupConversationsFunc: func(ctx context.Context, userID string) ([]string, error) {
			return nil, errors.New("db down")
		},
	}
	h, registry, _ := newTestHub(store)

	customErr := h.Connect(context.Background(), "c1", Identity{UserID: "alice"})
	if customErr == nil {
		t.Fatal("expected refusal when membership load fails")
	}
	if customErr.Code != errs.ErrPersistenceFailed {
		t.Errorf("expected code %d, got %d", errs.ErrPersistenceFailed, customErr.Code)
	}
	if _, ok := registry.FindByConnection("c1"); ok {
		t.Error("failed connect must roll the connection back out of the registry")
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h, registry, _ := newTestHub(&fakeChatStore{})

	if err := h.Connect(context.Background(), "c1", Identity{UserID: "alice"}); err != nil {
		t.Fatalf("unexpected connect refusal: %v", err)
	}

	h.Disconnect("c1")
	h.Disconnect("c1")
	h.Disconnect("never-existed")

	if registry.OnlineUsers() != 0 {
		t.Errorf("expected empty registry, got %d users", registry.OnlineUsers())
	}
}

func TestSendMessageIndividualReachesAllDevicesOfBothParties(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "chat1",
		Type:         chatstore.ChatTypeIndividual,
		Participants: []string{"alice", "bob"},
	}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.AddConnection("bob", "b1", "Bob", "en")
	registry.AddConnection("bob", "b2", "Bob", "en")

	result, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		ReceiverID:     "bob",
		Content:        "hi",
	})
	if customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	reached := deliverer.reached()
	if len(reached) != 3 {
		t.Fatalf("expected sender and both receiver devices reached, got %v", reached)
	}
	if result.Delivered != 3 {
		t.Errorf("expected 3 deliveries reported, got %d", result.Delivered)
	}
}

func TestSendMessageIndividualOfflineReceiver(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "chat1",
		Type:         chatstore.ChatTypeIndividual,
		Participants: []string{"alice", "bob"},
	}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")

	result, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		Content:        "hi",
	})
	if customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	reached := deliverer.reached()
	if len(reached) != 1 || reached[0] != "a1" {
		t.Errorf("expected only the sender's device reached, got %v", reached)
	}
	if result.Message.ID == "" {
		t.Error("message must still be persisted when the receiver is offline")
	}
}

func TestSendMessageGroupFansOutToRoomConnections(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "g1",
		Type:         chatstore.ChatTypeGroup,
		Participants: []string{"alice", "bob", "carol"},
	}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.AddConnection("bob", "b1", "Bob", "en")
	registry.AddConnection("bob", "b2", "Bob", "en")
	registry.AddConnection("carol", "c1", "Carol", "en")
	registry.SyncRooms("alice", []string{"g1"})
	registry.SyncRooms("bob", []string{"g1"})
	registry.SyncRooms("carol", []string{"g1"})

	result, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "g1",
		SenderID:       "alice",
		Content:        "hello all",
	})
	if customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	if len(deliverer.reached()) != 4 {
		t.Errorf("expected 4 room connections reached, got %v", deliverer.reached())
	}
	if result.Delivered != 4 {
		t.Errorf("expected 4 deliveries reported, got %d", result.Delivered)
	}
}

func TestSendMessageGroupMultiDeviceMemberGetsOneFramePerDevice(t *testing.T) {
	conv := chatstore.Conversation{ID: "g1", Type: chatstore.ChatTypeGroup}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.AddConnection("bob", "b1", "Bob", "en")
	registry.AddConnection("bob", "b2", "Bob", "en")
	registry.SyncRooms("alice", []string{"g1"})
	registry.SyncRooms("bob", []string{"g1"})

	if _, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "g1",
		SenderID:       "alice",
		Content:        "hi",
	}); customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	if len(deliverer.reached()) != 3 {
		t.Errorf("expected 3 connections reached, got %v", deliverer.reached())
	}
	for _, connID := range []string{"a1", "b1", "b2"} {
		if deliverer.countFor(connID) != 1 {
			t.Errorf("connection %s should receive exactly one frame, got %d", connID, deliverer.countFor(connID))
		}
	}
}

func TestSendMessageDeliveryFailureDoesNotAbortFanOut(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "chat1",
		Type:         chatstore.ChatTypeIndividual,
		Participants: []string{"alice", "bob"},
	}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.AddConnection("bob", "b1", "Bob", "en")
	deliverer.failFor["b1"] = struct{}{}

	result, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		Content:        "hi",
	})
	if customErr != nil {
		t.Fatalf("delivery failures must not surface to the sender: %v", customErr)
	}

	if result.Delivered != 1 {
		t.Errorf("expected 1 successful delivery, got %d", result.Delivered)
	}
	if deliverer.countFor("a1") != 1 {
		t.Error("healthy connection should still receive the message")
	}
}

func TestSendMessageUnknownChat(t *testing.T) {
	store := &fakeChatStore{
		AppendMessageFunc: func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
			return chatstore.Conversation{}, chatstore.Message{}, chatstore.ErrNotFound
		},
	}
	h, _, deliverer := newTestHub(store)

	_, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "missing",
		SenderID:       "alice",
		Content:        "hi",
	})
	if customErr == nil {
		t.Fatal("expected error for unknown conversation")
	}
	if customErr.Code != errs.ErrChatNotFound {
		t.Errorf("expected code %d, got %d", errs.ErrChatNotFound, customErr.Code)
	}
	if len(deliverer.reached()) != 0 {
		t.Error("nothing must be delivered when persistence fails")
	}
}

func TestSendMessageRejectsUnknownTypeBeforePersisting(t *testing.T) {
	appended := false
	store := &fakeChatStore{
		AppendMessageFunc: func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
			appended = true
			return chatstore.Conversation{ID: convID}, msg, nil
		},
	}
	h, _, deliverer := newTestHub(store)

	_, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		Type:           chatstore.ChatType("bogus"),
		SenderID:       "alice",
		Content:        "hi",
	})
	if customErr == nil || customErr.Code != errs.ErrChatTypeInvalid {
		t.Fatalf("expected chat type error, got %v", customErr)
	}
	if appended {
		t.Error("unknown type must be refused before the message is persisted")
	}
	if len(deliverer.reached()) != 0 {
		t.Error("nothing must be delivered for a refused send")
	}
}

func TestSendMessageInvalidTypeFromStore(t *testing.T) {
	conv := chatstore.Conversation{ID: "chat1", Type: chatstore.ChatType("broadcast")}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, _, _ := newTestHub(store)

	_, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		Content:        "hi",
	})
	if customErr == nil || customErr.Code != errs.ErrChatTypeInvalid {
		t.Fatalf("expected chat type error, got %v", customErr)
	}
}

func TestSendMessageEnvelopeShape(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "chat1",
		Type:         chatstore.ChatTypeIndividual,
		Participants: []string{"alice"},
	}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")

	if _, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		Content:        "hi",
	}); customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	deliverer.mu.Lock()
	frames := deliverer.sent["a1"]
	deliverer.mu.Unlock()
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}

	var env Envelope
	if err := json.Unmarshal(frames[0], &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if env.Type != EventMessage {
		t.Errorf("expected event type %q, got %q", EventMessage, env.Type)
	}
	if env.ID == "" || env.Timestamp == 0 {
		t.Errorf("envelope missing ID or timestamp: %+v", env)
	}
}

func TestJoinRoomMakesMemberReachable(t *testing.T) {
	conv := chatstore.Conversation{ID: "g1", Type: chatstore.ChatTypeGroup}
	store := &fakeChatStore{AppendMessageFunc: appendEcho(conv)}
	h, registry, deliverer := newTestHub(store)

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.SyncRooms("alice", []string{"g1"})
	registry.AddConnection("dave", "d1", "Dave", "en")

	h.JoinRoom("dave", "g1")

	if _, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "g1",
		SenderID:       "alice",
		Content:        "welcome",
	}); customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	if deliverer.countFor("d1") != 1 {
		t.Error("newly joined member's connection should receive the broadcast")
	}

	h.LeaveRoom("dave", "g1")

	if _, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "g1",
		SenderID:       "alice",
		Content:        "again",
	}); customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	if deliverer.countFor("d1") != 1 {
		t.Error("member who left the room must not receive further broadcasts")
	}
}

func TestSendNotification(t *testing.T) {
	h, registry, deliverer := newTestHub(&fakeChatStore{})

	registry.AddConnection("alice", "a1", "Alice", "en")
	registry.AddConnection("bob", "b1", "Bob", "en")
	registry.AddConnection("bob", "b2", "Bob", "en")

	targets, customErr := h.SendNotification(context.Background(), Notification{
		UserIDs: []string{"alice", "bob", "offline-user"},
		Content: "maintenance at noon",
	})
	if customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	if len(targets) != 3 {
		t.Errorf("expected 3 target connections, got %v", targets)
	}
	if len(deliverer.reached()) != 3 {
		t.Errorf("expected 3 connections reached, got %v", deliverer.reached())
	}

	var env Envelope
	deliverer.mu.Lock()
	frame := deliverer.sent["a1"][0]
	deliverer.mu.Unlock()
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if env.Type != EventNotification {
		t.Errorf("expected event type %q, got %q", EventNotification, env.Type)
	}
}

func TestSendMessageWithAttachments(t *testing.T) {
	conv := chatstore.Conversation{
		ID:           "chat1",
		Type:         chatstore.ChatTypeIndividual,
		Participants: []string{"alice"},
	}
	var persisted chatstore.Message
	store := &fakeChatStore{
		AppendMessageFunc: func(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error) {
			persisted = msg
			msg.ID = "m1"
			return conv, msg, nil
		},
	}
	h, _, _ := newTestHub(store)

	_, customErr := h.SendMessage(context.Background(), MessageInput{
		ConversationID: "chat1",
		SenderID:       "alice",
		Content:        "see attached",
		Attachments: []chatstore.Attachment{
			{Key: "chat1/f1.png", Name: "f1.png", MimeType: "image/png", Size: 1024},
		},
	})
	if customErr != nil {
		t.Fatalf("unexpected error: %v", customErr)
	}

	var attachments []chatstore.Attachment
	if err := json.Unmarshal(persisted.Attachments, &attachments); err != nil {
		t.Fatalf("persisted attachments are not valid JSON: %v", err)
	}
	if len(attachments) != 1 || attachments[0].Key != "chat1/f1.png" {
		t.Errorf("unexpected persisted attachments: %+v", attachments)
	}
}

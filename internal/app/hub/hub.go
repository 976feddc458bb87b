/*
Package hub contains the connection lifecycle and message fan-out logic of the
communication hub.

This file defines the Hub struct, which owns all writes to the presence
registry (connect/disconnect, room cache maintenance) and resolves the target
connection set for every outbound message and notification.
*/
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"commhub/internal/app/chatstore"
	"commhub/internal/app/presence"
	"commhub/internal/pkg/errs"
	"commhub/internal/pkg/logx"
)

// membershipLoadTimeout bounds the chat store lookup during connect; an
// unbounded wait here would block session establishment.
const membershipLoadTimeout = 5 * time.Second

// ChatStore is the slice of the persistence layer the hub depends on.
type ChatStore interface {
	// ListGroupConversations returns the group conversation IDs the user
	// participates in, used to seed the room cache at connect time.
	ListGroupConversations(ctx context.Context, userID string) ([]string, error)

	// AppendMessage persists a message and returns the authoritative
	// conversation record whose participant list drives individual routing.
	AppendMessage(ctx context.Context, convID string, msg chatstore.Message) (chatstore.Conversation, chatstore.Message, error)
}

// Deliverer pushes a payload to one physical connection. Each call is
// independent; a failed delivery must not affect the others.
type Deliverer interface {
	Deliver(connID string, payload []byte) error
}

// Hub coordinates the presence registry, the chat store, and the transport.
type Hub struct {
	registry  *presence.Registry
	store     ChatStore
	deliverer Deliverer
	logger    zerolog.Logger
}

// New constructs a Hub around the given collaborators.
func New(registry *presence.Registry, store ChatStore, deliverer Deliverer) *Hub {
	hubLogger := logx.Logger().With().Str("component", "Hub").Logger()

	return &Hub{
		registry:  registry,
		store:     store,
		deliverer: deliverer,
		logger:    hubLogger,
	}
}

// Connect registers a new physical connection for the authenticated identity
// and seeds the user's room cache from the chat store.
//
// An empty user ID refuses the connection outright. A failed or timed-out
// membership lookup also refuses it, rolling back the registry entry, so a
// connection is never admitted half-initialized.
func (h *Hub) Connect(ctx context.Context, connID string, id Identity) *errs.CustomError {
	if id.UserID == "" {
		h.logger.Warn().Str("conn_id", connID).Msg("Connection refused: empty user ID in session claims.")
		return errs.NewError(errs.ErrIdentityMissing)
	}

	h.registry.AddConnection(id.UserID, connID, id.DisplayName, id.Language)

	loadCtx, cancel := context.WithTimeout(ctx, membershipLoadTimeout)
	defer cancel()

	rooms, err := h.store.ListGroupConversations(loadCtx, id.UserID)
	if err != nil {
		h.registry.RemoveConnection(connID)
		h.logger.Error().Err(err).
			Str("user_id", id.UserID).
			Str("conn_id", connID).
			Msg("Connection refused: group membership load failed.")
		return errs.NewError(errs.ErrPersistenceFailed)
	}

	h.registry.SyncRooms(id.UserID, rooms)

	h.logger.Info().
		Str("user_id", id.UserID).
		Str("conn_id", connID).
		Int("rooms", len(rooms)).
		Msg("Connection registered.")

	return nil
}

// Disconnect removes a physical connection by its ID alone. Safe to call for
// connections that were never registered or were already removed.
func (h *Hub) Disconnect(connID string) {
	if entry, ok := h.registry.FindByConnection(connID); ok {
		h.logger.Info().
			Str("user_id", entry.UserID).
			Str("conn_id", connID).
			Msg("Connection removed.")
	}

	h.registry.RemoveConnection(connID)
}

// JoinRoom subscribes a connected user's sessions to a conversation room.
// Called when a participant is added to a group chat, so connected members
// start receiving its broadcasts without a reconnect.
func (h *Hub) JoinRoom(userID, convID string) {
	h.registry.AddRoom(userID, convID)
}

// LeaveRoom drops a conversation room from a connected user's cache.
func (h *Hub) LeaveRoom(userID, convID string) {
	h.registry.RemoveRoom(userID, convID)
}

// SendMessage persists the message and fans it out to every live connection
// the routing rule selects.
//
// Persistence happens first: individual routing depends on the participant
// list returned by the store, and the sender must always learn whether their
// message was stored. Delivery failures after that point are logged per
// connection and never surfaced to the sender.
func (h *Hub) SendMessage(ctx context.Context, in MessageInput) (*SendResult, *errs.CustomError) {
	// An unknown routing type is rejected up front; once AppendMessage
	// commits, the sender must only ever see a success.
	if in.Type != "" && !in.Type.Valid() {
		return nil, errs.NewError(errs.ErrChatTypeInvalid)
	}

	msg := chatstore.Message{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
	}

	if len(in.Attachments) > 0 {
		raw, err := json.Marshal(in.Attachments)
		if err != nil {
			return nil, errs.NewError(errs.ErrAttachmentInvalid)
		}
		msg.Attachments = raw
	}

	conv, stored, err := h.store.AppendMessage(ctx, in.ConversationID, msg)
	if err != nil {
		if errors.Is(err, chatstore.ErrNotFound) {
			return nil, errs.NewError(errs.ErrChatNotFound)
		}
		h.logger.Error().Err(err).
			Str("chat_id", in.ConversationID).
			Msg("Message persistence failed.")
		return nil, errs.NewError(errs.ErrPersistenceFailed)
	}

	chatType := in.Type
	if chatType == "" {
		chatType = conv.Type
	}

	var targets []string
	switch chatType {
	case chatstore.ChatTypeIndividual:
		targets = h.resolveIndividual(conv.Participants)
	case chatstore.ChatTypeGroup:
		targets = dedupe(h.registry.ConnectionsInRoom(conv.ID))
	default:
		return nil, errs.NewError(errs.ErrChatTypeInvalid)
	}

	payload, mErr := newEnvelope(EventMessage, stored)
	if mErr != nil {
		h.logger.Error().Err(mErr).Str("message_id", stored.ID).Msg("Failed to build message envelope.")
		return nil, errs.NewError(errs.ErrUnknown)
	}

	delivered := h.deliver(targets, payload)

	h.logger.Info().
		Str("chat_id", conv.ID).
		Str("message_id", stored.ID).
		Str("chat_type", string(chatType)).
		Int("targets", len(targets)).
		Int("delivered", delivered).
		Msg("Message fanned out.")

	return &SendResult{
		Conversation: conv,
		Message:      stored,
		Targets:      targets,
		Delivered:    delivered,
	}, nil
}

// SendNotification resolves the recipients' live connections directly by user
// ID and pushes the notification to each. No conversation lookup is involved;
// offline recipients simply contribute no connections.
func (h *Hub) SendNotification(ctx context.Context, n Notification) ([]string, *errs.CustomError) {
	targetSet := make(map[string]struct{})
	for _, userID := range n.UserIDs {
		for _, connID := range h.registry.ConnectionsFor(userID) {
			targetSet[connID] = struct{}{}
		}
	}

	targets := make([]string, 0, len(targetSet))
	for connID := range targetSet {
		targets = append(targets, connID)
	}

	payload, err := newEnvelope(EventNotification, n)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to build notification envelope.")
		return nil, errs.NewError(errs.ErrUnknown)
	}

	delivered := h.deliver(targets, payload)

	h.logger.Info().
		Int("recipients", len(n.UserIDs)).
		Int("targets", len(targets)).
		Int("delivered", delivered).
		Msg("Notification fanned out.")

	return targets, nil
}

// resolveIndividual expands the participant list into the union of each
// participant's live connections. The sender's own other devices are included
// so all of a user's open sessions stay in sync; offline participants are
// skipped silently.
func (h *Hub) resolveIndividual(participants []string) []string {
	set := make(map[string]struct{})
	for _, userID := range participants {
		for _, connID := range h.registry.ConnectionsFor(userID) {
			set[connID] = struct{}{}
		}
	}

	targets := make([]string, 0, len(set))
	for connID := range set {
		targets = append(targets, connID)
	}
	return targets
}

// deliver pushes the payload to each target independently and returns how
// many deliveries succeeded. A failure on one connection never aborts the
// rest; the connection will be cleaned up by its own lifecycle path.
func (h *Hub) deliver(targets []string, payload []byte) int {
	delivered := 0
	for _, connID := range targets {
		if err := h.deliverer.Deliver(connID, payload); err != nil {
			h.logger.Warn().Err(err).
				Str("conn_id", connID).
				Msg("Delivery to connection failed.")
			continue
		}
		delivered++
	}
	return delivered
}

func dedupe(ids []string) []string {
	set := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

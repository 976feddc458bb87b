package chatstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by Store implementations. Handlers map these to
// client-facing error codes; the hub treats anything else as an internal
// persistence failure.
var (
	ErrNotFound          = errors.New("chatstore: conversation not found")
	ErrMessageNotFound   = errors.New("chatstore: message not found")
	ErrParticipantExists = errors.New("chatstore: participant already in conversation")
	ErrNotGroup          = errors.New("chatstore: conversation is not a group chat")
)

// Store is the persistence contract for conversations and messages.
type Store interface {
	// Create inserts a new conversation and returns it with its assigned ID.
	Create(ctx context.Context, conv Conversation) (Conversation, error)

	// GetByID returns one conversation with its full message history.
	GetByID(ctx context.Context, id string) (Conversation, error)

	// List returns every conversation without message history.
	List(ctx context.Context) ([]Conversation, error)

	// ListForParticipant returns the conversations a user participates in.
	ListForParticipant(ctx context.Context, userID string) ([]Conversation, error)

	// ListGroupConversations returns the IDs of group conversations the user
	// participates in. The hub calls this at connect time to seed the room cache.
	ListGroupConversations(ctx context.Context, userID string) ([]string, error)

	// AppendMessage persists a message and returns the authoritative
	// conversation record alongside the stored message. The returned
	// participant list drives individual-chat fan-out.
	AppendMessage(ctx context.Context, convID string, msg Message) (Conversation, Message, error)

	// UpdateMessageStatus moves a message to a new read-lifecycle status.
	UpdateMessageStatus(ctx context.Context, convID, messageID string, status MessageStatus) (Message, error)

	// AddParticipant adds a user to a group conversation.
	AddParticipant(ctx context.Context, convID, userID string) (Conversation, error)

	// RemoveParticipant removes a user from a conversation.
	RemoveParticipant(ctx context.Context, convID, userID string) (Conversation, error)
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps the pool in a Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, conv Conversation) (Conversation, error) {
	const q = `
		INSERT INTO conversations (name, chat_type, participants)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q, conv.Name, string(conv.Type), conv.Participants).
		Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	return conv, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Conversation, error) {
	conv, err := s.getConversation(ctx, s.pool, id)
	if err != nil {
		return Conversation{}, err
	}

	const q = `
		SELECT id, conversation_id, sender_id, receiver_id, content, attachments, status, sent_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return Conversation{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.Attachments, &m.Status, &m.SentAt); err != nil {
			return Conversation{}, fmt.Errorf("scan message: %w", err)
		}
		conv.Messages = append(conv.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, fmt.Errorf("iterate messages: %w", err)
	}

	return conv, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Conversation, error) {
	const q = `
		SELECT id, name, chat_type, participants, created_at
		FROM conversations
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

func (s *PostgresStore) ListForParticipant(ctx context.Context, userID string) ([]Conversation, error) {
	const q = `
		SELECT id, name, chat_type, participants, created_at
		FROM conversations
		WHERE participants @> ARRAY[$1]
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations for participant: %w", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

func (s *PostgresStore) ListGroupConversations(ctx context.Context, userID string) ([]string, error) {
	const q = `
		SELECT id
		FROM conversations
		WHERE chat_type = 'group' AND participants @> ARRAY[$1]`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query group conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation ids: %w", err)
	}

	return ids, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, convID string, msg Message) (Conversation, Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, Message{}, fmt.Errorf("begin append message: %w", err)
	}
	defer tx.Rollback(ctx)

	conv, err := s.getConversation(ctx, tx, convID)
	if err != nil {
		return Conversation{}, Message{}, err
	}

	const q = `
		INSERT INTO messages (conversation_id, sender_id, receiver_id, content, attachments, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sent_at`

	msg.ConversationID = convID
	if msg.Status == "" {
		msg.Status = StatusSent
	}

	err = tx.QueryRow(ctx, q, convID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Attachments, string(msg.Status)).
		Scan(&msg.ID, &msg.SentAt)
	if err != nil {
		return Conversation{}, Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, Message{}, fmt.Errorf("commit append message: %w", err)
	}

	return conv, msg, nil
}

func (s *PostgresStore) UpdateMessageStatus(ctx context.Context, convID, messageID string, status MessageStatus) (Message, error) {
	const q = `
		UPDATE messages
		SET status = $1
		WHERE id = $2 AND conversation_id = $3
		RETURNING id, conversation_id, sender_id, receiver_id, content, attachments, status, sent_at`

	var m Message
	err := s.pool.QueryRow(ctx, q, string(status), messageID, convID).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID,
			&m.Content, &m.Attachments, &m.Status, &m.SentAt)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("update message status: %w", err)
	}

	// Distinguish a missing conversation from a missing message.
	if _, convErr := s.getConversation(ctx, s.pool, convID); convErr != nil {
		return Message{}, convErr
	}
	return Message{}, ErrMessageNotFound
}

func (s *PostgresStore) AddParticipant(ctx context.Context, convID, userID string) (Conversation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin add participant: %w", err)
	}
	defer tx.Rollback(ctx)

	conv, err := s.getConversationForUpdate(ctx, tx, convID)
	if err != nil {
		return Conversation{}, err
	}

	if conv.Type != ChatTypeGroup {
		return Conversation{}, ErrNotGroup
	}

	for _, p := range conv.Participants {
		if p == userID {
			return Conversation{}, ErrParticipantExists
		}
	}

	const q = `
		UPDATE conversations
		SET participants = array_append(participants, $1)
		WHERE id = $2
		RETURNING participants`

	if err := tx.QueryRow(ctx, q, userID, convID).Scan(&conv.Participants); err != nil {
		return Conversation{}, fmt.Errorf("append participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("commit add participant: %w", err)
	}

	return conv, nil
}

func (s *PostgresStore) RemoveParticipant(ctx context.Context, convID, userID string) (Conversation, error) {
	const q = `
		UPDATE conversations
		SET participants = array_remove(participants, $1)
		WHERE id = $2
		RETURNING id, name, chat_type, participants, created_at`

	var conv Conversation
	err := s.pool.QueryRow(ctx, q, userID, convID).
		Scan(&conv.ID, &conv.Name, &conv.Type, &conv.Participants, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("remove participant: %w", err)
	}

	return conv, nil
}

// querier covers both *pgxpool.Pool and pgx.Tx for shared read helpers.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) getConversation(ctx context.Context, q querier, id string) (Conversation, error) {
	const query = `
		SELECT id, name, chat_type, participants, created_at
		FROM conversations
		WHERE id = $1`

	return scanConversationRow(q.QueryRow(ctx, query, id))
}

func (s *PostgresStore) getConversationForUpdate(ctx context.Context, tx pgx.Tx, id string) (Conversation, error) {
	const query = `
		SELECT id, name, chat_type, participants, created_at
		FROM conversations
		WHERE id = $1
		FOR UPDATE`

	return scanConversationRow(tx.QueryRow(ctx, query, id))
}

func scanConversationRow(row pgx.Row) (Conversation, error) {
	var conv Conversation
	err := row.Scan(&conv.ID, &conv.Name, &conv.Type, &conv.Participants, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return conv, nil
}

func scanConversations(rows pgx.Rows) ([]Conversation, error) {
	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Name, &conv.Type, &conv.Participants, &conv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

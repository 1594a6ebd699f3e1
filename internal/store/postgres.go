package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/clearline-ai/support-orchestrator/internal/model"
)

// PostgresStore implements Store on top of database/sql with the pq driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres-backed store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *model.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, customer_id, subject, channel, priority, status, handling_mode,
			 assigned_agent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		conv.ID,
		conv.CustomerID,
		nullString(conv.Subject),
		conv.Channel,
		conv.Priority,
		conv.Status,
		string(conv.HandlingMode),
		nullString(conv.AssignedAgentID),
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var (
		conv          model.Conversation
		mode          string
		subject       sql.NullString
		assignedAgent sql.NullString
		lastMessage   sql.NullString
		lastMessageAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, subject, channel, priority, status, handling_mode,
		       assigned_agent_id, last_message, last_message_at, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(
		&conv.ID,
		&conv.CustomerID,
		&subject,
		&conv.Channel,
		&conv.Priority,
		&conv.Status,
		&mode,
		&assignedAgent,
		&lastMessage,
		&lastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select conversation: %w", err)
	}

	conv.HandlingMode = model.HandlingMode(mode)
	conv.Subject = subject.String
	conv.AssignedAgentID = assignedAgent.String
	conv.LastMessage = lastMessage.String
	if lastMessageAt.Valid {
		t := lastMessageAt.Time
		conv.LastMessageAt = &t
	}

	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages

	return &conv, nil
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error {
	// Query built column by column so untouched fields stay untouched.
	set := "updated_at = $1"
	args := []any{time.Now().UTC()}

	add := func(column string, value any) {
		args = append(args, value)
		set = fmt.Sprintf("%s, %s = $%d", set, column, len(args))
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Priority != nil {
		add("priority", *upd.Priority)
	}
	if upd.HandlingMode != nil {
		add("handling_mode", string(*upd.HandlingMode))
	}
	if upd.LastMessage != nil {
		add("last_message", *upd.LastMessage)
	}
	if upd.LastMessageAt != nil {
		add("last_message_at", *upd.LastMessageAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE conversations SET %s WHERE id = $%d", set, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, sender_type, sender_customer_id, sender_agent_id,
			 content, is_internal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		msg.ID,
		msg.ConversationID,
		string(msg.SenderType),
		msg.SenderCustomerID,
		msg.SenderAgentID,
		msg.Content,
		msg.IsInternal,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_type, sender_customer_id, sender_agent_id,
		       content, is_internal, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m          model.Message
			senderType string
			customerID sql.NullString
			agentID    sql.NullString
		)
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&senderType,
			&customerID,
			&agentID,
			&m.Content,
			&m.IsInternal,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = model.SenderType(senderType)
		if customerID.Valid {
			v := customerID.String
			m.SenderCustomerID = &v
		}
		if agentID.Valid {
			v := agentID.String
			m.SenderAgentID = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if len(out) == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)", conversationID,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check conversation: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
	}

	// Callers depend on ascending timestamps regardless of what the query
	// returned.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

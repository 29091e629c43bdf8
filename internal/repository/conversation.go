package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Conversation is one persisted chat session with the agent.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationRepository handles conversation persistence
type ConversationRepository struct {
	db *DB
}

func NewConversationRepository(db *DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	conv := &Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agent_conversations (id, user_id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// GetByID retrieves a conversation by ID. Returns nil when not found.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv := &Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM agent_conversations WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return conv, nil
}

// ListByUser lists conversations for a user, most recently active first.
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM agent_conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		conv := &Conversation{}
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, rows.Err()
}

// UpdateTitle updates the conversation title
func (r *ConversationRepository) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agent_conversations SET title = $1, updated_at = NOW() WHERE id = $2`,
		title, id,
	)
	return err
}

// Touch updates the updated_at timestamp
func (r *ConversationRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agent_conversations SET updated_at = NOW() WHERE id = $1`,
		id,
	)
	return err
}

// Delete deletes a conversation and its messages.
func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM agent_conversations WHERE id = $1`,
		id,
	)
	return err
}

// StoredMessage is one persisted turn. ToolName, ToolParameters, and
// ExecutionResult are set only on assistant turns that ran a tool.
type StoredMessage struct {
	ID              uuid.UUID       `json:"id"`
	ConversationID  uuid.UUID       `json:"conversation_id"`
	Role            string          `json:"role"` // "user" or "assistant"
	Content         string          `json:"content"`
	ToolName        string          `json:"tool_name,omitempty"`
	ToolParameters  json.RawMessage `json:"tool_parameters,omitempty"`
	ExecutionResult string          `json:"execution_result,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MessageRepository handles message persistence
type MessageRepository struct {
	db *DB
}

func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message
func (r *MessageRepository) Create(ctx context.Context, conversationID uuid.UUID, role, content, toolName string, toolParams json.RawMessage, executionResult string) (*StoredMessage, error) {
	msg := &StoredMessage{
		ID:              uuid.New(),
		ConversationID:  conversationID,
		Role:            role,
		Content:         content,
		ToolName:        toolName,
		ToolParameters:  toolParams,
		ExecutionResult: executionResult,
		CreatedAt:       time.Now(),
	}

	var toolNameParam interface{}
	if toolName != "" {
		toolNameParam = toolName
	}
	var toolParamsParam interface{}
	if len(toolParams) > 0 {
		toolParamsParam = string(toolParams)
	}
	var resultParam interface{}
	if executionResult != "" {
		resultParam = executionResult
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agent_messages (id, conversation_id, role, content, tool_name, tool_parameters, execution_result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, toolNameParam, toolParamsParam, resultParam, msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// ListByConversation lists messages for a conversation in chronological order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*StoredMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, COALESCE(tool_name, ''), tool_parameters, COALESCE(execution_result, ''), created_at
		 FROM agent_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetLastN retrieves the last N messages from a conversation, oldest first.
func (r *MessageRepository) GetLastN(ctx context.Context, conversationID uuid.UUID, n int) ([]*StoredMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, COALESCE(tool_name, ''), tool_parameters, COALESCE(execution_result, ''), created_at
		 FROM agent_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		conversationID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func scanMessages(rows *sql.Rows) ([]*StoredMessage, error) {
	var messages []*StoredMessage
	for rows.Next() {
		msg := &StoredMessage{}
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.ToolName, &msg.ToolParameters, &msg.ExecutionResult, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

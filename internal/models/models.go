package models

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the minimal querying interface satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries provides typed access to the database.
type Queries struct {
	db DBTX
}

// New creates a Queries instance over a database or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Conversation is a row in the conversations table.
type Conversation struct {
	ID             string
	Type           string
	PairKey        sql.NullString
	LastSeq        int64
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// ConversationEvent is a row in the append-only conversation event log.
type ConversationEvent struct {
	ConversationID string
	Seq            int64
	Kind           string
	ActorID        string
	ClientToken    string
	Payload        string
	AppliedAt      time.Time
}

// Message is a materialized message row, derived from a message event.
type Message struct {
	ID             string
	ConversationID string
	Seq            int64
	AuthorID       string
	Content        string
	ContentType    string
	CreatedAt      time.Time
}

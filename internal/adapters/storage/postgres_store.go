package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// PostgresStore implements ports.EvidenceStore for PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL evidence store
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One insert per inbound message; a small pool is plenty
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an already opened database handle
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// InitSchema creates the evidence table if it doesn't exist
// In production, use proper migration tools
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	schema := `
	-- ============================================================================
	-- EVIDENCE_MESSAGES TABLE
	-- ============================================================================
	-- Raw copy of every message accepted by the gateway, written before analysis.
	-- The verdict is deliberately absent: it can be recomputed from raw + catalogue.
	--
	-- rcpt_to as JSONB string array: one message can have many envelope recipients
	-- and they are only ever read back together with the message.
	CREATE TABLE IF NOT EXISTS evidence_messages (
		id UUID PRIMARY KEY,
		mail_from VARCHAR(254) NOT NULL,
		rcpt_to JSONB NOT NULL,
		remote_addr VARCHAR(64),
		subject TEXT,
		raw BYTEA NOT NULL,
		size_bytes INTEGER NOT NULL,
		received_at TIMESTAMP NOT NULL,
		stored_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	-- Investigation: "everything received in this time window"
	CREATE INDEX IF NOT EXISTS idx_evidence_received_at ON evidence_messages(received_at DESC);
	-- Investigation: "everything this sender sent us"
	CREATE INDEX IF NOT EXISTS idx_evidence_mail_from ON evidence_messages(mail_from);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveEvidence inserts a raw message. Saving the same envelope twice is a no-op.
func (s *PostgresStore) SaveEvidence(ctx context.Context, evidence *domain.Evidence) error {
	rcptJSON, err := json.Marshal(evidence.Envelope.RcptTo)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	query := `
		INSERT INTO evidence_messages (
			id, mail_from, rcpt_to, remote_addr, subject, raw, size_bytes, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	env := evidence.Envelope
	_, err = s.db.ExecContext(ctx, query,
		env.ID, env.MailFrom, rcptJSON, env.RemoteAddr,
		evidence.Subject, evidence.Raw, len(evidence.Raw), env.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert evidence %s: %w", env.ID, err)
	}
	return nil
}

// GetEvidence retrieves an archived message by envelope ID
func (s *PostgresStore) GetEvidence(ctx context.Context, id uuid.UUID) (*domain.Evidence, error) {
	query := `
		SELECT id, mail_from, rcpt_to, remote_addr, subject, raw, received_at
		FROM evidence_messages
		WHERE id = $1
	`
	evidence := &domain.Evidence{}
	var (
		rcptJSON   []byte
		remoteAddr sql.NullString
		subject    sql.NullString
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&evidence.Envelope.ID, &evidence.Envelope.MailFrom, &rcptJSON, &remoteAddr,
		&subject, &evidence.Raw, &evidence.Envelope.ReceivedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(rcptJSON, &evidence.Envelope.RcptTo); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
	}
	evidence.Envelope.RemoteAddr = remoteAddr.String
	evidence.Subject = subject.String

	return evidence, nil
}

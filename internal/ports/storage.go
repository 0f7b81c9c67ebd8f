package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// EvidenceStore defines the contract for archiving raw inbound messages
//
// Only the message as received is stored, together with its envelope.
// Verdicts are recomputed on demand and never persisted.
type EvidenceStore interface {
	SaveEvidence(ctx context.Context, evidence *domain.Evidence) error

	// GetEvidence returns nil, nil when no evidence exists for id
	GetEvidence(ctx context.Context, id uuid.UUID) (*domain.Evidence, error)

	// Lifecycle
	Close() error
}

package ports

import (
	"context"
	"time"

	"github.com/stoik/persuasion-gateway/internal/domain"
)

// Metrics records gateway activity
type Metrics interface {
	// RecordMessage is called once per inbound message after annotation
	RecordMessage(ctx context.Context, verdict domain.Verdict, elapsed time.Duration)

	RecordRelayFailure(ctx context.Context)
}

package ports

import (
	"context"
)

// Relay defines the contract for handing an annotated message to the
// downstream mail transport
type Relay interface {
	// Deliver sends msg to every recipient in to, using from as the
	// envelope sender
	Deliver(ctx context.Context, from string, to []string, msg []byte) error
}

package sweeper

import (
	"context"
)

// Sweeper is a long-running background task that drains work in periodic batches
type Sweeper interface {
	// Start begins the sweeper's main loop
	// Blocks until the context is canceled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the sweeper
	// In-flight work completes before it returns
	Stop(ctx context.Context) error

	// Name returns the sweeper's name for logging and identification
	Name() string
}

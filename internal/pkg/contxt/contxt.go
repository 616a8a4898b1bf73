package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext returns a background context bounded by timeout. When
// CONTEXT_TEST is set the deadline is dropped.
func NewContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

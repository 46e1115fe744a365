package directory

import (
	"context"
	"fmt"
	"time"

	"taskquest/internal/models"
)

// ErrUnavailable wraps persistent-store failures. Directory writes are
// best-effort from the broadcast path: callers log and carry on.
var ErrUnavailable = fmt.Errorf("user directory unavailable")

// UserDirectory is the persistent mirror of transient presence state.
// SetOnline is write-through only; ListOnline exists for cold-start
// reconciliation and must never be called from the hot broadcast path.
type UserDirectory interface {
	SetOnline(ctx context.Context, userID string, online bool, at time.Time) error
	ListOnline(ctx context.Context) ([]models.UserSummary, error)
}

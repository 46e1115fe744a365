package directory

import (
	"context"
	"errors"
	"time"

	"taskquest/internal/models"
)

// Tee fans presence writes out to several directories (postgres for
// durability, redis for cheap reads by other services). Reads come
// from the first directory; it is the source of truth.
type Tee struct {
	primary UserDirectory
	mirrors []UserDirectory
}

func NewTee(primary UserDirectory, mirrors ...UserDirectory) *Tee {
	return &Tee{primary: primary, mirrors: mirrors}
}

func (t *Tee) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	err := t.primary.SetOnline(ctx, userID, online, at)
	for _, m := range t.mirrors {
		err = errors.Join(err, m.SetOnline(ctx, userID, online, at))
	}
	return err
}

func (t *Tee) ListOnline(ctx context.Context) ([]models.UserSummary, error) {
	return t.primary.ListOnline(ctx)
}

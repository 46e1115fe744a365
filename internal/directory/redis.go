package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taskquest/internal/models"
)

const (
	onlineUsersKey = "online_users"
	statusTTL      = 24 * time.Hour
)

// Redis keeps the presence mirror other services read cheaply: a set of
// online user ids plus a status hash per user.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	pipe := r.client.Pipeline()

	statusKey := fmt.Sprintf("user:%s:status", userID)
	status := "offline"
	if online {
		status = "online"
		pipe.SAdd(ctx, onlineUsersKey, userID)
	} else {
		pipe.SRem(ctx, onlineUsersKey, userID)
	}
	pipe.HSet(ctx, statusKey, map[string]any{
		"status":    status,
		"last_seen": at.Unix(),
	})
	pipe.Expire(ctx, statusKey, statusTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) ListOnline(ctx context.Context) ([]models.UserSummary, error) {
	ids, err := r.client.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	summaries := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, models.UserSummary{ID: id})
	}
	return summaries, nil
}

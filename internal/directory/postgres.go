package directory

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"taskquest/internal/models"
)

// Postgres mirrors presence into the users table owned by the CRUD
// service.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	updates := map[string]any{
		"is_online": online,
		"last_seen": at,
	}
	err := p.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Postgres) ListOnline(ctx context.Context) ([]models.UserSummary, error) {
	var users []models.User
	err := p.db.WithContext(ctx).
		Where("is_online = ?", true).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, models.UserSummary{
			ID:          u.ID,
			DisplayName: u.DisplayName,
			LastSeen:    u.LastSeen,
		})
	}
	return summaries, nil
}

// Package history keeps the recent-session history: a single Redis list
// capped at a fixed length, most recent first.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/posetrack/backend/internal/models"
)

const (
	// DefaultKey is the Redis key holding the history list.
	DefaultKey = "pose:history"
	// DefaultLimit is the maximum number of retained entries.
	DefaultLimit = 50
)

// Repository persists summaries to the capped history list.
type Repository struct {
	client *redis.Client
	key    string
	limit  int64
	logger *zap.Logger
}

// NewRepository creates a history repository. A non-positive limit falls
// back to DefaultLimit.
func NewRepository(client *redis.Client, key string, limit int, logger *zap.Logger) *Repository {
	if key == "" {
		key = DefaultKey
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{client: client, key: key, limit: int64(limit), logger: logger}
}

// Save prepends a summary and trims the list to the cap, evicting the
// oldest entries beyond it.
func (r *Repository) Save(ctx context.Context, sum models.Summary, savedAt time.Time) error {
	raw, err := json.Marshal(models.HistoryEntry{Summary: sum, SavedAt: savedAt})
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, raw)
	pipe.LTrim(ctx, r.key, 0, r.limit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push history: %w", err)
	}
	r.logger.Debug("history entry saved", zap.Time("saved_at", savedAt))
	return nil
}

// List returns retained entries, most recent first.
func (r *Repository) List(ctx context.Context) ([]models.HistoryEntry, error) {
	raws, err := r.client.LRange(ctx, r.key, 0, r.limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	entries := make([]models.HistoryEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			r.logger.Warn("skipping corrupt history entry", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Clear removes the whole history list.
func (r *Repository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

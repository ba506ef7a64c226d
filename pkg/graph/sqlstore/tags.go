package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnii-ai/brainmem/pkg/brain"
)

func (s *Store) UpsertTag(ctx context.Context, userID, name string, category brain.TagCategory, origin brain.Channel, at time.Time) (*brain.Tag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tag transaction: %w", err)
	}
	defer tx.Rollback()

	nameKey := strings.ToLower(name)

	var tag brain.Tag
	var lastUsed int64
	var channel, cat string

	query := s.rebind(s.forUpdate(`SELECT id, user_id, name, usage_count, last_used, channel_origin, category
		FROM tags WHERE user_id = ? AND name_key = ?`))

	err = tx.QueryRowContext(ctx, query, userID, nameKey).Scan(
		&tag.ID, &tag.UserID, &tag.Name, &tag.UsageCount, &lastUsed, &channel, &cat)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		tag = brain.Tag{
			ID:            uuid.NewString(),
			UserID:        userID,
			Name:          name,
			UsageCount:    1,
			LastUsed:      at,
			ChannelOrigin: origin,
			Category:      category,
		}

		insert := s.rebind(`INSERT INTO tags
			(id, user_id, name, name_key, usage_count, last_used, channel_origin, category)
			VALUES (?, ?, ?, ?, 1, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, tag.ID, userID, name, nameKey,
			nanos(at), string(origin), string(category)); err != nil {
			return nil, fmt.Errorf("failed to insert tag: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to load tag: %w", err)

	default:
		tag.UsageCount++
		tag.LastUsed = at
		tag.ChannelOrigin = brain.Channel(channel)
		tag.Category = brain.TagCategory(cat)

		update := s.rebind(`UPDATE tags SET usage_count = ?, last_used = ? WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, update, tag.UsageCount, nanos(at), tag.ID); err != nil {
			return nil, fmt.Errorf("failed to update tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tag: %w", err)
	}

	return &tag, nil
}

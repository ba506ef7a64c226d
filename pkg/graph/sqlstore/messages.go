package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/graph"
)

const messageColumns = `id, user_id, content, ts, channel, source_identifier,
	intent, sentiment, importance, last_modified, modification_reason,
	metadata, action_context`

func (s *Store) PutMessage(ctx context.Context, msg *brain.ChatMessage) error {
	if msg == nil {
		return errors.New("cannot store nil message")
	}

	metadata, actionCtx, err := encodeMessagePayloads(msg)
	if err != nil {
		return err
	}

	query := s.rebind(`INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.Content, nanos(msg.Timestamp),
		string(msg.Channel), msg.SourceIdentifier, msg.Intent, msg.Sentiment,
		msg.ImportanceScore, nanos(msg.LastModified),
		string(msg.ModificationReason), metadata, actionCtx)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (*brain.ChatMessage, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound{Kind: "message", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

func (s *Store) UpdateMessage(ctx context.Context, msg *brain.ChatMessage) error {
	metadata, actionCtx, err := encodeMessagePayloads(msg)
	if err != nil {
		return err
	}

	query := s.rebind(`UPDATE messages SET content = ?, intent = ?,
		sentiment = ?, importance = ?, last_modified = ?,
		modification_reason = ?, metadata = ?, action_context = ?
		WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query,
		msg.Content, msg.Intent, msg.Sentiment, msg.ImportanceScore,
		nanos(msg.LastModified), string(msg.ModificationReason),
		metadata, actionCtx, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return graph.ErrNotFound{Kind: "message", ID: msg.ID}
	}

	return nil
}

func (s *Store) MessagesByUser(ctx context.Context, userID string, from, to time.Time) ([]brain.ChatMessage, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE user_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC`)

	return s.queryMessages(ctx, query, userID, nanos(from), nanos(to))
}

func (s *Store) RecentlyModified(ctx context.Context, userID string, since time.Time) ([]brain.ChatMessage, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages
		WHERE user_id = ? AND last_modified >= ?
		ORDER BY last_modified DESC`)

	return s.queryMessages(ctx, query, userID, nanos(since))
}

func (s *Store) MessagesAwaitingConsolidation(ctx context.Context, olderThan time.Time, limit int) ([]brain.ChatMessage, error) {
	query := s.rebind(`SELECT ` + messageColumns + ` FROM messages m
		WHERE m.ts < ?
		AND NOT EXISTS (
			SELECT 1 FROM has_memory h
			WHERE h.message_id = m.id AND h.memory_type = ?
		)
		ORDER BY m.ts ASC
		LIMIT ?`)

	return s.queryMessages(ctx, query, nanos(olderThan), string(brain.MemoryEpisodic), limit)
}

func (s *Store) queryMessages(ctx context.Context, query string, args ...any) ([]brain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []brain.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *msg)
	}

	return out, rows.Err()
}

func encodeMessagePayloads(msg *brain.ChatMessage) (string, sql.NullString, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", sql.NullString{}, fmt.Errorf("failed to marshal channel metadata: %w", err)
	}

	var actionCtx sql.NullString
	if msg.ActionContext != nil {
		encoded, err := json.Marshal(msg.ActionContext)
		if err != nil {
			return "", sql.NullString{}, fmt.Errorf("failed to marshal action context: %w", err)
		}
		actionCtx = sql.NullString{String: string(encoded), Valid: true}
	}

	return string(metadata), actionCtx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*brain.ChatMessage, error) {
	var (
		msg       brain.ChatMessage
		ts        int64
		modified  int64
		channel   string
		reason    string
		metadata  string
		actionCtx sql.NullString
	)

	err := row.Scan(&msg.ID, &msg.UserID, &msg.Content, &ts, &channel,
		&msg.SourceIdentifier, &msg.Intent, &msg.Sentiment,
		&msg.ImportanceScore, &modified, &reason, &metadata, &actionCtx)
	if err != nil {
		return nil, err
	}

	msg.Timestamp = fromNanos(ts)
	msg.LastModified = fromNanos(modified)
	msg.Channel = brain.Channel(channel)
	msg.ModificationReason = brain.ModificationReason(reason)

	if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel metadata: %w", err)
	}

	if actionCtx.Valid {
		msg.ActionContext = &brain.ExternalActionContext{}
		if err := json.Unmarshal([]byte(actionCtx.String), msg.ActionContext); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action context: %w", err)
		}
	}

	return &msg, nil
}

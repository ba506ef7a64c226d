package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/omnii-ai/brainmem/pkg/brain"
	"github.com/omnii-ai/brainmem/pkg/graph"
)

const memoryColumns = `id, user_id, ts, memory_type, status, consolidation_date,
	episode_type, channel, source_identifier, origin_message_id, summary, importance`

func (s *Store) PutMemory(ctx context.Context, mem *brain.Memory) error {
	if mem == nil {
		return errors.New("cannot store nil memory")
	}

	query := s.rebind(`INSERT INTO memories (` + memoryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		mem.ID, mem.UserID, nanos(mem.Timestamp), string(mem.Type),
		string(mem.Status), nullNanos(mem.ConsolidationDate),
		string(mem.EpisodeType), string(mem.Channel), mem.SourceIdentifier,
		mem.OriginMessageID, mem.Summary, mem.ImportanceScore)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	return nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*brain.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories WHERE id = ?`)

	mem, err := scanMemory(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound{Kind: "memory", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	return mem, nil
}

func (s *Store) UpdateMemory(ctx context.Context, mem *brain.Memory) error {
	// Status deliberately excluded: lifecycle moves only via TransitionMemory.
	query := s.rebind(`UPDATE memories SET summary = ?, importance = ?,
		episode_type = ? WHERE id = ?`)

	res, err := s.db.ExecContext(ctx, query, mem.Summary, mem.ImportanceScore,
		string(mem.EpisodeType), mem.ID)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return graph.ErrNotFound{Kind: "memory", ID: mem.ID}
	}

	return nil
}

func (s *Store) TransitionMemory(ctx context.Context, id string, to brain.ConsolidationStatus, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback()

	var current string
	query := s.rebind(s.forUpdate(`SELECT status FROM memories WHERE id = ?`))
	err = tx.QueryRowContext(ctx, query, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return graph.ErrNotFound{Kind: "memory", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to load memory status: %w", err)
	}

	from := brain.ConsolidationStatus(current)
	if from == to {
		return tx.Commit()
	}

	if !from.CanAdvanceTo(to) {
		return graph.ErrInvalidTransition{MemoryID: id, From: from, To: to}
	}

	var date any
	if to == brain.StatusConsolidated {
		date = nanos(at)
	}

	update := s.rebind(`UPDATE memories SET status = ?,
		consolidation_date = COALESCE(?, consolidation_date) WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, update, string(to), date, id); err != nil {
		return fmt.Errorf("failed to update memory status: %w", err)
	}

	return tx.Commit()
}

func (s *Store) EpisodicMemories(ctx context.Context, userID string, since time.Time) ([]brain.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories
		WHERE user_id = ? AND memory_type = ? AND status IN (?, ?) AND ts >= ?
		ORDER BY ts DESC`)

	return s.queryMemories(ctx, query, userID, string(brain.MemoryEpisodic),
		string(brain.StatusConsolidating), string(brain.StatusConsolidated),
		nanos(since))
}

func (s *Store) MemoriesConsolidatedBefore(ctx context.Context, cutoff time.Time) ([]brain.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories
		WHERE status = ? AND consolidation_date IS NOT NULL AND consolidation_date < ?
		ORDER BY consolidation_date ASC`)

	return s.queryMemories(ctx, query, string(brain.StatusConsolidated), nanos(cutoff))
}

func (s *Store) MemoryByOrigin(ctx context.Context, originMessageID string) (*brain.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories
		WHERE origin_message_id = ? AND memory_type = ?
		ORDER BY ts DESC LIMIT 1`)

	mem, err := scanMemory(s.db.QueryRowContext(ctx, query, originMessageID,
		string(brain.MemoryEpisodic)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, graph.ErrNotFound{Kind: "memory", ID: originMessageID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory by origin: %w", err)
	}

	return mem, nil
}

func (s *Store) LinkHasMemory(ctx context.Context, edge brain.HasMemory) error {
	query := s.rebind(`INSERT INTO has_memory (message_id, memory_type, memory_id, strength)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, memory_type) DO UPDATE SET
			memory_id = excluded.memory_id,
			strength = excluded.strength`)

	_, err := s.db.ExecContext(ctx, query, edge.MessageID, string(edge.Type),
		edge.MemoryID, edge.ConsolidationStrength)
	if err != nil {
		return fmt.Errorf("failed to upsert has_memory edge: %w", err)
	}

	return nil
}

func (s *Store) ConsolidationStrengths(ctx context.Context, memoryIDs []string) (map[string][]float64, error) {
	if len(memoryIDs) == 0 {
		return map[string][]float64{}, nil
	}

	query := s.rebind(`SELECT memory_id, strength FROM has_memory
		WHERE memory_id IN (` + placeholders(len(memoryIDs)) + `)`)

	rows, err := s.db.QueryContext(ctx, query, toArgs(memoryIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consolidation strengths: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var id string
		var strength float64
		if err := rows.Scan(&id, &strength); err != nil {
			return nil, fmt.Errorf("failed to scan consolidation strength: %w", err)
		}
		out[id] = append(out[id], strength)
	}

	return out, rows.Err()
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]brain.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []brain.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, *mem)
	}

	return out, rows.Err()
}

func scanMemory(row rowScanner) (*brain.Memory, error) {
	var (
		mem         brain.Memory
		ts          int64
		memType     string
		status      string
		consolidate sql.NullInt64
		episode     string
		channel     string
	)

	err := row.Scan(&mem.ID, &mem.UserID, &ts, &memType, &status,
		&consolidate, &episode, &channel, &mem.SourceIdentifier,
		&mem.OriginMessageID, &mem.Summary, &mem.ImportanceScore)
	if err != nil {
		return nil, err
	}

	mem.Timestamp = fromNanos(ts)
	mem.Type = brain.MemoryType(memType)
	mem.Status = brain.ConsolidationStatus(status)
	mem.EpisodeType = brain.EpisodeType(episode)
	mem.Channel = brain.Channel(channel)

	if consolidate.Valid {
		t := fromNanos(consolidate.Int64)
		mem.ConsolidationDate = &t
	}

	return &mem, nil
}

func nullNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return nanos(*t)
}

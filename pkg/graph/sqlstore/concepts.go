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
	"github.com/omnii-ai/brainmem/pkg/graph"
)

const conceptColumns = `id, user_id, name, activation, mention_count, last_mentioned, semantic_weight`

// RecordMention runs the whole concept/mention read-modify-write inside one
// transaction so concurrent mentions of the same concept serialize instead of
// losing updates.
func (s *Store) RecordMention(ctx context.Context, userID, conceptName, messageID string, confidence float64, at time.Time) (*brain.Concept, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin mention transaction: %w", err)
	}
	defer tx.Rollback()

	nameKey := strings.ToLower(conceptName)
	confidence = brain.ClampUnit(confidence)

	var concept brain.Concept
	var lastMentioned int64

	query := s.rebind(s.forUpdate(`SELECT ` + conceptColumns + ` FROM concepts
		WHERE user_id = ? AND name_key = ?`))

	err = tx.QueryRowContext(ctx, query, userID, nameKey).Scan(
		&concept.ID, &concept.UserID, &concept.Name,
		&concept.ActivationStrength, &concept.MentionCount,
		&lastMentioned, &concept.SemanticWeight)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		concept = brain.Concept{
			ID:                 uuid.NewString(),
			UserID:             userID,
			Name:               conceptName,
			ActivationStrength: confidence,
			SemanticWeight:     confidence,
		}

		insert := s.rebind(`INSERT INTO concepts
			(id, user_id, name, name_key, activation, mention_count, last_mentioned, semantic_weight)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert, concept.ID, userID, conceptName,
			nameKey, confidence, nanos(at), confidence); err != nil {
			return nil, fmt.Errorf("failed to insert concept: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to load concept: %w", err)

	default:
		concept.ActivationStrength = brain.RecombineActivation(concept.ActivationStrength, confidence)
	}

	concept.LastMentioned = at

	// One MENTIONS edge per (message, concept): update strength in place on
	// conflict instead of duplicating the edge.
	upsertEdge := s.rebind(`INSERT INTO mentions (message_id, concept_id, strength)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id, concept_id) DO UPDATE SET strength = excluded.strength`)
	if _, err := tx.ExecContext(ctx, upsertEdge, messageID, concept.ID, confidence); err != nil {
		return nil, fmt.Errorf("failed to upsert mention edge: %w", err)
	}

	// The mention count invariant is "count == number of MENTIONS edges", so
	// derive it from the edges rather than trusting insert-vs-update
	// detection, which differs across backends.
	var edges int
	countEdges := s.rebind(`SELECT COUNT(*) FROM mentions WHERE concept_id = ?`)
	if err := tx.QueryRowContext(ctx, countEdges, concept.ID).Scan(&edges); err != nil {
		return nil, fmt.Errorf("failed to count mention edges: %w", err)
	}
	concept.MentionCount = edges

	update := s.rebind(`UPDATE concepts SET activation = ?, mention_count = ?, last_mentioned = ?
		WHERE id = ?`)
	if _, err := tx.ExecContext(ctx, update, concept.ActivationStrength,
		concept.MentionCount, nanos(at), concept.ID); err != nil {
		return nil, fmt.Errorf("failed to update concept: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit mention: %w", err)
	}

	return &concept, nil
}

func (s *Store) ConceptsByUser(ctx context.Context, userID string) ([]brain.Concept, error) {
	query := s.rebind(`SELECT ` + conceptColumns + ` FROM concepts
		WHERE user_id = ? ORDER BY name`)

	return s.queryConcepts(ctx, query, userID)
}

func (s *Store) ConceptsByIDs(ctx context.Context, ids []string) ([]brain.Concept, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := s.rebind(`SELECT ` + conceptColumns + ` FROM concepts
		WHERE id IN (` + placeholders(len(ids)) + `)`)

	return s.queryConcepts(ctx, query, toArgs(ids)...)
}

func (s *Store) MentionedConcepts(ctx context.Context, messageIDs []string) ([]graph.MentionedConcept, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	query := s.rebind(`SELECT c.id, c.user_id, c.name, c.activation,
		c.mention_count, c.last_mentioned, c.semantic_weight,
		m.message_id, m.strength
		FROM mentions m
		JOIN concepts c ON c.id = m.concept_id
		WHERE m.message_id IN (` + placeholders(len(messageIDs)) + `)
		ORDER BY m.message_id, c.name`)

	rows, err := s.db.QueryContext(ctx, query, toArgs(messageIDs)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mentioned concepts: %w", err)
	}
	defer rows.Close()

	var out []graph.MentionedConcept
	for rows.Next() {
		var mc graph.MentionedConcept
		var lastMentioned int64
		if err := rows.Scan(&mc.ID, &mc.UserID, &mc.Name,
			&mc.ActivationStrength, &mc.MentionCount, &lastMentioned,
			&mc.SemanticWeight, &mc.MessageID, &mc.Strength); err != nil {
			return nil, fmt.Errorf("failed to scan mentioned concept: %w", err)
		}
		mc.LastMentioned = fromNanos(lastMentioned)
		out = append(out, mc)
	}

	return out, rows.Err()
}

func (s *Store) DecayConcepts(ctx context.Context, userID string, exceptIDs []string, factor float64) (int, error) {
	query := `UPDATE concepts SET activation = activation * ? WHERE user_id = ?`
	args := []any{factor, userID}

	if len(exceptIDs) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(exceptIDs)) + `)`
		args = append(args, toArgs(exceptIDs)...)
	}

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to decay concepts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read decay result: %w", err)
	}

	return int(affected), nil
}

func (s *Store) UpsertAssociation(ctx context.Context, assoc brain.Association) error {
	if assoc.FromConceptID == assoc.ToConceptID {
		return graph.ErrSelfAssociation
	}

	from, to := assoc.FromConceptID, assoc.ToConceptID
	if from > to {
		from, to = to, from
	}

	query := s.rebind(`INSERT INTO associations (from_concept, to_concept, strength, relationship_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_concept, to_concept) DO UPDATE SET
			strength = excluded.strength,
			relationship_type = excluded.relationship_type`)

	_, err := s.db.ExecContext(ctx, query, from, to,
		brain.ClampUnit(assoc.Strength), assoc.RelationshipType)
	if err != nil {
		return fmt.Errorf("failed to upsert association: %w", err)
	}

	return nil
}

func (s *Store) Associations(ctx context.Context, conceptIDs []string) ([]brain.Association, error) {
	if len(conceptIDs) == 0 {
		return nil, nil
	}

	ph := placeholders(len(conceptIDs))
	query := s.rebind(`SELECT from_concept, to_concept, strength, relationship_type
		FROM associations
		WHERE from_concept IN (` + ph + `) OR to_concept IN (` + ph + `)
		ORDER BY from_concept, to_concept`)

	args := append(toArgs(conceptIDs), toArgs(conceptIDs)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()

	var out []brain.Association
	for rows.Next() {
		var a brain.Association
		if err := rows.Scan(&a.FromConceptID, &a.ToConceptID, &a.Strength, &a.RelationshipType); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

func (s *Store) queryConcepts(ctx context.Context, query string, args ...any) ([]brain.Concept, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close()

	var out []brain.Concept
	for rows.Next() {
		var c brain.Concept
		var lastMentioned int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ActivationStrength,
			&c.MentionCount, &lastMentioned, &c.SemanticWeight); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		c.LastMentioned = fromNanos(lastMentioned)
		out = append(out, c)
	}

	return out, rows.Err()
}

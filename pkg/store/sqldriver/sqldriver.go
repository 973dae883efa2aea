// Package sqldriver implements store.Store on top of database/sql. It is
// dialect-agnostic and embedded by the sqlite and postgres drivers, which
// own schema creation and connection setup.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/memd/pkg/memory"
	"github.com/papercomputeco/memd/pkg/store"
)

// Dialect selects placeholder style for the underlying database.
type Dialect int

const (
	// SQLite uses ? placeholders.
	SQLite Dialect = iota
	// Postgres uses $1..$n placeholders.
	Postgres
)

// Driver provides store operations using a database/sql connection.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

// rebind rewrites ? placeholders into the dialect's native style.
func (d *Driver) rebind(query string) string {
	if d.Dialect == SQLite {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// GetMemory retrieves a memory by id.
func (d *Driver) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := d.DB.QueryRowContext(ctx, d.rebind(`
		SELECT id, scope_json, fact, topic, confidence, embedding_ref,
		       revision_count, superseded, created_at, updated_at, expires_at
		FROM memories WHERE id = ?`), id)

	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError{Kind: "memory", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory %s: %w", id, err)
	}
	return m, nil
}

// ListMemories returns all memories in a scope ordered by id.
func (d *Driver) ListMemories(ctx context.Context, scopeKey string, includeSuperseded bool) ([]*memory.Memory, error) {
	query := `
		SELECT id, scope_json, fact, topic, confidence, embedding_ref,
		       revision_count, superseded, created_at, updated_at, expires_at
		FROM memories WHERE scope_key = ?`
	if !includeSuperseded {
		query += ` AND superseded = ?`
	}
	query += ` ORDER BY id`

	args := []any{scopeKey}
	if !includeSuperseded {
		args = append(args, false)
	}

	rows, err := d.DB.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing memories for scope %s: %w", scopeKey, err)
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning memory row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// History returns a memory's revisions oldest first.
func (d *Driver) History(ctx context.Context, memoryID string) ([]*memory.Revision, error) {
	rows, err := d.DB.QueryContext(ctx, d.rebind(`
		SELECT memory_id, revision_number, action, fact, confidence,
		       source_job_id, candidate_ids, created_at
		FROM memory_revisions WHERE memory_id = ?
		ORDER BY revision_number`), memoryID)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", memoryID, err)
	}
	defer rows.Close()

	var out []*memory.Revision
	for rows.Next() {
		var (
			rev          memory.Revision
			action       string
			candidateIDs string
		)
		if err := rows.Scan(&rev.MemoryID, &rev.Number, &action, &rev.Fact,
			&rev.Confidence, &rev.SourceJobID, &candidateIDs, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision row: %w", err)
		}
		rev.Action = memory.RevisionAction(action)
		if err := json.Unmarshal([]byte(candidateIDs), &rev.CandidateIDs); err != nil {
			return nil, fmt.Errorf("decoding candidate ids for %s rev %d: %w", rev.MemoryID, rev.Number, err)
		}
		out = append(out, &rev)
	}
	return out, rows.Err()
}

// GetJob retrieves a job record by id.
func (d *Driver) GetJob(ctx context.Context, jobID string) (*memory.JobRecord, error) {
	var (
		rec    memory.JobRecord
		status string
	)
	err := d.DB.QueryRowContext(ctx, d.rebind(`
		SELECT id, scope_key, status, attempt_count,
		       memories_created, memories_updated, memories_superseded, error, updated_at
		FROM jobs WHERE id = ?`), jobID).
		Scan(&rec.ID, &rec.ScopeKey, &status, &rec.AttemptCount,
			&rec.Result.MemoriesCreated, &rec.Result.MemoriesUpdated,
			&rec.Result.MemoriesSuperseded, &rec.Result.Error, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFoundError{Kind: "job", ID: jobID}
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", jobID, err)
	}
	rec.Status = memory.JobStatus(status)
	rec.Result.JobID = rec.ID
	rec.Result.Status = rec.Status
	return &rec, nil
}

// Apply commits a ChangeSet in a single transaction. See store.Store for the
// idempotence and optimistic-check contract.
func (d *Driver) Apply(ctx context.Context, cs *store.ChangeSet) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Idempotence gate: a terminal job must not be applied twice.
	var status string
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT status FROM jobs WHERE id = ?`), cs.JobID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First application.
	case err != nil:
		return fmt.Errorf("checking job status: %w", err)
	case memory.JobStatus(status).Terminal():
		return store.AlreadyAppliedError{JobID: cs.JobID, Status: memory.JobStatus(status)}
	}

	for _, w := range cs.Writes {
		if err := d.applyWrite(ctx, tx, w); err != nil {
			return err
		}
	}

	if err := d.upsertJob(ctx, tx, cs.Job); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing changeset for job %s: %w", cs.JobID, err)
	}
	return nil
}

func (d *Driver) applyWrite(ctx context.Context, tx *sql.Tx, w *store.MemoryWrite) error {
	m := w.Memory

	// Optimistic check against the revision count observed at read time.
	var current int
	err := tx.QueryRowContext(ctx,
		d.rebind(`SELECT revision_count FROM memories WHERE id = ?`), m.ID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return fmt.Errorf("checking revision count for %s: %w", m.ID, err)
	}
	if current != w.ExpectedRevisions {
		return store.ConflictError{MemoryID: m.ID, Expected: w.ExpectedRevisions, Actual: current}
	}

	// The ledger numbers revisions contiguously from the observed count; a
	// gap here means corrupted input, not contention.
	for i, rev := range w.Revisions {
		if want := w.ExpectedRevisions + i + 1; rev.Number != want {
			return memory.Invariantf("memory %s revision %d out of sequence, want %d", m.ID, rev.Number, want)
		}
	}

	scopeJSON, err := json.Marshal(m.Scope.Map())
	if err != nil {
		return fmt.Errorf("encoding scope for %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx, d.rebind(`
		INSERT INTO memories (id, scope_key, scope_json, fact, topic, confidence,
		                      embedding_ref, revision_count, superseded,
		                      created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			fact = excluded.fact,
			topic = excluded.topic,
			confidence = excluded.confidence,
			embedding_ref = excluded.embedding_ref,
			revision_count = excluded.revision_count,
			superseded = excluded.superseded,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`),
		m.ID, m.Scope.Key(), string(scopeJSON), m.Fact, m.Topic, m.Confidence,
		m.EmbeddingRef, m.RevisionCount, m.Superseded,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(), nullableTime(m.ExpiresAt))
	if err != nil {
		return fmt.Errorf("upserting memory %s: %w", m.ID, err)
	}

	for _, rev := range w.Revisions {
		candidateIDs, err := json.Marshal(rev.CandidateIDs)
		if err != nil {
			return fmt.Errorf("encoding candidate ids: %w", err)
		}
		_, err = tx.ExecContext(ctx, d.rebind(`
			INSERT INTO memory_revisions (memory_id, revision_number, action, fact,
			                              confidence, source_job_id, candidate_ids, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			rev.MemoryID, rev.Number, string(rev.Action), rev.Fact,
			rev.Confidence, rev.SourceJobID, string(candidateIDs), rev.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("appending revision %d for %s: %w", rev.Number, rev.MemoryID, err)
		}
	}
	return nil
}

func (d *Driver) upsertJob(ctx context.Context, tx *sql.Tx, rec *memory.JobRecord) error {
	_, err := tx.ExecContext(ctx, d.rebind(`
		INSERT INTO jobs (id, scope_key, status, attempt_count,
		                  memories_created, memories_updated, memories_superseded,
		                  error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			attempt_count = excluded.attempt_count,
			memories_created = excluded.memories_created,
			memories_updated = excluded.memories_updated,
			memories_superseded = excluded.memories_superseded,
			error = excluded.error,
			updated_at = excluded.updated_at`),
		rec.ID, rec.ScopeKey, string(rec.Status), rec.AttemptCount,
		rec.Result.MemoriesCreated, rec.Result.MemoriesUpdated,
		rec.Result.MemoriesSuperseded, rec.Result.Error, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", rec.ID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error {
	return d.DB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(s scanner) (*memory.Memory, error) {
	var (
		m         memory.Memory
		scopeJSON string
		expires   sql.NullTime
	)
	if err := s.Scan(&m.ID, &scopeJSON, &m.Fact, &m.Topic, &m.Confidence,
		&m.EmbeddingRef, &m.RevisionCount, &m.Superseded,
		&m.CreatedAt, &m.UpdatedAt, &expires); err != nil {
		return nil, err
	}

	var kv map[string]string
	if err := json.Unmarshal([]byte(scopeJSON), &kv); err != nil {
		return nil, fmt.Errorf("decoding scope for %s: %w", m.ID, err)
	}
	m.Scope = memory.NewScope(kv)

	if expires.Valid {
		t := expires.Time
		m.ExpiresAt = &t
	}
	return &m, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

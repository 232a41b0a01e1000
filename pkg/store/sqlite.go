// Package store's SQLite backend: a durable, single-file implementation of
// Store for production deployments, grounded on the teacher's
// internal/controller/backend/sqlite package (modernc.org/sqlite, a pure-Go
// driver so the core never needs cgo, WAL pragmas, a small migration step
// run on open).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/forge/pkg/clock"
	"github.com/tombee/forge/pkg/ferrors"
	"github.com/tombee/forge/pkg/model"
	"github.com/tombee/forge/pkg/redact"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a database/sql-backed Store. Workflow run/step state is
// kept as a single JSON document per run — the run record's invariants
// (§3) are easier to keep consistent that way than as normalized rows, and
// nothing outside this package inspects the schema directly.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
	ids   clock.MonotonicIDs
}

// OpenSQLite opens (creating if necessary) a SQLite-backed store at path.
func OpenSQLite(path string, c clock.Clock) (*SQLiteStore, error) {
	if c == nil {
		c = clock.New()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writes; one connection avoids SQLITE_BUSY churn

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, clock: c}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("configuring pragma %q: %w", p, err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			parent_agent_id TEXT,
			workspace_id TEXT NOT NULL,
			harness TEXT NOT NULL,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			labels TEXT NOT NULL,
			ttl_seconds INTEGER,
			created_at TEXT NOT NULL,
			last_activity_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT,
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_events_agent ON agent_events(agent_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_events_kind ON agent_events(kind, id)`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			agent_id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			captured_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id TEXT PRIMARY KEY,
			document TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_step_logs (
			run_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			line TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_logs_run_step ON workflow_step_logs(run_id, step_id, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Agents() AgentStore             { return (*sqliteAgents)(s) }
func (s *SQLiteStore) Events() EventStore             { return (*sqliteEvents)(s) }
func (s *SQLiteStore) Transcripts() TranscriptStore   { return (*sqliteTranscripts)(s) }
func (s *SQLiteStore) WorkflowRuns() WorkflowRunStore { return (*sqliteRuns)(s) }

// --- agents ---

type sqliteAgents SQLiteStore

func (a *sqliteAgents) Create(ctx context.Context, record *model.PersistentAgent) error {
	s := (*SQLiteStore)(a)
	now := s.clock.Now()
	labels, err := json.Marshal(record.Labels)
	if err != nil {
		return fmt.Errorf("marshaling labels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO agents
		(id, parent_agent_id, workspace_id, harness, mode, state, labels, ttl_seconds, created_at, last_activity_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.ParentAgentID, record.WorkspaceID, record.Harness, record.Mode,
		string(record.State), string(labels), record.TTLSeconds,
		clock.RFC3339(now), clock.RFC3339(now), clock.RFC3339(now))
	if err != nil {
		return &ferrors.InvalidArgumentError{Field: "id", Message: "agent already exists or insert failed: " + err.Error()}
	}
	return nil
}

func (a *sqliteAgents) Get(ctx context.Context, id string) (*model.PersistentAgent, error) {
	s := (*SQLiteStore)(a)
	row := s.db.QueryRowContext(ctx, `SELECT id, parent_agent_id, workspace_id, harness, mode, state, labels,
		ttl_seconds, created_at, last_activity_at, updated_at FROM agents WHERE id = ?`, id)
	rec, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, &ferrors.NotFoundError{Resource: "agent", ID: id}
	}
	return rec, err
}

func (a *sqliteAgents) List(ctx context.Context, filter AgentFilter) ([]*model.PersistentAgent, error) {
	s := (*SQLiteStore)(a)
	query := `SELECT id, parent_agent_id, workspace_id, harness, mode, state, labels,
		ttl_seconds, created_at, last_activity_at, updated_at FROM agents WHERE 1=1`
	var args []interface{}
	if filter.WorkspaceID != "" {
		query += " AND workspace_id = ?"
		args = append(args, filter.WorkspaceID)
	}
	if len(filter.States) > 0 {
		query += " AND state IN (" + placeholders(len(filter.States)) + ")"
		for _, st := range filter.States {
			args = append(args, string(st))
		}
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []*model.PersistentAgent
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *sqliteAgents) UpdateState(ctx context.Context, id string, state model.AgentState) error {
	s := (*SQLiteStore)(a)
	now := clock.RFC3339(s.clock.Now())
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET state = ?, updated_at = ? WHERE id = ?`, string(state), now, id)
	return checkRowsAffected(res, err, "agent", id)
}

func (a *sqliteAgents) UpdateLabels(ctx context.Context, id string, labels map[string]string) error {
	s := (*SQLiteStore)(a)
	existing, err := a.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Labels == nil {
		existing.Labels = map[string]string{}
	}
	for k, v := range labels {
		existing.Labels[k] = v
	}
	merged, err := json.Marshal(existing.Labels)
	if err != nil {
		return fmt.Errorf("marshaling labels: %w", err)
	}
	now := clock.RFC3339(s.clock.Now())
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET labels = ?, updated_at = ? WHERE id = ?`, string(merged), now, id)
	return checkRowsAffected(res, err, "agent", id)
}

func (a *sqliteAgents) TouchActivity(ctx context.Context, id string) error {
	s := (*SQLiteStore)(a)
	now := clock.RFC3339(s.clock.Now())
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET last_activity_at = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return checkRowsAffected(res, err, "agent", id)
}

func (a *sqliteAgents) Delete(ctx context.Context, id string) error {
	s := (*SQLiteStore)(a)
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	return checkRowsAffected(res, err, "agent", id)
}

func checkRowsAffected(res sql.Result, err error, resource, id string) error {
	if err != nil {
		return fmt.Errorf("updating %s: %w", resource, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return &ferrors.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*model.PersistentAgent, error) {
	var rec model.PersistentAgent
	var parentID, labelsJSON sql.NullString
	var ttl sql.NullInt64
	var createdAt, lastActivityAt, updatedAt string
	var state string
	if err := row.Scan(&rec.ID, &parentID, &rec.WorkspaceID, &rec.Harness, &rec.Mode, &state, &labelsJSON,
		&ttl, &createdAt, &lastActivityAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.State = model.AgentState(state)
	rec.ParentAgentID = parentID.String
	if ttl.Valid {
		rec.TTLSeconds = &ttl.Int64
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &rec.Labels); err != nil {
			return nil, fmt.Errorf("unmarshaling labels: %w", err)
		}
	}
	var err error
	if rec.CreatedAt, err = clock.ParseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if rec.LastActivityAt, err = clock.ParseRFC3339(lastActivityAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = clock.ParseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// --- events ---

type sqliteEvents SQLiteStore

func (e *sqliteEvents) Append(ctx context.Context, event *model.AgentEvent) (*model.AgentEvent, error) {
	s := (*SQLiteStore)(e)
	now := s.clock.Now()
	outcome := redact.Text(event.Outcome)
	detail := redact.Detail(event.Detail)

	res, err := s.db.ExecContext(ctx, `INSERT INTO agent_events (agent_id, kind, outcome, detail, timestamp)
		VALUES (?, ?, ?, ?, ?)`, nullableString(event.AgentID), event.Kind, outcome, detail, clock.RFC3339(now))
	if err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted event id: %w", err)
	}
	return &model.AgentEvent{ID: id, AgentID: event.AgentID, Kind: event.Kind, Outcome: outcome, Detail: detail, Timestamp: now}, nil
}

func (e *sqliteEvents) ListByAgent(ctx context.Context, agentID string, limit int) ([]*model.AgentEvent, error) {
	s := (*SQLiteStore)(e)
	query := `SELECT id, agent_id, kind, outcome, detail, timestamp FROM agent_events WHERE agent_id = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return queryEvents(ctx, s.db, query, agentID)
}

func (e *sqliteEvents) Query(ctx context.Context, kind string, limit int) ([]*model.AgentEvent, error) {
	s := (*SQLiteStore)(e)
	if kind == "" {
		query := `SELECT id, agent_id, kind, outcome, detail, timestamp FROM agent_events ORDER BY id DESC`
		if limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", limit)
		}
		return queryEvents(ctx, s.db, query)
	}
	query := `SELECT id, agent_id, kind, outcome, detail, timestamp FROM agent_events WHERE kind = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return queryEvents(ctx, s.db, query, kind)
}

func queryEvents(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]*model.AgentEvent, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []*model.AgentEvent
	for rows.Next() {
		var ev model.AgentEvent
		var agentID, detail sql.NullString
		var ts string
		if err := rows.Scan(&ev.ID, &agentID, &ev.Kind, &ev.Outcome, &detail, &ts); err != nil {
			return nil, err
		}
		ev.AgentID = agentID.String
		ev.Detail = detail.String
		if ev.Timestamp, err = clock.ParseRFC3339(ts); err != nil {
			return nil, err
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// --- transcripts ---

type sqliteTranscripts SQLiteStore

func (t *sqliteTranscripts) Put(ctx context.Context, transcript *model.Transcript) error {
	s := (*SQLiteStore)(t)
	_, err := s.db.ExecContext(ctx, `INSERT INTO transcripts (agent_id, content, content_hash, captured_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET content=excluded.content, content_hash=excluded.content_hash, captured_at=excluded.captured_at`,
		transcript.AgentID, transcript.Content, transcript.ContentHash, clock.RFC3339(transcript.CapturedAt))
	if err != nil {
		return fmt.Errorf("storing transcript: %w", err)
	}
	return nil
}

func (t *sqliteTranscripts) LatestByAgent(ctx context.Context, agentID string) (*model.Transcript, error) {
	s := (*SQLiteStore)(t)
	row := s.db.QueryRowContext(ctx, `SELECT agent_id, content, content_hash, captured_at FROM transcripts WHERE agent_id = ?`, agentID)
	var tr model.Transcript
	var capturedAt string
	if err := row.Scan(&tr.AgentID, &tr.Content, &tr.ContentHash, &capturedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ferrors.NotFoundError{Resource: "transcript", ID: agentID}
		}
		return nil, err
	}
	var err error
	if tr.CapturedAt, err = clock.ParseRFC3339(capturedAt); err != nil {
		return nil, err
	}
	return &tr, nil
}

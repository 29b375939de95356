// Copyright (C) 2025 Yggdrasil Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger persists the knowledge graph: nodes with their lifecycle
// state machine and append-only audit trail, dependency edges, checkpoints,
// alerts, and deliberation records.
//
// All mutations on the same node are serialized through a per-node lock and
// run inside a transaction; audit entries are strictly ordered by append
// time and never rewritten.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// Ledger is the persistent knowledge store.
type Ledger struct {
	db *sql.DB

	// nodeLocks serializes writers per node id. The map itself is guarded
	// by mu; each node's mutex is held for the duration of one mutation.
	mu        sync.Mutex
	nodeLocks map[string]*sync.Mutex

	clock func() time.Time
}

// Open opens (or creates) the ledger database at the given path and applies
// the schema. Use ":memory:" for tests.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	// modernc sqlite serializes at the connection level; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	l := &Ledger{
		db:        db,
		nodeLocks: make(map[string]*sync.Mutex),
		clock:     time.Now,
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return l, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS knowledge_nodes (
			id TEXT PRIMARY KEY,
			statement TEXT NOT NULL,
			domain TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			branch TEXT NOT NULL,
			state TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			velocity REAL NOT NULL DEFAULT 0,
			priority_queue TEXT NOT NULL,
			last_scan TEXT,
			next_scan TEXT,
			idle_cycles INTEGER NOT NULL DEFAULT 0,
			shapley TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			last_transition_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_queue_scan
			ON knowledge_nodes(priority_queue, next_scan);`,
		`CREATE TABLE IF NOT EXISTS audit_entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			node_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			action TEXT NOT NULL,
			from_state TEXT NOT NULL DEFAULT '',
			to_state TEXT NOT NULL DEFAULT '',
			audit_trigger TEXT NOT NULL DEFAULT '',
			agent TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			confidence_delta INTEGER,
			vote_record TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_node ON audit_entries(node_id, seq);`,
		`CREATE TABLE IF NOT EXISTS knowledge_dependencies (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relation TEXT NOT NULL,
			strength REAL NOT NULL,
			PRIMARY KEY (source_id, target_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_deps_source ON knowledge_dependencies(source_id);`,
		`CREATE TABLE IF NOT EXISTS sources (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			identifier TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			authors TEXT NOT NULL DEFAULT '[]',
			trust_score INTEGER NOT NULL,
			retrieved_at TEXT NOT NULL,
			UNIQUE (type, identifier)
		);`,
		`CREATE TABLE IF NOT EXISTS node_sources (
			node_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			PRIMARY KEY (node_id, source_id)
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			label TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			state_hash TEXT NOT NULL,
			member_node_ids TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoint_snapshots (
			checkpoint_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			branch TEXT NOT NULL,
			confidence INTEGER NOT NULL,
			velocity REAL NOT NULL,
			priority_queue TEXT NOT NULL,
			audit_trail_length INTEGER NOT NULL,
			PRIMARY KEY (checkpoint_id, node_id)
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			node_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS deliberations (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			query TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS node_statements
			USING fts5(node_id UNINDEXED, statement);`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// lockNode acquires the per-node writer lock. The returned func releases it.
func (l *Ledger) lockNode(id string) func() {
	l.mu.Lock()
	m, ok := l.nodeLocks[id]
	if !ok {
		m = &sync.Mutex{}
		l.nodeLocks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// =============================================================================
// Row Mapping
// =============================================================================

const nodeColumns = `id, statement, domain, tags, branch, state, confidence,
	velocity, priority_queue, last_scan, next_scan, idle_cycles, shapley,
	created_at, updated_at, last_transition_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*types.KnowledgeNode, error) {
	var (
		n                  types.KnowledgeNode
		tagsJSON, shapJSON string
		lastScan, nextScan sql.NullString
		created, updated   string
		lastTransition     string
	)
	err := row.Scan(&n.ID, &n.Statement, &n.Domain, &tagsJSON, &n.Branch,
		&n.State, &n.Confidence, &n.Velocity, &n.PriorityQueue,
		&lastScan, &nextScan, &n.IdleCycles, &shapJSON,
		&created, &updated, &lastTransition)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("corrupt tags for node %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(shapJSON), &n.ShapleyAttribution); err != nil {
		return nil, fmt.Errorf("corrupt shapley attribution for node %s: %w", n.ID, err)
	}
	n.LastScan = parseNullTime(lastScan)
	n.NextScan = parseNullTime(nextScan)
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	n.LastTransitionAt = parseTime(lastTransition)
	return &n, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// loadAuditTrail returns a node's audit entries in append order.
func (l *Ledger) loadAuditTrail(ctx context.Context, nodeID string) ([]types.AuditEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT ts, action, from_state, to_state, audit_trigger, agent, reason,
		       confidence_delta, vote_record
		FROM audit_entries WHERE node_id = ? ORDER BY seq ASC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail: %w", err)
	}
	defer rows.Close()

	var trail []types.AuditEntry
	for rows.Next() {
		var (
			e     types.AuditEntry
			ts    string
			delta sql.NullInt64
		)
		if err := rows.Scan(&ts, &e.Action, &e.FromState, &e.ToState,
			&e.Trigger, &e.Agent, &e.Reason, &delta, &e.VoteRecord); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		if delta.Valid {
			d := int(delta.Int64)
			e.ConfidenceDelta = &d
		}
		trail = append(trail, e)
	}
	return trail, rows.Err()
}

// appendAudit inserts exactly one audit entry inside the given transaction.
func appendAudit(tx *sql.Tx, nodeID string, e types.AuditEntry) error {
	var delta any
	if e.ConfidenceDelta != nil {
		delta = *e.ConfidenceDelta
	}
	_, err := tx.Exec(`
		INSERT INTO audit_entries
			(node_id, ts, action, from_state, to_state, audit_trigger, agent,
			 reason, confidence_delta, vote_record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nodeID, formatTime(e.Timestamp), e.Action, e.FromState, e.ToState,
		e.Trigger, e.Agent, e.Reason, delta, e.VoteRecord)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", types.ErrPersistenceFailure)
	}
	return nil
}

// loadSources returns the sources linked to a node.
func (l *Ledger) loadSources(ctx context.Context, nodeID string) ([]types.Source, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT s.id, s.type, s.identifier, s.url, s.title, s.authors,
		       s.trust_score, s.retrieved_at
		FROM sources s
		JOIN node_sources ns ON ns.source_id = s.id
		WHERE ns.node_id = ?
		ORDER BY s.trust_score DESC`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	defer rows.Close()

	var out []types.Source
	for rows.Next() {
		var (
			s           types.Source
			authorsJSON string
			retrieved   string
		)
		if err := rows.Scan(&s.ID, &s.Type, &s.Identifier, &s.URL, &s.Title,
			&authorsJSON, &s.TrustScore, &retrieved); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(authorsJSON), &s.Authors)
		s.RetrievedAt = parseTime(retrieved)
		out = append(out, s)
	}
	return out, rows.Err()
}

// upsertSource inserts a source or returns the id of the existing row with
// the same (type, identifier) identity.
func upsertSource(tx *sql.Tx, s types.Source) (string, error) {
	var existing string
	err := tx.QueryRow(`SELECT id FROM sources WHERE type = ? AND identifier = ?`,
		s.Type, s.Identifier).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	_, err = tx.Exec(`
		INSERT INTO sources (id, type, identifier, url, title, authors, trust_score, retrieved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Type, s.Identifier, s.URL, s.Title,
		marshalJSON(s.Authors), s.TrustScore, formatTime(s.RetrievedAt))
	if err != nil {
		return "", fmt.Errorf("failed to insert source: %w", err)
	}
	return s.ID, nil
}

// SearchStatements runs a full-text search over node statements and returns
// matching node ids, best match first.
func (l *Ledger) SearchStatements(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	// FTS5 treats most punctuation as syntax; quote each term.
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, "") + `"`
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT node_id FROM node_statements
		WHERE node_statements MATCH ?
		ORDER BY rank LIMIT ?`, strings.Join(terms, " "), limit)
	if err != nil {
		return nil, fmt.Errorf("statement search failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

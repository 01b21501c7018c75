// Package sqlite provides a SQLite-backed audit store for durable decision trails.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sentinel-project/sentinel/internal/domain/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id              TEXT PRIMARY KEY,
	event           TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	request_id      TEXT,
	agent_id        TEXT,
	action_type     TEXT,
	target_resource TEXT,
	decision        TEXT,
	observed_mode   INTEGER NOT NULL DEFAULT 0,
	risk_score      REAL NOT NULL DEFAULT 0,
	risk_level      TEXT,
	matched_rules   TEXT,
	pii_entities    TEXT,
	forwarded       INTEGER NOT NULL DEFAULT 0,
	latency_ms      REAL,
	detail          TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs (timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_agent ON audit_logs (agent_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_event ON audit_logs (event);
`

// AuditStore implements audit.Store on a SQLite database.
// Safe for concurrent use; database/sql serializes access to the single
// writer connection.
type AuditStore struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the schema.
// Busy timeout and WAL mode are set so the audit writer never blocks readers.
func Open(path string) (*AuditStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// WriteBatch persists records in one transaction.
func (s *AuditStore) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_logs (
			id, event, timestamp, request_id, agent_id, action_type,
			target_resource, decision, observed_mode, risk_score, risk_level,
			matched_rules, pii_entities, forwarded, latency_ms, detail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		matched, err := marshalJSON(r.MatchedRules)
		if err != nil {
			return err
		}
		entities, err := marshalJSON(r.PIIEntities)
		if err != nil {
			return err
		}
		detail, err := marshalJSON(r.Detail)
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx,
			r.ID, string(r.Event), r.Timestamp.UTC().Format(time.RFC3339Nano),
			r.RequestID, r.AgentID, r.ActionType, r.TargetResource,
			r.Decision, boolToInt(r.ObservedMode), r.RiskScore, r.RiskLevel,
			matched, entities, boolToInt(r.Forwarded), r.LatencyMS, detail,
		); err != nil {
			return fmt.Errorf("insert audit record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

// Query returns records matching the filter, newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Event != "" {
		where = append(where, "event = ?")
		args = append(args, string(filter.Event))
	}
	if filter.AgentID != "" {
		where = append(where, "agent_id = ?")
		args = append(args, filter.AgentID)
	}
	if filter.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, filter.Decision)
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Until.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}

	query := `SELECT id, event, timestamp, request_id, agent_id, action_type,
		target_resource, decision, observed_mode, risk_score, risk_level,
		matched_rules, pii_entities, forwarded, latency_ms, detail FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			r         audit.Record
			ts        string
			observed  int
			forwarded int
			matched   sql.NullString
			entities  sql.NullString
			detail    sql.NullString
			latencyMS sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &r.Event, &ts, &r.RequestID, &r.AgentID, &r.ActionType,
			&r.TargetResource, &r.Decision, &observed, &r.RiskScore, &r.RiskLevel,
			&matched, &entities, &forwarded, &latencyMS, &detail,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		r.ObservedMode = observed != 0
		r.Forwarded = forwarded != 0
		if latencyMS.Valid {
			r.LatencyMS = latencyMS.Float64
		}
		if err := unmarshalJSON(matched, &r.MatchedRules); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(entities, &r.PIIEntities); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(detail, &r.Detail); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func marshalJSON(v interface{}) (sql.NullString, error) {
	switch val := v.(type) {
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]interface{}:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal audit field: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(ns.String), target); err != nil {
		return fmt.Errorf("unmarshal audit field: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Audit results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// DefaultAuditLimit applies when an AuditFilter sets no limit.
const DefaultAuditLimit = 100

// AuditPayload is structured detail stored as JSON next to an entry.
type AuditPayload map[string]any

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	TraceID   string
	// Actor is the chat user behind the entry.
	Actor        string
	Action       string
	Target       sql.NullString
	PayloadJSON  sql.NullString
	Result       string
	ErrorMessage sql.NullString
}

// AuditFilter selects audit entries. Zero fields match everything.
type AuditFilter struct {
	Actor string
	// Action matches as a prefix, so "provisioning." selects every
	// provisioning event.
	Action string
	Result string
	Limit  int
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// WriteAudit appends an entry. Empty target and errorMsg are stored as NULL.
func (s *Store) WriteAudit(ctx context.Context, traceID, actor, action, target, result string, payload AuditPayload, errorMsg string) error {
	var body sql.NullString
	if len(payload) > 0 {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode audit payload: %w", err)
		}
		body = sql.NullString{String: string(b), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, actor, action, target, payload_json, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, time.Now().UTC(), traceID, actor, action, nullString(target), body, result, nullString(errorMsg)); err != nil {
		return fmt.Errorf("failed to write audit entry %s: %w", action, err)
	}
	return nil
}

const auditColumns = `id, ts, trace_id, actor, action, target, payload_json, result, error_message`

// ListAudit returns entries matching f, newest first.
func (s *Store) ListAudit(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		where = append(where, "action LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(f.Action)+"%")
	}
	if f.Result != "" {
		where = append(where, "result = ?")
		args = append(args, f.Result)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	q := `SELECT ` + auditColumns + ` FROM audit_log`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	return scanAudit(rows)
}

// GetAuditByTrace returns every entry written under traceID, oldest first.
func (s *Store) GetAuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log WHERE trace_id = ? ORDER BY id ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log by trace: %w", err)
	}
	return scanAudit(rows)
}

func scanAudit(rows *sql.Rows) ([]*AuditEntry, error) {
	defer rows.Close()
	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.Actor, &e.Action,
			&e.Target, &e.PayloadJSON, &e.Result, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

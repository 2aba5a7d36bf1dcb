package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// RequestRecord is one provisioning request and, once known, its outcome.
type RequestRecord struct {
	RequestID     string
	TraceID       string
	UserID        string
	Type          resource.Type
	Name          string
	Location      string
	ResourceGroup string
	Status        resource.Status
	ResourceID    string
	Message       string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Request  *resource.Request
	Response *resource.Response
}

// CreateRequest records req as pending. req.RequestID must be set.
func (s *Store) CreateRequest(ctx context.Context, traceID string, req *resource.Request) error {
	if req.RequestID == "" {
		return errors.New("request has no ID")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provisioning_requests
			(request_id, trace_id, user_id, resource_type, name, location, resource_group,
			 status, request_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, req.RequestID, traceID, req.UserID, string(req.Type), req.Name, req.Location, req.ResourceGroup,
		string(resource.StatusPending), string(body), now, now)
	if err != nil {
		return fmt.Errorf("failed to insert request %s: %w", req.RequestID, err)
	}
	return nil
}

// CompleteRequest stores the outcome for resp.RequestID.
func (s *Store) CompleteRequest(ctx context.Context, resp *resource.Response) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE provisioning_requests
		SET status = ?, resource_id = ?, message = ?, response_json = ?, updated_at = ?
		WHERE request_id = ?
	`, string(resp.Status), nullString(resp.ResourceID), nullString(resp.Message), string(body),
		time.Now().UTC(), resp.RequestID)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", resp.RequestID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("request %s: %w", resp.RequestID, ErrNotFound)
	}
	return nil
}

const requestColumns = `request_id, trace_id, user_id, resource_type, name, location, resource_group,
	status, resource_id, message, request_json, response_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*RequestRecord, error) {
	var (
		r                   RequestRecord
		typ, status         string
		resourceID, message sql.NullString
		requestJSON         string
		responseJSON        sql.NullString
	)
	if err := row.Scan(
		&r.RequestID, &r.TraceID, &r.UserID, &typ, &r.Name, &r.Location, &r.ResourceGroup,
		&status, &resourceID, &message, &requestJSON, &responseJSON, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	r.Type = resource.Type(typ)
	r.Status = resource.Status(status)
	r.ResourceID = resourceID.String
	r.Message = message.String

	r.Request = &resource.Request{}
	if err := json.Unmarshal([]byte(requestJSON), r.Request); err != nil {
		return nil, fmt.Errorf("failed to decode request %s: %w", r.RequestID, err)
	}
	if responseJSON.Valid {
		r.Response = &resource.Response{}
		if err := json.Unmarshal([]byte(responseJSON.String), r.Response); err != nil {
			return nil, fmt.Errorf("failed to decode response %s: %w", r.RequestID, err)
		}
	}
	return &r, nil
}

// GetRequest returns the record for requestID or ErrNotFound.
func (s *Store) GetRequest(ctx context.Context, requestID string) (*RequestRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM provisioning_requests WHERE request_id = ?`, requestID)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %s: %w", requestID, err)
	}
	return r, nil
}

// ListRequests returns the most recent requests first. limit <= 0 means 20.
func (s *Store) ListRequests(ctx context.Context, limit int) ([]*RequestRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM provisioning_requests ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*RequestRecord
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requests: %w", err)
	}
	return out, nil
}

// CountRequests returns the number of requests per status.
func (s *Store) CountRequests(ctx context.Context) (map[resource.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM provisioning_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	counts := make(map[resource.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan request count: %w", err)
		}
		counts[resource.Status(status)] = n
	}
	return counts, rows.Err()
}

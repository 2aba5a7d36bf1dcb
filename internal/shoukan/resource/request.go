package resource

import (
	"fmt"
	"time"
)

// Request is a provisioning request assembled from chat input. It is only
// handed to provisioning once Validate succeeds.
type Request struct {
	Type          Type              `json:"resource_type"`
	Name          string            `json:"name"`
	Location      string            `json:"location"`
	ResourceGroup string            `json:"resource_group,omitempty"`
	Tags          map[string]string `json:"tags"`
	Parameters    map[string]any    `json:"parameters"`
	UserID        string            `json:"user_id"`
	// RequestID is assigned when the user confirms, not when the request is built.
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRequest returns an empty request of type t for userID, stamped with now.
func NewRequest(t Type, userID string, now time.Time) *Request {
	return &Request{
		Type:       t,
		UserID:     userID,
		Tags:       make(map[string]string),
		Parameters: make(map[string]any),
		Timestamp:  now,
	}
}

// Clone returns a deep copy of r. Parameter values are copied shallowly,
// which is enough because the extractor only stores strings and ints.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Tags = make(map[string]string, len(r.Tags))
	for k, v := range r.Tags {
		out.Tags[k] = v
	}
	out.Parameters = make(map[string]any, len(r.Parameters))
	for k, v := range r.Parameters {
		out.Parameters[k] = v
	}
	return &out
}

// Param returns the string value of a parameter, or "" when it is unset.
func (r *Request) Param(key string) string {
	v, ok := r.Parameters[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Status is the lifecycle state of a provisioning request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Response is the outcome reported by a provisioning backend.
type Response struct {
	RequestID     string            `json:"request_id"`
	Status        Status            `json:"status"`
	ResourceID    string            `json:"resource_id,omitempty"`
	ResourceName  string            `json:"resource_name"`
	Type          Type              `json:"resource_type"`
	Location      string            `json:"location"`
	ResourceGroup string            `json:"resource_group"`
	Message       string            `json:"message"`
	ErrorDetails  map[string]string `json:"error_details,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   time.Time         `json:"completed_at,omitempty"`
}

// Resource is one entry returned by a listing call.
type Resource struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Location string            `json:"location"`
	Tags     map[string]string `json:"tags,omitempty"`
}

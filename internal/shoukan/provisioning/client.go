package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/audit"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
	"github.com/bdobrica/Shoukan/internal/shoukan/store"
)

// Defaults applied when a request leaves them empty.
const (
	DefaultResourceGroup = "azure-provisioning-rg"
	DefaultLocation      = "East US"
)

// Breaker defaults.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

const textBackendUnavailable = "The provisioning backend is temporarily unavailable. Please try again in a few minutes."

// Recorder persists requests and their outcomes.
type Recorder interface {
	CreateRequest(ctx context.Context, traceID string, req *resource.Request) error
	CompleteRequest(ctx context.Context, resp *resource.Response) error
	GetRequest(ctx context.Context, requestID string) (*store.RequestRecord, error)
}

// ClientConfig holds configuration for the Client.
type ClientConfig struct {
	Backend Backend

	// Recorder stores request history. Optional.
	Recorder Recorder
	// Notifier receives provisioning audit events. Default: audit.Noop.
	Notifier audit.Notifier

	// ResourceGroup and Location fill requests that leave them empty.
	ResourceGroup string
	Location      string

	// BreakerFailures is the number of consecutive backend failures that
	// opens the circuit. Default: 5.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open before a trial
	// request is let through. Default: 30s.
	BreakerCooldown time.Duration

	// Now is the clock for response timestamps. Default: time.Now.
	Now func() time.Time
}

// Client is the provisioning collaborator seen by the dialogue core. It
// never returns errors: failures become Failed responses or empty listings.
type Client struct {
	backend  Backend
	recorder Recorder
	notifier audit.Notifier
	group    string
	location string
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time
}

// NewClient creates a Client around cfg.Backend.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Notifier == nil {
		cfg.Notifier = audit.Noop{}
	}
	if cfg.ResourceGroup == "" {
		cfg.ResourceGroup = DefaultResourceGroup
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "provisioning",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// Refusals caused by the request itself say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrConflict) || errors.Is(err, ErrUnsupported)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("provisioning: circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		backend:  cfg.Backend,
		recorder: cfg.Recorder,
		notifier: cfg.Notifier,
		group:    cfg.ResourceGroup,
		location: cfg.Location,
		breaker:  breaker,
		now:      cfg.Now,
	}
}

// ResourceGroup returns the default resource group.
func (c *Client) ResourceGroup() string {
	return c.group
}

// BreakerState reports the circuit breaker state ("closed", "open" or
// "half-open").
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Provision runs req against the backend and always returns a response.
func (c *Client) Provision(ctx context.Context, req *resource.Request) resource.Response {
	traceID := trace.FromContext(ctx)

	r := req.Clone()
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.ResourceGroup == "" {
		r.ResourceGroup = c.group
	}
	if r.Location == "" {
		r.Location = c.location
	}

	base := resource.Response{
		RequestID:     r.RequestID,
		Status:        resource.StatusInProgress,
		ResourceName:  r.Name,
		Type:          r.Type,
		Location:      r.Location,
		ResourceGroup: r.ResourceGroup,
		Tags:          r.Tags,
		CreatedAt:     c.now(),
	}

	if err := resource.Validate(r); err != nil {
		resp := c.failed(base, err)
		c.finish(ctx, r, &resp, false)
		return resp
	}

	if c.recorder != nil {
		if err := c.recorder.CreateRequest(ctx, traceID, r); err != nil {
			slog.Warn("provisioning: failed to record request", "trace_id", traceID, "request_id", r.RequestID, "err", err)
		}
	}
	c.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindProvisioningRequested,
		Actor:   r.UserID,
		Target:  r.RequestID,
		Message: fmt.Sprintf("%s '%s' requested in %s", r.Type.Display(), r.Name, r.Location),
		Details: map[string]string{"type": string(r.Type), "resource_group": r.ResourceGroup},
	})

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.backend.Provision(ctx, r)
	})

	var resp resource.Response
	switch {
	case err != nil:
		resp = c.failed(base, err)
	case out == nil || out.(*resource.Response) == nil:
		resp = c.failed(base, errors.New("backend returned no response"))
	default:
		resp = *out.(*resource.Response)
		fillResponse(&resp, base)
		if resp.Status == "" {
			resp.Status = resource.StatusCompleted
		}
		if resp.CompletedAt.IsZero() {
			resp.CompletedAt = c.now()
		}
	}

	c.finish(ctx, r, &resp, true)
	return resp
}

// fillResponse copies identifying fields the backend left empty.
func fillResponse(resp *resource.Response, base resource.Response) {
	if resp.RequestID == "" {
		resp.RequestID = base.RequestID
	}
	if resp.ResourceName == "" {
		resp.ResourceName = base.ResourceName
	}
	if resp.Type == "" {
		resp.Type = base.Type
	}
	if resp.Location == "" {
		resp.Location = base.Location
	}
	if resp.ResourceGroup == "" {
		resp.ResourceGroup = base.ResourceGroup
	}
	if resp.Tags == nil {
		resp.Tags = base.Tags
	}
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = base.CreatedAt
	}
}

// failed converts err into a Failed response whose Message is safe to show.
func (c *Client) failed(base resource.Response, err error) resource.Response {
	resp := base
	resp.Status = resource.StatusFailed
	resp.ErrorDetails = map[string]string{"error": err.Error(), "reason": failureReason(err)}

	var verr *resource.ValidationError
	switch {
	case errors.As(err, &verr):
		resp.Message = "The request is incomplete or invalid: " + strings.Join(verr.Problems, "; ")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		resp.Message = textBackendUnavailable
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrConflict), errors.Is(err, ErrUnsupported):
		resp.Message = err.Error()
	default:
		resp.Message = fmt.Sprintf("Failed to create %s: %v", strings.ToLower(base.Type.Display()), err)
	}
	return resp
}

func failureReason(err error) string {
	var verr *resource.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "unavailable"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "backend"
	}
}

// finish records the outcome and emits the audit event.
func (c *Client) finish(ctx context.Context, r *resource.Request, resp *resource.Response, recorded bool) {
	traceID := trace.FromContext(ctx)

	if recorded && c.recorder != nil {
		if err := c.recorder.CompleteRequest(ctx, resp); err != nil {
			slog.Warn("provisioning: failed to record outcome", "trace_id", traceID, "request_id", resp.RequestID, "err", err)
		}
	}

	evt := audit.Event{
		Actor:   r.UserID,
		Target:  resp.RequestID,
		Details: map[string]string{"type": string(r.Type), "name": r.Name, "location": r.Location},
	}
	if resp.Status == resource.StatusCompleted {
		evt.Kind = audit.KindProvisioningCompleted
		evt.Message = fmt.Sprintf("%s '%s' created in %s", r.Type.Display(), r.Name, r.Location)
		evt.Details["resource_id"] = resp.ResourceID
		slog.Info("provisioning: request completed", "trace_id", traceID, "request_id", resp.RequestID, "resource_id", resp.ResourceID)
	} else {
		evt.Kind = audit.KindProvisioningFailed
		evt.Message = resp.Message
		slog.Warn("provisioning: request failed", "trace_id", traceID, "request_id", resp.RequestID,
			"reason", resp.ErrorDetails["reason"], "err", resp.ErrorDetails["error"])
	}
	c.notifier.Notify(ctx, evt)
}

// ListResources lists resourceGroup (default group when empty). Failures
// are logged and reported as an empty slice; partial results are kept.
func (c *Client) ListResources(ctx context.Context, resourceGroup string) []resource.Resource {
	if resourceGroup == "" {
		resourceGroup = c.group
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		rs, err := c.backend.List(ctx, resourceGroup)
		if len(rs) > 0 {
			// Partial listings count as success for the breaker.
			return rs, nil
		}
		return rs, err
	})
	if err != nil {
		slog.Warn("provisioning: failed to list resources",
			"trace_id", trace.FromContext(ctx), "resource_group", resourceGroup, "err", err)
		return []resource.Resource{}
	}
	rs, _ := out.([]resource.Resource)
	if rs == nil {
		return []resource.Resource{}
	}
	return rs
}

// ErrUnknownRequest is returned by Status for IDs that were never recorded.
var ErrUnknownRequest = errors.New("unknown request")

// Status returns the latest recorded response for requestID. Requests that
// have not finished yet are reported with their current status.
func (c *Client) Status(ctx context.Context, requestID string) (*resource.Response, error) {
	if c.recorder == nil {
		return nil, ErrUnknownRequest
	}
	rec, err := c.recorder.GetRequest(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownRequest
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load request %s: %w", requestID, err)
	}
	if rec.Response != nil {
		return rec.Response, nil
	}
	return &resource.Response{
		RequestID:     rec.RequestID,
		Status:        rec.Status,
		ResourceName:  rec.Name,
		Type:          rec.Type,
		Location:      rec.Location,
		ResourceGroup: rec.ResourceGroup,
		Message:       rec.Message,
		CreatedAt:     rec.CreatedAt,
	}, nil
}

// Package memory is an in-process stand-in for a cloud provider. It applies
// the provider's naming rules, assigns ARM-style resource IDs and keeps every
// created resource for listing.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

// Config holds configuration for the Backend.
type Config struct {
	// SubscriptionID appears in resource IDs. Default: a random UUID.
	SubscriptionID string
	// Latency is added to every Provision call to mimic a real deployment.
	Latency time.Duration
	// Now is the clock for timestamps. Default: time.Now.
	Now func() time.Time
}

// Backend is a thread-safe simulated cloud.
type Backend struct {
	sub     string
	latency time.Duration
	now     func() time.Time

	mu        sync.RWMutex
	resources map[string]resource.Resource // keyed by lower-cased ID
}

var _ provisioning.Backend = (*Backend)(nil)

// New creates an empty Backend.
func New(cfg Config) *Backend {
	if cfg.SubscriptionID == "" {
		cfg.SubscriptionID = uuid.NewString()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Backend{
		sub:       cfg.SubscriptionID,
		latency:   cfg.Latency,
		now:       cfg.Now,
		resources: make(map[string]resource.Resource),
	}
}

var (
	storageName = regexp.MustCompile(`^[a-z0-9]{3,24}$`)
	groupName   = regexp.MustCompile(`^[A-Za-z0-9._()-]{1,90}$`)

	// Web app names become DNS labels.
	webAppName = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,58}[A-Za-z0-9])?$`)
)

func checkName(req *resource.Request) error {
	if !groupName.MatchString(req.ResourceGroup) || strings.HasSuffix(req.ResourceGroup, ".") {
		return fmt.Errorf("%w: resource group name '%s' is not valid", provisioning.ErrInvalidRequest, req.ResourceGroup)
	}
	switch req.Type {
	case resource.TypeStorageAccount:
		if !storageName.MatchString(req.Name) {
			return fmt.Errorf("%w: storage account name '%s' must be 3 to 24 lowercase letters or digits",
				provisioning.ErrInvalidRequest, req.Name)
		}
	case resource.TypeWebApp:
		if !webAppName.MatchString(req.Name) {
			return fmt.Errorf("%w: web app name '%s' must be letters, digits or hyphens and cannot start or end with a hyphen",
				provisioning.ErrInvalidRequest, req.Name)
		}
	}
	return nil
}

// Provision creates the resource described by req.
func (b *Backend) Provision(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %s", provisioning.ErrUnsupported, req.Type)
	}
	if err := checkName(req); err != nil {
		return nil, err
	}

	if b.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.latency):
		}
	}

	id := resource.ARMID(b.sub, req.ResourceGroup, req.Type, req.Name)
	key := strings.ToLower(id)
	started := b.now()

	b.mu.Lock()
	if _, exists := b.resources[key]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: a %s named '%s' already exists in %s",
			provisioning.ErrConflict, strings.ToLower(req.Type.Display()), req.Name, req.ResourceGroup)
	}
	tags := make(map[string]string, len(req.Tags))
	for k, v := range req.Tags {
		tags[k] = v
	}
	b.resources[key] = resource.Resource{
		ID:       id,
		Name:     req.Name,
		Type:     req.Type.Provider(),
		Location: req.Location,
		Tags:     tags,
	}
	b.mu.Unlock()

	slog.Debug("memory backend: resource created", "id", id)

	return &resource.Response{
		RequestID:     req.RequestID,
		Status:        resource.StatusCompleted,
		ResourceID:    id,
		ResourceName:  req.Name,
		Type:          req.Type,
		Location:      req.Location,
		ResourceGroup: req.ResourceGroup,
		Message:       fmt.Sprintf("%s '%s' created successfully", sentenceCase(req.Type.Display()), req.Name),
		Tags:          req.Tags,
		CreatedAt:     started,
		CompletedAt:   b.now(),
	}, nil
}

// List returns the resources in resourceGroup, or every resource when
// resourceGroup is empty, sorted by name.
func (b *Backend) List(_ context.Context, resourceGroup string) ([]resource.Resource, error) {
	prefix := ""
	if resourceGroup != "" {
		prefix = strings.ToLower(fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/", b.sub, resourceGroup))
	}

	b.mu.RLock()
	out := make([]resource.Resource, 0, len(b.resources))
	for key, r := range b.resources {
		if strings.HasPrefix(key, prefix) {
			out = append(out, r)
		}
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// sentenceCase turns "Virtual Machine" into "Virtual machine".
func sentenceCase(s string) string {
	if s == "" {
		return s
	}
	return s[:1] + strings.ToLower(s[1:])
}

// Package docker runs container_instance requests as labelled containers on a
// local Docker Engine.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/bdobrica/Shoukan/common/retry"
	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

const (
	labelManagedBy     = "shoukan.managed-by"
	labelRequestID     = "shoukan.request-id"
	labelResourceID    = "shoukan.resource-id"
	labelResourceName  = "shoukan.resource-name"
	labelResourceGroup = "shoukan.resource-group"
	labelLocation      = "shoukan.location"
	labelTagPrefix     = "shoukan.tag."
	managedByValue     = "shoukan"

	// DefaultImage runs when a request names no image.
	DefaultImage = "nginx:alpine"
)

// API is the subset of the Docker Engine client the backend uses.
type API interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
}

// Config holds configuration for the Backend.
type Config struct {
	// SubscriptionID appears in resource IDs.
	SubscriptionID string
	// Network the containers join. Empty uses the engine default.
	Network string
	// Now is the clock for timestamps. Default: time.Now.
	Now func() time.Time
}

// Backend implements provisioning.Backend for container instances.
type Backend struct {
	api     API
	sub     string
	network string
	now     func() time.Time
}

var _ provisioning.Backend = (*Backend)(nil)

// New creates a Backend talking to the engine at DOCKER_HOST or the default
// socket.
func New(cfg Config) (*Backend, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewWithAPI(cli, cfg), nil
}

// NewWithAPI creates a Backend around an existing client.
func NewWithAPI(api API, cfg Config) *Backend {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Backend{api: api, sub: cfg.SubscriptionID, network: cfg.Network, now: cfg.Now}
}

// EnsureNetwork creates the configured network when it does not exist yet.
// It is a no-op when no network is configured.
func (b *Backend) EnsureNetwork(ctx context.Context) error {
	if b.network == "" {
		return nil
	}
	nets, err := b.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", b.network)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == b.network {
			return nil
		}
	}
	_, err = b.api.NetworkCreate(ctx, b.network, network.CreateOptions{
		Driver:     "bridge",
		Attachable: true,
		Labels:     map[string]string{labelManagedBy: managedByValue},
	})
	if err != nil && !errdefs.IsConflict(err) {
		return fmt.Errorf("create network %q: %w", b.network, err)
	}
	return nil
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_.]+`)

// ContainerName maps a resource to its container name.
func ContainerName(group, name string) string {
	n := "shoukan-" + strings.ToLower(group) + "-" + strings.ToLower(name)
	return strings.Trim(unsafeName.ReplaceAllString(n, "-"), "-")
}

// pullRetry covers registry hiccups.
var pullRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Second,
	Jitter:       0.2,
}

// Provision pulls the image and starts a container for req.
func (b *Backend) Provision(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	if req.Type != resource.TypeContainerInstance {
		return nil, fmt.Errorf("%w: docker backend only runs container instances", provisioning.ErrUnsupported)
	}
	started := b.now()

	existing, err := b.find(ctx, req.ResourceGroup, req.Name)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: a container instance named '%s' already exists in %s",
			provisioning.ErrConflict, req.Name, req.ResourceGroup)
	}

	ref := req.Param(resource.ParamImage)
	if ref == "" {
		ref = DefaultImage
	}
	err = retry.Do(ctx, pullRetry, func() error {
		rc, err := b.api.ImagePull(ctx, ref, image.PullOptions{})
		if errdefs.IsNotFound(err) || errdefs.IsUnauthorized(err) || errdefs.IsInvalidParameter(err) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		defer rc.Close()
		// The pull only completes once the progress stream is drained.
		_, err = io.Copy(io.Discard, rc)
		return err
	})
	if err != nil {
		if errdefs.IsNotFound(err) || errdefs.IsInvalidParameter(err) {
			return nil, fmt.Errorf("%w: image '%s' cannot be pulled: %v", provisioning.ErrInvalidRequest, ref, err)
		}
		return nil, fmt.Errorf("pull image %s: %w", ref, err)
	}

	id := resource.ARMID(b.sub, req.ResourceGroup, req.Type, req.Name)
	labels := map[string]string{
		labelManagedBy:     managedByValue,
		labelRequestID:     req.RequestID,
		labelResourceID:    id,
		labelResourceName:  req.Name,
		labelResourceGroup: strings.ToLower(req.ResourceGroup),
		labelLocation:      req.Location,
	}
	for k, v := range req.Tags {
		labels[labelTagPrefix+k] = v
	}

	cfg := &container.Config{Image: ref, Labels: labels}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	if port := req.Param(resource.ParamPort); port != "" {
		p := nat.Port(port + "/tcp")
		cfg.ExposedPorts = nat.PortSet{p: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{p: []nat.PortBinding{{HostIP: "127.0.0.1"}}}
	}
	var netCfg *network.NetworkingConfig
	if b.network != "" {
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{b.network: {}},
		}
	}

	name := ContainerName(req.ResourceGroup, req.Name)
	created, err := b.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, name)
	if err != nil {
		if errdefs.IsConflict(err) {
			return nil, fmt.Errorf("%w: container %s already exists", provisioning.ErrConflict, name)
		}
		return nil, fmt.Errorf("create container: %w", err)
	}
	if err := b.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = b.api.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("start container: %w", err)
	}

	slog.Info("docker backend: container started", "request_id", req.RequestID, "container", name, "image", ref)

	return &resource.Response{
		RequestID:     req.RequestID,
		Status:        resource.StatusCompleted,
		ResourceID:    id,
		ResourceName:  req.Name,
		Type:          req.Type,
		Location:      req.Location,
		ResourceGroup: req.ResourceGroup,
		Message:       fmt.Sprintf("Container instance '%s' started from %s", req.Name, ref),
		Tags:          req.Tags,
		CreatedAt:     started,
		CompletedAt:   b.now(),
	}, nil
}

// List returns the managed containers of resourceGroup, or all of them when
// resourceGroup is empty.
func (b *Backend) List(ctx context.Context, resourceGroup string) ([]resource.Resource, error) {
	cs, err := b.find(ctx, resourceGroup, "")
	if err != nil {
		return nil, err
	}
	out := make([]resource.Resource, 0, len(cs))
	for _, c := range cs {
		out = append(out, toResource(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (b *Backend) find(ctx context.Context, group, name string) ([]types.Container, error) {
	args := filters.NewArgs(filters.Arg("label", labelManagedBy+"="+managedByValue))
	if group != "" {
		args.Add("label", labelResourceGroup+"="+strings.ToLower(group))
	}
	cs, err := b.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	if name == "" {
		return cs, nil
	}
	var out []types.Container
	for _, c := range cs {
		if strings.EqualFold(c.Labels[labelResourceName], name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func toResource(c types.Container) resource.Resource {
	tags := make(map[string]string)
	for k, v := range c.Labels {
		if t, ok := strings.CutPrefix(k, labelTagPrefix); ok {
			tags[t] = v
		}
	}
	tags["state"] = c.State
	if c.Created > 0 {
		tags["created"] = time.Unix(c.Created, 0).UTC().Format(time.RFC3339)
	}
	if len(c.Ports) > 0 && c.Ports[0].PublicPort != 0 {
		tags["port"] = strconv.Itoa(int(c.Ports[0].PublicPort))
	}
	return resource.Resource{
		ID:       c.Labels[labelResourceID],
		Name:     c.Labels[labelResourceName],
		Type:     resource.TypeContainerInstance.Provider(),
		Location: c.Labels[labelLocation],
		Tags:     tags,
	}
}

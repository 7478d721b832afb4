package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// Adapter implements ports.ContainerService using the Docker SDK.
type Adapter struct {
	cli    *client.Client
	logger *log.Logger

	// gracePeriod bounds the drain on stop: the supervisor inside the
	// container gets this long to finish in-flight requests before the
	// engine sends SIGKILL.
	gracePeriod time.Duration
}

// NewAdapter creates a new Docker adapter instance.
func NewAdapter(logger *log.Logger, gracePeriod time.Duration) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, logger: logger, gracePeriod: gracePeriod}, nil
}

// ListContainers returns running containers with routing details.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var result []domain.Container
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0][1:]
		}

		ip := ""
		if c.NetworkSettings != nil {
			for _, n := range c.NetworkSettings.Networks {
				ip = n.IPAddress
				break
			}
		}
		port := 0
		if len(c.Ports) > 0 {
			port = int(c.Ports[0].PrivatePort)
		}

		result = append(result, domain.Container{
			ID:        c.ID[:12], // Short ID
			Name:      name,
			Image:     c.Image,
			Status:    c.Status,
			State:     c.State,
			IPAddress: ip,
			Port:      port,
		})
	}
	return result, nil
}

// StartContainer creates and starts a container from a built image under the
// launch contract: the declared port is the one exposed and published, and
// the process tree runs as the spec's non-root identity.
func (a *Adapter) StartContainer(ctx context.Context, image string, opts domain.LaunchOptions) (string, error) {
	if err := opts.Identity.Validate(); err != nil {
		return "", err
	}
	if opts.Port < 1 || opts.Port > 65535 {
		return "", fmt.Errorf("%w: port %d out of range", domain.ErrInvalidSpec, opts.Port)
	}

	containerPort, err := nat.NewPort("tcp", strconv.Itoa(opts.Port))
	if err != nil {
		return "", fmt.Errorf("failed to declare port: %w", err)
	}

	cfg := &container.Config{
		Image: image,
		// The identity is baked into the image at build time; setting it
		// again here means even a tampered image cannot start privileged.
		User:         opts.Identity.String(),
		Env:          append([]string{domain.EnvPort + "=" + strconv.Itoa(opts.Port)}, opts.Env...),
		ExposedPorts: nat.PortSet{containerPort: struct{}{}},
	}

	var hostCfg *container.HostConfig
	if opts.HostPort > 0 {
		hostCfg = &container.HostConfig{
			PortBindings: nat.PortMap{
				containerPort: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(opts.HostPort)}},
			},
		}
	}

	resp, err := a.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		// A host-port conflict surfaces here: the container never reaches
		// Serving and the caller gets the bind error verbatim.
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	a.logger.Info("container started", "id", resp.ID[:12], "image", image, "port", opts.Port, "user", opts.Identity.String())
	return resp.ID, nil
}

// StopContainer stops a running container. The engine delivers SIGTERM to
// the supervisor, waits the grace period and only then force-kills.
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	grace := int(a.gracePeriod.Seconds())
	ctx, cancel := context.WithTimeout(ctx, a.gracePeriod+10*time.Second)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &grace}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// WaitContainer blocks until the container exits and returns its exit code.
func (a *Adapter) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := a.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed waiting for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// GetContainerLogs returns a stream of container logs. Workers write to
// stdout/stderr unbuffered, so both streams are included.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	options := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false, // Can be true for streaming
		Timestamps: true,
	}
	return a.cli.ContainerLogs(ctx, id, options)
}

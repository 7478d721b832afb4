package ports

import (
	"context"
	"io"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// ContainerService defines the core operations for managing containers.
// This interface allows us to switch between Docker, Podman, or Kubernetes
// without changing the business logic.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	// StartContainer instantiates a container from a built image under the
	// launch contract: declared port published, non-root identity enforced.
	StartContainer(ctx context.Context, image string, opts domain.LaunchOptions) (string, error)
	// StopContainer asks the supervisor inside the container to drain and
	// waits up to the grace period before the engine force-kills it.
	StopContainer(ctx context.Context, id string) error
	// WaitContainer blocks until the container exits and returns its exit
	// status.
	WaitContainer(ctx context.Context, id string) (int64, error)
	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
}

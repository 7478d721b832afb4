package ports

import (
	"context"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// BuildRequest describes one image build: the spec to package and where the
// application source comes from. Exactly one of RepoURL or SourceDir is set.
type BuildRequest struct {
	Spec      domain.AppSpec
	RepoURL   string
	SourceDir string
	ImageName string
}

// BuilderService produces sealed images from app specs.
type BuilderService interface {
	// BuildImage renders the layered build recipe for the request's spec,
	// assembles a build context and drives the engine to build it. Any
	// failing step aborts the build; no image reference is returned for a
	// failed build.
	BuildImage(ctx context.Context, req BuildRequest) (*domain.Build, error)
}

package builder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/go-git/go-git/v5"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/slipway-io/slipway/internal/core/domain"
	"github.com/slipway-io/slipway/internal/core/ports"
	"github.com/slipway-io/slipway/internal/dockerfile"
	"github.com/slipway-io/slipway/internal/supervisor"
)

// contextDockerfile is the name the rendered recipe is injected under, so it
// never collides with a Dockerfile the application ships itself.
const contextDockerfile = "Dockerfile.slipway"

// contextSupervisorConfig is where the launcher expects the supervisor
// config inside the app dir; the generated default yields to a file the
// source tree already ships under this name.
const contextSupervisorConfig = "supervisor.toml"

// Adapter implements ports.BuilderService against the Docker Engine API.
type Adapter struct {
	cli    *client.Client
	logger *log.Logger
}

func NewBuilderAdapter(logger *log.Logger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, logger: logger}, nil
}

// BuildImage assembles a build context for the request (cloning the source
// repository when one is given), injects the rendered recipe and drives the
// engine build. Any error in any step aborts the build: a failed build
// carries no image reference.
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (*domain.Build, error) {
	build := &domain.Build{
		ID:        uuid.NewString(),
		Spec:      req.Spec,
		RepoURL:   req.RepoURL,
		Status:    domain.BuildRunning,
		StartedAt: time.Now(),
	}

	imageName := req.ImageName
	if imageName == "" {
		imageName = "slipway/" + req.Spec.Name
	}

	err := a.run(ctx, req, imageName)
	build.FinishedAt = time.Now()
	if err != nil {
		build.Status = domain.BuildFailed
		build.Error = err.Error()
		return build, fmt.Errorf("%w: %v", domain.ErrBuildFailed, err)
	}
	build.Status = domain.BuildSucceeded
	build.ImageRef = imageName
	return build, nil
}

func (a *Adapter) run(ctx context.Context, req ports.BuildRequest, imageName string) error {
	recipe, err := dockerfile.Render(req.Spec)
	if err != nil {
		return err
	}

	srcDir := req.SourceDir
	if req.RepoURL != "" {
		tmpDir, err := os.MkdirTemp("", "slipway-build-*")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		a.logger.Info("cloning source", "repo", req.RepoURL)
		_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
			URL:   req.RepoURL,
			Depth: 1, // shallow clone for speed
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo: %w", err)
		}
		srcDir = tmpDir
	}
	if srcDir == "" {
		return fmt.Errorf("%w: no source dir or repo url", domain.ErrInvalidSpec)
	}

	srcTar, err := archive.TarWithOptions(srcDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	buildCtx := injectFile(srcTar, contextDockerfile, []byte(recipe))
	if len(req.Spec.AppCommand) > 0 {
		svCfg, err := renderSupervisorConfig(req.Spec)
		if err != nil {
			return err
		}
		buildCtx = injectFileIfAbsent(buildCtx, contextSupervisorConfig, svCfg)
	}

	a.logger.Info("building image", "image", imageName, "base", req.Spec.BaseImage)
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: contextDockerfile,
		Remove:     true, // remove intermediate containers
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	// The engine streams step output as JSON messages and reports a failing
	// step inline; surfacing it here is what guarantees no failed build is
	// ever reported as a sealed image.
	if err := drainBuildOutput(resp.Body, a.buildLogWriter()); err != nil {
		return err
	}
	return nil
}

// renderSupervisorConfig produces the default supervisor config for a spec:
// bind the declared port on all interfaces and run the app command as the
// worker.
func renderSupervisorConfig(spec domain.AppSpec) ([]byte, error) {
	cfg := supervisor.DefaultConfig()
	cfg.Bind = fmt.Sprintf("0.0.0.0:%d", spec.Port)
	cfg.WorkerCommand = spec.AppCommand
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to render supervisor config: %w", err)
	}
	return data, nil
}

func (a *Adapter) buildLogWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		a.logger.Debug("build", "step", strings.TrimRight(string(p), "\n"))
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/slipway-io/slipway/internal/core/domain"
	"github.com/slipway-io/slipway/internal/core/ports"
)

type ContainerHandler struct {
	service ports.ContainerService
	builder ports.BuilderService
}

func NewContainerHandler(service ports.ContainerService, builder ports.BuilderService) *ContainerHandler {
	return &ContainerHandler{service: service, builder: builder}
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.ListContainers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(containers)
}

type BuildRequest struct {
	Name    string          `json:"name"`
	RepoURL string          `json:"repo_url"`
	Image   string          `json:"image"`
	Spec    *domain.AppSpec `json:"spec,omitempty"`
}

// BuildImage packages an application into a sealed image. The spec defaults
// to the slim Python shape when the request does not carry one.
func (h *ContainerHandler) BuildImage(c *fiber.Ctx) error {
	var req BuildRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.RepoURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Name and repo URL are required",
		})
	}

	spec := domain.DefaultPythonSpec(req.Name)
	if req.Spec != nil {
		spec = *req.Spec
	}

	// Blocking call: the build stream is consumed to completion so a failed
	// step is never reported as a published image.
	build, err := h.builder.BuildImage(c.Context(), ports.BuildRequest{
		Spec:      spec,
		RepoURL:   req.RepoURL,
		ImageName: req.Image,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Build failed: " + err.Error(),
			"build": build,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(build)
}

type StartContainerRequest struct {
	Image    string   `json:"image"`
	Name     string   `json:"name"`
	Port     int      `json:"port"`
	HostPort int      `json:"host_port"`
	Env      []string `json:"env"`
}

func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	var req StartContainerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Image == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Image name is required",
		})
	}

	defaults := domain.DefaultPythonSpec(req.Name)
	if req.Port == 0 {
		req.Port = defaults.Port
	}

	containerID, err := h.service.StartContainer(c.Context(), req.Image, domain.LaunchOptions{
		Name:     req.Name,
		Port:     req.Port,
		HostPort: req.HostPort,
		Identity: defaults.Identity,
		Env:      req.Env,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    containerID,
		"image": req.Image,
		"port":  req.Port,
	})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Container ID is required",
		})
	}

	if err := h.service.StopContainer(c.Context(), id); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// The supervisor's exit code is the observable outcome of the drain: 0
	// for a graceful shutdown, non-zero when it failed or was cut short.
	exitCode, err := h.service.WaitContainer(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"id":        id,
		"exit_code": exitCode,
	})
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Container ID is required",
		})
	}

	logs, err := h.service.GetContainerLogs(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "text/plain")
	return c.SendStream(logs)
}

package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidSpec       = errors.New("invalid app spec")
	ErrPrivilegedUser    = errors.New("runtime identity must not be privileged")
	ErrPortMismatch      = errors.New("declared port and environment port differ")
	ErrBuildFailed       = errors.New("image build failed")
	ErrContainerNotFound = errors.New("container not found")
)

// EnvPort is the environment key both the image and the supervisor read the
// port from. It must always agree with AppSpec.Port.
const EnvPort = "PORT"

// RuntimeIdentity is the non-root user/group the application runs as. It is
// created at build time and owns the application directory.
type RuntimeIdentity struct {
	User  string `json:"user"`
	Group string `json:"group"`
	UID   int    `json:"uid"`
	GID   int    `json:"gid"`
}

func (id RuntimeIdentity) Validate() error {
	if id.User == "" || id.Group == "" {
		return fmt.Errorf("%w: user and group are required", ErrInvalidSpec)
	}
	if id.UID == 0 || id.User == "root" {
		return ErrPrivilegedUser
	}
	if id.GID == 0 {
		return fmt.Errorf("%w: gid 0 is the root group", ErrPrivilegedUser)
	}
	return nil
}

// String renders the identity in the user:group form docker expects.
func (id RuntimeIdentity) String() string {
	return id.User + ":" + id.Group
}

// AppSpec declares everything needed to package one application: the base
// runtime, OS packages, the dependency manifest, where the source lives and
// the identity/port contract the container must honor at runtime.
//
// All fields are fixed at build time; a spec is never mutated after
// construction.
type AppSpec struct {
	Name               string            `json:"name"`
	BaseImage          string            `json:"base_image"`
	EnvDefaults        map[string]string `json:"env,omitempty"`
	SystemPackages     []string          `json:"system_packages,omitempty"`
	DependencyManifest string            `json:"dependency_manifest"`
	InstallCommand     string            `json:"install_command"`
	AppDir             string            `json:"app_dir"`
	Identity           RuntimeIdentity   `json:"identity"`
	Port               int               `json:"port"`
	StartCommand       []string          `json:"start_command"`

	// RuntimeImage provides the slipway launcher and supervisor binaries
	// that StartCommand invokes. Leave empty only when the source tree
	// ships its own entrypoint.
	RuntimeImage string `json:"runtime_image,omitempty"`
	// AppCommand is the worker argv the supervisor runs. When set, the
	// build ships a generated supervisor config unless the source tree
	// already contains one.
	AppCommand []string `json:"app_command,omitempty"`
}

// Alpine reports whether the base image uses apk instead of apt.
func (s AppSpec) Alpine() bool {
	return strings.Contains(s.BaseImage, "alpine")
}

func (s AppSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	if s.BaseImage == "" {
		return fmt.Errorf("%w: base image is required", ErrInvalidSpec)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSpec, s.Port)
	}
	if s.DependencyManifest == "" {
		return fmt.Errorf("%w: dependency manifest is required", ErrInvalidSpec)
	}
	if s.InstallCommand == "" {
		return fmt.Errorf("%w: install command is required", ErrInvalidSpec)
	}
	if s.AppDir == "" || !strings.HasPrefix(s.AppDir, "/") {
		return fmt.Errorf("%w: app dir must be an absolute path", ErrInvalidSpec)
	}
	if len(s.StartCommand) == 0 {
		return fmt.Errorf("%w: start command is required", ErrInvalidSpec)
	}
	// Without a runtime image there is nothing to copy the launcher from
	// and the container would die on an unresolvable entrypoint.
	if s.StartCommand[0] == "slipway-launcher" && s.RuntimeImage == "" {
		return fmt.Errorf("%w: slipway-launcher start command requires a runtime image", ErrInvalidSpec)
	}
	if err := s.Identity.Validate(); err != nil {
		return err
	}
	// The exposed port, the PORT env value and the port the supervisor binds
	// are one value. A spec that declares them apart is rejected outright.
	if v, ok := s.EnvDefaults[EnvPort]; ok {
		if v != strconv.Itoa(s.Port) {
			return fmt.Errorf("%w: env %s=%s, declared %d", ErrPortMismatch, EnvPort, v, s.Port)
		}
	}
	return nil
}

// DefaultPythonSpec returns a spec shaped like the reference deployment: a
// slim Python base, a compiler toolchain for native wheels, pip-installed
// dependencies and an unbuffered runtime.
func DefaultPythonSpec(name string) AppSpec {
	return AppSpec{
		Name:      name,
		BaseImage: "python:3.12-slim",
		EnvDefaults: map[string]string{
			"PYTHONDONTWRITEBYTECODE": "1",
			"PYTHONUNBUFFERED":        "1",
			"APP_ENV":                 "production",
		},
		SystemPackages:     []string{"gcc", "libc6-dev"},
		DependencyManifest: "requirements.txt",
		InstallCommand:     "pip install --no-cache-dir -r requirements.txt",
		AppDir:             "/app",
		Identity:           RuntimeIdentity{User: "app", Group: "app", UID: 1000, GID: 1000},
		Port:               3000,
		StartCommand:       []string{"slipway-launcher"},
		RuntimeImage:       "slipway/runtime:latest",
		AppCommand:         []string{"python", "app.py"},
	}
}

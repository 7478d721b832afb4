// Package launcher is the container's entry point: a two-phase startup that
// prepares filesystem ownership while still privileged, irreversibly drops
// to the runtime identity and then replaces itself with the supervisor. No
// application logic ever runs in phase one.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// ErrStillPrivileged means the identity switch did not take; running the
// application anyway would violate the launch contract.
var ErrStillPrivileged = errors.New("still running as root after identity switch")

// Run executes the launch sequence. On success it never returns: the
// launcher's process image is replaced by the supervisor, so container
// signals reach the supervisor directly with no wrapper in between.
func Run(cfg Config, logger *log.Logger) error {
	// Phase one, setup only. The image normally starts us as the runtime
	// user already; the root path exists for images built elsewhere.
	if os.Geteuid() == 0 {
		logger.Info("preparing ownership", "dir", cfg.AppDir, "uid", cfg.UID, "gid", cfg.GID)
		if err := chownTree(cfg.AppDir, cfg.UID, cfg.GID); err != nil {
			return fmt.Errorf("failed to prepare app dir: %w", err)
		}
		if err := dropPrivileges(cfg.UID, cfg.GID); err != nil {
			return err
		}
	}
	if os.Geteuid() == 0 {
		return ErrStillPrivileged
	}

	// Phase two: hand off.
	path, err := exec.LookPath(cfg.SupervisorPath)
	if err != nil {
		return fmt.Errorf("supervisor binary not found: %w", err)
	}
	argv := []string{path, "--config", cfg.ConfigPath}
	logger.Info("handing off to supervisor", "path", path, "config", cfg.ConfigPath)
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("failed to exec supervisor: %w", err)
	}
	return nil // unreachable
}

// dropPrivileges switches to the runtime identity. Group first: once the
// uid changes we no longer may change groups.
func dropPrivileges(uid, gid int) error {
	if err := unix.Setgroups([]int{gid}); err != nil {
		return fmt.Errorf("failed to set groups: %w", err)
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("failed to set gid %d: %w", gid, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("failed to set uid %d: %w", uid, err)
	}
	return nil
}

// chownTree transfers ownership of the application directory to the runtime
// identity, recursively, without following symlinks out of the tree.
func chownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}

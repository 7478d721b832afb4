// Package dockerfile renders an AppSpec into a layered build recipe.
//
// The step order is fixed: base image, environment defaults, system
// packages, dependency manifest + install, runtime binaries, application
// source, runtime identity, exposed port, start command. Only the
// dependency manifest is copied before the install step, so a source-only
// change can never invalidate the dependency layer.
package dockerfile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/slipway-io/slipway/internal/core/domain"
)

// Render produces the Dockerfile text for a spec. Rendering is pure: the
// same spec always yields byte-identical output, which is what keeps the
// engine's layer cache stable across builds.
func Render(spec domain.AppSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder

	// (1) base runtime. The slipway runtime image is declared as a named
	// stage so the launcher and supervisor binaries can be copied into the
	// final image without entering the build context.
	if spec.RuntimeImage != "" {
		fmt.Fprintf(&b, "FROM %s AS slipway\n\n", spec.RuntimeImage)
	}
	fmt.Fprintf(&b, "FROM %s\n\n", spec.BaseImage)

	// (2) immutable environment defaults. PORT is always emitted from the
	// declared port so the env value and the exposed value cannot drift.
	b.WriteString("ENV")
	for _, kv := range envPairs(spec) {
		fmt.Fprintf(&b, " \\\n    %s", kv)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "WORKDIR %s\n\n", spec.AppDir)

	// (3) system packages; the package index cache is purged in the same
	// layer it was populated in, so it never reaches the final image.
	if len(spec.SystemPackages) > 0 {
		pkgs := append([]string(nil), spec.SystemPackages...)
		sort.Strings(pkgs)
		if spec.Alpine() {
			fmt.Fprintf(&b, "RUN apk add --no-cache %s\n\n", strings.Join(pkgs, " "))
		} else {
			fmt.Fprintf(&b, "RUN apt-get update \\\n    && apt-get install -y --no-install-recommends %s \\\n    && rm -rf /var/lib/apt/lists/*\n\n",
				strings.Join(pkgs, " "))
		}
	}

	// (4) dependency manifest only, then install. The layer's cache key is
	// the manifest content, nothing else.
	fmt.Fprintf(&b, "COPY %s ./\n", spec.DependencyManifest)
	fmt.Fprintf(&b, "RUN %s\n\n", spec.InstallCommand)

	// (5) runtime binaries, then application source. The binaries land
	// after the dependency layer so a runtime release never invalidates it.
	if spec.RuntimeImage != "" {
		b.WriteString("COPY --from=slipway /usr/local/bin/slipway-launcher /usr/local/bin/slipway-supervisor /usr/local/bin/\n\n")
	}
	b.WriteString("COPY . .\n\n")

	// (6) runtime identity owns the application directory
	id := spec.Identity
	if spec.Alpine() {
		fmt.Fprintf(&b, "RUN addgroup -g %d %s \\\n    && adduser -D -H -u %d -G %s %s \\\n    && chown -R %s %s\n\n",
			id.GID, id.Group, id.UID, id.Group, id.User, id.String(), spec.AppDir)
	} else {
		fmt.Fprintf(&b, "RUN groupadd --gid %d %s \\\n    && useradd --uid %d --gid %d --no-create-home %s \\\n    && chown -R %s %s\n\n",
			id.GID, id.Group, id.UID, id.GID, id.User, id.String(), spec.AppDir)
	}
	fmt.Fprintf(&b, "USER %s\n\n", id.User)

	// (7) documented contact point
	fmt.Fprintf(&b, "EXPOSE %d\n\n", spec.Port)

	// (8) hand off to the runtime launcher
	argv, err := json.Marshal(spec.StartCommand)
	if err != nil {
		return "", fmt.Errorf("failed to encode start command: %w", err)
	}
	fmt.Fprintf(&b, "CMD %s\n", argv)

	return b.String(), nil
}

// envPairs returns the ENV assignments in deterministic order: PORT first,
// then the spec's defaults sorted by key.
func envPairs(spec domain.AppSpec) []string {
	pairs := []string{domain.EnvPort + "=" + strconv.Itoa(spec.Port)}
	keys := make([]string, 0, len(spec.EnvDefaults))
	for k := range spec.EnvDefaults {
		if k == domain.EnvPort {
			continue // already emitted from the declared port
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+"="+spec.EnvDefaults[k])
	}
	return pairs
}

package dockerfile

import (
	"errors"
	"strings"
	"testing"

	"github.com/slipway-io/slipway/internal/core/domain"
)

func TestRender_StepOrderIsFixed(t *testing.T) {
	out, err := Render(domain.DefaultPythonSpec("calc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	markers := []string{
		"FROM slipway/runtime:latest AS slipway",
		"FROM python:3.12-slim",
		"ENV",
		"WORKDIR /app",
		"apt-get install",
		"COPY requirements.txt ./",
		"RUN pip install --no-cache-dir -r requirements.txt",
		"COPY --from=slipway",
		"COPY . .",
		"groupadd --gid 1000 app",
		"USER app",
		"EXPOSE 3000",
		"CMD [\"slipway-launcher\"]",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		if idx < 0 {
			t.Fatalf("missing %q in rendered output:\n%s", m, out)
		}
		if idx <= last {
			t.Errorf("%q rendered out of order", m)
		}
		last = idx
	}
}

func TestRender_Deterministic(t *testing.T) {
	spec := domain.DefaultPythonSpec("calc")
	spec.EnvDefaults["ZZ_LAST"] = "1"
	spec.EnvDefaults["AA_FIRST"] = "1"

	first, err := Render(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Render(spec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatal("render output changed between identical specs")
		}
	}
}

func TestRender_ManifestCopiedBeforeSource(t *testing.T) {
	out, err := Render(domain.DefaultPythonSpec("calc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manifest := strings.Index(out, "COPY requirements.txt ./")
	install := strings.Index(out, "RUN pip install")
	source := strings.Index(out, "COPY . .")
	if !(manifest < install && install < source) {
		t.Errorf("dependency layer not isolated from source: manifest=%d install=%d source=%d",
			manifest, install, source)
	}
}

func TestRender_PackageCachePurgedInSameLayer(t *testing.T) {
	out, err := Render(domain.DefaultPythonSpec("calc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range splitInstructions(out) {
		if strings.Contains(line, "apt-get install") {
			if !strings.Contains(line, "rm -rf /var/lib/apt/lists/*") {
				t.Errorf("apt cache not purged in the install layer:\n%s", line)
			}
			return
		}
	}
	t.Fatal("no apt-get install instruction rendered")
}

func TestRender_AlpineUsesApk(t *testing.T) {
	spec := domain.DefaultPythonSpec("calc")
	spec.BaseImage = "python:3.12-alpine"

	out, err := Render(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "apk add --no-cache gcc") {
		t.Errorf("alpine base should install via apk --no-cache:\n%s", out)
	}
	if strings.Contains(out, "apt-get") {
		t.Error("alpine base must not use apt-get")
	}
	if !strings.Contains(out, "adduser -D -H -u 1000 -G app app") {
		t.Errorf("alpine identity not created with adduser:\n%s", out)
	}
}

func TestRender_RuntimeBinariesCopiedIntoImage(t *testing.T) {
	out, err := Render(domain.DefaultPythonSpec("calc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The CMD argv resolves against /usr/local/bin, so both binaries must
	// be staged into the image or the container dies on startup.
	copyFrom := "COPY --from=slipway /usr/local/bin/slipway-launcher /usr/local/bin/slipway-supervisor /usr/local/bin/"
	idx := strings.Index(out, copyFrom)
	if idx < 0 {
		t.Fatalf("runtime binaries not copied into the image:\n%s", out)
	}
	// After the dependency layer: a runtime release must not bust the
	// install cache.
	if install := strings.Index(out, "RUN pip install"); idx < install {
		t.Error("runtime binaries copied before the dependency layer")
	}
}

func TestRender_NoRuntimeStageForCustomEntrypoints(t *testing.T) {
	spec := domain.DefaultPythonSpec("calc")
	spec.RuntimeImage = ""
	spec.StartCommand = []string{"python", "serve.py"}

	out, err := Render(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out, "FROM ") != 1 {
		t.Errorf("expected a single-stage build:\n%s", out)
	}
	if strings.Contains(out, "--from=") {
		t.Errorf("no stage to copy from without a runtime image:\n%s", out)
	}
}

func TestRender_PortIsSingleSourceOfTruth(t *testing.T) {
	spec := domain.DefaultPythonSpec("calc")
	spec.EnvDefaults["PORT"] = "8080" // disagrees with spec.Port == 3000

	if _, err := Render(spec); !errors.Is(err, domain.ErrPortMismatch) {
		t.Fatalf("err = %v, want ErrPortMismatch", err)
	}

	spec.EnvDefaults["PORT"] = "3000"
	out, err := Render(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Count(out, "PORT=3000") != 1 {
		t.Errorf("PORT must be emitted exactly once:\n%s", out)
	}
}

func TestRender_RejectsInvalidSpecs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.AppSpec)
		want   error
	}{
		{"root user", func(s *domain.AppSpec) {
			s.Identity = domain.RuntimeIdentity{User: "root", Group: "root", UID: 0, GID: 0}
		}, domain.ErrPrivilegedUser},
		{"uid zero", func(s *domain.AppSpec) { s.Identity.UID = 0 }, domain.ErrPrivilegedUser},
		{"port out of range", func(s *domain.AppSpec) { s.Port = 0 }, domain.ErrInvalidSpec},
		{"no manifest", func(s *domain.AppSpec) { s.DependencyManifest = "" }, domain.ErrInvalidSpec},
		{"no start command", func(s *domain.AppSpec) { s.StartCommand = nil }, domain.ErrInvalidSpec},
		{"launcher without runtime image", func(s *domain.AppSpec) { s.RuntimeImage = "" }, domain.ErrInvalidSpec},
		{"relative app dir", func(s *domain.AppSpec) { s.AppDir = "app" }, domain.ErrInvalidSpec},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := domain.DefaultPythonSpec("calc")
			tc.mutate(&spec)
			if _, err := Render(spec); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// splitInstructions joins continuation lines so each element is one full
// Dockerfile instruction.
func splitInstructions(out string) []string {
	joined := strings.ReplaceAll(out, "\\\n", " ")
	return strings.Split(joined, "\n")
}

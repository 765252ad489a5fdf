package reconcile

import (
	"context"
	"strings"
	"testing"

	"github.com/pushdeploy/pushdeploy/pkg/reconcile/remotetest"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		pm          string
		expected    PackageManager
		expectError bool
	}{
		{name: "apt", pm: "apt-get", expected: PackageManagerApt},
		{name: "dnf", pm: "dnf", expected: PackageManagerDnf},
		{name: "error marker", pm: "", expectError: true},
		{name: "unsupported", pm: "pacman", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := remotetest.NewHost()
			host.PackageManager = tt.pm

			pm, err := NewPackageProbe(host).Detect(context.Background())

			if tt.expectError {
				if !IsKind(err, KindProbe) {
					t.Fatalf("expected ProbeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pm != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, pm)
			}
		})
	}
}

func TestIsInstalled(t *testing.T) {
	host := remotetest.NewHost()
	host.Installed["git"] = true
	probe := NewPackageProbe(host)
	ctx := context.Background()

	installed, err := probe.IsInstalled(ctx, PackageManagerApt, "git")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !installed {
		t.Error("expected git to be installed")
	}

	installed, err = probe.IsInstalled(ctx, PackageManagerApt, "supervisor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if installed {
		t.Error("expected supervisor to be missing")
	}
}

func TestEnsureAllInstalledFailsFast(t *testing.T) {
	host := remotetest.NewHost()
	host.Uninstallable["b"] = true

	installed, err := NewPackageProbe(host).EnsureAllInstalled(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !IsKind(err, KindDependency) {
		t.Errorf("expected DependencyError, got %v", err)
	}
	if !strings.Contains(err.Error(), `"b"`) {
		t.Errorf("expected error to name b, got %v", err)
	}

	if len(installed) != 1 || installed[0] != "a" {
		t.Errorf("expected [a] installed before the failure, got %v", installed)
	}

	privileged := host.Privileged()
	if len(privileged) != 2 {
		t.Fatalf("expected 2 install attempts, got %d: %v", len(privileged), privileged)
	}
	if !strings.HasSuffix(privileged[0], " a") || !strings.HasSuffix(privileged[1], " b") {
		t.Errorf("expected installs of a then b, got %v", privileged)
	}

	for _, cmd := range host.Commands() {
		if strings.Contains(cmd, "is_installed apt-get c") {
			t.Errorf("c must never be checked after b failed: %q", cmd)
		}
	}
}

func TestEnsureAllInstalledSkipsPresentPackages(t *testing.T) {
	host := remotetest.NewHost()
	host.Installed["supervisor"] = true
	host.Installed["git"] = true

	installed, err := NewPackageProbe(host).EnsureAllInstalled(context.Background(), []string{"supervisor", "git"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(installed) != 0 {
		t.Errorf("expected nothing installed, got %v", installed)
	}
	if len(host.Privileged()) != 0 {
		t.Errorf("expected no privileged commands, got %v", host.Privileged())
	}
}

func TestEnsureAllInstalledDetectsOnce(t *testing.T) {
	host := remotetest.NewHost()
	host.PackageManager = "yum"

	if _, err := NewPackageProbe(host).EnsureAllInstalled(context.Background(), []string{"supervisor", "git"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	detections := 0
	for _, cmd := range host.Commands() {
		if strings.Contains(cmd, "command -v") && !strings.Contains(cmd, "is_installed") {
			detections++
		}
	}
	if detections != 1 {
		t.Errorf("expected 1 detection, got %d", detections)
	}

	for _, cmd := range host.Privileged() {
		if !strings.HasPrefix(cmd, "yum install -y ") {
			t.Errorf("expected yum install, got %q", cmd)
		}
	}
}

func TestBashScriptQuoting(t *testing.T) {
	got := bashScript("echo 'hi'")
	want := `bash -c 'echo '"'"'hi'"'"''`
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

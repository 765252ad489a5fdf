package reconcile

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog/log"
)

//go:embed scripts/detect_pm.sh
var detectPMScript string

//go:embed scripts/dependencies_installed.sh
var dependenciesInstalledScript string

// PackageManager identifies the system package manager of the remote host.
type PackageManager string

const (
	PackageManagerApt    PackageManager = "apt-get"
	PackageManagerDnf    PackageManager = "dnf"
	PackageManagerYum    PackageManager = "yum"
	PackageManagerZypper PackageManager = "zypper"
)

// supportedPackageManagers lists every manager the probe knows how to drive.
var supportedPackageManagers = map[PackageManager]bool{
	PackageManagerApt:    true,
	PackageManagerDnf:    true,
	PackageManagerYum:    true,
	PackageManagerZypper: true,
}

// installedMarker is what the dependency script prints for an installed package.
const installedMarker = "0"

// PackageProbe checks and installs system packages on the remote host.
type PackageProbe struct {
	runner Runner
}

// NewPackageProbe returns a probe that runs its scripts through runner.
func NewPackageProbe(runner Runner) *PackageProbe {
	return &PackageProbe{runner: runner}
}

// Detect runs the bundled detection script and returns the package manager.
func (p *PackageProbe) Detect(ctx context.Context) (PackageManager, error) {
	result, err := p.runner.Run(ctx, bashScript(detectPMScript))
	if err != nil {
		return "", newError(KindProbe, "", err, "could not retrieve the package manager")
	}

	out := result.Out()
	switch {
	case strings.HasPrefix(out, "[ERROR]"):
		return "", newError(KindProbe, "", nil, "could not retrieve the package manager: %s", out)
	case out == "":
		return "", newError(KindProbe, "", nil, "package manager detection printed nothing: %s", result.Err())
	}

	pm := PackageManager(out)
	if !supportedPackageManagers[pm] {
		return "", newError(KindProbe, "", nil, "unsupported package manager %q", out)
	}

	log.Debug().Str("package_manager", string(pm)).Msg("detected package manager")
	return pm, nil
}

// IsInstalled reports whether dep is installed. Only an exact "0" from the
// script counts as installed.
func (p *PackageProbe) IsInstalled(ctx context.Context, pm PackageManager, dep string) (bool, error) {
	script := fmt.Sprintf("%s\nis_installed %s %s",
		dependenciesInstalledScript, shellescape.Quote(string(pm)), shellescape.Quote(dep))

	result, err := p.runner.Run(ctx, bashScript(script))
	if err != nil {
		return false, err
	}

	if errOut := result.Err(); errOut != "" {
		log.Debug().Str("dependency", dep).Str("stderr", errOut).Msg("dependency checker wrote to stderr")
	}

	return result.Out() == installedMarker, nil
}

// Install installs dep with escalated privileges. Success means the command
// produced no error output.
func (p *PackageProbe) Install(ctx context.Context, pm PackageManager, dep string) (bool, error) {
	reason := fmt.Sprintf("Missing dependency %q. Please enter password to proceed to installation.", dep)
	cmd := fmt.Sprintf("%s install -y %s", pm, shellescape.Quote(dep))

	result, err := p.runner.RunPrivileged(ctx, reason, cmd)
	if err != nil {
		return false, err
	}

	if result.Failed() {
		log.Debug().Str("dependency", dep).Str("stderr", result.Err()).Msg("install failed")
		return false, nil
	}

	return true, nil
}

// EnsureAllInstalled detects the package manager once, then checks and
// installs deps in order. It stops at the first dependency that cannot be
// installed; later ones are never attempted. The returned slice lists the
// dependencies that had to be installed.
func (p *PackageProbe) EnsureAllInstalled(ctx context.Context, deps []string) ([]string, error) {
	pm, err := p.Detect(ctx)
	if err != nil {
		return nil, err
	}

	var installed []string
	for _, dep := range deps {
		ok, err := p.IsInstalled(ctx, pm, dep)
		if err != nil {
			return installed, newError(KindDependency, "", err, "could not check dependency %q", dep)
		}
		if ok {
			continue
		}

		log.Warn().Str("dependency", dep).Msgf("Missing dependency %q, attempting to install.", dep)

		ok, err = p.Install(ctx, pm, dep)
		if err != nil {
			return installed, newError(KindDependency, "", err, "could not install dependency %q", dep)
		}
		if !ok {
			return installed, newError(KindDependency, "", nil, "could not install dependency %q", dep)
		}

		log.Info().Str("dependency", dep).Msg("dependency installed")
		installed = append(installed, dep)
	}

	return installed, nil
}

// bashScript wraps a multi-line script so it runs under bash regardless of
// the login shell.
func bashScript(script string) string {
	return "bash -c " + shellescape.Quote(script)
}

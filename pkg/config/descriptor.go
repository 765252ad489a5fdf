package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

// FileName is the descriptor looked up at the repository root.
const FileName = ".deploy"

// DefaultSSHPort is used when the descriptor omits server.port.
const DefaultSSHPort = 22

// ErrNotFound is returned by Load when the descriptor does not exist.
var ErrNotFound = errors.New("config file not found")

// Descriptor is the content of the .deploy file.
type Descriptor struct {
	// Server identifies the remote host.
	Server ServerConfig `yaml:"server" json:"server" validate:"required"`

	// Project describes what is deployed.
	Project ProjectConfig `yaml:"project" json:"project" validate:"required"`

	// Scripts are shell commands run around a deployment.
	Scripts ScriptsConfig `yaml:"scripts" json:"scripts"`

	// AutoCreate lets reconcilers create missing remote state. Defaults to true.
	AutoCreate *bool `yaml:"auto_create,omitempty" json:"auto_create,omitempty"`
}

// ServerConfig holds the remote connection settings.
type ServerConfig struct {
	// Address is a hostname or IP address.
	Address string `yaml:"address" json:"address" validate:"required,hostname_rfc1123|ip"`

	// User is the remote account that owns the deployment.
	User string `yaml:"user" json:"user" validate:"required,username"`

	// Port is the SSH port. Defaults to 22.
	Port int `yaml:"port,omitempty" json:"port,omitempty" validate:"omitempty,min=1,max=65535"`

	// IdentityFile selects a private key instead of the ssh-agent or default keys.
	IdentityFile string `yaml:"identity_file,omitempty" json:"identity_file,omitempty"`

	// StrictHostKeyChecking rejects changed host keys. Defaults to true.
	StrictHostKeyChecking *bool `yaml:"strict_host_key_checking,omitempty" json:"strict_host_key_checking,omitempty"`
}

// ProjectConfig describes the deployed project.
type ProjectConfig struct {
	// Name is the project identifier, used in remote paths and the supervisor program.
	Name string `yaml:"name" json:"name" validate:"required,projectname"`

	// Preset is the "<language>:<subset>" run preset.
	Preset string `yaml:"preset" json:"preset" validate:"required,preset"`

	// Directories are optional paths relative to the repository root.
	Directories DirectoriesConfig `yaml:"directories" json:"directories"`
}

// DirectoriesConfig holds project-relative directories.
type DirectoriesConfig struct {
	Source string `yaml:"source" json:"source"`
	Build  string `yaml:"build" json:"build"`
}

// ScriptsConfig holds commands run before and after a deployment.
type ScriptsConfig struct {
	Before []string `yaml:"before" json:"before"`
	After  []string `yaml:"after" json:"after"`
}

// Load reads, decodes and validates the descriptor at path.
// Both YAML and the legacy JSON layout are accepted.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration file %s: %w", path, err)
	}

	log.Debug().Str("path", path).Str("project", d.Project.Name).Msg("loaded descriptor")
	return d, nil
}

// Parse decodes and validates descriptor content.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor

	if json.Valid(data) {
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("could not parse JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("could not parse YAML: %w", err)
	}

	d.applyDefaults()

	if err := Validate(&d); err != nil {
		return nil, err
	}

	return &d, nil
}

// Save writes d as YAML to path.
func Save(path string, d *Descriptor) error {
	if err := Validate(d); err != nil {
		return err
	}

	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write config file to disk: %w", err)
	}
	return nil
}

func (d *Descriptor) applyDefaults() {
	d.Server.Address = strings.TrimSpace(d.Server.Address)
	d.Server.User = strings.TrimSpace(d.Server.User)
	d.Project.Name = strings.TrimSpace(d.Project.Name)

	if d.Server.Port == 0 {
		d.Server.Port = DefaultSSHPort
	}
	if d.Scripts.Before == nil {
		d.Scripts.Before = []string{}
	}
	if d.Scripts.After == nil {
		d.Scripts.After = []string{}
	}
}

// AutoCreateEnabled reports whether missing remote state may be created.
func (d *Descriptor) AutoCreateEnabled() bool {
	return d.AutoCreate == nil || *d.AutoCreate
}

// StrictHostKeys reports whether changed host keys are rejected.
func (d *Descriptor) StrictHostKeys() bool {
	return d.Server.StrictHostKeyChecking == nil || *d.Server.StrictHostKeyChecking
}

// SSHConfig builds the transport configuration for the descriptor's server.
func (d *Descriptor) SSHConfig() *ssh.Config {
	cfg := ssh.DefaultConfig(d.Server.Address, d.Server.User)
	if d.Server.Port != 0 {
		cfg.Port = d.Server.Port
	}
	cfg.StrictHostKeyChecking = d.StrictHostKeys()

	if d.Server.IdentityFile != "" {
		cfg.AuthMethod = ssh.AuthMethodKey
		cfg.PrivateKeyPath = expandHome(d.Server.IdentityFile)
	}

	return cfg
}

// RemoteHome returns the home directory of user on the remote host.
func RemoteHome(user string) string {
	if user == ssh.DefaultAdminUser {
		return "/root"
	}
	return "/home/" + user
}

// RemoteURL returns the URL of the bare repository the local "deploy"
// remote points at.
func (d *Descriptor) RemoteURL() string {
	host := d.Server.Address
	if d.Server.Port != 0 && d.Server.Port != DefaultSSHPort {
		host = fmt.Sprintf("%s:%d", host, d.Server.Port)
	}
	return fmt.Sprintf("ssh://%s@%s%s", d.Server.User, host, BarePath(d.Server.User, d.Project.Name))
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

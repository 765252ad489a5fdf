package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/pushdeploy/pushdeploy/pkg/transports/ssh"
)

const legacyJSON = `{
    "project": {
        "directories": {
            "build": "",
            "source": ""
        },
        "name": "proj",
        "preset": "java:gradle"
    },
    "scripts": {
        "after": [],
        "before": []
    },
    "server": {
        "address": "192.0.2.10",
        "user": "u"
    }
}`

const yamlDescriptor = `server:
  address: deploy.example.com
  user: deploy
  port: 2222
  identity_file: /keys/id_ed25519
  strict_host_key_checking: false
project:
  name: api
  preset: node:npm
auto_create: false
`

func TestParse(t *testing.T) {
	t.Run("legacy json", func(t *testing.T) {
		d, err := Parse([]byte(legacyJSON))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if d.Server.Address != "192.0.2.10" {
			t.Errorf("expected address 192.0.2.10, got %s", d.Server.Address)
		}
		if d.Server.Port != DefaultSSHPort {
			t.Errorf("expected default port %d, got %d", DefaultSSHPort, d.Server.Port)
		}
		if d.Project.Preset != "java:gradle" {
			t.Errorf("expected preset java:gradle, got %s", d.Project.Preset)
		}
		if !d.AutoCreateEnabled() {
			t.Error("expected auto-create to default to true")
		}
		if !d.StrictHostKeys() {
			t.Error("expected strict host key checking to default to true")
		}
	})

	t.Run("yaml", func(t *testing.T) {
		d, err := Parse([]byte(yamlDescriptor))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if d.Server.Port != 2222 {
			t.Errorf("expected port 2222, got %d", d.Server.Port)
		}
		if d.AutoCreateEnabled() {
			t.Error("expected auto-create to be disabled")
		}
		if d.StrictHostKeys() {
			t.Error("expected strict host key checking to be disabled")
		}
		if d.Scripts.Before == nil || d.Scripts.After == nil {
			t.Error("expected scripts to default to empty lists")
		}
	})
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name:     "missing address",
			content:  "server:\n  user: u\nproject:\n  name: p\n  preset: java:gradle\n",
			errorMsg: "server.address is required",
		},
		{
			name:     "invalid address",
			content:  "server:\n  address: not_a_host!\n  user: u\nproject:\n  name: p\n  preset: java:gradle\n",
			errorMsg: "server.address must be a valid IP or hostname",
		},
		{
			name:     "unknown preset",
			content:  "server:\n  address: example.com\n  user: u\nproject:\n  name: p\n  preset: cobol:make\n",
			errorMsg: `project.preset "cobol:make" does not exist`,
		},
		{
			name:     "project name with slash",
			content:  "server:\n  address: example.com\n  user: u\nproject:\n  name: ../etc\n  preset: java:gradle\n",
			errorMsg: "project.name",
		},
		{
			name:     "port out of range",
			content:  "server:\n  address: example.com\n  user: u\n  port: 70000\nproject:\n  name: p\n  preset: java:gradle\n",
			errorMsg: "server.port must be between 1 and 65535",
		},
		{
			name:     "malformed json",
			content:  `{"server": {"address": }`,
			errorMsg: "could not parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	autoCreate := false

	original := &Descriptor{
		Server:     ServerConfig{Address: "example.com", User: "deploy", Port: 22},
		Project:    ProjectConfig{Name: "api", Preset: "shell:script"},
		Scripts:    ScriptsConfig{Before: []string{}, After: []string{"make notify"}},
		AutoCreate: &autoCreate,
	}

	if err := Save(path, original); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if !strings.Contains(string(data), "preset: shell:script") {
		t.Errorf("expected YAML output, got:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Project.Name != "api" || loaded.Server.User != "deploy" {
		t.Errorf("unexpected descriptor after reload: %+v", loaded)
	}
	if loaded.AutoCreateEnabled() {
		t.Error("expected auto_create=false to survive a save")
	}
	if len(loaded.Scripts.After) != 1 || loaded.Scripts.After[0] != "make notify" {
		t.Errorf("expected after scripts to survive, got %v", loaded.Scripts.After)
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	err := Save(path, &Descriptor{Project: ProjectConfig{Name: "api", Preset: "java:gradle"}})
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("expected nothing to be written for an invalid descriptor")
	}
}

func TestSSHConfig(t *testing.T) {
	d, err := Parse([]byte(yamlDescriptor))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := d.SSHConfig()

	if cfg.Host != "deploy.example.com" || cfg.User != "deploy" || cfg.Port != 2222 {
		t.Errorf("unexpected target %s@%s:%d", cfg.User, cfg.Host, cfg.Port)
	}
	if cfg.AuthMethod != ssh.AuthMethodKey || cfg.PrivateKeyPath != "/keys/id_ed25519" {
		t.Errorf("expected key auth with identity file, got %s %s", cfg.AuthMethod, cfg.PrivateKeyPath)
	}
	if cfg.StrictHostKeyChecking {
		t.Error("expected strict host key checking to be disabled")
	}
}

func TestRemoteURL(t *testing.T) {
	tests := []struct {
		user     string
		port     int
		expected string
	}{
		{user: "u", port: 22, expected: "ssh://u@example.com/home/u/.deploy/proj/src.git"},
		{user: "root", port: 22, expected: "ssh://root@example.com/root/.deploy/proj/src.git"},
		{user: "u", port: 2222, expected: "ssh://u@example.com:2222/home/u/.deploy/proj/src.git"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			d := &Descriptor{
				Server:  ServerConfig{Address: "example.com", User: tt.user, Port: tt.port},
				Project: ProjectConfig{Name: "proj", Preset: "java:gradle"},
			}
			if got := d.RemoteURL(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		address string
		valid   bool
	}{
		{address: "example.com", valid: true},
		{address: "192.0.2.10", valid: true},
		{address: "localhost", valid: true},
		{address: "", valid: false},
		{address: "bad host", valid: false},
	}

	for _, tt := range tests {
		if got := ValidAddress(tt.address); got != tt.valid {
			t.Errorf("ValidAddress(%q) = %v, want %v", tt.address, got, tt.valid)
		}
	}
}

func TestValidUser(t *testing.T) {
	tests := []struct {
		user  string
		valid bool
	}{
		{user: "deploy", valid: true},
		{user: "_svc", valid: true},
		{user: "web-1", valid: true},
		{user: "", valid: false},
		{user: "Deploy", valid: false},
		{user: "bad user", valid: false},
	}

	for _, tt := range tests {
		if got := ValidUser(tt.user); got != tt.valid {
			t.Errorf("ValidUser(%q) = %v, want %v", tt.user, got, tt.valid)
		}
	}
}

func TestDescriptorValidatorTags(t *testing.T) {
	v, err := newDescriptorValidator()
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}

	tests := []struct {
		tag  string
		good string
		bad  string
	}{
		{tag: "preset", good: "node:npm", bad: "ruby:rails"},
		{tag: "projectname", good: "api-v2", bad: "-api"},
		{tag: "username", good: "deploy", bad: "Deploy"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if err := v.Var(tt.good, tt.tag); err != nil {
				t.Errorf("expected %q to pass, got %v", tt.good, err)
			}
			if err := v.Var(tt.bad, tt.tag); err == nil {
				t.Errorf("expected %q to fail", tt.bad)
			}
		})
	}
}

func TestDescriptorValidatorRegistrationError(t *testing.T) {
	descriptorTags[""] = func(validator.FieldLevel) bool { return true }
	t.Cleanup(func() { delete(descriptorTags, "") })

	if _, err := newDescriptorValidator(); err == nil {
		t.Error("expected an empty tag to fail registration")
	}
}

package prompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	nonEmpty := func(s string) bool { return s != "" }

	tests := []struct {
		name     string
		input    string
		def      string
		validate func(string) bool
		expected string
		rejected int
	}{
		{name: "plain answer", input: "proj\n", expected: "proj"},
		{name: "default on empty", input: "\n", def: "cwd", validate: nonEmpty, expected: "cwd"},
		{name: "answer overrides default", input: "other\n", def: "cwd", expected: "other"},
		{name: "re-prompts until valid", input: "\n\nproj\n", validate: nonEmpty, expected: "proj", rejected: 2},
		{name: "last line without newline", input: "proj", expected: "proj"},
		{name: "crlf input", input: "proj\r\n", expected: "proj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out)

			got, err := p.String("Enter the project's name.", tt.def, tt.validate, "The project field cannot be empty.")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if n := strings.Count(out.String(), "cannot be empty"); n != tt.rejected {
				t.Errorf("expected %d rejections, got %d", tt.rejected, n)
			}
		})
	}
}

func TestStringShowsDefault(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("\n"), &out)

	if _, err := p.String("Enter the project's name.", "myapp", nil, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "Enter the project's name. (myapp)") {
		t.Errorf("expected default in label, got %q", out.String())
	}
}

func TestStringEOF(t *testing.T) {
	p := New(strings.NewReader(""), &bytes.Buffer{})

	_, err := p.String("label", "", func(string) bool { return false }, "")
	if !errors.Is(err, ErrNoInput) {
		t.Errorf("expected ErrNoInput, got %v", err)
	}
}

func TestSecretWithoutTerminal(t *testing.T) {
	var out bytes.Buffer
	p := New(strings.NewReader("s3cret\n"), &out)

	got, err := p.Secret("Password:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("expected s3cret, got %q", got)
	}
	if strings.Contains(out.String(), "s3cret") {
		t.Error("secret must not be echoed")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input    string
		def      bool
		expected bool
	}{
		{"y\n", false, true},
		{"NO\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\nyes\n", false, true},
	}

	for _, tt := range tests {
		p := New(strings.NewReader(tt.input), &bytes.Buffer{})
		got, err := p.Confirm("Overwrite?", tt.def)
		if err != nil {
			t.Fatalf("input %q: unexpected error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Errorf("input %q: expected %v, got %v", tt.input, tt.expected, got)
		}
	}
}

// Package prompt reads operator input from the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoInput is returned when the input stream ends before an answer is given.
var ErrNoInput = errors.New("no input")

// Prompter asks questions on out and reads answers from in.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	masked bool
}

// New creates a prompter. Secrets are read without echo when in is a terminal.
func New(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.masked = true
	}
	return p
}

// String asks label until validate accepts the answer. An empty answer
// selects def when def is not empty. errMsg is printed after a rejected answer.
func (p *Prompter) String(label, def string, validate func(string) bool, errMsg string) (string, error) {
	for {
		if def != "" {
			fmt.Fprintf(p.out, "%s (%s)\n", label, def)
		} else {
			fmt.Fprintln(p.out, label)
		}

		answer, err := p.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" && def != "" {
			answer = def
		}

		if validate == nil || validate(answer) {
			return answer, nil
		}
		if errMsg != "" {
			fmt.Fprintln(p.out, errMsg)
		}
	}
}

// Secret asks label and reads the answer without echo.
func (p *Prompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s ", label)

	if !p.masked {
		answer, err := p.readLine()
		fmt.Fprintln(p.out)
		return answer, err
	}

	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return string(secret), nil
}

// Confirm asks a yes/no question. An empty answer selects def.
func (p *Prompter) Confirm(label string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	answer, err := p.String(label+" ["+hint+"]", "", func(s string) bool {
		switch strings.ToLower(s) {
		case "", "y", "yes", "n", "no":
			return true
		}
		return false
	}, "Please answer yes or no.")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return def, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		return "", ErrNoInput
	}
	return strings.TrimRight(line, "\r\n"), nil
}

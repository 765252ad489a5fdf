package presets

import (
	"bytes"
	"fmt"
	"text/template"
)

// Program holds what the supervisor config needs to know about a project.
type Program struct {
	// Name is the project name; it becomes the [program:<name>] section.
	Name string

	// User is the remote account the program runs as.
	User string

	// Directory is the working directory of the program.
	Directory string

	// Preset supplies the command and environment.
	Preset Preset
}

const supervisorTemplate = `[program:{{.Name}}]
command = {{.Command}}
autostart = true
autorestart = true
startretries = 10
user = {{.User}}
directory = {{.Directory}}
redirect_stderr = true
stdout_logfile = /var/log/supervisor/{{.Name}}.log
stdout_logfile_maxbytes = 50MB
stdout_logfile_backups = 10
environment = {{.Environment}}

`

var supervisorTmpl = template.Must(template.New("supervisor").Parse(supervisorTemplate))

// RenderSupervisorConfig renders the supervisor program section for p.
// The output is deterministic so it can be compared byte-for-byte with the
// config already on the host.
func RenderSupervisorConfig(p Program) (string, error) {
	if p.Name == "" || p.User == "" || p.Directory == "" {
		return "", fmt.Errorf("program name, user and directory are required")
	}
	if p.Preset == nil {
		return "", fmt.Errorf("program %s has no preset", p.Name)
	}

	var buf bytes.Buffer
	err := supervisorTmpl.Execute(&buf, struct {
		Name        string
		Command     string
		User        string
		Directory   string
		Environment string
	}{
		Name:        p.Name,
		Command:     p.Preset.RunCommand(),
		User:        p.User,
		Directory:   p.Directory,
		Environment: p.Preset.Environment(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render supervisor config for %s: %w", p.Name, err)
	}

	return buf.String(), nil
}

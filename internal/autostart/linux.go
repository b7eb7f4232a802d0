package autostart

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/afero"
)

const serviceTemplate = `[Unit]
Description=mirrord directory mirroring daemon

[Service]
ExecStart={{.ExecPath}}{{range .Args}} {{.}}{{end}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

var unitTmpl = template.Must(template.New("service").Parse(serviceTemplate))

// LinuxAutoStarter manages a systemd user unit.
type LinuxAutoStarter struct {
	fs  afero.Fs
	dir string
	run commandRunner
}

func NewLinuxAutoStarter() *LinuxAutoStarter {
	return &LinuxAutoStarter{
		fs:  afero.NewOsFs(),
		run: runCommand,
	}
}

func (l *LinuxAutoStarter) unit() string {
	return serviceName + ".service"
}

func (l *LinuxAutoStarter) servicePath() (string, error) {
	dir := l.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".config", "systemd", "user")
	}

	if err := l.fs.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(dir, l.unit()), nil
}

func (l *LinuxAutoStarter) Install(execPath string, args ...string) error {
	path, err := l.servicePath()
	if err != nil {
		return err
	}

	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = systemdQuote(arg)
	}

	var buf bytes.Buffer
	if err := unitTmpl.Execute(&buf, map[string]any{"ExecPath": systemdQuote(execPath), "Args": quoted}); err != nil {
		return fmt.Errorf("failed to render service file: %w", err)
	}

	if err := afero.WriteFile(l.fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}

	cmds := [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", l.unit()},
		{"systemctl", "--user", "start", l.unit()},
	}

	for _, args := range cmds {
		if out, err := l.run(args[0], args[1:]...); err != nil {
			return fmt.Errorf("failed to run %v: %w\n%s", args, err, out)
		}
	}

	return nil
}

var (
	systemdSpecifiers = strings.NewReplacer("%", "%%", "$", "$$")
	systemdEscaper    = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// systemdQuote renders arg as one word of an ExecStart line. Specifiers and
// variable expansion are escaped; words with blanks or quotes are
// double-quoted.
func systemdQuote(arg string) string {
	arg = systemdSpecifiers.Replace(arg)
	if arg != "" && !strings.ContainsAny(arg, " \t\n\"'\\;") {
		return arg
	}

	return `"` + systemdEscaper.Replace(arg) + `"`
}

func (l *LinuxAutoStarter) Uninstall() error {
	cmds := [][]string{
		{"systemctl", "--user", "stop", l.unit()},
		{"systemctl", "--user", "disable", l.unit()},
	}

	for _, args := range cmds {
		_, _ = l.run(args[0], args[1:]...)
	}

	path, err := l.servicePath()
	if err != nil {
		return err
	}

	if err := l.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

func (l *LinuxAutoStarter) IsInstalled() (bool, error) {
	path, err := l.servicePath()
	if err != nil {
		return false, err
	}

	return afero.Exists(l.fs, path)
}

package autostart

import (
	"fmt"
	"strings"
)

const taskName = "MirrordDaemon"

// WindowsAutoStarter registers a scheduled task that runs on logon.
type WindowsAutoStarter struct {
	run commandRunner
}

func (w *WindowsAutoStarter) Install(execPath string, args ...string) error {
	words := []string{`"` + execPath + `"`}
	for _, arg := range args {
		words = append(words, windowsQuote(arg))
	}
	action := strings.Join(words, " ")

	out, err := w.run("schtasks", "/create",
		"/TN", taskName,
		"/TR", action,
		"/SC", "ONLOGON",
		"/F")
	if err != nil {
		return fmt.Errorf("failed to register task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) Uninstall() error {
	out, err := w.run("schtasks", "/DELETE", "/TN", taskName, "/F")
	if err != nil {
		return fmt.Errorf("failed to remove task: %w\n%s", err, out)
	}

	return nil
}

func (w *WindowsAutoStarter) IsInstalled() (bool, error) {
	if _, err := w.run("schtasks", "/Query", "/TN", taskName); err != nil {
		return false, nil
	}

	return true, nil
}

// windowsQuote quotes arg so that CommandLineToArgvW reads it back as a
// single argument.
func windowsQuote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"") {
		return arg
	}

	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for _, c := range arg {
		switch c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes*2+1))
			slashes = 0
		default:
			b.WriteString(strings.Repeat(`\`, slashes))
			slashes = 0
		}
		if c != '\\' {
			b.WriteRune(c)
		}
	}
	b.WriteString(strings.Repeat(`\`, slashes*2))
	b.WriteByte('"')

	return b.String()
}

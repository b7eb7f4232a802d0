package autostart

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls [][]string
	fail  string
}

func (r *recorder) run(name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	if r.fail != "" && strings.Contains(strings.Join(call, " "), r.fail) {
		return []byte("boom"), errors.New("exit status 1")
	}
	return nil, nil
}

func newTestLinux(rec *recorder) *LinuxAutoStarter {
	return &LinuxAutoStarter{
		fs:  afero.NewMemMapFs(),
		dir: "/home/user/.config/systemd/user",
		run: rec.run,
	}
}

func TestLinuxInstall(t *testing.T) {
	rec := &recorder{}
	l := newTestLinux(rec)

	require.NoError(t, l.Install("/usr/local/bin/mirrord", "watch", "--config", "/etc/mirrord config.yaml"))

	data, err := afero.ReadFile(l.fs, filepath.Join(l.dir, "mirrord.service"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Service]")
	assert.Contains(t, string(data), `ExecStart=/usr/local/bin/mirrord watch --config "/etc/mirrord config.yaml"`)

	require.Len(t, rec.calls, 3)
	assert.Equal(t, []string{"systemctl", "--user", "enable", "mirrord.service"}, rec.calls[1])

	installed, err := l.IsInstalled()
	require.NoError(t, err)
	assert.True(t, installed)
}

func TestLinuxInstallCommandFailure(t *testing.T) {
	rec := &recorder{fail: "enable"}
	l := newTestLinux(rec)

	err := l.Install("/usr/local/bin/mirrord", "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, rec.calls, 2)
}

func TestLinuxUninstall(t *testing.T) {
	rec := &recorder{}
	l := newTestLinux(rec)
	require.NoError(t, l.Install("/usr/local/bin/mirrord", "watch"))

	require.NoError(t, l.Uninstall())

	installed, err := l.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)

	// a second uninstall finds nothing to remove
	assert.NoError(t, l.Uninstall())
}

func TestWindowsInstall(t *testing.T) {
	rec := &recorder{}
	w := &WindowsAutoStarter{run: rec.run}

	require.NoError(t, w.Install(`C:\bin\mirrord.exe`, "watch"))
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], `"C:\bin\mirrord.exe" watch`)

	installed, err := w.IsInstalled()
	require.NoError(t, err)
	assert.True(t, installed)

	rec.fail = "/Query"
	installed, err = w.IsInstalled()
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestWindowsInstallQuotesArguments(t *testing.T) {
	rec := &recorder{}
	w := &WindowsAutoStarter{run: rec.run}

	require.NoError(t, w.Install(`C:\Program Files\mirrord\mirrord.exe`, "watch", "--config", `C:\Users\me\My Config\config.yaml`))
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0], `"C:\Program Files\mirrord\mirrord.exe" watch --config "C:\Users\me\My Config\config.yaml"`)
}

func TestSystemdQuote(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{arg: "watch", want: "watch"},
		{arg: "/etc/mirrord config.yaml", want: `"/etc/mirrord config.yaml"`},
		{arg: `say "hi"`, want: `"say \"hi\""`},
		{arg: `C:\dir`, want: `"C:\\dir"`},
		{arg: "100%", want: "100%%"},
		{arg: "$HOME/x", want: "$$HOME/x"},
		{arg: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			assert.Equal(t, tt.want, systemdQuote(tt.arg))
		})
	}
}

func TestWindowsQuote(t *testing.T) {
	tests := []struct {
		arg  string
		want string
	}{
		{arg: "watch", want: "watch"},
		{arg: `C:\dir\f.yaml`, want: `C:\dir\f.yaml`},
		{arg: `C:\My Dir\f.yaml`, want: `"C:\My Dir\f.yaml"`},
		{arg: `C:\My Dir\`, want: `"C:\My Dir\\"`},
		{arg: `say "hi"`, want: `"say \"hi\""`},
		{arg: `a\"b`, want: `"a\\\"b"`},
		{arg: "", want: `""`},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			assert.Equal(t, tt.want, windowsQuote(tt.arg))
		})
	}
}

package svcsched

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DriverSystemctl drives systemd units by executing systemctl. It is
// the fallback for hosts where the supervisor cannot reach the system
// bus directly.
type DriverSystemctl struct {
	// UseSudo indicates whether to prefix systemctl commands with sudo
	UseSudo bool

	// SudoCommand is the sudo command to use (default: "sudo")
	SudoCommand string

	// SystemctlPath is the path to the systemctl binary
	SystemctlPath string

	// Timeout bounds each systemctl invocation
	Timeout time.Duration
}

// NewDriverSystemctl creates a systemctl-backed driver. Sudo is enabled
// automatically when the process is not running as root.
func NewDriverSystemctl() *DriverSystemctl {
	return &DriverSystemctl{
		UseSudo:       os.Geteuid() != 0,
		SudoCommand:   "sudo",
		SystemctlPath: "systemctl",
		Timeout:       10 * time.Second,
	}
}

// execSystemctl executes a systemctl command with optional sudo
func (d *DriverSystemctl) execSystemctl(ctx context.Context, args ...string) (string, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if d.UseSudo {
		sudoArgs := append([]string{d.SystemctlPath}, args...)
		cmd = exec.CommandContext(ctx, d.SudoCommand, sudoArgs...)
	} else {
		cmd = exec.CommandContext(ctx, d.SystemctlPath, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// Start starts the unit
func (d *DriverSystemctl) Start(ctx context.Context, name string) error {
	if _, err := d.execSystemctl(ctx, "start", name); err != nil {
		return &OpError{Op: OpStart, Unit: name, Err: err}
	}
	return nil
}

// Stop stops the unit
func (d *DriverSystemctl) Stop(ctx context.Context, name string) error {
	if _, err := d.execSystemctl(ctx, "stop", name); err != nil {
		return &OpError{Op: OpStop, Unit: name, Err: err}
	}
	return nil
}

// Restart restarts the unit
func (d *DriverSystemctl) Restart(ctx context.Context, name string) error {
	if _, err := d.execSystemctl(ctx, "restart", name); err != nil {
		return &OpError{Op: OpRestart, Unit: name, Err: err}
	}
	return nil
}

// Status returns the unit's ActiveState as reported by systemctl show.
// systemctl show succeeds even for units that are not loaded, reporting
// them as inactive, which matches the supervisor's posture of treating
// unknown units as stoppable/startable rather than fatal.
func (d *DriverSystemctl) Status(ctx context.Context, name string) (string, error) {
	output, err := d.execSystemctl(ctx, "show", "--no-page", "--property=ActiveState", name)
	if err != nil {
		return "", &OpError{Op: OpStatus, Unit: name, Err: err}
	}

	for _, line := range strings.Split(output, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if found && key == "ActiveState" && value != "" {
			return value, nil
		}
	}

	return activeStateInactive, nil
}

// Close is a no-op; each invocation spawns its own process.
func (d *DriverSystemctl) Close() error {
	return nil
}

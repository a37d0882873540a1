package svcsched

import (
	"context"
	"fmt"

	systemd "github.com/coreos/go-systemd/v22/dbus"
)

// jobModeReplace queues the new job, replacing any conflicting pending job.
const jobModeReplace = "replace"

// DriverDBus drives systemd units over the system bus. The connection
// is established once and held open for the lifetime of the driver;
// the supervision loop is its only caller.
type DriverDBus struct {
	conn *systemd.Conn
}

// NewDriverDBus connects to the systemd manager on the system bus.
func NewDriverDBus(ctx context.Context) (*DriverDBus, error) {
	conn, err := systemd.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	return &DriverDBus{conn: conn}, nil
}

// Start calls StartUnit with mode replace. The returned job is not
// awaited; the supervisor's settle windows absorb activation time.
func (d *DriverDBus) Start(ctx context.Context, name string) error {
	if _, err := d.conn.StartUnitContext(ctx, name, jobModeReplace, nil); err != nil {
		return &OpError{Op: OpStart, Unit: name, Err: err}
	}
	return nil
}

// Stop calls StopUnit with mode replace.
func (d *DriverDBus) Stop(ctx context.Context, name string) error {
	if _, err := d.conn.StopUnitContext(ctx, name, jobModeReplace, nil); err != nil {
		return &OpError{Op: OpStop, Unit: name, Err: err}
	}
	return nil
}

// Restart calls RestartUnit with mode replace.
func (d *DriverDBus) Restart(ctx context.Context, name string) error {
	if _, err := d.conn.RestartUnitContext(ctx, name, jobModeReplace, nil); err != nil {
		return &OpError{Op: OpRestart, Unit: name, Err: err}
	}
	return nil
}

// Status returns the unit's ActiveState property. The property path is
// derived from the unit name, so the query works even for units systemd
// has not loaded; a never-started unit reports inactive.
func (d *DriverDBus) Status(ctx context.Context, name string) (string, error) {
	prop, err := d.conn.GetUnitPropertyContext(ctx, name, "ActiveState")
	if err != nil {
		return "", &OpError{Op: OpStatus, Unit: name, Err: err}
	}

	state, ok := prop.Value.Value().(string)
	if !ok || state == "" {
		return activeStateInactive, nil
	}
	return state, nil
}

// Close releases the bus connection.
func (d *DriverDBus) Close() error {
	d.conn.Close()
	return nil
}

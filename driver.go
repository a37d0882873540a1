package svcsched

import (
	"context"
	"strings"
)

// unitSuffix is appended to unit names that carry no extension.
const unitSuffix = ".service"

// UnitDriver is the capability set the supervisor needs from the init
// system. The production implementations talk to systemd; tests
// substitute ScriptedDriver to replay canned responses.
type UnitDriver interface {
	// Start activates the unit
	Start(ctx context.Context, name string) error
	// Stop deactivates the unit
	Stop(ctx context.Context, name string) error
	// Restart cycles the unit
	Restart(ctx context.Context, name string) error
	// Status returns the unit's raw ActiveState string
	Status(ctx context.Context, name string) (string, error)
	// Close releases the driver's connection to the init system
	Close() error
}

// DriverKind selects a UnitDriver implementation
type DriverKind string

const (
	// DriverKindDBus talks to systemd over the system bus
	DriverKindDBus DriverKind = "dbus"
	// DriverKindSystemctl shells out to systemctl
	DriverKindSystemctl DriverKind = "systemctl"
)

// NewUnitDriver creates a driver of the given kind. An empty kind
// selects the system bus driver.
func NewUnitDriver(ctx context.Context, kind DriverKind) (UnitDriver, error) {
	switch kind {
	case DriverKindDBus, "":
		return NewDriverDBus(ctx)
	case DriverKindSystemctl:
		return NewDriverSystemctl(), nil
	default:
		return nil, &OpError{Op: OpUnknown, Unit: string(kind), Err: ErrUnknownDriver}
	}
}

// NormalizeUnitName appends the ".service" suffix when the name carries
// no extension. Names that already contain a dot pass through
// unchanged, so timers, sockets, and templated units keep their type.
func NormalizeUnitName(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + unitSuffix
}

package svcsched

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedDriver is a UnitDriver double that replays canned ActiveState
// strings and records every call in order. It lets the supervision loop
// be exercised without a reachable init system.
type ScriptedDriver struct {
	mu sync.Mutex

	// states maps unit name to the ActiveState returned by Status
	states map[string]string

	// fail maps "op unit" keys to errors to inject
	fail map[string]error

	// calls records every operation as "op unit" in invocation order
	calls []string
}

// NewScriptedDriver creates an empty scripted driver. Units without a
// scripted state report inactive.
func NewScriptedDriver() *ScriptedDriver {
	return &ScriptedDriver{
		states: make(map[string]string),
		fail:   make(map[string]error),
	}
}

// SetState scripts the ActiveState Status reports for the unit.
func (d *ScriptedDriver) SetState(name, activeState string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[name] = activeState
}

// FailNext injects an error for the given operation on the unit.
func (d *ScriptedDriver) FailNext(op Operation, name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[callKey(op, name)] = err
}

// Calls returns a copy of the recorded call log.
func (d *ScriptedDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// Reset clears the recorded call log, keeping scripted states.
func (d *ScriptedDriver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func callKey(op Operation, name string) string {
	return fmt.Sprintf("%s %s", op, name)
}

func (d *ScriptedDriver) record(op Operation, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := callKey(op, name)
	d.calls = append(d.calls, key)

	if err, ok := d.fail[key]; ok {
		delete(d.fail, key)
		return &OpError{Op: op, Unit: name, Err: err}
	}
	return nil
}

// Start records the call and marks the unit active unless scripted to fail.
func (d *ScriptedDriver) Start(_ context.Context, name string) error {
	if err := d.record(OpStart, name); err != nil {
		return err
	}
	d.SetState(name, activeStateActive)
	return nil
}

// Stop records the call and marks the unit inactive unless scripted to fail.
func (d *ScriptedDriver) Stop(_ context.Context, name string) error {
	if err := d.record(OpStop, name); err != nil {
		return err
	}
	d.SetState(name, activeStateInactive)
	return nil
}

// Restart records the call and marks the unit active unless scripted to fail.
func (d *ScriptedDriver) Restart(_ context.Context, name string) error {
	if err := d.record(OpRestart, name); err != nil {
		return err
	}
	d.SetState(name, activeStateActive)
	return nil
}

// Status records the call and returns the scripted state.
func (d *ScriptedDriver) Status(_ context.Context, name string) (string, error) {
	if err := d.record(OpStatus, name); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	state, ok := d.states[name]
	if !ok {
		return activeStateInactive, nil
	}
	return state, nil
}

// Close is a no-op.
func (d *ScriptedDriver) Close() error {
	return nil
}

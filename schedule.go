package svcsched

// UnitSchedule is one supervised unit: its declared schedule plus the
// state the reconciliation loop tracks for it. The supervisor owns all
// schedules exclusively; nothing else mutates them.
type UnitSchedule struct {
	// Name is the normalized unit name, e.g. "feed-gateway.service"
	Name string

	// RequiredWorkday keeps the unit inactive on non-working days
	// regardless of its window
	RequiredWorkday bool

	// Dependents are units stopped before, and started after, this
	// unit's daily restart, in declaration order. They are name
	// references resolved at traversal time, never embedded pointers.
	Dependents []string

	// Range holds today's anchored window and restart instant
	Range *TimeRange

	// state is the supervisor's last observation of the unit
	state UnitState

	// restartedToday latches after the daily restart fires; cleared at
	// day rollover
	restartedToday bool
}

// State returns the supervisor's last observation of the unit.
func (u *UnitSchedule) State() UnitState {
	return u.state
}

// RestartedToday reports whether the daily restart already fired.
func (u *UnitSchedule) RestartedToday() bool {
	return u.restartedToday
}

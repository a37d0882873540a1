package svcsched

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

// maxDependencyDepth bounds recursion over dependent units. A config
// typo that closes a cycle is logged and descent stops, instead of
// recursing forever.
const maxDependencyDepth = 8

// Supervisor owns the configured unit schedules for the process
// lifetime and reconciles observed unit state against them on a fixed
// tick. All transitions are strictly serialized; the loop runs on one
// goroutine and is the only mutator of schedule state.
type Supervisor struct {
	configPath string
	cachePath  string
	logDir     string

	units  []*UnitSchedule
	byName map[string]*UnitSchedule

	driver  UnitDriver
	oracle  *CalendarClient
	janitor *Janitor
	logFile *LogWriter
	log     zerolog.Logger

	stop *stopper.Context
	now  func() time.Time

	// tickEvery and settleFor default to the fixed production
	// intervals; tests shorten them
	tickEvery time.Duration
	settleFor time.Duration

	logInjected bool
	workingDay  bool
	lastDate    string
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithConfigPath overrides the configuration file location
func WithConfigPath(path string) Option {
	return func(s *Supervisor) {
		s.configPath = path
	}
}

// WithCachePath overrides the calendar cache location
func WithCachePath(path string) Option {
	return func(s *Supervisor) {
		s.cachePath = path
	}
}

// WithLogDir overrides the log directory
func WithLogDir(dir string) Option {
	return func(s *Supervisor) {
		s.logDir = dir
	}
}

// WithDriver injects a UnitDriver, bypassing the factory. Tests use
// this to supply a ScriptedDriver.
func WithDriver(d UnitDriver) Option {
	return func(s *Supervisor) {
		s.driver = d
	}
}

// WithCalendar injects a calendar client
func WithCalendar(c *CalendarClient) Option {
	return func(s *Supervisor) {
		s.oracle = c
	}
}

// WithClock injects the time source used for scheduling decisions
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// WithLogger injects a logger, bypassing the day-file writer
func WithLogger(log zerolog.Logger) Option {
	return func(s *Supervisor) {
		s.log = log
		s.logInjected = true
	}
}

// New creates a Supervisor with the default ./svcm layout. Prepare must
// be called before Block.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		configPath: DefaultConfigPath,
		cachePath:  DefaultCachePath,
		logDir:     DefaultLogDir,
		stop:       stopper.WithContext(context.Background()),
		now:        time.Now,
		tickEvery:  tickInterval,
		settleFor:  settleInterval,
		log:        zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Prepare loads and validates the configuration, normalizes unit and
// dependent names, constructs the driver, calendar client, and janitor,
// and runs one janitor pass. Configuration errors are fatal and
// returned to the caller.
func (s *Supervisor) Prepare() error {
	if !s.logInjected {
		s.logFile = NewLogWriter(s.logDir)
		if err := s.logFile.Open(); err != nil {
			return err
		}
		s.log = NewLogger(s.logFile)
	}

	s.log.Info().Msg("preparing service scheduler")

	cfg, err := LoadConfig(s.configPath)
	if err != nil {
		s.log.Error().Err(err).Msg("configuration error")
		return err
	}

	units, err := BuildSchedules(cfg, s.now())
	if err != nil {
		s.log.Error().Err(err).Msg("configuration error")
		return err
	}
	s.units = units
	s.byName = make(map[string]*UnitSchedule, len(units))
	for _, u := range units {
		s.byName[u.Name] = u
	}

	s.janitor = NewJanitor(SweepConfigs(cfg), s.log)
	s.janitor.now = s.now

	if s.driver == nil {
		driver, err := NewUnitDriver(s.stop, DriverKind(cfg.Driver))
		if err != nil {
			s.log.Error().Err(err).Msg("driver error")
			return err
		}
		s.driver = driver
	}

	if s.oracle == nil {
		s.oracle = NewCalendarClient(cfg.HTTP.Server, cfg.HTTP.Port, s.cachePath, s.log)
	}
	s.oracle.now = s.now

	if !s.janitor.IsEmpty() {
		s.janitor.Clean()
	}

	return nil
}

// Block runs the daily cycle until Exit is called. It returns an error
// only when the very first working-day resolution fails against both
// the endpoint and the cache; every later failure is logged and the
// loop carries on with the previous working-day value.
func (s *Supervisor) Block() error {
	s.lastDate = currentDate(s.now())

	if err := s.resolveWorkingDay(); err != nil {
		s.log.Error().Err(err).Str("date", s.lastDate).Msg("failed to load day status")
		return err
	}

	s.seedObservedStates()

	s.log.Info().
		Int("units", len(s.units)).
		Dur("tick", s.tickEvery).
		Msg("starting supervision loop")

	for !s.stop.IsStopping() {
		s.tick(s.now())

		if !waitOrCancel(s.stop, s.tickEvery) {
			break
		}

		s.rollover()
	}

	s.log.Info().Msg("supervision loop exited")
	return nil
}

// Exit requests cooperative shutdown: in-progress waits return
// immediately and the loop terminates after unwinding. Safe to call
// from the signal path.
func (s *Supervisor) Exit() {
	s.log.Info().Msg("service scheduler exiting")
	s.stop.Stop(exitGrace)
}

// Close releases the driver connection and the log file. Call after
// Block has returned.
func (s *Supervisor) Close() {
	if s.driver != nil {
		_ = s.driver.Close()
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
}

// Logger exposes the supervisor's logger so the process entry can log
// through the same day file.
func (s *Supervisor) Logger() zerolog.Logger {
	return s.log
}

// WorkingDay reports whether today was resolved as a working day.
func (s *Supervisor) WorkingDay() bool {
	return s.workingDay
}

// resolveWorkingDay refreshes the working-day flag: endpoint first,
// same-day cache second. Today is a working day exactly when the next
// working date the calendar returns is today. A successful fetch is
// persisted to the cache.
func (s *Supervisor) resolveWorkingDay() error {
	today := currentDate(s.now())

	date, err := s.oracle.NextWorkingDate(s.stop)
	if err != nil {
		s.log.Error().Err(err).Msg("calendar endpoint unavailable; trying cache")

		cached, cacheErr := s.oracle.CachedDate()
		if cacheErr != nil {
			s.log.Error().Err(cacheErr).Msg("calendar cache unusable")
			return fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
		}

		s.setWorkingDay(today, cached)
		return nil
	}

	s.setWorkingDay(today, date)
	s.oracle.WriteCache(date)
	return nil
}

func (s *Supervisor) setWorkingDay(today, nextWorkingDate string) {
	s.workingDay = nextWorkingDate == today

	s.log.Info().
		Str("date", today).
		Bool("working_day", s.workingDay).
		Msg("day status resolved")

	if !s.workingDay {
		s.log.Info().Str("date", nextWorkingDate).Msg("next working day")
	}
}

// seedObservedStates queries the driver once per unit and records the
// result, so the first tick starts from live state rather than zero
// values.
func (s *Supervisor) seedObservedStates() {
	for _, u := range s.units {
		s.log.Debug().Str("unit", u.Name).Msg("preparing unit")
		u.Range.Log(s.log)

		u.state = s.liveState(u.Name)
		s.log.Debug().Str("unit", u.Name).Stringer("state", u.state).Msg("unit state seeded")
	}
}

// rollover re-plans the day when the local date has changed since the
// last tick: refresh the working-day flag, renew the log file, run the
// janitor, re-anchor every window, clear the restart latches, and
// re-seed observed state. A calendar failure here is never fatal; the
// previous working-day value sticks.
func (s *Supervisor) rollover() {
	today := currentDate(s.now())
	if today == s.lastDate {
		return
	}
	s.lastDate = today

	if err := s.resolveWorkingDay(); err != nil {
		s.log.Error().Err(err).Str("date", today).Msg("keeping previous working-day value")
	}

	if s.logFile != nil {
		if err := s.logFile.Renew(); err != nil {
			s.log.Error().Err(err).Msg("failed to renew log file")
		}
	}

	if !s.janitor.IsEmpty() {
		s.janitor.Clean()
	}

	for _, u := range s.units {
		s.log.Debug().Str("unit", u.Name).Msg("re-anchoring schedule")
		u.Range.Prepare(s.now())
		u.Range.Log(s.log)
		u.restartedToday = false

		u.state = s.liveState(u.Name)
		s.log.Debug().Str("unit", u.Name).Stringer("state", u.state).Msg("unit state seeded")
	}
}

// tick reconciles every unit once, in declaration order, under
// cancellation. Each branch mirrors one rule of the schedule: the
// working-day gate, the once-per-day restart with its dependency
// cycle, the window-open start, and the window-closed stop.
func (s *Supervisor) tick(now time.Time) {
	for _, u := range s.units {
		if s.stop.IsStopping() {
			return
		}

		if u.RequiredWorkday && !s.workingDay {
			if u.state == UnitActive || s.liveState(u.Name) == UnitActive {
				s.stopUnit(u)
			}
			continue
		}

		if u.Range.SupportsRestart() && !u.restartedToday && u.Range.NeedRestart(now) {
			if len(u.Dependents) > 0 && s.toggleDependents(u.Name, u.Dependents, now, true, 0) > 0 {
				if !waitOrCancel(s.stop, s.settleFor) {
					return
				}
			}
			if s.stop.IsStopping() {
				return
			}

			s.restartUnit(u)
			u.restartedToday = true

			if !waitOrCancel(s.stop, s.settleFor) {
				return
			}

			if len(u.Dependents) > 0 && s.toggleDependents(u.Name, u.Dependents, now, false, 0) > 0 {
				if !waitOrCancel(s.stop, s.settleFor) {
					return
				}
			}
			continue
		}

		if u.Range.IsBetween(now) {
			if s.liveState(u.Name) == UnitInactive {
				s.log.Info().Str("unit", u.Name).Msg("unit inactive inside window; starting")
				s.startUnit(u)
			}
			continue
		}

		if u.state == UnitActive {
			s.stopUnit(u)
		}
	}
}

// toggleDependents walks the dependency list of root. In stop mode
// children are brought down before their parent (post-order); in start
// mode a dependent is started first and its own dependents follow
// (pre-order), and only when it is inside its own window. Between
// layers the loop grants a settle window. The return value is the
// number of units toggled at this level, which the caller uses to
// decide whether a settle wait is due.
func (s *Supervisor) toggleDependents(root string, deps []string, now time.Time, stopMode bool, depth int) int {
	if depth >= maxDependencyDepth {
		s.log.Error().
			Str("unit", root).
			Int("depth", depth).
			Msg("dependency recursion too deep; stopping descent")
		return 0
	}

	count := 0
	s.log.Info().Str("unit", root).Msg("iterating dependent units")

	for _, name := range deps {
		if s.stop.IsStopping() {
			break
		}

		d, ok := s.byName[name]
		if !ok {
			s.log.Info().Str("unit", name).Msg("dependent unit not found")
			continue
		}

		state := s.liveState(d.Name)

		if stopMode {
			if state == UnitInactive {
				continue
			}
			if len(d.Dependents) > 0 && s.toggleDependents(d.Name, d.Dependents, now, true, depth+1) > 0 {
				if !waitOrCancel(s.stop, s.settleFor) {
					break
				}
			}
			s.stopUnit(d)
			d.restartedToday = true
			count++
			continue
		}

		if state == UnitInactive && d.Range.IsBetween(now) {
			s.startUnit(d)
			d.restartedToday = true
			if len(d.Dependents) > 0 && s.toggleDependents(d.Name, d.Dependents, now, false, depth+1) > 0 {
				if !waitOrCancel(s.stop, s.settleFor) {
					break
				}
			}
			count++
		}
	}

	return count
}

// liveState queries the driver and collapses the answer onto the
// supervisor's two-valued view. An RPC failure reads as inactive: the
// supervisor cannot distinguish a transient bus fault from a dead
// unit, and "needs starting if in-window" is the safe posture for
// both.
func (s *Supervisor) liveState(name string) UnitState {
	raw, err := s.driver.Status(s.stop, name)
	if err != nil {
		s.log.Error().Err(err).Str("unit", name).Msg("failed to check unit status")
		return UnitInactive
	}

	if raw != activeStateActive {
		s.log.Info().Str("unit", name).Str("state", raw).Msg("unit status")
	}

	return classifyActiveState(raw)
}

// startUnit issues a start and marks the unit active on success. An
// RPC failure is logged and leaves observed state untouched; the next
// tick retries.
func (s *Supervisor) startUnit(u *UnitSchedule) {
	s.log.Info().Str("unit", u.Name).Msg("starting unit")

	if err := s.driver.Start(s.stop, u.Name); err != nil {
		s.log.Error().Err(err).Str("unit", u.Name).Msg("failed to start unit")
		return
	}

	u.state = UnitActive
	s.log.Info().Str("unit", u.Name).Msg("unit status changed to active")
}

// stopUnit issues a stop and marks the unit inactive on success.
func (s *Supervisor) stopUnit(u *UnitSchedule) {
	s.log.Info().Str("unit", u.Name).Msg("stopping unit")

	if err := s.driver.Stop(s.stop, u.Name); err != nil {
		s.log.Error().Err(err).Str("unit", u.Name).Msg("failed to stop unit")
		return
	}

	u.state = UnitInactive
	s.log.Info().Str("unit", u.Name).Msg("unit status changed to inactive")
}

// restartUnit issues a restart and marks the unit active on success.
func (s *Supervisor) restartUnit(u *UnitSchedule) {
	s.log.Info().Str("unit", u.Name).Msg("restarting unit")

	if err := s.driver.Restart(s.stop, u.Name); err != nil {
		s.log.Error().Err(err).Str("unit", u.Name).Msg("failed to restart unit")
		return
	}

	u.state = UnitActive
	s.log.Info().Str("unit", u.Name).Msg("unit restarted")
}

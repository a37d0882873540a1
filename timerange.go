package svcsched

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// emptyTime is the schedule string meaning "unset"
	emptyTime = "00:00:00"

	// timeLayout is the wall-clock schedule format
	timeLayout = "15:04:05"

	// restartWindow is how long after the restart instant the daily
	// restart is still accepted; it absorbs tick jitter so the restart
	// fires exactly once
	restartWindow = 60 * time.Second
)

// TimeRange converts wall-clock schedule strings into instants anchored
// to the current day. A zero epoch means that component is unset: a
// unit with no start/end pair runs uninterrupted, a unit with no
// restart instant is never cycled.
type TimeRange struct {
	startTime   string
	endTime     string
	restartTime string

	// StartEpoch is the opening of today's window, unix seconds; 0 when unset
	StartEpoch int64
	// EndEpoch is the close of today's window, unix seconds; 0 when unset
	EndEpoch int64
	// RestartEpoch is today's restart instant, unix seconds; 0 when unset
	RestartEpoch int64
}

// NewTimeRange parses the given HH:MM:SS strings and anchors them to
// the day of now. Blank strings and "00:00:00" mean unset; if either
// the start or the end is unset, both are. Malformed strings are a
// load-time error; the runtime predicates never fail.
func NewTimeRange(start, end, restart string, now time.Time) (*TimeRange, error) {
	for _, s := range []string{start, end, restart} {
		if s == "" || s == emptyTime {
			continue
		}
		if _, err := time.Parse(timeLayout, s); err != nil {
			return nil, fmt.Errorf("parsing schedule time %q: %w", s, err)
		}
	}

	tr := &TimeRange{
		startTime:   start,
		endTime:     end,
		restartTime: restart,
	}
	tr.Prepare(now)

	return tr, nil
}

// Prepare re-anchors all epochs to the day of now. Called once at load
// and again at every day rollover.
func (tr *TimeRange) Prepare(now time.Time) {
	if tr.restartTime == "" || tr.restartTime == emptyTime {
		tr.RestartEpoch = 0
	} else {
		tr.RestartEpoch = anchorToDay(tr.restartTime, now)
	}

	if tr.startTime == "" || tr.startTime == emptyTime ||
		tr.endTime == "" || tr.endTime == emptyTime {
		tr.StartEpoch = 0
		tr.EndEpoch = 0
		return
	}

	tr.StartEpoch = anchorToDay(tr.startTime, now)
	tr.EndEpoch = anchorToDay(tr.endTime, now)
}

// IsBetween reports whether t falls inside today's window, inclusive on
// both ends. An unset window is always open. A window whose end
// precedes its start is empty; ranges wrapping past midnight are not
// supported.
func (tr *TimeRange) IsBetween(t time.Time) bool {
	if tr.StartEpoch == 0 || tr.EndEpoch == 0 {
		return true
	}
	now := t.Unix()
	return now >= tr.StartEpoch && now <= tr.EndEpoch
}

// NeedRestart reports whether t falls inside the restart acceptance
// window [RestartEpoch, RestartEpoch+60s].
func (tr *TimeRange) NeedRestart(t time.Time) bool {
	if tr.RestartEpoch == 0 {
		return false
	}
	now := t.Unix()
	return now >= tr.RestartEpoch && now <= tr.RestartEpoch+int64(restartWindow/time.Second)
}

// SupportsRestart reports whether a daily restart instant is configured.
func (tr *TimeRange) SupportsRestart() bool {
	return tr.RestartEpoch > 0
}

// Log writes the prepared schedule to the debug log.
func (tr *TimeRange) Log(log zerolog.Logger) {
	if tr.StartEpoch == 0 || tr.EndEpoch == 0 {
		log.Debug().Msg("unit runs in uninterrupted mode")
	} else {
		log.Debug().
			Time("start", time.Unix(tr.StartEpoch, 0)).
			Time("end", time.Unix(tr.EndEpoch, 0)).
			Msg("scheduled window")
	}

	if tr.RestartEpoch > 0 {
		log.Debug().
			Time("restart", time.Unix(tr.RestartEpoch, 0)).
			Msg("scheduled restart")
	}
}

// anchorToDay combines the HH:MM:SS in s with the local date of day.
// s is validated at load time, so the parse cannot fail here.
func anchorToDay(s string, day time.Time) int64 {
	clock, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0
	}
	local := day.Local()
	anchored := time.Date(
		local.Year(), local.Month(), local.Day(),
		clock.Hour(), clock.Minute(), clock.Second(),
		0, local.Location(),
	)
	return anchored.Unix()
}

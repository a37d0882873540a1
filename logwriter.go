package svcsched

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// maxLogSize is the hard cap per day file; once exceeded, file
	// writes are dropped after a single marker line
	maxLogSize = 40 * 1000 * 1000

	// logNameLayout yields names like 2025_02_14.log
	logNameLayout = "2006_01_02"

	// capMarker is the last line written to an over-cap file
	capMarker = "\nMAX_SIZE_EXCEEDED\n"
)

// LogWriter is an append-only, day-stamped, size-capped log sink. Every
// write is mirrored to the console; only the file side is subject to
// the cap. Renew switches to the new day's file and resets the cap
// counter. Safe for concurrent writes from the loop and the signal
// path.
type LogWriter struct {
	mu sync.Mutex

	dir     string
	console io.Writer
	now     func() time.Time

	f       *os.File
	written int64
	capped  bool
}

// NewLogWriter creates a writer rooted at dir, mirroring to stdout.
func NewLogWriter(dir string) *LogWriter {
	return &LogWriter{
		dir:     dir,
		console: os.Stdout,
		now:     time.Now,
	}
}

// Open creates the log directory if needed and opens today's file in
// append mode, writing the intro banner when the file is new.
func (w *LogWriter) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openLocked()
}

func (w *LogWriter) openLocked() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir %s: %w", w.dir, err)
	}

	path := filepath.Join(w.dir, w.now().Format(logNameLayout)+".log")

	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", path, err)
	}
	w.f = f

	rule := strings.Repeat("-", 65) + "\n"
	if existed {
		w.writeLocked([]byte(rule))
	} else {
		banner := rule +
			"This log generated at " + w.now().Format("2006-01-02 15:04:05") +
			" for go-svcsched " + Version + "\n" +
			rule
		w.writeLocked([]byte(banner))
	}

	return nil
}

// Write mirrors p to the console and appends it to the day file until
// the cap is reached. It never returns an error; logging must not take
// the supervisor down.
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writeLocked(p)
	return len(p), nil
}

func (w *LogWriter) writeLocked(p []byte) {
	if w.console != nil {
		_, _ = w.console.Write(p)
	}

	if w.f == nil || w.capped {
		return
	}

	n, _ := w.f.Write(p)
	w.written += int64(n)

	if w.written >= maxLogSize {
		_, _ = w.f.WriteString(capMarker)
		w.capped = true
	}
}

// Renew closes the current file and opens the file for today's date,
// resetting the cap counter. Called at day rollover.
func (w *LogWriter) Renew() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.written = 0
	w.capped = false

	return w.openLocked()
}

// Close closes the underlying file. Console mirroring stops having a
// file to pair with, but Write remains safe to call.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// NewLogger builds the package's zerolog logger on top of w: console
// formatting, wall-clock timestamps printed as HH:MM:SS.mmm, uppercase
// levels. The timestamp field is recorded at zerolog's default
// whole-second resolution, so the millisecond digits read 000.
func NewLogger(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "15:04:05.000",
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("%-5s", i))
		},
	}
	return zerolog.New(cw).With().Timestamp().Logger()
}

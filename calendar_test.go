package svcsched

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

func newTestCalendar(t *testing.T, serverURL, cachePath string, now func() time.Time) *CalendarClient {
	t.Helper()

	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}

	c := NewCalendarClient(u.Hostname(), port, cachePath, zerolog.Nop())
	c.BackoffStep = time.Millisecond
	if now != nil {
		c.now = now
	}
	return c
}

func testStopper(t *testing.T) *stopper.Context {
	t.Helper()
	sctx := stopper.WithContext(context.Background())
	t.Cleanup(func() {
		sctx.Stop(time.Millisecond)
		_ = sctx.Wait()
	})
	return sctx
}

func TestCalendarFetchSuccess(t *testing.T) {
	var gotPath, gotFrom atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotFrom.Store(r.Header.Get("X-Req-From"))
		_, _ = w.Write([]byte("2025-02-14\n"))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "cache.d")
	now := func() time.Time { return time.Date(2025, 2, 14, 10, 0, 0, 0, time.Local) }
	c := newTestCalendar(t, srv.URL, cache, now)

	date, err := c.NextWorkingDate(testStopper(t))
	if err != nil {
		t.Fatal(err)
	}
	if date != "2025-02-14" {
		t.Errorf("date = %q, want 2025-02-14", date)
	}
	if gotPath.Load() != "/svc/trade-date" {
		t.Errorf("path = %v, want /svc/trade-date", gotPath.Load())
	}
	if gotFrom.Load() != "service" {
		t.Errorf("X-Req-From = %v, want service", gotFrom.Load())
	}
}

func TestCalendarRetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("2025-02-17"))
	}))
	defer srv.Close()

	c := newTestCalendar(t, srv.URL, filepath.Join(t.TempDir(), "cache.d"), nil)

	date, err := c.NextWorkingDate(testStopper(t))
	if err != nil {
		t.Fatal(err)
	}
	if date != "2025-02-17" {
		t.Errorf("date = %q, want 2025-02-17", date)
	}
	if n := requests.Load(); n != 4 {
		t.Errorf("requests = %d, want 4", n)
	}
}

func TestCalendarGivesUpAfterTenAttempts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("not-a-date"))
	}))
	defer srv.Close()

	c := newTestCalendar(t, srv.URL, filepath.Join(t.TempDir(), "cache.d"), nil)

	_, err := c.NextWorkingDate(testStopper(t))
	if err == nil {
		t.Fatal("NextWorkingDate succeeded, want error")
	}
	if n := requests.Load(); n != 10 {
		t.Errorf("requests = %d, want 10", n)
	}
}

func TestCalendarCancellationAbortsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestCalendar(t, srv.URL, filepath.Join(t.TempDir(), "cache.d"), nil)
	c.BackoffStep = time.Hour

	sctx := stopper.WithContext(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		sctx.Stop(time.Millisecond)
	}()

	start := time.Now()
	_, err := c.NextWorkingDate(sctx)
	if err == nil {
		t.Fatal("NextWorkingDate succeeded, want cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, want prompt return", elapsed)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "cache.d")

	day := time.Date(2025, 2, 14, 9, 0, 0, 0, time.Local)
	clock := &day
	now := func() time.Time { return *clock }

	c := NewCalendarClient("localhost", 8080, cache, zerolog.Nop())
	c.now = now

	c.WriteCache("2025-02-17")

	raw, err := os.ReadFile(cache)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "2025-02-14~2025-02-17" {
		t.Errorf("cache content = %q, want 2025-02-14~2025-02-17", raw)
	}

	// same day: usable
	date, err := c.CachedDate()
	if err != nil {
		t.Fatal(err)
	}
	if date != "2025-02-17" {
		t.Errorf("cached date = %q, want 2025-02-17", date)
	}

	// next day: stale
	next := day.AddDate(0, 0, 1)
	clock = &next
	if _, err := c.CachedDate(); !errors.Is(err, ErrCacheStale) {
		t.Errorf("err = %v, want ErrCacheStale", err)
	}
}

func TestCachedDateRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"no separator", "2025-02-14 2025-02-17"},
		{"bad fetched-on", "yesterday~2025-02-17"},
		{"bad date", "2025-02-14~someday"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := filepath.Join(dir, tt.name)
			if err := os.WriteFile(cache, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			c := NewCalendarClient("localhost", 8080, cache, zerolog.Nop())
			if _, err := c.CachedDate(); err == nil {
				t.Error("CachedDate succeeded, want error")
			}
		})
	}
}

func TestCachedDateMissingFile(t *testing.T) {
	c := NewCalendarClient("localhost", 8080, filepath.Join(t.TempDir(), "absent"), zerolog.Nop())
	if _, err := c.CachedDate(); err == nil {
		t.Error("CachedDate succeeded, want error")
	}
}

package svcsched

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"vawter.tech/stopper"
)

const (
	// tradeDatePath is the endpoint serving the next working date
	tradeDatePath = "/svc/trade-date"

	// reqFromHeader identifies this client to the calendar endpoint
	reqFromHeader = "service"

	// maxFetchAttempts bounds the retry loop before the cache fallback
	maxFetchAttempts = 10

	// cacheSeparator splits the fetched-on date from the cached working date
	cacheSeparator = "~"
)

// CalendarClient fetches the next working date from the calendar
// endpoint over plain HTTP/1.1 and keeps a same-day cache on disk as a
// fallback for when the endpoint is unreachable.
type CalendarClient struct {
	// Host is the calendar endpoint host
	Host string
	// Port is the calendar endpoint port; TLS ports are rejected at config load
	Port int
	// CachePath is where the fetched date is persisted, e.g. ./svcm/cache.d
	CachePath string
	// HTTPClient issues the GET requests
	HTTPClient *http.Client
	// BackoffStep is multiplied by the attempt number between retries
	BackoffStep time.Duration

	log zerolog.Logger
	now func() time.Time
}

// NewCalendarClient creates a client for the given endpoint.
func NewCalendarClient(host string, port int, cachePath string, log zerolog.Logger) *CalendarClient {
	return &CalendarClient{
		Host:       host,
		Port:       port,
		CachePath:  cachePath,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		BackoffStep: fetchBackoffStep,
		log:         log,
		now:         time.Now,
	}
}

// NextWorkingDate fetches the next working date, making up to ten
// attempts with linear backoff between them. Each backoff wait observes the stop
// context, so shutdown aborts the retry loop promptly.
func (c *CalendarClient) NextWorkingDate(stop *stopper.Context) (string, error) {
	c.log.Info().Str("host", c.Host).Msg("loading working date from calendar endpoint")

	var lastErr error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		date, err := c.fetchOnce(stop)
		if err == nil {
			return date, nil
		}
		lastErr = err

		c.log.Error().Err(err).Int("attempt", attempt).Msg("calendar fetch failed")

		if attempt == maxFetchAttempts {
			break
		}
		if !waitOrCancel(stop, time.Duration(attempt)*c.BackoffStep) {
			return "", fmt.Errorf("calendar fetch cancelled: %w", lastErr)
		}
	}

	return "", fmt.Errorf("calendar fetch failed after %d attempts: %w", maxFetchAttempts, lastErr)
}

// fetchOnce performs a single GET against the trade-date endpoint. The
// response body must be a bare, valid YYYY-MM-DD string.
func (c *CalendarClient) fetchOnce(stop *stopper.Context) (string, error) {
	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), tradeDatePath)

	req, err := http.NewRequestWithContext(stop, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Req-From", reqFromHeader)
	req.Close = true

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("requesting %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	date := strings.TrimSpace(string(body))
	if date == "" {
		return "", fmt.Errorf("response has no body")
	}
	if !validDate(date) {
		return "", fmt.Errorf("%w: response body %q", ErrInvalidDate, date)
	}

	return date, nil
}

// CachedDate reads the cache file and returns the stored working date.
// The cache is usable only when its fetched-on half equals today;
// anything else, including unparseable content, is discarded.
func (c *CalendarClient) CachedDate() (string, error) {
	c.log.Info().Str("file", c.CachePath).Msg("loading working date from cache")

	raw, err := os.ReadFile(c.CachePath)
	if err != nil {
		return "", fmt.Errorf("reading cache: %w", err)
	}

	fetchedOn, date, found := strings.Cut(strings.TrimSpace(string(raw)), cacheSeparator)
	if !found {
		return "", fmt.Errorf("%w: malformed cache content %q", ErrInvalidDate, string(raw))
	}
	if !validDate(fetchedOn) || !validDate(date) {
		return "", fmt.Errorf("%w: cache content %q", ErrInvalidDate, string(raw))
	}

	if fetchedOn != currentDate(c.now()) {
		return "", fmt.Errorf("%w: cache written on %s", ErrCacheStale, fetchedOn)
	}

	c.log.Info().Str("date", date).Msg("cached working date found")
	return date, nil
}

// WriteCache persists today's date and the fetched working date,
// replacing the file atomically. Failures are logged and ignored; a
// missing cache only matters on the next endpoint outage.
func (c *CalendarClient) WriteCache(date string) {
	content := currentDate(c.now()) + cacheSeparator + date

	if err := renameio.WriteFile(c.CachePath, []byte(content), 0o644); err != nil {
		c.log.Error().Err(err).Str("file", c.CachePath).Msg("failed to write calendar cache")
		return
	}

	c.log.Debug().Str("content", content).Str("file", c.CachePath).Msg("calendar cache written")
}

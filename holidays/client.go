/*
Package holidays imports public holidays from the Hong Kong government feed.

PURPOSE:
  The feed at https://www.1823.gov.hk/common/ical/en.json is an iCalendar
  document rendered as JSON. Each vevent carries a summary and a dtstart
  whose first element is the date as YYYYMMDD:

    {"vcalendar": [{"vevent": [
        {"dtstart": ["20240101", {"value": "DATE"}], "summary": "The first day of January"}
    ]}]}

  Client fetches and parses the feed behind a circuit breaker; Importer
  upserts the result into a leave.HolidayStore keyed by date.

SEE ALSO:
  - engine/compensation.go: Consumes the imported holidays
*/
package holidays

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/warp/leave-engine/generic"
)

// DefaultFeedURL is the English-language 1823 holiday feed.
const DefaultFeedURL = "https://www.1823.gov.hk/common/ical/en.json"

const maxFeedBytes = 4 << 20

var ErrEmptyFeed = errors.New("holiday feed has no events")

// Entry is one parsed feed event.
type Entry struct {
	Date generic.TimePoint
	Name string
}

// Skipped is an event that could not be parsed.
type Skipped struct {
	Summary string
	Raw     string
	Reason  string
}

// Feed is what the importer needs from a holiday source.
type Feed interface {
	Fetch(ctx context.Context) ([]Entry, []Skipped, error)
}

// Client fetches the 1823 feed.
type Client struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewClient creates a client for url. The breaker opens after five
// consecutive failures and probes again after a minute.
func NewClient(url string) *Client {
	if url == "" {
		url = DefaultFeedURL
	}
	settings := gobreaker.Settings{
		Name:        "holiday-feed",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
		cb:     gobreaker.NewCircuitBreaker(settings),
	}
}

type feedDocument struct {
	VCalendar []struct {
		VEvent []feedEvent `json:"vevent"`
	} `json:"vcalendar"`
}

type feedEvent struct {
	Summary string            `json:"summary"`
	DTStart []json.RawMessage `json:"dtstart"`
}

// Fetch downloads and parses the feed. Events with an unparseable date are
// returned as skipped rather than failing the whole import.
func (c *Client) Fetch(ctx context.Context) ([]Entry, []Skipped, error) {
	body, err := c.cb.Execute(func() (interface{}, error) {
		return c.download(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return nil, nil, fmt.Errorf("holiday feed unavailable: %w", err)
		}
		return nil, nil, err
	}
	return Parse(body.([]byte))
}

func (c *Client) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holiday feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("holiday feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read holiday feed: %w", err)
	}
	return body, nil
}

// Parse extracts entries from a feed document.
func Parse(body []byte) ([]Entry, []Skipped, error) {
	// The feed is served with a UTF-8 byte order mark.
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	var doc feedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to decode holiday feed: %w", err)
	}
	if len(doc.VCalendar) == 0 || len(doc.VCalendar[0].VEvent) == 0 {
		return nil, nil, ErrEmptyFeed
	}

	var entries []Entry
	var skipped []Skipped
	for _, ev := range doc.VCalendar[0].VEvent {
		if ev.Summary == "" || len(ev.DTStart) == 0 {
			continue
		}
		var raw string
		if err := json.Unmarshal(ev.DTStart[0], &raw); err != nil {
			skipped = append(skipped, Skipped{Summary: ev.Summary, Raw: string(ev.DTStart[0]), Reason: "dtstart is not a string"})
			continue
		}
		t, err := time.Parse("20060102", raw)
		if err != nil {
			skipped = append(skipped, Skipped{Summary: ev.Summary, Raw: raw, Reason: "date is not YYYYMMDD"})
			continue
		}
		entries = append(entries, Entry{Date: generic.DateOf(t), Name: ev.Summary})
	}
	return entries, skipped, nil
}

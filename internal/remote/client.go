// Package remote talks to the HR platform's timesheet endpoints on behalf of
// a caller, forwarding the caller's session cookie.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tsproxy/internal/domain"
)

// Client issues timesheet calls against a single remote base URL.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client with the given per-call timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// APIError wraps non-2xx responses. Body is passed through untouched.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote error: status=%d body=%s", e.StatusCode, e.Body)
}

// StorePayload is the body of a create call.
type StorePayload struct {
	TaskID    int64  `json:"task_id"`
	Activity  string `json:"activity"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// UpdatePayload is the body of an update call.
type UpdatePayload struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	Activity  string `json:"activity"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Entry is one logged activity as the remote reports it.
type Entry struct {
	ID               domain.RemoteID `json:"id"`
	TaskID           domain.RemoteID `json:"task_id"`
	TaskTitle        string          `json:"task_title"`
	StartTime        string          `json:"start_time"`
	EndTime          string          `json:"end_time"`
	ActivityDuration string          `json:"activity_duration"`
	Activity         string          `json:"activity"`
}

// Day groups a date's entries.
type Day struct {
	Date          string  `json:"date"`
	TotalDuration string  `json:"total_duration"`
	Data          []Entry `json:"data"`
}

// Envelope is the remote's response wrapper. Status mirrors an HTTP code
// and can disagree with the transport status.
type Envelope[T any] struct {
	Status  int             `json:"status"`
	Message string          `json:"message,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Data    T               `json:"data"`
}

// OK reports whether the remote flagged the payload as successful.
func (e Envelope[T]) OK() bool { return e.Status == http.StatusOK }

// ErrorText returns the remote-provided failure text.
func (e Envelope[T]) ErrorText() string {
	if len(e.Error) > 0 && string(e.Error) != "null" {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil {
			return s
		}
		return string(e.Error)
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("remote returned status %d", e.Status)
}

// WeekReport is the report for the week containing the anchor date.
type WeekReport struct {
	DurationWeek string `json:"duration_week"`
	Daily        []Day  `json:"daily"`
}

// Store creates one timesheet entry and returns the raw remote body.
func (c *Client) Store(ctx context.Context, cred domain.Credential, payload StorePayload) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, cred, http.MethodPost, "store", payload, &resp)
	return resp, err
}

// Latest returns the most recent entries grouped by day.
func (c *Client) Latest(ctx context.Context, cred domain.Credential) (Envelope[[]Day], error) {
	var resp Envelope[[]Day]
	err := c.do(ctx, cred, http.MethodGet, "", nil, &resp)
	return resp, err
}

// Report returns the week report anchored at date.
func (c *Client) Report(ctx context.Context, cred domain.Credential, date time.Time) (Envelope[WeekReport], error) {
	q := url.Values{}
	q.Set("assigneeid", "")
	q.Set("date", date.Format("2006-01-02"))
	var resp Envelope[WeekReport]
	err := c.do(ctx, cred, http.MethodGet, "report?"+q.Encode(), nil, &resp)
	return resp, err
}

// Update rewrites an existing entry.
func (c *Client) Update(ctx context.Context, cred domain.Credential, payload UpdatePayload) (Envelope[json.RawMessage], error) {
	var resp Envelope[json.RawMessage]
	err := c.do(ctx, cred, http.MethodPut, "update", payload, &resp)
	return resp, err
}

// Delete removes an entry by id.
func (c *Client) Delete(ctx context.Context, cred domain.Credential, id int64) (Envelope[json.RawMessage], error) {
	var resp Envelope[json.RawMessage]
	err := c.do(ctx, cred, http.MethodDelete, "delete", map[string]int64{"id": id}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, cred domain.Credential, method, endpoint string, body any, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	target := c.base()
	if endpoint != "" {
		target += "/" + strings.TrimLeft(endpoint, "/")
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", string(cred))
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, redactQuery(target), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func redactQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

package tspsdk

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
)

// Client is a minimal timesheet proxy API client.
type Client struct {
	BaseURL    string
	Cookie     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. Bulk calls over long ranges fan
// out upstream, so the timeout is generous.
func New(baseURL, cookie string) *Client {
	return &Client{
		BaseURL: baseURL,
		Cookie:  cookie,
		Timeout: 2 * time.Minute,
	}
}

// EntryRequest is the body of bulk and update calls.
type EntryRequest struct {
	TaskID    int64  `json:"taskId"`
	Activity  string `json:"activity"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate,omitempty"`
}

// ID is a remote identifier. The HR platform sends either numbers or
// strings; both decode to their text form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Entry is a single logged activity.
type Entry struct {
	ID        ID     `json:"id"`
	TaskID    ID     `json:"task_id"`
	TaskTitle string `json:"task_title"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Duration  string `json:"duration"`
	Activity  string `json:"activity"`
}

// DayRecord groups a date's entries.
type DayRecord struct {
	Date          string  `json:"date"`
	TotalDuration string  `json:"total_duration"`
	Data          []Entry `json:"data"`
}

// WeekSummary is the current-week report.
type WeekSummary struct {
	DurationWeek string      `json:"duration_week"`
	Daily        []DayRecord `json:"daily"`
}

// ValidityRecord is one day of a monthly check.
type ValidityRecord struct {
	Date          string `json:"date"`
	Day           string `json:"day"`
	TotalDuration string `json:"total_duration"`
	Days          int    `json:"days"`
	IsValid       bool   `json:"is_valid"`
	Hours         string `json:"hours"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Message returns the "error" field of the envelope, or the raw body.
func (e *APIError) Message() string {
	var env struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(e.Body)
}

// Bulk submits one entry per business day. The result is a single remote
// response for a one-day range and a list otherwise.
func (c *Client) Bulk(ctx context.Context, req EntryRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodPost, "timesheet/bulk", req, &resp)
	return resp, err
}

// Range returns day records between start and end inclusive.
func (c *Client) Range(ctx context.Context, start, end string) ([]DayRecord, error) {
	var resp []DayRecord
	endpoint := fmt.Sprintf("timesheet/range-date/%s/%s", url.PathEscape(start), url.PathEscape(end))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CheckMonth runs the eight-hour check for a month.
func (c *Client) CheckMonth(ctx context.Context, year, month int) ([]ValidityRecord, error) {
	var resp []ValidityRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("timesheet/check-valid/%d/%d", year, month), nil, &resp)
	return resp, err
}

// ThisWeek returns the current week's report.
func (c *Client) ThisWeek(ctx context.Context) (WeekSummary, error) {
	var resp WeekSummary
	err := c.do(ctx, http.MethodGet, "timesheet/this-week", nil, &resp)
	return resp, err
}

// ByDate returns the records of one date.
func (c *Client) ByDate(ctx context.Context, date string) ([]DayRecord, error) {
	var resp []DayRecord
	err := c.do(ctx, http.MethodGet, "timesheet/date/"+url.PathEscape(date), nil, &resp)
	return resp, err
}

// Latest returns the most recent entries.
func (c *Client) Latest(ctx context.Context) ([]DayRecord, error) {
	var resp []DayRecord
	err := c.do(ctx, http.MethodGet, "timesheet/last-week", nil, &resp)
	return resp, err
}

// Update rewrites entry id.
func (c *Client) Update(ctx context.Context, id int64, req EntryRequest) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("timesheet/update/%d", id), req, &resp)
	return resp, err
}

// Delete removes entry id.
func (c *Client) Delete(ctx context.Context, id int64) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("timesheet/delete/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Data
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Credential is the caller's session cookie. It is forwarded to the remote
// API as-is and must never be written to logs.
type Credential string

func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "[redacted]"
}

func (c Credential) LogValue() slog.Value { return slog.StringValue(c.String()) }

// Empty reports whether no credential was supplied.
func (c Credential) Empty() bool { return c == "" }

type TaskDescriptor struct {
	TaskID   int64  `json:"taskId"`
	Activity string `json:"activity"`
}

// DateRange is an inclusive span of calendar dates held at UTC midnight.
type DateRange struct {
	Start time.Time
	End   time.Time
}

type WeekWindow struct {
	Start time.Time
	End   time.Time
}

type DaySubmission struct {
	TaskID   int64
	Activity string
	Date     time.Time
}

// RemoteID is an identifier exactly as the remote sent it, a JSON number or
// string. It is written back in the same form.
type RemoteID string

func (id RemoteID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

func (id *RemoteID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v.(type) {
	case string, float64:
	default:
		return fmt.Errorf("remote id must be a number or string, got %s", b)
	}
	*id = RemoteID(b)
	return nil
}

// String returns the id without JSON quoting.
func (id RemoteID) String() string {
	if s, err := strconv.Unquote(string(id)); err == nil {
		return s
	}
	return string(id)
}

// NumericID builds a RemoteID from an integer.
func NumericID(n int64) RemoteID { return RemoteID(strconv.FormatInt(n, 10)) }

type Entry struct {
	ID        RemoteID `json:"id"`
	TaskID    RemoteID `json:"task_id"`
	TaskTitle string   `json:"task_title"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Duration  string   `json:"duration"`
	Activity  string   `json:"activity"`
}

type TimesheetDayRecord struct {
	Date          string  `json:"date" format:"date"`
	TotalDuration string  `json:"total_duration"`
	Data          []Entry `json:"data"`
}

type WeekSummary struct {
	DurationWeek string               `json:"duration_week"`
	Daily        []TimesheetDayRecord `json:"daily"`
}

type ValidityRecord struct {
	Date          string `json:"date" format:"date"`
	Day           string `json:"day"`
	TotalDuration string `json:"total_duration"`
	Days          int    `json:"days" doc:"Weekday index, Sunday=0"`
	IsValid       bool   `json:"is_valid"`
	Hours         string `json:"hours" doc:"Logged hours as a decimal string"`
}

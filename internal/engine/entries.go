package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tsproxy/internal/calendar"
	"tsproxy/internal/domain"
	"tsproxy/internal/remote"
)

// UpdateOptions rewrite an existing entry. EndDate defaults to StartDate.
type UpdateOptions struct {
	Task      domain.TaskDescriptor
	StartDate string
	EndDate   string
}

// Update replaces task, activity and time span of entry id.
func (e Engine) Update(ctx context.Context, cred domain.Credential, id string, opts UpdateOptions) (json.RawMessage, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	entryID, err := parseEntryID(id)
	if err != nil {
		return nil, err
	}
	if opts.Task.TaskID == 0 {
		return nil, invalidInput("taskId is required")
	}
	r, err := parseRange(opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, err
	}
	resp, err := e.Remote.Update(ctx, cred, remote.UpdatePayload{
		ID:        entryID,
		TaskID:    opts.Task.TaskID,
		Activity:  opts.Task.Activity,
		StartTime: calendar.FormatDate(r.Start) + " " + e.Config.Workday.StartTime,
		EndTime:   calendar.FormatDate(r.End) + " " + e.Config.Workday.EndTime,
	})
	if err != nil {
		return nil, remoteFailure(KindRemoteFailure, err)
	}
	if failed(resp) {
		return nil, envelopeFailure(KindRemoteFailure, resp)
	}
	return resp.Data, nil
}

// Delete removes entry id.
func (e Engine) Delete(ctx context.Context, cred domain.Credential, id string) (json.RawMessage, error) {
	if err := requireCredential(cred); err != nil {
		return nil, err
	}
	entryID, err := parseEntryID(id)
	if err != nil {
		return nil, err
	}
	resp, err := e.Remote.Delete(ctx, cred, entryID)
	if err != nil {
		return nil, remoteFailure(KindRemoteFailure, err)
	}
	if failed(resp) {
		return nil, envelopeFailure(KindRemoteFailure, resp)
	}
	return resp.Data, nil
}

// failed treats a missing body status as success; mutation endpoints do not
// always echo one.
func failed(env remote.Envelope[json.RawMessage]) bool {
	return env.Status != 0 && env.Status != http.StatusOK
}

func parseEntryID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, invalidInput("invalid timesheet id %q", id)
	}
	return n, nil
}

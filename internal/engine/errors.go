package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tsproxy/internal/remote"
)

// Kind classifies engine failures for the transport layer.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindRemoteFailure      Kind = "remote_failure"
	KindAggregationFailure Kind = "aggregation_failure"
)

var (
	// ErrInvalidInput is matched by errors rejected before any remote call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRemoteFailure is matched by transport or remote-side failures.
	ErrRemoteFailure = errors.New("remote failure")
	// ErrAggregationFailure is matched when one week fetch sinks a range query.
	ErrAggregationFailure = errors.New("aggregation failure")
)

// Error is the tagged failure returned by every engine operation.
// RemoteBody holds the remote response body verbatim when there was one.
type Error struct {
	Kind       Kind
	Message    string
	RemoteBody string
	Err        error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindInvalidInput:
		return target == ErrInvalidInput
	case KindRemoteFailure:
		return target == ErrRemoteFailure
	case KindAggregationFailure:
		return target == ErrAggregationFailure
	}
	return false
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// remoteFailure lifts a remote client error into a tagged error, keeping
// the remote's own message.
func remoteFailure(kind Kind, err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return &Error{Kind: kind, Message: te.Message, RemoteBody: te.RemoteBody, Err: te.Err}
	}
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: kind, Message: remoteMessage(apiErr), RemoteBody: apiErr.Body, Err: err}
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// envelopeFailure reports a 2xx response whose body status was not 200.
func envelopeFailure[T any](kind Kind, env remote.Envelope[T]) *Error {
	body, _ := json.Marshal(env)
	return &Error{Kind: kind, Message: env.ErrorText(), RemoteBody: string(body)}
}

func remoteMessage(apiErr *remote.APIError) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(apiErr.Body), &body); err == nil {
		var s string
		if len(body.Error) > 0 && json.Unmarshal(body.Error, &s) == nil && s != "" {
			return s
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if b := strings.TrimSpace(apiErr.Body); b != "" {
		return b
	}
	return fmt.Sprintf("remote returned status %d", apiErr.StatusCode)
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

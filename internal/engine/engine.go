package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tsproxy/internal/config"
	"tsproxy/internal/domain"
	"tsproxy/internal/remote"
)

// Remote is the subset of the HR platform API the engine drives.
type Remote interface {
	Store(ctx context.Context, cred domain.Credential, payload remote.StorePayload) (json.RawMessage, error)
	Latest(ctx context.Context, cred domain.Credential) (remote.Envelope[[]remote.Day], error)
	Report(ctx context.Context, cred domain.Credential, date time.Time) (remote.Envelope[remote.WeekReport], error)
	Update(ctx context.Context, cred domain.Credential, payload remote.UpdatePayload) (remote.Envelope[json.RawMessage], error)
	Delete(ctx context.Context, cred domain.Credential, id int64) (remote.Envelope[json.RawMessage], error)
}

// Engine expands timesheet requests into remote calls. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	Remote Remote
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

func New(cfg *config.Config, r Remote, logger *slog.Logger) Engine {
	return Engine{
		Remote: r,
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) maxConcurrency() int {
	if e.Config == nil {
		return 0
	}
	return e.Config.Dispatch.MaxConcurrency
}

func requireCredential(cred domain.Credential) error {
	if cred.Empty() {
		return invalidInput("cookie is required")
	}
	return nil
}

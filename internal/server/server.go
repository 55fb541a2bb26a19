package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tsproxy/internal/domain"
	"tsproxy/internal/engine"
)

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	Logger      *slog.Logger
	CORSOrigins []string
}

// apiError is the failure envelope. Remote carries the remote's body when
// the failure came from there.
type apiError struct {
	status  int
	Status  string `json:"status" example:"error"`
	Message string `json:"error" example:"end date should be greater than start date"`
	Remote  any    `json:"remote,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the timesheet API.
func New(cfg Config) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, joinDetails(msg, errs), "")
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, joinDetails(msg, errs), "")
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cookie"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	hcfg := huma.DefaultConfig("Timesheet Proxy API", "1.0.0")
	hcfg.OpenAPIPath = "" // served below
	hcfg.DocsPath = ""
	hcfg.CreateHooks = nil // no $schema link in envelopes
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, "/timesheet")

	registerDocs(router)
	registerHealth(api)
	registerSubmissions(group, cfg.Engine, logger)
	registerReports(group, cfg.Engine, logger)
	registerEntries(group, cfg.Engine, logger)
	registerOpenAPI(router, api)

	return router, nil
}

func newAPIError(status int, message, remoteBody string) huma.StatusError {
	e := &apiError{status: status, Status: "error", Message: message}
	if remoteBody != "" {
		if json.Valid([]byte(remoteBody)) {
			e.Remote = json.RawMessage(remoteBody)
		} else {
			e.Remote = remoteBody
		}
	}
	return e
}

func joinDetails(msg string, errs []error) string {
	if len(errs) == 0 {
		return msg
	}
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return msg
	}
	return msg + ": " + strings.Join(parts, "; ")
}

// handleError maps engine failures onto HTTP statuses.
func handleError(logger *slog.Logger, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var te *engine.Error
	if !errors.As(err, &te) {
		logger.Error("unhandled error", "error", err)
		return newAPIError(http.StatusInternalServerError, "internal error", "")
	}
	switch te.Kind {
	case engine.KindInvalidInput:
		return newAPIError(http.StatusBadRequest, te.Message, "")
	case engine.KindRemoteFailure, engine.KindAggregationFailure:
		logger.Warn("remote call failed", "kind", te.Kind, "error", te.Message)
		return newAPIError(http.StatusBadGateway, te.Message, te.RemoteBody)
	default:
		return newAPIError(http.StatusInternalServerError, te.Message, te.RemoteBody)
	}
}

// requestLogger writes one line per request. The Cookie header is never
// part of it.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func registerDocs(r chi.Router) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML("/openapi.json"))
	})
}

func registerOpenAPI(r chi.Router, api huma.API) {
	var (
		once sync.Once
		spec []byte
	)
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(specURL string) string {
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Timesheet Proxy API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Every /timesheet call forwards your HR session Cookie header.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "hello",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Greeting",
	}, func(ctx context.Context, _ *struct{}) (*dataOutput, error) {
		return success("timesheet proxy is running"), nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "bulk-submit",
		Method:        http.MethodPost,
		Path:          "/bulk",
		Summary:       "Create one entry per business day of a range",
		Tags:          []string{"timesheet"},
		DefaultStatus: http.StatusOK,
	}, func(ctx context.Context, input *struct {
		CookieInput
		Body EntryRequest
	}) (*dataOutput, error) {
		res, err := e.Bulk(ctx, input.credential(), engine.BulkOptions{
			Task:      input.Body.task(),
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(res.Value()), nil
	})
}

func registerReports(api huma.API, e engine.Engine, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "last-week",
		Method:      http.MethodGet,
		Path:        "/last-week",
		Summary:     "Most recent entries",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *CookieInput) (*dataOutput, error) {
		records, err := e.Latest(ctx, input.credential())
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(records), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "this-week",
		Method:      http.MethodGet,
		Path:        "/this-week",
		Summary:     "Report for the current week",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *CookieInput) (*dataOutput, error) {
		week, err := e.ThisWeek(ctx, input.credential())
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(week), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "by-date",
		Method:      http.MethodGet,
		Path:        "/date/{date}",
		Summary:     "Records for a single date",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *struct {
		CookieInput
		Date string `path:"date" example:"2023-06-05"`
	}) (*dataOutput, error) {
		records, err := e.ByDate(ctx, input.credential(), input.Date)
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(records), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "range-date",
		Method:      http.MethodGet,
		Path:        "/range-date/{startDate}/{endDate}",
		Summary:     "Records for an inclusive date range",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *struct {
		CookieInput
		StartDate string `path:"startDate" example:"2023-06-05"`
		EndDate   string `path:"endDate" example:"2023-06-20"`
	}) (*dataOutput, error) {
		records, err := e.Range(ctx, input.credential(), input.StartDate, input.EndDate)
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(records), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-valid",
		Method:      http.MethodGet,
		Path:        "/check-valid/{year}/{month}",
		Summary:     "Eight-hour rule check for a month",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *struct {
		CookieInput
		Year  int `path:"year" example:"2023"`
		Month int `path:"month" example:"6"`
	}) (*dataOutput, error) {
		out, err := e.CheckMonth(ctx, input.credential(), input.Year, input.Month)
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(out), nil
	})
}

func registerEntries(api huma.API, e engine.Engine, logger *slog.Logger) {
	huma.Register(api, huma.Operation{
		OperationID: "update-entry",
		Method:      http.MethodPut,
		Path:        "/update/{id}",
		Summary:     "Rewrite an entry",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *struct {
		CookieInput
		ID   string `path:"id"`
		Body EntryRequest
	}) (*dataOutput, error) {
		data, err := e.Update(ctx, input.credential(), input.ID, engine.UpdateOptions{
			Task:      input.Body.task(),
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(data), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-entry",
		Method:      http.MethodDelete,
		Path:        "/delete/{id}",
		Summary:     "Delete an entry",
		Tags:        []string{"timesheet"},
	}, func(ctx context.Context, input *struct {
		CookieInput
		ID string `path:"id"`
	}) (*dataOutput, error) {
		data, err := e.Delete(ctx, input.credential(), input.ID)
		if err != nil {
			return nil, handleError(logger, err)
		}
		return success(data), nil
	})
}

// CookieInput carries the caller's HR session. It is embedded in every
// /timesheet input and must stay exported for huma to bind it.
type CookieInput struct {
	Cookie string `header:"Cookie" doc:"HR platform session cookie, forwarded verbatim"`
}

func (c CookieInput) credential() domain.Credential {
	return domain.Credential(strings.TrimSpace(c.Cookie))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tsproxy/internal/calendar"
	"tsproxy/internal/config"
	"tsproxy/internal/domain"
	"tsproxy/internal/engine"
	"tsproxy/internal/remote"
)

const sessionCookie = "PHPSESSID=abc; _identity=xyz"

// fakeHR mimics the HR platform's timesheet endpoints.
type fakeHR struct {
	mu      sync.Mutex
	stores  []map[string]any
	cookies []string
	failOn  string
}

func (f *fakeHR) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.cookies = append(f.cookies, r.Header.Get("Cookie"))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/store":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.stores = append(f.stores, body)
		f.mu.Unlock()
		if f.failOn != "" && strings.HasPrefix(body["start_time"].(string), f.failOn) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, `{"status":422,"error":"timesheet already exists"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": 200, "data": body})
	case r.Method == http.MethodGet && r.URL.Path == "/api/report":
		anchor, err := calendar.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(weekBody(anchor))
	case r.Method == http.MethodGet && r.URL.Path == "/api":
		json.NewEncoder(w).Encode(map[string]any{"status": 200, "data": weekBody(time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC)).Data.Daily[:2]})
	case r.Method == http.MethodPut && r.URL.Path == "/api/update":
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"status": 200, "data": body})
	case r.Method == http.MethodDelete && r.URL.Path == "/api/delete":
		io.WriteString(w, `{"status":200,"data":null}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"status":404,"message":"not found"}`)
	}
}

func (f *fakeHR) storeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stores)
}

func (f *fakeHR) seenCookies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cookies...)
}

func weekBody(anchor time.Time) remote.Envelope[remote.WeekReport] {
	monday := calendar.MondayOf(anchor)
	var days []remote.Day
	for i := 0; i < 7; i++ {
		d := monday.AddDate(0, 0, i)
		total := "08:00:00"
		if calendar.Weekend(d) {
			total = "00:00:00"
		}
		days = append(days, remote.Day{
			Date:          calendar.FormatDate(d),
			TotalDuration: total,
			Data: []remote.Entry{{
				ID: domain.NumericID(int64(500 + i)), TaskID: domain.NumericID(42), TaskTitle: "Platform",
				ActivityDuration: total, Activity: "review",
			}},
		})
	}
	return remote.Envelope[remote.WeekReport]{Status: 200, Data: remote.WeekReport{DurationWeek: "40:00:00", Daily: days}}
}

type testServer struct {
	URL    string
	HR     *fakeHR
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	hr := &fakeHR{}
	upstream := httptest.NewServer(hr)

	cfg := config.Default()
	cfg.Remote.BaseURL = upstream.URL + "/api"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(cfg, remote.New(cfg.Remote.BaseURL, cfg.Remote.Timeout), logger)
	e.Now = func() time.Time { return time.Date(2023, 6, 14, 12, 0, 0, 0, time.UTC) }

	handler, err := New(Config{Engine: e, Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		HR:     hr,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			upstream.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

var withCookie = map[string]string{"Cookie": sessionCookie}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Remote json.RawMessage `json:"remote"`
}

func decode(t *testing.T, data []byte) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env
}

func TestBulkRangeSkipsWeekend(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/timesheet/bulk", map[string]any{
		"taskId":    42,
		"activity":  "review",
		"startDate": "2023-06-09",
		"endDate":   "2023-06-12",
	}, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	env := decode(t, data)
	assert.Equal(t, "success", env.Status)
	var responses []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &responses))
	require.Len(t, responses, 2)
	assert.Equal(t, "2023-06-09 09:00:00", responses[0]["data"].(map[string]any)["start_time"])
	assert.Equal(t, "2023-06-12 17:00:00", responses[1]["data"].(map[string]any)["end_time"])

	assert.Equal(t, 2, srv.HR.storeCount())
	for _, c := range srv.HR.seenCookies() {
		assert.Equal(t, sessionCookie, c)
	}
}

func TestBulkSingleDateReturnsObject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/timesheet/bulk", map[string]any{
		"taskId":    42,
		"activity":  "review",
		"startDate": "2023-06-10",
	}, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	env := decode(t, data)
	var single map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &single))
	assert.EqualValues(t, 200, single["status"])
}

func TestBulkInvertedRangeIsBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/timesheet/bulk", map[string]any{
		"taskId":    42,
		"activity":  "review",
		"startDate": "2023-06-10",
		"endDate":   "2023-06-01",
	}, withCookie)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decode(t, data)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "end date should be greater than start date", env.Error)
	assert.Zero(t, srv.HR.storeCount())
}

func TestMissingCookieIsRejectedBeforeRemote(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/this-week", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "cookie is required", decode(t, data).Error)
	assert.Empty(t, srv.HR.seenCookies())
}

func TestBodyValidationUsesEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/timesheet/bulk", map[string]any{
		"activity": "review",
	}, withCookie)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	env := decode(t, data)
	assert.Equal(t, "error", env.Status)
	assert.NotEmpty(t, env.Error)
}

func TestRemoteFailurePassesMessageThrough(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	srv.HR.failOn = "2023-06-13"

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/timesheet/bulk", map[string]any{
		"taskId":    42,
		"activity":  "review",
		"startDate": "2023-06-12",
		"endDate":   "2023-06-14",
	}, withCookie)
	require.Equal(t, http.StatusBadGateway, res.StatusCode, string(data))
	env := decode(t, data)
	assert.Equal(t, "timesheet already exists", env.Error)
	assert.JSONEq(t, `{"status":422,"error":"timesheet already exists"}`, string(env.Remote))
}

func TestRangeDate(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/range-date/2023-06-07/2023-06-20", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	var records []struct {
		Date string `json:"date"`
		Data []struct {
			Duration string `json:"duration"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &records))
	require.Len(t, records, 14)
	assert.Equal(t, "2023-06-07", records[0].Date)
	assert.Equal(t, "2023-06-20", records[13].Date)
	assert.Equal(t, "08:00:00", records[0].Data[0].Duration)
}

func TestCheckValid(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/check-valid/2023/2", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &out))
	require.Len(t, out, 28)
	for _, rec := range out {
		assert.Equal(t, true, rec["is_valid"], rec["date"])
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/check-valid/2023/june", nil, withCookie)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/check-valid/2023/13", nil, withCookie)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestSingleReportRoutes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/this-week", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var week struct {
		DurationWeek string `json:"duration_week"`
		Daily        []any  `json:"daily"`
	}
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &week))
	assert.Equal(t, "40:00:00", week.DurationWeek)
	assert.Len(t, week.Daily, 7)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/date/2023-06-08", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var day []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &day))
	require.Len(t, day, 1)
	assert.Equal(t, "2023-06-08", day[0]["date"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/last-week", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var latest []map[string]any
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &latest))
	assert.Len(t, latest, 2)
}

func TestUpdateAndDelete(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/timesheet/update/77", map[string]any{
		"taskId":    42,
		"activity":  "pairing",
		"startDate": "2023-06-12",
	}, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated map[string]any
	require.NoError(t, json.Unmarshal(decode(t, data).Data, &updated))
	assert.EqualValues(t, 77, updated["id"])
	assert.Equal(t, "2023-06-12 09:00:00", updated["start_time"])
	assert.Equal(t, "2023-06-12 17:00:00", updated["end_time"])

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/timesheet/delete/77", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, "success", decode(t, data).Status)

	res, data = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/timesheet/delete/nope", nil, withCookie)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/timesheet/range-date/{startDate}/{endDate}")

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestEveryTimesheetRouteForwardsCookie(t *testing.T) {
	entry := map[string]any{"taskId": 42, "activity": "review", "startDate": "2023-06-12"}
	routes := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPost, "/timesheet/bulk", entry},
		{http.MethodGet, "/timesheet/last-week", nil},
		{http.MethodGet, "/timesheet/this-week", nil},
		{http.MethodGet, "/timesheet/date/2023-06-08", nil},
		{http.MethodGet, "/timesheet/range-date/2023-06-05/2023-06-09", nil},
		{http.MethodGet, "/timesheet/check-valid/2023/6", nil},
		{http.MethodPut, "/timesheet/update/77", entry},
		{http.MethodDelete, "/timesheet/delete/77", nil},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			srv, cleanup := newTestServer(t)
			defer cleanup()

			res, data := doJSON(t, srv.Client(), rt.method, srv.URL+rt.path, rt.body, withCookie)
			require.Equal(t, http.StatusOK, res.StatusCode, string(data))
			seen := srv.HR.seenCookies()
			require.NotEmpty(t, seen)
			for _, c := range seen {
				assert.Equal(t, sessionCookie, c)
			}
		})
	}
}

func TestEnvelopesCarryNoSchemaLink(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/date/2023-06-08", nil, withCookie)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ok map[string]any
	require.NoError(t, json.Unmarshal(data, &ok))
	assert.NotContains(t, ok, "$schema")
	assert.Empty(t, res.Header.Get("Link"))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/timesheet/date/june", nil, withCookie)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var failed map[string]any
	require.NoError(t, json.Unmarshal(data, &failed))
	assert.NotContains(t, failed, "$schema")
	assert.ElementsMatch(t, []string{"status", "error"}, keys(failed))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestOpenAPIConcurrentFetches(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([]string, n)
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			b, _ := io.ReadAll(res.Body)
			codes[i], bodies[i] = res.StatusCode, string(b)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, bodies[0], bodies[i])
	}
	assert.Contains(t, bodies[0], "/timesheet/check-valid/{year}/{month}")
}

package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"address-distance/internal/calculator"
	"address-distance/internal/jobs"
	"address-distance/internal/models"
	"address-distance/internal/report"
	"address-distance/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mapGeocoder map[string]models.Coordinate

func (m mapGeocoder) Geocode(_ context.Context, address string) (models.Coordinate, bool) {
	c, ok := m[address]
	return c, ok
}

var places = mapGeocoder{
	"Mumbai Central Station":   {Lat: 18.969, Lon: 72.8205},
	"Gateway of India, Mumbai": {Lat: 18.922, Lon: 72.8347},
	"Bandra West, Mumbai":      {Lat: 19.0596, Lon: 72.8295},
}

type fakeHistory struct {
	runs []store.RunSummary
	err  error
}

func (f fakeHistory) Recent(_ context.Context, limit int) ([]store.RunSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func newTestServer(t *testing.T, history History, start bool) (*gin.Engine, *jobs.Runner) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	runner := jobs.NewRunner(calculator.NewPipeline(places, nil, 0), jobs.NewStore(), nil, 1)
	if start {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		runner.Start(ctx)
	}

	return New(Options{Runner: runner, History: history, SessionSecret: "test-secret"}), runner
}

func postJSON(t *testing.T, r http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jobID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

func waitDone(t *testing.T, runner *jobs.Runner, id string) *jobs.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		job := runner.Store().Get(id)
		return job != nil && job.Status() == jobs.StatusDone
	}, 2*time.Second, 5*time.Millisecond)
	return runner.Store().Get(id)
}

func get(r http.Handler, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r, _ := newTestServer(t, nil, false)

	rec := get(r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateRunJSON(t *testing.T) {
	r, runner := newTestServer(t, nil, true)

	rec := postJSON(t, r, runRequest{
		Origin:       "  Mumbai Central Station ",
		Destinations: []string{"Gateway of India, Mumbai", "", "Atlantis", "Bandra West, Mumbai"},
		Strategy:     "straight",
	})
	id := jobID(t, rec)
	waitDone(t, runner, id)

	rec = get(r, "/runs/"+id)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap jobs.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, jobs.StatusDone, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "Mumbai Central Station", snap.Origin)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, 3, snap.Summary.Total)
	assert.Equal(t, 2, snap.Summary.Successful)

	records := snap.Run.Records
	require.Len(t, records, 3)
	assert.Equal(t, "Gateway of India, Mumbai", records[0].Address)
	assert.Equal(t, models.StatusSuccess, records[0].Status)
	assert.Equal(t, models.StatusAddressNotFound, records[1].Status)
	assert.Nil(t, records[1].DistanceKm)
	assert.Equal(t, "Bandra West, Mumbai", records[2].Address)
}

func TestCreateRunValidation(t *testing.T) {
	r, _ := newTestServer(t, nil, false)

	tests := []struct {
		name string
		body runRequest
		want string
	}{
		{"missing origin", runRequest{Origin: "  ", Destinations: []string{"a"}}, "origin"},
		{"no destinations", runRequest{Origin: "Mumbai", Destinations: []string{" ", ""}}, "destination"},
		{"unknown strategy", runRequest{Origin: "Mumbai", Destinations: []string{"a"}, Strategy: "teleport"}, "teleport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, r, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestCreateRunMalformedJSON(t *testing.T) {
	r, _ := newTestServer(t, nil, false)

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunMultipart(t *testing.T) {
	r, runner := newTestServer(t, nil, true)

	wb := excelize.NewFile()
	require.NoError(t, wb.SetCellValue("Sheet1", "A1", "Address"))
	require.NoError(t, wb.SetCellValue("Sheet1", "A2", "Bandra West, Mumbai"))
	xlsx, err := wb.WriteToBuffer()
	require.NoError(t, err)
	wb.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("origin", "Mumbai Central Station"))
	require.NoError(t, mw.WriteField("strategy", "Straight Line (Haversine)"))
	require.NoError(t, mw.WriteField("addresses", "Gateway of India, Mumbai\r\n\r\n"))
	fw, err := mw.CreateFormFile("input_file", "addresses.xlsx")
	require.NoError(t, err)
	_, err = fw.Write(xlsx.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	job := waitDone(t, runner, jobID(t, rec))
	run := job.Run()
	require.Len(t, run.Records, 2)
	assert.Equal(t, "Gateway of India, Mumbai", run.Records[0].Address)
	assert.Equal(t, "Bandra West, Mumbai", run.Records[1].Address)
	assert.Equal(t, models.StraightLine, run.Strategy)
}

func TestCreateRunQueueFull(t *testing.T) {
	r, _ := newTestServer(t, nil, false)
	body := runRequest{Origin: "Mumbai Central Station", Destinations: []string{"Gateway of India, Mumbai"}}

	jobID(t, postJSON(t, r, body))

	rec := postJSON(t, r, body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLastRunUsesSession(t *testing.T) {
	r, runner := newTestServer(t, nil, true)

	assert.Equal(t, http.StatusNotFound, get(r, "/runs/last").Code)

	rec := postJSON(t, r, runRequest{Origin: "Mumbai Central Station", Destinations: []string{"Gateway of India, Mumbai"}})
	id := jobID(t, rec)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	waitDone(t, runner, id)

	rec = get(r, "/runs/last", cookies...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)
}

func TestGetLogs(t *testing.T) {
	r, runner := newTestServer(t, nil, true)

	id := jobID(t, postJSON(t, r, runRequest{Origin: "Mumbai Central Station", Destinations: []string{"Gateway of India, Mumbai"}}))
	waitDone(t, runner, id)

	rec := get(r, "/runs/"+id+"/logs")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Logs     []string `json:"logs"`
		Status   string   `json:"status"`
		Progress int      `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "done", resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Contains(t, strings.Join(resp.Logs, "\n"), "Processed 1/1")
}

func TestUnknownRun(t *testing.T) {
	r, _ := newTestServer(t, nil, false)

	for _, path := range []string{"/runs/nope", "/runs/nope/logs", "/runs/nope/export", "/runs/nope/ws"} {
		assert.Equal(t, http.StatusNotFound, get(r, path).Code, path)
	}
}

func TestExport(t *testing.T) {
	r, runner := newTestServer(t, nil, true)

	id := jobID(t, postJSON(t, r, runRequest{
		Origin:       "Mumbai Central Station",
		Destinations: []string{"Gateway of India, Mumbai", "Atlantis"},
	}))
	waitDone(t, runner, id)

	t.Run("csv", func(t *testing.T) {
		rec := get(r, "/runs/"+id+"/export?format=csv")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Regexp(t, `attachment; filename="distance_results_\d+\.csv"`, rec.Header().Get("Content-Disposition"))

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, report.Columns, rows[0])
		assert.Equal(t, "Atlantis", rows[2][0])
		assert.Equal(t, "", rows[2][1])
		assert.Equal(t, "Address not found", rows[2][3])
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := get(r, "/runs/"+id+"/export?format=xlsx")
		require.Equal(t, http.StatusOK, rec.Code)

		wb, err := excelize.OpenReader(rec.Body)
		require.NoError(t, err)
		defer wb.Close()

		rows, err := wb.GetRows("Distance Results")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Gateway of India, Mumbai", rows[1][0])
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get(r, "/runs/"+id+"/export?format=pdf").Code)
	})
}

func TestExportBeforeFinished(t *testing.T) {
	r, _ := newTestServer(t, nil, false)

	id := jobID(t, postJSON(t, r, runRequest{Origin: "Mumbai Central Station", Destinations: []string{"Gateway of India, Mumbai"}}))

	assert.Equal(t, http.StatusConflict, get(r, "/runs/"+id+"/export").Code)
}

func TestHistory(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		r, _ := newTestServer(t, nil, false)
		rec := get(r, "/history")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not configured")
	})

	t.Run("lists runs", func(t *testing.T) {
		h := fakeHistory{runs: []store.RunSummary{{ID: "a", Total: 3}, {ID: "b", Total: 1}}}
		r, _ := newTestServer(t, h, false)

		rec := get(r, "/history?limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Runs []store.RunSummary `json:"runs"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, "a", resp.Runs[0].ID)
	})

	t.Run("bad limit", func(t *testing.T) {
		r, _ := newTestServer(t, fakeHistory{}, false)
		assert.Equal(t, http.StatusBadRequest, get(r, "/history?limit=0").Code)
	})

	t.Run("store error", func(t *testing.T) {
		r, _ := newTestServer(t, fakeHistory{err: errors.New("connection refused")}, false)
		assert.Equal(t, http.StatusInternalServerError, get(r, "/history").Code)
	})
}

func TestStreamRun(t *testing.T) {
	r, _ := newTestServer(t, nil, true)
	srv := httptest.NewServer(r)
	defer srv.Close()

	b, err := json.Marshal(runRequest{Origin: "Mumbai Central Station", Destinations: []string{"Gateway of India, Mumbai", "Bandra West, Mumbai"}})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	var created struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/runs/" + created.JobID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last jobs.Snapshot
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap jobs.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		assert.Equal(t, created.JobID, snap.ID)
		assert.GreaterOrEqual(t, snap.Version, last.Version)
		last = snap
	}

	assert.Equal(t, jobs.StatusDone, last.Status)
	require.NotNil(t, last.Run)
	assert.Len(t, last.Run.Records, 2)
}

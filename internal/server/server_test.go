package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"mapa-rutas/internal/config"
	"mapa-rutas/internal/jobs"
	"mapa-rutas/internal/metrics"
)

const sample = "4.Nombre del Técnico Instalador;2.Nro de O.T.;1.NODO DEL POSTE.;Latitud;Longitud;FechaCreacion;Ubicacion\n" +
	"Ana María;OT-1;ND-1;4,60;-74,10;15/03/2024 02:30:00 p. m.;https://maps.google.com/?q=4.6,-74.1\n" +
	"ana maria;OT-2;ND-1;4,60;-74,10;15/03/2024 08:00:00 a. m.;\n" +
	"Luis;OT-3;ND-2;4,70;-74,20;16/03/2024 09:15:00;\n" +
	"Luis;OT-4;ND-2;abc;-74,20;16/03/2024 09:15:00;\n" +
	"Luis;OT-5;ND-2;-4,70;-74,20;16/03/2024 09:15:00;\n"

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.RateRPS = 1000
	cfg.Server.RateBurst = 1000
	return cfg
}

// client replays the session cookie like a browser would.
type client struct {
	t       *testing.T
	h       http.Handler
	cookies []*http.Cookie
}

func newClient(t *testing.T, s *Server) *client {
	return &client{t: t, h: s.Handler()}
}

func (cl *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range cl.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	cl.h.ServeHTTP(rec, req)
	if cs := rec.Result().Cookies(); len(cs) > 0 {
		cl.cookies = cs
	}
	return rec
}

func (cl *client) get(path string) *httptest.ResponseRecorder {
	return cl.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (cl *client) getJSON(path string, out any) {
	cl.t.Helper()
	rec := cl.get(path)
	require.Equal(cl.t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(cl.t, json.Unmarshal(rec.Body.Bytes(), out))
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// upload posts content and waits for the job to end.
func (cl *client) upload(filename, content string) jobs.Snapshot {
	cl.t.Helper()
	rec := cl.do(uploadRequest(cl.t, filename, content))
	require.Equal(cl.t, http.StatusAccepted, rec.Code, rec.Body.String())

	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(cl.t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	var snap jobs.Snapshot
	require.Eventually(cl.t, func() bool {
		cl.getJSON("/jobs/"+accepted.JobID, &snap)
		return snap.Status != jobs.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)
	return snap
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHealthzAndMetrics(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))

	rec := cl.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = cl.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestAPI_NoDataset(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))
	rec := cl.get("/api/technicians")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no dataset loaded", decodeProblem(t, rec).Title)
	assert.NotEmpty(t, cl.cookies, "session cookie issued")
}

func TestAPI_ReadsDoNotAllocateSessions(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	for i := 0; i < 3; i++ {
		cl := newClient(t, s)
		assert.Equal(t, http.StatusNotFound, cl.get("/api/dataset").Code)
	}
	assert.Equal(t, 0, s.sessions.Len())

	cl := newClient(t, s)
	cl.upload("datos.csv", sample)
	assert.Equal(t, 1, s.sessions.Len())
}

func TestSweepOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Server.SessionTTL = "1ns"
	s := New(cfg, zap.NewNop())

	cl := newClient(t, s)
	cl.upload("datos.csv", sample)
	require.Equal(t, 1, s.sessions.Len())

	time.Sleep(time.Millisecond)
	s.sweepOnce()
	assert.Equal(t, 0, s.sessions.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestUploadAndQuery(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))

	snap := cl.upload("datos.csv", sample)
	require.Equal(t, jobs.StatusDone, snap.Status, snap.Error)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 3, snap.Result.Records)
	assert.Equal(t, 2, snap.Result.Technicians)
	assert.Equal(t, 1, snap.Result.Stats.DroppedParse)
	assert.Equal(t, 1, snap.Result.Stats.DroppedRange)

	var techs struct{ Technicians []string }
	cl.getJSON("/api/technicians", &techs)
	assert.Equal(t, []string{"ANA MARIA", "LUIS"}, techs.Technicians)

	var dates struct{ Dates []string }
	cl.getJSON("/api/dates?technician=LUIS", &dates)
	assert.Equal(t, []string{"16/03/2024"}, dates.Dates)

	var hours struct{ Hours []string }
	cl.getJSON("/api/hours?date=15/03/2024", &hours)
	assert.Equal(t, []string{"08:00", "14:30"}, hours.Hours)
	cl.getJSON("/api/hours", &hours)
	assert.Empty(t, hours.Hours)

	var rng struct{ First, Last *string }
	cl.getJSON("/api/range", &rng)
	require.NotNil(t, rng.First)
	assert.Equal(t, "15/03/2024 08:00", *rng.First)
	assert.Equal(t, "16/03/2024 09:15", *rng.Last)

	var m struct {
		View struct {
			Zoom int
		}
		Count   int
		Routes  []routeSummary
		GeoJSON struct {
			Features []struct {
				Properties map[string]any
			}
		} `json:"geojson"`
	}
	cl.getJSON("/api/map", &m)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 12, m.View.Zoom)
	require.Len(t, m.GeoJSON.Features, 4)
	first := m.GeoJSON.Features[0].Properties
	assert.Equal(t, "ANA MARIA", first["technician"])
	assert.Equal(t, "1", first["label"])
	assert.Equal(t, "OT-2", first["work_order"], "earliest visit is first")
	require.Len(t, m.Routes, 2)
	assert.Equal(t, 2, m.Routes[0].Stops)

	cl.getJSON("/api/map?routes=none&technician=LUIS", &m)
	assert.Equal(t, 1, m.Count)
	assert.Equal(t, 14, m.View.Zoom)
	assert.Len(t, m.GeoJSON.Features, 1)

	cl.getJSON("/api/map?ot=NOPE", &m)
	assert.Equal(t, 0, m.Count)
	assert.Equal(t, 10, m.View.Zoom)
	assert.Empty(t, m.GeoJSON.Features)

	var detail map[string]any
	cl.getJSON("/api/records/2", &detail)
	assert.Equal(t, "Ver en Google Maps", detail["link_text"])
	assert.Equal(t, "Ana María", detail["name"])
	cl.getJSON("/api/records/3", &detail)
	assert.Equal(t, "Ubicación no disponible", detail["link_text"])

	assert.Equal(t, http.StatusNotFound, cl.get("/api/records/5").Code, "dropped rows are not addressable")
	assert.Equal(t, http.StatusBadRequest, cl.get("/api/records/x").Code)
}

func TestExport(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))
	require.Equal(t, jobs.StatusDone, cl.upload("datos.csv", sample).Status)

	rec := cl.get("/api/export?node=ND-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Rutas")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "OT-2", rows[1][3])
}

func TestInvalidFilter(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))
	require.Equal(t, jobs.StatusDone, cl.upload("datos.csv", sample).Status)

	for _, path := range []string{"/api/map?date=ayer", "/api/map?hour=99:00", "/api/map?routes=all", "/api/export?date=32/13/2024"} {
		rec := cl.get(path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "invalid filter", decodeProblem(t, rec).Title)
	}
}

func TestRejectedUploadKeepsDataset(t *testing.T) {
	cl := newClient(t, New(testConfig(), zap.NewNop()))
	require.Equal(t, jobs.StatusDone, cl.upload("datos.csv", sample).Status)

	snap := cl.upload("malo.csv", "Tecnico;OT;Nodo;Longitud;FechaCreacion\nAna;1;N;-74;\n")
	assert.Equal(t, jobs.StatusError, snap.Status)
	assert.Contains(t, snap.Error, "upload rejected")
	assert.Contains(t, snap.Error, "Latitud")

	snap = cl.upload("roto.xlsx", "not a workbook")
	assert.Equal(t, jobs.StatusError, snap.Status)

	var techs struct{ Technicians []string }
	cl.getJSON("/api/technicians", &techs)
	assert.Equal(t, []string{"ANA MARIA", "LUIS"}, techs.Technicians)
}

func TestSessionsAreIsolated(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	a, b := newClient(t, s), newClient(t, s)
	require.Equal(t, jobs.StatusDone, a.upload("datos.csv", sample).Status)

	assert.Equal(t, http.StatusOK, a.get("/api/technicians").Code)
	assert.Equal(t, http.StatusNotFound, b.get("/api/technicians").Code)
}

func TestJobNotVisibleToOtherSession(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	a, b := newClient(t, s), newClient(t, s)
	rec := a.do(uploadRequest(t, "datos.csv", sample))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	assert.Equal(t, http.StatusNotFound, b.get("/jobs/"+accepted.JobID).Code)
	assert.Equal(t, http.StatusNotFound, a.get("/jobs/unknown").Code)
	<-s.jobs.Get(accepted.JobID).Done()
}

func TestUpload_Conflict(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	cl := newClient(t, s)
	rec := cl.do(uploadRequest(t, "datos.csv", sample))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	job := s.jobs.Get(accepted.JobID)
	<-job.Done()

	slot := s.sessions.Get(job.Session)
	require.True(t, slot.Begin())
	defer slot.End()

	rec = cl.do(uploadRequest(t, "datos.csv", sample))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "upload in progress", decodeProblem(t, rec).Title)
}

func TestUpload_BadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxUploadMB = 1
	cl := newClient(t, New(cfg, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := cl.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing file", decodeProblem(t, rec).Title)

	rec = cl.do(uploadRequest(t, "big.csv", strings.Repeat("a", 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUpload_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateRPS = 0.001
	cfg.Server.RateBurst = 1
	cl := newClient(t, New(cfg, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	assert.Equal(t, http.StatusBadRequest, cl.do(req).Code)

	req = httptest.NewRequest(http.MethodPost, "/upload", nil)
	rec := cl.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestJobStream(t *testing.T) {
	s := New(testConfig(), zap.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar}

	req := uploadRequest(t, "datos.csv", sample)
	httpReq, err := http.NewRequest(http.MethodPost, ts.URL+"/upload", req.Body)
	require.NoError(t, err)
	httpReq.Header = req.Header
	resp, err := hc.Do(httpReq)
	require.NoError(t, err)
	var accepted struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	header := http.Header{}
	for _, c := range jar.Cookies(httpReq.URL) {
		header.Add("Cookie", c.String())
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/jobs/" + accepted.JobID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var logs []string
	for {
		var msg streamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "status" {
			require.NotNil(t, msg.Job)
			assert.Equal(t, jobs.StatusDone, msg.Job.Status)
			break
		}
		logs = append(logs, msg.Line)
	}
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0], "Procesando archivo: datos.csv")
	assert.Contains(t, logs[len(logs)-1], "Proceso completado.")
}

func TestRun_Shutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = "0"
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(cfg, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mapa-rutas/internal/dataset"
	"mapa-rutas/internal/filter"
	"mapa-rutas/internal/jobs"
	"mapa-rutas/internal/metrics"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

func (s *Server) upload(c *gin.Context) {
	if !s.limiter.Allow() {
		writeProblem(c, http.StatusTooManyRequests, "too many uploads", "try again shortly")
		return
	}

	limit := s.cfg.MaxUploadBytes()
	if c.Request.ContentLength > limit {
		writeProblem(c, http.StatusRequestEntityTooLarge, "upload too large", fmt.Sprintf("limit is %d MB", s.cfg.Server.MaxUploadMB))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(c, http.StatusRequestEntityTooLarge, "upload too large", fmt.Sprintf("limit is %d MB", s.cfg.Server.MaxUploadMB))
			return
		}
		writeProblem(c, http.StatusBadRequest, "missing file", "send the spreadsheet in the multipart field \"file\"")
		return
	}

	// The multipart temp file does not outlive the request.
	f, err := fh.Open()
	if err != nil {
		writeProblem(c, http.StatusBadRequest, "unreadable file", err.Error())
		return
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeProblem(c, http.StatusBadRequest, "unreadable file", err.Error())
		return
	}

	sid := c.GetString(sessionIDKey)
	slot := s.sessions.Get(sid)
	if !slot.Begin() {
		writeProblem(c, http.StatusConflict, "upload in progress", "wait for the current upload to finish")
		return
	}

	filename := fh.Filename
	job := s.jobs.Start(sid, func(j *jobs.Job) (*jobs.Result, error) {
		defer slot.End()

		j.Log(fmt.Sprintf("Procesando archivo: %s", filename))
		start := time.Now()
		ds, err := s.newBuilder(j).Load(bytes.NewReader(data), filename)
		if err != nil {
			status := "error"
			if errors.Is(err, dataset.ErrUploadRejected) {
				status = "rejected"
			}
			metrics.Uploads.WithLabelValues(status).Inc()
			s.logger.Warn("upload failed", zap.String("job", j.ID), zap.String("file", filename), zap.Error(err))
			return nil, err
		}

		slot.Replace(ds)
		elapsed := time.Since(start)
		metrics.Uploads.WithLabelValues("done").Inc()
		metrics.ObserveBuild(ds.Stats, elapsed.Seconds())
		j.Log(fmt.Sprintf("Datos cargados en %s.", elapsed.Round(time.Millisecond)))
		s.logger.Info("dataset loaded",
			zap.String("job", j.ID),
			zap.String("file", filename),
			zap.Int("records", len(ds.Records)),
			zap.Duration("elapsed", elapsed),
		)

		return &jobs.Result{
			Source:      ds.Source,
			Records:     len(ds.Records),
			Technicians: len(filter.Technicians(ds.Records)),
			Stats:       ds.Stats,
		}, nil
	})

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// jobFor returns the job named in the path if it belongs to the caller's
// session.
func (s *Server) jobFor(c *gin.Context) *jobs.Job {
	job := s.jobs.Get(c.Param("id"))
	if job == nil || job.Session != c.GetString(sessionIDKey) {
		return nil
	}
	return job
}

func (s *Server) jobStatus(c *gin.Context) {
	job := s.jobFor(c)
	if job == nil {
		writeProblem(c, http.StatusNotFound, "job not found", "")
		return
	}
	c.JSON(http.StatusOK, job.Snapshot())
}

type streamMessage struct {
	Type string         `json:"type"` // log or status
	Line string         `json:"line,omitempty"`
	Job  *jobs.Snapshot `json:"job,omitempty"`
}

// jobStream pushes job log lines over a websocket and closes with the final
// status once the job ends.
func (s *Server) jobStream(c *gin.Context) {
	job := s.jobFor(c)
	if job == nil {
		writeProblem(c, http.StatusNotFound, "job not found", "")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	backlog, lines, cancel := job.Subscribe()
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for _, line := range backlog {
		if err := conn.WriteJSON(streamMessage{Type: "log", Line: line}); err != nil {
			return
		}
	}
	for line := range lines {
		if err := conn.WriteJSON(streamMessage{Type: "log", Line: line}); err != nil {
			return
		}
	}

	snap := job.Snapshot()
	if err := conn.WriteJSON(streamMessage{Type: "status", Job: &snap}); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

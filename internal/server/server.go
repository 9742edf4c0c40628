// Package server is the HTTP surface: uploads, job tracking and the
// filter/route queries over a session's dataset.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mapa-rutas/internal/config"
	"mapa-rutas/internal/dataset"
	"mapa-rutas/internal/jitter"
	"mapa-rutas/internal/jobs"
	"mapa-rutas/internal/metrics"
	"mapa-rutas/internal/models"
	"mapa-rutas/internal/route"
	"mapa-rutas/internal/session"
)

const (
	sessionIDKey = "sid"
	datasetKey   = "dataset"
)

type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	sessions *session.Store
	jobs     *jobs.Store
	limiter  *rate.Limiter
	engine   *gin.Engine
}

func New(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.RegisterDefault()

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: session.NewStore(),
		jobs:     jobs.NewStore(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.Server.RateRPS), cfg.Server.RateBurst),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	store := cookie.NewStore([]byte(s.cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(s.cfg.GetSessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	app := r.Group("/")
	app.Use(sessions.Sessions(s.cfg.Server.CookieName, store), s.ensureSession)
	{
		app.POST("/upload", s.upload)
		app.GET("/jobs/:id", s.jobStatus)
		app.GET("/jobs/:id/stream", s.jobStream)

		api := app.Group("/api")
		api.Use(s.requireDataset)
		{
			api.GET("/dataset", s.datasetInfo)
			api.GET("/technicians", s.technicians)
			api.GET("/dates", s.dates)
			api.GET("/hours", s.hours)
			api.GET("/range", s.dateRange)
			api.GET("/map", s.mapView)
			api.GET("/records/:id", s.record)
			api.GET("/export", s.export)
		}
	}
	return r
}

// observe records request count and latency by route template.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()

	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	status := strconv.Itoa(c.Writer.Status())
	metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
	metrics.HTTPDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
}

// ensureSession issues a session id cookie on first contact.
func (s *Server) ensureSession(c *gin.Context) {
	sess := sessions.Default(c)
	id, _ := sess.Get(sessionIDKey).(string)
	if id == "" {
		id = uuid.New().String()
		sess.Set(sessionIDKey, id)
		if err := sess.Save(); err != nil {
			s.logger.Error("failed to save session", zap.Error(err))
			writeProblem(c, http.StatusInternalServerError, "session error", err.Error())
			return
		}
	}
	c.Set(sessionIDKey, id)
	c.Next()
}

// requireDataset only looks the slot up; read-only requests from a fresh
// browser must not allocate session state.
func (s *Server) requireDataset(c *gin.Context) {
	var ds *models.Dataset
	if slot := s.sessions.Lookup(c.GetString(sessionIDKey)); slot != nil {
		ds = slot.Current()
	}
	if ds == nil {
		writeProblem(c, http.StatusNotFound, "no dataset loaded", "upload a spreadsheet first")
		return
	}
	c.Set(datasetKey, ds)
	c.Next()
}

func currentDataset(c *gin.Context) *models.Dataset {
	return c.MustGet(datasetKey).(*models.Dataset)
}

func (s *Server) fallbackView() route.View {
	return route.View{
		Center: models.Coordinate{Lat: s.cfg.Map.CenterLat, Lon: s.cfg.Map.CenterLon},
		Zoom:   s.cfg.Map.Zoom,
	}
}

func (s *Server) newBuilder(j *jobs.Job) *dataset.Builder {
	b := dataset.NewBuilder(s.logger)
	b.Resolver = &jitter.Equirectangular{Radius: s.cfg.Jitter.RadiusMeters}
	b.OnProgress = j.SetProgress
	b.OnLog = j.Log
	return b
}

// Run serves until ctx is cancelled, then shuts down gracefully. Idle
// sessions and finished jobs are swept periodically.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.sweep(gctx, time.Minute)
		return nil
	})
	return g.Wait()
}

func (s *Server) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	expired := s.sessions.Expire(s.cfg.GetSessionTTL())
	pruned := s.jobs.Prune(s.cfg.GetJobTTL())
	active := s.sessions.Len()
	metrics.ActiveSessions.Set(float64(active))
	if expired > 0 || pruned > 0 {
		s.logger.Debug("swept idle state",
			zap.Int("sessions", expired), zap.Int("jobs", pruned), zap.Int("active", active))
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"pkt.systems/noctrace/core"
	"pkt.systems/noctrace/internal/logx"
	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
)

const defaultHeartbeat = 15 * time.Second

// Server serves the engine HTTP facade.
type Server struct {
	cfg    Config
	engine core.Engine
	hub    *Hub
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, engine core.Engine, hub *Hub) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if hub == nil {
		hub = NewHub(0)
	}
	return &Server{cfg: cfg, engine: engine, hub: hub}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(recovery(), requestLogging(s.engine.ID))

	router.GET("/healthz", s.handleHealth)
	api := router.Group("/api")
	api.POST("/runs", s.handleStart)
	api.POST("/runs/cancel", s.handleCancel)
	api.POST("/runs/retry", s.handleRetry)
	api.GET("/session", s.handleSession)
	api.GET("/events", s.handleStream)
	api.GET("/visualizations/:step", s.handleVisualization)
	api.POST("/visualizations/:step/retry", s.handleRetryVisualization)
	api.POST("/history", s.handleSaveHistory)
	api.DELETE("/history/:id", s.handleDeleteHistory)
	return router
}

type startRequest struct {
	Alert string `json:"alert"`
}

type runResponse struct {
	SessionID  schema.SessionID `json:"session_id"`
	Generation uint64           `json:"generation"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleStart(c *gin.Context) {
	var payload startRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	generation, err := s.engine.Start(c.Request.Context(), payload.Alert)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, runResponse{SessionID: s.engine.ID(), Generation: generation})
}

func (s *Server) handleRetry(c *gin.Context) {
	generation, err := s.engine.Retry(c.Request.Context())
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, runResponse{SessionID: s.engine.ID(), Generation: generation})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.engine.Cancel(c.Request.Context()); err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleVisualization(c *gin.Context) {
	s.serveVisualization(c, s.engine.Visualization)
}

func (s *Server) handleRetryVisualization(c *gin.Context) {
	s.serveVisualization(c, s.engine.RetryVisualization)
}

func (s *Server) serveVisualization(c *gin.Context, load func(context.Context, int) (schema.VisualizationEntry, error)) {
	step, err := strconv.Atoi(c.Param("step"))
	if err != nil || step <= 0 {
		writeError(c, http.StatusBadRequest, errors.New("step must be a positive integer"))
		return
	}
	entry, err := load(c.Request.Context(), step)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusAccepted, entry)
			return
		}
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleSaveHistory(c *gin.Context) {
	id, err := s.engine.SaveHistory(c.Request.Context())
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schema.SaveHistoryResponse{ID: id})
}

func (s *Server) handleDeleteHistory(c *gin.Context) {
	if err := s.engine.DeleteHistory(c.Request.Context(), schema.HistoryID(c.Param("id"))); err != nil {
		writeEngineError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleStream(c *gin.Context) {
	w := c.Writer
	log := logx.WithSessionID(c.Request.Context(), s.engine.ID())

	lastID := parseUint(c.GetHeader("Last-Event-ID"))
	if lastID == 0 {
		lastID = parseUint(c.Query("after"))
	}

	ch, unsubscribe, seq, history := s.hub.Subscribe("")
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	snapshot := s.engine.Snapshot()
	_ = writeSSEvent(w, StreamEvent{
		Type:       "snapshot",
		SessionID:  snapshot.SessionID,
		Generation: snapshot.Generation,
		State:      snapshot.State,
		Snapshot:   &snapshot,
		Timestamp:  time.Now(),
	})

	sent := seq
	replayCount := 0
	if lastID > 0 {
		for _, event := range history {
			if event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
	}
	w.Flush()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	notify := c.Request.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "seq", seq)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			w.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= sent {
				continue
			}
			sent = event.Seq
			_ = writeSSEvent(w, event)
			w.Flush()
		}
	}
}

type errorResponse struct {
	Error string            `json:"error"`
	Info  *schema.ErrorInfo `json:"info,omitempty"`
}

func writeError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorResponse{Error: err.Error()})
}

func writeEngineError(c *gin.Context, err error) {
	info := core.ClassifyError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorResponse{Error: err.Error(), Info: &info})
}

func statusFor(err error) int {
	var statusErr *orchestrator.StatusError
	switch {
	case errors.Is(err, schema.ErrEmptyAlert), errors.Is(err, schema.ErrInvalidHistoryID):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrStepNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrNoRun), errors.Is(err, schema.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, schema.ErrOrchestratorUnavailable), errors.Is(err, schema.ErrHistoryUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

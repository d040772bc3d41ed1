package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/gradelab/scriptgrade-backend/internal/config"
	"github.com/gradelab/scriptgrade-backend/internal/service"
	ws "github.com/gradelab/scriptgrade-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams job progress events to clients over WebSocket.
type WSHandler struct {
	rdb        *redis.Client
	jobService *service.JobService
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, jobService *service.JobService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:        rdb,
		jobService: jobService,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// JobProgressStream godoc
// WS /ws/v1/jobs/:id/progress
// Streams pipeline progress events for one job until it reaches a
// terminal state or the client disconnects.
func (h *WSHandler) JobProgressStream(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job ID"})
		return
	}

	// Resolve the job before upgrading so a missing job is still a
	// plain HTTP 404.
	job, err := h.jobService.Get(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("job_id", jobID.String()).Logger()
	wsLog.Info().Msg("Client connected")

	// Initial snapshot so late subscribers see the current state.
	ws.WriteTyped(conn, ws.ProgressResponse{
		Event: ws.EventProgress,
		Payload: gin.H{
			"job_id":   job.ID.String(),
			"state":    job.State,
			"progress": job.Progress,
		},
	})
	if job.State.Terminal() {
		ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventDone})
		return
	}

	sub := h.rdb.Subscribe(c.Request.Context(), config.CacheKey.JobEventChannel(jobID.String()))
	defer sub.Close()

	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go drainClient(conn, pings, done)

	streamJobEvents(conn, sub.Channel(), pings, done, wsLog)
}

// drainClient reads client messages so pings keep the connection alive
// and a close frame ends the stream. Pongs are signalled back to the
// event loop, which owns all writes: gorilla/websocket allows at most
// one concurrent writer per connection.
func drainClient(conn *websocket.Conn, pings chan<- struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			return
		}
		if msg.Action == ws.ActionPing {
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}
}

// streamJobEvents forwards pub/sub progress events and pong replies to
// the client from a single goroutine until the job reaches a terminal
// state or the client disconnects.
func streamJobEvents(conn *websocket.Conn, events <-chan *redis.Message, pings <-chan struct{}, done <-chan struct{}, log zerolog.Logger) {
	for {
		select {
		case <-done:
			log.Debug().Msg("Connection closed")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				log.Debug().Msg("Write failed, closing stream")
				return
			}
		case msg, ok := <-events:
			if !ok {
				return
			}
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				log.Error().Err(err).Msg("invalid event payload")
				continue
			}
			if err := ws.WriteTyped(conn, ws.ProgressResponse{Event: ws.EventProgress, Payload: payload}); err != nil {
				log.Debug().Msg("Write failed, closing stream")
				return
			}

			if state, _ := payload["state"].(string); state == "COMPLETED" || state == "FAILED" {
				ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventDone})
				return
			}
		}
	}
}

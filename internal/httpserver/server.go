// Package httpserver exposes live analysis results and the record archive
// over a small JSON API.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/trafficwatch/internal/model"
)

// DefaultAddr is used when NewServer is given an empty address.
const DefaultAddr = "127.0.0.1:3100"

// Server provides an HTTP API over the live state and the optional archive.
type Server struct {
	addr      string
	live      model.LiveQuerier
	archive   model.ArchiveReader // nil when storage is disabled
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. archive may be nil.
func NewServer(addr string, live model.LiveQuerier, archive model.ArchiveReader) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		live:      live,
		archive:   archive,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats/latest", s.handleLatestStats)
	api.GET("/alerts/current", s.handleCurrentAlert)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/rates", s.handleRates)
	api.GET("/schema", s.requireArchive, s.handleSchema)
	api.POST("/query", s.requireArchive, s.handleQuery)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error().Str("component", "httpserver").Err(err).Msg("serve failed")
		}
	}()
	log.Info().Str("component", "httpserver").Str("addr", listener.Addr().String()).Msg("API listening")
	return nil
}

// Addr returns the active listen address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func limitParam(c *gin.Context, def int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) requireArchive(c *gin.Context) {
	if s.archive == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "storage is disabled"})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	counters, err := s.live.Counters()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	body := gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).String(),
		"counters": counters,
	}
	if s.archive != nil {
		if n, err := s.archive.TotalRecordCount(); err == nil {
			body["record_count"] = n
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleLatestStats(c *gin.Context) {
	st, err := s.live.LatestStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no stats emitted yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"first_timestamp": st.FirstTimestamp,
		"last_timestamp":  st.LastTimestamp,
		"total_hits":      st.TotalHits(),
		"sections":        st.SortedSections(),
	})
}

func (s *Server) handleCurrentAlert(c *gin.Context) {
	a, err := s.live.CurrentAlert()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": a != nil, "alert": a})
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit := limitParam(c, model.DefaultRecentAlerts)

	if s.archive != nil {
		history, err := s.archive.AlertHistory(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"source": "archive", "alerts": history})
		return
	}

	recent, err := s.live.RecentAlerts(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": "live", "transitions": recent})
}

func (s *Server) handleRates(c *gin.Context) {
	samples, err := s.live.RateSamples(limitParam(c, model.DefaultRateSamples))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"samples": samples})
}

func (s *Server) handleSchema(c *gin.Context) {
	tables, err := s.archive.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.archive.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.archive.GetSchemaDescription(),
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.archive.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

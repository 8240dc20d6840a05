package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emergent-kg/backend/internal/engine"
	"emergent-kg/backend/internal/graph"
	"emergent-kg/backend/internal/store"
	"emergent-kg/backend/internal/telemetry"
	apperrors "emergent-kg/backend/pkg/errors"
)

// updaterHeader names the collaborator recorded as meta.last_updater.
const updaterHeader = "X-KG-Updater"

const defaultUpdater = "api"

// api serves the collaborator interface. It appends and reads; it never
// plans or commits engine edges.
type api struct {
	engine    *engine.Engine
	store     store.GraphStore
	collector *telemetry.Collector
	now       store.Clock
	log       *zap.Logger
}

func newRouter(a *api) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(a.log))
	router.Use(gin.Recovery())
	router.Use(cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(a.collector.Handler()))

	group := router.Group("/api")
	{
		group.GET("/metrics", a.getMetrics)
		group.GET("/diagnose", a.getDiagnose)
		group.POST("/nodes", a.postNode)
		group.POST("/edges", a.postEdge)
	}
	return router
}

func (a *api) getMetrics(c *gin.Context) {
	report, err := a.engine.Metrics(c.Request.Context())
	if err != nil {
		a.fail(c, "Failed to compute metrics", err)
		return
	}
	a.collector.Observe(report)
	c.JSON(http.StatusOK, report)
}

func (a *api) getDiagnose(c *gin.Context) {
	d, err := a.engine.Diagnose(c.Request.Context(), c.Query("profile"))
	if err != nil {
		a.fail(c, "Failed to diagnose graph", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"healthy":   d.Healthy(),
		"diagnosis": d,
	})
}

func (a *api) postNode(c *gin.Context) {
	var in graph.NodeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.collector.Appends.WithLabelValues("node", "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	nodes, err := store.AppendNodes(c.Request.Context(), a.store, updater(c), a.now, in)
	if err != nil {
		a.collector.Appends.WithLabelValues("node", "failed").Inc()
		a.fail(c, "Failed to append node", err)
		return
	}
	a.collector.Appends.WithLabelValues("node", "ok").Inc()
	a.refresh(c.Request.Context())

	c.JSON(http.StatusCreated, nodes[0])
}

func (a *api) postEdge(c *gin.Context) {
	var in graph.EdgeInput
	if err := c.ShouldBindJSON(&in); err != nil {
		a.collector.Appends.WithLabelValues("edge", "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edges, err := store.AppendEdges(c.Request.Context(), a.store, updater(c), a.now, in)
	if err != nil {
		a.collector.Appends.WithLabelValues("edge", "failed").Inc()
		a.fail(c, "Failed to append edge", err)
		return
	}
	a.collector.Appends.WithLabelValues("edge", "ok").Inc()
	a.refresh(c.Request.Context())

	c.JSON(http.StatusCreated, edges[0])
}

// refresh recomputes the gauges from the persisted graph.
func (a *api) refresh(ctx context.Context) {
	report, err := a.engine.Metrics(ctx)
	if err != nil {
		a.collector.Refreshes.WithLabelValues("failed").Inc()
		a.log.Warn("Failed to refresh gauges", zap.Error(err))
		return
	}
	a.collector.Observe(report)
	a.collector.Refreshes.WithLabelValues("ok").Inc()
}

func (a *api) fail(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return http.StatusBadRequest
	case apperrors.IsErrorType(err, apperrors.ErrorTypeProfile):
		return http.StatusNotFound
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		return http.StatusServiceUnavailable
	case apperrors.IsLoadError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func updater(c *gin.Context) string {
	if u := c.GetHeader(updaterHeader); u != "" {
		return u
	}
	return defaultUpdater
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+updaterHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

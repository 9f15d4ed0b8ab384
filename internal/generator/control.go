package generator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eljaska/telara/internal/groundtruth"
	"github.com/eljaska/telara/pkg/logging"
)

const (
	defaultInjectDuration = 60 * time.Second
	maxInjectDuration     = 10 * time.Minute
)

type injectRequest struct {
	AnomalyType     string `json:"anomaly_type" binding:"required"`
	DurationSeconds int    `json:"duration_seconds"`
}

// RegisterControlRoutes mounts the generator control plane on the router.
func (g *Generator) RegisterControlRoutes(router *gin.Engine) {
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, g.Status())
	})

	router.POST("/start", func(c *gin.Context) {
		if !g.Start() {
			c.JSON(http.StatusOK, gin.H{"status": "already_running", "message": "Generator is already running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "started", "message": "Generator started"})
	})

	router.POST("/stop", func(c *gin.Context) {
		if !g.Stop() {
			c.JSON(http.StatusOK, gin.H{"status": "already_stopped", "message": "Generator is not running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "stopped", "message": "Generator stopped"})
	})

	router.POST("/inject", func(c *gin.Context) {
		var req injectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "anomaly_type is required"})
			return
		}
		if !g.Running() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Generator is not running"})
			return
		}
		if !groundtruth.KnownAnomaly(req.AnomalyType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Unknown anomaly type %q", req.AnomalyType),
				"valid": groundtruth.AnomalyKinds(),
			})
			return
		}

		duration := defaultInjectDuration
		if req.DurationSeconds > 0 {
			duration = time.Duration(req.DurationSeconds) * time.Second
		}
		if duration > maxInjectDuration {
			duration = maxInjectDuration
		}
		if err := g.Inject(req.AnomalyType, duration); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "injected",
			"anomaly_type":     req.AnomalyType,
			"duration_seconds": int(duration.Seconds()),
			"message":          fmt.Sprintf("Injected %s for %d seconds", req.AnomalyType, int(duration.Seconds())),
		})
	})

	router.GET("/anomalies", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"anomaly_types": groundtruth.AnomalyKinds(),
			"patterns":      groundtruth.AnomalyPatterns,
		})
	})
}

// demoStep is one entry of the scripted anomaly walkthrough.
type demoStep struct {
	kind     string
	duration time.Duration
}

var demoSequence = []demoStep{
	{"tachycardia_at_rest", 30 * time.Second},
	{"hypoxia", 20 * time.Second},
	{"fever_onset", 25 * time.Second},
}

// RunDemoSequence cycles through the scripted anomalies until ctx is
// cancelled. Each step waits for its duration plus the cooldown so the
// detector can observe a clean recovery between anomalies.
func (g *Generator) RunDemoSequence(ctx context.Context, warmup, cooldown time.Duration) {
	if !sleepCtx(ctx, warmup) {
		return
	}
	for {
		for _, step := range demoSequence {
			if ctx.Err() != nil {
				return
			}
			if !g.Running() {
				if !sleepCtx(ctx, cooldown) {
					return
				}
				continue
			}
			if err := g.Inject(step.kind, step.duration); err != nil {
				g.logger.WithError(err).WithFields(logging.Fields{
					"anomaly": step.kind,
				}).Warn("Demo anomaly injection failed")
			}
			if !sleepCtx(ctx, step.duration+cooldown) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package api exposes the pipeline over HTTP: health, run status, a manual
// run trigger, and the signed task-queue consumer endpoint.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"newsmith/pipeline"
	"newsmith/queue"
)

// Server wires the coordinator into HTTP handlers.
type Server struct {
	coordinator *pipeline.Coordinator
	taskSecret  string
}

func NewServer(coordinator *pipeline.Coordinator, taskSecret string) *Server {
	return &Server{coordinator: coordinator, taskSecret: taskSecret}
}

// Router constructs the Gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/status", s.handleStatus)
	r.POST("/api/run", s.handleRun)
	r.POST("/api/tasks/item", s.handleItemTask)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.StateManager().GetStatus())
}

// handleRun triggers a pipeline run in the background and returns
// immediately. A run already in flight is reported as a conflict.
func (s *Server) handleRun(c *gin.Context) {
	if s.coordinator.StateManager().Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}

	// The run must outlive the request, so it gets its own context.
	go func() {
		report, err := s.coordinator.Run(context.Background())
		if err != nil {
			log.Printf("❌ Triggered run failed: %v", err)
			return
		}
		log.Printf("✅ Triggered run %s finished: %d published, %d skipped",
			report.RunID, report.Processed, report.Skipped)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "run started"})
}

// handleItemTask is the queue consumer endpoint. The signature is verified
// against the raw body before anything is parsed; processing is synchronous
// so a failed item surfaces as an error status and the queue can redeliver.
func (s *Server) handleItemTask(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader(queue.SignatureHeader)
	if !queue.Verify(s.taskSecret, body, signature) {
		log.Printf("❌ Task request with bad signature from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var task queue.ItemTask
	if err := json.Unmarshal(body, &task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task payload"})
		return
	}

	outcome := s.coordinator.ProcessItem(c.Request.Context(), task.RunID, task.Item)
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

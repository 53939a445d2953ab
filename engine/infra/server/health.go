package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/storage/engine/infra/dbpool"
)

const (
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

type readinessResponse struct {
	Status string         `json:"status"`
	Report *dbpool.Report `json:"report"`
}

type poolView struct {
	Backend dbpool.Backend         `json:"backend"`
	State   string                 `json:"state"`
	Metrics dbpool.MetricsSnapshot `json:"metrics"`
}

func newPoolView(p dbpool.Pool) poolView {
	return poolView{
		Backend: p.Backend(),
		State:   p.State().String(),
		Metrics: p.Metrics().Snapshot(),
	}
}

func (s *Server) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": "alive"}, "message": "Success"})
}

// handleReadiness runs every pool health check. Any unhealthy pool turns the
// response into a 503.
func (s *Server) handleReadiness(c *gin.Context) {
	ctx := c.Request.Context()
	report := s.registry.CheckAll(ctx)
	if s.monitoring != nil {
		s.monitoring.RecordHealthReport(ctx, report)
	}
	code, status, message := determineReadiness(report)
	c.JSON(code, gin.H{
		"data":    readinessResponse{Status: status, Report: report},
		"message": message,
	})
}

func determineReadiness(report *dbpool.Report) (int, string, string) {
	if report.Healthy {
		return http.StatusOK, statusReady, "Success"
	}
	return http.StatusServiceUnavailable, statusNotReady, "One or more pools are unhealthy"
}

func (s *Server) handleListPools(c *gin.Context) {
	pools := s.registry.Pools()
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, newPoolView(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": views, "message": "Success"})
}

func (s *Server) handleGetPool(c *gin.Context) {
	backend := dbpool.Backend(c.Param("backend"))
	p, ok := s.registry.Get(backend)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pool not found", "backend": backend})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newPoolView(p), "message": "Success"})
}

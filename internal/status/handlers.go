package status

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health is the /healthz response body.
type Health struct {
	Status     string         `json:"status"` // healthy, degraded or unhealthy
	Components map[string]any `json:"components"`
}

func (s *Server) handleHealth(c *gin.Context) {
	health := Health{
		Status:     "healthy",
		Components: make(map[string]any),
	}

	if s.src.Session != nil {
		st := s.src.Session()
		health.Components["session"] = gin.H{
			"state":    st.State,
			"connects": st.Connects,
		}
		if !st.Connected {
			health.Status = "degraded"
		}
	}

	if s.src.Service != nil {
		if r, ok := s.src.Service(); ok {
			health.Components["service"] = r
			if !r.Healthy() {
				health.Status = "degraded"
			}
		}
	}

	if s.src.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.src.DB.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["journal_db"] = gin.H{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["journal_db"] = "connected"
		}
	}

	code := http.StatusOK
	if health.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, health)
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.src.Session == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session"})
		return
	}
	c.JSON(http.StatusOK, s.src.Session())
}

func (s *Server) handleJournal(c *gin.Context) {
	c.JSON(http.StatusOK, s.src.Journal())
}

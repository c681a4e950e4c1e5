package scheduler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ksred/dca-api/internal/engine"
	"github.com/ksred/dca-api/internal/types"
	"github.com/ksred/dca-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the internal execution endpoints
type GinHandlers struct {
	scheduler *Scheduler
	engine    *engine.Engine
}

// NewGinHandlers creates handlers for the internal tick and execution
// endpoints
func NewGinHandlers(s *Scheduler, eng *engine.Engine) *GinHandlers {
	return &GinHandlers{
		scheduler: s,
		engine:    eng,
	}
}

// TickHandler handles POST requests that trigger one scheduling pass
// Requires internal authentication
func (h *GinHandlers) TickHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := time.Now()
		records, err := h.scheduler.Tick(c.Request.Context(), now)
		if err != nil {
			response.InternalError(c, err.Error())
			return
		}

		response.Success(c, types.TickResponse{
			TickedAt: now,
			Records:  records,
		})
	}
}

// ExecuteOrderHandler handles POST requests to execute a single order now
// Requires internal authentication
// URL parameter: order_id
func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := h.engine.Execute(c.Request.Context(), c.Param("order_id"), time.Now())
		response.Handle(c, record, err)
	}
}

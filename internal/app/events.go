package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"trading-ledger/internal/monitor"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

// ListEvents 查询审计事件，支持 type 与 limit 参数。
func (h *handler) ListEvents(c *gin.Context) {
	limit := defaultEventLimit
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > maxEventLimit {
				v = maxEventLimit
			}
			limit = v
		}
	}

	eventType := monitor.EventType("")
	if typ := strings.TrimSpace(c.Query("type")); typ != "" {
		eventType = monitor.EventType(strings.ToLower(typ))
	}

	events, err := h.svc.monitor.ListEvents(c.Request.Context(), eventType, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []monitor.Event{}
	}
	c.JSON(http.StatusOK, events)
}

package handlers

import (
	"net/http"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetAlarms returns the stored alarm rules.
func (h *Handlers) GetAlarms(c *gin.Context) {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	rules, err := h.repos.Alarm.List(ctx)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": rules})
}

// SetAlarms replaces the rule set. Invalid rules are dropped; the response
// reports how many were kept. The next poll applies them.
func (h *Handlers) SetAlarms(c *gin.Context) {
	var req struct {
		Settings *[]alarms.Rule `json:"settings"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Settings == nil {
		utils.SendError(c, http.StatusBadRequest, "Settings must be an array")
		return
	}

	valid := alarms.Filter(*req.Settings)

	ctx, cancel := h.queryContext(c)
	defer cancel()

	if err := h.repos.Alarm.Replace(ctx, valid); err != nil {
		h.sendError(c, err)
		return
	}

	h.log.WithFields(logrus.Fields{
		"received": len(*req.Settings),
		"kept":     len(valid),
	}).Info("Alarm settings updated")

	c.JSON(http.StatusOK, gin.H{"message": "Alarm settings updated", "count": len(valid)})
}

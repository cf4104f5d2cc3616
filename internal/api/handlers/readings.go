package handlers

import (
	"net/http"

	"github.com/frostdev-ops/meterdash/internal/core/gauge"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetLatest returns the newest reading as a flat row.
func (h *Handlers) GetLatest(c *gin.Context) {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	latest, err := h.repos.Reading.Latest(ctx)
	if err != nil {
		h.sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, latest)
}

// IngestReading stores one reading pushed by a meter gateway. Unknown
// fields are ignored; a missing timestamp means now.
func (h *Handlers) IngestReading(c *gin.Context) {
	var reading meter.Reading
	if err := c.ShouldBindJSON(&reading); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if reading.Timestamp == "" {
		reading = meter.NewReading(timeNow(), reading.Fields)
	} else if _, err := reading.Time(); err != nil {
		h.sendError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, err))
		return
	}

	known := make(map[string]any, len(reading.Fields))
	for k, v := range reading.Fields {
		if meter.IsKnown(k) {
			known[k] = v
		}
	}
	if len(known) == 0 {
		utils.SendError(c, http.StatusBadRequest, "No valid fields in reading")
		return
	}
	reading.Fields = known

	ctx, cancel := h.queryContext(c)
	defer cancel()

	if err := h.repos.Reading.Insert(ctx, reading); err != nil {
		// a non-numeric value for a numeric channel
		h.log.WithError(err).Debug("Rejected reading")
		h.sendError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, err))
		return
	}

	h.log.WithFields(logrus.Fields{
		"timestamp": reading.Timestamp,
		"fields":    len(known),
	}).Debug("Reading ingested")

	c.JSON(http.StatusCreated, gin.H{"message": "Reading stored", "timestamp": reading.Timestamp, "fields": len(known)})
}

// GetFields lists the measurement catalog.
func (h *Handlers) GetFields(c *gin.Context) {
	utils.SendSuccess(c, meter.Fields)
}

// GetGauges evaluates the configured gauges against the newest reading.
func (h *Handlers) GetGauges(c *gin.Context) {
	ctx, cancel := h.queryContext(c)
	defer cancel()

	latest, err := h.repos.Reading.Latest(ctx)
	if err != nil {
		h.sendError(c, err)
		return
	}

	reading := *latest
	if h.cfg.Analytics.CoerceTextValues {
		reading = meter.CoerceReading(reading)
	}

	utils.SendSuccessWithMeta(c, gauge.Evaluate(reading, h.cfg.Gauges), gin.H{
		"timestamp": latest.Timestamp,
	})
}

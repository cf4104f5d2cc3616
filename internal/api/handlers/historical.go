package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/analytics/export"
	"github.com/frostdev-ops/meterdash/internal/core/analytics/historical"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/frostdev-ops/meterdash/pkg/utils"
	"github.com/gin-gonic/gin"
)

// timeNow is swapped in tests.
var timeNow = time.Now

func (h *Handlers) parseQuery(c *gin.Context) (historical.Query, bool) {
	q, err := historical.ParseQuery(
		c.Query("startDate"),
		c.Query("endDate"),
		c.Query("fields"),
		c.Query("aggregationInterval"),
	)
	if err != nil {
		h.sendError(c, err)
		return historical.Query{}, false
	}
	return q, true
}

// GetHistorical returns the readings of a window as an array of flat rows,
// bucketed when aggregationInterval is set.
func (h *Handlers) GetHistorical(c *gin.Context) {
	q, ok := h.parseQuery(c)
	if !ok {
		return
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	res, err := h.historical.Fetch(ctx, q)
	if err != nil {
		h.sendError(c, err)
		return
	}

	c.Header("X-Aggregation-Source", res.Source)
	c.JSON(http.StatusOK, res.Points)
}

// GetHistoricalSummary returns per-field statistics for a window.
func (h *Handlers) GetHistoricalSummary(c *gin.Context) {
	q, ok := h.parseQuery(c)
	if !ok {
		return
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	summary, err := h.historical.Summarize(ctx, q)
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, summary)
}

// GetHistoricalChart returns chart-ready series. tz selects the label time
// zone and colors overrides series colours as field:#hex pairs.
func (h *Handlers) GetHistoricalChart(c *gin.Context) {
	q, ok := h.parseQuery(c)
	if !ok {
		return
	}

	tz := c.DefaultQuery("tz", h.cfg.Analytics.DefaultTimezone)
	loc := time.UTC
	if tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			h.sendError(c, apperrors.WithDetails(apperrors.ErrInvalidArgument, fmt.Sprintf("unknown time zone %q", tz)))
			return
		}
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	chart, err := h.historical.Chart(ctx, q, loc, historical.ParseColors(c.Query("colors")))
	if err != nil {
		h.sendError(c, err)
		return
	}
	utils.SendSuccess(c, chart)
}

// ExportHistorical downloads a window as CSV (default) or JSON.
func (h *Handlers) ExportHistorical(c *gin.Context) {
	q, ok := h.parseQuery(c)
	if !ok {
		return
	}

	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		h.sendError(c, apperrors.Wrap(apperrors.ErrInvalidArgument, err))
		return
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()

	// buffered so a failed query still gets a proper error status
	var buf bytes.Buffer
	if err := h.historical.Export(ctx, q, format, &buf); err != nil {
		h.sendError(c, err)
		return
	}

	filename := fmt.Sprintf("readings_%s_%s.%s", q.Start.Format("20060102T1504"), q.End.Format("20060102T1504"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

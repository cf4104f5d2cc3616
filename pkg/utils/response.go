package utils

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Response wraps the payload of the dashboard's newer endpoints (gauges,
// historical summary and chart, system stats). The compatibility endpoints
// (/api/latest, /api/historical, /api/alarms) write their raw shapes
// directly and never go through here.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
	// Meta carries context about Data, e.g. the reading timestamp the
	// gauges were evaluated against.
	Meta interface{} `json:"meta,omitempty"`
}

// ErrorResponse is the body of every failed request, compatibility
// endpoints included, so clients can rely on a single error shape.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error"`
	Code      int         `json:"code"`
	Timestamp string      `json:"timestamp"`
	Request   RequestInfo `json:"request"`
	Details   interface{} `json:"details,omitempty"`
}

// RequestInfo echoes the request that failed.
type RequestInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
}

// stamp is the envelope timestamp: UTC, second precision.
func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// SendSuccess writes data in a 200 envelope.
func SendSuccess(c *gin.Context, data interface{}) {
	SendSuccessWithMeta(c, data, nil)
}

// SendSuccessWithMeta writes data and meta in a 200 envelope.
func SendSuccessWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		Timestamp: stamp(),
	})
}

// SendError writes an ErrorResponse with statusCode. Unknown routes get a
// list of dashboard endpoints that look like what the caller asked for.
func SendError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		Code:      statusCode,
		Timestamp: stamp(),
		Request: RequestInfo{
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Query:  c.Request.URL.RawQuery,
		},
		Details: errorDetails(statusCode, c.Request.URL.Path),
	})
}

func errorDetails(statusCode int, requestPath string) interface{} {
	switch statusCode {
	case http.StatusNotFound:
		suggestions := generateNotFoundSuggestions(requestPath)
		if len(suggestions) == 0 {
			return nil
		}
		return map[string]interface{}{
			"suggestions": suggestions,
			"message":     "No such meterdash endpoint. Similar endpoints are listed in suggestions.",
		}
	case http.StatusMethodNotAllowed:
		return map[string]interface{}{
			"message": "This endpoint does not accept that method. Readings and alarm settings are written with POST, everything else is read with GET.",
		}
	}
	return nil
}

// knownEndpoints are offered as suggestions on 404s.
var knownEndpoints = []string{
	"/health",
	"/version",
	"/metrics",
	"/ws",
	"/api/latest",
	"/api/historical",
	"/api/historical/summary",
	"/api/historical/chart",
	"/api/historical/export",
	"/api/fields",
	"/api/readings",
	"/api/alarms",
	"/api/gauges",
	"/api/websocket/stats",
	"/api/system",
}

// generateNotFoundSuggestions returns up to five known endpoints that share
// a path segment with path.
func generateNotFoundSuggestions(requestPath string) []string {
	segments := strings.FieldsFunc(strings.ToLower(requestPath), func(r rune) bool { return r == '/' })

	var suggestions []string
	for _, endpoint := range knownEndpoints {
		if len(suggestions) == 5 {
			break
		}
		for _, seg := range segments {
			if seg == "api" || len(seg) < 3 {
				continue
			}
			if strings.Contains(endpoint, seg) || strings.Contains(seg, path.Base(endpoint)) {
				suggestions = append(suggestions, endpoint)
				break
			}
		}
	}
	return suggestions
}

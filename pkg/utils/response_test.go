package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendSuccessWithMeta(c, []int{1, 2}, map[string]int{"count": 2})

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Equal(t, map[string]interface{}{"count": float64(2)}, resp.Meta)
}

func TestSendErrorSuggestsEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/alarm?x=1", nil)

	SendError(c, http.StatusNotFound, "not found")

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "/api/alarm", resp.Request.Path)
	assert.Equal(t, "x=1", resp.Request.Query)

	details := resp.Details.(map[string]interface{})
	assert.Contains(t, details["suggestions"], "/api/alarms")
}

func TestGenerateNotFoundSuggestions(t *testing.T) {
	assert.Equal(t, []string{"/api/historical", "/api/historical/summary", "/api/historical/chart", "/api/historical/export"},
		generateNotFoundSuggestions("/api/historical/csv"))
	assert.Empty(t, generateNotFoundSuggestions("/api"))
	assert.Equal(t, []string{"/api/gauges"}, generateNotFoundSuggestions("/gauge"))
}

func TestSendSuccessOmitsEmptyMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendSuccess(c, map[string]int{"clients": 3})

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["success"])
	assert.NotContains(t, raw, "meta")
	assert.NotContains(t, raw, "error")
}

func TestSendErrorDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		status      int
		path        string
		wantDetails bool
	}{
		{"method not allowed", http.StatusMethodNotAllowed, "/api/latest", true},
		{"unknown route without match", http.StatusNotFound, "/zz", false},
		{"bad request", http.StatusBadRequest, "/api/readings", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, tt.path, nil)

			SendError(c, tt.status, "failed")

			var raw map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, raw["success"])
			assert.Equal(t, "failed", raw["error"])
			if tt.wantDetails {
				assert.Contains(t, raw, "details")
			} else {
				assert.NotContains(t, raw, "details")
			}
		})
	}
}

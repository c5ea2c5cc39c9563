package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerTagsServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "production", "warn")
	log.Info("dropped")
	log.Warn("kept", "user_id", "u-ada")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "messenger", entry["service"])
	assert.Equal(t, "u-ada", entry["user_id"])
}

func TestMetricsObserveCountsFailures(t *testing.T) {
	m := NewMetrics()
	m.Observe("command", "messages.send", 5*time.Millisecond, nil)
	m.Observe("command", "messages.send", 5*time.Millisecond, errors.New("boom"))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				found[f.GetName()] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				found[f.GetName()] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 1.0, found["messenger_bus_failures_total"])
	assert.Equal(t, 2.0, found["messenger_bus_duration_seconds"])
}

func TestRequestIDIsPropagatedOrGenerated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware{}.RequestID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 200))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Len(t, rec.Body.String(), 36)
}

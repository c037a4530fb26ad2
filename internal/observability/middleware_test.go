package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/gesk/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newMiddlewareRouter(logs *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(logs)))
	r.Use(RequestMetricsMiddleware())
	r.GET("/ws", func(c *gin.Context) {
		c.String(http.StatusBadRequest, "websocket: not a websocket handshake")
	})
	r.GET("/records", func(c *gin.Context) {
		c.String(http.StatusOK, "[]")
	})
	return r
}

func TestTailHandshakeIsLoggedAndCountedSeparately(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	var logs bytes.Buffer
	r := newMiddlewareRouter(&logs)

	rejectedBefore := testutil.ToFloat64(tailSessions.WithLabelValues("rejected"))
	req := httptest.NewRequest(http.MethodGet, "/ws?backlog=5", nil)
	req.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, rejectedBefore+1, testutil.ToFloat64(tailSessions.WithLabelValues("rejected")))
	assert.Zero(t, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/ws", "400")))
	assert.Contains(t, logs.String(), `"upgraded":false`)
	assert.Contains(t, logs.String(), `"backlog":"5"`)
	assert.Contains(t, logs.String(), "http_tail_closed")
}

func TestPlainRequestIsLoggedWithQueryAndSize(t *testing.T) {
	testlog.Start(t)
	var logs bytes.Buffer
	r := newMiddlewareRouter(&logs)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/records", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records?limit=3", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/records", "200")))
	assert.Contains(t, logs.String(), `"query":"limit=3"`)
	assert.Contains(t, logs.String(), `"bytes":2`)
	assert.Contains(t, logs.String(), "http_request")
}

func TestRecordTailSessionOutcomes(t *testing.T) {
	testlog.Start(t)
	before := testutil.ToFloat64(tailSessions.WithLabelValues("upgraded"))
	RecordTailSession(true, 0)
	assert.Equal(t, before+1, testutil.ToFloat64(tailSessions.WithLabelValues("upgraded")))
}

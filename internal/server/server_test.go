package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/observability"
	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/danmuck/gesk/internal/sink"
	"github.com/danmuck/gesk/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixedStatus struct {
	st ingest.Status
}

func (f *fixedStatus) Status() ingest.Status { return f.st }

func entryN(i int) ingest.Entry {
	return ingest.Entry{
		Time:    time.Unix(1700000000, 0).UTC(),
		Record:  frame.Record{Severity: frame.SeverityDebug, Payload: fmt.Sprintf("line %d", i)},
		Session: "s1",
		Source:  "/dev/ttyUSB0",
	}
}

func get(t *testing.T, url string) (int, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealthReadyAndStatus(t *testing.T) {
	testlog.Start(t)
	status := &fixedStatus{st: ingest.Status{Source: "/dev/ttyUSB0"}}
	srv := httptest.NewServer(New(Config{Version: "1.2.3"}, status, nil).Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"version":"1.2.3"`)

	code, _ = get(t, srv.URL+"/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	status.st.Connected = true
	status.st.SessionID = "abc"
	status.st.Stats.Records = 9
	code, body = get(t, srv.URL+"/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"session":"abc"`)

	code, body = get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	var st ingest.Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, uint64(9), st.Stats.Records)
	assert.True(t, st.Connected)
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	observability.RecordRecord("/dev/ttyTEST", "Error")
	srv := httptest.NewServer(New(Config{}, nil, nil).Handler())
	defer srv.Close()

	code, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "gesk_ingest_records_total")
}

func TestRecordsWindow(t *testing.T) {
	testlog.Start(t)
	tail := NewTail(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, tail.Write(entryN(i)))
	}
	srv := httptest.NewServer(New(Config{}, nil, tail).Handler())
	defer srv.Close()

	var out struct {
		Count   int            `json:"count"`
		Records []sink.Message `json:"records"`
	}
	code, body := get(t, srv.URL+"/records")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "line 2", out.Records[0].Payload)
	assert.Equal(t, "line 4", out.Records[2].Payload)

	code, body = get(t, srv.URL+"/records?limit=1")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, "line 4", out.Records[0].Payload)

	code, _ = get(t, srv.URL+"/records?limit=-4")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTailRing(t *testing.T) {
	testlog.Start(t)
	tail := NewTail(4)
	assert.Empty(t, tail.Recent(0))
	require.NoError(t, tail.Write(entryN(0)))
	require.NoError(t, tail.Write(entryN(1)))
	got := tail.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "line 0", got[0].Payload)

	for i := 2; i < 10; i++ {
		require.NoError(t, tail.Write(entryN(i)))
	}
	got = tail.Recent(10)
	require.Len(t, got, 4)
	assert.Equal(t, "line 6", got[0].Payload)
	assert.Equal(t, "line 9", got[3].Payload)
}

func TestTailSlowSubscriberDrops(t *testing.T) {
	testlog.Start(t)
	tail := NewTail(4)
	sub := tail.Subscribe()
	for i := 0; i < subscriberBacklog+5; i++ {
		require.NoError(t, tail.Write(entryN(i)))
	}
	assert.Equal(t, uint64(5), tail.Dropped())
	assert.Len(t, sub.C, subscriberBacklog)

	tail.Unsubscribe(sub)
	tail.Unsubscribe(sub)
	assert.Zero(t, tail.Subscribers())
}

func TestTailCloseEndsSubscriptions(t *testing.T) {
	testlog.Start(t)
	tail := NewTail(2)
	sub := tail.Subscribe()
	require.NoError(t, tail.Close())
	_, ok := <-sub.C
	assert.False(t, ok)

	late := tail.Subscribe()
	_, ok = <-late.C
	assert.False(t, ok)
	tail.Unsubscribe(late)
}

func TestWebsocketLiveTail(t *testing.T) {
	testlog.Start(t)
	tail := NewTail(8)
	require.NoError(t, tail.Write(entryN(0)))
	srv := httptest.NewServer(New(Config{}, nil, tail).Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?backlog=1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, tail.Write(entryN(1)))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first, second sink.Message
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "line 0", first.Payload)
	assert.Equal(t, "line 1", second.Payload)
	assert.Equal(t, "Debug", second.Severity)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Addr: addr}, nil, nil)
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

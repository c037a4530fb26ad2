package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRecordsLimit = 10000

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "gesk",
			"version": s.cfg.Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		st := s.currentStatus()
		code := http.StatusOK
		if !st.Connected {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":   st.Connected,
			"source":  st.Source,
			"session": st.SessionID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.currentStatus())
	})

	s.router.GET("/records", func(c *gin.Context) {
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records := s.tail.Recent(limit)
		c.JSON(http.StatusOK, gin.H{
			"count":   len(records),
			"records": records,
		})
	})

	s.router.GET("/ws", s.handleTail)
}

func (s *Server) currentStatus() ingest.Status {
	if s.status == nil {
		return ingest.Status{}
	}
	return s.status.Status()
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > maxRecordsLimit {
		n = maxRecordsLimit
	}
	return n, nil
}

// handleTail streams new records to a websocket client. The subscription is
// taken before the upgrade so nothing written after the handshake is missed.
// ?backlog=N first replays the N records preceding the subscription.
func (s *Server) handleTail(c *gin.Context) {
	backlog, err := parseLimit(c.Query("backlog"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recent, sub := s.tail.SubscribeFrom(backlog)
	defer s.tail.Unsubscribe(sub)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("server.ws_upgrade_failed")
		return
	}
	defer conn.Close()
	s.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("server.ws_open")

	for _, msg := range recent {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}

	// The read side only exists to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return
		case data, ok := <-sub.C:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

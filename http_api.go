package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"flowwatch/internal/model"
	"flowwatch/internal/report"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 16
)

// apiServer exposes the engine read-only, plus the two reset actions, over
// HTTP on the configured listen address.
type apiServer struct {
	app      *AppContext
	engine   *gin.Engine
	srv      *http.Server
	upgrader websocket.Upgrader
}

type appSpeed struct {
	ProcessName string  `json:"processName"`
	Download    float64 `json:"download"`
	Upload      float64 `json:"upload"`
}

func newAPIServer(app *AppContext) *apiServer {
	gin.SetMode(gin.ReleaseMode)
	s := &apiServer{
		app:    app,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
	}
	s.engine.Use(requestLogger(), gin.Recovery())
	s.initRouter(s.engine.Group("/"))
	return s
}

func (s *apiServer) initRouter(g *gin.RouterGroup) {
	g.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := g.Group("/api")
	api.GET("/stats", s.getStats)
	api.GET("/daily", s.getDaily)
	api.GET("/apps", s.getApps)
	api.GET("/summary", s.getSummary)
	api.GET("/apps/realtime", s.getRealtime)
	api.GET("/apps/:name/exe", s.getExecutable)
	api.POST("/reset/today", s.resetToday)
	api.POST("/reset/all", s.resetAll)

	g.GET("/ws/stats", s.streamStats)
}

// Start binds the listener synchronously so address errors surface to the
// caller, then serves in the background.
func (s *apiServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	goSafe("http", func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	})
	slog.Info("HTTP API listening", "addr", ln.Addr().String())
	return nil
}

func (s *apiServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *apiServer) getStats(c *gin.Context) {
	sample, ok := s.app.Sampler.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no sample yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sample":           sample,
		"trafficStartTime": s.app.Sampler.TrafficStartTime(),
		"today":            s.app.Traffic.Today(),
	})
}

func (s *apiServer) getDaily(c *gin.Context) {
	c.JSON(http.StatusOK, model.TrafficHistory{Records: s.app.Traffic.DailyRecords()})
}

func (s *apiServer) getApps(c *gin.Context) {
	c.JSON(http.StatusOK, model.AppTrafficHistory{Records: s.app.Apps.DailyAppRecords()})
}

func (s *apiServer) getSummary(c *gin.Context) {
	r, err := report.ParseRange(c.Query("range"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := report.PeriodFor(r, time.Now(), s.app.Location)
	active, _ := s.app.KernelStatus()
	c.JSON(http.StatusOK, gin.H{
		"traffic":          report.Traffic(s.app.Traffic.DailyRecords(), p),
		"apps":             report.Apps(s.app.Apps.DailyAppRecords(), p),
		"perProcessActive": active,
	})
}

func (s *apiServer) getRealtime(c *gin.Context) {
	speeds := s.app.Realtime.Read()
	out := make([]appSpeed, 0, len(speeds))
	for name, sp := range speeds {
		out = append(out, appSpeed{ProcessName: name, Download: sp.Download, Upload: sp.Upload})
	}
	sort.Slice(out, func(i, j int) bool {
		if ti, tj := out[i].Download+out[i].Upload, out[j].Download+out[j].Upload; ti != tj {
			return ti > tj
		}
		return out[i].ProcessName < out[j].ProcessName
	})
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

func (s *apiServer) getExecutable(c *gin.Context) {
	name := c.Param("name")
	path, ok := s.app.Ingest.ExecutablePath(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown process"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"processName": name, "path": path})
}

func (s *apiServer) resetToday(c *gin.Context) {
	s.app.Traffic.ResetToday()
	c.JSON(http.StatusOK, gin.H{"today": s.app.Traffic.Today()})
}

func (s *apiServer) resetAll(c *gin.Context) {
	s.app.Traffic.ResetAll()
	s.app.Apps.ResetAll()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// streamStats pushes every published sample to the client. Slow clients
// miss samples rather than holding up the sampler.
func (s *apiServer) streamStats(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "err", err)
		return
	}

	ch := make(chan model.StatsSample, wsBuffer)
	unsubscribe := s.app.Sampler.Subscribe(func(sample model.StatsSample) {
		select {
		case ch <- sample:
		default:
		}
	})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer func() {
		cancel()
		unsubscribe()
		conn.Close()
	}()

	go readPump(conn, cancel)
	writePump(ctx, conn, ch)
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", "err", err)
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, ch <-chan model.StatsSample) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case sample := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(sample); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// sameOrigin accepts non-browser clients and pages served from the API host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{"method", c.Request.Method, "path", c.FullPath(), "status", status, "elapsed", time.Since(start).String()}
		if status >= http.StatusInternalServerError {
			slog.Error("HTTP request", attrs...)
			return
		}
		slog.Debug("HTTP request", attrs...)
	}
}

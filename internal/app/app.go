// Package app implements the preview web server: a status page, the latest
// camera frame as JPEG, a JSON status API and a websocket stream that also
// carries key presses back to the control loop.
package app

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"SignCruise/internal/model"
	"SignCruise/internal/relay"
)

//go:embed web/*.html
var webFS embed.FS

// StatusSource reports the control loop's latest cycle.
type StatusSource interface {
	Status() (model.Status, bool)
}

// App is the preview surface. It satisfies the loop's Preview interface:
// Show stores the frame for /frame.jpg and reports a pending quit.
type App struct {
	Tmpl   *template.Template
	Mux    *http.ServeMux
	Server *http.Server

	addr      string
	quitKey   int
	order     relay.ChannelOrder
	pushEvery time.Duration
	status    atomic.Pointer[statusHolder]
	frame     atomic.Pointer[relay.Frame]
	hub       *hub
	quit      chan struct{}
	quitOnce  sync.Once
}

type statusHolder struct{ src StatusSource }

// NewApp initializes the web app with templates and routes.
func NewApp(cfg model.PreviewConfig) (*App, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"year": func() int { return time.Now().Year() },
	}).ParseFS(webFS, "web/*.html")
	if err != nil {
		return nil, fmt.Errorf("preview: failed to load templates: %w", err)
	}
	a := &App{
		Tmpl:      tmpl,
		Mux:       http.NewServeMux(),
		addr:      cfg.Addr,
		quitKey:   cfg.QuitKey,
		order:     relay.OrderBGR,
		pushEvery: 200 * time.Millisecond,
		hub:       newHub(),
		quit:      make(chan struct{}),
	}
	a.hub.onKey = a.handleKey
	a.registerRoutes()
	return a, nil
}

// SetStatusSource attaches the loop whose status is served.
func (a *App) SetStatusSource(s StatusSource) {
	a.status.Store(&statusHolder{src: s})
}

func (a *App) currentStatus() (model.Status, bool) {
	h := a.status.Load()
	if h == nil || h.src == nil {
		return model.Status{}, false
	}
	return h.src.Status()
}

// Show publishes f as the preview frame and reports whether a quit was
// requested since the last call.
func (a *App) Show(f *relay.Frame) bool {
	a.frame.Store(f)
	select {
	case <-a.quit:
		return true
	default:
		return false
	}
}

// RequestQuit asks the loop to stop.
func (a *App) RequestQuit(reason string) {
	a.quitOnce.Do(func() {
		slog.Info("quit requested", "reason", reason)
		close(a.quit)
	})
}

// Done is closed once a quit is requested.
func (a *App) Done() <-chan struct{} { return a.quit }

func (a *App) handleKey(key int) {
	slog.Debug("key pressed", "key", key)
	if key == a.quitKey {
		a.RequestQuit(fmt.Sprintf("key %d", key))
	}
}

// Start launches the web server and blocks until ctx is done or the server fails.
func (a *App) Start(ctx context.Context) error {
	if a.addr == "" {
		slog.Info("preview server not started (empty address)")
		return nil
	}
	addr := strings.TrimPrefix(strings.TrimPrefix(a.addr, "http://"), "https://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("preview: listen %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.Server = &http.Server{Handler: a.Mux, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("preview server listening", "url", "http://"+ln.Addr().String())

	go a.pushStatus(ctx)
	go func() {
		<-ctx.Done()
		a.shutdown()
	}()

	if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview: HTTP server error: %w", err)
	}
	return nil
}

// pushStatus streams the loop status to websocket clients.
func (a *App) pushStatus(ctx context.Context) {
	t := time.NewTicker(a.pushEvery)
	defer t.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		st, ok := a.currentStatus()
		if !ok || st.Cycle == last {
			continue
		}
		last = st.Cycle
		a.hub.broadcastJSON(st)
	}
}

func (a *App) shutdown() {
	if a.Server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.hub.closeAll()
	if err := a.Server.Shutdown(ctx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("preview server stopped cleanly")
	}
}

// Close stops the server and disconnects websocket clients.
func (a *App) Close() error {
	a.shutdown()
	return nil
}

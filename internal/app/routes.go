package app

// registerRoutes sets up all HTTP handlers for the application.
func (a *App) registerRoutes() {
	a.Mux.HandleFunc("GET /{$}", a.handleIndex)
	a.Mux.HandleFunc("GET /frame.jpg", a.handleFrame)
	a.Mux.HandleFunc("GET /ws", a.handleWS)

	// API routes
	a.Mux.HandleFunc("GET /api/status", a.handleStatus)
	a.Mux.HandleFunc("POST /api/quit", a.handleQuit)
}

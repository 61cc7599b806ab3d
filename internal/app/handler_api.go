package app

import (
	"encoding/json"
	"image/jpeg"
	"log/slog"
	"net/http"
)

// handleStatus returns the loop's latest status as JSON.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := a.currentStatus()
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		slog.Warn("failed to write status", "error", err)
	}
}

// handleFrame encodes the latest previewed frame as JPEG.
func (a *App) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := a.frame.Load()
	if f == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := jpeg.Encode(w, f.Image(a.order), &jpeg.Options{Quality: 80}); err != nil {
		slog.Warn("failed to encode frame", "seq", f.Seq, "error", err)
	}
}

// handleQuit stops the control loop.
func (a *App) handleQuit(w http.ResponseWriter, r *http.Request) {
	a.RequestQuit("api from " + r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
}

// handleIndex renders the preview page.
func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, _ := a.currentStatus()
	data := map[string]any{
		"Title":   "SignCruise preview",
		"Status":  st,
		"QuitKey": a.quitKey,
	}
	if err := a.Tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

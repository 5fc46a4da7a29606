package main

import (
	"fmt"
	"net/http"

	"github.com/sensorrelay/sensorrelay/server/internal/config"
	"github.com/sensorrelay/sensorrelay/server/internal/ws"
)

// rootHandler sends WebSocket upgrades on wsPath to wsHandler and every
// other request to static.
func rootHandler(wsPath string, wsHandler, static http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == wsPath && ws.IsUpgrade(r) {
			wsHandler.ServeHTTP(w, r)
			return
		}
		static.ServeHTTP(w, r)
	})
}

// staticHandler serves dir, or 404s everything when dir is empty.
func staticHandler(dir string) http.Handler {
	if dir == "" {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.Dir(dir))
}

// banner returns the startup lines describing where clients connect.
func banner(cfg *config.Config) []string {
	s := cfg.Server
	mode := "development"
	if s.Production {
		mode = "production"
	}

	httpScheme, wsScheme := "http", "ws"
	if s.TLS.Enabled() {
		httpScheme, wsScheme = "https", "wss"
	}

	lines := []string{
		fmt.Sprintf("relay running in %s mode on port %d", mode, s.HTTPPort),
	}
	if s.Production && s.ExternalHost != "" {
		// The platform terminates TLS in front of the process.
		lines = append(lines,
			fmt.Sprintf("dashboard: https://%s", s.ExternalHost),
			fmt.Sprintf("websocket: wss://%s%s", s.ExternalHost, s.WebSocket.Path),
		)
		return lines
	}
	return append(lines,
		fmt.Sprintf("dashboard: %s://localhost:%d", httpScheme, s.HTTPPort),
		fmt.Sprintf("websocket: %s://localhost:%d%s", wsScheme, s.HTTPPort, s.WebSocket.Path),
	)
}

// internal/handlers/http.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// clientConfig is served at /config.json so the web client can discover
// where to open its websocket.
type clientConfig struct {
	WebAppURL string `json:"webAppUrl"`
	WSURL     string `json:"wsUrl"`
}

// HealthzHandler reports liveness.
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ConfigHandler serves the client bootstrap config. publicURL wins when
// configured; otherwise the URLs are derived from the request, honoring
// X-Forwarded-* headers from a fronting proxy.
func ConfigHandler(publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := requestOrigin(r)

		cfg := clientConfig{
			WebAppURL: strings.Replace(origin, "http:", "https:", 1),
			WSURL:     strings.Replace(origin, "http", "ws", 1),
		}
		if publicURL != "" {
			cfg.WebAppURL = publicURL
			cfg.WSURL = strings.Replace(publicURL, "http", "ws", 1)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(cfg)
	}
}

func requestOrigin(r *http.Request) string {
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return proto + "://" + host
}

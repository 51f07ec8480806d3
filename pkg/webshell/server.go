package webshell

import (
	_ "embed"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/agentcall/pkg/sessionstore"
)

//go:embed static/index.html
var indexHTML []byte

// NewMux mounts the websocket at /ws, the current view at /api/state, the
// attempt history at /api/attempts (when store is set) and a minimal page at /.
func NewMux(shell *Shell, store sessionstore.Store) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", shell)
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ctrl := shell.controller()
		if ctrl == nil {
			http.Error(w, "session not initialized", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, ctrl.Snapshot())
	})
	mux.HandleFunc("/api/attempts", func(w http.ResponseWriter, req *http.Request) {
		if store == nil {
			http.Error(w, "attempt history not enabled", http.StatusNotFound)
			return
		}
		limit := 0
		if s := strings.TrimSpace(req.URL.Query().Get("limit")); s != "" {
			if v, err := strconv.Atoi(s); err == nil && v > 0 {
				limit = v
			}
		}
		records, err := store.ListAttempts(req.Context(), req.URL.Query().Get("session_id"), limit)
		if err != nil {
			log.Error().Err(err).Str("component", "webshell").Msg("list attempts failed")
			http.Error(w, "failed to list attempts", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"attempts": records})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(indexHTML)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "webshell").Msg("failed to write response")
	}
}

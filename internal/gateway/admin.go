package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/config"
	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/router"
)

// sessionJSON is the wire form of a session for the admin API. History
// content stays out; only its length is reported.
type sessionJSON struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
	HistoryLen   int       `json:"history_len"`
}

func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := make([]sessionJSON, 0, g.sessions.Len())
	g.sessions.Range(func(key router.SessionKey, sess *router.Session) bool {
		sessions = append(sessions, sessionJSON{
			ID:           sess.ID,
			Key:          key.String(),
			CreatedAt:    sess.CreatedAt,
			LastActiveAt: sess.LastActiveAt,
			HistoryLen:   len(sess.History),
		})
		return true
	})
	slices.SortFunc(sessions, func(a, b sessionJSON) int {
		return strings.Compare(a.Key, b.Key)
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Find the key under the read lock, delete outside the Range: the
	// store holds its RLock for the whole iteration and Delete needs
	// the write lock.
	var key router.SessionKey
	found := false
	g.sessions.Range(func(k router.SessionKey, sess *router.Session) bool {
		if sess.ID == id {
			key = k
			found = true
			return false
		}
		return true
	})
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	g.sessions.Delete(key)
	g.logger.Info("session deleted via admin API", "session_id", id, "key", key.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// secretPattern matches config keys whose values must never leave the
// process through the admin API.
var secretPattern = regexp.MustCompile(`(?i)(secret|token|password|key|api_key)`)

// redactSecrets walks a decoded config tree and replaces the value of
// any key matching secretPattern with a placeholder.
func redactSecrets(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if secretPattern.MatchString(k) {
				if s, ok := child.(string); ok && s != "" {
					out[k] = "[REDACTED]"
					continue
				}
			}
			out[k] = redactSecrets(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactSecrets(child)
		}
		return out
	default:
		return v
	}
}

func (g *Gateway) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if g.configPath == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "config path unknown"})
		return
	}

	// Read the file as written: ${VAR} references stay unexpanded, so
	// secret material never reaches the wire even before redaction.
	raw, err := os.ReadFile(g.configPath)
	if err != nil {
		g.logger.Error("admin config read failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read config"})
		return
	}

	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to parse config"})
		return
	}

	writeJSON(w, http.StatusOK, redactSecrets(tree))
}

func (g *Gateway) handleReloadConfig(w http.ResponseWriter, r *http.Request) {
	if g.configPath == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "config path unknown"})
		return
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if g.reload == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "validated",
			"detail": "config is valid; live reload is not wired in this process",
		})
		return
	}
	if err := g.reload(r.Context()); err != nil {
		g.logger.Error("admin-triggered reload failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	g.logger.Info("configuration reloaded via admin API", "path", g.configPath)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// moduleJSON is the wire form of a registry entry.
type moduleJSON struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace,omitempty"`
}

func (g *Gateway) handleListModules(w http.ResponseWriter, r *http.Request) {
	infos := core.Modules()
	modules := make([]moduleJSON, 0, len(infos))
	for _, info := range infos {
		modules = append(modules, moduleJSON{
			ID:        string(info.ID),
			Namespace: info.ID.Namespace(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(modules),
		"modules": modules,
	})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/logger"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/upload"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Editor is the subset of *editor.Controller the presentation server drives.
type Editor interface {
	View() editor.View
	Profile() (editor.ProfileView, error)
	SetFields(values map[string]string) error
	ReplaceForm(f profile.Form) error
	AddEntry(group profile.Group) (string, error)
	RemoveEntry(group profile.Group, id string) error
	UpdateEntry(group profile.Group, id, key, value string) error
	HandleFile(ctx context.Context, f upload.File) error
	Submit(ctx context.Context) error
	Reload(ctx context.Context) error
	Subscribe() (<-chan editor.View, func())
}

type AppDeps struct {
	Editor   Editor
	Session  Authenticator
	Accounts Accounts // optional; without it the sign-in routes are not mounted
	Log      *logger.Logger
	// AllowedOrigins lists browser origins permitted by CORS and the event
	// stream. Empty means same-origin only.
	AllowedOrigins []string
	MaxUploadBytes int64
}

// NewAppHandler builds the local presentation API.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = upload.DefaultMaxBytes
	}

	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/health", handleHealth)
	if deps.Accounts != nil {
		r.Post("/login", handleLogin(deps))
		r.Post("/logout", handleLogout(deps))
	}

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(deps.Session))

		r.Get("/profile", handleGetProfile(deps))
		r.Route("/profile/edit", func(r chi.Router) {
			r.Get("/", handleGetView(deps))
			r.Patch("/fields", handlePatchFields(deps))
			r.Put("/form", handleReplaceForm(deps))
			r.Post("/groups/{group}", handleAddEntry(deps))
			r.Patch("/groups/{group}/{id}", handleUpdateEntry(deps))
			r.Delete("/groups/{group}/{id}", handleRemoveEntry(deps))
			r.Post("/avatar", handleAvatar(deps))
			r.Post("/submit", handleSubmit(deps))
			r.Post("/reload", handleReload(deps))
			r.Get("/events", handleEvents(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// websocketOrigins turns CORS origins into the host patterns the websocket
// handshake checks.
func websocketOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, o)
	}
	return out
}

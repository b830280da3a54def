// Package remotetest provides an in-process fake of the remote profile store.
package remotetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/profedit/internal/profile"
)

// Store is a fake remote profile store backed by httptest.
type Store struct {
	mu       sync.Mutex
	token    string
	password string
	user     profile.Identity
	wire     profile.Wire

	fetchStatus  int
	saveStatus   int
	uploadStatus int
	failMessage  string
	uploadGate   chan struct{}
	fetchGate    chan struct{}

	saves   []profile.WireUpdate
	uploads []string
	fetches int

	srv *httptest.Server
}

// New starts a fake store accepting token for user. It is closed on test cleanup.
func New(t testing.TB, token string, user profile.Identity, wire profile.Wire) *Store {
	t.Helper()
	s := &Store{token: token, user: user, wire: wire, password: "secret"}
	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// URL is the base address of the fake.
func (s *Store) URL() string { return s.srv.URL }

// Close shuts the server down, releasing any gated requests first.
func (s *Store) Close() {
	s.mu.Lock()
	for _, g := range []*chan struct{}{&s.uploadGate, &s.fetchGate} {
		if *g != nil {
			close(*g)
			*g = nil
		}
	}
	s.mu.Unlock()
	s.srv.Close()
}

// FailFetch makes GET /api/profile answer status. Zero restores success.
func (s *Store) FailFetch(status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchStatus, s.failMessage = status, msg
}

// FailSave makes PUT /api/profile answer status.
func (s *Store) FailSave(status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStatus, s.failMessage = status, msg
}

// FailUpload makes POST /api/profile/image answer status.
func (s *Store) FailUpload(status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadStatus, s.failMessage = status, msg
}

// HoldUploads blocks image uploads until the returned func is called.
func (s *Store) HoldUploads() (release func()) {
	return s.hold(&s.uploadGate)
}

// HoldFetches blocks profile fetches until the returned func is called.
func (s *Store) HoldFetches() (release func()) {
	return s.hold(&s.fetchGate)
}

func (s *Store) hold(g *chan struct{}) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	*g = ch
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if *g == ch {
			*g = nil
			close(ch)
		}
	}
}

// Saves returns every update payload received so far.
func (s *Store) Saves() []profile.WireUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]profile.WireUpdate, len(s.saves))
	copy(out, s.saves)
	return out
}

// Uploads returns the filenames of every accepted upload.
func (s *Store) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

// Fetches counts GET /api/profile requests.
func (s *Store) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Profile returns the stored wire profile.
func (s *Store) Profile() profile.Wire {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wire
}

func (s *Store) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/login", s.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/api/profile", s.handleFetch)
		r.Put("/api/profile", s.handleSave)
		r.Post("/api/profile/image", s.handleImage)
	})
	return r
}

func (s *Store) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		want := s.token
		s.mu.Unlock()
		if got == "" || got != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Missing Authorization Header"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Store) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UsernameOrEmail string `json:"usernameOrEmail"`
		Password        string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UsernameOrEmail == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing credentials."})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if (req.UsernameOrEmail != s.user.Username && req.UsernameOrEmail != s.user.Email) || req.Password != s.password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Incorrect username/email or password."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": s.token, "user": s.user})
}

func (s *Store) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.fetches++
	gate := s.fetchGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchStatus != 0 {
		writeJSON(w, s.fetchStatus, map[string]string{"error": s.failMessage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": s.user, "profile": s.wire})
}

func (s *Store) handleSave(w http.ResponseWriter, r *http.Request) {
	var u profile.WireUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No valid fields to update"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, u)
	if s.saveStatus != 0 {
		writeJSON(w, s.saveStatus, map[string]string{"error": s.failMessage})
		return
	}
	s.wire = profile.WireFromUpdate(s.wire, u)
	writeJSON(w, http.StatusOK, map[string]any{"profile": s.wire})
}

func (s *Store) handleImage(w http.ResponseWriter, r *http.Request) {
	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No image file provided"})
		return
	}
	_, _ = io.Copy(io.Discard, file)
	file.Close()

	s.mu.Lock()
	gate := s.uploadGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadStatus != 0 {
		writeJSON(w, s.uploadStatus, map[string]string{"error": s.failMessage})
		return
	}
	s.uploads = append(s.uploads, hdr.Filename)
	path := fmt.Sprintf("/uploads/profile_%d_%d_%s", s.user.ID, len(s.uploads), hdr.Filename)
	s.wire.ImageURL = &path
	writeJSON(w, http.StatusOK, map[string]string{"image_url": path})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/profedit/internal/account"
	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/remote"
)

// Authenticator reports whether a usable session credential is present.
type Authenticator interface {
	Authenticated() bool
}

// RequireSession rejects requests while nobody is signed in, telling the
// front end to navigate to the sign-in screen.
func RequireSession(sess Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess == nil || !sess.Authenticated() {
				writeUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{
			"message": "Authentication required.",
			"type":    "authentication_error",
		},
		"navigate": "login",
	})
}

// Accounts signs the local user in and out of the remote store.
type Accounts interface {
	SignIn(ctx context.Context, usernameOrEmail, password string) (profile.Identity, error)
	SignOut(ctx context.Context) error
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

type loginResponse struct {
	User profile.Identity `json:"user"`
	View editor.View      `json:"view"`
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		user, err := deps.Accounts.SignIn(r.Context(), req.UsernameOrEmail, req.Password)
		var apiErr *remote.APIError
		switch {
		case err == nil:
		case errors.Is(err, account.ErrMissingCredentials):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError:
			httpError(w, http.StatusUnauthorized, "authentication_error", "%s", apiErr.Message)
			return
		default:
			deps.Log.Warn("sign-in failed", "error", err)
			httpError(w, http.StatusBadGateway, "upstream_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{User: user, View: deps.Editor.View()})
	}
}

func handleLogout(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Accounts.SignOut(r.Context()); err != nil {
			deps.Log.Error("sign-out failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"navigate": string(editor.NavigateLogin)})
	}
}

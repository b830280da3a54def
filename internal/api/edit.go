package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/profedit/internal/editor"
	"github.com/kalambet/profedit/internal/profile"
	"github.com/kalambet/profedit/internal/upload"
)

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Editor.Profile()
		if err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleGetView(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Editor.View())
	}
}

func handlePatchFields(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(fields) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no fields given")
			return
		}
		if err := deps.Editor.SetFields(fields); err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Editor.View())
	}
}

func handleReplaceForm(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var f profile.Form
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := deps.Editor.ReplaceForm(f); err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Editor.View())
	}
}

type addEntryResponse struct {
	ID   string      `json:"id"`
	View editor.View `json:"view"`
}

func handleAddEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := profile.ParseGroup(chi.URLParam(r, "group"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		id, err := deps.Editor.AddEntry(group)
		if err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusCreated, addEntryResponse{ID: id, View: deps.Editor.View()})
	}
}

func handleUpdateEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := profile.ParseGroup(chi.URLParam(r, "group"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var fields map[string]string
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		for key, value := range fields {
			if err := deps.Editor.UpdateEntry(group, id, key, value); err != nil {
				writeEditError(w, deps, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, deps.Editor.View())
	}
}

func handleRemoveEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group, err := profile.ParseGroup(chi.URLParam(r, "group"))
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "%v", err)
			return
		}
		if err := deps.Editor.RemoveEntry(group, chi.URLParam(r, "id")); err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusOK, deps.Editor.View())
	}
}

func handleAvatar(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes+maxRequestBodySize)
		file, hdr, err := r.FormFile("image")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "No image file provided")
			return
		}
		defer file.Close()

		// One byte past the limit is enough for the pipeline to reject it.
		data, err := io.ReadAll(io.LimitReader(file, deps.MaxUploadBytes+1))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading image: %v", err)
			return
		}

		if err := deps.Editor.HandleFile(r.Context(), upload.File{Name: hdr.Filename, Data: data}); err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deps.Editor.View())
	}
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Editor.Submit(r.Context())
		if errors.Is(err, editor.ErrInvalidForm) {
			writeJSON(w, http.StatusUnprocessableEntity, deps.Editor.View())
			return
		}
		if err != nil {
			writeEditError(w, deps, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deps.Editor.View())
	}
}

func handleReload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Editor.Reload(r.Context()); err != nil {
			deps.Log.Debug("reload finished with error", "error", err)
		}
		v := deps.Editor.View()
		if v.Phase == editor.Unauthenticated {
			writeUnauthorized(w)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// writeEditError maps controller and model errors onto HTTP statuses.
func writeEditError(w http.ResponseWriter, deps AppDeps, err error) {
	switch {
	case errors.Is(err, editor.ErrNotReady):
		httpError(w, http.StatusConflict, "not_ready", "%v", err)
	case errors.Is(err, editor.ErrSaveInFlight), errors.Is(err, upload.ErrBusy):
		httpError(w, http.StatusConflict, "busy", "%v", err)
	case errors.Is(err, profile.ErrLastEntry):
		httpError(w, http.StatusConflict, "last_entry", "%v", err)
	case errors.Is(err, profile.ErrEntryNotFound), errors.Is(err, profile.ErrUnknownGroup):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	case errors.Is(err, profile.ErrUnknownField),
		errors.Is(err, profile.ErrUnknownEntryField),
		errors.Is(err, profile.ErrInvalidValue):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, editor.ErrClosed):
		httpError(w, http.StatusServiceUnavailable, "unavailable", "%v", err)
	default:
		deps.Log.Error("edit request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

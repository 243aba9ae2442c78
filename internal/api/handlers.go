// Package api serves the JSON API over notes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/notes"
	"github.com/kuitang/epic-notes/internal/obs"
	"github.com/kuitang/epic-notes/internal/web"
)

// Handler wraps the notes service and provides HTTP handlers
type Handler struct {
	notesService *notes.Service
	baseURL      string
}

// NewHandler creates a new API handler with the given notes service.
// baseURL is the origin used for image links when a request has no Host.
func NewHandler(notesService *notes.Service, baseURL string) *Handler {
	return &Handler{notesService: notesService, baseURL: baseURL}
}

// RegisterRoutes registers all notes API routes on the given mux. Mutating
// routes are wrapped with writeLimit when it is non-nil.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, writeLimit func(http.Handler) http.Handler) {
	if writeLimit == nil {
		writeLimit = func(next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("GET /api/users/{username}/notes", h.ListNotes)
	mux.Handle("POST /api/users/{username}/notes", writeLimit(http.HandlerFunc(h.CreateNote)))
	mux.HandleFunc("GET /api/notes/{id}", h.GetNote)
	mux.Handle("PUT /api/users/{username}/notes/{id}", writeLimit(http.HandlerFunc(h.UpdateNote)))
	mux.Handle("DELETE /api/users/{username}/notes/{id}", writeLimit(http.HandlerFunc(h.DeleteNote)))
}

// NoteListResponse is the body of the list endpoint.
type NoteListResponse struct {
	Notes      []NoteResponse `json:"notes"`
	TotalCount int            `json:"total_count"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Code   errs.Code           `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ListNotes handles GET /api/users/{username}/notes - newest first
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.notesService.ListNotes(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := NoteListResponse{Notes: make([]NoteResponse, 0, len(list)), TotalCount: len(list)}
	for i := range list {
		resp.Notes = append(resp.Notes, h.toResponse(r, &list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetNote handles GET /api/notes/{id} - returns a single note by ID
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notesService.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(r, note))
}

// CreateNote handles POST /api/users/{username}/notes (multipart form)
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	form, err := web.ParseNoteForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	note, err := h.notesService.CreateNote(r.Context(), notes.CreateNoteCommand{
		Username: r.PathValue("username"),
		Title:    form.Title,
		Content:  form.Content,
		Images:   form.Images,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toResponse(r, note))
}

// UpdateNote handles PUT /api/users/{username}/notes/{id} (multipart form).
// The submitted images replace the note's image list.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	form, err := web.ParseNoteForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	note, err := h.notesService.UpdateNote(r.Context(), notes.UpdateNoteCommand{
		NoteID:   r.PathValue("id"),
		Username: r.PathValue("username"),
		Title:    form.Title,
		Content:  form.Content,
		Images:   form.Images,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(r, note))
}

// DeleteNote handles DELETE /api/users/{username}/notes/{id}
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notesService.DeleteNote(r.Context(), r.PathValue("username"), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps err to its status. Internal causes are logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	if code == errs.Internal {
		obs.From(r.Context()).Error("request_failed", "pkg", "api", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, errs.HTTPStatus(code), ErrorResponse{
		Error:  errs.MessageOf(err),
		Code:   code,
		Fields: errs.FieldsOf(err),
	})
}

// Package web provides the server-rendered HTML UI for notes.
package web

import (
	"net/http"
	"strconv"

	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/notes"
	"github.com/kuitang/epic-notes/internal/obs"
)

// landingUserLimit bounds the user directory on the landing page.
const landingUserLimit = 50

// newImageSlots is the number of empty image inputs offered on a form.
const newImageSlots = 1

// WebHandler provides HTTP handlers for web UI pages.
type WebHandler struct {
	renderer     *Renderer
	notesService *notes.Service
}

// NewWebHandler creates a new web handler.
func NewWebHandler(renderer *Renderer, notesService *notes.Service) *WebHandler {
	return &WebHandler{
		renderer:     renderer,
		notesService: notesService,
	}
}

// RegisterRoutes registers all web UI routes on the given mux. Mutating
// routes are wrapped with writeLimit when it is non-nil.
func (h *WebHandler) RegisterRoutes(mux *http.ServeMux, writeLimit func(http.Handler) http.Handler) {
	if writeLimit == nil {
		writeLimit = func(next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("GET /{$}", h.HandleLanding)
	mux.HandleFunc("GET /users/{username}", h.HandleProfile)

	mux.HandleFunc("GET /users/{username}/notes", h.HandleNotesList)
	mux.HandleFunc("GET /users/{username}/notes/new", h.HandleNewNotePage)
	mux.Handle("POST /users/{username}/notes", writeLimit(http.HandlerFunc(h.HandleCreateNote)))
	mux.HandleFunc("GET /users/{username}/notes/{noteId}", h.HandleViewNote)
	mux.Handle("POST /users/{username}/notes/{noteId}", writeLimit(http.HandlerFunc(h.HandleNoteAction)))
	mux.HandleFunc("GET /users/{username}/notes/{noteId}/edit", h.HandleEditNotePage)
	mux.Handle("POST /users/{username}/notes/{noteId}/edit", writeLimit(http.HandlerFunc(h.HandleUpdateNote)))

	mux.HandleFunc("GET /resources/images/{id}", h.HandleImage)

	// Everything else
	mux.HandleFunc("/", h.HandleNotFound)
}

// PageData contains common data passed to all templates.
type PageData struct {
	Title string
	Error string
}

// ErrorData contains data for the error page.
type ErrorData struct {
	PageData
	Status    int
	ErrorCode string
	Message   string
}

// LandingData lists users on the landing page.
type LandingData struct {
	PageData
	Users []notes.User
}

// ProfileData contains data for a user's profile page.
type ProfileData struct {
	PageData
	User      *notes.User
	NoteCount int
}

// NotesListData contains data for the notes list page.
type NotesListData struct {
	PageData
	Owner *notes.User
	Notes []notes.Note
}

// NoteViewData contains data for viewing a single note.
type NoteViewData struct {
	PageData
	Owner *notes.User
	Note  *notes.Note
}

// NoteFormValues are the text fields echoed back into the form.
type NoteFormValues struct {
	Title   string
	Content string
}

// ImageSlot is one image fieldset on the note form. Image is nil for an
// empty slot that accepts a new upload.
type ImageSlot struct {
	Index   int
	Image   *notes.Image
	AltText string
}

// NoteFormData contains data for the create and edit forms.
type NoteFormData struct {
	PageData
	Owner  *notes.User
	Note   *notes.Note
	Action string
	Cancel string
	Values NoteFormValues
	Slots  []ImageSlot
	Errors map[string][]string
}

// HandleLanding handles GET / - lists users.
func (h *WebHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	users, err := h.notesService.ListUsers(r.Context(), landingUserLimit)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	data := LandingData{
		PageData: PageData{Title: "Home"},
		Users:    users,
	}
	h.render(w, r, http.StatusOK, "landing.html", data)
}

// HandleProfile handles GET /users/{username}.
func (h *WebHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.notesService.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	list, err := h.notesService.ListNotes(r.Context(), user.Username)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	data := ProfileData{
		PageData:  PageData{Title: user.DisplayName()},
		User:      user,
		NoteCount: len(list),
	}
	h.render(w, r, http.StatusOK, "users/profile.html", data)
}

// HandleNotesList handles GET /users/{username}/notes.
func (h *WebHandler) HandleNotesList(w http.ResponseWriter, r *http.Request) {
	owner, err := h.notesService.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	list, err := h.notesService.ListNotes(r.Context(), owner.Username)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	data := NotesListData{
		PageData: PageData{Title: owner.DisplayName() + "'s Notes"},
		Owner:    owner,
		Notes:    list,
	}
	h.render(w, r, http.StatusOK, "notes/list.html", data)
}

// HandleNewNotePage handles GET /users/{username}/notes/new.
func (h *WebHandler) HandleNewNotePage(w http.ResponseWriter, r *http.Request) {
	owner, err := h.notesService.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "notes/form.html", newNoteFormData(owner, NoteFormValues{}, nil, nil))
}

// HandleCreateNote handles POST /users/{username}/notes.
func (h *WebHandler) HandleCreateNote(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	owner, err := h.notesService.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	form, err := ParseNoteForm(w, r)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	note, err := h.notesService.CreateNote(r.Context(), notes.CreateNoteCommand{
		Username: owner.Username,
		Title:    form.Title,
		Content:  form.Content,
		Images:   form.Images,
	})
	if errs.Is(err, errs.InvalidArgument) {
		data := newNoteFormData(owner, NoteFormValues{Title: form.Title, Content: form.Content}, form.Images, errs.FieldsOf(err))
		data.Error = errs.MessageOf(err)
		h.render(w, r, http.StatusBadRequest, "notes/form.html", data)
		return
	}
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, noteURL(owner.Username, note.ID), http.StatusSeeOther)
}

// HandleViewNote handles GET /users/{username}/notes/{noteId}.
func (h *WebHandler) HandleViewNote(w http.ResponseWriter, r *http.Request) {
	owner, note, ok := h.loadOwnedNote(w, r)
	if !ok {
		return
	}
	data := NoteViewData{
		PageData: PageData{Title: note.Title},
		Owner:    owner,
		Note:     note,
	}
	h.render(w, r, http.StatusOK, "notes/view.html", data)
}

// HandleNoteAction handles POST /users/{username}/notes/{noteId}. The only
// supported intent is "delete".
func (h *WebHandler) HandleNoteAction(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	noteID := r.PathValue("noteId")

	if err := r.ParseForm(); err != nil {
		h.renderer.RenderError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	switch intent := r.PostFormValue("intent"); intent {
	case "delete":
		if err := h.notesService.DeleteNote(r.Context(), username, noteID); err != nil {
			h.renderServiceError(w, r, err)
			return
		}
		http.Redirect(w, r, "/users/"+username+"/notes", http.StatusSeeOther)
	default:
		h.renderer.RenderError(w, http.StatusBadRequest, "Invalid intent: "+strconv.Quote(intent))
	}
}

// HandleEditNotePage handles GET /users/{username}/notes/{noteId}/edit.
func (h *WebHandler) HandleEditNotePage(w http.ResponseWriter, r *http.Request) {
	owner, note, ok := h.loadOwnedNote(w, r)
	if !ok {
		return
	}
	data := editNoteFormData(owner, note, NoteFormValues{Title: note.Title, Content: note.Content}, nil, nil)
	h.render(w, r, http.StatusOK, "notes/form.html", data)
}

// HandleUpdateNote handles POST /users/{username}/notes/{noteId}/edit.
func (h *WebHandler) HandleUpdateNote(w http.ResponseWriter, r *http.Request) {
	owner, note, ok := h.loadOwnedNote(w, r)
	if !ok {
		return
	}

	form, err := ParseNoteForm(w, r)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	updated, err := h.notesService.UpdateNote(r.Context(), notes.UpdateNoteCommand{
		NoteID:   note.ID,
		Username: owner.Username,
		Title:    form.Title,
		Content:  form.Content,
		Images:   form.Images,
	})
	if errs.Is(err, errs.InvalidArgument) {
		data := editNoteFormData(owner, note, NoteFormValues{Title: form.Title, Content: form.Content}, form.Images, errs.FieldsOf(err))
		data.Error = errs.MessageOf(err)
		h.render(w, r, http.StatusBadRequest, "notes/form.html", data)
		return
	}
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, noteURL(owner.Username, updated.ID), http.StatusSeeOther)
}

// HandleImage handles GET /resources/images/{id}. Image ids change
// whenever the bytes do, so responses are cacheable forever.
func (h *WebHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	img, data, err := h.notesService.GetImage(r.Context(), r.PathValue("id"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

// HandleNotFound renders the 404 page for unmatched paths.
func (h *WebHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.renderer.RenderError(w, http.StatusNotFound, "We can't find the page "+r.URL.Path)
}

func (h *WebHandler) loadOwnedNote(w http.ResponseWriter, r *http.Request) (*notes.User, *notes.Note, bool) {
	owner, err := h.notesService.GetUserByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return nil, nil, false
	}
	note, err := h.notesService.GetOwnedNote(r.Context(), owner.Username, r.PathValue("noteId"))
	if err != nil {
		h.renderServiceError(w, r, err)
		return nil, nil, false
	}
	return owner, note, true
}

func (h *WebHandler) render(w http.ResponseWriter, r *http.Request, code int, name string, data any) {
	if err := h.renderer.RenderStatus(w, code, name, data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "web", "template", name, "error", err)
		h.renderer.RenderError(w, http.StatusInternalServerError, "Failed to render page")
	}
}

// renderServiceError maps a service error to its status page. Internal
// causes are logged, never shown.
func (h *WebHandler) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)
	if code == errs.Internal {
		obs.From(r.Context()).Error("request_failed", "pkg", "web", "path", r.URL.Path, "error", err)
	}
	h.renderer.RenderError(w, status, errs.MessageOf(err))
}

func noteURL(username, noteID string) string {
	return "/users/" + username + "/notes/" + noteID
}

func newNoteFormData(owner *notes.User, values NoteFormValues, submitted []*notes.ImageDescriptor, fieldErrs map[string][]string) NoteFormData {
	return NoteFormData{
		PageData: PageData{Title: "New note"},
		Owner:    owner,
		Action:   "/users/" + owner.Username + "/notes",
		Cancel:   "/users/" + owner.Username + "/notes",
		Values:   values,
		Slots:    imageSlots(nil, submitted),
		Errors:   fieldErrs,
	}
}

func editNoteFormData(owner *notes.User, note *notes.Note, values NoteFormValues, submitted []*notes.ImageDescriptor, fieldErrs map[string][]string) NoteFormData {
	url := noteURL(owner.Username, note.ID)
	return NoteFormData{
		PageData: PageData{Title: "Edit " + note.Title},
		Owner:    owner,
		Note:     note,
		Action:   url + "/edit",
		Cancel:   url,
		Values:   values,
		Slots:    imageSlots(note.Images, submitted),
		Errors:   fieldErrs,
	}
}

// imageSlots lays out one fieldset per current image followed by empty
// slots. Alt text typed into a rejected submission is carried over by index.
func imageSlots(current []notes.Image, submitted []*notes.ImageDescriptor) []ImageSlot {
	slots := make([]ImageSlot, 0, len(current)+newImageSlots)
	for i := range current {
		slots = append(slots, ImageSlot{Index: i, Image: &current[i], AltText: current[i].AltText})
	}
	for i := 0; i < newImageSlots && len(slots) < MaxImagesPerNote; i++ {
		slots = append(slots, ImageSlot{Index: len(slots)})
	}
	for i, d := range submitted {
		if i < len(slots) && d != nil {
			slots[i].AltText = d.AltText
		}
	}
	return slots
}

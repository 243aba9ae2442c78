package notes

import (
	"time"
)

const (
	// MaxTitleLength is the maximum note title length in characters.
	MaxTitleLength = 100

	// MaxContentLength is the maximum note content length in characters.
	MaxContentLength = 10000

	// MaxUploadSize is the maximum size of one uploaded image file (3 MiB).
	MaxUploadSize = 3 * 1024 * 1024
)

// User owns notes and is addressed by username.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the name, falling back to the username.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Image is a stored picture attached to exactly one note. Its ID changes
// whenever its bytes change, so URLs keyed on the ID can be cached forever.
type Image struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"note_id"`
	BlobRef     string    `json:"-"`
	ContentType string    `json:"content_type"`
	AltText     string    `json:"alt_text,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Note represents a user's note with its images in display order.
type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Images    []Image   `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileUpload is an uploaded file held in memory. A zero-length upload is
// treated as no file at all.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length, zero for a nil upload.
func (f *FileUpload) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// Present reports whether the upload carries bytes.
func (f *FileUpload) Present() bool {
	return f.Size() > 0
}

// ImageDescriptor is one image slot of an edit form submission.
// ID names an existing image of the note; empty means a new image.
type ImageDescriptor struct {
	ID      string      `form:"id"`
	AltText string      `form:"altText"`
	File    *FileUpload `form:"file"`
}

// CreateNoteCommand creates a note for Username.
type CreateNoteCommand struct {
	// ID is optional; seeding uses fixed ids.
	ID       string             `form:"-"`
	Username string             `form:"-" validate:"required"`
	Title    string             `form:"title" validate:"required,max=100"`
	Content  string             `form:"content" validate:"required,max=10000"`
	Images   []*ImageDescriptor `form:"images" validate:"dive"`
}

// UpdateNoteCommand replaces the title, content and images of an existing note.
// Username, when set, must be the note's owner.
type UpdateNoteCommand struct {
	NoteID   string             `form:"-" validate:"required"`
	Username string             `form:"-"`
	Title    string             `form:"title" validate:"required,max=100"`
	Content  string             `form:"content" validate:"required,max=10000"`
	Images   []*ImageDescriptor `form:"images" validate:"dive"`
}

// CreateUserCommand registers a note owner.
type CreateUserCommand struct {
	ID       string `form:"-"`
	Email    string `form:"email" validate:"required,email"`
	Username string `form:"username" validate:"required,min=3,max=20,username"`
	Name     string `form:"name" validate:"max=40"`
}

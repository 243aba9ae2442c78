package web

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"regexp"
	"slices"
	"strconv"

	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/notes"
)

const (
	// MaxImagesPerNote bounds the number of image slots in one submission.
	MaxImagesPerNote = 10

	// MaxNoteFormBytes caps a note submission: every slot at the upload
	// limit plus 1 MiB for the text fields and multipart framing.
	MaxNoteFormBytes = MaxImagesPerNote*notes.MaxUploadSize + 1<<20

	multipartMemory = 32 << 20
)

var imageFieldPattern = regexp.MustCompile(`^images\[(\d+)\]\.(id|altText|file|remove)$`)

// NoteForm is a parsed note create/edit submission.
type NoteForm struct {
	Intent  string
	Title   string
	Content string
	Images  []*notes.ImageDescriptor
}

// ParseNoteForm reads a multipart (or urlencoded) note form. Image fields
// use the names images[i].id, images[i].altText and images[i].file; slots
// come back ordered by index with gaps closed. A checked images[i].remove
// turns its slot into a nil descriptor, so the image it named is dropped from
// the note. Oversized bodies yield a TooLarge error.
func ParseNoteForm(w http.ResponseWriter, r *http.Request) (*NoteForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxNoteFormBytes)

	err := r.ParseMultipartForm(multipartMemory)
	switch {
	case err == nil:
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	case errors.Is(err, http.ErrNotMultipart):
		if err := r.ParseForm(); err != nil {
			return nil, formError(err)
		}
	default:
		return nil, formError(err)
	}

	form := &NoteForm{
		Intent:  r.PostFormValue("intent"),
		Title:   r.PostFormValue("title"),
		Content: r.PostFormValue("content"),
	}

	slots := map[int]*notes.ImageDescriptor{}
	removed := map[*notes.ImageDescriptor]bool{}
	slot := func(key string) (*notes.ImageDescriptor, string, error) {
		m := imageFieldPattern.FindStringSubmatch(key)
		if m == nil {
			return nil, "", nil
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= MaxImagesPerNote {
			return nil, "", errs.Validation("invalid input", map[string][]string{
				"images": {fmt.Sprintf("A note can have at most %d images", MaxImagesPerNote)},
			})
		}
		d, ok := slots[idx]
		if !ok {
			d = &notes.ImageDescriptor{}
			slots[idx] = d
		}
		return d, m[2], nil
	}

	for key, values := range r.PostForm {
		d, field, err := slot(key)
		if err != nil {
			return nil, err
		}
		if d == nil || len(values) == 0 {
			continue
		}
		switch field {
		case "id":
			d.ID = values[0]
		case "altText":
			d.AltText = values[0]
		case "remove":
			removed[d] = values[0] != ""
		}
	}

	if r.MultipartForm != nil {
		for key, headers := range r.MultipartForm.File {
			d, field, err := slot(key)
			if err != nil {
				return nil, err
			}
			if d == nil || field != "file" || len(headers) == 0 {
				continue
			}
			upload, err := readUpload(headers[0])
			if err != nil {
				return nil, formError(err)
			}
			d.File = upload
		}
	}

	for _, idx := range slices.Sorted(maps.Keys(slots)) {
		d := slots[idx]
		if removed[d] {
			d = nil
		}
		form.Images = append(form.Images, d)
	}
	return form, nil
}

func readUpload(fh *multipart.FileHeader) (*notes.FileUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &notes.FileUpload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errs.Wrap(errs.TooLarge, fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), err)
	}
	return errs.Wrap(errs.InvalidArgument, "invalid form data", err)
}

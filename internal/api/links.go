package api

import (
	"net/http"
	"strings"

	"github.com/kuitang/epic-notes/internal/notes"
)

// ImageResponse adds the public resource URL to an image.
type ImageResponse struct {
	notes.Image
	URL string `json:"url"`
}

// NoteResponse is a note whose images carry absolute URLs.
type NoteResponse struct {
	notes.Note
	Images []ImageResponse `json:"images"`
}

func (h *Handler) toResponse(r *http.Request, note *notes.Note) NoteResponse {
	origin := requestOrigin(r, h.baseURL)
	resp := NoteResponse{Note: *note, Images: make([]ImageResponse, 0, len(note.Images))}
	for _, img := range note.Images {
		resp.Images = append(resp.Images, ImageResponse{Image: img, URL: origin + "/resources/images/" + img.ID})
	}
	return resp
}

// requestOrigin returns scheme://host for r, or fallback when the request
// carries no host. X-Forwarded-Proto is honored for http and https only.
func requestOrigin(r *http.Request, fallback string) string {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return strings.TrimRight(strings.TrimSpace(fallback), "/")
	}
	return requestScheme(r) + "://" + host
}

func requestScheme(r *http.Request) string {
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	switch proto = strings.TrimSpace(proto); proto {
	case "http", "https":
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

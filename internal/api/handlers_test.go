package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/notes"
	"github.com/kuitang/epic-notes/internal/testdb"
)

// jpegHeader is enough for content sniffing.
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type apiFixture struct {
	svc     *notes.Service
	mux     *http.ServeMux
	imageID string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	store := blob.NewTestS3Store(t, "api-test")
	svc := notes.NewService(testdb.New(t), store)

	_, err := svc.CreateUser(ctx, notes.CreateUserCommand{Email: "testuser@testUser.com", Username: "testUser"})
	require.NoError(t, err)
	note, err := svc.CreateNote(ctx, notes.CreateNoteCommand{
		ID:       "a5c8f34b",
		Username: "testUser",
		Title:    "Bees",
		Content:  "buzz",
		Images: []*notes.ImageDescriptor{
			{AltText: "bee", File: &notes.FileUpload{Name: "bee.jpg", ContentType: "image/jpeg", Data: jpegHeader}},
		},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(svc, "http://notes.test").RegisterRoutes(mux, nil)
	return &apiFixture{svc: svc, mux: mux, imageID: note.Images[0].ID}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="upload.jpg"`)
		h.Set("Content-Type", "image/jpeg")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestListNotes(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/users/testUser/notes", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body NoteListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.TotalCount)
	assert.Equal(t, "a5c8f34b", body.Notes[0].ID)
	require.Len(t, body.Notes[0].Images, 1)
	assert.Equal(t, "bee", body.Notes[0].Images[0].AltText)
	assert.Equal(t, "http://example.com/resources/images/"+f.imageID, body.Notes[0].Images[0].URL)
	assert.NotContains(t, rec.Body.String(), "blob", "storage refs must not leak")
}

func TestListNotes_ImagesMatchGetNote(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/notes/a5c8f34b", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var single NoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/users/testUser/notes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list NoteListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Notes, 1)

	require.NotEmpty(t, single.Images)
	assert.Equal(t, single.Images, list.Notes[0].Images)
}

func TestListNotes_UnknownUser(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/users/ghost/notes", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errs.NotFound, decodeError(t, rec).Code)
}

func TestGetNote(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/notes/a5c8f34b", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var note notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "Bees", note.Title)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/notes/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateNote_ReplaceImage(t *testing.T) {
	f := newAPIFixture(t)
	body, contentType := multipartBody(t, map[string]string{
		"title":             "Bees",
		"content":           "buzz buzz",
		"images[0].id":      f.imageID,
		"images[0].altText": "bee2",
	}, "images[0].file", append(append([]byte{}, jpegHeader...), 1, 2, 3))

	req := httptest.NewRequest(http.MethodPut, "/api/users/testUser/notes/a5c8f34b", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var note notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	require.Len(t, note.Images, 1)
	assert.NotEqual(t, f.imageID, note.Images[0].ID)
	assert.Equal(t, "image/jpeg", note.Images[0].ContentType)
	assert.Equal(t, "bee2", note.Images[0].AltText)
}

func TestUpdateNote_ValidationFields(t *testing.T) {
	f := newAPIFixture(t)
	body, contentType := multipartBody(t, map[string]string{"title": "", "content": ""}, "", nil)
	req := httptest.NewRequest(http.MethodPut, "/api/users/testUser/notes/a5c8f34b", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	e := decodeError(t, rec)
	assert.Equal(t, errs.InvalidArgument, e.Code)
	assert.Contains(t, e.Fields, "title")
	assert.Contains(t, e.Fields, "content")
}

func TestUpdateNote_WrongOwner(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.svc.CreateUser(context.Background(), notes.CreateUserCommand{Email: "eve@test.dev", Username: "eve"})
	require.NoError(t, err)

	body, contentType := multipartBody(t, map[string]string{"title": "mine", "content": "now"}, "", nil)
	req := httptest.NewRequest(http.MethodPut, "/api/users/eve/notes/a5c8f34b", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	note, err := f.svc.GetNote(context.Background(), "a5c8f34b")
	require.NoError(t, err)
	assert.Equal(t, "Bees", note.Title)
}

func TestCreateAndDeleteNote(t *testing.T) {
	f := newAPIFixture(t)
	body, contentType := multipartBody(t, map[string]string{"title": "Hive", "content": "honey"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/users/testUser/notes", body)
	req.Header.Set("Content-Type", contentType)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created notes.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Empty(t, created.Images)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/users/testUser/notes/"+created.ID, nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/users/testUser/notes/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

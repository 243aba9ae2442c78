package notes

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/db"
	"github.com/kuitang/epic-notes/internal/testdb"
)

var errInjected = errors.New("injected blob failure")

// recordingStore wraps a LocalStore, counting writes and optionally failing one.
type recordingStore struct {
	*blob.LocalStore

	mu          sync.Mutex
	writes      int
	failOnWrite int // 1-based; 0 never fails
	beforeWrite func()
}

func (s *recordingStore) Write(ctx context.Context, data []byte, name, contentType string) (string, error) {
	s.mu.Lock()
	s.writes++
	n := s.writes
	hook := s.beforeWrite
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.failOnWrite > 0 && n == s.failOnWrite {
		return "", errInjected
	}
	return s.LocalStore.Write(ctx, data, name, contentType)
}

func (s *recordingStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Refs lists every blob ref currently stored.
func (s *recordingStore) Refs(t testing.TB) []string {
	t.Helper()
	var refs []string
	root := filepath.Join(s.Root(), "images")
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(s.Root(), p)
			if err != nil {
				return err
			}
			refs = append(refs, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return refs
}

type fixture struct {
	svc   *Service
	db    *db.DB
	store *recordingStore
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	database := testdb.New(t)
	local, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	store := &recordingStore{LocalStore: local}
	return &fixture{
		svc:   NewService(database, store),
		db:    database,
		store: store,
	}
}

func (f *fixture) user(t testing.TB, username string) *User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), CreateUserCommand{
		Email:    username + "@test.dev",
		Username: username,
		Name:     username,
	})
	require.NoError(t, err)
	return u
}

// noteWithImages creates a note and attaches images with fixed ids, bypassing
// the update workflow so tests control the starting state.
func (f *fixture) noteWithImages(t testing.TB, username, noteID string, images map[string]string) *Note {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateNote(ctx, CreateNoteCommand{
		ID:       noteID,
		Username: username,
		Title:    "Interesting Fact",
		Content:  "Honey never spoils.",
	})
	require.NoError(t, err)

	pos := int64(0)
	for _, id := range slices.Sorted(maps.Keys(images)) {
		ref, err := f.store.LocalStore.Write(ctx, pngBytes(id), id+".png", "image/png")
		require.NoError(t, err)
		require.NoError(t, f.db.Queries().CreateImage(ctx, db.CreateImageParams{
			ID:          id,
			NoteID:      noteID,
			BlobRef:     ref,
			ContentType: "image/png",
			AltText:     sql.NullString{String: images[id], Valid: images[id] != ""},
			SizeBytes:   int64(len(pngBytes(id))),
			Position:    pos,
			CreatedAt:   1,
			UpdatedAt:   1,
		}))
		pos++
	}
	note, err := f.svc.GetNote(ctx, noteID)
	require.NoError(t, err)
	return note
}

func pngBytes(seed string) []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), []byte(seed)...)
}

func jpegBytes(size int) []byte {
	data := bytes.Repeat([]byte{0xAB}, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return data
}

func imageIDs(note *Note) []string {
	ids := make([]string, 0, len(note.Images))
	for _, img := range note.Images {
		ids = append(ids, img.ID)
	}
	return ids
}

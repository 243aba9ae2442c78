package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/epic-notes/internal/blob"
	"github.com/kuitang/epic-notes/internal/db"
	"github.com/kuitang/epic-notes/internal/errs"
	"github.com/kuitang/epic-notes/internal/obs"
)

// Service handles users, notes and images on top of the db and blob layers.
type Service struct {
	db    *db.DB
	blobs blob.Store
	now   func() time.Time
}

// NewService creates a notes service.
func NewService(database *db.DB, blobs blob.Store) *Service {
	return &Service{
		db:    database,
		blobs: blobs,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// UpdateNote validates cmd, stores any new image bytes, then replaces the
// note's title, content and images in one transaction. On any failure the
// note is left exactly as it was and blobs written for this call are deleted.
// Blobs of replaced or removed images are deleted after commit.
func (s *Service) UpdateNote(ctx context.Context, cmd UpdateNoteCommand) (note *Note, err error) {
	start := time.Now()
	defer func() {
		obs.NoteUpdates.WithLabelValues(updateResult(err)).Inc()
		obs.NoteUpdateDuration.Observe(time.Since(start).Seconds())
	}()
	log := obs.From(ctx).With("pkg", "notes", "note_id", cmd.NoteID)

	if err := Validate(cmd); err != nil {
		return nil, err
	}

	current, err := s.loadNote(ctx, cmd.NoteID)
	if err != nil {
		return nil, err
	}
	if cmd.Username != "" {
		if err := s.checkOwner(ctx, current, cmd.Username); err != nil {
			return nil, err
		}
	}

	plan, err := PlanImages(current.Images, cmd.Images)
	if err != nil {
		return nil, err
	}
	res, err := ResolveImages(ctx, s.blobs, plan)
	if err != nil {
		log.Error("note_update_blob_failed", "error", err)
		return nil, err
	}

	now := s.now().UnixMilli()
	err = s.db.WithTx(ctx, func(q *db.Queries) error {
		n, err := q.UpdateNote(ctx, db.UpdateNoteParams{
			ID:        current.ID,
			Title:     cmd.Title,
			Content:   cmd.Content,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.NotFound, "note not found")
		}
		if err := checkImagesUnchanged(ctx, q, current); err != nil {
			return err
		}
		return applyImages(ctx, q, current.ID, res, now)
	})
	if err != nil {
		discardBlobs(ctx, s.blobs, res.Written)
		if errs.Is(err, errs.NotFound) || errs.Is(err, errs.Conflict) {
			log.Warn("note_update_rejected", "error", err)
			return nil, err
		}
		log.Error("note_update_tx_failed", "error", err)
		return nil, errs.Wrap(errs.Internal, "failed to save note", err)
	}

	discardBlobs(ctx, s.blobs, res.Obsolete)
	log.Info("note_updated",
		"images", len(res.Images),
		"written", len(res.Written),
		"removed", len(res.Removed),
	)
	return s.GetNote(ctx, current.ID)
}

// CreateNote creates a note with images for an existing user.
func (s *Service) CreateNote(ctx context.Context, cmd CreateNoteCommand) (*Note, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	owner, err := s.GetUserByUsername(ctx, cmd.Username)
	if err != nil {
		return nil, err
	}

	noteID := cmd.ID
	if noteID == "" {
		noteID = uuid.NewString()
	} else {
		exists, err := s.db.Queries().NoteExists(ctx, noteID)
		if err != nil {
			return nil, errs.Wrap(errs.Internal, "failed to check note id", err)
		}
		if exists {
			return nil, errs.Validation("invalid input", map[string][]string{
				"id": {"A note already exists with this id"},
			})
		}
	}

	plan, err := PlanImages(nil, cmd.Images)
	if err != nil {
		return nil, err
	}
	res, err := ResolveImages(ctx, s.blobs, plan)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	err = s.db.WithTx(ctx, func(q *db.Queries) error {
		if err := q.CreateNote(ctx, db.CreateNoteParams{
			ID:        noteID,
			OwnerID:   owner.ID,
			Title:     cmd.Title,
			Content:   cmd.Content,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		return applyImages(ctx, q, noteID, res, now)
	})
	if err != nil {
		discardBlobs(ctx, s.blobs, res.Written)
		return nil, errs.Wrap(errs.Internal, "failed to create note", err)
	}

	obs.From(ctx).Info("note_created", "pkg", "notes", "note_id", noteID, "images", len(res.Images))
	return s.GetNote(ctx, noteID)
}

// checkImagesUnchanged fails with Conflict when the note's image set differs
// from the one the plan was built against. The UPDATE on the note row above
// holds the write lock, so nothing can change the set after this check.
func checkImagesUnchanged(ctx context.Context, q *db.Queries, planned *Note) error {
	rows, err := q.ListImagesByNote(ctx, planned.ID)
	if err != nil {
		return fmt.Errorf("reread images: %w", err)
	}
	if len(rows) != len(planned.Images) {
		return errs.New(errs.Conflict, "note images changed during update, please retry")
	}
	want := make(map[string]string, len(planned.Images))
	for _, img := range planned.Images {
		want[img.ID] = img.BlobRef
	}
	for _, row := range rows {
		if ref, ok := want[row.ID]; !ok || ref != row.BlobRef {
			return errs.New(errs.Conflict, "note images changed during update, please retry")
		}
	}
	return nil
}

// applyImages writes the resolved image rows inside a transaction.
func applyImages(ctx context.Context, q *db.Queries, noteID string, res *Resolution, now int64) error {
	for _, removed := range res.Removed {
		if _, err := q.DeleteImage(ctx, db.DeleteImageParams{ID: removed.ID, NoteID: noteID}); err != nil {
			return fmt.Errorf("delete image %s: %w", removed.ID, err)
		}
	}

	for _, img := range res.Images {
		alt := nullString(img.AltText)
		switch img.Kind {
		case ActionKeep:
			n, err := q.UpdateImage(ctx, db.UpdateImageParams{
				AltText:   alt,
				Position:  int64(img.Position),
				UpdatedAt: now,
				ID:        img.ID,
				NoteID:    noteID,
			})
			if err != nil {
				return fmt.Errorf("update image %s: %w", img.ID, err)
			}
			if n == 0 {
				return errs.New(errs.NotFound, fmt.Sprintf("image %s not found on note", img.ID))
			}
		case ActionReplace:
			n, err := q.RotateImage(ctx, db.RotateImageParams{
				NewID:       img.ID,
				BlobRef:     img.BlobRef,
				ContentType: img.ContentType,
				AltText:     alt,
				SizeBytes:   img.SizeBytes,
				Position:    int64(img.Position),
				UpdatedAt:   now,
				ID:          img.PrevID,
				NoteID:      noteID,
			})
			if err != nil {
				return fmt.Errorf("replace image %s: %w", img.PrevID, err)
			}
			if n == 0 {
				return errs.New(errs.NotFound, fmt.Sprintf("image %s not found on note", img.PrevID))
			}
		case ActionCreate:
			if err := q.CreateImage(ctx, db.CreateImageParams{
				ID:          img.ID,
				NoteID:      noteID,
				BlobRef:     img.BlobRef,
				ContentType: img.ContentType,
				AltText:     alt,
				SizeBytes:   img.SizeBytes,
				Position:    int64(img.Position),
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return fmt.Errorf("create image: %w", err)
			}
		}
	}
	return nil
}

// GetNote returns a note with its images.
func (s *Service) GetNote(ctx context.Context, id string) (*Note, error) {
	return s.loadNote(ctx, id)
}

// GetOwnedNote returns a note only if username owns it.
func (s *Service) GetOwnedNote(ctx context.Context, username, id string) (*Note, error) {
	note, err := s.loadNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, note, username); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns the user's notes with their images, most recently updated
// first.
func (s *Service) ListNotes(ctx context.Context, username string) ([]Note, error) {
	owner, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Queries().ListNotesByOwner(ctx, owner.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list notes", err)
	}
	imageRows, err := s.db.Queries().ListImagesByOwner(ctx, owner.ID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list note images", err)
	}
	byNote := make(map[string][]Image, len(rows))
	for _, r := range imageRows {
		byNote[r.NoteID] = append(byNote[r.NoteID], imageFromRow(r))
	}

	notes := make([]Note, 0, len(rows))
	for _, row := range rows {
		n := noteFromRow(row)
		n.Images = byNote[row.ID]
		if n.Images == nil {
			n.Images = []Image{}
		}
		notes = append(notes, n)
	}
	return notes, nil
}

// DeleteNote deletes a note owned by username, then its image blobs.
func (s *Service) DeleteNote(ctx context.Context, username, id string) error {
	note, err := s.GetOwnedNote(ctx, username, id)
	if err != nil {
		return err
	}

	err = s.db.WithTx(ctx, func(q *db.Queries) error {
		n, err := q.DeleteNote(ctx, db.DeleteNoteParams{ID: note.ID, OwnerID: note.OwnerID})
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.NotFound, "note not found")
		}
		return nil
	})
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return err
		}
		return errs.Wrap(errs.Internal, "failed to delete note", err)
	}

	refs := make([]string, 0, len(note.Images))
	for _, img := range note.Images {
		refs = append(refs, img.BlobRef)
	}
	discardBlobs(ctx, s.blobs, refs)
	obs.From(ctx).Info("note_deleted", "pkg", "notes", "note_id", note.ID, "images", len(refs))
	return nil
}

// GetImage returns image metadata and bytes.
func (s *Service) GetImage(ctx context.Context, id string) (*Image, []byte, error) {
	row, err := s.db.Queries().GetImage(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, errs.New(errs.NotFound, "image not found")
	}
	if err != nil {
		return nil, nil, errs.Wrap(errs.Internal, "failed to read image", err)
	}
	data, err := s.blobs.Open(ctx, row.BlobRef)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil, errs.New(errs.NotFound, "image not found")
	}
	if err != nil {
		return nil, nil, errs.Wrap(errs.Internal, "failed to read image", err)
	}
	img := imageFromRow(row)
	return &img, data, nil
}

// GetUserByUsername returns the user or NotFound.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row, err := s.db.Queries().GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("no user with the username %q exists", username))
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to read user", err)
	}
	u := userFromRow(row)
	return &u, nil
}

// ListUsers returns up to limit users ordered by username.
func (s *Service) ListUsers(ctx context.Context, limit int) ([]User, error) {
	rows, err := s.db.Queries().ListUsers(ctx, int64(limit))
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to list users", err)
	}
	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

// CreateUser registers a user. Duplicate usernames or emails are InvalidArgument.
func (s *Service) CreateUser(ctx context.Context, cmd CreateUserCommand) (*User, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	if _, err := s.GetUserByUsername(ctx, cmd.Username); err == nil {
		return nil, errs.Validation("invalid input", map[string][]string{
			"username": {"A user already exists with this username"},
		})
	} else if !errs.Is(err, errs.NotFound) {
		return nil, err
	}

	id := cmd.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UnixMilli()
	if err := s.db.Queries().CreateUser(ctx, db.CreateUserParams{
		ID:        id,
		Email:     cmd.Email,
		Username:  cmd.Username,
		Name:      nullString(cmd.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to create user", err)
	}
	return s.GetUserByUsername(ctx, cmd.Username)
}

// CountUsers returns the number of registered users.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.db.Queries().CountUsers(ctx)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "failed to count users", err)
	}
	return n, nil
}

func (s *Service) loadNote(ctx context.Context, id string) (*Note, error) {
	if id == "" {
		return nil, errs.New(errs.NotFound, "note not found")
	}
	row, err := s.db.Queries().GetNote(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "note not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to read note", err)
	}
	imageRows, err := s.db.Queries().ListImagesByNote(ctx, id)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "failed to read note images", err)
	}

	note := noteFromRow(row)
	note.Images = make([]Image, 0, len(imageRows))
	for _, r := range imageRows {
		note.Images = append(note.Images, imageFromRow(r))
	}
	return &note, nil
}

func (s *Service) checkOwner(ctx context.Context, note *Note, username string) error {
	owner, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if owner.ID != note.OwnerID {
		return errs.New(errs.NotFound, "note not found")
	}
	return nil
}

func updateResult(err error) string {
	if err == nil {
		return "ok"
	}
	switch errs.CodeOf(err) {
	case errs.InvalidArgument:
		return "invalid"
	case errs.NotFound:
		return "not_found"
	case errs.Conflict:
		return "conflict"
	default:
		return "storage_error"
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func noteFromRow(row db.Note) Note {
	return Note{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Title:     row.Title,
		Content:   row.Content,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAt).UTC(),
	}
}

func imageFromRow(row db.Image) Image {
	return Image{
		ID:          row.ID,
		NoteID:      row.NoteID,
		BlobRef:     row.BlobRef,
		ContentType: row.ContentType,
		AltText:     row.AltText.String,
		SizeBytes:   row.SizeBytes,
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		UpdatedAt:   time.UnixMilli(row.UpdatedAt).UTC(),
	}
}

func userFromRow(row db.User) User {
	return User{
		ID:        row.ID,
		Email:     row.Email,
		Username:  row.Username,
		Name:      row.Name.String,
		CreatedAt: time.UnixMilli(row.CreatedAt).UTC(),
	}
}

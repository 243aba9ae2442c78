package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

const userColumns = `id, email, username, name, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Username,
		&i.Name,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, id))
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = ?`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const listUsers = `SELECT ` + userColumns + ` FROM users ORDER BY username LIMIT ?`

func (q *Queries) ListUsers(ctx context.Context, limit int64) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createUser = `INSERT INTO users (id, email, username, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

type CreateUserParams struct {
	ID        string
	Email     string
	Username  string
	Name      sql.NullString
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.Username,
		arg.Name,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&count)
	return count, err
}

const noteColumns = `id, owner_id, title, content, created_at, updated_at`

func scanNote(row interface{ Scan(...interface{}) error }) (Note, error) {
	var i Note
	err := row.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Title,
		&i.Content,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createNote = `INSERT INTO notes (id, owner_id, title, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`

type CreateNoteParams struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	CreatedAt int64
	UpdatedAt int64
}

func (q *Queries) CreateNote(ctx context.Context, arg CreateNoteParams) error {
	_, err := q.db.ExecContext(ctx, createNote,
		arg.ID,
		arg.OwnerID,
		arg.Title,
		arg.Content,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getNote = `SELECT ` + noteColumns + ` FROM notes WHERE id = ?`

func (q *Queries) GetNote(ctx context.Context, id string) (Note, error) {
	return scanNote(q.db.QueryRowContext(ctx, getNote, id))
}

const listNotesByOwner = `SELECT ` + noteColumns + ` FROM notes
WHERE owner_id = ?
ORDER BY updated_at DESC, id`

func (q *Queries) ListNotesByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	rows, err := q.db.QueryContext(ctx, listNotesByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Note
	for rows.Next() {
		i, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateNote = `UPDATE notes SET title = ?, content = ?, updated_at = ? WHERE id = ?`

type UpdateNoteParams struct {
	Title     string
	Content   string
	UpdatedAt int64
	ID        string
}

// UpdateNote returns the number of rows changed (0 when the note is gone).
func (q *Queries) UpdateNote(ctx context.Context, arg UpdateNoteParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateNote,
		arg.Title,
		arg.Content,
		arg.UpdatedAt,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteNote = `DELETE FROM notes WHERE id = ? AND owner_id = ?`

type DeleteNoteParams struct {
	ID      string
	OwnerID string
}

// DeleteNote returns the number of rows deleted. Images cascade.
func (q *Queries) DeleteNote(ctx context.Context, arg DeleteNoteParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteNote, arg.ID, arg.OwnerID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const noteExists = `SELECT EXISTS(SELECT 1 FROM notes WHERE id = ?)`

func (q *Queries) NoteExists(ctx context.Context, id string) (bool, error) {
	var exists int64
	err := q.db.QueryRowContext(ctx, noteExists, id).Scan(&exists)
	return exists != 0, err
}

const imageColumns = `id, note_id, blob_ref, content_type, alt_text, size_bytes, position, created_at, updated_at`

func scanImage(row interface{ Scan(...interface{}) error }) (Image, error) {
	var i Image
	err := row.Scan(
		&i.ID,
		&i.NoteID,
		&i.BlobRef,
		&i.ContentType,
		&i.AltText,
		&i.SizeBytes,
		&i.Position,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createImage = `INSERT INTO images (id, note_id, blob_ref, content_type, alt_text, size_bytes, position, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

type CreateImageParams struct {
	ID          string
	NoteID      string
	BlobRef     string
	ContentType string
	AltText     sql.NullString
	SizeBytes   int64
	Position    int64
	CreatedAt   int64
	UpdatedAt   int64
}

func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) error {
	_, err := q.db.ExecContext(ctx, createImage,
		arg.ID,
		arg.NoteID,
		arg.BlobRef,
		arg.ContentType,
		arg.AltText,
		arg.SizeBytes,
		arg.Position,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const getImage = `SELECT ` + imageColumns + ` FROM images WHERE id = ?`

func (q *Queries) GetImage(ctx context.Context, id string) (Image, error) {
	return scanImage(q.db.QueryRowContext(ctx, getImage, id))
}

const listImagesByNote = `SELECT ` + imageColumns + ` FROM images
WHERE note_id = ?
ORDER BY position, created_at, id`

func (q *Queries) ListImagesByNote(ctx context.Context, noteID string) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, listImagesByNote, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listImagesByOwner = `SELECT ` + imageColumns + ` FROM images
WHERE note_id IN (SELECT id FROM notes WHERE owner_id = ?)
ORDER BY note_id, position, created_at, id`

// ListImagesByOwner returns the images of every note owned by ownerID,
// grouped by note and ordered by position within each note.
func (q *Queries) ListImagesByOwner(ctx context.Context, ownerID string) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, listImagesByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateImage = `UPDATE images SET alt_text = ?, position = ?, updated_at = ? WHERE id = ? AND note_id = ?`

type UpdateImageParams struct {
	AltText   sql.NullString
	Position  int64
	UpdatedAt int64
	ID        string
	NoteID    string
}

// UpdateImage changes metadata only; id and blob stay as they are.
func (q *Queries) UpdateImage(ctx context.Context, arg UpdateImageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateImage,
		arg.AltText,
		arg.Position,
		arg.UpdatedAt,
		arg.ID,
		arg.NoteID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const rotateImage = `UPDATE images
SET id = ?, blob_ref = ?, content_type = ?, alt_text = ?, size_bytes = ?, position = ?, updated_at = ?
WHERE id = ? AND note_id = ?`

type RotateImageParams struct {
	NewID       string
	BlobRef     string
	ContentType string
	AltText     sql.NullString
	SizeBytes   int64
	Position    int64
	UpdatedAt   int64
	ID          string
	NoteID      string
}

// RotateImage replaces the blob of an image and gives it a new id.
func (q *Queries) RotateImage(ctx context.Context, arg RotateImageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, rotateImage,
		arg.NewID,
		arg.BlobRef,
		arg.ContentType,
		arg.AltText,
		arg.SizeBytes,
		arg.Position,
		arg.UpdatedAt,
		arg.ID,
		arg.NoteID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteImage = `DELETE FROM images WHERE id = ? AND note_id = ?`

type DeleteImageParams struct {
	ID     string
	NoteID string
}

func (q *Queries) DeleteImage(ctx context.Context, arg DeleteImageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteImage, arg.ID, arg.NoteID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

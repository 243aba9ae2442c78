package db

import "database/sql"

// Timestamps are unix milliseconds.

type User struct {
	ID        string
	Email     string
	Username  string
	Name      sql.NullString
	CreatedAt int64
	UpdatedAt int64
}

type Note struct {
	ID        string
	OwnerID   string
	Title     string
	Content   string
	CreatedAt int64
	UpdatedAt int64
}

type Image struct {
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

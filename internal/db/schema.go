package db

// Schema creates the notes database. Every statement is idempotent so Open can
// run it against an existing file.
//
// Image ids rotate whenever an image's bytes are replaced, which is an UPDATE
// of images.id. Nothing references images.id, so no cascade is needed for it.
const Schema = `
-- Users table: note owners, addressed by username in URLs
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    username TEXT UNIQUE NOT NULL,
    name TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Notes table: one owner per note
CREATE TABLE IF NOT EXISTS notes (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title TEXT NOT NULL CHECK(length(title) <= 100),
    content TEXT NOT NULL CHECK(length(content) <= 10000),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_owner_updated ON notes(owner_id, updated_at DESC);

-- Images table: blob references attached to at most one note
CREATE TABLE IF NOT EXISTS images (
    id TEXT PRIMARY KEY,
    note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
    blob_ref TEXT NOT NULL,
    content_type TEXT NOT NULL,
    alt_text TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_note_id ON images(note_id, position);
`

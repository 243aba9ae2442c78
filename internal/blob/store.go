// Package blob stores image bytes outside the database. Records hold only the
// returned reference.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kuitang/epic-notes/internal/obs"
)

// ErrNotFound is returned by Open for unknown references.
var ErrNotFound = errors.New("blob: not found")

// Store writes, reads and deletes blobs by reference.
type Store interface {
	// Write persists a non-empty payload durably and returns a fresh reference.
	// Two writes never share a reference, even for identical bytes and names.
	Write(ctx context.Context, data []byte, originalName, contentType string) (string, error)
	// Open returns the bytes stored under ref, or ErrNotFound.
	Open(ctx context.Context, ref string) ([]byte, error)
	// Delete removes ref. Missing references are not an error.
	Delete(ctx context.Context, ref string) error
}

const (
	refPrefix      = "images"
	maxNameLength  = 64
	fallbackName   = "upload"
	randomRefBytes = 4
)

// NewRef builds a collision-resistant reference: images/<unix-nanos>-<hex>.<name>.
func NewRef(originalName string) (string, error) {
	buf := make([]byte, randomRefBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate blob ref: %w", err)
	}
	return fmt.Sprintf("%s/%d-%s.%s", refPrefix, time.Now().UnixNano(), hex.EncodeToString(buf), SanitizeName(originalName)), nil
}

// SanitizeName reduces an uploaded file name to a safe single path segment.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
		if b.Len() >= maxNameLength {
			break
		}
	}
	clean := strings.Trim(b.String(), ".-")
	if clean == "" {
		return fallbackName
	}
	return clean
}

func validateRef(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return fmt.Errorf("blob ref is required")
	}
	if strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) {
		return fmt.Errorf("blob ref must be relative")
	}
	clean := path.Clean(ref)
	if clean != ref || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob ref %q", ref)
	}
	return nil
}

func record(backend, op string, err error) {
	result := obs.ResultLabel(err)
	if errors.Is(err, ErrNotFound) {
		result = "not_found"
	}
	obs.BlobOperations.WithLabelValues(backend, op, result).Inc()
}

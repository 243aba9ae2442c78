// Package crypto derives the SQLCipher database key from the operator's master key.
// The master key never reaches the database driver directly: each purpose gets
// its own HKDF-SHA256 output so the key can be rotated per database file.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the decoded size of MASTER_KEY (64 hex characters).
	MasterKeySize = 32

	// DatabaseKeySize is the size of the SQLCipher raw key in bytes (256 bits).
	DatabaseKeySize = 32
)

// ParseMasterKey decodes a 64-character hex master key.
func ParseMasterKey(hexKey string) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)
	if len(hexKey) != MasterKeySize*2 {
		return nil, fmt.Errorf("master key must be %d hex characters, got %d", MasterKeySize*2, len(hexKey))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("master key is not valid hex: %w", err)
	}
	return key, nil
}

// DeriveDatabaseKey derives the raw SQLCipher key for the named database
// with HKDF-SHA256. info = "db:" + name + ":v" + version.
func DeriveDatabaseKey(masterKey []byte, name string, version int) []byte {
	info := fmt.Sprintf("db:%s:v%d", name, version)

	// Salt is nil - the master key is already uniformly random.
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, DatabaseKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF only fails past 255*HashLen bytes of output.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

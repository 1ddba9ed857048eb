// Package uuid issues time-ordered identifiers for ledger rows.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New generates a new UUIDv7. Time ordering keeps B-tree inserts local and
// lets "created after" queries fall back to ID order.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// Entropy failure: v4 still yields a unique key.
		return googleuuid.New().String()
	}
	return id.String()
}

// Parse validates and normalizes a UUID string.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid checks if a string is a valid UUID
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}

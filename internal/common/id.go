package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewQuestionID generates a unique pending-question ID
// Format: q_<uuid>
func NewQuestionID() string {
	return "q_" + uuid.New().String()
}

// NewConnectionID generates an ID for a live client connection
func NewConnectionID() string {
	return "conn_" + uuid.New().String()
}

// JobID derives the stable job key: first 16 hex chars of SHA-256 over url|title|company.
// The owner is part of the hashed key so two users discovering one listing get separate records.
func JobID(userID, url, title, company string) string {
	key := userID + "|" + NormalizeKey(url) + "|" + NormalizeKey(title) + "|" + NormalizeKey(company)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

// DedupeKey is the normalized title+company key used within a single page
func DedupeKey(title, company string) string {
	return NormalizeKey(title) + "|" + NormalizeKey(company)
}

// NormalizeKey lowercases and collapses whitespace
func NormalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

package store

import (
	"errors"
	"strings"
)

var (
	errMissingEmbedding = errors.New("store: chunk has no embedding")
	errDuplicateID      = errors.New("store: duplicate chunk id")
)

// isUniqueViolation reports whether err came from a SQLite UNIQUE
// constraint failure. go-sqlite3's error type isn't always easy to import
// without pulling cgo into every caller, so this matches on the driver's
// stable error text instead.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}


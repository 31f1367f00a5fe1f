package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor marks a position in a time-ordered scan listing.
//
// Cursors are serialized to an opaque URL-safe string so API clients can
// pass them back verbatim to fetch the next page.
type Cursor struct {
	// LastScanID is the ID of the last scan on the previous page.
	LastScanID string `json:"last_scan_id"`

	// LastTime is the StartedAt of that scan in Unix nanoseconds.
	// Kept alongside the ID so a cursor stays meaningful even if the
	// referenced scan is deleted between pages.
	LastTime int64 `json:"last_time"`
}

// EncodeCursor serializes a cursor to an opaque URL-safe string.
// Returns the empty string for a nil cursor.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque cursor string produced by EncodeCursor.
// An empty string decodes to a nil cursor (first page).
func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("malformed cursor payload: %w", err)
	}

	return &c, nil
}

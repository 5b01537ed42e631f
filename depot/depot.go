// CLAUDE:SUMMARY Object/row store contracts, date-partitioned object paths, query shape shared by local and remote backends.
// Package depot abstracts the external store behind narrow object and row
// contracts. The board writes through these with the relay pipeline; depot
// itself never retries.
package depot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for missing objects and rows.
var ErrNotFound = errors.New("depot: not found")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	UpdatedAt int64  `json:"updated_at"`
}

// ObjectStore stores opaque blobs (artifacts, screenshots).
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Query shapes a row lookup. Filter keys are column/field names matched
// for equality.
type Query struct {
	Filter  map[string]any
	OrderBy string
	Desc    bool
	Limit   int
}

// RowStore stores JSON-shaped rows in named logical tables.
type RowStore interface {
	Insert(ctx context.Context, table string, row map[string]any) (string, error)
	Query(ctx context.Context, table string, q Query) ([]map[string]any, error)
	Delete(ctx context.Context, table string, ids []string) error
}

// ObjectPath builds the partitioned object path for a run artifact:
// <prefix>/<sourceID>/<yyyy>/<mm>/<dd>/<runID>.<ext>, partitioned by
// source and UTC date.
func ObjectPath(prefix, sourceID string, at time.Time, runID, ext string) string {
	u := at.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%s.%s",
		prefix, sourceID, u.Year(), u.Month(), u.Day(), runID, ext)
}

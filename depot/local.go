// CLAUDE:SUMMARY Local backend: atomic file objects under a data dir, sqlite JSON-document rows.
package depot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/kiosque/dbopen"
	"github.com/hazyhaar/kiosque/idgen"
)

// LocalObjects stores objects as files under Dir. Writes are atomic
// (tmp + rename) so a crashed run never leaves a torn artifact.
type LocalObjects struct {
	Dir string
}

func NewLocalObjects(dir string) *LocalObjects {
	return &LocalObjects{Dir: dir}
}

func (l *LocalObjects) Upload(_ context.Context, path string, data []byte, _ string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("depot: mkdir: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("depot: write: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("depot: rename: %w", err)
	}
	return nil
}

func (l *LocalObjects) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	root, err := l.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var out []ObjectInfo
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil //nolint:nilerr // a vanished file mid-walk is not an error
		}
		rel, rerr := filepath.Rel(l.Dir, path)
		if rerr != nil {
			return nil
		}
		out = append(out, ObjectInfo{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			UpdatedAt: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("depot: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// SignedURL in local mode returns a file path token; nothing serves it.
func (l *LocalObjects) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	full, err := l.resolve(path)
	if err != nil {
		return "", err
	}
	return "file://" + full, nil
}

// resolve joins path under Dir and refuses escapes.
func (l *LocalObjects) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(path, "..") {
		return "", fmt.Errorf("depot: invalid path %q", path)
	}
	return filepath.Join(l.Dir, clean), nil
}

// rowsSchema is the generic JSON-document table backing local rows.
const rowsSchema = `
CREATE TABLE IF NOT EXISTS depot_rows (
    id         TEXT PRIMARY KEY,
    tbl        TEXT NOT NULL,
    doc        TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_depot_rows_tbl ON depot_rows(tbl, created_at DESC);
`

// LocalRows stores rows as JSON documents in sqlite.
type LocalRows struct {
	db    *sql.DB
	newID idgen.Generator
}

// NewLocalRows binds a row store to an opened database and applies its
// schema.
func NewLocalRows(db *sql.DB) (*LocalRows, error) {
	if _, err := db.Exec(rowsSchema); err != nil {
		return nil, fmt.Errorf("depot: rows schema: %w", err)
	}
	return &LocalRows{db: db, newID: idgen.Default}, nil
}

// OpenLocalRows opens (or creates) the sqlite file at path and binds a
// row store to it.
func OpenLocalRows(path string) (*LocalRows, *sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(rowsSchema))
	if err != nil {
		return nil, nil, err
	}
	return &LocalRows{db: db, newID: idgen.Default}, db, nil
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func (l *LocalRows) Insert(ctx context.Context, table string, row map[string]any) (string, error) {
	id, _ := row["id"].(string)
	if id == "" {
		id = l.newID()
	}
	doc, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("depot: marshal row: %w", err)
	}
	_, err = dbopen.Exec(ctx, l.db,
		`INSERT INTO depot_rows (id, tbl, doc, created_at) VALUES (?, ?, ?, ?)`,
		id, table, string(doc), time.Now().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("depot: insert %s: %w", table, err)
	}
	return id, nil
}

func (l *LocalRows) Query(ctx context.Context, table string, q Query) ([]map[string]any, error) {
	where := []string{"tbl = ?"}
	args := []any{table}

	filterKeys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		if !fieldNameRe.MatchString(k) {
			return nil, fmt.Errorf("depot: invalid filter field %q", k)
		}
		where = append(where, fmt.Sprintf("json_extract(doc, '$.%s') = ?", k))
		args = append(args, q.Filter[k])
	}

	order := "created_at"
	if q.OrderBy != "" {
		if !fieldNameRe.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("depot: invalid order field %q", q.OrderBy)
		}
		order = fmt.Sprintf("json_extract(doc, '$.%s')", q.OrderBy)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	query := fmt.Sprintf(
		`SELECT id, doc FROM depot_rows WHERE %s ORDER BY %s %s`,
		strings.Join(where, " AND "), order, dir)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("depot: query %s: %w", table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("depot: decode row %s: %w", id, err)
		}
		m["id"] = id
		out = append(out, m)
	}
	return out, rows.Err()
}

func (l *LocalRows) Delete(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, table)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := dbopen.Exec(ctx, l.db,
		`DELETE FROM depot_rows WHERE tbl = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("depot: delete from %s: %w", table, err)
	}
	return nil
}

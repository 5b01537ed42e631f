package depot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kiosque/dbopen"
)

func TestObjectPath(t *testing.T) {
	// WHAT: Object paths partition by source and UTC date.
	at := time.Date(2026, 8, 3, 23, 45, 0, 0, time.FixedZone("CEST", 2*3600))
	got := ObjectPath("snapshots", "lemonde", at, "run_01", "json")
	// 23:45 CEST is 21:45 UTC, same day here, but the format must be UTC-based.
	want := "snapshots/lemonde/2026/08/03/run_01.json"
	if got != want {
		t.Fatalf("path = %q, want %q", got, want)
	}

	// A local time past midnight partitions under the UTC date.
	at = time.Date(2026, 8, 4, 1, 10, 0, 0, time.FixedZone("CEST", 2*3600))
	got = ObjectPath("snapshots", "lemonde", at, "run_02", "json")
	if !strings.Contains(got, "/2026/08/03/") {
		t.Fatalf("path = %q, want UTC date 2026/08/03", got)
	}
}

func TestLocalObjects_UploadAndList(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalObjects(dir)
	ctx := context.Background()

	path := "current/lemonde.json"
	if err := l.Upload(ctx, path, []byte(`{"ok":true}`), "application/json"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "current", "lemonde.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"ok":true}` {
		t.Fatalf("content = %s", data)
	}
	// No temp file left behind.
	if _, err := os.Stat(filepath.Join(dir, "current", "lemonde.json.tmp")); !os.IsNotExist(err) {
		t.Error("tmp file left behind")
	}

	infos, err := l.List(ctx, "current")
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].Path != "current/lemonde.json" {
		t.Fatalf("list = %+v", infos)
	}
	if infos[0].Size != int64(len(data)) {
		t.Errorf("size = %d", infos[0].Size)
	}
}

func TestLocalObjects_RejectsTraversal(t *testing.T) {
	l := NewLocalObjects(t.TempDir())
	if err := l.Upload(context.Background(), "../escape.json", []byte("x"), ""); err == nil {
		t.Fatal("traversal path accepted")
	}
}

func TestLocalObjects_SignedURL(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalObjects(dir)
	u, err := l.SignedURL(context.Background(), "a/b.json", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") || !strings.HasSuffix(u, "/a/b.json") {
		t.Fatalf("signed url = %q", u)
	}
}

func TestLocalRows_RoundTrip(t *testing.T) {
	db := dbopen.OpenMemory(t)
	rows, err := NewLocalRows(db)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	id1, err := rows.Insert(ctx, "runs", map[string]any{
		"source_id": "lemonde", "observed_at": float64(100), "ok": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rows.Insert(ctx, "runs", map[string]any{
		"source_id": "figaro", "observed_at": float64(200), "ok": false,
	}); err != nil {
		t.Fatal(err)
	}
	// Different logical table, same backing store.
	if _, err := rows.Insert(ctx, "events", map[string]any{"source_id": "lemonde"}); err != nil {
		t.Fatal(err)
	}

	got, err := rows.Query(ctx, "runs", Query{
		Filter:  map[string]any{"source_id": "lemonde"},
		OrderBy: "observed_at",
		Desc:    true,
		Limit:   10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %+v, want 1", got)
	}
	if got[0]["id"] != id1 || got[0]["ok"] != true {
		t.Errorf("row = %+v", got[0])
	}

	if err := rows.Delete(ctx, "runs", []string{id1}); err != nil {
		t.Fatal(err)
	}
	got, err = rows.Query(ctx, "runs", Query{Filter: map[string]any{"source_id": "lemonde"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("row survived delete: %+v", got)
	}
}

func TestLocalRows_RejectsBadFieldNames(t *testing.T) {
	// WHAT: Filter/order field names are validated before reaching SQL.
	db := dbopen.OpenMemory(t)
	rows, err := NewLocalRows(db)
	if err != nil {
		t.Fatal(err)
	}
	_, err = rows.Query(context.Background(), "runs", Query{
		Filter: map[string]any{"x') OR 1=1 --": "boom"},
	})
	if err == nil {
		t.Fatal("injection-shaped field name accepted")
	}
	_, err = rows.Query(context.Background(), "runs", Query{OrderBy: "a;DROP"})
	if err == nil {
		t.Fatal("injection-shaped order field accepted")
	}
}

package depot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/kiosque/relay"
)

func TestRemote_UploadSendsAuthAndBody(t *testing.T) {
	var gotAuth, gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "tok123", 0)
	err := r.Upload(context.Background(), "snapshots/lemonde/2026/08/03/run_01.json",
		[]byte(`{"ok":true}`), "application/json")
	if err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotPath != "/objects/snapshots/lemonde/2026/08/03/run_01.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotType != "application/json" || string(gotBody) != `{"ok":true}` {
		t.Errorf("body = %q type = %q", gotBody, gotType)
	}
}

func TestRemote_DecodesStructuredError(t *testing.T) {
	// WHAT: JSON error bodies become *APIError with status and fields for
	// relay diagnostics; plain bodies land in Message.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"code":"rate_limited","message":"slow down","hint":"retry later"}`)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", 0)
	_, err := r.Insert(context.Background(), "runs", map[string]any{"run_id": "r1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *APIError", err, err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Code != "rate_limited" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	code, _, hint := apiErr.ErrorFields()
	if code != "rate_limited" || hint != "retry later" {
		t.Errorf("fields = %q %q", code, hint)
	}
}

func TestRemote_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", 0)
	if _, err := r.List(context.Background(), "snapshots/"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemote_RelayRetriesTransientStatus(t *testing.T) {
	// WHAT: A 503 from the store classifies as transient; the relay runner
	// retries the upload until the store recovers.
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "", 0)
	runner := &relay.Runner{
		Attempts: 4,
		Base:     time.Millisecond,
		Sleep:    func(context.Context, time.Duration) error { return nil },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	err := runner.Do(context.Background(), "object:snapshot", func(ctx context.Context) error {
		return r.Upload(ctx, "snapshots/x.json", []byte("{}"), "application/json")
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestRemote_RelayPermanentFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"code":"forbidden","message":"bad token"}`)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "nope", 0)
	runner := &relay.Runner{
		Attempts: 4,
		Base:     time.Millisecond,
		Sleep:    func(context.Context, time.Duration) error { return nil },
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	err := runner.Do(context.Background(), "row:run", func(ctx context.Context) error {
		_, ierr := r.Insert(ctx, "runs", map[string]any{"run_id": "r1"})
		return ierr
	})
	var uerr *relay.UnitError
	if !errors.As(err, &uerr) {
		t.Fatalf("err = %T %v, want *relay.UnitError", err, err)
	}
	if uerr.Class != relay.ClassPermanent {
		t.Errorf("class = %s, want permanent", uerr.Class)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (no retry on permanent)", got)
	}
}

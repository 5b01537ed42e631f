// CLAUDE:SUMMARY HTTP API over the journal: sources, current hero, history, events, top10, run trigger.
package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/kiosque/board/internal/journal"
	"github.com/hazyhaar/kiosque/kit"
	"github.com/hazyhaar/kiosque/shield"
)

// Router builds the HTTP API. tokenHash is a bcrypt hash of the bearer
// token; empty disables auth (local use). /healthz is never authenticated.
func (svc *Service) Router(tokenHash string) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if tokenHash != "" {
			r.Use(requireToken(tokenHash))
		}

		r.Get("/api/sources", func(w http.ResponseWriter, r *http.Request) {
			type sourceInfo struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
				Kind string `json:"kind"`
			}
			out := make([]sourceInfo, 0, len(svc.config.Sources))
			for _, src := range svc.config.Sources {
				out = append(out, sourceInfo{ID: src.ID, Name: src.Name, URL: src.URL, Kind: src.Kind})
			}
			kit.WriteJSON(w, http.StatusOK, out)
		})

		r.Get("/api/sources/{id}/current", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if !svc.knownSource(id) {
				kit.WriteError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", id))
				return
			}
			run, err := svc.journal.CurrentFor(r.Context(), id)
			if errors.Is(err, journal.ErrNotFound) {
				kit.WriteError(w, http.StatusNotFound, errors.New("no observations yet"))
				return
			}
			if err != nil {
				kit.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			kit.WriteJSON(w, http.StatusOK, run)
		})

		r.Get("/api/sources/{id}/history", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if !svc.knownSource(id) {
				kit.WriteError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", id))
				return
			}
			limit := kit.QueryInt(r, "limit", 50)
			entries, err := svc.journal.HistoryFor(r.Context(), id, limit)
			if err != nil {
				kit.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			kit.WriteJSON(w, http.StatusOK, map[string]any{
				"sourceId": id,
				"entries":  entries,
			})
		})

		r.Get("/api/sources/{id}/events", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if !svc.knownSource(id) {
				kit.WriteError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", id))
				return
			}
			since := kit.QueryInt64(r, "since", 0)
			events, err := svc.journal.EventsSince(r.Context(), id, since)
			if err != nil {
				kit.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			kit.WriteJSON(w, http.StatusOK, map[string]any{
				"sourceId": id,
				"events":   events,
			})
		})

		r.Get("/api/sources/{id}/top10/latest", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if !svc.knownSource(id) {
				kit.WriteError(w, http.StatusNotFound, fmt.Errorf("unknown source %q", id))
				return
			}
			snap, err := svc.journal.LatestSnapshot(r.Context(), id)
			if errors.Is(err, journal.ErrNotFound) {
				kit.WriteError(w, http.StatusNotFound, errors.New("no snapshots yet"))
				return
			}
			if err != nil {
				kit.WriteError(w, http.StatusInternalServerError, err)
				return
			}
			kit.WriteJSON(w, http.StatusOK, snap)
		})

		r.Post("/api/run", func(w http.ResponseWriter, r *http.Request) {
			if svc.running.Load() {
				kit.WriteJSON(w, http.StatusConflict, map[string]string{"status": "busy"})
				return
			}
			// The sweep outlives the request; cancellation happens via the
			// service context, not the HTTP one.
			ctx := context.WithoutCancel(r.Context())
			go func() {
				if err := svc.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) {
					svc.logger.Error("board: triggered sweep", "error", err)
				}
			}()
			kit.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		})
	})

	return r
}

func (svc *Service) knownSource(id string) bool {
	for _, src := range svc.config.Sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

// requireToken enforces "Authorization: Bearer <token>" against a bcrypt
// hash. Constant-time by construction.
func requireToken(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(raw, "Bearer ")
			if !ok || token == "" {
				kit.WriteError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				kit.WriteError(w, http.StatusUnauthorized, errors.New("invalid token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

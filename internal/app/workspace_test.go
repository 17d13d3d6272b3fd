// ABOUTME: End-to-end tests wiring a restored session to feeds and mutations.
// ABOUTME: A fake server backs timelines, favourites, and notifications.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/2389-research/murmur/internal/config"
	"github.com/2389-research/murmur/internal/logging"
	"github.com/2389-research/murmur/internal/models"
	"github.com/2389-research/murmur/internal/session"
	"github.com/2389-research/murmur/internal/storage"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newFakeServer(t *testing.T, favStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.Account{ID: "me", Acct: "me"})
	})
	mux.HandleFunc("/api/v1/timelines/home", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("max_id") != "" {
			writeJSON(w, []models.Post{})
			return
		}
		writeJSON(w, []models.Post{
			{ID: "2", FavouritesCount: 10},
			{ID: "1", Account: models.Account{ID: "me"}},
		})
	})
	mux.HandleFunc("/api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []models.Notification{{ID: "n1", Type: "favourite", Status: &models.Post{ID: "2", FavouritesCount: 10}}})
	})
	mux.HandleFunc("/api/v1/statuses/2/favourite", func(w http.ResponseWriter, r *http.Request) {
		if code := favStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		writeJSON(w, models.Post{ID: "2", Favourited: true, FavouritesCount: 11})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func restoredWorkspace(t *testing.T, srv *httptest.Server) (*Workspace, *session.Manager) {
	t.Helper()
	store := storage.NewMemoryStore()
	_ = store.SetMany(map[string]string{
		storage.KeyServer:      srv.URL,
		storage.KeyAccessToken: "tok",
		storage.KeyUserID:      "me",
	})
	sm := session.NewManager(store, session.WithLogger(logging.Discard()))
	if err := sm.Restore(context.Background()); err != nil {
		t.Fatalf("Restore error: %v", err)
	}
	w, err := NewWorkspace(sm, config.Default())
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	return w, sm
}

func TestWorkspaceRequiresSession(t *testing.T) {
	sm := session.NewManager(storage.NewMemoryStore(), session.WithLogger(logging.Discard()))
	if _, err := NewWorkspace(sm, nil); !errors.Is(err, models.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFavouriteReachesEveryView(t *testing.T) {
	var favStatus atomic.Int32
	srv := newFakeServer(t, &favStatus)
	w, _ := restoredWorkspace(t, srv)
	ctx := context.Background()

	home, err := w.Timeline("home")
	if err != nil {
		t.Fatalf("Timeline error: %v", err)
	}
	if again, _ := w.Timeline(""); again != home {
		t.Error("home timeline should be reused")
	}
	if _, err := home.Fetch(ctx); err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if _, err := w.Notifications.Fetch(ctx); err != nil {
		t.Fatalf("notifications Fetch error: %v", err)
	}

	if _, err := w.Mutations.ToggleFavourite(ctx, "2"); err != nil {
		t.Fatalf("ToggleFavourite error: %v", err)
	}
	if p := home.Items()[0]; !p.Favourited || p.FavouritesCount != 11 {
		t.Errorf("home post = %v/%d", p.Favourited, p.FavouritesCount)
	}
	if n := w.Notifications.Items()[0]; !n.Status.Favourited || n.Status.FavouritesCount != 11 {
		t.Errorf("notification post = %v/%d", n.Status.Favourited, n.Status.FavouritesCount)
	}
}

func TestFavouriteFailureRollsBack(t *testing.T) {
	var favStatus atomic.Int32
	favStatus.Store(http.StatusInternalServerError)
	srv := newFakeServer(t, &favStatus)
	w, _ := restoredWorkspace(t, srv)
	ctx := context.Background()

	home, _ := w.Timeline("home")
	_, _ = home.Fetch(ctx)

	_, err := w.Mutations.ToggleFavourite(ctx, "2")
	if !errors.Is(err, models.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if p := home.Items()[0]; p.Favourited || p.FavouritesCount != 10 {
		t.Errorf("rollback gave %v/%d, want false/10", p.Favourited, p.FavouritesCount)
	}
}

func TestLogoutClosesWorkspace(t *testing.T) {
	var favStatus atomic.Int32
	srv := newFakeServer(t, &favStatus)
	w, sm := restoredWorkspace(t, srv)
	ctx := context.Background()

	home, _ := w.Timeline("home")
	_, _ = home.Fetch(ctx)
	w.StartPolling(ctx)
	w.Relationships.Set(models.Relationship{ID: "x", Following: true})

	if err := sm.Logout(); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if w.Relationships.Len() != 0 {
		t.Error("relationship cache should be cleared on logout")
	}
	if _, err := w.Timeline("local"); !errors.Is(err, models.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated after logout, got %v", err)
	}
	w.Close()
}

func TestClosedWorkspaceStopsListening(t *testing.T) {
	var favStatus atomic.Int32
	srv := newFakeServer(t, &favStatus)
	first, sm := restoredWorkspace(t, srv)
	first.Close()

	second, err := NewWorkspace(sm, config.Default())
	if err != nil {
		t.Fatalf("NewWorkspace error: %v", err)
	}
	if second.Closed() {
		t.Fatal("new workspace should be open")
	}
	if err := sm.Logout(); err != nil {
		t.Fatalf("Logout error: %v", err)
	}
	if !second.Closed() {
		t.Error("logout should close the live workspace")
	}
}

func TestDeleteOwnPost(t *testing.T) {
	var favStatus atomic.Int32
	srv := newFakeServer(t, &favStatus)
	w, _ := restoredWorkspace(t, srv)
	ctx := context.Background()

	home, _ := w.Timeline("home")
	_, _ = home.Fetch(ctx)

	if err := w.Mutations.Delete(ctx, "2"); !errors.Is(err, models.ErrNotAuthor) {
		t.Errorf("expected ErrNotAuthor, got %v", err)
	}
	// DELETE /api/v1/statuses/1 is not routed, so the server answers 404.
	if err := w.Mutations.Delete(ctx, "1"); err == nil {
		t.Error("expected failure from the fake server")
	}
	if len(home.Items()) != 2 {
		t.Error("failed delete must leave the post")
	}
}

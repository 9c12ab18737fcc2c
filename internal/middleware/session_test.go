package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hitoshi/searchsaver/internal/model"
)

// mockSessionFinder はSessionFinderのモック。
type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

var _ SessionFinder = (*mockSessionFinder)(nil)

func validSessionFinder(userID string) *mockSessionFinder {
	return &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "valid-session" {
				return nil, nil
			}
			return &model.Session{
				ID:        id,
				UserID:    userID,
				Email:     userID + "@example.com",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
}

func TestSessionResolver_ValidSession_InjectsAuthenticatedViewer(t *testing.T) {
	var captured *model.Viewer
	handler := NewSessionResolver(validSessionFinder("user-1"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = ViewerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured == nil || captured.State != model.SessionStateAuthenticated {
		t.Fatalf("viewer = %+v, want authenticated", captured)
	}
	if captured.UserID() != "user-1" {
		t.Errorf("UserID() = %q, want %q", captured.UserID(), "user-1")
	}
	if captured.Session.Email != "user-1@example.com" {
		t.Errorf("Email = %q", captured.Session.Email)
	}
}

func TestSessionResolver_AnonymousCases_NeverReject(t *testing.T) {
	tests := []struct {
		name   string
		cookie *http.Cookie
		finder *mockSessionFinder
	}{
		{"no cookie", nil, &mockSessionFinder{}},
		{"empty cookie", &http.Cookie{Name: SessionCookieName, Value: ""}, &mockSessionFinder{}},
		{"unknown or expired session", &http.Cookie{Name: SessionCookieName, Value: "gone"}, &mockSessionFinder{}},
		{
			"repository error",
			&http.Cookie{Name: SessionCookieName, Value: "valid-session"},
			&mockSessionFinder{findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, errors.New("db down")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *model.Viewer
			handler := NewSessionResolver(tt.finder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = ViewerFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if captured == nil || captured.State != model.SessionStateAnonymous {
				t.Errorf("viewer = %+v, want anonymous", captured)
			}
			if captured.IsAuthenticated() {
				t.Error("viewer must not be authenticated")
			}
		})
	}
}

func TestRequireSession_Unauthenticated_Returns401JSON(t *testing.T) {
	chain := NewSessionResolver(&mockSessionFinder{})(RequireSession()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})))

	w := httptest.NewRecorder()
	chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/links", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestRequireSession_Authenticated_PassesThrough(t *testing.T) {
	var userID string
	chain := NewSessionResolver(validSessionFinder("user-2"))(RequireSession()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/links", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	w := httptest.NewRecorder()
	chain.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if userID != "user-2" {
		t.Errorf("userID = %q, want %q", userID, "user-2")
	}
}

func TestRequireSessionRedirect_Unauthenticated_RedirectsWithFrom(t *testing.T) {
	tests := []struct {
		path     string
		wantFrom string
	}{
		{"/", "/"},
		{"/?q=golang+channels", "/?q=golang+channels"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			chain := NewSessionResolver(&mockSessionFinder{})(RequireSessionRedirect("/auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			})))

			w := httptest.NewRecorder()
			chain.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", w.Code)
			}
			loc, err := url.Parse(w.Header().Get("Location"))
			if err != nil {
				t.Fatalf("invalid Location: %v", err)
			}
			if loc.Path != "/auth" {
				t.Errorf("redirect path = %q, want /auth", loc.Path)
			}
			if got := loc.Query().Get("from"); got != tt.wantFrom {
				t.Errorf("from = %q, want %q", got, tt.wantFrom)
			}
		})
	}
}

func TestRequireSessionRedirect_Authenticated_PassesThrough(t *testing.T) {
	called := false
	chain := NewSessionResolver(validSessionFinder("user-3"))(RequireSessionRedirect("/auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session"})
	chain.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("handler should have been called")
	}
}

func TestViewerFromContext_NoValue_ReturnsUninitialized(t *testing.T) {
	viewer := ViewerFromContext(context.Background())
	if viewer.State != model.SessionStateUninitialized {
		t.Errorf("State = %q, want %q", viewer.State, model.SessionStateUninitialized)
	}
	if SessionFromContext(context.Background()) != nil {
		t.Error("SessionFromContext should return nil")
	}
}

func TestUserIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Fatal("expected error for empty context")
	}
}

func TestUserIDFromContext_ValidValue_ReturnsUserID(t *testing.T) {
	ctx := ContextWithUserID(context.Background(), "user-456")

	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/searchsaver/internal/engine"
	"github.com/hitoshi/searchsaver/internal/links"
	"github.com/hitoshi/searchsaver/internal/metrics"
	"github.com/hitoshi/searchsaver/internal/middleware"
	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/repository"
	"github.com/hitoshi/searchsaver/internal/search"
)

// --- モック定義 ---

type mockAuthService struct {
	loginFn  func(ctx context.Context, email, password string) (*model.Session, error)
	signupFn func(ctx context.Context, email, password, confirm string) (*model.Session, error)
	logoutFn func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) Signup(ctx context.Context, email, password, confirm string) (*model.Session, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, email, password, confirm)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockSearchService struct {
	mu                 sync.Mutex
	calls              int
	searchFn           func(ctx context.Context, query, engineID string) (*search.Response, error)
	checkCredentialsFn func() error
}

func (m *mockSearchService) CheckCredentials() error {
	if m.checkCredentialsFn != nil {
		return m.checkCredentialsFn()
	}
	return nil
}

func (m *mockSearchService) Search(ctx context.Context, query, engineID string) (*search.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(ctx, query, engineID)
	}
	return &search.Response{Query: query, EngineID: engineID, Results: []model.SearchResult{}}, nil
}

func (m *mockSearchService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockLinkService struct {
	saveFn      func(ctx context.Context, ownerID string, in links.SaveInput) (*model.SavedLink, error)
	deleteFn    func(ctx context.Context, ownerID, linkID string) error
	listFn      func(ctx context.Context, ownerID string) ([]*model.SavedLink, error)
	subscribeFn func(ctx context.Context, ownerID, sessionID string) (*links.Subscription, error)
}

func (m *mockLinkService) Save(ctx context.Context, ownerID string, in links.SaveInput) (*model.SavedLink, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, ownerID, in)
	}
	return &model.SavedLink{ID: "link-1", OwnerID: ownerID, Title: in.Title, URL: in.URL, Engine: in.EngineLabel}, nil
}

func (m *mockLinkService) Delete(ctx context.Context, ownerID, linkID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, linkID)
	}
	return nil
}

func (m *mockLinkService) List(ctx context.Context, ownerID string) ([]*model.SavedLink, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return []*model.SavedLink{}, nil
}

func (m *mockLinkService) Subscribe(ctx context.Context, ownerID, sessionID string) (*links.Subscription, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, ownerID, sessionID)
	}
	return nil, fmt.Errorf("subscribe not configured")
}

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// memoryLinkRepo はSavedLinkRepositoryのインメモリ実装。ライブ配信のテストで実サービスと組み合わせる。
type memoryLinkRepo struct {
	mu    sync.Mutex
	seq   int
	links []*model.SavedLink
}

func (m *memoryLinkRepo) Create(_ context.Context, link *model.SavedLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	link.ID = fmt.Sprintf("link-%d", m.seq)
	link.CreatedAt = time.Unix(int64(m.seq), 0)
	copied := *link
	m.links = append(m.links, &copied)
	return nil
}

func (m *memoryLinkRepo) ListByOwner(_ context.Context, ownerID string) ([]*model.SavedLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.SavedLink{}
	for _, l := range m.links {
		if l.OwnerID == ownerID {
			copied := *l
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryLinkRepo) DeleteByOwner(_ context.Context, ownerID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.ID == id && l.OwnerID == ownerID {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

var _ repository.SavedLinkRepository = (*memoryLinkRepo)(nil)

// --- テストヘルパー ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newLiveLinkService はインメモリのリポジトリと通知で動く実サービスを生成する。
func newLiveLinkService() *links.Service {
	return links.NewService(&memoryLinkRepo{}, links.NewMemoryNotifier(), metrics.Nop{}, discardLogger())
}

// testRegistry はエンジン1のみ設定済みのRegistryを返す。
func testRegistry() *engine.Registry {
	return engine.NewRegistryFromEngines(
		engine.Engine{ID: engine.ID1, CX: "cx-one", Label: "Web"},
		engine.Engine{ID: engine.ID2, CX: "", Label: "Docs"},
	)
}

func bothEnginesRegistry() *engine.Registry {
	return engine.NewRegistryFromEngines(
		engine.Engine{ID: engine.ID1, CX: "cx-one", Label: "Web"},
		engine.Engine{ID: engine.ID2, CX: "cx-two", Label: "Docs"},
	)
}

func noEngineRegistry() *engine.Registry {
	return engine.NewRegistryFromEngines(
		engine.Engine{ID: engine.ID1},
		engine.Engine{ID: engine.ID2},
	)
}

func testPrefs(registry *engine.Registry) engine.PreferenceStore {
	return engine.NewCookiePreferenceStore(registry, false, "")
}

func testSession(userID string) *model.Session {
	return &model.Session{
		ID:        "session-" + userID,
		UserID:    userID,
		Email:     userID + "@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func withSession(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), testSession(userID)))
}

func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/searchsaver/internal/model"
	"github.com/hitoshi/searchsaver/internal/repository"
)

// --- モック定義 ---

type mockSessionRepo struct {
	createFn        func(ctx context.Context, session *model.Session) error
	findByIDFn      func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn    func(ctx context.Context, id string) error
	deleteExpiredFn func(ctx context.Context) (int64, error)
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

type mockProvider struct {
	signUpFn  func(ctx context.Context, email, password string) (*ProviderSession, error)
	signInFn  func(ctx context.Context, email, password string) (*ProviderSession, error)
	signOutFn func(ctx context.Context, token string) error
	whoamiFn  func(ctx context.Context, token string) (*Identity, error)

	calls int
}

func (m *mockProvider) SignUp(ctx context.Context, email, password string) (*ProviderSession, error) {
	m.calls++
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (*ProviderSession, error) {
	m.calls++
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockProvider) SignOut(ctx context.Context, token string) error {
	m.calls++
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

func (m *mockProvider) Whoami(ctx context.Context, token string) (*Identity, error) {
	m.calls++
	if m.whoamiFn != nil {
		return m.whoamiFn(ctx, token)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ IdentityProvider = (*mockProvider)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestService(provider IdentityProvider, repo repository.SessionRepository) *Service {
	return NewService(provider, repo, ServiceConfig{SessionMaxAge: 86400}, testLogger())
}

func okSession(id, email string) func(ctx context.Context, e, p string) (*ProviderSession, error) {
	return func(ctx context.Context, e, p string) (*ProviderSession, error) {
		return &ProviderSession{Token: "tok-" + id, Identity: Identity{ID: id, Email: email}}, nil
	}
}

func assertAPIError(t *testing.T, err error, code, message string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
	if message != "" && apiErr.Message != message {
		t.Errorf("Message = %q, want %q", apiErr.Message, message)
	}
}

// --- Login ---

func TestLogin_Success_CreatesSession(t *testing.T) {
	var gotEmail string
	var created *model.Session

	provider := &mockProvider{
		signInFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			gotEmail = email
			return &ProviderSession{Token: "kratos-token", Identity: Identity{ID: "user-1", Email: email}}, nil
		},
	}
	repo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}
	svc := newTestService(provider, repo)

	session, err := svc.Login(context.Background(), "  alice@example.com ", "secret123")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if gotEmail != "alice@example.com" {
		t.Errorf("provider received email %q, want trimmed value", gotEmail)
	}
	if created == nil || created != session {
		t.Fatal("expected session to be persisted")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64", len(session.ID))
	}
	if session.UserID != "user-1" || session.Email != "alice@example.com" {
		t.Errorf("session = %+v", session)
	}
	if session.ProviderToken != "kratos-token" {
		t.Errorf("ProviderToken = %q, want %q", session.ProviderToken, "kratos-token")
	}

	expectedExpiry := time.Now().Add(86400 * time.Second)
	if diff := session.ExpiresAt.Sub(expectedExpiry); diff > 5*time.Second || diff < -5*time.Second {
		t.Errorf("ExpiresAt = %v, want around %v", session.ExpiresAt, expectedExpiry)
	}
}

func TestLogin_ProviderRejects_ReturnsProviderMessageVerbatim(t *testing.T) {
	const providerMsg = "The provided credentials are invalid, check for spelling mistakes in your password or username, email address, or phone number."

	provider := &mockProvider{
		signInFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			return nil, &ProviderError{Message: providerMsg, Status: 400}
		},
	}
	createCalled := false
	repo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createCalled = true
			return nil
		},
	}
	svc := newTestService(provider, repo)

	session, err := svc.Login(context.Background(), "alice@example.com", "wrong")
	if session != nil {
		t.Error("expected nil session")
	}
	assertAPIError(t, err, model.ErrCodeAuthFailed, providerMsg)
	if createCalled {
		t.Error("session must not be created when the provider rejects")
	}
}

func TestLogin_EmptyCredentials_DoesNotCallProvider(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Login(context.Background(), "   ", "secret")
	assertAPIError(t, err, model.ErrCodeValidation, MsgCredentialsRequired)

	_, err = svc.Login(context.Background(), "alice@example.com", "")
	assertAPIError(t, err, model.ErrCodeValidation, MsgCredentialsRequired)

	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}

func TestLogin_TransportError_IsWrapped(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	provider := &mockProvider{
		signInFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			return nil, boom
		},
	}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Login(context.Background(), "alice@example.com", "secret123")
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestLogin_SessionSaveFails_ReturnsError(t *testing.T) {
	provider := &mockProvider{signInFn: okSession("user-1", "alice@example.com")}
	repo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			return errors.New("db down")
		},
	}
	svc := newTestService(provider, repo)

	if _, err := svc.Login(context.Background(), "alice@example.com", "secret123"); err == nil {
		t.Fatal("expected error when the session cannot be saved")
	}
}

// --- Signup ---

func TestSignup_ShortPassword_DoesNotCallProvider(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Signup(context.Background(), "bob@example.com", "abc", "abc")
	assertAPIError(t, err, model.ErrCodeValidation, "Password must be at least 6 characters")
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}

func TestSignup_MismatchedConfirmation_DoesNotCallProvider(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Signup(context.Background(), "bob@example.com", "abcdef", "abcdeg")
	assertAPIError(t, err, model.ErrCodeValidation, "Passwords do not match")
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}

func TestSignup_ShortAndMismatched_ReportsLengthFirst(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Signup(context.Background(), "bob@example.com", "abc", "xyz")
	assertAPIError(t, err, model.ErrCodeValidation, MsgPasswordTooShort)
}

func TestSignup_PasswordLengthCountsCharacters(t *testing.T) {
	provider := &mockProvider{signUpFn: okSession("user-2", "bob@example.com")}
	svc := newTestService(provider, &mockSessionRepo{})

	// マルチバイト6文字は6文字として扱う
	if _, err := svc.Signup(context.Background(), "bob@example.com", "ぱすわーどだ", "ぱすわーどだ"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
}

func TestSignup_Success_CreatesSession(t *testing.T) {
	var gotEmail, gotPassword string
	provider := &mockProvider{
		signUpFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			gotEmail, gotPassword = email, password
			return &ProviderSession{Token: "tok", Identity: Identity{ID: "user-2", Email: email}}, nil
		},
	}
	svc := newTestService(provider, &mockSessionRepo{})

	session, err := svc.Signup(context.Background(), " bob@example.com", "abcdef", "abcdef")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	if gotEmail != "bob@example.com" || gotPassword != "abcdef" {
		t.Errorf("provider received (%q, %q)", gotEmail, gotPassword)
	}
	if session.UserID != "user-2" {
		t.Errorf("UserID = %q, want %q", session.UserID, "user-2")
	}
}

func TestSignup_ProviderRejects_ReturnsProviderMessage(t *testing.T) {
	const providerMsg = "An account with the same identifier (email, phone, username, ...) exists already."
	provider := &mockProvider{
		signUpFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			return nil, &ProviderError{Message: providerMsg, Status: 400}
		},
	}
	svc := newTestService(provider, &mockSessionRepo{})

	_, err := svc.Signup(context.Background(), "bob@example.com", "abcdef", "abcdef")
	assertAPIError(t, err, model.ErrCodeAuthFailed, providerMsg)
}

func TestSignup_ProviderReturnsNoIdentity_ReturnsError(t *testing.T) {
	provider := &mockProvider{
		signUpFn: func(ctx context.Context, email, password string) (*ProviderSession, error) {
			return &ProviderSession{Token: "tok"}, nil
		},
	}
	svc := newTestService(provider, &mockSessionRepo{})

	if _, err := svc.Signup(context.Background(), "bob@example.com", "abcdef", "abcdef"); err == nil {
		t.Fatal("expected error when the provider returns no identity")
	}
}

// --- Logout ---

func TestLogout_DeletesSessionRevokesProviderAndNotifies(t *testing.T) {
	var deletedID, revokedToken string
	var ended []string

	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ProviderToken: "kratos-token"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	provider := &mockProvider{
		signOutFn: func(ctx context.Context, token string) error {
			revokedToken = token
			return nil
		},
	}
	svc := newTestService(provider, repo)
	svc.OnSessionEnd(func(sessionID string) { ended = append(ended, sessionID) })

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}

	if deletedID != "sess-1" {
		t.Errorf("deleted session = %q, want %q", deletedID, "sess-1")
	}
	if revokedToken != "kratos-token" {
		t.Errorf("revoked token = %q, want %q", revokedToken, "kratos-token")
	}
	if len(ended) != 1 || ended[0] != "sess-1" {
		t.Errorf("session end listeners = %v, want [sess-1]", ended)
	}
}

func TestLogout_ProviderRevokeFails_StillSucceeds(t *testing.T) {
	deleted := false
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ProviderToken: "tok"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	provider := &mockProvider{
		signOutFn: func(ctx context.Context, token string) error {
			return &ProviderError{Message: "session not found", Status: 401}
		},
	}
	svc := newTestService(provider, repo)

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if !deleted {
		t.Error("expected local session to be deleted")
	}
}

func TestLogout_UnknownSession_SkipsProvider(t *testing.T) {
	provider := &mockProvider{}
	svc := newTestService(provider, &mockSessionRepo{})

	if err := svc.Logout(context.Background(), "missing"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", provider.calls)
	}
}

func TestLogout_EmptySessionID_ReturnsError(t *testing.T) {
	svc := newTestService(&mockProvider{}, &mockSessionRepo{})

	if err := svc.Logout(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

func TestLogout_DeleteFails_ReturnsErrorWithoutNotifying(t *testing.T) {
	repo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			return errors.New("db down")
		},
	}
	svc := newTestService(&mockProvider{}, repo)
	notified := false
	svc.OnSessionEnd(func(string) { notified = true })

	if err := svc.Logout(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected error")
	}
	if notified {
		t.Error("listeners must not be notified when deletion fails")
	}
}

// --- CurrentSession ---

func TestCurrentSession_Valid_ReturnsSession(t *testing.T) {
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	svc := newTestService(&mockProvider{}, repo)

	session, err := svc.CurrentSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if session == nil || session.UserID != "user-1" {
		t.Errorf("session = %+v, want user-1", session)
	}
}

func TestCurrentSession_Expired_ReturnsNil(t *testing.T) {
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(-time.Minute)}, nil
		},
	}
	svc := newTestService(&mockProvider{}, repo)

	session, err := svc.CurrentSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("CurrentSession() error = %v", err)
	}
	if session != nil {
		t.Errorf("expected nil for expired session, got %+v", session)
	}
}

func TestCurrentSession_EmptyID_ReturnsNil(t *testing.T) {
	called := false
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			called = true
			return nil, nil
		},
	}
	svc := newTestService(&mockProvider{}, repo)

	session, err := svc.CurrentSession(context.Background(), "")
	if err != nil || session != nil {
		t.Errorf("CurrentSession(\"\") = (%v, %v), want (nil, nil)", session, err)
	}
	if called {
		t.Error("repository should not be queried for an empty ID")
	}
}

func TestCurrentSession_RepoError_ReturnsError(t *testing.T) {
	repo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("db down")
		},
	}
	svc := newTestService(&mockProvider{}, repo)

	if _, err := svc.CurrentSession(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected error")
	}
}

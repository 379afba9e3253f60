package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type identityStub struct {
	mu       sync.Mutex
	requests []string

	signUpStatus int
	signInStatus int
	userStatus   int
}

func newIdentityStub(t *testing.T) (*identityStub, *Client) {
	t.Helper()
	stub := &identityStub{
		signUpStatus: http.StatusOK,
		signInStatus: http.StatusOK,
		userStatus:   http.StatusOK,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.requests = append(stub.requests, r.Method+" "+r.URL.Path)
		stub.mu.Unlock()

		switch r.URL.Path {
		case "/signup":
			stub.respondSession(w, stub.signUpStatus)
		case "/token":
			if r.URL.Query().Get("grant_type") != "password" {
				http.Error(w, "bad grant", http.StatusBadRequest)
				return
			}
			stub.respondSession(w, stub.signInStatus)
		case "/logout":
			w.WriteHeader(http.StatusNoContent)
		case "/user":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"code": "invalid_token", "msg": "bad token"})
				return
			}
			if stub.userStatus != http.StatusOK {
				w.WriteHeader(stub.userStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(User{ID: "u1", Email: "ana@example.com", Name: "Ana Updated"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL: srv.URL,
		APIKey:  "anon-key",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return stub, client
}

func (s *identityStub) respondSession(w http.ResponseWriter, status int) {
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code": "invalid_credentials",
			"msg":  "Invalid login credentials",
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "tok-1",
		"expires_in":   3600,
		"user": map[string]any{
			"id":            "u1",
			"email":         "ana@example.com",
			"user_metadata": map[string]any{"name": "Ana"},
		},
	})
}

func TestSignIn_Success(t *testing.T) {
	_, client := newIdentityStub(t)

	session, err := client.SignIn(context.Background(), "ana@example.com", "pw")
	if err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if session.AccessToken != "tok-1" {
		t.Errorf("token = %q", session.AccessToken)
	}
	if session.User.ID != "u1" {
		t.Errorf("user id = %q", session.User.ID)
	}
	if session.User.Name != "Ana" {
		t.Errorf("name from metadata = %q", session.User.Name)
	}
	if session.Expired() {
		t.Error("fresh session should not be expired")
	}
	if client.Session() != session {
		t.Error("client should hold the new session")
	}
}

func TestSignIn_StructuredError(t *testing.T) {
	stub, client := newIdentityStub(t)
	stub.signInStatus = http.StatusBadRequest

	session, err := client.SignIn(context.Background(), "ana@example.com", "wrong")
	if session != nil {
		t.Error("no session expected on failure")
	}
	authErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if authErr.Code != "invalid_credentials" {
		t.Errorf("code = %q", authErr.Code)
	}
	if authErr.Message != "Invalid login credentials" {
		t.Errorf("message = %q", authErr.Message)
	}
	if client.Session() != nil {
		t.Error("failed sign-in must not install a session")
	}
}

func TestSignUp_SendsProfileData(t *testing.T) {
	_, client := newIdentityStub(t)

	session, err := client.SignUp(context.Background(), "ana@example.com", "pw", map[string]any{
		ProfileKeyName: "Ana",
		ProfileKeyRole: "candidate",
	})
	if err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}
	if session == nil || session.User.ID != "u1" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestSignOut_ClearsSessionAndNotifies(t *testing.T) {
	_, client := newIdentityStub(t)
	if _, err := client.SignIn(context.Background(), "ana@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var deliveries []*Session
	unsub := client.Subscribe(func(s *Session) {
		mu.Lock()
		deliveries = append(deliveries, s)
		mu.Unlock()
	})
	defer unsub()

	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}
	if client.Session() != nil {
		t.Error("session should be cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	// First delivery is the immediate snapshot, second is the sign-out.
	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(deliveries))
	}
	if deliveries[0] == nil {
		t.Error("snapshot delivery should carry the live session")
	}
	if deliveries[1] != nil {
		t.Error("sign-out delivery should be nil")
	}
}

func TestSignOut_WithoutSessionIsNoop(t *testing.T) {
	stub, client := newIdentityStub(t)

	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out without session should succeed: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.requests) != 0 {
		t.Error("no remote call expected without a session")
	}
}

func TestUpdateProfile(t *testing.T) {
	_, client := newIdentityStub(t)
	if _, err := client.SignIn(context.Background(), "ana@example.com", "pw"); err != nil {
		t.Fatal(err)
	}

	user, err := client.UpdateProfile(context.Background(), map[string]any{ProfileKeyName: "Ana Updated"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if user.Name != "Ana Updated" {
		t.Errorf("name = %q", user.Name)
	}
	if client.Session().User.Name != "Ana Updated" {
		t.Error("session snapshot should be refreshed")
	}
}

func TestUpdateProfile_RequiresSession(t *testing.T) {
	_, client := newIdentityStub(t)

	_, err := client.UpdateProfile(context.Background(), map[string]any{ProfileKeyName: "x"})
	authErr, ok := err.(*Error)
	if !ok || authErr.Code != "not_signed_in" {
		t.Errorf("expected not_signed_in error, got %v", err)
	}
}

func TestCurrentSession(t *testing.T) {
	_, client := newIdentityStub(t)

	// Signed out: nil, nil.
	session, err := client.CurrentSession(context.Background())
	if err != nil || session != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", session, err)
	}

	if _, err := client.SignIn(context.Background(), "ana@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	session, err = client.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("current session failed: %v", err)
	}
	if session == nil || session.User.Name != "Ana Updated" {
		t.Errorf("expected refreshed user snapshot, got %+v", session)
	}
}

func TestCurrentSession_InvalidTokenSignsOut(t *testing.T) {
	_, client := newIdentityStub(t)
	client.RestoreSession(&Session{AccessToken: "stale-token"})

	session, err := client.CurrentSession(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("stale token should resolve to signed out")
	}
	if client.Session() != nil {
		t.Error("client should drop the stale session")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	_, client := newIdentityStub(t)

	count := 0
	unsub := client.Subscribe(func(*Session) { count++ })
	if count != 1 {
		t.Fatalf("expected immediate snapshot delivery, got %d", count)
	}
	unsub()

	if _, err := client.SignIn(context.Background(), "ana@example.com", "pw"); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("unsubscribed callback should not fire")
	}
}

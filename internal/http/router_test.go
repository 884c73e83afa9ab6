package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mveldkamp/accounthub/internal/auth"
	"github.com/mveldkamp/accounthub/internal/config"
	"github.com/mveldkamp/accounthub/internal/domain/user"
	apphttp "github.com/mveldkamp/accounthub/internal/http"
	"github.com/mveldkamp/accounthub/internal/repo/memory"
	"github.com/mveldkamp/accounthub/internal/security"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		Env:               "test",
		Port:              0,
		SessionSecret:     "test-secret-key",
		SessionTTLMinutes: 60,
		BcryptCost:        bcrypt.MinCost,
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *memory.UsersRepo) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store := memory.NewUsersRepo()

	router := apphttp.NewRouter(logger, nil, testConfig(), apphttp.Deps{Store: store})

	return router, store
}

// seedUser inserts a user directly into the store with a hashed password.
func seedUser(t *testing.T, store *memory.UsersRepo, email, password, name, role string) user.User {
	t.Helper()

	hash, err := security.HashPassword(password, bcrypt.MinCost)

	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	u, err := store.Create(context.Background(), email, hash, name, role)

	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return u
}

func doRequest(router http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

// login runs the login flow and returns the session cookie.
func login(t *testing.T, router http.Handler, email, password string) *http.Cookie {
	t.Helper()

	w := doRequest(router, http.MethodPost, "/auth/login",
		`{"email":"`+email+`","password":"`+password+`"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("login failed: status=%d body=%s", w.Code, w.Body.String())
	}

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}

	t.Fatal("session cookie not found in login response")

	return nil
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func TestRegisterThenDuplicate(t *testing.T) {
	router, store := setupRouter(t)

	body := `{"name":"Alice","email":"alice@example.com","password":"s3cret","role":"USER"}`

	w := doRequest(router, http.MethodPost, "/auth/register", body)

	if w.Code != http.StatusCreated {
		t.Fatalf("first register: status=%d body=%s", w.Code, w.Body.String())
	}

	w = doRequest(router, http.MethodPost, "/auth/register", body)

	if w.Code != http.StatusConflict {
		t.Fatalf("second register: status=%d, want 409", w.Code)
	}

	users, err := store.List(context.Background())

	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(users) != 1 {
		t.Errorf("expected one record after duplicate register, got %d", len(users))
	}

	if users[0].PasswordHash == "s3cret" {
		t.Error("password stored in cleartext")
	}
}

func TestMeLifecycle(t *testing.T) {
	router, store := setupRouter(t)

	seeded := seedUser(t, store, "alice@example.com", "s3cret", "Alice", user.RoleUser)

	// no cookie: no session, not an error
	w := doRequest(router, http.MethodGet, "/auth/me", "")

	if w.Code != http.StatusOK {
		t.Fatalf("me without cookie: status=%d", w.Code)
	}

	var resp struct {
		User *user.Profile `json:"user"`
	}

	mustReadJSON(t, w, &resp)

	if resp.User != nil {
		t.Fatalf("expected user null, got %+v", resp.User)
	}

	// valid session resolves the redacted live record
	cookie := login(t, router, "alice@example.com", "s3cret")

	w = doRequest(router, http.MethodGet, "/auth/me", "", cookie)

	mustReadJSON(t, w, &resp)

	if resp.User == nil {
		t.Fatal("expected resolved user")
	}

	if resp.User.ID != seeded.ID || resp.User.Email != "alice@example.com" || resp.User.Role != user.RoleUser {
		t.Errorf("resolved user = %+v", resp.User)
	}

	// a rename lands on the next resolution: the record is re-fetched live
	if err := store.UpdateName(context.Background(), seeded.ID, "Alicia"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	w = doRequest(router, http.MethodGet, "/auth/me", "", cookie)
	mustReadJSON(t, w, &resp)

	if resp.User == nil || resp.User.Name != "Alicia" {
		t.Errorf("expected live name Alicia, got %+v", resp.User)
	}

	// tampered cookie falls back to no session
	bad := *cookie
	bad.Value = cookie.Value + "x"

	w = doRequest(router, http.MethodGet, "/auth/me", "", &bad)

	if w.Code != http.StatusOK {
		t.Fatalf("me with tampered cookie: status=%d", w.Code)
	}

	mustReadJSON(t, w, &resp)

	if resp.User != nil {
		t.Error("tampered token must resolve to no session")
	}

	// deleted user: token still verifies but resolution finds nothing
	if err := store.Delete(context.Background(), seeded.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	w = doRequest(router, http.MethodGet, "/auth/me", "", cookie)
	mustReadJSON(t, w, &resp)

	if resp.User != nil {
		t.Error("deleted user must resolve to no session")
	}
}

func TestMeWithExpiredToken(t *testing.T) {
	router, store := setupRouter(t)

	seeded := seedUser(t, store, "alice@example.com", "s3cret", "Alice", user.RoleUser)

	expired, _, err := auth.NewManager("test-secret-key", -time.Minute).GenerateSessionToken(seeded.ID, seeded.Role)

	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	w := doRequest(router, http.MethodGet, "/auth/me", "", &http.Cookie{Name: auth.CookieName, Value: expired})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		User *user.Profile `json:"user"`
	}

	mustReadJSON(t, w, &resp)

	if resp.User != nil {
		t.Error("expired token must resolve to no session")
	}
}

func TestListUsersAuthorization(t *testing.T) {
	router, store := setupRouter(t)

	admin := seedUser(t, store, "admin@example.com", "adminpass", "Admin", user.RoleAdmin)
	seedUser(t, store, "bob@example.com", "bobpass", "Bob", user.RoleUser)

	// unauthenticated
	w := doRequest(router, http.MethodGet, "/users", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list: status=%d, want 401", w.Code)
	}

	// plain user
	bobCookie := login(t, router, "bob@example.com", "bobpass")

	w = doRequest(router, http.MethodGet, "/users", "", bobCookie)

	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin list: status=%d, want 403", w.Code)
	}

	// admin sees full rows, hash included
	adminCookie := login(t, router, "admin@example.com", "adminpass")

	w = doRequest(router, http.MethodGet, "/users", "", adminCookie)

	if w.Code != http.StatusOK {
		t.Fatalf("admin list: status=%d body=%s", w.Code, w.Body.String())
	}

	var resp struct {
		Items []struct {
			ID           string `json:"id"`
			Email        string `json:"email"`
			PasswordHash string `json:"passwordHash"`
			Role         string `json:"role"`
		} `json:"items"`
		Count int `json:"count"`
	}

	mustReadJSON(t, w, &resp)

	if resp.Count != 2 || len(resp.Items) != 2 {
		t.Fatalf("count = %d items=%d, want 2", resp.Count, len(resp.Items))
	}

	foundAdmin := false

	for _, item := range resp.Items {
		if item.PasswordHash == "" {
			t.Errorf("listing row %s missing password hash", item.ID)
		}

		if item.ID == admin.ID && item.Role == user.RoleAdmin {
			foundAdmin = true
		}
	}

	if !foundAdmin {
		t.Error("admin row missing from listing")
	}
}

func TestUpdateUserNameOwnership(t *testing.T) {
	router, store := setupRouter(t)

	alice := seedUser(t, store, "alice@example.com", "alicepass", "Alice", user.RoleUser)
	bob := seedUser(t, store, "bob@example.com", "bobpass", "Bob", user.RoleUser)
	seedUser(t, store, "admin@example.com", "adminpass", "Admin", user.RoleAdmin)

	aliceCookie := login(t, router, "alice@example.com", "alicepass")
	adminCookie := login(t, router, "admin@example.com", "adminpass")

	// unauthenticated
	w := doRequest(router, http.MethodPut, "/users/"+alice.ID, `{"name":"X"}`)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous rename: status=%d, want 401", w.Code)
	}

	// self-rename
	w = doRequest(router, http.MethodPut, "/users/"+alice.ID, `{"name":"Alicia"}`, aliceCookie)

	if w.Code != http.StatusOK {
		t.Fatalf("self rename: status=%d body=%s", w.Code, w.Body.String())
	}

	got, _ := store.GetByID(context.Background(), alice.ID)

	if got.Name != "Alicia" {
		t.Errorf("name = %q, want Alicia", got.Name)
	}

	// renaming someone else without ADMIN
	w = doRequest(router, http.MethodPut, "/users/"+bob.ID, `{"name":"Hijacked"}`, aliceCookie)

	if w.Code != http.StatusForbidden {
		t.Errorf("cross-user rename: status=%d, want 403", w.Code)
	}

	got, _ = store.GetByID(context.Background(), bob.ID)

	if got.Name != "Bob" {
		t.Errorf("bob's name changed to %q", got.Name)
	}

	// admin renames anyone
	w = doRequest(router, http.MethodPut, "/users/"+bob.ID, `{"name":"Robert"}`, adminCookie)

	if w.Code != http.StatusOK {
		t.Fatalf("admin rename: status=%d body=%s", w.Code, w.Body.String())
	}

	// empty name is a validation failure
	w = doRequest(router, http.MethodPut, "/users/"+alice.ID, `{"name":""}`, aliceCookie)

	if w.Code != http.StatusBadRequest {
		t.Errorf("empty name: status=%d, want 400", w.Code)
	}

	// unknown target as admin
	w = doRequest(router, http.MethodPut, "/users/no-such-id", `{"name":"X"}`, adminCookie)

	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status=%d, want 404", w.Code)
	}
}

func TestDeleteUserAuthorization(t *testing.T) {
	router, store := setupRouter(t)

	alice := seedUser(t, store, "alice@example.com", "alicepass", "Alice", user.RoleUser)
	seedUser(t, store, "admin@example.com", "adminpass", "Admin", user.RoleAdmin)

	aliceCookie := login(t, router, "alice@example.com", "alicepass")
	adminCookie := login(t, router, "admin@example.com", "adminpass")

	// non-admin, even against themselves
	w := doRequest(router, http.MethodDelete, "/users/"+alice.ID, "", aliceCookie)

	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin delete: status=%d, want 403", w.Code)
	}

	// admin
	w = doRequest(router, http.MethodDelete, "/users/"+alice.ID, "", adminCookie)

	if w.Code != http.StatusOK {
		t.Fatalf("admin delete: status=%d body=%s", w.Code, w.Body.String())
	}

	if _, err := store.GetByID(context.Background(), alice.ID); err == nil {
		t.Error("record still present after delete")
	}

	// second delete of the same id
	w = doRequest(router, http.MethodDelete, "/users/"+alice.ID, "", adminCookie)

	if w.Code != http.StatusNotFound {
		t.Errorf("repeat delete: status=%d, want 404", w.Code)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	router, store := setupRouter(t)

	seedUser(t, store, "alice@example.com", "s3cret", "Alice", user.RoleUser)

	cookie := login(t, router, "alice@example.com", "s3cret")

	w := doRequest(router, http.MethodPost, "/auth/logout", "", cookie)

	if w.Code != http.StatusOK {
		t.Fatalf("logout: status=%d", w.Code)
	}

	var cleared *http.Cookie

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			cleared = c
		}
	}

	if cleared == nil {
		t.Fatal("logout did not set an expiring cookie")
	}

	if cleared.Value != "" || cleared.MaxAge >= 0 {
		t.Errorf("cookie not cleared: value=%q maxAge=%d", cleared.Value, cleared.MaxAge)
	}

	// client without the cookie has no session
	w = doRequest(router, http.MethodGet, "/auth/me", "")

	var resp struct {
		User *user.Profile `json:"user"`
	}

	mustReadJSON(t, w, &resp)

	if resp.User != nil {
		t.Error("expected no session after logout")
	}
}

func TestHealthEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		w := doRequest(router, http.MethodGet, path, "")

		if w.Code != http.StatusOK {
			t.Errorf("%s: status=%d, want 200", path, w.Code)
		}
	}
}

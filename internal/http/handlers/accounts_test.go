package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockpass/accounts-api/internal/auth"
	"github.com/blockpass/accounts-api/internal/config"
	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/server"
	"github.com/blockpass/accounts-api/internal/storage"
	"github.com/blockpass/accounts-api/internal/storage/memory"
)

const testSecret = "test-signing-secret"

func newServerWith(t *testing.T, store storage.AccountStore) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		JWTSecret:  testSecret,
		JWTIssuer:  "accounts-api",
		JWTTTL:     time.Hour,
		BcryptCost: 4,
	}
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := server.NewRouter(cfg, store, tokens, logger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewAccountStore()
	return newServerWith(t, store), store
}

// unavailableStore fails every call the way a timed-out Postgres pool does.
type unavailableStore struct{}

func (unavailableStore) Insert(context.Context, models.Account) (models.Account, error) {
	return models.Account{}, storage.ErrUnavailable
}

func (unavailableStore) FindByID(context.Context, string) (models.Account, error) {
	return models.Account{}, storage.ErrUnavailable
}

func (unavailableStore) FindByEmail(context.Context, string) (models.Account, error) {
	return models.Account{}, storage.ErrUnavailable
}

func (unavailableStore) List(context.Context) ([]models.Account, error) {
	return nil, storage.ErrUnavailable
}

func (unavailableStore) Update(context.Context, string, storage.AccountUpdate) (models.Account, error) {
	return models.Account{}, storage.ErrUnavailable
}

func (unavailableStore) Delete(context.Context, string) error {
	return storage.ErrUnavailable
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func doAuthed(t *testing.T, method, url, token string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

type createdEnvelope struct {
	Message string         `json:"message"`
	Account models.Account `json:"account"`
}

type loginBody struct {
	Message string `json:"message"`
	Account struct {
		ID      string `json:"id"`
		Profile string `json:"profile"`
		Email   string `json:"email"`
	} `json:"account"`
	Token string `json:"token"`
}

func createAccount(t *testing.T, ts *httptest.Server, profile, name, email, password string) models.Account {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/accounts", map[string]any{
		"profile":  profile,
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out createdEnvelope
	decodeBody(t, resp, &out)
	return out.Account
}

func login(t *testing.T, ts *httptest.Server, email, password string) loginBody {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/accounts/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out loginBody
	decodeBody(t, resp, &out)
	require.NotEmpty(t, out.Token)
	return out
}

func TestCreateAccount(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/accounts", map[string]any{
		"profile":       "individual",
		"name":          "Ana Souza",
		"email":         "Ana@Example.com",
		"password":      "secret1",
		"walletAddress": "0xabc123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	// The credential secret must never appear in a response body.
	assert.NotContains(t, string(raw), "secret1")
	assert.NotContains(t, string(raw), "$2a$")
	assert.NotContains(t, string(raw), "password")

	var out createdEnvelope
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotEmpty(t, out.Account.ID)
	assert.Equal(t, models.RoleIndividual, out.Account.Profile)
	assert.Equal(t, "ana@example.com", out.Account.Email)
	require.NotNil(t, out.Account.WalletAddress)
	assert.Equal(t, "0xabc123", *out.Account.WalletAddress)
	assert.False(t, out.Account.CreatedAt.IsZero())
}

func TestCreateAccountValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	cases := map[string]map[string]any{
		"missing profile": {"name": "A", "email": "a@example.com", "password": "secret1"},
		"unknown profile": {"profile": "superuser", "name": "A", "email": "a@example.com", "password": "secret1"},
		"missing name":    {"profile": "individual", "email": "a@example.com", "password": "secret1"},
		"bad email":       {"profile": "individual", "name": "A", "email": "not-an-email", "password": "secret1"},
		"short password":  {"profile": "individual", "name": "A", "email": "a@example.com", "password": "abc"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/accounts", payload)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateAccountDuplicateEmail(t *testing.T) {
	ts, _ := newTestServer(t)

	createAccount(t, ts, "company", "Acme", "acme@example.com", "secret1")

	// Case differences do not dodge the uniqueness constraint.
	resp := postJSON(t, ts.URL+"/api/accounts", map[string]any{
		"profile":  "company",
		"name":     "Acme Again",
		"email":    "ACME@example.com",
		"password": "secret2",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// The first account remains intact.
	login(t, ts, "acme@example.com", "secret1")
}

func TestLogin(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")

	out := login(t, ts, "ana@example.com", "secret1")
	assert.Equal(t, account.ID, out.Account.ID)
	assert.Equal(t, "individual", out.Account.Profile)

	resp := postJSON(t, ts.URL+"/api/accounts/login", map[string]string{
		"email": "ana@example.com", "password": "secret2",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/accounts/login", map[string]string{
		"email": "nobody@example.com", "password": "secret1",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListRequiresAdmin(t *testing.T) {
	ts, _ := newTestServer(t)
	createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	createAccount(t, ts, "admin", "Root", "root@example.com", "secret1")

	resp := doAuthed(t, http.MethodGet, ts.URL+"/api/accounts", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	userToken := login(t, ts, "ana@example.com", "secret1").Token
	resp = doAuthed(t, http.MethodGet, ts.URL+"/api/accounts", userToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	adminToken := login(t, ts, "root@example.com", "secret1").Token
	resp = doAuthed(t, http.MethodGet, ts.URL+"/api/accounts", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accounts []models.Account
	decodeBody(t, resp, &accounts)
	assert.Len(t, accounts, 2)
}

func TestGetAccount(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	token := login(t, ts, "ana@example.com", "secret1").Token

	resp := doAuthed(t, http.MethodGet, fmt.Sprintf("%s/api/accounts/%s", ts.URL, account.ID), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Account
	decodeBody(t, resp, &got)
	assert.Equal(t, account.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	// Syntactically invalid id fails before any storage access.
	resp = doAuthed(t, http.MethodGet, ts.URL+"/api/accounts/not-a-uuid", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doAuthed(t, http.MethodGet, ts.URL+"/api/accounts/2f9d9f1e-0000-4000-8000-000000000000", token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateAccount(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	createAccount(t, ts, "admin", "Root", "root@example.com", "secret1")
	adminToken := login(t, ts, "root@example.com", "secret1").Token

	url := fmt.Sprintf("%s/api/accounts/%s", ts.URL, account.ID)

	// Update without a password leaves the stored secret untouched.
	resp := doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"name": "Ana Maria"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out createdEnvelope
	decodeBody(t, resp, &out)
	assert.Equal(t, "Ana Maria", out.Account.Name)
	login(t, ts, "ana@example.com", "secret1")

	// A blank password is also a no-op on the credential.
	resp = doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"password": "   "})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login(t, ts, "ana@example.com", "secret1")

	// A real password change rehashes and replaces.
	resp = doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"password": "secret2"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login(t, ts, "ana@example.com", "secret2")
	failed := postJSON(t, ts.URL+"/api/accounts/login", map[string]string{
		"email": "ana@example.com", "password": "secret1",
	})
	failed.Body.Close()
	assert.Equal(t, http.StatusBadRequest, failed.StatusCode)
}

func TestUpdateAccountPasswordValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	createAccount(t, ts, "admin", "Root", "root@example.com", "secret1")
	adminToken := login(t, ts, "root@example.com", "secret1").Token

	url := fmt.Sprintf("%s/api/accounts/%s", ts.URL, account.ID)

	// Whitespace-only means "keep the stored secret": the request succeeds
	// and the original password still logs in.
	resp := doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"password": "   "})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login(t, ts, "ana@example.com", "secret1")

	// A real replacement shorter than the minimum is still rejected.
	resp = doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"password": "abc"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	login(t, ts, "ana@example.com", "secret1")
}

func TestUpdateAccountGuards(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	createAccount(t, ts, "admin", "Root", "root@example.com", "secret1")
	userToken := login(t, ts, "ana@example.com", "secret1").Token
	adminToken := login(t, ts, "root@example.com", "secret1").Token

	url := fmt.Sprintf("%s/api/accounts/%s", ts.URL, account.ID)

	resp := doAuthed(t, http.MethodPut, url, userToken, map[string]any{"name": "Hacked"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doAuthed(t, http.MethodPut, ts.URL+"/api/accounts/2f9d9f1e-0000-4000-8000-000000000000",
		adminToken, map[string]any{"name": "Ghost"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Updating to an email already taken is a conflict.
	resp = doAuthed(t, http.MethodPut, url, adminToken, map[string]any{"email": "root@example.com"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteAccount(t *testing.T) {
	ts, _ := newTestServer(t)
	account := createAccount(t, ts, "individual", "Ana", "ana@example.com", "secret1")
	createAccount(t, ts, "admin", "Root", "root@example.com", "secret1")
	userToken := login(t, ts, "ana@example.com", "secret1").Token
	adminToken := login(t, ts, "root@example.com", "secret1").Token

	url := fmt.Sprintf("%s/api/accounts/%s", ts.URL, account.ID)

	resp := doAuthed(t, http.MethodDelete, url, userToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doAuthed(t, http.MethodDelete, ts.URL+"/api/accounts/not-a-uuid", adminToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doAuthed(t, http.MethodDelete, url, adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "deleted"))

	resp = doAuthed(t, http.MethodDelete, url, adminToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The deleted account's still-valid token no longer authenticates.
	resp = doAuthed(t, http.MethodGet, url, userToken, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStorageTimeoutSurfacesAsServiceUnavailable(t *testing.T) {
	ts := newServerWith(t, unavailableStore{})

	resp := postJSON(t, ts.URL+"/api/accounts", map[string]any{
		"profile":  "individual",
		"name":     "Ana",
		"email":    "ana@example.com",
		"password": "secret1",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/accounts/login", map[string]string{
		"email": "ana@example.com", "password": "secret1",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeVault answers the handful of endpoints the client uses.
func fakeVault(t *testing.T, wantToken string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/v1/auth/approle/role/snapdump/secret-id", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{"secret_id": "sid-1"}})
	})
	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["role_id"] != "role-1" || body["secret_id"] != "sid-1" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]any{"errors": []string{"invalid role or secret ID"}})
			return
		}
		writeJSON(w, map[string]any{"auth": map[string]any{"client_token": "approle-token"}})
	})
	mux.HandleFunc("/v1/database/creds/snapdump", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != wantToken {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"errors": []string{"permission denied"}})
			return
		}
		writeJSON(w, map[string]any{
			"lease_id":       "database/creds/snapdump/abc",
			"lease_duration": 3600,
			"data":           map[string]any{"username": "v-snapdump-x1", "password": "pw"},
		})
	})
	mux.HandleFunc("/v1/database/creds/empty", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": map[string]any{"username": "only-user"}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetDynamicCredentialsWithToken(t *testing.T) {
	srv := fakeVault(t, "static-token")
	t.Setenv("VAULT_TOKEN", "")

	c, err := NewClient(context.Background(), WithAddress(srv.URL), WithToken("static-token"))
	require.NoError(t, err)

	creds, err := c.GetDynamicCredentials(context.Background(), "database/creds/snapdump")
	require.NoError(t, err)
	require.Equal(t, "v-snapdump-x1", creds.Username)
	require.Equal(t, "pw", creds.Password)
	require.Equal(t, "database/creds/snapdump/abc", creds.LeaseID)
	require.Equal(t, time.Hour, creds.TTL)
}

func TestAppRoleLogin(t *testing.T) {
	srv := fakeVault(t, "approle-token")
	t.Setenv("VAULT_TOKEN", "")

	c, err := NewClient(context.Background(), WithAddress(srv.URL), WithAppRole("role-1", "snapdump"))
	require.NoError(t, err)

	creds, err := c.GetDynamicCredentials(context.Background(), "database/creds/snapdump")
	require.NoError(t, err)
	require.Equal(t, "v-snapdump-x1", creds.Username)
}

func TestAppRoleLoginRejected(t *testing.T) {
	srv := fakeVault(t, "approle-token")
	t.Setenv("VAULT_TOKEN", "")

	_, err := NewClient(context.Background(), WithAddress(srv.URL), WithAppRole("wrong", "snapdump"))
	require.Error(t, err)
}

func TestGetDynamicCredentialsMissing(t *testing.T) {
	srv := fakeVault(t, "static-token")
	t.Setenv("VAULT_TOKEN", "")

	c, err := NewClient(context.Background(), WithAddress(srv.URL), WithToken("static-token"))
	require.NoError(t, err)

	_, err = c.GetDynamicCredentials(context.Background(), "database/creds/empty")
	require.True(t, errors.Is(err, ErrNoCredentials), "got %v", err)

	// Unknown paths answer 404, which the API client reports as no secret.
	_, err = c.GetDynamicCredentials(context.Background(), "database/creds/nope")
	require.Error(t, err)
}

func TestRevokeWithoutLease(t *testing.T) {
	srv := fakeVault(t, "static-token")
	c, err := NewClient(context.Background(), WithAddress(srv.URL), WithToken("static-token"))
	require.NoError(t, err)
	require.NoError(t, c.Revoke(context.Background(), ""))
}

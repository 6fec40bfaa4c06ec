package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuongNV13/moodle/common/clients"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
)

const (
	clientIssuerID = int64(3)
	clientUserID   = int64(9)
)

func testClient(t *testing.T, tokenEndpoint string) (*Client, *MemoryStore) {
	t.Helper()
	log := logger.New("error", "text")

	issuer := &models.Issuer{
		ID:                    clientIssuerID,
		Name:                  "MoodleNet",
		ClientID:              "client-id",
		ClientSecret:          "client-secret",
		AuthorizationEndpoint: "https://moodle.net/oauth/authorize",
		TokenEndpoint:         tokenEndpoint,
		Enabled:               true,
		ServiceType:           models.ServiceTypeMoodleNet,
	}

	store := NewMemoryStore()
	httpClient := clients.NewHTTPClient(&http.Client{}, log)
	return NewClient(issuer, clientUserID, store, httpClient, log), store
}

// tokenServer answers the token endpoint with a fixed grant
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		resp := map[string]interface{}{
			"access_token": "access-" + r.Form.Get("grant_type"),
			"token_type":   "bearer",
			"expires_in":   3600,
		}
		if r.Form.Get("grant_type") == "authorization_code" {
			resp["refresh_token"] = "refresh-1"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustSession(t *testing.T, store *MemoryStore) *Session {
	t.Helper()
	sess, err := store.Get(context.Background(), clientIssuerID, clientUserID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	return sess
}

func TestLoginURL_StartsFlow(t *testing.T) {
	client, store := testClient(t, "https://moodle.net/oauth/token")
	ctx := context.Background()

	loginURL, err := client.LoginURL(ctx, "https://lms.example/callback", "scope-a")
	require.NoError(t, err)

	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "scope-a", q.Get("scope"))
	assert.NotEmpty(t, q.Get("state"))

	// The callback URL carries the issuer id so the redirect can be routed
	redirect, err := url.Parse(q.Get("redirect_uri"))
	require.NoError(t, err)
	assert.Equal(t, "3", redirect.Query().Get("issuerid"))

	sess := mustSession(t, store)
	assert.Equal(t, StateAwaitingCallback, sess.State)
	assert.Equal(t, q.Get("state"), sess.CSRFToken)
}

func TestLoginURL_DisabledIssuer(t *testing.T) {
	client, _ := testClient(t, "https://moodle.net/oauth/token")
	client.issuer.Enabled = false

	_, err := client.LoginURL(context.Background(), "https://lms.example/callback", "s")
	assert.ErrorIs(t, err, ErrIssuerDisabled)
}

func TestFullFlow_CodeExchangedOnCompletion(t *testing.T) {
	srv := tokenServer(t)
	client, store := testClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.LoginURL(ctx, "https://lms.example/callback", "s")
	require.NoError(t, err)
	state := mustSession(t, store).CSRFToken

	require.NoError(t, client.HandleCallback(ctx, state, "auth-code-1", ""))

	// The callback alone does not authenticate
	ok, err := client.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.CompleteFlowIfPending(ctx))

	ok, err = client.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	token, err := client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-authorization_code", token)

	sess := mustSession(t, store)
	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Empty(t, sess.PendingCode)
	assert.Empty(t, sess.CSRFToken)
}

func TestLoginURL_AlreadyAuthenticated(t *testing.T) {
	srv := tokenServer(t)
	client, store := testClient(t, srv.URL)
	ctx := context.Background()

	_, err := client.LoginURL(ctx, "https://lms.example/callback", "s")
	require.NoError(t, err)
	state := mustSession(t, store).CSRFToken
	require.NoError(t, client.HandleCallback(ctx, state, "code", ""))
	require.NoError(t, client.CompleteFlowIfPending(ctx))

	_, err = client.LoginURL(ctx, "https://lms.example/callback", "s")
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)
}

func TestHandleCallback_Denial(t *testing.T) {
	client, store := testClient(t, "https://moodle.net/oauth/token")
	ctx := context.Background()

	_, err := client.LoginURL(ctx, "https://lms.example/callback", "s")
	require.NoError(t, err)

	err = client.HandleCallback(ctx, "", "", "access_denied")
	assert.ErrorIs(t, err, ErrAccessDenied)

	sess := mustSession(t, store)
	assert.Equal(t, StateDenied, sess.State)
	assert.Empty(t, sess.CSRFToken)
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	client, _ := testClient(t, "https://moodle.net/oauth/token")
	ctx := context.Background()

	_, err := client.LoginURL(ctx, "https://lms.example/callback", "s")
	require.NoError(t, err)

	err = client.HandleCallback(ctx, "forged-state", "code", "")
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestHandleCallback_NoPendingFlow(t *testing.T) {
	client, _ := testClient(t, "https://moodle.net/oauth/token")

	err := client.HandleCallback(context.Background(), "state", "code", "")
	assert.ErrorIs(t, err, ErrNoPendingFlow)
}

func TestAccessToken_Unauthenticated(t *testing.T) {
	client, _ := testClient(t, "https://moodle.net/oauth/token")

	_, err := client.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCompleteFlowIfPending_NoopWithoutCode(t *testing.T) {
	client, _ := testClient(t, "https://moodle.net/oauth/token")
	require.NoError(t, client.CompleteFlowIfPending(context.Background()))
}

func TestIsAuthenticated_RefreshesExpiredToken(t *testing.T) {
	srv := tokenServer(t)
	client, store := testClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{
		IssuerID:     clientIssuerID,
		UserID:       clientUserID,
		State:        StateAuthenticated,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	ok, err := client.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	token, err := client.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-refresh_token", token)
}

func TestIsAuthenticated_ExpiredWithoutRefreshToken(t *testing.T) {
	client, store := testClient(t, "https://moodle.net/oauth/token")
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Session{
		IssuerID:    clientIssuerID,
		UserID:      clientUserID,
		State:       StateAuthenticated,
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	ok, err := client.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

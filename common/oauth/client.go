package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HuongNV13/moodle/common/clients"
	"github.com/HuongNV13/moodle/common/logger"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/google/uuid"
)

// Sentinel errors for invalid state transitions
var (
	ErrNotAuthenticated     = errors.New("oauth: not authenticated")
	ErrAlreadyAuthenticated = errors.New("oauth: already authenticated")
	ErrAccessDenied         = errors.New("oauth: access denied")
	ErrIssuerDisabled       = errors.New("oauth: issuer disabled")
	ErrStateMismatch        = errors.New("oauth: state token mismatch")
	ErrNoPendingFlow        = errors.New("oauth: no authorization flow in progress")
)

// Client drives the three-legged delegated-authorization flow for one
// (issuer, user) pair. All state lives in the session store; a Client is a
// cheap per-request value, never shared between requests.
type Client struct {
	issuer *models.Issuer
	userID int64
	store  SessionStore
	http   *clients.HTTPClient
	log    *logger.Logger
}

// NewClient creates a client for one issuer/user pair
func NewClient(issuer *models.Issuer, userID int64, store SessionStore, httpClient *clients.HTTPClient, log *logger.Logger) *Client {
	return &Client{
		issuer: issuer,
		userID: userID,
		store:  store,
		http:   httpClient,
		log:    log,
	}
}

// Issuer returns the issuer this client is bound to
func (c *Client) Issuer() *models.Issuer {
	return c.issuer
}

// session loads the stored session, or a fresh unauthenticated one
func (c *Client) session(ctx context.Context) (*Session, error) {
	sess, err := c.store.Get(ctx, c.issuer.ID, c.userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = &Session{
			IssuerID: c.issuer.ID,
			UserID:   c.userID,
			State:    StateUnauthenticated,
		}
	}
	return sess, nil
}

// LoginURL starts the flow: it issues a CSRF token, records the pending
// session and returns the external authorization URL the user must visit.
// Only valid when no token is already held.
func (c *Client) LoginURL(ctx context.Context, returnURL, scope string) (string, error) {
	if !c.issuer.Enabled {
		return "", ErrIssuerDisabled
	}

	sess, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	if sess.State == StateAuthenticated && !sess.TokenExpired(time.Now()) {
		return "", ErrAlreadyAuthenticated
	}

	csrf := uuid.NewString()

	callback, err := url.Parse(returnURL)
	if err != nil {
		return "", fmt.Errorf("invalid return URL: %w", err)
	}
	cq := callback.Query()
	cq.Set("issuerid", fmt.Sprintf("%d", c.issuer.ID))
	callback.RawQuery = cq.Encode()

	authorize, err := url.Parse(c.issuer.AuthorizationEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	q := authorize.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.issuer.ClientID)
	q.Set("redirect_uri", callback.String())
	q.Set("scope", scope)
	q.Set("state", csrf)
	authorize.RawQuery = q.Encode()

	sess.State = StateAwaitingCallback
	sess.CSRFToken = csrf
	sess.PendingCode = ""
	sess.Scope = scope
	if err := c.store.Put(ctx, sess); err != nil {
		return "", err
	}

	c.log.Debug("issued login url", "issuer_id", c.issuer.ID, "user_id", c.userID, "scope", scope)
	return authorize.String(), nil
}

// HandleCallback records the authorization code (or denial) delivered by the
// external service's redirect. The code is not exchanged here; the callback
// handler calls CompleteFlowIfPending explicitly afterwards.
func (c *Client) HandleCallback(ctx context.Context, state, code, errParam string) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if sess.State != StateAwaitingCallback {
		return ErrNoPendingFlow
	}

	if errParam != "" {
		sess.State = StateDenied
		sess.CSRFToken = ""
		sess.PendingCode = ""
		if err := c.store.Put(ctx, sess); err != nil {
			return err
		}
		c.log.Warn("authorization denied by user", "issuer_id", c.issuer.ID, "user_id", c.userID, "error", errParam)
		return ErrAccessDenied
	}

	if state == "" || state != sess.CSRFToken {
		return ErrStateMismatch
	}

	if !c.issuer.Enabled {
		sess.State = StateDenied
		if err := c.store.Put(ctx, sess); err != nil {
			return err
		}
		return ErrIssuerDisabled
	}

	sess.PendingCode = code
	return c.store.Put(ctx, sess)
}

// CompleteFlowIfPending exchanges a pending authorization code for an access
// token. It is a no-op when no code is pending, so callers can always invoke
// it before querying IsAuthenticated.
func (c *Client) CompleteFlowIfPending(ctx context.Context) error {
	sess, err := c.session(ctx)
	if err != nil {
		return err
	}
	if sess.State != StateAwaitingCallback || sess.PendingCode == "" {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", sess.PendingCode)
	form.Set("client_id", c.issuer.ClientID)
	form.Set("client_secret", c.issuer.ClientSecret)

	token, err := c.tokenRequest(ctx, form)
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}

	sess.State = StateAuthenticated
	sess.CSRFToken = ""
	sess.PendingCode = ""
	sess.AccessToken = token.AccessToken
	sess.RefreshToken = token.RefreshToken
	sess.ExpiresAt = token.expiry()

	if err := c.store.Put(ctx, sess); err != nil {
		return err
	}

	c.log.Info("authorization flow completed", "issuer_id", c.issuer.ID, "user_id", c.userID)
	return nil
}

// IsAuthenticated reports whether a usable access token is held. When the
// token is expired and a refresh token exists, a refresh grant is attempted
// first; the state itself is never advanced here.
func (c *Client) IsAuthenticated(ctx context.Context) (bool, error) {
	sess, err := c.session(ctx)
	if err != nil {
		return false, err
	}
	if sess.State != StateAuthenticated {
		return false, nil
	}

	if sess.TokenExpired(time.Now()) {
		if sess.RefreshToken == "" {
			return false, nil
		}
		if err := c.refresh(ctx, sess); err != nil {
			c.log.Warn("token refresh failed", "issuer_id", c.issuer.ID, "user_id", c.userID, "error", err)
			return false, nil
		}
	}

	return true, nil
}

// AccessToken returns the bearer token. Fails with ErrNotAuthenticated from
// any state other than Authenticated.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	ok, err := c.IsAuthenticated(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotAuthenticated
	}

	sess, err := c.session(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// refresh runs a refresh grant and persists the renewed token
func (c *Client) refresh(ctx context.Context, sess *Session) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", sess.RefreshToken)
	form.Set("client_id", c.issuer.ClientID)
	form.Set("client_secret", c.issuer.ClientSecret)

	token, err := c.tokenRequest(ctx, form)
	if err != nil {
		return err
	}

	sess.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		sess.RefreshToken = token.RefreshToken
	}
	sess.ExpiresAt = token.expiry()

	return c.store.Put(ctx, sess)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t *tokenResponse) expiry() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (c *Client) tokenRequest(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.issuer.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	return &token, nil
}

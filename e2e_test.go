package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/giantswarm/oauth-grants/internal/testutil"
	"github.com/giantswarm/oauth-grants/storage/memory"
)

// newE2EServer serves the handler over HTTP with every request signed in as testutil.UserID
func newE2EServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)
	testutil.SeedClients(t, store, testutil.NewClient(t), testutil.NewTrustedClient(t))
	testutil.SeedUsers(t, store, testutil.NewUser(t))

	key, err := GenerateEncryptionKey()
	if err != nil {
		t.Fatal(err)
	}
	handler, err := NewServer(store, &Config{Security: SecurityConfig{EncryptionKey: key}}, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(handler.Close)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, "")
	ts := httptest.NewServer(asUser(testutil.UserID, mux))
	t.Cleanup(ts.Close)
	return ts
}

func oauth2Config(ts *httptest.Server, clientID string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: testutil.ClientSecret,
		RedirectURL:  testutil.RedirectURI,
		Scopes:       []string{"read", "offline_access"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   ts.URL + PathAuthorize,
			TokenURL:  ts.URL + PathToken,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func noRedirectClient(ts *httptest.Server) *http.Client {
	c := ts.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

func TestE2E_AuthorizationCodeFlow(t *testing.T) {
	ts := newE2EServer(t)
	conf := oauth2Config(ts, testutil.TrustedClientID)
	ctx := context.Background()

	resp, err := noRedirectClient(ts).Get(conf.AuthCodeURL("xyz"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("authorize status = %d", resp.StatusCode)
	}

	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if loc.Query().Get("state") != "xyz" {
		t.Errorf("state = %q", loc.Query().Get("state"))
	}
	code := loc.Query().Get("code")

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" || tok.TokenType != "Bearer" {
		t.Errorf("unexpected token %+v", tok)
	}
	if got := tok.Extra("scope"); got != "read offline_access" {
		t.Errorf("scope = %v", got)
	}
	if time.Until(tok.Expiry) < 59*time.Minute {
		t.Errorf("expiry too close: %v", tok.Expiry)
	}

	_, err = conf.Exchange(ctx, code)
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode != ErrorCodeInvalidGrant {
		t.Errorf("second Exchange() error = %v, want invalid_grant", err)
	}

	// Refresh through the library's token source
	refreshed, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if refreshed.AccessToken == tok.AccessToken {
		t.Error("refresh returned the same access token")
	}
	if refreshed.RefreshToken != tok.RefreshToken {
		t.Errorf("refresh token changed to %q", refreshed.RefreshToken)
	}
}

func TestE2E_ConsentFlow(t *testing.T) {
	ts := newE2EServer(t)
	conf := oauth2Config(ts, testutil.ClientID)
	client := noRedirectClient(ts)

	resp, err := client.Get(conf.AuthCodeURL("s1"))
	if err != nil {
		t.Fatal(err)
	}
	var prompt ConsentResponse
	decodeJSONBody(t, resp, &prompt)

	resp, err = client.PostForm(ts.URL+PathAuthorizeDecision, url.Values{
		"transaction_id": {prompt.TransactionID},
		"decision":       {"allow"},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	loc, _ := url.Parse(resp.Header.Get("Location"))

	tok, err := conf.Exchange(context.Background(), loc.Query().Get("code"))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tok.RefreshToken == "" {
		t.Error("expected a refresh token for offline_access")
	}
}

func TestE2E_PasswordCredentials(t *testing.T) {
	ts := newE2EServer(t)
	conf := oauth2Config(ts, testutil.ClientID)
	ctx := context.Background()

	tok, err := conf.PasswordCredentialsToken(ctx, testutil.Username, testutil.Password)
	if err != nil {
		t.Fatalf("PasswordCredentialsToken() error = %v", err)
	}
	if tok.RefreshToken == "" {
		t.Error("expected a refresh token")
	}

	_, err = conf.PasswordCredentialsToken(ctx, testutil.Username, "wrong")
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.ErrorCode != ErrorCodeInvalidGrant {
		t.Errorf("bad password error = %v, want invalid_grant", err)
	}
}

func TestE2E_ClientCredentials(t *testing.T) {
	ts := newE2EServer(t)
	conf := &clientcredentials.Config{
		ClientID:     testutil.ClientID,
		ClientSecret: testutil.ClientSecret,
		TokenURL:     ts.URL + PathToken,
		Scopes:       []string{"write", "admin"},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := conf.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.RefreshToken != "" {
		t.Error("client credentials must not carry a refresh token")
	}
	if got := tok.Extra("scope"); got != "write" {
		t.Errorf("scope = %v, want write", got)
	}

	// The issued token is accepted by the resource server
	req, _ := http.NewRequest(http.MethodGet, ts.URL+PathTokenInfo, nil)
	tok.SetAuthHeader(req)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	var info TokenInfoResponse
	decodeJSONBody(t, resp, &info)
	if info.ClientID != testutil.ClientID || info.UserID != "" || info.Scope != "write" {
		t.Errorf("unexpected token info %+v", info)
	}
}

func TestE2E_InvalidClient(t *testing.T) {
	ts := newE2EServer(t)
	conf := &clientcredentials.Config{
		ClientID:     testutil.ClientID,
		ClientSecret: "wrong",
		TokenURL:     ts.URL + PathToken,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	_, err := conf.Token(context.Background())
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		t.Fatalf("Token() error = %v, want RetrieveError", err)
	}
	if re.Response.StatusCode != http.StatusUnauthorized || re.ErrorCode != ErrorCodeInvalidClient {
		t.Errorf("status = %d, code = %q", re.Response.StatusCode, re.ErrorCode)
	}
}

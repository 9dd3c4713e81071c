package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/oauth-grants/internal/testutil"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
	"github.com/giantswarm/oauth-grants/storage"
	"github.com/giantswarm/oauth-grants/storage/memory"
	"github.com/giantswarm/oauth-grants/storage/mock"
)

type testSetup struct {
	handler *Handler
	mux     *http.ServeMux
	store   *memory.Store
	clock   *testutil.MockTime
}

func setupTestHandler(t *testing.T, config *Config) *testSetup {
	t.Helper()

	store := memory.New()
	t.Cleanup(store.Stop)
	testutil.SeedClients(t, store, testutil.NewClient(t), testutil.NewTrustedClient(t))
	testutil.SeedUsers(t, store, testutil.NewUser(t))

	handler, err := NewServer(store, config, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(handler.Close)

	clock := testutil.NewMockTime(time.Now())
	handler.Engine().SetClock(clock.Now)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, "/oauth")
	return &testSetup{handler: handler, mux: mux, store: store, clock: clock}
}

// asUser wraps next with a session for userID
func asUser(userID string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), &User{ID: userID})))
	})
}

func authorizeURL(clientID, responseType, scope string) string {
	q := url.Values{
		"client_id":     {clientID},
		"redirect_uri":  {testutil.RedirectURI},
		"response_type": {responseType},
		"scope":         {scope},
		"state":         {"state-123"},
	}
	return "/oauth/authorize?" + q.Encode()
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func decodeToken(t *testing.T, rr *httptest.ResponseRecorder) TokenResponse {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp TokenResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode token body: %v", err)
	}
	return resp
}

func basicAuth(id, secret string) http.Header {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetBasicAuth(url.QueryEscape(id), url.QueryEscape(secret))
	return req.Header
}

// codeFor runs the trusted authorization endpoint and returns the issued code
func codeFor(t *testing.T, ts *testSetup, scope string) string {
	t.Helper()
	rr := httptest.NewRecorder()
	asUser(testutil.UserID, ts.mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, authorizeURL(testutil.TrustedClientID, "code", scope), nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, body = %s", rr.Code, rr.Body.String())
	}
	loc, _ := url.Parse(rr.Header().Get("Location"))
	return loc.Query().Get("code")
}

func TestNewServer(t *testing.T) {
	store := memory.New()
	defer store.Stop()

	if _, err := NewServer(nil, nil, nil); err == nil {
		t.Error("expected error for nil backend")
	}
	if _, err := NewServer(store, &Config{Security: SecurityConfig{EncryptionKey: []byte("short")}}, nil); err == nil {
		t.Error("expected error for short encryption key")
	}

	key, _ := GenerateEncryptionKey()
	h, err := NewServer(store, &Config{Security: SecurityConfig{EncryptionKey: key, EnableAuditLogging: true}}, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	defer h.Close()
	if h.Engine() == nil || h.Coordinator() == nil || h.Engine().Auditor == nil {
		t.Error("NewServer() left collaborators unset")
	}
}

func TestServeAuthorization_RequiresSession(t *testing.T) {
	t.Run("no login url", func(t *testing.T) {
		ts := setupTestHandler(t, nil)
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, authorizeURL(testutil.ClientID, "code", "read"), nil))

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rr.Code)
		}
		if got := decodeError(t, rr).Error; got != ErrorCodeLoginRequired {
			t.Errorf("error = %q, want %q", got, ErrorCodeLoginRequired)
		}
	})

	t.Run("login url", func(t *testing.T) {
		ts := setupTestHandler(t, &Config{LoginURL: "https://login.example/signin"})
		target := authorizeURL(testutil.ClientID, "code", "read")
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))

		if rr.Code != http.StatusFound {
			t.Fatalf("status = %d, want 302", rr.Code)
		}
		loc, _ := url.Parse(rr.Header().Get("Location"))
		if loc.Host != "login.example" || loc.Query().Get("return_to") != target {
			t.Errorf("Location = %q", rr.Header().Get("Location"))
		}
	})
}

func TestServeAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		method     string
		wantStatus int
		wantError  string
	}{
		{name: "trusted redirects", target: authorizeURL(testutil.TrustedClientID, "code", "read"), wantStatus: http.StatusFound},
		{name: "untrusted prompts", target: authorizeURL(testutil.ClientID, "code", "read"), wantStatus: http.StatusOK},
		{name: "missing client", target: "/oauth/authorize?response_type=code", wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidRequest},
		{name: "unknown client", target: authorizeURL("ghost", "code", "read"), wantStatus: http.StatusUnauthorized, wantError: ErrorCodeInvalidClient},
		{name: "unsupported response type", target: authorizeURL(testutil.ClientID, "id_token", "read"), wantStatus: http.StatusBadRequest, wantError: ErrorCodeUnsupportedResponseType},
		{name: "foreign redirect", target: "/oauth/authorize?client_id=" + testutil.ClientID + "&redirect_uri=https://evil.example/", wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidRequest},
		{name: "post not allowed", target: authorizeURL(testutil.ClientID, "code", "read"), method: http.MethodPost, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestHandler(t, nil)
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}

			rr := httptest.NewRecorder()
			asUser(testutil.UserID, ts.mux).ServeHTTP(rr, httptest.NewRequest(method, tt.target, nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantError != "" {
				if got := decodeError(t, rr).Error; got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
			}
		})
	}
}

func TestServeAuthorization_ConsentAndDecision(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		wantCode  bool
		wantError string
	}{
		{name: "allow", form: url.Values{"decision": {"allow"}}, wantCode: true},
		{name: "deny", form: url.Values{"decision": {"deny"}}, wantError: ErrorCodeAccessDenied},
		{name: "cancel wins", form: url.Values{"decision": {"allow"}, "cancel": {"Cancel"}}, wantError: ErrorCodeAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestHandler(t, nil)
			session := asUser(testutil.UserID, ts.mux)

			rr := httptest.NewRecorder()
			session.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, authorizeURL(testutil.ClientID, "code", "read admin"), nil))
			if rr.Code != http.StatusOK {
				t.Fatalf("authorize status = %d, body = %s", rr.Code, rr.Body.String())
			}
			var prompt ConsentResponse
			if err := json.NewDecoder(rr.Body).Decode(&prompt); err != nil {
				t.Fatalf("decode prompt: %v", err)
			}
			if prompt.Scope != "read" || prompt.ClientID != testutil.ClientID || prompt.TransactionID == "" {
				t.Fatalf("unexpected prompt %+v", prompt)
			}

			form := tt.form
			form.Set("transaction_id", prompt.TransactionID)
			rr = testutil.PostForm(session, "/oauth/authorize/decision", form, nil)
			if rr.Code != http.StatusFound {
				t.Fatalf("decision status = %d, body = %s", rr.Code, rr.Body.String())
			}

			loc, _ := url.Parse(rr.Header().Get("Location"))
			if !strings.HasPrefix(loc.String(), testutil.RedirectURI) {
				t.Errorf("Location = %q", loc)
			}
			q := loc.Query()
			if q.Get("state") != "state-123" {
				t.Errorf("state = %q", q.Get("state"))
			}
			if tt.wantCode && q.Get("code") == "" {
				t.Error("expected a code")
			}
			if q.Get("error") != tt.wantError {
				t.Errorf("error = %q, want %q", q.Get("error"), tt.wantError)
			}

			// The transaction is consumed
			rr = testutil.PostForm(session, "/oauth/authorize/decision", form, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("second decision status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestServeAuthorizationDecision_Validation(t *testing.T) {
	ts := setupTestHandler(t, nil)
	session := asUser(testutil.UserID, ts.mux)

	rr := testutil.PostForm(ts.mux, "/oauth/authorize/decision", url.Values{"transaction_id": {"x"}, "decision": {"allow"}}, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no session: status = %d, want 401", rr.Code)
	}

	rr = testutil.PostForm(session, "/oauth/authorize/decision", url.Values{"decision": {"allow"}}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing transaction: status = %d, want 400", rr.Code)
	}

	rr = testutil.PostForm(session, "/oauth/authorize/decision", url.Values{"transaction_id": {"x"}, "decision": {"maybe"}}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad decision: status = %d, want 400", rr.Code)
	}
}

func TestServeAuthorization_ImplicitFragment(t *testing.T) {
	ts := setupTestHandler(t, nil)
	testutil.SeedClients(t, ts.store, &storage.Client{ClientID: "trustedClient", Trusted: true})

	target := "/oauth/authorize?" + url.Values{
		"client_id":     {"trustedClient"},
		"redirect_uri":  {testutil.RedirectURI},
		"response_type": {"token"},
		"scope":         {"profile"},
	}.Encode()

	rr := httptest.NewRecorder()
	asUser(testutil.UserID, ts.mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	loc, _ := url.Parse(rr.Header().Get("Location"))
	frag, _ := url.ParseQuery(loc.Fragment)
	if frag.Get("access_token") == "" || frag.Get("expires_in") != "3600" || frag.Get("token_type") != "Bearer" {
		t.Errorf("unexpected fragment %q", loc.Fragment)
	}
	if frag.Has("refresh_token") {
		t.Error("implicit response carries a refresh token")
	}
}

func TestServeToken_Grants(t *testing.T) {
	tests := []struct {
		name        string
		form        func(t *testing.T, ts *testSetup) url.Values
		header      http.Header
		wantRefresh bool
		wantScope   string
	}{
		{
			name: "authorization code",
			form: func(t *testing.T, ts *testSetup) url.Values {
				return url.Values{
					"grant_type":    {"authorization_code"},
					"code":          {codeFor(t, ts, "read offline_access")},
					"redirect_uri":  {testutil.RedirectURI},
					"client_id":     {testutil.TrustedClientID},
					"client_secret": {testutil.ClientSecret},
				}
			},
			wantRefresh: true,
			wantScope:   "read offline_access",
		},
		{
			name: "default grant type is authorization code",
			form: func(t *testing.T, ts *testSetup) url.Values {
				return url.Values{
					"code":         {codeFor(t, ts, "read")},
					"redirect_uri": {testutil.RedirectURI},
				}
			},
			header:    basicAuth(testutil.TrustedClientID, testutil.ClientSecret),
			wantScope: "read",
		},
		{
			name: "password with offline access",
			form: func(*testing.T, *testSetup) url.Values {
				return url.Values{
					"grant_type": {"password"},
					"username":   {testutil.Username},
					"password":   {testutil.Password},
					"scope":      {"offline_access"},
				}
			},
			header:      basicAuth(testutil.ClientID, testutil.ClientSecret),
			wantRefresh: true,
			wantScope:   "offline_access",
		},
		{
			name: "password without scope",
			form: func(*testing.T, *testSetup) url.Values {
				return url.Values{
					"grant_type": {"password"},
					"username":   {testutil.Username},
					"password":   {testutil.Password},
				}
			},
			header: basicAuth(testutil.ClientID, testutil.ClientSecret),
		},
		{
			name: "client credentials",
			form: func(*testing.T, *testSetup) url.Values {
				return url.Values{
					"grant_type": {"client_credentials"},
					"scope":      {"read write offline_access"},
				}
			},
			header:    basicAuth(testutil.ClientID, testutil.ClientSecret),
			wantScope: "read write offline_access",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestHandler(t, nil)
			rr := testutil.PostForm(ts.mux, "/oauth/token", tt.form(t, ts), tt.header)

			resp := decodeToken(t, rr)
			if resp.AccessToken == "" || resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 {
				t.Errorf("unexpected token response %+v", resp)
			}
			if (resp.RefreshToken != "") != tt.wantRefresh {
				t.Errorf("refresh token present = %v, want %v", resp.RefreshToken != "", tt.wantRefresh)
			}
			if resp.Scope != tt.wantScope {
				t.Errorf("scope = %q, want %q", resp.Scope, tt.wantScope)
			}
			if rr.Header().Get("Cache-Control") != "no-store" {
				t.Error("token response must not be cacheable")
			}
		})
	}
}

func TestServeToken_ClientCredentialsNeverRefresh(t *testing.T) {
	ts := setupTestHandler(t, nil)
	rr := testutil.PostForm(ts.mux, "/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"offline_access"},
	}, basicAuth(testutil.ClientID, testutil.ClientSecret))

	if resp := decodeToken(t, rr); resp.RefreshToken != "" {
		t.Error("client credentials response carries a refresh token")
	}
}

func TestServeToken_RefreshGrant(t *testing.T) {
	ts := setupTestHandler(t, nil)
	auth := basicAuth(testutil.ClientID, testutil.ClientSecret)

	first := decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", url.Values{
		"grant_type": {"password"},
		"username":   {testutil.Username},
		"password":   {testutil.Password},
		"scope":      {"read offline_access"},
	}, auth))

	for i := 0; i < 2; i++ {
		resp := decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {first.RefreshToken},
		}, auth))
		if resp.AccessToken == first.AccessToken || resp.RefreshToken != "" {
			t.Errorf("refresh %d: unexpected response %+v", i, resp)
		}
		if resp.Scope != "read offline_access" {
			t.Errorf("refresh %d: scope = %q", i, resp.Scope)
		}
	}

	if _, err := ts.store.GetRefreshToken(context.Background(), first.RefreshToken); err != nil {
		t.Errorf("refresh token should remain retrievable: %v", err)
	}
}

func TestServeToken_Errors(t *testing.T) {
	auth := basicAuth(testutil.ClientID, testutil.ClientSecret)

	tests := []struct {
		name       string
		method     string
		form       url.Values
		header     http.Header
		wantStatus int
		wantError  string
	}{
		{name: "get not allowed", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
		{name: "unsupported grant", form: url.Values{"grant_type": {"implicit"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeUnsupportedGrantType},
		{name: "no client", form: url.Values{"grant_type": {"client_credentials"}}, wantStatus: http.StatusUnauthorized, wantError: ErrorCodeInvalidClient},
		{name: "wrong secret", form: url.Values{"grant_type": {"client_credentials"}}, header: basicAuth(testutil.ClientID, "nope"), wantStatus: http.StatusUnauthorized, wantError: ErrorCodeInvalidClient},
		{name: "unknown client", form: url.Values{"grant_type": {"client_credentials"}, "client_id": {"ghost"}, "client_secret": {"x"}}, wantStatus: http.StatusUnauthorized, wantError: ErrorCodeInvalidClient},
		{name: "missing code", form: url.Values{"grant_type": {"authorization_code"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidRequest},
		{name: "unknown code", form: url.Values{"grant_type": {"authorization_code"}, "code": {"nope"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidGrant},
		{name: "bad password", form: url.Values{"grant_type": {"password"}, "username": {testutil.Username}, "password": {"x"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidGrant},
		{name: "missing username", form: url.Values{"grant_type": {"password"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidRequest},
		{name: "unknown refresh token", form: url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"nope"}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidGrant},
		{name: "malformed scope", form: url.Values{"grant_type": {"client_credentials"}, "scope": {`a"b`}}, header: auth, wantStatus: http.StatusBadRequest, wantError: ErrorCodeInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestHandler(t, nil)

			var rr *httptest.ResponseRecorder
			if tt.method == http.MethodGet {
				rr = httptest.NewRecorder()
				ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/token", nil))
			} else {
				rr = testutil.PostForm(ts.mux, "/oauth/token", tt.form, tt.header)
			}

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantError == "" {
				return
			}
			if got := decodeError(t, rr).Error; got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if tt.wantStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 response without WWW-Authenticate")
			}
		})
	}
}

func TestServeToken_ReplayLooksLikeUnknownCode(t *testing.T) {
	ts := setupTestHandler(t, nil)
	auth := basicAuth(testutil.TrustedClientID, testutil.ClientSecret)
	code := codeFor(t, ts, "read")

	form := url.Values{"grant_type": {"authorization_code"}, "code": {code}, "redirect_uri": {testutil.RedirectURI}}
	decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", form, auth))

	replay := testutil.PostForm(ts.mux, "/oauth/token", form, auth)
	form.Set("code", "never-issued")
	unknown := testutil.PostForm(ts.mux, "/oauth/token", form, auth)

	if replay.Code != unknown.Code || replay.Body.String() != unknown.Body.String() {
		t.Errorf("replay %d %q differs from unknown %d %q",
			replay.Code, replay.Body.String(), unknown.Code, unknown.Body.String())
	}
}

func TestServeToken_MissingRedirectURIUsesPrefix(t *testing.T) {
	ts := setupTestHandler(t, nil)
	auth := basicAuth(testutil.TrustedClientID, testutil.ClientSecret)

	rr := httptest.NewRecorder()
	target := "/oauth/authorize?client_id=" + testutil.TrustedClientID
	asUser(testutil.UserID, ts.mux).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	loc, _ := url.Parse(rr.Header().Get("Location"))

	decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", url.Values{"code": {loc.Query().Get("code")}}, auth))
}

func TestServeToken_RateLimit(t *testing.T) {
	ts := setupTestHandler(t, &Config{RateLimit: RateLimitConfig{Rate: 0.01, Burst: 1}})
	form := url.Values{"grant_type": {"client_credentials"}}
	auth := basicAuth(testutil.ClientID, testutil.ClientSecret)

	decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", form, auth))

	rr := testutil.PostForm(ts.mux, "/oauth/token", form, auth)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if got := decodeError(t, rr).Error; got != ErrorCodeRateLimitExceeded {
		t.Errorf("error = %q", got)
	}
}

func TestServeToken_StoreFailure(t *testing.T) {
	store := memory.New()
	defer store.Stop()
	testutil.SeedClients(t, store, testutil.NewClient(t))

	artifacts := mock.NewMockArtifactStore(store)
	artifacts.SaveAccessTokenFunc = func(context.Context, *storage.AccessToken) error {
		return errors.New("connection refused")
	}

	srv, err := server.New(store, artifacts, security.NewPasswordVerifier(store), nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	coord, err := server.NewCoordinator(srv, store)
	if err != nil {
		t.Fatalf("NewCoordinator() error = %v", err)
	}
	h := NewHandler(srv, coord, nil, testutil.DiscardLogger())

	rr := testutil.PostForm(http.HandlerFunc(h.ServeToken), "/token", url.Values{"grant_type": {"client_credentials"}},
		basicAuth(testutil.ClientID, testutil.ClientSecret))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error != ErrorCodeServerError || strings.Contains(resp.ErrorDescription, "connection") {
		t.Errorf("unexpected error body %+v", resp)
	}
}

func TestServeTokenInfo(t *testing.T) {
	ts := setupTestHandler(t, nil)
	token := decodeToken(t, testutil.PostForm(ts.mux, "/oauth/token", url.Values{
		"grant_type": {"password"},
		"username":   {testutil.Username},
		"password":   {testutil.Password},
		"scope":      {"read"},
	}, basicAuth(testutil.ClientID, testutil.ClientSecret)))

	t.Run("query parameter", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/tokeninfo?access_token="+token.AccessToken, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		var info TokenInfoResponse
		if err := json.NewDecoder(rr.Body).Decode(&info); err != nil {
			t.Fatal(err)
		}
		if info.UserID != testutil.UserID || info.ClientID != testutil.ClientID || info.Scope != "read" || info.ExpiresIn != 3600 {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/oauth/tokeninfo", nil)
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/tokeninfo?access_token=nope", nil))
		if rr.Code != http.StatusBadRequest || decodeError(t, rr).Error != ErrorCodeInvalidToken {
			t.Errorf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("expired", func(t *testing.T) {
		ts.clock.Advance(2 * time.Hour)
		rr := httptest.NewRecorder()
		ts.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/oauth/tokeninfo?access_token="+token.AccessToken, nil))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rr.Code)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	ts := setupTestHandler(t, nil)
	rr := testutil.PostForm(ts.mux, "/oauth/token", url.Values{"grant_type": {"client_credentials"}}, nil)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

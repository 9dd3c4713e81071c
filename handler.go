package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/scope"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
	"github.com/giantswarm/oauth-grants/storage"
)

// Endpoint paths relative to the prefix given to RegisterRoutes
const (
	PathAuthorize         = "/authorize"
	PathAuthorizeDecision = "/authorize/decision"
	PathToken             = "/token"
	PathTokenLegacy       = "/token/legacy"
	PathTokenInfo         = "/tokeninfo"
)

// retryAfterSeconds is sent with 429 responses
const retryAfterSeconds = "60"

// Handler is a thin HTTP adapter for the grant engine and the authorization
// coordinator. It parses requests, authenticates clients and renders results;
// every grant decision is made by the engine.
type Handler struct {
	server      *server.Server
	coord       *server.Coordinator
	config      *Config
	logger      *slog.Logger
	tracer      trace.Tracer
	rateLimiter *security.RateLimiter
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, coord *server.Coordinator, config *Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()

	h := &Handler{
		server: srv,
		coord:  coord,
		config: &cfg,
		logger: logger,
		tracer: noop.NewTracerProvider().Tracer("http"),
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}
	if cfg.RateLimit.Rate > 0 {
		h.rateLimiter = security.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, cfg.RateLimit.MaxEntries, logger)
	}

	return h
}

// Close releases background resources held by the handler
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// RegisterRoutes mounts every endpoint on mux under prefix
func (h *Handler) RegisterRoutes(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")
	mux.HandleFunc(prefix+PathAuthorize, h.ServeAuthorization)
	mux.HandleFunc(prefix+PathAuthorizeDecision, h.ServeAuthorizationDecision)
	mux.HandleFunc(prefix+PathToken, h.ServeToken)
	mux.Handle(prefix+PathTokenLegacy, LegacyFormResponse(http.HandlerFunc(h.ServeToken)))
	mux.HandleFunc(prefix+PathTokenInfo, h.ServeTokenInfo)
}

// ServeAuthorization handles the authorization endpoint. The request must
// carry a session user; trusted clients are redirected immediately, others
// get a consent prompt.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	sw, r, done := h.observe(w, r, "authorization")
	defer done()

	if r.Method != http.MethodGet {
		h.writeMethodNotAllowed(sw, http.MethodGet)
		return
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		h.requireLogin(sw, r)
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		h.writeOAuthError(sw, r, ErrInvalidRequest("client_id is required"))
		return
	}

	out, err := h.coord.Authorize(r.Context(), server.AuthorizationRequest{
		ClientID:     clientID,
		RedirectURI:  q.Get("redirect_uri"),
		Scope:        scope.Parse(q.Get("scope")),
		State:        q.Get("state"),
		ResponseType: server.ResponseType(q.Get("response_type")),
		UserID:       user.ID,
	})
	if err != nil {
		h.writeGrantError(sw, r, "authorization", clientID, err)
		return
	}

	if out.Prompt != nil {
		if err := h.config.Renderer.RenderConsent(sw, r, out.Prompt); err != nil {
			h.logger.Error("Failed to render consent prompt", "client_id", clientID, "error", err)
		}
		return
	}

	h.logger.Info("Authorization approved for trusted client", "client_id", clientID)
	http.Redirect(sw, r, out.RedirectURL, http.StatusFound)
}

// ServeAuthorizationDecision applies the session user's answer to a consent prompt
func (h *Handler) ServeAuthorizationDecision(w http.ResponseWriter, r *http.Request) {
	sw, r, done := h.observe(w, r, "authorization_decision")
	defer done()

	if r.Method != http.MethodPost {
		h.writeMethodNotAllowed(sw, http.MethodPost)
		return
	}

	user, ok := UserFromContext(r.Context())
	if !ok {
		h.writeOAuthError(sw, r, ErrLoginRequired("Authentication required"))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(sw, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	transactionID := r.PostForm.Get("transaction_id")
	if transactionID == "" {
		h.writeOAuthError(sw, r, ErrInvalidRequest("Required parameter 'transaction_id' missing"))
		return
	}
	decision, ok := parseDecision(r.PostForm)
	if !ok {
		h.writeOAuthError(sw, r, ErrInvalidRequest("decision must be allow or deny"))
		return
	}

	out, err := h.coord.Decide(r.Context(), transactionID, user.ID, decision)
	if err != nil {
		h.writeGrantError(sw, r, "authorization_decision", "", err)
		return
	}

	http.Redirect(sw, r, out.RedirectURL, http.StatusFound)
}

// parseDecision reads the decision form. A cancel field means deny.
func parseDecision(form url.Values) (server.Decision, bool) {
	if form.Has("cancel") {
		return server.DecisionDeny, true
	}
	switch d := server.Decision(form.Get("decision")); d {
	case server.DecisionAllow, server.DecisionDeny:
		return d, true
	default:
		return "", false
	}
}

// ServeToken handles the token endpoint for every grant type
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	sw, r, done := h.observe(w, r, "token")
	defer done()

	if r.Method != http.MethodPost {
		h.writeMethodNotAllowed(sw, http.MethodPost)
		return
	}

	clientIP := security.GetClientIP(r, h.config.RateLimit.TrustProxy, h.config.RateLimit.TrustedProxyCount)
	if h.checkRateLimit(sw, r, clientIP) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeOAuthError(sw, r, ErrInvalidRequest("Failed to parse request"))
		return
	}

	grantType, err := server.ParseGrantType(r.PostForm.Get("grant_type"))
	if err != nil {
		h.writeGrantError(sw, r, "token", "", err)
		return
	}

	client, err := h.authenticateClient(r, clientIP)
	if err != nil {
		h.writeGrantError(sw, r, "token", "", err)
		return
	}

	grant, err := h.dispatchGrant(r.Context(), grantType, client, r.PostForm)
	if err != nil {
		h.writeGrantError(sw, r, "token", client.ClientID, err)
		return
	}

	h.logger.Info("Token issued",
		"grant_type", grantType,
		"client_id", client.ClientID,
		"ip", clientIP,
		"refresh_token", grant.RefreshToken != nil)
	h.writeTokenResponse(sw, r, grant)
}

// dispatchGrant runs the grant named by grantType with the request's parameters
func (h *Handler) dispatchGrant(ctx context.Context, grantType server.GrantType, client *storage.Client, form url.Values) (*server.Grant, error) {
	requested := scope.Parse(form.Get("scope"))

	switch grantType {
	case server.GrantAuthorizationCode:
		code := form.Get("code")
		if code == "" {
			return nil, ErrInvalidRequest("Required parameter 'code' missing")
		}
		redirectURI := form.Get("redirect_uri")
		if redirectURI == "" {
			redirectURI = client.RedirectURIPrefix
		}
		return h.server.ExchangeAuthorizationCode(ctx, client, code, redirectURI)

	case server.GrantPassword:
		username := form.Get("username")
		if username == "" {
			return nil, ErrInvalidRequest("Required parameter 'username' missing")
		}
		return h.server.PasswordGrant(ctx, client, username, form.Get("password"), requested)

	case server.GrantClientCredentials:
		return h.server.ClientCredentialsGrant(ctx, client, requested)

	case server.GrantRefreshToken:
		refreshToken := form.Get("refresh_token")
		if refreshToken == "" {
			return nil, ErrInvalidRequest("Required parameter 'refresh_token' missing")
		}
		return h.server.RefreshTokenGrant(ctx, client, refreshToken, requested)

	case server.GrantImplicit:
		return nil, server.ErrUnsupportedGrantType

	default:
		return nil, server.ErrUnsupportedGrantType
	}
}

// ServeTokenInfo describes a live access token passed as the access_token
// query parameter or a Bearer Authorization header.
func (h *Handler) ServeTokenInfo(w http.ResponseWriter, r *http.Request) {
	sw, r, done := h.observe(w, r, "tokeninfo")
	defer done()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		h.writeMethodNotAllowed(sw, http.MethodGet+", "+http.MethodPost)
		return
	}

	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = bearerToken(r)
	}

	at, err := h.server.TokenInfo(r.Context(), token)
	if err != nil {
		h.writeGrantError(sw, r, "tokeninfo", "", err)
		return
	}

	h.writeJSON(sw, r, http.StatusOK, TokenInfoResponse{
		UserID:    at.UserID,
		ClientID:  at.ClientID,
		Scope:     scope.Format(at.Scope),
		ExpiresIn: at.ExpiresIn(h.server.Now()),
	})
}

// bearerToken extracts the token from a Bearer Authorization header
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// authenticateClient validates client credentials from either Basic Auth or
// form parameters. Basic credentials are form-encoded (RFC 6749 Section 2.3.1).
func (h *Handler) authenticateClient(r *http.Request, clientIP string) (*storage.Client, error) {
	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		var err error
		if clientID, err = url.QueryUnescape(clientID); err != nil {
			return nil, ErrInvalidClient("Malformed client credentials")
		}
		if clientSecret, err = url.QueryUnescape(clientSecret); err != nil {
			return nil, ErrInvalidClient("Malformed client credentials")
		}
	} else {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}

	if clientID == "" {
		h.logAuthFailure("", clientIP, "missing_client_id", "Client authentication missing")
		return nil, ErrInvalidClient("Client authentication required")
	}

	client, err := h.server.AuthenticateClient(r.Context(), clientID, clientSecret)
	if err != nil {
		if server.IsDenied(err) {
			h.logAuthFailure(clientID, clientIP, server.DenialReason(err), "Client authentication failed")
		}
		return nil, err
	}
	return client, nil
}

// logAuthFailure logs authentication failures with optional auditing.
func (h *Handler) logAuthFailure(clientID, clientIP, reason, message string) {
	h.logger.Warn(message, "client_id", clientID, "ip", clientIP, "reason", reason)
	h.server.Auditor.LogAuthFailure("", clientID, clientIP, reason)
}

// requireLogin sends an unauthenticated user to the login page, or answers 401
func (h *Handler) requireLogin(w http.ResponseWriter, r *http.Request) {
	if h.config.LoginURL == "" {
		h.writeOAuthError(w, r, ErrLoginRequired("Authentication required"))
		return
	}

	target, err := util.AppendQuery(h.config.LoginURL, url.Values{"return_to": {r.URL.RequestURI()}})
	if err != nil {
		h.logger.Error("Invalid login URL", "error", err)
		h.writeOAuthError(w, r, ErrServerError("The server encountered an internal error"))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// checkRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.rateLimiter == nil || h.rateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "endpoint", r.URL.Path)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), "ip")
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)

	w.Header().Set("Retry-After", retryAfterSeconds)
	h.writeOAuthError(w, r, ErrRateLimitExceeded("Rate limit exceeded. Please try again later."))
	return true
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, r *http.Request, grant *server.Grant) {
	token := grant.OAuth2Token()
	h.writeJSON(w, r, http.StatusOK, TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    grant.ExpiresIn,
		RefreshToken: token.RefreshToken,
		Scope:        scope.Format(grant.Scope),
	})
}

// writeGrantError renders an engine or handler error. Store failures are
// logged in full and rendered without detail.
func (h *Handler) writeGrantError(w http.ResponseWriter, r *http.Request, endpoint, clientID string, err error) {
	var oe *OAuthError
	if !errors.As(err, &oe) {
		oe = oauthErrorFromGrant(err)
	}

	switch {
	case server.IsStoreFailure(err):
		h.logger.Error("Storage failure", "endpoint", endpoint, "client_id", clientID, "error", err)
	case server.IsDenied(err):
		h.logger.Warn("Request denied", "endpoint", endpoint, "client_id", clientID, "reason", server.DenialReason(err))
	case oe.Status >= http.StatusInternalServerError:
		h.logger.Error("Request failed", "endpoint", endpoint, "client_id", clientID, "error", err)
	}

	h.writeOAuthError(w, r, oe)
}

func (h *Handler) writeOAuthError(w http.ResponseWriter, r *http.Request, oe *OAuthError) {
	if oe.Status == http.StatusUnauthorized && oe.Code == ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	h.writeJSON(w, r, oe.Status, ErrorResponse{
		Error:            oe.Code,
		ErrorDescription: oe.Description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	security.SetSecurityHeaders(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

func (h *Handler) writeMethodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// statusWriter remembers the status code written through it
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// observe starts the request span and returns a writer that records the
// response status. The returned func ends the span and records HTTP metrics.
func (h *Handler) observe(w http.ResponseWriter, r *http.Request, endpoint string) (*statusWriter, *http.Request, func()) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http."+endpoint)
	r = r.WithContext(ctx)
	sw := &statusWriter{ResponseWriter: w}

	return sw, r, func() {
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		instrumentation.AddHTTPAttributes(span, r.Method, endpoint, status)
		if h.server.Instrumentation != nil && h.server.Instrumentation.ShouldLogClientIPs() {
			instrumentation.AddSecurityAttributes(span,
				security.GetClientIP(r, h.config.RateLimit.TrustProxy, h.config.RateLimit.TrustedProxyCount))
		}
		if status < http.StatusBadRequest {
			instrumentation.SetSpanSuccess(span)
		} else {
			instrumentation.SetSpanError(span, http.StatusText(status))
		}
		span.End()
		h.recordHTTPMetrics(endpoint, r.Method, status, startTime)
	}
}

func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	metrics := h.server.Instrumentation.Metrics()
	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	metrics.RecordHTTPRequest(context.Background(), method, endpoint, status, duration)
}

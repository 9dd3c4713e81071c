package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/internal/util"
	"github.com/giantswarm/oauth-grants/scope"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// Coordinator drives an authorization request from initiation, through the
// user's decision, to the code or implicit grant that answers it.
type Coordinator struct {
	engine       *Server
	transactions storage.TransactionStore
	encryptor    *security.Encryptor
	newID        func() string
	logger       *slog.Logger
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithEncryptor seals transaction payloads at rest.
func WithEncryptor(enc *security.Encryptor) CoordinatorOption {
	return func(c *Coordinator) { c.encryptor = enc }
}

// WithTransactionIDGenerator replaces the transaction ID source.
func WithTransactionIDGenerator(fn func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newID = fn }
}

// NewCoordinator creates a coordinator dispatching to engine.
func NewCoordinator(engine *Server, transactions storage.TransactionStore, opts ...CoordinatorOption) (*Coordinator, error) {
	if engine == nil {
		return nil, fmt.Errorf("grant engine is required")
	}
	if transactions == nil {
		return nil, fmt.Errorf("transaction store is required")
	}

	c := &Coordinator{
		engine:       engine,
		transactions: transactions,
		newID:        uuid.NewString,
		logger:       engine.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authorize validates an authorization request. A trusted client is approved
// immediately and the outcome carries the redirect back to the client. For
// any other client a transaction is staged and the outcome carries the
// consent prompt.
func (c *Coordinator) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationOutcome, error) {
	ctx, span := c.engine.tracer.Start(ctx, "server.authorize")
	defer span.End()

	s := c.engine
	responseType, err := ParseResponseType(string(req.ResponseType))
	if err != nil {
		return nil, s.deny(ctx, span, "", err)
	}
	span.SetAttributes(attribute.String(instrumentation.AttrResponseType, string(responseType)))
	grantType := responseType.GrantType()

	client, err := s.GetClient(ctx, req.ClientID)
	if err != nil {
		if IsDenied(err) {
			return nil, s.deny(ctx, span, grantType, err)
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	redirectURI, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		s.Auditor.LogInvalidRedirect(client.ClientID, req.RedirectURI)
		return nil, s.deny(ctx, span, grantType, err)
	}

	if req.UserID == "" {
		return nil, s.deny(ctx, span, grantType, ErrAccessDenied)
	}
	if err := validateScopeTokens(req.Scope); err != nil {
		return nil, s.deny(ctx, span, grantType, err)
	}

	granted := scope.RestrictToAllowed(client.ScopeAllowance(), req.Scope)
	instrumentation.AddGrantAttributes(span, string(grantType), client.ClientID, req.UserID, scope.Format(granted))
	span.SetAttributes(attribute.Bool(instrumentation.AttrTrustedClient, client.Trusted))
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordAuthorizationStarted(ctx, client.ClientID, client.Trusted)
	}

	now := s.now()
	txn := &Transaction{
		ID:           c.newID(),
		Client:       client,
		RedirectURI:  redirectURI,
		Scope:        granted,
		State:        req.State,
		ResponseType: responseType,
		UserID:       req.UserID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.Config.transactionTTL()),
	}

	if client.Trusted {
		redirect, err := c.dispatch(ctx, txn)
		if err != nil {
			instrumentation.RecordError(span, err)
			return nil, err
		}
		instrumentation.SetSpanSuccess(span)
		return &AuthorizationOutcome{RedirectURL: redirect}, nil
	}

	rec, err := c.EncodeTransaction(txn)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}
	if err := c.transactions.SaveTransaction(ctx, rec); err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeFailure("save_transaction", err)
	}

	instrumentation.SetSpanSuccess(span)
	return &AuthorizationOutcome{
		Prompt: &ConsentPrompt{
			TransactionID: txn.ID,
			Client:        client,
			UserID:        txn.UserID,
			Scope:         storage.CloneScope(granted),
		},
	}, nil
}

// Decide applies the user's decision to a staged transaction. The
// transaction is consumed by the first decision; later decisions are denied.
func (c *Coordinator) Decide(ctx context.Context, transactionID, userID string, decision Decision) (*AuthorizationOutcome, error) {
	ctx, span := c.engine.tracer.Start(ctx, "server.decide")
	defer span.End()
	span.SetAttributes(attribute.String(instrumentation.AttrDecision, string(decision)))

	s := c.engine
	rec, err := c.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, storage.ErrTransactionNotFound) {
			return nil, s.deny(ctx, span, "", ErrUnknownTransaction)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("get_transaction", err)
	}

	txn, err := c.DecodeTransaction(ctx, rec)
	if err != nil {
		if IsDenied(err) {
			return nil, s.deny(ctx, span, "", err)
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}
	grantType := txn.ResponseType.GrantType()

	if txn.UserID != userID {
		s.Auditor.LogAuthFailure(userID, txn.Client.ClientID, "", "transaction_user_mismatch")
		return nil, s.deny(ctx, span, grantType, ErrUnknownTransaction)
	}

	deleted, err := c.transactions.DeleteTransaction(ctx, transactionID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, storeFailure("delete_transaction", err)
	}
	if deleted == 0 {
		return nil, s.deny(ctx, span, grantType, ErrUnknownTransaction)
	}

	if security.IsExpired(s.now(), txn.ExpiresAt, s.Config.clockSkewGracePeriod()) {
		return nil, s.deny(ctx, span, grantType, ErrUnknownTransaction)
	}

	if decision != DecisionAllow {
		decision = DecisionDeny
	}
	s.Auditor.LogConsentDecision(userID, txn.Client.ClientID, string(decision), scope.Format(txn.Scope))
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordConsentDecision(ctx, txn.Client.ClientID, string(decision))
	}

	var redirect string
	switch decision {
	case DecisionAllow:
		redirect, err = c.dispatch(ctx, txn)
	case DecisionDeny:
		redirect, err = c.denyRedirect(txn)
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return &AuthorizationOutcome{RedirectURL: redirect}, nil
}

// dispatch runs the grant matching the transaction's response type and
// builds the redirect that delivers its result.
func (c *Coordinator) dispatch(ctx context.Context, txn *Transaction) (string, error) {
	s := c.engine

	switch txn.ResponseType {
	case ResponseTypeCode:
		grant, err := s.IssueAuthorizationCode(ctx, txn.Client, txn.RedirectURI, txn.UserID, txn.Scope)
		if err != nil {
			return "", err
		}
		params := url.Values{"code": {grant.Code.Code}}
		if txn.State != "" {
			params.Set("state", txn.State)
		}
		return util.AppendQuery(txn.RedirectURI, params)

	case ResponseTypeToken:
		grant, err := s.IssueImplicitToken(ctx, txn.Client, txn.UserID, txn.Scope)
		if err != nil {
			return "", err
		}
		params := url.Values{
			"access_token": {grant.AccessToken.Token},
			"token_type":   {TokenTypeBearer},
			"expires_in":   {strconv.FormatInt(grant.ExpiresIn, 10)},
		}
		if len(grant.Scope) > 0 {
			params.Set("scope", scope.Format(grant.Scope))
		}
		if txn.State != "" {
			params.Set("state", txn.State)
		}
		return util.AppendFragment(txn.RedirectURI, params)

	default:
		return "", ErrUnsupportedResponseType
	}
}

// denyRedirect reports access_denied to the client in the same place a
// successful response would have gone.
func (c *Coordinator) denyRedirect(txn *Transaction) (string, error) {
	params := url.Values{
		"error":             {ErrorCodeAccessDenied},
		"error_description": {ErrAccessDenied.Description},
	}
	if txn.State != "" {
		params.Set("state", txn.State)
	}

	switch txn.ResponseType {
	case ResponseTypeToken:
		return util.AppendFragment(txn.RedirectURI, params)
	case ResponseTypeCode:
		return util.AppendQuery(txn.RedirectURI, params)
	default:
		return util.AppendQuery(txn.RedirectURI, params)
	}
}

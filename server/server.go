package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/giantswarm/oauth-grants/instrumentation"
	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// codeIDLogLength is the number of characters of a code included in logs
const codeIDLogLength = 6

// Server is the grant engine. It mints and exchanges authorization codes,
// access tokens and refresh tokens for registered clients.
//
// Server holds no mutable state of its own; the artifact store is the only
// shared state, so a Server may be used from many goroutines.
type Server struct {
	clients   storage.ClientRegistry
	artifacts storage.ArtifactStore
	verifier  CredentialVerifier
	minter    security.Minter
	now       func() time.Time

	Auditor         *security.Auditor
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	Logger          *slog.Logger
	Config          *Config
}

// New creates a grant engine. verifier may be nil, in which case every
// password grant is denied.
func New(
	clients storage.ClientRegistry,
	artifacts storage.ArtifactStore,
	verifier CredentialVerifier,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clients == nil {
		return nil, fmt.Errorf("client registry is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	return &Server{
		clients:   clients,
		artifacts: artifacts,
		verifier:  verifier,
		minter:    security.RandomMinter{},
		now:       time.Now,
		tracer:    noop.NewTracerProvider().Tracer("server"),
		Logger:    logger,
		Config:    config,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation for the engine
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// SetMinter replaces the token source. Intended for tests.
func (s *Server) SetMinter(m security.Minter) {
	s.minter = m
}

// SetClock replaces the time source. Intended for tests.
func (s *Server) SetClock(now func() time.Time) {
	s.now = now
}

// Now returns the engine's current time.
func (s *Server) Now() time.Time {
	return s.now()
}

// Clients returns the client registry the engine resolves clients from.
func (s *Server) Clients() storage.ClientRegistry {
	return s.clients
}

// GetClient resolves a registered client. An unknown client is a denial.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrUnknownClient
		}
		return nil, storeFailure("get_client", err)
	}
	return client, nil
}

// AuthenticateClient resolves a client and checks its secret.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret string) (*storage.Client, error) {
	ctx, span := s.tracer.Start(ctx, "server.authenticate_client")
	defer span.End()

	if clientID == "" {
		s.Auditor.LogAuthFailure("", "", "", "missing_client_id")
		return nil, s.deny(ctx, span, "", ErrUnknownClient)
	}

	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		if IsDenied(err) {
			// Compare against a dummy hash so unknown clients take as long as known ones
			_ = security.CompareSecret("", clientSecret)
			s.Auditor.LogAuthFailure("", clientID, "", "unknown_client")
			return nil, s.deny(ctx, span, "", err)
		}
		instrumentation.RecordError(span, err)
		return nil, err
	}

	if err := s.clients.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		if errors.Is(err, storage.ErrInvalidClientCredentials) {
			s.Auditor.LogAuthFailure("", clientID, "", "invalid_client_secret")
			return nil, s.deny(ctx, span, "", ErrInvalidClientCredentials)
		}
		instrumentation.RecordError(span, err)
		return nil, storeFailure("validate_client_secret", err)
	}

	instrumentation.SetSpanSuccess(span)
	return client, nil
}

// deny records a denial on the span and in metrics and returns err unchanged.
func (s *Server) deny(ctx context.Context, span trace.Span, grantType GrantType, err error) error {
	reason := DenialReason(err)
	span.SetAttributes(attribute.String(instrumentation.AttrDenyReason, reason))
	instrumentation.SetSpanError(span, reason)
	if s.Instrumentation != nil {
		s.Instrumentation.Metrics().RecordGrantDenied(ctx, string(grantType), reason)
	}
	s.Logger.Debug("Request denied", "grant_type", grantType, "reason", reason)
	return err
}

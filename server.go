package oauth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/server"
	"github.com/giantswarm/oauth-grants/storage"
)

// Backend serves every store the authorization server needs. The memory,
// valkey and sqlstore backends all satisfy it.
type Backend interface {
	storage.ClientStore
	storage.ArtifactStore
	storage.TransactionStore
	storage.UserStore
}

// NewServer wires a grant engine, an authorization coordinator and the HTTP
// handler over backend. Resource owner passwords are verified against the
// backend's users with bcrypt.
func NewServer(backend Backend, config *Config, logger *slog.Logger) (*Handler, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
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

	engineConfig := config.Engine
	srv, err := server.New(backend, backend, security.NewPasswordVerifier(backend), &engineConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant engine: %w", err)
	}

	auditor := security.NewAuditor(logger, config.Security.EnableAuditLogging)
	if inst := config.Instrumentation; inst != nil {
		srv.SetInstrumentation(inst)
		auditor.OnEvent(func(eventType string) {
			inst.Metrics().RecordAuditEvent(context.Background(), eventType)
		})
	}
	srv.SetAuditor(auditor)

	encryptor, err := security.NewEncryptor(config.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	if !encryptor.IsEnabled() {
		logger.Warn("Authorization transactions are stored unsealed; set an encryption key to seal them")
	}

	coord, err := server.NewCoordinator(srv, backend, server.WithEncryptor(encryptor))
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}

	return NewHandler(srv, coord, config, logger), nil
}

// Engine returns the grant engine behind the handler
func (h *Handler) Engine() *server.Server {
	return h.server
}

// Coordinator returns the authorization coordinator behind the handler
func (h *Handler) Coordinator() *server.Coordinator {
	return h.coord
}

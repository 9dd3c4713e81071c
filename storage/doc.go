// Package storage provides interfaces and shared types for OAuth client, user,
// artifact and transaction persistence.
//
// The storage package defines the interfaces consumed by the grant engine:
//   - ClientRegistry / ClientStore: registered OAuth clients
//   - ArtifactStore: authorization codes, access tokens and refresh tokens
//   - TransactionStore: authorization transactions awaiting a user decision
//   - UserStore: resource owners for the password grant
//
// The one behavioral contract every backend must honor is the delete-count
// semantics of DeleteAuthorizationCode and DeleteTransaction: the delete is
// atomic and reports how many records it removed, so that concurrent redeemers
// of the same single-use artifact can tell which of them won.
//
// Implementations are provided in subpackages:
//   - storage/memory: In-memory storage for development and testing
//   - storage/mock: Mock storage for unit testing and failure injection
//   - storage/valkey: Valkey/Redis-compatible distributed storage
//   - storage/sqlstore: SQL storage on bun (SQLite or PostgreSQL)
package storage

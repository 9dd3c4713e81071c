// Package valkey provides a Valkey storage backend for the authorization server.
//
// Valkey is a key-value store that is wire-compatible with Redis. Store
// implements ClientStore, ArtifactStore, TransactionStore and UserStore, which
// makes it suitable for deployments with several server replicas sharing state.
//
// # Key Schema
//
// All keys use a configurable prefix (default "oauth:"):
//
//	{prefix}client:{clientID}   -> JSON(Client)
//	{prefix}user:{username}     -> JSON(User)
//	{prefix}code:{code}         -> JSON(AuthorizationCode)  TTL = expiry
//	{prefix}access:{token}      -> JSON(AccessToken)        TTL = expiry
//	{prefix}refresh:{token}     -> JSON(RefreshToken)       no TTL
//	{prefix}txn:{id}            -> JSON(TransactionRecord)  TTL = expiry
//
// # Single-use codes
//
// DeleteAuthorizationCode and DeleteTransaction return the reply of DEL.
// The server executes DEL atomically, so when several replicas race to redeem
// the same code exactly one of them observes 1. Artifacts are written with
// SET NX so a token collision can never overwrite an existing record.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    KeyPrefix: "oauth:",
//	})
package valkey

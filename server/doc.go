// Package server implements the OAuth 2.0 grant engine and the authorization
// coordinator in front of it.
//
// Server mints, stores and redeems authorization codes, access tokens and
// refresh tokens for the authorization code, implicit, password, client
// credentials and refresh token grants. It holds no state of its own; every
// artifact lives in a storage.ArtifactStore, and the atomic delete of an
// authorization code is the only guard against redeeming it twice.
//
// Coordinator handles the authorization endpoint. A request from a trusted
// client is approved immediately; any other request is staged as a
// Transaction until the user allows or denies it.
//
// Errors are split in two: a *DeniedError is an expected rejection that maps
// to an OAuth error response, and a *StoreError is a collaborator failure.
//
//	store := memory.New()
//	defer store.Stop()
//
//	srv, err := server.New(store, store, security.NewPasswordVerifier(store), &server.Config{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	coord, err := server.NewCoordinator(srv, store)
package server

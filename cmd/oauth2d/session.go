package main

import (
	"net/http"
	"strings"

	oauth "github.com/giantswarm/oauth-grants"
	"github.com/giantswarm/oauth-grants/server"
)

// devSession treats HTTP Basic user credentials as a browser session on the
// authorization endpoints. Requests without Basic credentials pass through
// unchanged, and so do token endpoint requests, where Basic carries the client.
func devSession(verifier server.CredentialVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !isAuthorizationPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := verifier.VerifyCredentials(r.Context(), username, password)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth2d"`)
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		ctx := oauth.ContextWithUser(r.Context(), &oauth.User{ID: userID, Name: username})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isAuthorizationPath(path string) bool {
	return strings.HasSuffix(path, oauth.PathAuthorize) || strings.HasSuffix(path, oauth.PathAuthorizeDecision)
}

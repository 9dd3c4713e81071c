package server

import (
	"net/url"
	"slices"
	"strings"

	"github.com/giantswarm/oauth-grants/storage"
)

// DangerousSchemes lists URI schemes that are never accepted as redirect targets,
// even for clients registered without a redirect prefix.
var DangerousSchemes = []string{"javascript", "data", "file", "vbscript", "about"}

// reservedRedirectParams are the response parameters the server writes onto a
// redirect URI. A requested URI that already carries one is refused.
var reservedRedirectParams = []string{"code", "state", "error", "error_description", "access_token"}

// MaxScopeTokenLength bounds a single scope token.
const MaxScopeTokenLength = 256

// validateScopeTokens checks every token against the RFC 6749 scope-token
// grammar: 1*( %x21 / %x23-5B / %x5D-7E ).
func validateScopeTokens(requested []string) error {
	for _, tok := range requested {
		if tok == "" || len(tok) > MaxScopeTokenLength {
			return ErrInvalidScope
		}
		for i := 0; i < len(tok); i++ {
			c := tok[i]
			if c < 0x21 || c > 0x7e || c == '"' || c == '\\' {
				return ErrInvalidScope
			}
		}
	}
	return nil
}

// resolveRedirectURI returns the redirect URI to use for client.
// A missing URI falls back to the registered prefix; a client without a prefix
// must send one. The URI must fall under the prefix at a path boundary (see
// storage.Client.AcceptsRedirectURI) and must not carry reserved response
// parameters in its query.
func resolveRedirectURI(client *storage.Client, requested string) (string, error) {
	if requested == "" {
		if client.RedirectURIPrefix == "" {
			return "", ErrInvalidRedirectURI
		}
		requested = client.RedirectURIPrefix
	}

	u, err := url.Parse(requested)
	if err != nil || u.Scheme == "" {
		return "", ErrInvalidRedirectURI
	}
	if slices.Contains(DangerousSchemes, strings.ToLower(u.Scheme)) {
		return "", ErrInvalidRedirectURI
	}
	if u.Fragment != "" {
		// RFC 6749 Section 3.1.2: the endpoint URI MUST NOT include a fragment
		return "", ErrInvalidRedirectURI
	}
	q := u.Query()
	for _, k := range reservedRedirectParams {
		if q.Has(k) {
			return "", ErrInvalidRedirectURI
		}
	}
	if !client.AcceptsRedirectURI(requested) {
		return "", ErrInvalidRedirectURI
	}
	return requested, nil
}

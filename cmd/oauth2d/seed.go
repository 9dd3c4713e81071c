package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth-grants/security"
	"github.com/giantswarm/oauth-grants/storage"
)

// seedFile lists clients and users registered at start-up.
//
//	clients:
//	  - id: web
//	    secret: s3cret
//	    redirect_uri_prefix: https://app.example/callback
//	    allowed_scopes: [read, offline_access]
//	    trusted: true
//	users:
//	  - id: u-1
//	    username: alice
//	    password: wonderland
type seedFile struct {
	Clients []seedClient `yaml:"clients"`
	Users   []seedUser   `yaml:"users"`
}

// seedClient carries either a plaintext secret, hashed on load, or a bcrypt hash
type seedClient struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Secret            string   `yaml:"secret"`
	SecretHash        string   `yaml:"secret_hash"`
	RedirectURIPrefix string   `yaml:"redirect_uri_prefix"`
	AllowedScopes     []string `yaml:"allowed_scopes"`
	Trusted           bool     `yaml:"trusted"`
}

type seedUser struct {
	ID           string `yaml:"id"`
	Username     string `yaml:"username"`
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type seedStore interface {
	storage.ClientStore
	storage.UserStore
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(data)
}

func parseSeed(data []byte) (*seedFile, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	seen := make(map[string]bool)
	for i, c := range seed.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("seed client %d: id is required", i)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("seed client %q: duplicate id", c.ID)
		}
		seen[c.ID] = true
		if c.Secret != "" && c.SecretHash != "" {
			return nil, fmt.Errorf("seed client %q: set secret or secret_hash, not both", c.ID)
		}
	}
	for i, u := range seed.Users {
		if u.ID == "" || u.Username == "" {
			return nil, fmt.Errorf("seed user %d: id and username are required", i)
		}
	}
	return &seed, nil
}

// Apply registers every client and user, replacing existing entries
func (s *seedFile) Apply(ctx context.Context, store seedStore) error {
	for _, c := range s.Clients {
		hash := c.SecretHash
		if c.Secret != "" {
			var err error
			if hash, err = security.HashSecret(c.Secret); err != nil {
				return fmt.Errorf("seed client %q: %w", c.ID, err)
			}
		}
		err := store.SaveClient(ctx, &storage.Client{
			ClientID:          c.ID,
			Name:              c.Name,
			SecretHash:        hash,
			RedirectURIPrefix: c.RedirectURIPrefix,
			AllowedScopes:     c.AllowedScopes,
			Trusted:           c.Trusted,
		})
		if err != nil {
			return fmt.Errorf("seed client %q: %w", c.ID, err)
		}
	}

	for _, u := range s.Users {
		hash := u.PasswordHash
		if u.Password != "" {
			var err error
			if hash, err = security.HashSecret(u.Password); err != nil {
				return fmt.Errorf("seed user %q: %w", u.Username, err)
			}
		}
		err := store.SaveUser(ctx, &storage.User{
			ID:           u.ID,
			Username:     u.Username,
			Name:         u.Name,
			PasswordHash: hash,
		})
		if err != nil {
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}
	return nil
}

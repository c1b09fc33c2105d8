package clients

import (
	"context"
	stderrors "errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/go-oauth2-server/oauthmodel"
)

// SeedClient is one client definition in a YAML seed file. The file maps a
// registration name to the client's settings:
//
//	foo:
//	  client-id: abcd
//	  client-secret: "{noop}secret"
//	  client-authentication-methods: [client_secret_basic]
//	  authorization-grant-types: [client_credentials]
//	  scopes: [test]
//
// Secrets may be plaintext (hashed on registration), "{noop}" prefixed
// plaintext, or "{bcrypt}" prefixed pre-computed hashes.
type SeedClient struct {
	ClientID        string   `yaml:"client-id"`
	ClientSecret    string   `yaml:"client-secret"`
	Description     string   `yaml:"description"`
	AuthMethods     []string `yaml:"client-authentication-methods"`
	GrantTypes      []string `yaml:"authorization-grant-types"`
	RedirectURIs    []string `yaml:"redirect-uris"`
	Scopes          []string `yaml:"scopes"`
	PublicKeyPEM    string   `yaml:"public-key-pem"`
	AccessTokenTTL  string   `yaml:"access-token-ttl"`
	RefreshTokenTTL string   `yaml:"refresh-token-ttl"`
	IDTokenTTL      string   `yaml:"id-token-ttl"`
}

// LoadSeedFile parses a YAML seed file into its client definitions.
func LoadSeedFile(path string) (map[string]SeedClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "[LoadSeedFile] os.ReadFile")
	}
	seeds := map[string]SeedClient{}
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, errors.Wrap(err, "[LoadSeedFile] yaml.Unmarshal")
	}
	return seeds, nil
}

// SeedFromFile registers every client in the seed file, skipping IDs that are
// already present so that seeding stays idempotent across restarts. Returns
// the number of newly registered clients.
func (r *Registry) SeedFromFile(ctx context.Context, path string) (int, error) {
	seeds, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	return r.RegisterSeeds(ctx, seeds)
}

// RegisterSeeds registers seed definitions in deterministic (name) order.
func (r *Registry) RegisterSeeds(ctx context.Context, seeds map[string]SeedClient) (int, error) {
	names := make([]string, 0, len(seeds))
	for name := range seeds {
		names = append(names, name)
	}
	sort.Strings(names)

	registered := 0
	for _, name := range names {
		client, err := seeds[name].toClient(name)
		if err != nil {
			return registered, errors.Wrapf(err, "[RegisterSeeds] seed %q", name)
		}
		if err := r.Register(ctx, client); err != nil {
			if stderrors.Is(err, ErrDuplicateClient) {
				continue
			}
			return registered, errors.Wrapf(err, "[RegisterSeeds] seed %q", name)
		}
		registered++
	}
	return registered, nil
}

func (s SeedClient) toClient(name string) (*Client, error) {
	if s.ClientID == "" {
		return nil, errors.New("client-id is required")
	}

	client := &Client{
		ID:           s.ClientID,
		Description:  s.Description,
		SecretHash:   normaliseSeedSecret(s.ClientSecret),
		RedirectURIs: s.RedirectURIs,
		Scopes:       s.Scopes,
		PublicKeyPEM: s.PublicKeyPEM,
	}
	if client.Description == "" {
		client.Description = name
	}
	for _, m := range s.AuthMethods {
		client.AuthMethods = append(client.AuthMethods, AuthMethod(m))
	}
	for _, gt := range s.GrantTypes {
		client.GrantTypes = append(client.GrantTypes, oauthmodel.GrantType(gt))
	}

	var err error
	if client.AccessTokenTTL, err = parseSeedTTL(s.AccessTokenTTL); err != nil {
		return nil, errors.Wrap(err, "access-token-ttl")
	}
	if client.RefreshTokenTTL, err = parseSeedTTL(s.RefreshTokenTTL); err != nil {
		return nil, errors.Wrap(err, "refresh-token-ttl")
	}
	if client.IDTokenTTL, err = parseSeedTTL(s.IDTokenTTL); err != nil {
		return nil, errors.Wrap(err, "id-token-ttl")
	}
	return client, nil
}

// normaliseSeedSecret strips the password-encoder prefixes commonly found in
// imported seed material: "{noop}" marks plaintext, "{bcrypt}" marks a
// pre-computed hash. A bare secret passes through untouched and gets hashed
// during registration.
func normaliseSeedSecret(secret string) string {
	switch {
	case strings.HasPrefix(secret, "{noop}"):
		return strings.TrimPrefix(secret, "{noop}")
	case strings.HasPrefix(secret, "{bcrypt}"):
		return strings.TrimPrefix(secret, "{bcrypt}")
	default:
		return secret
	}
}

func parseSeedTTL(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

// Package secrets resolves vault:// references in configuration values, so
// no kcsync config field (a SASL JAAS string, an SSL keystore passphrase)
// ever needs to be written in cleartext into the host's environment.
//
// The config surface is a handful of named string fields in
// kafkasync.Config, so Resolver exposes a single Resolve(string) (string,
// error) hook rather than a tree-walking replacer, with path#field
// addressing over Vault's Logical().Read.
package secrets

import (
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// Resolver resolves vault://path#field references against one Vault
// server. The zero value is not usable; build with NewResolver.
type Resolver struct {
	logical *vault.Logical
}

// NewResolver builds a Resolver authenticated against Vault. addr and token
// follow the usual VAULT_ADDR/VAULT_TOKEN convention; a Kubernetes- or
// AppRole-authenticated Resolver is out of scope (kcsync has exactly one
// secret consumer, so a pre-issued token is the auth path operators need).
func NewResolver(addr, token string) (*Resolver, error) {
	cfg := vault.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("secrets: building vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	} else if os.Getenv("VAULT_TOKEN") == "" {
		return nil, fmt.Errorf("secrets: no vault token provided and VAULT_TOKEN is unset")
	}
	return &Resolver{logical: client.Logical()}, nil
}

// Resolve returns value unchanged unless it has the form
// "vault://path#field", in which case it reads path from Vault's KV engine
// and returns the named field. A value with no vault:// prefix is returned
// as-is, so Resolver.Resolve is safe to call on every config field
// unconditionally (matching how kafkasync.Config.Resolve is wired in).
func (r *Resolver) Resolve(value string) (string, error) {
	path, field, ok := parseRef(value)
	if !ok {
		return value, nil
	}
	secret, err := r.logical.Read(path)
	if err != nil {
		return "", fmt.Errorf("secrets: reading %q: %w", path, err)
	}
	if secret == nil {
		return "", fmt.Errorf("secrets: no secret at %q", path)
	}
	raw, ok := secret.Data[field]
	if !ok {
		return "", fmt.Errorf("secrets: secret %q has no field %q", path, field)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secrets: field %q at %q is not a string (%T)", field, path, raw)
	}
	return s, nil
}

const prefix = "vault://"

func parseRef(value string) (path, field string, ok bool) {
	if !strings.HasPrefix(value, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(value, prefix)
	idx := strings.LastIndex(rest, "#")
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}

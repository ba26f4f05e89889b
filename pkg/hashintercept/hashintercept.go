// Package hashintercept implements a password-hash provider that is
// byte-identical to the host's default PBKDF2-HMAC-SHA256 provider, with
// the one addition of depositing the cleartext it is about to hash into a
// correlation.Slot before hashing. The host stores and later verifies the
// result, so any deviation from the default provider's output would
// silently break password login.
package hashintercept

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/scramsync/kcsync/pkg/correlation"
	"github.com/scramsync/kcsync/pkg/hostapi"
)

// Algorithm is the identifier this provider registers under -- the same
// identifier as the host's built-in PBKDF2-SHA256 provider, so the host's
// service loader resolves to this implementation wherever the default
// would have been used.
const Algorithm = "pbkdf2-sha256"

// DefaultIterations substitutes for iterations == -1.
const DefaultIterations = 27500

// SaltSize is the random salt length the host's default provider uses.
const SaltSize = 16

// HashSize is the PBKDF2 output length.
const HashSize = 64

// Credential is the host-persisted record produced by EncodeCredential. It
// implements hostapi.Credential.
type Credential struct {
	AlgorithmID string
	Salt        []byte
	Iters       int
	Hash        []byte // raw, not base64 -- callers needing the host's
	// on-the-wire representation should call Encode().
}

func (c Credential) Algorithm() string { return c.AlgorithmID }
func (c Credential) Iterations() int   { return c.Iters }

// Encode renders the credential the way the host stores it: base64 of the
// raw PBKDF2 output.
func (c Credential) Encode() string {
	return base64.StdEncoding.EncodeToString(c.Hash)
}

// Provider implements hostapi.HashProvider.
type Provider struct {
	// Slot receives the cleartext on every EncodeCredential call. The host
	// is expected to provide one Slot per request (goroutine or explicit
	// context, see package correlation).
	Slot *correlation.Slot
}

// New returns a Provider depositing into slot.
func New(slot *correlation.Slot) *Provider {
	return &Provider{Slot: slot}
}

var _ hostapi.HashProvider = (*Provider)(nil)

// EncodeCredential deposits raw into the correlation slot (best-effort,
// before any computation that could fail), then performs the same
// PBKDF2-HMAC-SHA256 hashing the host's default provider would have
// performed, so the resulting Credential is indistinguishable from what the
// default provider produces.
func (p *Provider) EncodeCredential(_ context.Context, raw string, iterations int) (hostapi.Credential, error) {
	p.deposit(raw)
	cred, err := p.encode(raw, iterations)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// Encode hashes raw the way EncodeCredential does but returns only the
// encoded hash string, the form the host uses for policy comparisons. The
// result is never persisted, so no correlation deposit happens here.
func (p *Provider) Encode(_ context.Context, raw string, iterations int) (string, error) {
	cred, err := p.encode(raw, iterations)
	if err != nil {
		return "", err
	}
	return cred.Encode(), nil
}

func (p *Provider) encode(raw string, iterations int) (Credential, error) {
	if iterations == -1 {
		iterations = DefaultIterations
	}
	if iterations <= 0 {
		return Credential{}, fmt.Errorf("hashintercept: invalid iterations %d", iterations)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("hashintercept: generating salt: %w", err)
	}

	hash := pbkdf2.Key([]byte(raw), salt, iterations, HashSize, sha256.New)

	return Credential{
		AlgorithmID: Algorithm,
		Salt:        salt,
		Iters:       iterations,
		Hash:        hash,
	}, nil
}

// deposit is best-effort: any failure here is swallowed. Set itself cannot
// fail (it is a pure in-memory write), but a nil Slot -- a host that never
// wired one up -- must not crash hashing.
func (p *Provider) deposit(raw string) {
	if p.Slot == nil || raw == "" {
		return
	}
	p.Slot.Set(raw)
}

// Verify recomputes the hash from raw using cred's stored salt/iterations
// and constant-time compares it against cred's stored hash.
func (p *Provider) Verify(_ context.Context, raw string, cred hostapi.Credential) (bool, error) {
	c, ok := cred.(Credential)
	if !ok {
		return false, fmt.Errorf("hashintercept: verify: unexpected credential type %T", cred)
	}
	recomputed := pbkdf2.Key([]byte(raw), c.Salt, c.Iters, HashSize, sha256.New)
	return hmac.Equal(recomputed, c.Hash), nil
}

// PolicyCheck returns true iff cred's iterations match policy and its
// algorithm matches this provider's identifier.
func (p *Provider) PolicyCheck(policy hostapi.PasswordPolicy, cred hostapi.Credential) bool {
	return cred.Algorithm() == Algorithm &&
		policy.HashAlgorithm() == Algorithm &&
		cred.Iterations() == policy.HashIterations()
}

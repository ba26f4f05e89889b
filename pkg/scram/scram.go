// Package scram implements a pure, deterministic RFC 5802 StoredKey/ServerKey
// synthesiser for a single (password, mechanism) pair.
//
// The derivation itself comes from github.com/xdg-go/scram's
// HashGeneratorFcn.NewClient(...).GetStoredCredentials(...), which yields
// exactly {StoredKey, ServerKey} for a chosen hash algorithm, rather than
// hand-rolling the PBKDF2+HMAC composition.
package scram

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/xdg-go/scram"
	"golang.org/x/crypto/pbkdf2"
)

// Mechanism identifies a SCRAM variant provisioned for a user.
type Mechanism string

const (
	SCRAMSHA256 Mechanism = "SCRAM-SHA-256"
	SCRAMSHA512 Mechanism = "SCRAM-SHA-512"
)

// MinIterations is the minimum PBKDF2 work factor accepted for SCRAM.
const MinIterations = 4096

// SaltSize is the number of uniformly random salt bytes generated per
// synthesis; salt is never reused across generations.
const SaltSize = 32

var generators = map[Mechanism]scram.HashGeneratorFcn{
	SCRAMSHA256: scram.SHA256,
	SCRAMSHA512: scram.SHA512,
}

// KeySize returns the digest output size in bytes for mechanism: 32 for
// SHA-256, 64 for SHA-512.
func KeySize(mechanism Mechanism) (int, error) {
	switch mechanism {
	case SCRAMSHA256:
		return 32, nil
	case SCRAMSHA512:
		return 64, nil
	default:
		return 0, fmt.Errorf("scram: unknown mechanism %q", mechanism)
	}
}

// Verifier is the output of synthesis: everything the cluster needs to
// authenticate the password later. SaltedPassword is carried alongside
// StoredKey/ServerKey because the Kafka wire protocol
// (kmsg.AlterUserSCRAMCredentialsRequest) transmits SaltedPassword directly
// and lets the broker derive StoredKey/ServerKey itself, so both forms are
// produced here and the caller picks what it needs.
type Verifier struct {
	Mechanism      Mechanism
	Iterations     int
	Salt           []byte
	SaltedPassword []byte
	StoredKey      []byte
	ServerKey      []byte
}

// Normalize, when non-nil, is applied to the password before derivation.
// Some reference implementations of this sync engine do not SASLprep-
// normalise passwords, which can hurt interoperability with non-ASCII
// passwords; rather than silently changing that behaviour, Synthesize
// defaults to pass-through (nil) and only normalises if the caller supplies
// a hook -- e.g. a SASLprep implementation obtained from the host.
type Normalize func(string) (string, error)

// Synthesize computes a Verifier for password under mechanism, with a
// freshly generated random salt. iterations must be >= MinIterations.
//
// Determinism/freshness: two calls with the same (password, salt,
// iterations, mechanism) produce byte-identical output; two calls with
// fresh salts produce different StoredKey/ServerKey with overwhelming
// probability, because Synthesize always generates a new salt. Use
// SynthesizeWithSalt directly only in tests that need to pin the salt to
// assert determinism.
func Synthesize(password string, mechanism Mechanism, iterations int, normalize Normalize) (*Verifier, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("scram: generating salt: %w", err)
	}
	return SynthesizeWithSalt(password, mechanism, iterations, salt, normalize)
}

// SynthesizeWithSalt is Synthesize with an explicit salt, used by
// Synthesize internally and directly by tests asserting that identical
// inputs produce identical output.
func SynthesizeWithSalt(password string, mechanism Mechanism, iterations int, salt []byte, normalize Normalize) (*Verifier, error) {
	if password == "" {
		return nil, errors.New("scram: password must be non-empty")
	}
	if iterations < MinIterations {
		return nil, fmt.Errorf("scram: iterations %d below minimum %d", iterations, MinIterations)
	}
	gen, ok := generators[mechanism]
	if !ok {
		return nil, fmt.Errorf("scram: unknown mechanism %q", mechanism)
	}

	pass := password
	if normalize != nil {
		var err error
		pass, err = normalize(pass)
		if err != nil {
			return nil, fmt.Errorf("scram: normalizing password: %w", err)
		}
	}

	client, err := gen.NewClient("unused-username", pass, "")
	if err != nil {
		return nil, fmt.Errorf("scram: building scram client: %w", err)
	}
	client = client.WithMinIterations(iterations)

	creds := client.GetStoredCredentials(scram.KeyFactors{
		Salt:  string(salt),
		Iters: iterations,
	})

	return &Verifier{
		Mechanism:      mechanism,
		Iterations:     iterations,
		Salt:           append([]byte(nil), salt...),
		SaltedPassword: saltedPassword(gen, pass, salt, iterations),
		StoredKey:      []byte(creds.StoredKey),
		ServerKey:      []byte(creds.ServerKey),
	}, nil
}

// saltedPassword recomputes SaltedPassword = Hi(Normalize(password), salt,
// iterations) per RFC 5802 step 1. xdg-go/scram's GetStoredCredentials only
// hands back the derived StoredKey/ServerKey, not the intermediate salted
// password, but the Kafka wire protocol
// (kmsg.AlterUserSCRAMCredentialsRequestUpsertion) wants SaltedPassword
// directly and lets the broker derive StoredKey/ServerKey itself -- so it is
// recomputed here with golang.org/x/crypto/pbkdf2.
func saltedPassword(gen scram.HashGeneratorFcn, pass string, salt []byte, iterations int) []byte {
	size := gen().Size()
	return pbkdf2.Key([]byte(pass), salt, iterations, size, gen)
}

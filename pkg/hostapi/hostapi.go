// Package hostapi declares the capabilities kcsync expects the identity
// provider (the host) to expose. The host itself is a separate process we
// never implement here; these interfaces are the seam a real host adapter
// implements, and the seam the tests in this module fake.
package hostapi

import "context"

// Credential is whatever the host persists in place of a cleartext
// password. kcsync never inspects its fields beyond what PasswordPolicy
// needs; the host owns the wire format.
type Credential interface {
	Algorithm() string
	Iterations() int
}

// PasswordPolicy is the host's policy object passed into PolicyCheck.
type PasswordPolicy interface {
	HashAlgorithm() string
	HashIterations() int
}

// HashProvider is the host's password-hash provider capability. A host
// registers one implementation under the identifier of its default
// PBKDF2-SHA256 provider, at higher precedence, so the host's service
// loader picks kcsync's implementation wherever the default would have
// been used -- the minimum-surface way to observe cleartext without
// modifying the host.
type HashProvider interface {
	// Encode hashes raw with a fresh salt and returns the encoded hash
	// string alone, without the salt/iterations envelope -- the host calls
	// this for policy comparisons rather than persistence. iterations == -1
	// means "use the provider's configured default".
	Encode(ctx context.Context, raw string, iterations int) (string, error)
	// EncodeCredential hashes raw and returns a Credential the host can
	// persist and later pass back to Verify. iterations == -1 means "use
	// the provider's configured default".
	EncodeCredential(ctx context.Context, raw string, iterations int) (Credential, error)
	// Verify recomputes the hash from raw and constant-time compares it
	// against cred.
	Verify(ctx context.Context, raw string, cred Credential) (bool, error)
	// PolicyCheck reports whether cred already satisfies policy.
	PolicyCheck(policy PasswordPolicy, cred Credential) bool
}

// AdminEventOperation mirrors the host's administrative event taxonomy:
// user creation or an action such as a password reset.
type AdminEventOperation string

const (
	OperationCreate AdminEventOperation = "CREATE"
	OperationAction AdminEventOperation = "ACTION"
)

// AdminEvent is the host's administrative event notification. Representation
// is the raw JSON the host attached to the event, if any; it may be nil.
type AdminEvent struct {
	RealmID        string
	Operation      AdminEventOperation
	ResourcePath   string
	Representation []byte
}

// EventListener is the host's admin-event listener capability.
type EventListener interface {
	OnEvent(ctx context.Context, evt AdminEvent)
}

// User is the minimal shape kcsync needs from the host's user directory.
type User interface {
	ID() string
	Username() string
}

// UserDirectory resolves a user id to a username within a realm.
type UserDirectory interface {
	UserByID(ctx context.Context, realmID, userID string) (User, error)
}

// Realm is a lookup scope; most hosts expose one UserDirectory per realm.
type Realm interface {
	Directory() UserDirectory
}

// Package kcerrors collects the sync engine's error taxonomy as typed,
// wrappable values so callers can branch on them with errors.Is/errors.As.
package kcerrors

import "fmt"

// ConfigError wraps an invalid or missing admin-client configuration,
// discovered at F-init. Fatal to the sync path until corrected.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("kafka admin config %q: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransientNetworkError wraps a transport failure surfaced after the admin
// client's own internal retries are exhausted.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("kafka admin %s: transient: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// AuthError means the admin client's own credentials were rejected by the
// cluster. Fatal to the session; the next event triggers a re-init.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("kafka admin auth rejected: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// EventShapeError means the admin event was missing fields, had an
// unparseable resource path, or username resolution failed outright. The
// job is skipped; the event is still acknowledged to the host.
type EventShapeError struct {
	Reason string
}

func (e *EventShapeError) Error() string { return "malformed admin event: " + e.Reason }

// CorrelationMiss means no cleartext was available in the correlation slot
// when the observer looked for it. No synthetic password is ever used.
type CorrelationMiss struct {
	RealmID, UserID string
}

func (e *CorrelationMiss) Error() string {
	return fmt.Sprintf("no correlated cleartext for realm=%s user=%s", e.RealmID, e.UserID)
}

// DegradedIdentity means username resolution fell back to the user id.
// Permitted only when the operator opts in.
type DegradedIdentity struct {
	RealmID, UserID string
}

func (e *DegradedIdentity) Error() string {
	return fmt.Sprintf("username resolution degraded to user id for realm=%s user=%s", e.RealmID, e.UserID)
}

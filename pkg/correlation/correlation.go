// Package correlation implements a per-goroutine, single-slot, time-bounded
// cleartext hand-off between a password hash interceptor and an admin-event
// observer.
//
// The host's password-hash call and its admin-event dispatch run
// synchronously on the same request goroutine, strictly in that order. A
// request-local single slot makes that hand-off safe without a global lock
// and without ever letting cleartext cross goroutines.
//
// Go has no first-class thread-local storage. A goroutine-keyed map would
// leak entries for goroutines that never call Clear, so the primitive here
// is an explicit Slot owned by the caller, optionally threaded through a
// context.Context value. Hosts whose runtime exposes a true
// goroutine/request id can instead keep one Slot in a sync.Map keyed by
// that id; see WithSlot/FromContext.
package correlation

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxAge bounds how old a deposit may be before it is treated as
// absent.
const DefaultMaxAge = 5 * time.Second

// Slot is a single-entry, time-bounded cleartext cell. The zero value is
// an empty slot ready to use. A Slot must not be shared across goroutines
// that do not already share a single request's lifetime; see the package
// doc.
type Slot struct {
	mu          sync.Mutex
	cleartext   []byte
	hasValue    bool
	depositedAt time.Time
	now         func() time.Time // overridable for tests
}

// NewSlot returns an empty Slot.
func NewSlot() *Slot {
	return &Slot{now: time.Now}
}

// Set replaces any current value with cleartext and a fresh timestamp. A
// no-op on empty input. Overwrites (rather than rejects) any stale value
// already present.
func (s *Slot) Set(cleartext string) {
	if cleartext == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleartext = []byte(cleartext)
	s.hasValue = true
	s.depositedAt = s.nowFunc()
}

// Take atomically reads and clears the slot. It returns ("", false) if the
// slot is empty or the deposit is older than maxAge. A second call after
// the first always returns ("", false) until Set is called again -- Take is
// destructive and idempotent after the first read.
func (s *Slot) Take(maxAge time.Duration) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasValue {
		return "", false
	}
	cleartext := string(s.cleartext)
	age := s.nowFunc().Sub(s.depositedAt)
	s.zeroLocked()
	if age > maxAge {
		return "", false
	}
	return cleartext, true
}

// Clear drops any slot contents without returning them. The event observer
// runs it on every exit path, including panic recovery; the hash
// interceptor does not, since its deposit is what the observer later takes.
func (s *Slot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zeroLocked()
}

func (s *Slot) zeroLocked() {
	for i := range s.cleartext {
		s.cleartext[i] = 0
	}
	s.cleartext = nil
	s.hasValue = false
}

func (s *Slot) nowFunc() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

type ctxKey struct{}

// WithSlot attaches slot to ctx so it can be recovered with FromContext.
// Hosts that expose a request-scoped context (rather than a bare goroutine)
// should prefer this over a goroutine-local Slot: it is explicit, and it
// survives a host that hops goroutines within one logical request as long
// as it threads the context along.
func WithSlot(ctx context.Context, slot *Slot) context.Context {
	return context.WithValue(ctx, ctxKey{}, slot)
}

// FromContext recovers the Slot attached by WithSlot, or nil if none.
func FromContext(ctx context.Context) *Slot {
	s, _ := ctx.Value(ctxKey{}).(*Slot)
	return s
}

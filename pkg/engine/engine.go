// Package engine wires the hash interceptor, correlation context, event
// observer, and Kafka sync executor/session into the two extension points
// the host loads: a password-hash provider and an admin-event listener.
//
// Go has no annotation-driven service loader the way the host's own plugin
// SPI does. The idiomatic equivalent -- the one database/sql drivers use --
// is an explicit registration call the host makes at process init, or a
// package-level registry populated by anonymous import side effects. Engine
// offers both: Register for hosts that drive their own factory lookup, and
// a ready-built Engine (via New) for hosts that just want one value to hold
// onto.
package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scramsync/kcsync/pkg/correlation"
	"github.com/scramsync/kcsync/pkg/eventobserver"
	"github.com/scramsync/kcsync/pkg/hashintercept"
	"github.com/scramsync/kcsync/pkg/hostapi"
	"github.com/scramsync/kcsync/pkg/kafkasync"
	"github.com/scramsync/kcsync/pkg/scram"
)

// Engine bundles the two extension points and the resources they share.
// The host obtains the HashProvider and EventListener from here and
// registers them under its own SPI; it must not construct a second Engine
// backed by the same Config (that would mean two admin-client sessions
// fighting over init -- the session is process-wide by contract).
type Engine struct {
	slot          *correlation.Slot
	HashProvider  hostapi.HashProvider
	EventListener hostapi.EventListener

	session *kafkasync.Session
}

// New builds an Engine: a fresh correlation.Slot, a hashintercept.Provider
// depositing into it, a kafkasync.Session/Executor pair built from kafkaCfg,
// and an eventobserver.Observer wired to directory and executor.
//
// directory may be nil if the host always includes representation.username
// in its admin events; the directory lookup is reached by any event without
// it, password resets included.
func New(kafkaCfg kafkasync.Config, directory hostapi.UserDirectory, obsCfg eventobserver.Config, log zerolog.Logger) (*Engine, error) {
	slot := correlation.NewSlot()
	hashProvider := hashintercept.New(slot)

	session := kafkasync.NewSession(kafkaCfg, log.With().Str("component", "kafkasync").Logger())
	iterations := scram.MinIterations
	executor := kafkasync.NewExecutor(session, log.With().Str("component", "kafkasync").Logger(), iterations)

	observer := eventobserver.New(slot, directory, executor, obsCfg, log.With().Str("component", "eventobserver").Logger())

	return &Engine{
		slot:          slot,
		HashProvider:  hashProvider,
		EventListener: observer,
		session:       session,
	}, nil
}

// NewFromEnv is New with every input loaded from the environment
// (kafkasync.LoadConfig, eventobserver.LoadConfig), the shape a host that
// just wants kcsync up and running from KAFKA_* variables will normally
// call. directory is still supplied by the caller: no single
// UserDirectory backend is implied by environment variables alone, since a
// host may have no user-directory federation configured at all.
func NewFromEnv(directory hostapi.UserDirectory, log zerolog.Logger) (*Engine, error) {
	kafkaCfg, err := kafkasync.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("engine: loading kafka config: %w", err)
	}
	return New(kafkaCfg, directory, eventobserver.LoadConfig(), log)
}

// Close shuts down the admin-client session and clears any residual
// correlation slot contents. Idempotent; safe to call from the host's
// shutdown hook even if New's session was never actually dialed.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.session.Close()
	e.slot.Clear()
}

// factory builds a HashProvider/EventListener pair the way the host's
// service loader would: one instance per host session, sharing one Engine.
type factory func(log zerolog.Logger) (*Engine, error)

var registry = map[string]factory{}

// Register adds name to the package-level factory registry, for hosts that
// only support static, init()-time plugin discovery (as opposed to a host
// that calls New directly, which needs no registry at all).
func Register(name string, f func(log zerolog.Logger) (*Engine, error)) {
	registry[name] = f
}

// Lookup returns the factory registered under name, or an error if none
// was registered -- e.g. because the host's import of this package's
// registration side effect never ran.
func Lookup(name string) (func(log zerolog.Logger) (*Engine, error), error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("engine: no factory registered under %q", name)
	}
	return f, nil
}

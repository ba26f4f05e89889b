package kafkasync

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kzerolog"
	"golang.org/x/sync/singleflight"

	"github.com/scramsync/kcsync/pkg/kcerrors"
)

// sessionState tracks the admin-client session's uninitialised -> ready ->
// closed lifecycle. Closed is final; Invalidate is the one way back, from
// ready to uninitialised.
type sessionState int

const (
	stateUninitialised sessionState = iota
	stateReady
	stateClosed
)

// Session is the process-wide admin-client singleton. Its zero value is
// not usable; construct with NewSession. The client is built lazily on the
// first Client() call rather than eagerly, so a Session can be constructed
// before the cluster is reachable -- Config is validated well before
// anything dials.
//
// Concurrent lazy init is collapsed with golang.org/x/sync/singleflight
// rather than a hand-rolled sync.Once+mutex: the first caller's init
// failure must be retried by the *next* caller, not cached forever the way
// sync.Once would cache it, and singleflight already gives us "only one
// build in flight, every other concurrent caller blocks on its result"
// without extra bookkeeping.
type Session struct {
	cfg Config
	log zerolog.Logger

	mu     sync.Mutex
	state  sessionState
	client *kgo.Client

	group singleflight.Group
}

// NewSession returns a Session that will lazily build a *kgo.Client from cfg
// on first use. cfg must already have passed Validate (LoadConfig does this
// for you).
func NewSession(cfg Config, log zerolog.Logger) *Session {
	return &Session{cfg: cfg, log: log}
}

// Client returns the singleton admin client, building it on the first call.
// A failed build is logged and re-raised; the *next* call to
// Client retries the build rather than caching the failure, so a
// transiently-unreachable cluster at startup does not wedge the session
// forever.
func (s *Session) Client(ctx context.Context) (*kgo.Client, error) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil, fmt.Errorf("kafkasync: session is closed")
	}
	if s.state == stateReady {
		client := s.client
		s.mu.Unlock()
		return client, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("init", func() (interface{}, error) {
		return s.build()
	})
	if err != nil {
		return nil, err
	}
	return v.(*kgo.Client), nil
}

func (s *Session) build() (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(s.cfg.BootstrapServers...),
		kgo.WithLogger(kzerolog.New(&s.log)),
		kgo.RequestTimeoutOverhead(s.cfg.requestTimeout()),
	}
	if s.cfg.tls != nil {
		opts = append(opts, kgo.DialTLSConfig(s.cfg.tls))
	}
	if s.cfg.sasl != nil {
		opts = append(opts, kgo.SASL(s.cfg.sasl))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		// Only non-secret config fields are logged; the JAAS string and the
		// SSL passphrases never appear here.
		s.log.Error().Err(err).
			Strs("bootstrap_servers", s.cfg.BootstrapServers).
			Str("security_protocol", string(s.cfg.SecurityProtocol)).
			Str("sasl_mechanism", s.cfg.SASLMechanism).
			Msg("kafka admin client init failed")
		return nil, &kcerrors.ConfigError{Field: "kafka admin client", Err: err}
	}

	s.mu.Lock()
	s.client = client
	s.state = stateReady
	s.mu.Unlock()
	return client, nil
}

// Invalidate tears down the current client and drops the session back to
// uninitialised, so the next Client() call rebuilds it from cfg. Callers
// use this when the cluster rejects the admin client's own credentials
// (kcerrors.AuthError): that is fatal to the session, and the next event
// must trigger a re-init, which a closed session (refusing forever) would
// not give us.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	if s.client != nil {
		s.client.Close()
	}
	s.client = nil
	s.state = stateUninitialised
}

// Close shuts down the session once. Subsequent calls no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed || s.client == nil {
		s.state = stateClosed
		return
	}
	s.client.Close()
	s.state = stateClosed
}

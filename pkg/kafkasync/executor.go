package kafkasync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/scramsync/kcsync/pkg/kcerrors"
	"github.com/scramsync/kcsync/pkg/scram"
)

// mechanismCode maps our Mechanism type to the wire-level SCRAM mechanism
// code kmsg.AlterUserSCRAMCredentialsRequestUpsertion.Mechanism expects
// (1 = SCRAM-SHA-256, 2 = SCRAM-SHA-512), per the Kafka admin protocol.
func mechanismCode(m scram.Mechanism) (int8, error) {
	switch m {
	case scram.SCRAMSHA256:
		return 1, nil
	case scram.SCRAMSHA512:
		return 2, nil
	default:
		return 0, fmt.Errorf("kafkasync: unknown mechanism %q", m)
	}
}

// Executor issues SCRAM credential alterations against the cluster. It owns
// no state of its own beyond the Session it was built with and the PBKDF2
// work factor; the mechanism set is passed in per call by the caller.
type Executor struct {
	session    *Session
	log        zerolog.Logger
	iterations int
}

// NewExecutor returns an Executor driving session. iterations is the PBKDF2
// work factor used for every SCRAM verifier it synthesises; callers
// normally use scram.MinIterations unless an operator policy demands more.
func NewExecutor(session *Session, log zerolog.Logger, iterations int) *Executor {
	if iterations < scram.MinIterations {
		iterations = scram.MinIterations
	}
	return &Executor{session: session, log: log, iterations: iterations}
}

// UpsertSCRAM synthesizes a Verifier per mechanism, batches them into one
// AlterUserSCRAMCredentialsRequest, and blocks until the cluster
// acknowledges every mechanism for username. The cluster's upsert semantics
// make this idempotent: re-running the same job replaces any prior verifier
// for (username, mechanism) atomically, so no read-before-write is needed.
func (e *Executor) UpsertSCRAM(ctx context.Context, username, cleartext string, mechanisms []scram.Mechanism) error {
	jobID := uuid.New().String()
	log := e.log.With().Str("job_id", jobID).Str("username", username).Interface("mechanisms", mechanisms).Logger()
	reject := func(err error) error {
		log.Error().Err(err).Str("outcome", "rejected").Msg("scram upsert failed")
		return err
	}

	if username == "" {
		return reject(fmt.Errorf("kafkasync: username must not be empty"))
	}
	if cleartext == "" {
		return reject(fmt.Errorf("kafkasync: cleartext must not be empty"))
	}
	if len(mechanisms) == 0 {
		return reject(fmt.Errorf("kafkasync: at least one mechanism required"))
	}

	req := kmsg.NewAlterUserSCRAMCredentialsRequest()
	for _, mech := range mechanisms {
		code, err := mechanismCode(mech)
		if err != nil {
			return reject(err)
		}
		verifier, err := scram.Synthesize(cleartext, mech, e.iterations, nil)
		if err != nil {
			return reject(fmt.Errorf("kafkasync: synthesizing %s verifier: %w", mech, err))
		}

		up := kmsg.NewAlterUserSCRAMCredentialsRequestUpsertion()
		up.Name = username
		up.Mechanism = code
		up.Iterations = int32(verifier.Iterations)
		up.Salt = verifier.Salt
		up.SaltedPassword = verifier.SaltedPassword
		req.Upsertions = append(req.Upsertions, up)
	}

	client, err := e.session.Client(ctx)
	if err != nil {
		log.Error().Err(err).Str("outcome", "config_error").Msg("scram upsert failed")
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.session.cfg.defaultAPITimeout())
	defer cancel()

	start := time.Now()
	kresp, err := client.Request(callCtx, &req)
	latency := time.Since(start)

	if err != nil {
		classified := classifyTransportError(err)
		var authErr *kcerrors.AuthError
		if errors.As(classified, &authErr) {
			// Rejected admin credentials are fatal to the session: drop the
			// client so the next event's Client() call re-inits instead of
			// retrying the same rejected credentials forever.
			e.session.Invalidate()
		}
		log.Error().Err(classified).Dur("latency_ms", latency).Str("outcome", "failed").Msg("scram upsert failed")
		return classified
	}

	resp, ok := kresp.(*kmsg.AlterUserSCRAMCredentialsResponse)
	if !ok {
		err := fmt.Errorf("kafkasync: unexpected response type %T", kresp)
		log.Error().Err(err).Dur("latency_ms", latency).Str("outcome", "failed").Msg("scram upsert failed")
		return err
	}

	if err := classifyResults(resp.Results, username); err != nil {
		log.Error().Err(err).Dur("latency_ms", latency).Str("outcome", "failed").Msg("scram upsert failed")
		return err
	}

	log.Info().Dur("latency_ms", latency).Str("outcome", "success").Msg("scram upsert completed")
	return nil
}

// classifyTransportError turns a transport-level Request error into the
// kcerrors taxonomy. franz-go's admin client already retries retriable
// errors internally per RequestTimeoutOverhead/RetryTimeout; by the time
// Request returns an error here, retries are exhausted.
func classifyTransportError(err error) error {
	if isAuthError(err) {
		return &kcerrors.AuthError{Err: err}
	}
	return &kcerrors.TransientNetworkError{Op: "AlterUserSCRAMCredentials", Err: err}
}

func isAuthError(err error) bool {
	return errors.Is(err, kerr.SaslAuthenticationFailed) ||
		errors.Is(err, kerr.ClusterAuthorizationFailed)
}

// classifyResults walks the per-mechanism results the broker returns and
// reports the first failure. A per-result error
// code from the broker (e.g. RESOURCE_NOT_FOUND for an unknown user on
// delete, or an internal broker error) is not a transport failure -- the
// request itself succeeded -- so these are reported as plain errors rather
// than TransientNetworkError.
func classifyResults(results []kmsg.AlterUserSCRAMCredentialsResponseResult, username string) error {
	for _, res := range results {
		if res.ErrorCode == 0 {
			continue
		}
		msg := kerr.ErrorForCode(res.ErrorCode).Error()
		if res.ErrorMessage != nil && *res.ErrorMessage != "" {
			msg = *res.ErrorMessage
		}
		if res.User != username {
			continue // a batched request can cover other users; UpsertSCRAM's are single-user
		}
		return fmt.Errorf("kafkasync: broker rejected scram alteration for %q: %s", username, msg)
	}
	return nil
}

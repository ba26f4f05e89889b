// Package eventobserver implements the admin-event listener that turns a
// create-user or password-reset notification into a Kafka SCRAM sync job.
// Every error inside the observer is logged and swallowed: admin-event
// dispatch must never fail because of this component.
package eventobserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scramsync/kcsync/pkg/correlation"
	"github.com/scramsync/kcsync/pkg/hostapi"
	"github.com/scramsync/kcsync/pkg/kcerrors"
	"github.com/scramsync/kcsync/pkg/scram"
)

// Executor is the subset of the Kafka sync executor that the observer
// needs. kafkasync.Executor satisfies it; tests use a fake.
type Executor interface {
	UpsertSCRAM(ctx context.Context, username, cleartext string, mechanisms []scram.Mechanism) error
}

// Config holds the observer's operator-tunable policy decisions.
type Config struct {
	// MaxAge bounds how old a correlation slot deposit may be before it is
	// treated as absent. Zero selects correlation.DefaultMaxAge.
	MaxAge time.Duration

	// Mechanisms is the mechanism set synthesised for every job. Some
	// reference deployments hard-code SCRAM-SHA-256 alone; this defaults to
	// both mechanisms for forward compatibility.
	Mechanisms []scram.Mechanism

	// AllowDegradedIdentity opts into writing a sync job whose username
	// fell back to the raw user id. Refused by default, since a UUID-named
	// Kafka principal can't authenticate meaningfully.
	AllowDegradedIdentity bool
}

// LoadConfig builds a Config from the operator-tunable environment
// variables: KAFKA_SCRAM_MECHANISMS (comma list, default both mechanisms)
// and KCSYNC_ALLOW_DEGRADED_IDENTITY (bool, default false).
func LoadConfig() Config {
	cfg := Config{}

	if raw := os.Getenv("KAFKA_SCRAM_MECHANISMS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				cfg.Mechanisms = append(cfg.Mechanisms, scram.Mechanism(part))
			}
		}
	}
	if len(cfg.Mechanisms) == 0 {
		cfg.Mechanisms = []scram.Mechanism{scram.SCRAMSHA256, scram.SCRAMSHA512}
	}

	if raw := os.Getenv("KCSYNC_ALLOW_DEGRADED_IDENTITY"); raw != "" {
		if allow, err := strconv.ParseBool(raw); err == nil {
			cfg.AllowDegradedIdentity = allow
		}
	}

	return cfg
}

// Observer implements hostapi.EventListener.
type Observer struct {
	slot      *correlation.Slot
	directory hostapi.UserDirectory
	executor  Executor
	cfg       Config
	log       zerolog.Logger
}

var _ hostapi.EventListener = (*Observer)(nil)

// New returns an Observer. directory may be nil if the host never omits
// representation.username (UserByID is then never called).
func New(slot *correlation.Slot, directory hostapi.UserDirectory, executor Executor, cfg Config, log zerolog.Logger) *Observer {
	return &Observer{slot: slot, directory: directory, executor: executor, cfg: cfg, log: log}
}

func (o *Observer) maxAge() time.Duration {
	if o.cfg.MaxAge > 0 {
		return o.cfg.MaxAge
	}
	return correlation.DefaultMaxAge
}

// representation mirrors the fields kcsync reads out of the host's
// representation JSON. Unknown fields are ignored.
type representation struct {
	Username    string               `json:"username"`
	Credentials []representationCred `json:"credentials"`
}

type representationCred struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func parseRepresentation(raw []byte) (username, password string) {
	if len(raw) == 0 {
		return "", ""
	}
	var rep representation
	if err := json.Unmarshal(raw, &rep); err != nil {
		return "", ""
	}
	for _, c := range rep.Credentials {
		if c.Type == "password" && c.Value != "" {
			password = c.Value
			break
		}
	}
	return rep.Username, password
}

// parseUserID derives user_id from a resource path of the shape
// "users/{id}" or "users/{id}/reset-password".
func parseUserID(resourcePath string) (string, error) {
	segments := strings.Split(strings.Trim(resourcePath, "/"), "/")
	for i, seg := range segments {
		if seg == "users" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("no users/{id} segment in resource path %q", resourcePath)
}

// OnEvent implements hostapi.EventListener. Every error path is logged and
// swallowed: admin-event dispatch must never fail because of this listener.
func (o *Observer) OnEvent(ctx context.Context, evt hostapi.AdminEvent) {
	jobID := uuid.New().String()
	log := o.log.With().
		Str("job_id", jobID).
		Str("realm_id", evt.RealmID).
		Str("operation", string(evt.Operation)).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("event observer panicked; recovered")
		}
	}()
	// The slot is cleared on every way out of this event, the early skips
	// and a recovered panic included.
	defer o.slot.Clear()

	userID, err := parseUserID(evt.ResourcePath)
	if err != nil {
		o.logSkip(log, "", &kcerrors.EventShapeError{Reason: err.Error()})
		return
	}
	log = log.With().Str("user_id", userID).Logger()

	repUsername, repPassword := parseRepresentation(evt.Representation)

	// Slot.Take is destructive; it must run exactly once per event so a
	// second event for the same user never replays the first's cleartext.
	slotPassword, slotOK := o.slot.Take(o.maxAge())

	username := repUsername
	degraded := false
	if username == "" {
		username, degraded = o.resolveUsername(ctx, log, evt.RealmID, userID)
	}

	password, err := o.resolvePassword(log, evt.RealmID, userID, repPassword, slotPassword, slotOK)
	if err != nil {
		o.logSkip(log, username, err)
		return
	}

	if username == "" || password == "" {
		o.logSkip(log, username, &kcerrors.EventShapeError{Reason: "missing username or password after resolution"})
		return
	}

	if degraded {
		log.Warn().Err(&kcerrors.DegradedIdentity{RealmID: evt.RealmID, UserID: userID}).Msg("username resolution degraded to user id")
		if !o.cfg.AllowDegradedIdentity {
			log.Warn().Msg("degraded identity sync refused by policy; skipping job")
			return
		}
	}

	mechanisms := o.cfg.Mechanisms
	if len(mechanisms) == 0 {
		mechanisms = []scram.Mechanism{scram.SCRAMSHA256, scram.SCRAMSHA512}
	}

	// The executor emits the one structured record per sync call (username,
	// mechanisms, outcome, latency); logging the result here as well would
	// double it up. Only the skip paths above are this listener's to log,
	// and a failed job is swallowed either way: admin-event dispatch never
	// fails because of this component.
	_ = o.executor.UpsertSCRAM(ctx, username, password, mechanisms)
}

// resolveUsername queries the host user directory, falling back to userID
// (and reporting degraded=true) if that fails.
func (o *Observer) resolveUsername(ctx context.Context, log zerolog.Logger, realmID, userID string) (username string, degraded bool) {
	if o.directory == nil {
		return userID, true
	}
	user, err := o.directory.UserByID(ctx, realmID, userID)
	if err != nil {
		log.Warn().Err(err).Msg("user directory lookup failed; falling back to user id")
		return userID, true
	}
	return user.Username(), false
}

// resolvePassword picks the representation's password over the correlation
// slot's when both are present and non-empty (some hosts embed the
// cleartext directly in the create-user representation); the slot is
// drained either way by the caller, and a mismatch between the two is
// logged rather than silently discarded.
func (o *Observer) resolvePassword(log zerolog.Logger, realmID, userID, repPassword, slotPassword string, slotOK bool) (string, error) {
	if repPassword != "" {
		if slotOK && slotPassword != "" && slotPassword != repPassword {
			log.Warn().Msg("representation credential value differs from correlation slot deposit; using representation value")
		}
		return repPassword, nil
	}
	if slotOK {
		return slotPassword, nil
	}
	return "", &kcerrors.CorrelationMiss{RealmID: realmID, UserID: userID}
}

func (o *Observer) logSkip(log zerolog.Logger, username string, err error) {
	log.Warn().Err(err).Str("username", username).Str("outcome", "skipped").Msg("admin event skipped")
}

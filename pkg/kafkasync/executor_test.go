package kafkasync_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/scramsync/kcsync/pkg/kafkasync"
	"github.com/scramsync/kcsync/pkg/scram"
)

func newUnstartedExecutor(t *testing.T) *kafkasync.Executor {
	t.Helper()
	cfg := kafkasync.Config{BootstrapServers: []string{"127.0.0.1:1"}, SecurityProtocol: kafkasync.ProtocolPlaintext}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	session := kafkasync.NewSession(cfg, zerolog.Nop())
	return kafkasync.NewExecutor(session, zerolog.Nop(), scram.MinIterations)
}

func TestUpsertSCRAMRejectsEmptyUsername(t *testing.T) {
	e := newUnstartedExecutor(t)
	err := e.UpsertSCRAM(context.Background(), "", "pencil", []scram.Mechanism{scram.SCRAMSHA256})
	assert.Error(t, err)
}

func TestUpsertSCRAMRejectsEmptyCleartext(t *testing.T) {
	e := newUnstartedExecutor(t)
	err := e.UpsertSCRAM(context.Background(), "alice", "", []scram.Mechanism{scram.SCRAMSHA256})
	assert.Error(t, err)
}

func TestUpsertSCRAMRejectsEmptyMechanisms(t *testing.T) {
	e := newUnstartedExecutor(t)
	err := e.UpsertSCRAM(context.Background(), "alice", "pencil", nil)
	assert.Error(t, err)
}

func TestUpsertSCRAMRejectsUnknownMechanism(t *testing.T) {
	e := newUnstartedExecutor(t)
	err := e.UpsertSCRAM(context.Background(), "alice", "pencil", []scram.Mechanism{"SCRAM-SHA-1"})
	assert.Error(t, err)
}

package engine_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/kcsync/pkg/eventobserver"
	"github.com/scramsync/kcsync/pkg/kafkasync"

	"github.com/scramsync/kcsync/pkg/engine"
)

func TestNewBuildsHashProviderAndEventListener(t *testing.T) {
	kafkaCfg := kafkasync.Config{BootstrapServers: []string{"127.0.0.1:1"}, SecurityProtocol: kafkasync.ProtocolPlaintext}
	require.NoError(t, kafkaCfg.Validate())

	e, err := engine.New(kafkaCfg, nil, eventobserver.Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, e.HashProvider)
	assert.NotNil(t, e.EventListener)
	e.Close()
	e.Close() // idempotent
}

func TestRegisterAndLookup(t *testing.T) {
	called := false
	engine.Register("test-factory", func(log zerolog.Logger) (*engine.Engine, error) {
		called = true
		return nil, nil
	})
	f, err := engine.Lookup("test-factory")
	require.NoError(t, err)
	_, _ = f(zerolog.Nop())
	assert.True(t, called)
}

func TestLookupUnknownFactory(t *testing.T) {
	_, err := engine.Lookup("does-not-exist")
	assert.Error(t, err)
}

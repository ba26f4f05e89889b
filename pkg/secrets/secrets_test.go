package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scramsync/kcsync/pkg/secrets"
)

func TestResolvePassesThroughNonVaultValues(t *testing.T) {
	r := &secrets.Resolver{}
	out, err := r.Resolve("plain-value")
	assert.NoError(t, err)
	assert.Equal(t, "plain-value", out)
}

func TestResolvePassesThroughEmptyValue(t *testing.T) {
	r := &secrets.Resolver{}
	out, err := r.Resolve("")
	assert.NoError(t, err)
	assert.Equal(t, "", out)
}

package scram_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/kcsync/pkg/scram"
)

func TestSynthesizeWithSaltIsDeterministic(t *testing.T) {
	salt := make([]byte, scram.SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}

	v1, err := scram.SynthesizeWithSalt("pencil", scram.SCRAMSHA256, 4096, salt, nil)
	require.NoError(t, err)
	v2, err := scram.SynthesizeWithSalt("pencil", scram.SCRAMSHA256, 4096, salt, nil)
	require.NoError(t, err)

	assert.Equal(t, v1.StoredKey, v2.StoredKey)
	assert.Equal(t, v1.ServerKey, v2.ServerKey)
	assert.Equal(t, v1.SaltedPassword, v2.SaltedPassword)
}

func TestSynthesizeFreshSaltsDiffer(t *testing.T) {
	v1, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4096, nil)
	require.NoError(t, err)
	v2, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4096, nil)
	require.NoError(t, err)

	assert.NotEqual(t, v1.Salt, v2.Salt)
	assert.NotEqual(t, v1.StoredKey, v2.StoredKey, "fresh salts must change StoredKey")
	assert.NotEqual(t, v1.ServerKey, v2.ServerKey, "fresh salts must change ServerKey")
}

func TestKeySizesMatchDigest(t *testing.T) {
	v256, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4096, nil)
	require.NoError(t, err)
	assert.Len(t, v256.StoredKey, 32)
	assert.Len(t, v256.ServerKey, 32)

	v512, err := scram.Synthesize("pencil", scram.SCRAMSHA512, 4096, nil)
	require.NoError(t, err)
	assert.Len(t, v512.StoredKey, 64)
	assert.Len(t, v512.ServerKey, 64)

	n, err := scram.KeySize(scram.SCRAMSHA256)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	n, err = scram.KeySize(scram.SCRAMSHA512)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
}

func TestIterationsBelowMinimumRejected(t *testing.T) {
	_, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4095, nil)
	require.Error(t, err)
}

func TestEmptyPasswordRejected(t *testing.T) {
	_, err := scram.Synthesize("", scram.SCRAMSHA256, 4096, nil)
	require.Error(t, err)
}

func TestUnknownMechanismRejected(t *testing.T) {
	_, err := scram.Synthesize("pencil", scram.Mechanism("SCRAM-SHA-1"), 4096, nil)
	require.Error(t, err)
}

func TestNormalizeHookApplied(t *testing.T) {
	called := false
	normalize := func(s string) (string, error) {
		called = true
		return s, nil
	}
	_, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4096, normalize)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestNormalizeHookErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	normalize := func(s string) (string, error) { return "", boom }
	_, err := scram.Synthesize("pencil", scram.SCRAMSHA256, 4096, normalize)
	require.Error(t, err)
}

func TestSynthesizeWithSaltProducesIdenticalVerifiers(t *testing.T) {
	salt := make([]byte, scram.SaltSize)
	for i := range salt {
		salt[i] = byte(i)
	}

	v1, err := scram.SynthesizeWithSalt("pencil", scram.SCRAMSHA512, 4096, salt, nil)
	require.NoError(t, err)
	v2, err := scram.SynthesizeWithSalt("pencil", scram.SCRAMSHA512, 4096, salt, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(v1, v2); diff != "" {
		t.Errorf("verifier mismatch for identical inputs (-first +second):\n%s", diff)
	}
}

func TestDifferentPasswordsProduceDifferentKeys(t *testing.T) {
	salt := make([]byte, scram.SaltSize)
	v1, err := scram.SynthesizeWithSalt("pencil", scram.SCRAMSHA256, 4096, salt, nil)
	require.NoError(t, err)
	v2, err := scram.SynthesizeWithSalt("not-pencil", scram.SCRAMSHA256, 4096, salt, nil)
	require.NoError(t, err)
	assert.NotEqual(t, v1.StoredKey, v2.StoredKey)
}

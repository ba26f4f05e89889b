package hashintercept_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scramsync/kcsync/pkg/correlation"
	"github.com/scramsync/kcsync/pkg/hashintercept"
)

type fakePolicy struct {
	algo  string
	iters int
}

func (f fakePolicy) HashAlgorithm() string { return f.algo }
func (f fakePolicy) HashIterations() int   { return f.iters }

func TestEncodeCredentialDepositsCleartext(t *testing.T) {
	slot := correlation.NewSlot()
	p := hashintercept.New(slot)

	_, err := p.EncodeCredential(context.Background(), "pencil", -1)
	require.NoError(t, err)

	got, ok := slot.Take(correlation.DefaultMaxAge)
	require.True(t, ok)
	assert.Equal(t, "pencil", got)
}

func TestEncodeCredentialEmptyRawDoesNotDeposit(t *testing.T) {
	slot := correlation.NewSlot()
	slot.Set("stale")
	p := hashintercept.New(slot)

	_, err := p.EncodeCredential(context.Background(), "", -1)
	require.NoError(t, err)

	got, ok := slot.Take(correlation.DefaultMaxAge)
	require.True(t, ok, "empty raw must not clobber an existing deposit")
	assert.Equal(t, "stale", got)
}

func TestEncodeCredentialDefaultIterations(t *testing.T) {
	p := hashintercept.New(nil)
	cred, err := p.EncodeCredential(context.Background(), "pencil", -1)
	require.NoError(t, err)
	assert.Equal(t, hashintercept.DefaultIterations, cred.Iterations())
}

func TestEncodeReturnsHashStringWithoutDepositing(t *testing.T) {
	slot := correlation.NewSlot()
	p := hashintercept.New(slot)

	hash, err := p.Encode(context.Background(), "pencil", -1)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, ok := slot.Take(correlation.DefaultMaxAge)
	assert.False(t, ok, "Encode results are never persisted, so nothing should be deposited")
}

func TestVerifyRoundTrip(t *testing.T) {
	p := hashintercept.New(nil)
	cred, err := p.EncodeCredential(context.Background(), "pencil", 10000)
	require.NoError(t, err)

	ok, err := p.Verify(context.Background(), "pencil", cred)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Verify(context.Background(), "not-pencil", cred)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPolicyCheck(t *testing.T) {
	p := hashintercept.New(nil)
	cred, err := p.EncodeCredential(context.Background(), "pencil", 10000)
	require.NoError(t, err)

	assert.True(t, p.PolicyCheck(fakePolicy{algo: hashintercept.Algorithm, iters: 10000}, cred))
	assert.False(t, p.PolicyCheck(fakePolicy{algo: hashintercept.Algorithm, iters: 9999}, cred))
	assert.False(t, p.PolicyCheck(fakePolicy{algo: "bcrypt", iters: 10000}, cred))
}

func TestNilSlotDoesNotPanic(t *testing.T) {
	p := hashintercept.New(nil)
	assert.NotPanics(t, func() {
		_, err := p.EncodeCredential(context.Background(), "pencil", -1)
		require.NoError(t, err)
	})
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubkeyBase58RoundTrip(t *testing.T) {
	const addr = "Eo7WjKq67rjJQSZxS6z3YkapzY3eMj6Xy8X5EQVn5UaB"
	p, err := TryPubkeyFromBase58(addr)
	require.NoError(t, err)
	assert.Equal(t, addr, p.String())
	assert.False(t, p.IsZero())

	q, err := PubkeyFromBytes(p[:])
	require.NoError(t, err)
	assert.True(t, p.Equals(q))
}

func TestPubkeyInvalidInput(t *testing.T) {
	_, err := TryPubkeyFromBase58("0OIl")
	assert.Error(t, err)

	_, err = TryPubkeyFromBase58("3yZe7d")
	assert.Error(t, err, "短地址应该被拒绝")

	_, err = PubkeyFromBytes(make([]byte, 31))
	assert.Error(t, err)

	assert.Panics(t, func() { PubkeyFromBase58("not-base58!") })
}

func TestZeroPubkeyString(t *testing.T) {
	var p Pubkey
	assert.True(t, p.IsZero())
	assert.Equal(t, "11111111111111111111111111111111", p.String())
}

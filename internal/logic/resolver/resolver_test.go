package resolver

import (
	"crypto/rand"
	"errors"
	"testing"

	"anchor-snapshot-sol/internal/logic/idl/idltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountDiscriminatorKnownValues(t *testing.T) {
	// Meteora dynamic AMM 链上 Pool 账户的前 8 字节
	assert.Equal(t, "f19a6d0411b16dbc", AccountDiscriminator("Pool").String())
	assert.Equal(t, uint64(0xf19a6d0411b16dbc), AccountDiscriminator("Pool").Uint64())
	assert.Equal(t, "be6a7906c8b6154b", AccountDiscriminator("LockEscrow").String())
	assert.Equal(t, "268996af22d33435", AccountDiscriminator("Widget").String())
}

func TestResolveEveryAccountRegardlessOfTail(t *testing.T) {
	s := idltest.MeteoraSchema(t)
	r := New(s)

	tails := [][]byte{nil, {0x00}, {0xff, 0xfe, 0xfd}, make([]byte, 1024)}
	_, _ = rand.Read(tails[3])

	for _, name := range s.AccountNames() {
		d, ok := r.Discriminator(name)
		require.True(t, ok)
		for _, tail := range tails {
			blob := append(append([]byte{}, d[:]...), tail...)
			got, rest, err := r.Resolve(blob)
			require.NoError(t, err)
			assert.Equal(t, name, got)
			assert.Equal(t, len(tail), len(rest))
		}
	}
}

func TestResolveTooShort(t *testing.T) {
	r := New(idltest.WidgetSchema(t))
	empty := New(idltest.MustLoad(t, []byte(`{"accounts": []}`)))

	for n := 0; n < DiscriminatorSize; n++ {
		blob := make([]byte, n)
		_, _, err := r.Resolve(blob)
		assert.ErrorIs(t, err, ErrTooShort)

		_, _, err = empty.Resolve(blob)
		assert.ErrorIs(t, err, ErrTooShort, "与 schema 无关")
	}
}

func TestResolveUnknown(t *testing.T) {
	r := New(idltest.WidgetSchema(t))
	blob := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x01}

	_, _, err := r.Resolve(blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknown))

	ue, ok := IsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, "deadbeef00112233", ue.Tag.String())
}

func TestResolveFirstMatchInDeclarationOrder(t *testing.T) {
	// 构造一个所有名字都冲突的 derive，验证只保留声明顺序中的第一个
	tag := AccountDiscriminator("Shared")
	r := newResolver([]string{"First", "Second", "Third"}, func(string) Discriminator { return tag })

	name, rest, err := r.Resolve(append(tag[:], 0x01))
	require.NoError(t, err)
	assert.Equal(t, "First", name)
	assert.Equal(t, []byte{0x01}, rest)
}

func TestNamesDeclarationOrder(t *testing.T) {
	r := New(idltest.MeteoraSchema(t))
	assert.Equal(t, []string{"Config", "LockEscrow", "Pool"}, r.Names())
}

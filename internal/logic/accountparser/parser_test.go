package accountparser_test

import (
	"errors"
	"testing"

	"anchor-snapshot-sol/internal/logic/accountparser"
	"anchor-snapshot-sol/internal/logic/idl/idltest"
	"anchor-snapshot-sol/internal/logic/layout"
	"anchor-snapshot-sol/internal/logic/resolver"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var owner = types.Pubkey{31: 0x01}

func blob(name string, data ...byte) []byte {
	d := resolver.AccountDiscriminator(name)
	return append(d[:], data...)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.SetLogger(zap.New(core))
	t.Cleanup(func() { logger.SetLogger(zap.NewNop()) })
	return logs
}

func TestParseSchemaDecoder(t *testing.T) {
	p := accountparser.NewParser(idltest.WidgetSchema(t), accountparser.SchemaHandlers("Widget"))

	acc, err := p.Parse(owner, blob("Widget", 0x01))
	require.NoError(t, err)
	assert.Equal(t, &accountparser.DecodedAccount{
		Pubkey:      owner.String(),
		AccountType: "Widget",
		Data:        map[string]interface{}{"enabled": true},
	}, acc)
	assert.Equal(t, []string{"Widget"}, p.Handled())
}

func TestParseFallbacks(t *testing.T) {
	logs := observeLogs(t)
	p := accountparser.NewParser(idltest.WidgetSchema(t), accountparser.SchemaHandlers("Widget"))

	// 已识别但没有 handler
	acc, err := p.Parse(owner, blob("Gadget", 1, 2, 3, 4))
	require.NoError(t, err)
	assert.True(t, acc.Fallback)
	assert.Equal(t, "Gadget", acc.AccountType)
	assert.Equal(t, map[string]interface{}{"discriminator": "f560e17fddff23be"}, acc.Data)

	// discriminator 未知
	acc, err = p.Parse(owner, []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 9})
	require.NoError(t, err)
	assert.True(t, acc.Fallback)
	assert.Equal(t, accountparser.UnknownAccountType, acc.AccountType)
	assert.Equal(t, map[string]interface{}{"discriminator": "deadbeef00000000"}, acc.Data)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 2)
	assert.Contains(t, warns[0].Message, "unhandled account type: Gadget")
	assert.Contains(t, warns[1].Message, "unknown discriminator: deadbeef00000000")
}

func TestParseTooShort(t *testing.T) {
	p := accountparser.NewParser(idltest.WidgetSchema(t))
	_, err := p.Parse(owner, []byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrTooShort)
}

func TestParseDecodeError(t *testing.T) {
	p := accountparser.NewParser(idltest.WidgetSchema(t), accountparser.SchemaHandlers("Widget", "Gadget"))

	_, err := p.Parse(owner, blob("Gadget", 1, 2, 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, layout.ErrTruncated)
	de, ok := layout.IsDecodeError(err)
	require.True(t, ok)
	assert.Equal(t, "Gadget.quad[3]", de.Path)
}

func TestParseRecoversHandlerPanic(t *testing.T) {
	observeLogs(t)
	boom := func(m map[string]accountparser.AccountDecoder) {
		m["Widget"] = func(*accountparser.DecodeContext, []byte) (interface{}, error) {
			var arr []int
			return arr[3], nil
		}
	}
	p := accountparser.NewParser(idltest.WidgetSchema(t), boom)

	acc, err := p.Parse(owner, blob("Widget", 1))
	require.Error(t, err)
	assert.Nil(t, acc)
	assert.True(t, errors.Is(err, layout.ErrFieldMismatch))
}

func TestDiscriminatorOnlyAndOverride(t *testing.T) {
	logs := observeLogs(t)
	only := func(m map[string]accountparser.AccountDecoder) {
		m["Gadget"] = accountparser.DiscriminatorOnly
	}
	// 后注册的覆盖先注册的
	p := accountparser.NewParser(idltest.WidgetSchema(t), accountparser.SchemaHandlers("Gadget"), only)

	acc, err := p.Parse(owner, blob("Gadget"))
	require.NoError(t, err)
	assert.False(t, acc.Fallback)
	assert.Equal(t, map[string]interface{}{"discriminator": "f560e17fddff23be"}, acc.Data)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestNewParserWarnsOnForeignHandler(t *testing.T) {
	logs := observeLogs(t)
	accountparser.NewParser(idltest.WidgetSchema(t), accountparser.SchemaHandlers("Pool"))
	assert.Equal(t, 1, logs.FilterMessageSnippet("no such account").Len())
}

package idl_test

import (
	"errors"
	"testing"

	"anchor-snapshot-sol/internal/logic/idl"
	"anchor-snapshot-sol/internal/logic/idl/idltest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMeteoraIDL(t *testing.T) {
	s, err := idl.Load(idltest.MeteoraPoolIDL)
	require.NoError(t, err)

	assert.Equal(t, "amm", s.Name)
	assert.Equal(t, "0.4.12", s.Version)
	assert.Equal(t, []string{"Config", "LockEscrow", "Pool"}, s.AccountNames())
	assert.Len(t, s.Types, 9)
	assert.Len(t, s.Instructions, 2)
	assert.Len(t, s.Events, 2)
	assert.Len(t, s.Errors, 3)

	// instructions / events 原样保留
	assert.JSONEq(t, `{"option": "publicKey"}`, string(s.Instructions[1].Args[2].Type))
	assert.Equal(t, 6001, s.Errors[1].Code)

	pool, ok := s.Account("Pool")
	require.True(t, ok)
	assert.Equal(t, idl.KindStruct, pool.Type.Kind)
	require.Len(t, pool.Type.Fields, 21)
	assert.Equal(t, idl.ArrayType(idl.PrimitiveType(idl.U8), 24), pool.Type.Fields[12].Type)
	assert.Equal(t, idl.DefinedType("CurveType"), pool.Type.Fields[20].Type)

	curve, ok := s.Lookup("CurveType")
	require.True(t, ok)
	require.Len(t, curve.Type.Variants, 2)
	assert.Empty(t, curve.Type.Variants[0].Fields)
	assert.Len(t, curve.Type.Variants[1].Fields, 4)
	assert.False(t, curve.Type.Variants[1].Tuple)

	// accounts 也可以被 Defined 引用
	_, ok = s.Lookup("LockEscrow")
	assert.True(t, ok)
	_, ok = s.Account("PoolFees")
	assert.False(t, ok, "types 不应出现在 accounts 索引里")
}

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want idl.FieldType
	}{
		{"primitive", `"u64"`, idl.PrimitiveType(idl.U64)},
		{"pubkey alias", `"pubkey"`, idl.PrimitiveType(idl.PublicKey)},
		{"defined", `{"defined": "PoolFees"}`, idl.DefinedType("PoolFees")},
		{"defined object", `{"defined": {"name": "PoolFees"}}`, idl.DefinedType("PoolFees")},
		{"array", `{"array": ["u8", 4]}`, idl.ArrayType(idl.PrimitiveType(idl.U8), 4)},
		{"nested array", `{"array": [{"array": ["u64", 2]}, 3]}`,
			idl.ArrayType(idl.ArrayType(idl.PrimitiveType(idl.U64), 2), 3)},
		{"option", `{"option": "publicKey"}`, idl.OptionType(idl.PrimitiveType(idl.PublicKey))},
		{"vec", `{"vec": {"defined": "Depeg"}}`, idl.VecType(idl.DefinedType("Depeg"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := idl.ParseFieldType("f", idl.RawJSON(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFieldTypeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown primitive", `"u256"`},
		{"empty", ``},
		{"number", `42`},
		{"two keys", `{"defined": "A", "option": "u8"}`},
		{"unknown key", `{"coption": "u8"}`},
		{"negative length", `{"array": ["u8", -1]}`},
		{"array arity", `{"array": ["u8"]}`},
		{"bad element", `{"array": ["x", 2]}`},
		{"empty defined", `{"defined": ""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idl.ParseFieldType("f", idl.RawJSON(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, idl.ErrMalformed), "got %v", err)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind error
	}{
		{
			name: "invalid json",
			raw:  `{"name": `,
			kind: idl.ErrMalformed,
		},
		{
			name: "unresolved reference",
			raw: `{"accounts": [{"name": "A", "type": {"kind": "struct", "fields": [
				{"name": "x", "type": {"defined": "Missing"}}]}}]}`,
			kind: idl.ErrUnresolvedReference,
		},
		{
			name: "unresolved inside option",
			raw: `{"accounts": [{"name": "A", "type": {"kind": "struct", "fields": [
				{"name": "x", "type": {"option": {"defined": "Missing"}}}]}}]}`,
			kind: idl.ErrUnresolvedReference,
		},
		{
			name: "unresolved in variant field",
			raw: `{"types": [{"name": "E", "type": {"kind": "enum", "variants": [
				{"name": "V", "fields": [{"name": "x", "type": {"defined": "Missing"}}]}]}}]}`,
			kind: idl.ErrUnresolvedReference,
		},
		{
			name: "duplicate account",
			raw: `{"accounts": [
				{"name": "A", "type": {"kind": "struct", "fields": []}},
				{"name": "A", "type": {"kind": "struct", "fields": []}}]}`,
			kind: idl.ErrMalformed,
		},
		{
			name: "duplicate variant",
			raw: `{"types": [{"name": "E", "type": {"kind": "enum", "variants": [
				{"name": "V"}, {"name": "V"}]}}]}`,
			kind: idl.ErrMalformed,
		},
		{
			name: "unknown kind",
			raw:  `{"types": [{"name": "T", "type": {"kind": "union", "fields": []}}]}`,
			kind: idl.ErrMalformed,
		},
		{
			name: "missing type",
			raw:  `{"accounts": [{"name": "A"}]}`,
			kind: idl.ErrMalformed,
		},
		{
			name: "infinitely sized struct",
			raw: `{"types": [
				{"name": "A", "type": {"kind": "struct", "fields": [{"name": "b", "type": {"defined": "B"}}]}},
				{"name": "B", "type": {"kind": "struct", "fields": [{"name": "a", "type": {"array": [{"defined": "A"}, 2]}}]}}]}`,
			kind: idl.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idl.Load([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			se, ok := idl.IsSchemaError(err)
			require.True(t, ok)
			if errors.Is(tt.kind, idl.ErrUnresolvedReference) {
				assert.Equal(t, "Missing", se.Name)
			}
		})
	}
}

func TestLoadRecursionThroughIndirection(t *testing.T) {
	// 通过 option / enum 的递归每层都会消耗字节，允许
	raw := `{"types": [
		{"name": "Node", "type": {"kind": "struct", "fields": [
			{"name": "value", "type": "u8"},
			{"name": "next", "type": {"option": {"defined": "Node"}}}]}},
		{"name": "Tree", "type": {"kind": "enum", "variants": [
			{"name": "Leaf"},
			{"name": "Branch", "fields": [{"defined": "Tree"}, {"defined": "Tree"}]}]}}]}`
	s, err := idl.Load([]byte(raw))
	require.NoError(t, err)

	tree, ok := s.Lookup("Tree")
	require.True(t, ok)
	branch := tree.Type.Variants[1]
	assert.True(t, branch.Tuple)
	require.Len(t, branch.Fields, 2)
	assert.Equal(t, "0", branch.Fields[0].Name)
	assert.Equal(t, "1", branch.Fields[1].Name)
}

func TestFieldTypeString(t *testing.T) {
	ft := idl.OptionType(idl.ArrayType(idl.DefinedType("Depeg"), 2))
	assert.Equal(t, "Option<[Depeg; 2]>", ft.String())
	assert.Equal(t, "Vec<u8>", idl.VecType(idl.PrimitiveType(idl.U8)).String())
}

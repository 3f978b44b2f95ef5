// Package idltest 提供测试共用的 IDL 样本
package idltest

import (
	_ "embed"
	"testing"

	"anchor-snapshot-sol/internal/logic/idl"
)

// MeteoraPoolIDL Meteora dynamic AMM 的 IDL（账户相关部分 + 少量 instructions/events/errors）
//
//go:embed meteora_pool.json
var MeteoraPoolIDL []byte

// WidgetIDL 最小样例：Widget { enabled: bool }
const WidgetIDL = `{
  "version": "0.1.0",
  "name": "widgets",
  "instructions": [],
  "accounts": [
    {"name": "Widget", "type": {"kind": "struct", "fields": [{"name": "enabled", "type": "bool"}]}},
    {"name": "Gadget", "type": {"kind": "struct", "fields": [{"name": "quad", "type": {"array": ["u8", 4]}}]}}
  ],
  "types": []
}`

// MustLoad 解析失败直接让测试失败
func MustLoad(t testing.TB, raw []byte) *idl.Schema {
	t.Helper()
	s, err := idl.Load(raw)
	if err != nil {
		t.Fatalf("load idl: %v", err)
	}
	return s
}

func MeteoraSchema(t testing.TB) *idl.Schema {
	t.Helper()
	return MustLoad(t, MeteoraPoolIDL)
}

func WidgetSchema(t testing.TB) *idl.Schema {
	t.Helper()
	return MustLoad(t, []byte(WidgetIDL))
}

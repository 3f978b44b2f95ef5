package accountparser

import (
	"anchor-snapshot-sol/internal/logic/layout"
	"anchor-snapshot-sol/internal/logic/resolver"
	"anchor-snapshot-sol/internal/pkg/types"
)

// DecodeContext 是传入每个账户解码 handler 的上下文
type DecodeContext struct {
	Pubkey        types.Pubkey           // 账户地址
	AccountType   string                 // 已识别的账户类型名
	Discriminator resolver.Discriminator // 账户数据前 8 字节
	Layout        *layout.Decoder        // 通用 IDL 布局解码器，可用于 handler 内部回退
}

// AccountDecoder 定义了统一的账户解码函数签名。
//
// 参数：
//   - ctx:  当前账户的解码上下文
//   - data: 去掉 8 字节 discriminator 后的账户数据
//
// 返回值为可直接 JSON 序列化的结果；结构性错误应返回 *layout.DecodeError
type AccountDecoder func(ctx *DecodeContext, data []byte) (interface{}, error)

// SchemaDecoder 按 IDL 布局通用解码 name 对应的账户
func SchemaDecoder(name string) AccountDecoder {
	return func(ctx *DecodeContext, data []byte) (interface{}, error) {
		return ctx.Layout.Decode(name, data)
	}
}

// SchemaHandlers 为一组账户类型注册通用布局解码
func SchemaHandlers(names ...string) func(map[string]AccountDecoder) {
	return func(m map[string]AccountDecoder) {
		for _, name := range names {
			m[name] = SchemaDecoder(name)
		}
	}
}

// DiscriminatorOnly 只记录 discriminator，不解析内容。用于已知但不关心内容的账户类型，不会产生告警
func DiscriminatorOnly(ctx *DecodeContext, _ []byte) (interface{}, error) {
	return discriminatorData(ctx.Discriminator), nil
}

func discriminatorData(d resolver.Discriminator) map[string]interface{} {
	return map[string]interface{}{"discriminator": d.String()}
}

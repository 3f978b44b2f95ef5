package accountparser

import (
	"fmt"
	"runtime/debug"
	"sort"

	"anchor-snapshot-sol/internal/logic/idl"
	"anchor-snapshot-sol/internal/logic/layout"
	"anchor-snapshot-sol/internal/logic/resolver"
	"anchor-snapshot-sol/internal/pkg/logger"
	"anchor-snapshot-sol/internal/pkg/types"
)

// UnknownAccountType discriminator 未匹配任何账户类型时使用的类型名
const UnknownAccountType = "Unknown"

// DecodedAccount 单个账户的解码结果，也是快照中的一条记录
type DecodedAccount struct {
	Pubkey      string      `json:"pubkey"`
	AccountType string      `json:"account_type"`
	Data        interface{} `json:"data"`

	// Fallback 为 true 表示只记录了 discriminator，没有结构化解码
	Fallback bool `json:"-"`
}

// Parser 组合 discriminator 识别、handler 路由与 fallback。构造后只读，可并发调用 Parse
type Parser struct {
	resolver *resolver.Resolver
	layout   *layout.Decoder
	handlers map[string]AccountDecoder
}

// NewParser 用 schema 构建 Parser，registers 按顺序写入 handler 路由表，后注册的覆盖先注册的
func NewParser(schema *idl.Schema, registers ...func(map[string]AccountDecoder)) *Parser {
	p := &Parser{
		resolver: resolver.New(schema),
		layout:   layout.NewDecoder(schema),
		handlers: make(map[string]AccountDecoder),
	}
	for _, register := range registers {
		register(p.handlers)
	}
	for name := range p.handlers {
		if _, ok := schema.Account(name); !ok {
			logger.Warnf("[accountparser] handler registered for %s, but idl %s has no such account", name, schema.Name)
		}
	}
	return p
}

func (p *Parser) Resolver() *resolver.Resolver {
	return p.resolver
}

func (p *Parser) Layout() *layout.Decoder {
	return p.layout
}

// Handled 返回已注册 handler 的账户类型名（排序后）
func (p *Parser) Handled() []string {
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse 解码单个账户。
//   - 数据不足 8 字节: 返回 resolver.ErrTooShort
//   - discriminator 未知: fallback 记录 {account_type: "Unknown", data: {discriminator}}
//   - 已识别但没有 handler: fallback 记录，account_type 为识别出的类型名
//   - handler 出错或 panic: 返回 *layout.DecodeError
func (p *Parser) Parse(pubkey types.Pubkey, blob []byte) (*DecodedAccount, error) {
	name, data, err := p.resolver.Resolve(blob)
	if err != nil {
		if ue, ok := resolver.IsUnknown(err); ok {
			logger.Warnf("[accountparser] address: %s, unknown discriminator: %s", pubkey, ue.Tag)
			return fallback(pubkey, UnknownAccountType, ue.Tag), nil
		}
		return nil, fmt.Errorf("account %s: %w", pubkey, err)
	}

	tag, _ := resolver.FromBlob(blob)
	handler, ok := p.handlers[name]
	if !ok {
		logger.Warnf("[accountparser] address: %s, unhandled account type: %s (discriminator: %s)", pubkey, name, tag)
		return fallback(pubkey, name, tag), nil
	}

	ctx := &DecodeContext{
		Pubkey:        pubkey,
		AccountType:   name,
		Discriminator: tag,
		Layout:        p.layout,
	}
	value, err := invoke(handler, ctx, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s account %s: %w", name, pubkey, err)
	}
	return &DecodedAccount{
		Pubkey:      pubkey.String(),
		AccountType: name,
		Data:        value,
	}, nil
}

func invoke(handler AccountDecoder, ctx *DecodeContext, data []byte) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[accountparser][panic] decode %s panic: %v, address=%s\nstack: %s",
				ctx.AccountType, r, ctx.Pubkey, debug.Stack())
			value = nil
			err = &layout.DecodeError{
				Kind: layout.ErrFieldMismatch,
				Path: ctx.AccountType,
				Msg:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	return handler(ctx, data)
}

func fallback(pubkey types.Pubkey, accountType string, tag resolver.Discriminator) *DecodedAccount {
	return &DecodedAccount{
		Pubkey:      pubkey.String(),
		AccountType: accountType,
		Data:        discriminatorData(tag),
		Fallback:    true,
	}
}

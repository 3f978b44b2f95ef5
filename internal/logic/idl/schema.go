package idl

import (
	jsoniter "github.com/json-iterator/go"
)

type RawJSON = jsoniter.RawMessage

// Schema 加载后的 Anchor IDL，只读；可以在多个解码协程间共享
type Schema struct {
	Version      string
	Name         string
	Docs         []string
	Instructions []Instruction
	Accounts     []TypeDef // 保持声明顺序，discriminator 冲突时按此顺序取第一个
	Types        []TypeDef
	Events       []Event
	Errors       []ErrorCode

	defs     map[string]*TypeDef // types + accounts，Defined 引用从这里查
	accounts map[string]*TypeDef
}

// Lookup 按名字查找具名定义，types 优先于 accounts
func (s *Schema) Lookup(name string) (*TypeDef, bool) {
	def, ok := s.defs[name]
	return def, ok
}

// Account 仅在 accounts 中查找
func (s *Schema) Account(name string) (*TypeDef, bool) {
	def, ok := s.accounts[name]
	return def, ok
}

// AccountNames 按声明顺序返回账户类型名
func (s *Schema) AccountNames() []string {
	names := make([]string, 0, len(s.Accounts))
	for i := range s.Accounts {
		names = append(names, s.Accounts[i].Name)
	}
	return names
}

func (s *Schema) buildIndex() {
	s.defs = make(map[string]*TypeDef, len(s.Types)+len(s.Accounts))
	s.accounts = make(map[string]*TypeDef, len(s.Accounts))
	for i := range s.Types {
		s.defs[s.Types[i].Name] = &s.Types[i]
	}
	for i := range s.Accounts {
		def := &s.Accounts[i]
		s.accounts[def.Name] = def
		if _, exists := s.defs[def.Name]; !exists {
			s.defs[def.Name] = def
		}
	}
}

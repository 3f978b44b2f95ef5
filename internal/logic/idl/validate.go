package idl

import "fmt"

func (s *Schema) validate() error {
	for i := range s.Accounts {
		if err := s.validateDef("accounts", &s.Accounts[i]); err != nil {
			return err
		}
	}
	for i := range s.Types {
		if err := s.validateDef("types", &s.Types[i]); err != nil {
			return err
		}
	}
	return s.checkFiniteSize()
}

func (s *Schema) validateDef(section string, def *TypeDef) error {
	path := fmt.Sprintf("%s[%s]", section, def.Name)
	for _, f := range def.Type.Fields {
		if err := s.validateType(path+".fields["+f.Name+"]", f.Type); err != nil {
			return err
		}
	}
	for _, v := range def.Type.Variants {
		for _, f := range v.Fields {
			if err := s.validateType(path+".variants["+v.Name+"]."+f.Name, f.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) validateType(path string, t FieldType) error {
	switch t.Kind {
	case KindPrimitive:
		if _, ok := ParsePrimitive(string(t.Primitive)); !ok {
			return malformed(path, "unknown primitive type %q", t.Primitive)
		}
		return nil
	case KindDefined:
		if _, ok := s.defs[t.Defined]; !ok {
			return unresolved(path, t.Defined)
		}
		return nil
	case KindArray:
		if t.Len < 0 {
			return malformed(path, "negative array length %d", t.Len)
		}
		return s.validateType(path+"[]", *t.Elem)
	case KindOption, KindVec:
		if t.Elem == nil {
			return malformed(path, "%s without inner type", t.Kind)
		}
		return s.validateType(path, *t.Elem)
	default:
		return malformed(path, "unknown type kind %s", t.Kind)
	}
}

// checkFiniteSize 拒绝不消耗任何字节就能无限递归的定义，例如 struct A { a: A }。
// 经过 option / vec / enum 的递归每层至少消耗 1 字节，数据有限时必然终止，因此允许。
func (s *Schema) checkFiniteSize() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(s.defs))

	var visit func(name string) error
	var walk func(t FieldType) error

	walk = func(t FieldType) error {
		switch t.Kind {
		case KindDefined:
			return visit(t.Defined)
		case KindArray:
			if t.Len == 0 {
				return nil
			}
			return walk(*t.Elem)
		default:
			return nil
		}
	}

	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return malformed(name, "recursive type without indirection")
		case done:
			return nil
		}
		state[name] = visiting
		def := s.defs[name]
		if def.Type.Kind == KindStruct {
			for _, f := range def.Type.Fields {
				if err := walk(f.Type); err != nil {
					return err
				}
			}
		}
		state[name] = done
		return nil
	}

	for name := range s.defs {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

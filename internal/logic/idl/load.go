package idl

import (
	"bytes"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 原始 JSON 结构，字段类型先保持 RawJSON，随后统一转换为闭合的 FieldType
type rawIdl struct {
	Version      string        `json:"version"`
	Name         string        `json:"name"`
	Docs         []string      `json:"docs"`
	Instructions []Instruction `json:"instructions"`
	Accounts     []rawTypeDef  `json:"accounts"`
	Types        []rawTypeDef  `json:"types"`
	Events       []Event       `json:"events"`
	Errors       []ErrorCode   `json:"errors"`
}

type rawTypeDef struct {
	Name string        `json:"name"`
	Docs []string      `json:"docs"`
	Type *rawTypeDefTy `json:"type"`
}

type rawTypeDefTy struct {
	Kind     string       `json:"kind"`
	Fields   []rawField   `json:"fields"`
	Variants []rawVariant `json:"variants"`
}

type rawField struct {
	Name string   `json:"name"`
	Docs []string `json:"docs"`
	Type RawJSON  `json:"type"`
}

type rawVariant struct {
	Name   string    `json:"name"`
	Fields []RawJSON `json:"fields"`
}

// Load 解析 Anchor IDL 文本为 Schema。
// 语法错误、未知类型形状、重复名称返回 ErrMalformed；Defined 引用不存在返回 ErrUnresolvedReference。
func Load(raw []byte) (*Schema, error) {
	var r rawIdl
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, malformed("", "invalid json: %v", err)
	}

	s := &Schema{
		Version:      r.Version,
		Name:         r.Name,
		Docs:         r.Docs,
		Instructions: r.Instructions,
		Events:       r.Events,
		Errors:       r.Errors,
	}

	var err error
	if s.Accounts, err = convertTypeDefs("accounts", r.Accounts); err != nil {
		return nil, err
	}
	if s.Types, err = convertTypeDefs("types", r.Types); err != nil {
		return nil, err
	}
	s.buildIndex()

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func convertTypeDefs(section string, raws []rawTypeDef) ([]TypeDef, error) {
	defs := make([]TypeDef, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, rd := range raws {
		if rd.Name == "" {
			return nil, malformed(fmt.Sprintf("%s[%d]", section, i), "missing name")
		}
		path := fmt.Sprintf("%s[%s]", section, rd.Name)
		if _, dup := seen[rd.Name]; dup {
			return nil, malformed(path, "duplicate name")
		}
		seen[rd.Name] = struct{}{}

		if rd.Type == nil {
			return nil, malformed(path, "missing type")
		}
		ty, err := convertTypeDefTy(path, rd.Type)
		if err != nil {
			return nil, err
		}
		defs = append(defs, TypeDef{Name: rd.Name, Docs: rd.Docs, Type: ty})
	}
	return defs, nil
}

func convertTypeDefTy(path string, rt *rawTypeDefTy) (TypeDefTy, error) {
	switch DefKind(rt.Kind) {
	case KindStruct:
		if len(rt.Variants) > 0 {
			return TypeDefTy{}, malformed(path, "struct must not declare variants")
		}
		fields, err := convertFields(path, rt.Fields)
		if err != nil {
			return TypeDefTy{}, err
		}
		return TypeDefTy{Kind: KindStruct, Fields: fields}, nil

	case KindEnum:
		if len(rt.Fields) > 0 {
			return TypeDefTy{}, malformed(path, "enum must not declare fields")
		}
		if len(rt.Variants) > 256 {
			return TypeDefTy{}, malformed(path, "enum has %d variants, discriminant is one byte", len(rt.Variants))
		}
		variants := make([]Variant, 0, len(rt.Variants))
		seen := make(map[string]struct{}, len(rt.Variants))
		for i, rv := range rt.Variants {
			if rv.Name == "" {
				return TypeDefTy{}, malformed(fmt.Sprintf("%s.variants[%d]", path, i), "missing name")
			}
			vpath := fmt.Sprintf("%s.variants[%s]", path, rv.Name)
			if _, dup := seen[rv.Name]; dup {
				return TypeDefTy{}, malformed(vpath, "duplicate variant name")
			}
			seen[rv.Name] = struct{}{}

			v, err := convertVariant(vpath, rv)
			if err != nil {
				return TypeDefTy{}, err
			}
			variants = append(variants, v)
		}
		return TypeDefTy{Kind: KindEnum, Variants: variants}, nil

	default:
		return TypeDefTy{}, malformed(path, "unknown kind %q", rt.Kind)
	}
}

func convertFields(path string, raws []rawField) ([]Field, error) {
	fields := make([]Field, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for i, rf := range raws {
		if rf.Name == "" {
			return nil, malformed(fmt.Sprintf("%s.fields[%d]", path, i), "missing name")
		}
		fpath := fmt.Sprintf("%s.fields[%s]", path, rf.Name)
		if _, dup := seen[rf.Name]; dup {
			return nil, malformed(fpath, "duplicate field name")
		}
		seen[rf.Name] = struct{}{}

		ft, err := ParseFieldType(fpath, rf.Type)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: rf.Name, Docs: rf.Docs, Type: ft})
	}
	return fields, nil
}

// convertVariant 变体字段既可能是 {name,type} 具名字段，也可能是元组形式的裸类型
func convertVariant(path string, rv rawVariant) (Variant, error) {
	v := Variant{Name: rv.Name}
	if len(rv.Fields) == 0 {
		return v, nil
	}

	var named []rawField
	for i, raw := range rv.Fields {
		var probe struct {
			Name string  `json:"name"`
			Type RawJSON `json:"type"`
		}
		isNamed := bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) &&
			json.Unmarshal(raw, &probe) == nil && probe.Name != "" && len(probe.Type) > 0
		if i == 0 {
			v.Tuple = !isNamed
		} else if v.Tuple == isNamed {
			return Variant{}, malformed(path, "mixes named and tuple fields")
		}

		if v.Tuple {
			ft, err := ParseFieldType(fmt.Sprintf("%s.fields[%d]", path, i), raw)
			if err != nil {
				return Variant{}, err
			}
			v.Fields = append(v.Fields, Field{Name: strconv.Itoa(i), Type: ft})
			continue
		}
		var rf rawField
		if err := json.Unmarshal(raw, &rf); err != nil {
			return Variant{}, malformed(fmt.Sprintf("%s.fields[%d]", path, i), "invalid field: %v", err)
		}
		named = append(named, rf)
	}

	if !v.Tuple {
		fields, err := convertFields(path, named)
		if err != nil {
			return Variant{}, err
		}
		v.Fields = fields
	}
	return v, nil
}

// ParseFieldType 将 IDL 中的类型 JSON 解析为闭合的 FieldType：
//   - "u64" 之类的裸字符串
//   - {"defined": "Name"} 或 {"defined": {"name": "Name"}}
//   - {"array": [<elem>, <len>]}
//   - {"option": <inner>}
//   - {"vec": <inner>}
func ParseFieldType(path string, raw RawJSON) (FieldType, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return FieldType{}, malformed(path, "missing type")
	}

	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return FieldType{}, malformed(path, "invalid type string: %v", err)
		}
		p, ok := ParsePrimitive(name)
		if !ok {
			return FieldType{}, malformed(path, "unknown primitive type %q", name)
		}
		return PrimitiveType(p), nil

	case '{':
		var obj map[string]RawJSON
		if err := json.Unmarshal(raw, &obj); err != nil {
			return FieldType{}, malformed(path, "invalid type object: %v", err)
		}
		if len(obj) != 1 {
			return FieldType{}, malformed(path, "type object must have exactly one key, got %d", len(obj))
		}
		for key, val := range obj {
			return parseCompound(path, key, val)
		}
	}
	return FieldType{}, malformed(path, "unrecognized type %s", string(raw))
}

func parseCompound(path, key string, val RawJSON) (FieldType, error) {
	switch key {
	case "defined":
		name, err := parseDefinedName(val)
		if err != nil || name == "" {
			return FieldType{}, malformed(path, "invalid defined reference %s", string(val))
		}
		return DefinedType(name), nil

	case "array":
		var parts []RawJSON
		if err := json.Unmarshal(val, &parts); err != nil || len(parts) != 2 {
			return FieldType{}, malformed(path, "array must be [element, length]")
		}
		elem, err := ParseFieldType(path+"[]", parts[0])
		if err != nil {
			return FieldType{}, err
		}
		var n int64
		if err := json.Unmarshal(parts[1], &n); err != nil {
			return FieldType{}, malformed(path, "array length must be an integer, got %s", string(parts[1]))
		}
		if n < 0 {
			return FieldType{}, malformed(path, "negative array length %d", n)
		}
		return ArrayType(elem, int(n)), nil

	case "option":
		inner, err := ParseFieldType(path+"?", val)
		if err != nil {
			return FieldType{}, err
		}
		return OptionType(inner), nil

	case "vec":
		inner, err := ParseFieldType(path+"[]", val)
		if err != nil {
			return FieldType{}, err
		}
		return VecType(inner), nil

	default:
		return FieldType{}, malformed(path, "unsupported type key %q", key)
	}
}

func parseDefinedName(val RawJSON) (string, error) {
	var name string
	if err := json.Unmarshal(val, &name); err == nil {
		return name, nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(val, &obj); err != nil {
		return "", err
	}
	return obj.Name, nil
}

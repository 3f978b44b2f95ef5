package idl

import (
	"fmt"
	"strconv"
)

// Primitive IDL 中以字符串表示的基础类型
type Primitive string

const (
	Bool      Primitive = "bool"
	U8        Primitive = "u8"
	I8        Primitive = "i8"
	U16       Primitive = "u16"
	I16       Primitive = "i16"
	U32       Primitive = "u32"
	I32       Primitive = "i32"
	U64       Primitive = "u64"
	I64       Primitive = "i64"
	U128      Primitive = "u128"
	I128      Primitive = "i128"
	F32       Primitive = "f32"
	F64       Primitive = "f64"
	PublicKey Primitive = "publicKey"
	String    Primitive = "string"
	Bytes     Primitive = "bytes"
)

var primitives = map[string]Primitive{
	"bool": Bool, "u8": U8, "i8": I8, "u16": U16, "i16": I16,
	"u32": U32, "i32": I32, "u64": U64, "i64": I64,
	"u128": U128, "i128": I128, "f32": F32, "f64": F64,
	"publicKey": PublicKey, "pubkey": PublicKey,
	"string": String, "bytes": Bytes,
}

// ParsePrimitive 未知的基础类型返回 false
func ParsePrimitive(s string) (Primitive, bool) {
	p, ok := primitives[s]
	return p, ok
}

// Size 定长基础类型的字节数；string/bytes 为变长，返回 -1
func (p Primitive) Size() int {
	switch p {
	case Bool, U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	case U128, I128:
		return 16
	case PublicKey:
		return 32
	default:
		return -1
	}
}

// TypeKind FieldType 的变体标签
type TypeKind uint8

const (
	KindPrimitive TypeKind = iota + 1
	KindDefined
	KindArray
	KindOption
	KindVec
)

func (k TypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindDefined:
		return "defined"
	case KindArray:
		return "array"
	case KindOption:
		return "option"
	case KindVec:
		return "vec"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// FieldType 字段类型，闭合的 tagged union，加载完成后不再有歧义：
//   - KindPrimitive: Primitive
//   - KindDefined:   Defined（指向 types 或 accounts 中的同名定义）
//   - KindArray:     Elem + Len
//   - KindOption:    Elem
//   - KindVec:       Elem（u32 长度前缀）
type FieldType struct {
	Kind      TypeKind
	Primitive Primitive
	Defined   string
	Elem      *FieldType
	Len       int
}

func PrimitiveType(p Primitive) FieldType {
	return FieldType{Kind: KindPrimitive, Primitive: p}
}

func DefinedType(name string) FieldType {
	return FieldType{Kind: KindDefined, Defined: name}
}

func ArrayType(elem FieldType, n int) FieldType {
	return FieldType{Kind: KindArray, Elem: &elem, Len: n}
}

func OptionType(inner FieldType) FieldType {
	return FieldType{Kind: KindOption, Elem: &inner}
}

func VecType(inner FieldType) FieldType {
	return FieldType{Kind: KindVec, Elem: &inner}
}

func (t FieldType) String() string {
	switch t.Kind {
	case KindPrimitive:
		return string(t.Primitive)
	case KindDefined:
		return t.Defined
	case KindArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case KindOption:
		return fmt.Sprintf("Option<%s>", t.Elem)
	case KindVec:
		return fmt.Sprintf("Vec<%s>", t.Elem)
	default:
		return "<invalid>"
	}
}

// DefKind 具名类型的种类
type DefKind string

const (
	KindStruct DefKind = "struct"
	KindEnum   DefKind = "enum"
)

type Field struct {
	Name string
	Docs []string
	Type FieldType
}

// Variant 枚举变体；Fields 为空表示无字段变体。元组变体的字段名为 "0","1",...
type Variant struct {
	Name   string
	Fields []Field
	Tuple  bool
}

type TypeDefTy struct {
	Kind     DefKind
	Fields   []Field   // KindStruct
	Variants []Variant // KindEnum
}

// TypeDef accounts 与 types 共用的具名定义
type TypeDef struct {
	Name string
	Docs []string
	Type TypeDefTy
}

// Instruction / Event 不参与解码，字段类型保持原始 JSON
type Instruction struct {
	Name     string               `json:"name"`
	Docs     []string             `json:"docs,omitempty"`
	Accounts []InstructionAccount `json:"accounts"`
	Args     []RawField           `json:"args"`
}

type InstructionAccount struct {
	Name     string   `json:"name"`
	IsMut    bool     `json:"isMut"`
	IsSigner bool     `json:"isSigner"`
	Docs     []string `json:"docs,omitempty"`
}

type RawField struct {
	Name  string   `json:"name"`
	Docs  []string `json:"docs,omitempty"`
	Type  RawJSON  `json:"type"`
	Index bool     `json:"index,omitempty"`
}

type Event struct {
	Name   string     `json:"name"`
	Fields []RawField `json:"fields"`
}

type ErrorCode struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

package layout

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/big"
	"strconv"

	"anchor-snapshot-sol/internal/logic/idl"
	"anchor-snapshot-sol/internal/pkg/types"

	"lukechampine.com/uint128"
)

// Value 解码结果，JSON 友好的树：
//   - struct: map[string]interface{}
//   - enum: map[string]interface{}{"Variant": map[string]interface{}{...}}
//   - array / vec: []interface{}
//   - option: nil 或内部值
//   - bool / uint8 / int8 / uint16 / int16 / uint32 / int32 / float32 / float64（NaN、±Inf 视为 FieldMismatch）
//   - u64 / i64 / u128 / i128: 十进制字符串，避免 JSON 精度丢失
//   - publicKey: base58 字符串；bytes: hex 字符串
type Value = interface{}

const maxDepth = 64

var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Decoder 按 IDL 定义对账户数据做定长小端（Borsh）解码。只读 schema，可并发使用。
type Decoder struct {
	schema *idl.Schema
}

func NewDecoder(schema *idl.Schema) *Decoder {
	return &Decoder{schema: schema}
}

func (d *Decoder) Schema() *idl.Schema {
	return d.schema
}

// Decode 解码 typeName 对应的定义，data 不含 8 字节 discriminator。末尾多余字节忽略（链上账户常有预留空间）。
func (d *Decoder) Decode(typeName string, data []byte) (Value, error) {
	v, _, err := d.DecodeFrom(typeName, data)
	return v, err
}

// DecodeFrom 同 Decode，额外返回实际消耗的字节数
func (d *Decoder) DecodeFrom(typeName string, data []byte) (Value, int, error) {
	def, ok := d.schema.Account(typeName)
	if !ok {
		if def, ok = d.schema.Lookup(typeName); !ok {
			return nil, 0, mismatch(typeName, 0, "type %q not found in idl", typeName)
		}
	}
	r := &reader{buf: data}
	v, err := d.decodeDef(r, def, typeName, 0)
	if err != nil {
		return nil, r.off, err
	}
	return v, r.off, nil
}

// DecodeType 直接按 FieldType 解码
func (d *Decoder) DecodeType(t idl.FieldType, data []byte) (Value, int, error) {
	r := &reader{buf: data}
	v, err := d.decodeType(r, t, t.String(), 0)
	return v, r.off, err
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) take(n int, path string) ([]byte, error) {
	if n < 0 || len(r.buf)-r.off < n {
		return nil, truncated(path, r.off, n, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func (d *Decoder) decodeDef(r *reader, def *idl.TypeDef, path string, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, mismatch(path, r.off, "nesting deeper than %d", maxDepth)
	}
	switch def.Type.Kind {
	case idl.KindStruct:
		return d.decodeFields(r, def.Type.Fields, path, depth)

	case idl.KindEnum:
		at := r.off
		b, err := r.take(1, path)
		if err != nil {
			return nil, err
		}
		idx := int(b[0])
		if idx >= len(def.Type.Variants) {
			return nil, invalidVariant(path, at, b[0])
		}
		variant := def.Type.Variants[idx]
		fields, err := d.decodeFields(r, variant.Fields, path+"."+variant.Name, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{variant.Name: fields}, nil

	default:
		return nil, mismatch(path, r.off, "unknown definition kind %q", def.Type.Kind)
	}
}

func (d *Decoder) decodeFields(r *reader, fields []idl.Field, path string, depth int) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		v, err := d.decodeType(r, f.Type, path+"."+f.Name, depth+1)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func (d *Decoder) decodeType(r *reader, t idl.FieldType, path string, depth int) (Value, error) {
	if depth > maxDepth {
		return nil, mismatch(path, r.off, "nesting deeper than %d", maxDepth)
	}

	switch t.Kind {
	case idl.KindPrimitive:
		return decodePrimitive(r, t.Primitive, path)

	case idl.KindDefined:
		def, ok := d.schema.Lookup(t.Defined)
		if !ok {
			return nil, mismatch(path, r.off, "undefined type %q", t.Defined)
		}
		return d.decodeDef(r, def, path, depth+1)

	case idl.KindArray:
		// 先按元素最小字节数判断数据是否足够，避免按 schema 声明的长度盲目分配
		if elemMin := d.minSize(*t.Elem, 0); elemMin > 0 && t.Len > r.remaining()/elemMin {
			need := math.MaxInt
			if t.Len <= math.MaxInt/elemMin {
				need = t.Len * elemMin
			}
			return nil, truncated(path, r.off, need, r.remaining())
		}
		out := make([]interface{}, 0, min(t.Len, r.remaining()+1))
		for i := 0; i < t.Len; i++ {
			v, err := d.decodeType(r, *t.Elem, path+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case idl.KindOption:
		at := r.off
		b, err := r.take(1, path)
		if err != nil {
			return nil, err
		}
		switch b[0] {
		case 0:
			return nil, nil
		case 1:
			return d.decodeType(r, *t.Elem, path, depth+1)
		default:
			return nil, invalidVariant(path, at, b[0])
		}

	case idl.KindVec:
		b, err := r.take(4, path)
		if err != nil {
			return nil, err
		}
		n := int(binary.LittleEndian.Uint32(b))
		// 每个元素至少 1 字节，长度超过剩余数据必然截断
		if n > r.remaining() {
			return nil, truncated(path, r.off, n, r.remaining())
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			v, err := d.decodeType(r, *t.Elem, path+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	default:
		return nil, mismatch(path, r.off, "unknown field type kind %s", t.Kind)
	}
}

// minSize 类型编码后至少占用的字节数。0 表示可能不占字节（空 struct、长度为 0 的数组）
func (d *Decoder) minSize(t idl.FieldType, depth int) int {
	if depth > maxDepth {
		return 0
	}
	switch t.Kind {
	case idl.KindPrimitive:
		if t.Primitive == idl.String || t.Primitive == idl.Bytes {
			return 4
		}
		return max(t.Primitive.Size(), 0)
	case idl.KindOption:
		return 1
	case idl.KindVec:
		return 4
	case idl.KindArray:
		elem := d.minSize(*t.Elem, depth+1)
		if elem > 0 && t.Len > math.MaxInt/elem {
			return math.MaxInt
		}
		return t.Len * elem
	case idl.KindDefined:
		def, ok := d.schema.Lookup(t.Defined)
		if !ok {
			return 0
		}
		if def.Type.Kind == idl.KindEnum {
			return 1
		}
		total := 0
		for _, f := range def.Type.Fields {
			n := d.minSize(f.Type, depth+1)
			if n > math.MaxInt-total {
				return math.MaxInt
			}
			total += n
		}
		return total
	default:
		return 0
	}
}

func decodePrimitive(r *reader, p idl.Primitive, path string) (Value, error) {
	if p == idl.String || p == idl.Bytes {
		lb, err := r.take(4, path)
		if err != nil {
			return nil, err
		}
		n := int(binary.LittleEndian.Uint32(lb))
		b, err := r.take(n, path)
		if err != nil {
			return nil, err
		}
		if p == idl.String {
			return string(b), nil
		}
		return hex.EncodeToString(b), nil
	}

	size := p.Size()
	if size <= 0 {
		return nil, mismatch(path, r.off, "unsupported primitive %q", p)
	}
	at := r.off
	b, err := r.take(size, path)
	if err != nil {
		return nil, err
	}

	switch p {
	case idl.Bool:
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, mismatch(path, at, "invalid bool byte %d", b[0])
		}
	case idl.U8:
		return b[0], nil
	case idl.I8:
		return int8(b[0]), nil
	case idl.U16:
		return binary.LittleEndian.Uint16(b), nil
	case idl.I16:
		return int16(binary.LittleEndian.Uint16(b)), nil
	case idl.U32:
		return binary.LittleEndian.Uint32(b), nil
	case idl.I32:
		return int32(binary.LittleEndian.Uint32(b)), nil
	case idl.U64:
		return strconv.FormatUint(binary.LittleEndian.Uint64(b), 10), nil
	case idl.I64:
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(b)), 10), nil
	case idl.U128:
		return uint128.FromBytes(b).String(), nil
	case idl.I128:
		v := uint128.FromBytes(b).Big()
		if b[15]&0x80 != 0 {
			v.Sub(v, two128)
		}
		return v.String(), nil
	case idl.F32:
		f := math.Float32frombits(binary.LittleEndian.Uint32(b))
		if !isFinite(float64(f)) {
			return nil, mismatch(path, at, "non-finite f32 %v", f)
		}
		return f, nil
	case idl.F64:
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		if !isFinite(f) {
			return nil, mismatch(path, at, "non-finite f64 %v", f)
		}
		return f, nil
	case idl.PublicKey:
		var pk types.Pubkey
		copy(pk[:], b)
		return pk.String(), nil
	default:
		return nil, mismatch(path, at, "unsupported primitive %q", p)
	}
}

// NaN / ±Inf 无法写入 JSON，按结构错误处理，只影响当前账户
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

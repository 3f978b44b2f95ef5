package layout

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"anchor-snapshot-sol/internal/logic/idl"
	"anchor-snapshot-sol/internal/pkg/types"

	jsoniter "github.com/json-iterator/go"
	"lukechampine.com/uint128"
)

// Encode 是 Decode 的逆操作，把值树按 IDL 定义写回 Borsh 字节（不含 discriminator）。
// 接受 Decode 的输出，也接受常见的 Go 原生值（int / uint64 / []byte / types.Pubkey 等），
// 主要用于测试构造数据与回环校验。
func (d *Decoder) Encode(typeName string, v Value) ([]byte, error) {
	def, ok := d.schema.Account(typeName)
	if !ok {
		if def, ok = d.schema.Lookup(typeName); !ok {
			return nil, mismatch(typeName, 0, "type %q not found in idl", typeName)
		}
	}
	w := &writer{}
	if err := d.encodeDef(w, def, v, typeName, 0); err != nil {
		return nil, err
	}
	return w.buf, nil
}

type writer struct {
	buf []byte
}

func (w *writer) write(b ...byte) {
	w.buf = append(w.buf, b...)
}

func (d *Decoder) encodeDef(w *writer, def *idl.TypeDef, v Value, path string, depth int) error {
	if depth > maxDepth {
		return mismatch(path, len(w.buf), "nesting deeper than %d", maxDepth)
	}
	switch def.Type.Kind {
	case idl.KindStruct:
		m, ok := v.(map[string]interface{})
		if !ok {
			return mismatch(path, len(w.buf), "expected object, got %T", v)
		}
		return d.encodeFields(w, def.Type.Fields, m, path, depth)

	case idl.KindEnum:
		name, fields, err := enumValue(v, path, len(w.buf))
		if err != nil {
			return err
		}
		for i, variant := range def.Type.Variants {
			if variant.Name != name {
				continue
			}
			w.write(byte(i))
			return d.encodeFields(w, variant.Fields, fields, path+"."+name, depth)
		}
		return mismatch(path, len(w.buf), "unknown variant %q", name)

	default:
		return mismatch(path, len(w.buf), "unknown definition kind %q", def.Type.Kind)
	}
}

// enumValue 接受 {"Variant": {...}}，无字段变体也可以直接写成 "Variant"
func enumValue(v Value, path string, off int) (string, map[string]interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, map[string]interface{}{}, nil
	case map[string]interface{}:
		if len(x) != 1 {
			return "", nil, mismatch(path, off, "enum value must have exactly one key, got %d", len(x))
		}
		for name, inner := range x {
			if inner == nil {
				return name, map[string]interface{}{}, nil
			}
			fields, ok := inner.(map[string]interface{})
			if !ok {
				return "", nil, mismatch(path, off, "variant %q fields must be an object, got %T", name, inner)
			}
			return name, fields, nil
		}
	}
	return "", nil, mismatch(path, off, "expected enum value, got %T", v)
}

func (d *Decoder) encodeFields(w *writer, fields []idl.Field, m map[string]interface{}, path string, depth int) error {
	for _, f := range fields {
		fv, ok := m[f.Name]
		if !ok {
			return mismatch(path+"."+f.Name, len(w.buf), "missing field")
		}
		if err := d.encodeType(w, f.Type, fv, path+"."+f.Name, depth+1); err != nil {
			return err
		}
	}
	if len(m) > len(fields) {
		known := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			known[f.Name] = struct{}{}
		}
		var extra []string
		for k := range m {
			if _, ok := known[k]; !ok {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		return mismatch(path, len(w.buf), "unexpected fields %s", strings.Join(extra, ","))
	}
	return nil
}

func (d *Decoder) encodeType(w *writer, t idl.FieldType, v Value, path string, depth int) error {
	if depth > maxDepth {
		return mismatch(path, len(w.buf), "nesting deeper than %d", maxDepth)
	}

	switch t.Kind {
	case idl.KindPrimitive:
		return encodePrimitive(w, t.Primitive, v, path)

	case idl.KindDefined:
		def, ok := d.schema.Lookup(t.Defined)
		if !ok {
			return mismatch(path, len(w.buf), "undefined type %q", t.Defined)
		}
		return d.encodeDef(w, def, v, path, depth+1)

	case idl.KindArray:
		items, err := sliceValue(v, path, len(w.buf))
		if err != nil {
			return err
		}
		if len(items) != t.Len {
			return mismatch(path, len(w.buf), "expected %d elements, got %d", t.Len, len(items))
		}
		for i, item := range items {
			if err := d.encodeType(w, *t.Elem, item, path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
		return nil

	case idl.KindOption:
		if v == nil {
			w.write(0)
			return nil
		}
		w.write(1)
		return d.encodeType(w, *t.Elem, v, path, depth+1)

	case idl.KindVec:
		items, err := sliceValue(v, path, len(w.buf))
		if err != nil {
			return err
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(items)))
		w.write(lb[:]...)
		for i, item := range items {
			if err := d.encodeType(w, *t.Elem, item, path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		return mismatch(path, len(w.buf), "unknown field type kind %s", t.Kind)
	}
}

func sliceValue(v Value, path string, off int) ([]interface{}, error) {
	switch x := v.(type) {
	case []interface{}:
		return x, nil
	case []byte:
		out := make([]interface{}, len(x))
		for i, b := range x {
			out[i] = b
		}
		return out, nil
	default:
		return nil, mismatch(path, off, "expected array, got %T", v)
	}
}

var intRanges = map[idl.Primitive][2]*big.Int{
	idl.U8:   {big.NewInt(0), big.NewInt(math.MaxUint8)},
	idl.I8:   {big.NewInt(math.MinInt8), big.NewInt(math.MaxInt8)},
	idl.U16:  {big.NewInt(0), big.NewInt(math.MaxUint16)},
	idl.I16:  {big.NewInt(math.MinInt16), big.NewInt(math.MaxInt16)},
	idl.U32:  {big.NewInt(0), big.NewInt(math.MaxUint32)},
	idl.I32:  {big.NewInt(math.MinInt32), big.NewInt(math.MaxInt32)},
	idl.U64:  {big.NewInt(0), new(big.Int).SetUint64(math.MaxUint64)},
	idl.I64:  {big.NewInt(math.MinInt64), big.NewInt(math.MaxInt64)},
	idl.U128: {big.NewInt(0), new(big.Int).Sub(two128, big.NewInt(1))},
	idl.I128: {new(big.Int).Neg(new(big.Int).Rsh(two128, 1)), new(big.Int).Sub(new(big.Int).Rsh(two128, 1), big.NewInt(1))},
}

func encodePrimitive(w *writer, p idl.Primitive, v Value, path string) error {
	off := len(w.buf)
	switch p {
	case idl.Bool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(path, off, "expected bool, got %T", v)
		}
		if b {
			w.write(1)
		} else {
			w.write(0)
		}
		return nil

	case idl.F32, idl.F64:
		f, ok := floatValue(v)
		if !ok {
			return mismatch(path, off, "expected number, got %T", v)
		}
		if p == idl.F32 {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(f)))
			w.write(b[:]...)
		} else {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
			w.write(b[:]...)
		}
		return nil

	case idl.PublicKey:
		pk, err := pubkeyValue(v)
		if err != nil {
			return mismatch(path, off, "%v", err)
		}
		w.write(pk[:]...)
		return nil

	case idl.String, idl.Bytes:
		var raw []byte
		switch x := v.(type) {
		case string:
			if p == idl.String {
				raw = []byte(x)
			} else {
				decoded, err := hex.DecodeString(x)
				if err != nil {
					return mismatch(path, off, "invalid hex: %v", err)
				}
				raw = decoded
			}
		case []byte:
			raw = x
		default:
			return mismatch(path, off, "expected string, got %T", v)
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(raw)))
		w.write(lb[:]...)
		w.write(raw...)
		return nil
	}

	bounds, ok := intRanges[p]
	if !ok {
		return mismatch(path, off, "unsupported primitive %q", p)
	}
	n, ok := intValue(v)
	if !ok {
		return mismatch(path, off, "expected integer, got %T(%v)", v, v)
	}
	if n.Cmp(bounds[0]) < 0 || n.Cmp(bounds[1]) > 0 {
		return mismatch(path, off, "%s out of range for %s", n, p)
	}
	// 负数按二进制补码处理
	if n.Sign() < 0 {
		n = new(big.Int).Add(n, two128)
	}
	var b [16]byte
	uint128.FromBig(n).PutBytes(b[:])
	w.write(b[:p.Size()]...)
	return nil
}

func intValue(v Value) (*big.Int, bool) {
	switch x := v.(type) {
	case int:
		return big.NewInt(int64(x)), true
	case int8:
		return big.NewInt(int64(x)), true
	case int16:
		return big.NewInt(int64(x)), true
	case int32:
		return big.NewInt(int64(x)), true
	case int64:
		return big.NewInt(x), true
	case uint:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), true
	case uint64:
		return new(big.Int).SetUint64(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil, false
		}
		n, _ := big.NewFloat(x).Int(nil)
		return n, true
	case jsoniter.Number:
		return new(big.Int).SetString(string(x), 10)
	case string:
		return new(big.Int).SetString(x, 10)
	default:
		return nil, false
	}
}

func floatValue(v Value) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case jsoniter.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func pubkeyValue(v Value) (types.Pubkey, error) {
	switch x := v.(type) {
	case types.Pubkey:
		return x, nil
	case [32]byte:
		return types.Pubkey(x), nil
	case string:
		return types.TryPubkeyFromBase58(x)
	default:
		return types.Pubkey{}, fmt.Errorf("expected public key, got %T", v)
	}
}

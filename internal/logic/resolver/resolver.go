package resolver

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"anchor-snapshot-sol/internal/logic/idl"
)

const DiscriminatorSize = 8

var (
	ErrTooShort = errors.New("account data shorter than discriminator")
	ErrUnknown  = errors.New("unknown account discriminator")
)

// Discriminator Anchor 账户数据的前 8 字节类型标签
type Discriminator [DiscriminatorSize]byte

func (d Discriminator) String() string {
	return hex.EncodeToString(d[:])
}

// Uint64 按大端读取，便于和 0xe445a52e51cb9a1d 这类常量直接比较
func (d Discriminator) Uint64() uint64 {
	return binary.BigEndian.Uint64(d[:])
}

// AccountDiscriminator sha256("account:" + name) 的前 8 字节
func AccountDiscriminator(name string) Discriminator {
	sum := sha256.Sum256([]byte("account:" + name))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// FromBlob 取 blob 的前 8 字节，长度不足返回 ErrTooShort
func FromBlob(blob []byte) (Discriminator, error) {
	var d Discriminator
	if len(blob) < DiscriminatorSize {
		return d, fmt.Errorf("%w: len=%d", ErrTooShort, len(blob))
	}
	copy(d[:], blob[:DiscriminatorSize])
	return d, nil
}

// UnknownError 前 8 字节没有匹配任何账户类型。不是致命错误，调用方应走 fallback。
type UnknownError struct {
	Tag Discriminator
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknown, e.Tag)
}

func (e *UnknownError) Unwrap() error {
	return ErrUnknown
}

// IsUnknown 判断 err 是否为 UnknownError 并返回
func IsUnknown(err error) (*UnknownError, bool) {
	var ue *UnknownError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// Resolver 在 schema 加载后一次性计算所有账户类型的 discriminator，之后只读，可并发使用
type Resolver struct {
	names  []string                 // 声明顺序
	byName map[string]Discriminator
	byTag  map[Discriminator]string // 冲突时保留声明顺序中的第一个
}

func New(schema *idl.Schema) *Resolver {
	return newResolver(schema.AccountNames(), AccountDiscriminator)
}

func newResolver(names []string, derive func(string) Discriminator) *Resolver {
	r := &Resolver{
		names:  names,
		byName: make(map[string]Discriminator, len(names)),
		byTag:  make(map[Discriminator]string, len(names)),
	}
	for _, name := range r.names {
		d := derive(name)
		r.byName[name] = d
		if _, exists := r.byTag[d]; !exists {
			r.byTag[d] = name
		}
	}
	return r
}

// Resolve 根据前 8 字节识别账户类型，返回类型名和剩余数据。
//   - len(blob) < 8: ErrTooShort
//   - 无匹配: *UnknownError（errors.Is(err, ErrUnknown)）
func (r *Resolver) Resolve(blob []byte) (string, []byte, error) {
	tag, err := FromBlob(blob)
	if err != nil {
		return "", nil, err
	}
	name, ok := r.byTag[tag]
	if !ok {
		return "", nil, &UnknownError{Tag: tag}
	}
	return name, blob[DiscriminatorSize:], nil
}

func (r *Resolver) Discriminator(name string) (Discriminator, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names 账户类型名，按 IDL 声明顺序
func (r *Resolver) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

package idl

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed           = errors.New("malformed idl")
	ErrUnresolvedReference = errors.New("unresolved type reference")
)

// SchemaError IDL 加载失败，发生在任何解码开始之前，属于致命错误
type SchemaError struct {
	Kind error  // ErrMalformed / ErrUnresolvedReference
	Path string // 出错位置，如 accounts[Pool].fields[fees]
	Name string // UnresolvedReference 时为找不到的类型名
	Msg  string
}

func (e *SchemaError) Error() string {
	if errors.Is(e.Kind, ErrUnresolvedReference) {
		return fmt.Sprintf("%v: %q at %s", e.Kind, e.Name, e.Path)
	}
	if e.Path == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Path, e.Msg)
}

func (e *SchemaError) Unwrap() error {
	return e.Kind
}

func malformed(path, format string, args ...interface{}) *SchemaError {
	return &SchemaError{Kind: ErrMalformed, Path: path, Msg: fmt.Sprintf(format, args...)}
}

func unresolved(path, name string) *SchemaError {
	return &SchemaError{Kind: ErrUnresolvedReference, Path: path, Name: name}
}

// IsSchemaError 判断 err 是否为 SchemaError 并返回
func IsSchemaError(err error) (*SchemaError, bool) {
	var se *SchemaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

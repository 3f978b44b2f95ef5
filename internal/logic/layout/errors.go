package layout

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated      = errors.New("truncated")
	ErrInvalidVariant = errors.New("invalid variant")
	ErrFieldMismatch  = errors.New("field mismatch")
)

// DecodeError 解码在第一个结构性错误处停止，Path 指出出错字段，例如 Pool.curveType.Stable.depeg.depegType
type DecodeError struct {
	Kind   error // ErrTruncated / ErrInvalidVariant / ErrFieldMismatch
	Path   string
	Tag    int // InvalidVariant 时为读到的判别字节
	Offset int // 出错时相对本次解码起点的偏移
	Msg    string
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrInvalidVariant):
		return fmt.Sprintf("%v %d at %s (offset %d)", e.Kind, e.Tag, e.Path, e.Offset)
	case e.Msg != "":
		return fmt.Sprintf("%v at %s (offset %d): %s", e.Kind, e.Path, e.Offset, e.Msg)
	default:
		return fmt.Sprintf("%v at %s (offset %d)", e.Kind, e.Path, e.Offset)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// IsDecodeError 判断 err 是否为 DecodeError 并返回
func IsDecodeError(err error) (*DecodeError, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func truncated(path string, off, need, have int) *DecodeError {
	return &DecodeError{
		Kind:   ErrTruncated,
		Path:   path,
		Offset: off,
		Msg:    fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

func invalidVariant(path string, off int, tag byte) *DecodeError {
	return &DecodeError{Kind: ErrInvalidVariant, Path: path, Offset: off, Tag: int(tag)}
}

func mismatch(path string, off int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: ErrFieldMismatch, Path: path, Offset: off, Msg: fmt.Sprintf(format, args...)}
}

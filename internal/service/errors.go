package service

import (
	"errors"
	"fmt"
)

// Request validation and decoding failures. The HTTP layer maps these to
// 4xx responses; every other error is a server fault.
var (
	ErrNoFile          = errors.New("no audio file provided")
	ErrNoFilename      = errors.New("no file selected")
	ErrUnsupportedType = errors.New("file type not supported")
	ErrTooLarge        = errors.New("file too large")
	ErrDecode          = errors.New("error loading audio file")
)

// UnsupportedTypeError carries the rejected extension, lower-cased and
// without its dot.
type UnsupportedTypeError struct {
	Ext string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("file type %s not supported", e.Ext)
}

func (e *UnsupportedTypeError) Is(target error) bool {
	return target == ErrUnsupportedType
}

// DecodeError wraps the decoder failure for an upload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error loading audio file: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

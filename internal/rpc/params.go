package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/toolpad/internal/fault"
)

// Params are the positional arguments of a call, still in JSON form.
type Params []json.RawMessage

// ParamError reports a positional argument that could not be decoded.
type ParamError struct {
	Index int
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %d: %v", e.Index, e.Err)
}

func (e *ParamError) Unwrap() error { return e.Err }

func (e *ParamError) Code() string { return "INVALID_PARAMS" }

var errMissing = errors.New("missing")

// Decode unmarshals parameter i into v. A missing parameter is an error.
func (p Params) Decode(i int, v any) error {
	if i < 0 || i >= len(p) {
		return &ParamError{Index: i, Err: errMissing}
	}
	if err := sonic.Unmarshal(p[i], v); err != nil {
		return &ParamError{Index: i, Err: err}
	}
	return nil
}

// decodeOptional leaves v untouched when parameter i is absent, the way an
// omitted trailing argument is undefined.
func (p Params) decodeOptional(i int, v any) error {
	if i >= len(p) {
		return nil
	}
	return p.Decode(i, v)
}

// Func0 adapts a handler that takes no parameters.
func Func0[R any](fn func(ctx context.Context) (R, error)) Handler {
	return func(ctx context.Context, _ *Call) (any, error) {
		return fn(ctx)
	}
}

// Func1 adapts a handler with one positional parameter.
func Func1[A, R any](fn func(ctx context.Context, a A) (R, error)) Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		var a A
		if err := call.Params.decodeOptional(0, &a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Func2 adapts a handler with two positional parameters.
func Func2[A, B, R any](fn func(ctx context.Context, a A, b B) (R, error)) Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		var (
			a A
			b B
		)
		if err := call.Params.decodeOptional(0, &a); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(1, &b); err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Func3 adapts a handler with three positional parameters.
func Func3[A, B, C, R any](fn func(ctx context.Context, a A, b B, c C) (R, error)) Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		var (
			a A
			b B
			c C
		)
		if err := call.Params.decodeOptional(0, &a); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(1, &b); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(2, &c); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}

// Func4 adapts a handler with four positional parameters.
func Func4[A, B, C, D, R any](fn func(ctx context.Context, a A, b B, c C, d D) (R, error)) Handler {
	return func(ctx context.Context, call *Call) (any, error) {
		var (
			a A
			b B
			c C
			d D
		)
		if err := call.Params.decodeOptional(0, &a); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(1, &b); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(2, &c); err != nil {
			return nil, err
		}
		if err := call.Params.decodeOptional(3, &d); err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c, d)
	}
}

// Request is the wire form of a call.
type Request struct {
	Kind   string `json:"kind"`
	Type   string `json:"type,omitempty"`
	Name   string `json:"name"`
	Params Params `json:"params"`
}

// KindName returns the declared kind; older clients send it as "type".
func (r Request) KindName() string {
	if r.Kind != "" {
		return r.Kind
	}
	return r.Type
}

// Response is the wire form of an outcome. Exactly one field is set.
type Response struct {
	Result *string       `json:"result,omitempty"`
	Error  *fault.Record `json:"error,omitempty"`
}

// Success wraps an encoded result.
func Success(encoded string) *Response {
	return &Response{Result: &encoded}
}

// Failure wraps a normalized error.
func Failure(rec fault.Record) *Response {
	return &Response{Error: &rec}
}

// NotFoundError means the kind or method name does not resolve. No handler
// ran.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rpc: no %s method named %q", e.Kind, e.Name)
}

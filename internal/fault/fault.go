// Package fault turns arbitrary thrown values into a uniform record that can
// cross the RPC boundary.
package fault

import (
	"errors"
	"fmt"
)

// Record is the transport form of a failure.
type Record struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Coder is implemented by errors that carry a machine-readable code.
type Coder interface {
	Code() string
}

// Stacker is implemented by errors that carry the stack of their origin.
type Stacker interface {
	StackTrace() string
}

// Normalize converts any thrown value into a Record. It is total: it never
// panics and never returns an empty message. Normalizing a Record returns
// it unchanged.
func Normalize(thrown any) (rec Record) {
	defer func() {
		if r := recover(); r != nil {
			rec = Record{Message: fmt.Sprintf("unprintable thrown value of type %T", thrown)}
		}
	}()

	switch v := thrown.(type) {
	case nil:
		return Record{Message: "null"}
	case Record:
		return v
	case *Record:
		if v == nil {
			return Record{Message: "null"}
		}
		return *v
	case error:
		return fromError(v)
	case string:
		return Record{Message: nonEmpty(v, "empty error message")}
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			rec := Record{Message: nonEmpty(msg, "empty error message"), Code: v["code"]}
			rec.Stack, _ = v["stack"].(string)
			return rec
		}
	case fmt.Stringer:
		return Record{Message: nonEmpty(v.String(), fmt.Sprintf("%T", v))}
	}
	return Record{Message: nonEmpty(fmt.Sprintf("%v", thrown), fmt.Sprintf("%T", thrown))}
}

func fromError(err error) Record {
	rec := Record{Message: nonEmpty(err.Error(), fmt.Sprintf("%T", err))}

	var coder Coder
	if errors.As(err, &coder) {
		if code := coder.Code(); code != "" {
			rec.Code = code
		}
	}
	var stacker Stacker
	if errors.As(err, &stacker) {
		rec.Stack = stacker.StackTrace()
	}
	return rec
}

// Redact drops the stack trace.
func Redact(rec Record) Record {
	rec.Stack = ""
	return rec
}

// Error implements error so a Record can be returned or wrapped as one.
func (r Record) Error() string {
	return r.Message
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

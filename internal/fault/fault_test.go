package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedError struct {
	code  string
	stack string
}

func (e *codedError) Error() string      { return "coded failure" }
func (e *codedError) Code() string       { return e.code }
func (e *codedError) StackTrace() string { return e.stack }

type panickyStringer struct{}

func (panickyStringer) String() string { panic("no") }

type panickyError struct{}

func (panickyError) Error() string { panic("no") }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		thrown any
		want   Record
	}{
		{"nil", nil, Record{Message: "null"}},
		{"string", "boom", Record{Message: "boom"}},
		{"empty string", "", Record{Message: "empty error message"}},
		{"plain error", errors.New("disk full"), Record{Message: "disk full"}},
		{
			"coded error",
			&codedError{code: "TIMEOUT", stack: "at fn (module.js:1:1)"},
			Record{Message: "coded failure", Code: "TIMEOUT", Stack: "at fn (module.js:1:1)"},
		},
		{
			"wrapped coded error",
			fmt.Errorf("exec: %w", &codedError{code: "COMPILE_ERROR"}),
			Record{Message: "exec: coded failure", Code: "COMPILE_ERROR"},
		},
		{
			"error-shaped object",
			map[string]any{"message": "nope", "code": 42.0, "stack": "Error: nope"},
			Record{Message: "nope", Code: 42.0, Stack: "Error: nope"},
		},
		{"object without message", map[string]any{"a": 1}, Record{Message: "map[a:1]"}},
		{"number", 42, Record{Message: "42"}},
		{"panicking stringer", panickyStringer{}, Record{Message: "unprintable thrown value of type fault.panickyStringer"}},
		{"panicking error", panickyError{}, Record{Message: "unprintable thrown value of type fault.panickyError"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.thrown))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []any{
		"boom",
		errors.New("x"),
		&codedError{code: "C", stack: "s"},
		map[string]any{"message": "m", "code": "E"},
		struct{ A int }{1},
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))
		assert.Equal(t, once, Normalize(&once))
		assert.NotEmpty(t, once.Message)
	}
}

func TestRedact(t *testing.T) {
	rec := Redact(Record{Message: "m", Code: "C", Stack: "s"})
	assert.Equal(t, Record{Message: "m", Code: "C"}, rec)
}

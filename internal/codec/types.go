package codec

import (
	"fmt"
	"regexp"
)

// Type tags written into meta.values.
const (
	tagDate      = "Date"
	tagUndefined = "undefined"
	tagBigInt    = "bigint"
	tagNumber    = "number"
	tagRegExp    = "regexp"
	tagError     = "Error"
	tagCustom    = "custom"

	customUnserializable = "unserializable"
)

// Undefined is the decoded form of a JavaScript undefined. It is distinct
// from nil, which is null.
type Undefined struct{}

// Error is the transport form of a thrown or returned error value.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// RegExp is a regular expression literal in source/flags form.
type RegExp struct {
	Source string
	Flags  string
}

func (r RegExp) String() string {
	return "/" + r.Source + "/" + r.Flags
}

// Compile converts the literal into a Go regexp. Only the i, m and s flags
// have Go equivalents; g, u and y are ignored.
func (r RegExp) Compile() (*regexp.Regexp, error) {
	prefix := ""
	for _, f := range r.Flags {
		switch f {
		case 'i', 'm', 's':
			prefix += string(f)
		}
	}
	if prefix != "" {
		return regexp.Compile("(?" + prefix + ")" + r.Source)
	}
	return regexp.Compile(r.Source)
}

// Unserializable stands in for a value that has no transport form: funcs,
// channels, cyclic references or values whose marshaler failed.
type Unserializable struct {
	Type string
}

func (u Unserializable) String() string {
	return fmt.Sprintf("[unserializable %s]", u.Type)
}

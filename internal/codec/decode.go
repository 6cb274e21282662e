package codec

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// ErrInvalidEnvelope is returned when the text is JSON but not an envelope.
var ErrInvalidEnvelope = errors.New("codec: not an encoded envelope")

// Decode parses text produced by Encode and restores annotated types and
// shared references.
func Decode(text string) (any, error) {
	var raw map[string]any
	if err := sonic.ConfigStd.UnmarshalFromString(text, &raw); err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	root, ok := raw["json"]
	if !ok {
		return nil, ErrInvalidEnvelope
	}
	m, _ := raw["meta"].(map[string]any)
	if m == nil {
		return root, nil
	}

	switch values := m["values"].(type) {
	case nil:
	case []any:
		v, err := transform(root, values)
		if err != nil {
			return nil, err
		}
		root = v
	case map[string]any:
		paths := make([]string, 0, len(values))
		for p := range values {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			tags, ok := values[p].([]any)
			if !ok {
				return nil, fmt.Errorf("codec: malformed annotation at %q", p)
			}
			err := update(&root, splitPath(p), func(v any) (any, error) {
				return transform(v, tags)
			})
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("codec: malformed meta.values")
	}

	if refs, ok := m["referentialEqualities"].(map[string]any); ok {
		firsts := make([]string, 0, len(refs))
		for p := range refs {
			firsts = append(firsts, p)
		}
		sort.Strings(firsts)
		for _, first := range firsts {
			var shared any
			err := update(&root, splitPath(first), func(v any) (any, error) {
				shared = v
				return v, nil
			})
			if err != nil {
				return nil, err
			}
			others, _ := refs[first].([]any)
			for _, o := range others {
				p, ok := o.(string)
				if !ok {
					return nil, fmt.Errorf("codec: malformed referential equality for %q", first)
				}
				err := update(&root, splitPath(p), func(any) (any, error) { return shared, nil })
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return root, nil
}

func update(node *any, segs []string, fn func(any) (any, error)) error {
	if len(segs) == 0 {
		v, err := fn(*node)
		if err != nil {
			return err
		}
		*node = v
		return nil
	}
	seg, rest := segs[0], segs[1:]
	switch c := (*node).(type) {
	case map[string]any:
		next := c[seg]
		if err := update(&next, rest, fn); err != nil {
			return err
		}
		c[seg] = next
		return nil
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(c) {
			return fmt.Errorf("codec: path segment %q out of range", seg)
		}
		return update(&c[i], rest, fn)
	default:
		return fmt.Errorf("codec: path segment %q does not address a container", seg)
	}
}

func transform(v any, tags []any) (any, error) {
	if len(tags) == 0 {
		return v, nil
	}
	tag, _ := tags[0].(string)
	s, isString := v.(string)

	switch tag {
	case tagUndefined:
		return Undefined{}, nil
	case tagDate:
		if !isString {
			return nil, fmt.Errorf("codec: Date annotation on %T", v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("codec: %w", err)
		}
		return t.UTC(), nil
	case tagBigInt:
		n, ok := new(big.Int).SetString(s, 10)
		if !isString || !ok {
			return nil, fmt.Errorf("codec: invalid bigint %v", v)
		}
		return n, nil
	case tagNumber:
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return nil, fmt.Errorf("codec: invalid special number %v", v)
	case tagRegExp:
		i := strings.LastIndex(s, "/")
		if !isString || !strings.HasPrefix(s, "/") || i < 1 {
			return nil, fmt.Errorf("codec: invalid regexp %v", v)
		}
		return RegExp{Source: s[1:i], Flags: s[i+1:]}, nil
	case tagError:
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("codec: Error annotation on %T", v)
		}
		name, _ := obj["name"].(string)
		message, _ := obj["message"].(string)
		return &Error{Name: name, Message: message}, nil
	case tagCustom:
		if len(tags) > 1 && tags[1] == customUnserializable {
			return Unserializable{Type: s}, nil
		}
	}
	return nil, fmt.Errorf("codec: unknown annotation %v", tags)
}

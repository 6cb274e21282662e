package codec

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/toolpad/internal/fault"
)

const maxDepth = 512

// dateLayout matches Date.prototype.toISOString.
const dateLayout = "2006-01-02T15:04:05.000Z"

type envelope struct {
	JSON any   `json:"json"`
	Meta *meta `json:"meta,omitempty"`
}

type meta struct {
	Values                any                 `json:"values,omitempty"`
	ReferentialEqualities map[string][]string `json:"referentialEqualities,omitempty"`
}

type identity struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type encoder struct {
	rootTags  []string
	values    map[string][]string
	refs      map[string][]string
	seen      map[identity]string
	ancestors map[identity]bool
}

func newEncoder() *encoder {
	return &encoder{
		values:    make(map[string][]string),
		refs:      make(map[string][]string),
		seen:      make(map[identity]string),
		ancestors: make(map[identity]bool),
	}
}

// Encode converts v into its textual envelope. It never fails: values
// without a transport form are replaced by the unserializable sentinel.
func Encode(v any) string {
	enc := newEncoder()
	tree, ok := enc.safeWalk(v)
	if ok {
		if data, err := sonic.ConfigStd.Marshal(enc.envelope(tree)); err == nil {
			return string(data)
		}
	}

	enc = newEncoder()
	tree = enc.unserializable(nil, fmt.Sprintf("%T", v))
	data, err := sonic.ConfigStd.Marshal(enc.envelope(tree))
	if err != nil {
		return `{"json":null,"meta":{"values":["undefined"]}}`
	}
	return string(data)
}

func (e *encoder) safeWalk(v any) (tree any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			tree, ok = nil, false
		}
	}()
	return e.walk(reflect.ValueOf(v), nil, 0), true
}

func (e *encoder) envelope(tree any) envelope {
	env := envelope{JSON: tree}
	m := &meta{}
	switch {
	case e.rootTags != nil:
		m.Values = e.rootTags
	case len(e.values) > 0:
		m.Values = e.values
	}
	if len(e.refs) > 0 {
		m.ReferentialEqualities = e.refs
	}
	if m.Values != nil || m.ReferentialEqualities != nil {
		env.Meta = m
	}
	return env
}

func (e *encoder) annotate(path []string, tags ...string) {
	if len(path) == 0 {
		e.rootTags = tags
		return
	}
	e.values[joinPath(path)] = tags
}

func (e *encoder) unserializable(path []string, typ string) any {
	e.annotate(path, tagCustom, customUnserializable)
	return typ
}

func (e *encoder) walk(v reflect.Value, path []string, depth int) any {
	if depth > maxDepth {
		return e.unserializable(path, "depth limit")
	}
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return nil
	}

	if v.CanInterface() {
		if out, handled := e.special(v.Interface(), path); handled {
			return out
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return e.float(v.Float(), path)
	case reflect.String:
		return v.String()
	case reflect.Ptr:
		if v.Type().Elem().Size() == 0 {
			return e.walk(v.Elem(), path, depth+1)
		}
		return e.tracked(identity{typ: v.Type(), ptr: v.Pointer()}, path, func() any {
			return e.walk(v.Elem(), path, depth+1)
		})
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		return e.tracked(identity{typ: v.Type(), ptr: v.Pointer()}, path, func() any {
			return e.walkMap(v, path, depth)
		})
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(v.Bytes())
		}
		if v.Len() == 0 {
			return []any{}
		}
		return e.tracked(identity{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, path, func() any {
			return e.walkSeq(v, path, depth)
		})
	case reflect.Array:
		return e.walkSeq(v, path, depth)
	case reflect.Struct:
		return e.walkStruct(v, path, depth)
	default:
		return e.unserializable(path, v.Type().String())
	}
}

// special handles the types with a dedicated annotation or a marshaler.
func (e *encoder) special(x any, path []string) (any, bool) {
	switch x := x.(type) {
	case Undefined, *Undefined:
		e.annotate(path, tagUndefined)
		return nil, true
	case time.Time:
		return e.date(x, path), true
	case *time.Time:
		return e.date(*x, path), true
	case *big.Int:
		e.annotate(path, tagBigInt)
		return x.String(), true
	case big.Int:
		e.annotate(path, tagBigInt)
		return x.String(), true
	case RegExp:
		e.annotate(path, tagRegExp)
		return x.String(), true
	case *regexp.Regexp:
		e.annotate(path, tagRegExp)
		return "/" + x.String() + "/", true
	case Unserializable:
		return e.unserializable(path, x.Type), true
	case json.RawMessage:
		var decoded any
		if err := sonic.ConfigStd.Unmarshal(x, &decoded); err != nil {
			return e.unserializable(path, "json.RawMessage"), true
		}
		return decoded, true
	case fault.Record, *fault.Record:
		// Falls through to the struct walk so code and stack survive.
		return nil, false
	case *Error:
		e.annotate(path, tagError)
		return map[string]any{"name": x.Name, "message": x.Message}, true
	case error:
		e.annotate(path, tagError)
		return map[string]any{"name": errorName(x), "message": safeMessage(x)}, true
	case json.Marshaler:
		return e.marshaler(x, path), true
	case encoding.TextMarshaler:
		text, err := safeText(x)
		if err != nil {
			return e.unserializable(path, fmt.Sprintf("%T", x)), true
		}
		return text, true
	}
	return nil, false
}

func (e *encoder) date(t time.Time, path []string) any {
	if t.Year() < 0 || t.Year() > 9999 {
		return e.unserializable(path, "time.Time")
	}
	e.annotate(path, tagDate)
	return t.UTC().Format(dateLayout)
}

func (e *encoder) float(f float64, path []string) any {
	switch {
	case math.IsNaN(f):
		e.annotate(path, tagNumber)
		return "NaN"
	case math.IsInf(f, 1):
		e.annotate(path, tagNumber)
		return "Infinity"
	case math.IsInf(f, -1):
		e.annotate(path, tagNumber)
		return "-Infinity"
	}
	return f
}

func (e *encoder) marshaler(m json.Marshaler, path []string) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = e.unserializable(path, fmt.Sprintf("%T", m))
		}
	}()
	data, err := m.MarshalJSON()
	if err != nil {
		return e.unserializable(path, fmt.Sprintf("%T", m))
	}
	var decoded any
	if err := sonic.ConfigStd.Unmarshal(data, &decoded); err != nil {
		return e.unserializable(path, fmt.Sprintf("%T", m))
	}
	return decoded
}

// tracked walks a reference value once per identity. A value met again
// further down its own ancestry is a cycle; a value met again elsewhere is
// written as null and recorded as a referential equality, which Decode uses
// to put the first path's value back in place.
func (e *encoder) tracked(id identity, path []string, walk func() any) any {
	if e.ancestors[id] {
		return e.unserializable(path, "cycle")
	}
	if first, ok := e.seen[id]; ok {
		e.refs[first] = append(e.refs[first], joinPath(path))
		return nil
	}
	if len(path) > 0 {
		e.seen[id] = joinPath(path)
	}
	e.ancestors[id] = true
	defer delete(e.ancestors, id)
	return walk()
}

func (e *encoder) walkSeq(v reflect.Value, path []string, depth int) any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = e.walk(v.Index(i), child(path, strconv.Itoa(i)), depth+1)
	}
	return out
}

func (e *encoder) walkMap(v reflect.Value, path []string, depth int) any {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: mapKey(iter.Key()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	out := make(map[string]any, len(entries))
	for _, en := range entries {
		out[en.key] = e.walk(en.val, child(path, en.key), depth+1)
	}
	return out
}

func (e *encoder) walkStruct(v reflect.Value, path []string, depth int) any {
	fields := cachedFields(v.Type())
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		fv, err := v.FieldByIndexErr(f.index)
		if err != nil {
			continue
		}
		if f.omitEmpty && isEmptyValue(fv) {
			continue
		}
		out[f.name] = e.walk(fv, child(path, f.name), depth+1)
	}
	return out
}

type field struct {
	name      string
	index     []int
	omitEmpty bool
}

var fieldCache sync.Map // reflect.Type -> []field

func cachedFields(t reflect.Type) []field {
	if f, ok := fieldCache.Load(t); ok {
		return f.([]field)
	}
	f, _ := fieldCache.LoadOrStore(t, typeFields(t))
	return f.([]field)
}

func typeFields(t reflect.Type) []field {
	var fields []field
	taken := make(map[string]bool)

	var visit func(t reflect.Type, index []int)
	visit = func(t reflect.Type, index []int) {
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			tag := sf.Tag.Get("json")
			if tag == "-" {
				continue
			}
			name, opts, _ := strings.Cut(tag, ",")
			idx := append(append([]int(nil), index...), i)

			if sf.Anonymous && name == "" {
				ft := sf.Type
				if ft.Kind() == reflect.Ptr {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					visit(ft, idx)
					continue
				}
			}
			if !sf.IsExported() {
				continue
			}
			if name == "" {
				name = sf.Name
			}
			if taken[name] {
				continue
			}
			taken[name] = true
			fields = append(fields, field{
				name:      name,
				index:     idx,
				omitEmpty: strings.Contains(opts, "omitempty"),
			})
		}
	}
	visit(t, nil)
	return fields
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	if k.CanInterface() {
		if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
			if text, err := safeText(tm); err == nil {
				return text
			}
		}
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(k.Uint(), 10)
	}
	if k.CanInterface() {
		return fmt.Sprint(k.Interface())
	}
	return k.String()
}

func safeText(tm encoding.TextMarshaler) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("MarshalText panicked: %v", r)
		}
	}()
	b, err := tm.MarshalText()
	return string(b), err
}

func safeMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("%T", err)
		}
	}()
	return err.Error()
}

func errorName(err error) string {
	if named, ok := err.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "Error"
}

func child(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

func joinPath(path []string) string {
	var b strings.Builder
	for i, seg := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		for _, r := range seg {
			if r == '.' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func splitPath(key string) []string {
	var segs []string
	var cur strings.Builder
	escaped := false
	for _, r := range key {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(segs, cur.String())
}

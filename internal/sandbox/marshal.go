package sandbox

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/toolpad/internal/codec"
)

const (
	maxExportDepth = 512
	// maxExportValues bounds the number of values copied out of one result.
	maxExportValues = 1 << 20
	// maxExportBytes bounds the string and key bytes copied out of one result.
	maxExportBytes = 32 << 20
	// exportCheckEvery is how many values are copied between deadline checks.
	exportCheckEvery = 1024
)

// copyIn builds an independent in-runtime copy of args by round-tripping
// them through JSON text. Nothing the sandbox receives aliases host memory.
func copyIn(rt *vmContext, args []any) ([]goja.Value, error) {
	values := make([]goja.Value, len(args))
	for i, arg := range args {
		text, err := sonic.ConfigStd.MarshalToString(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		v, err := rt.parse(goja.Undefined(), rt.vm.ToValue(text))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// exporter copies a sandbox value graph into plain Go values. It never
// hands out references into the runtime.
type exporter struct {
	ctx    context.Context
	vm     *goja.Runtime
	stack  []*goja.Object
	values int
	bytes  int
}

// copyOut exports v. Getters run during the walk, so a throw or an
// interrupt surfaces here as an error. The walk runs in Go after the
// sandbox has returned, so it watches ctx itself and stops at the export
// limits.
func copyOut(ctx context.Context, vm *goja.Runtime, v goja.Value) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, panicError(r)
		}
	}()
	e := &exporter{ctx: ctx, vm: vm}
	return e.export(v, "$")
}

// charge accounts for one exported value carrying n bytes of text.
func (e *exporter) charge(n int) error {
	e.values++
	e.bytes += n
	if e.values > maxExportValues || e.bytes > maxExportBytes {
		return tooLarge(e.values, e.bytes)
	}
	if e.values%exportCheckEvery == 0 && e.ctx.Err() != nil {
		return context.Cause(e.ctx)
	}
	return nil
}

func (e *exporter) export(v goja.Value, path string) (any, error) {
	if err := e.charge(0); err != nil {
		return nil, err
	}
	if v == nil || goja.IsUndefined(v) {
		return codec.Undefined{}, nil
	}
	if goja.IsNull(v) {
		return nil, nil
	}
	if _, ok := v.(*goja.Symbol); ok {
		return codec.Unserializable{Type: "symbol"}, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		out := exportPrimitive(v.Export())
		if str, ok := out.(string); ok {
			if err := e.charge(len(str)); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	switch class := obj.ClassName(); class {
	case "Function":
		return nil, unresolved(fmt.Sprintf("function at %s", path))
	case "Promise":
		return nil, unresolved(fmt.Sprintf("promise at %s", path))
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return t.UTC(), nil
		}
		return nil, nil
	case "Error":
		return &codec.Error{
			Name:    stringProp(obj, "name"),
			Message: stringProp(obj, "message"),
		}, nil
	case "RegExp":
		return codec.RegExp{
			Source: stringProp(obj, "source"),
			Flags:  stringProp(obj, "flags"),
		}, nil
	case "Number", "String", "Boolean":
		return exportPrimitive(obj.Export()), nil
	case "Array":
		return e.container(obj, path, e.array)
	case "Object", "Arguments":
		return e.container(obj, path, e.object)
	default:
		return codec.Unserializable{Type: class}, nil
	}
}

func (e *exporter) container(obj *goja.Object, path string, walk func(*goja.Object, string) (any, error)) (any, error) {
	for _, ancestor := range e.stack {
		if ancestor.SameAs(obj) {
			return nil, cyclic(path)
		}
	}
	if len(e.stack) >= maxExportDepth {
		return codec.Unserializable{Type: "depth"}, nil
	}

	e.stack = append(e.stack, obj)
	defer func() { e.stack = e.stack[:len(e.stack)-1] }()
	return walk(obj, path)
}

func (e *exporter) array(obj *goja.Object, path string) (any, error) {
	n := obj.Get("length").ToInteger()
	if n > maxExportValues {
		return nil, tooLarge(int(n), e.bytes)
	}
	out := make([]any, 0, min(n, exportCheckEvery))
	for i := int64(0); i < n; i++ {
		key := strconv.FormatInt(i, 10)
		v, err := e.export(obj.Get(key), path+"["+key+"]")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *exporter) object(obj *goja.Object, path string) (any, error) {
	keys := obj.Keys()
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if err := e.charge(len(key)); err != nil {
			return nil, err
		}
		v, err := e.export(obj.Get(key), path+"."+key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func exportPrimitive(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case float64, string, bool, *big.Int, nil:
		return x
	default:
		return codec.Unserializable{Type: fmt.Sprintf("%T", v)}
	}
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

package sandbox

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/fetch"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
)

// fetchOptions is the request shape the prelude's fetch wrapper sends.
type fetchOptions struct {
	Method  string      `json:"method"`
	Headers [][2]string `json:"headers"`
	Mode    string      `json:"mode"`
	Body    *string     `json:"body"`
}

// installBridge hands the host functions to the prelude, which closes over
// them and defines the sandbox globals. The bridge object is not kept
// anywhere user code can reach.
func (inv *invocation) installBridge() error {
	bridge := inv.vm.NewObject()
	stubs := []struct {
		name string
		fn   func(goja.FunctionCall) goja.Value
	}{
		{"fetch", inv.fetch},
		{"console", inv.consoleCall},
		{"setTimeout", inv.setTimeout},
		{"clearTimeout", inv.clearTimeout},
	}
	for _, s := range stubs {
		if err := bridge.Set(s.name, s.fn); err != nil {
			return fmt.Errorf("install %s: %w", s.name, err)
		}
	}
	_, err := inv.rt.install(goja.Undefined(), bridge)
	return err
}

// fetch starts the request on a host goroutine and returns a promise for a
// response descriptor. Host failures reject with a TypeError carrying only
// the message.
func (inv *invocation) fetch(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := inv.vm.NewPromise()

	var opts fetchOptions
	if err := sonic.ConfigStd.UnmarshalFromString(call.Argument(1).String(), &opts); err != nil {
		_ = reject(inv.vm.NewTypeError("Invalid fetch options."))
		return inv.vm.ToValue(promise)
	}
	if inv.fetcher == nil {
		_ = reject(inv.vm.NewTypeError("fetch is not available."))
		return inv.vm.ToValue(promise)
	}
	req := fetch.Request{
		URL:     call.Argument(0).String(),
		Method:  opts.Method,
		Headers: opts.Headers,
		Body:    opts.Body,
		Mode:    opts.Mode,
	}

	inv.inflight.Add(1)
	go func() {
		defer inv.inflight.Done()
		res, err := inv.fetcher.Do(inv.ctx, req)
		if err != nil {
			inv.post(func() error {
				return reject(inv.vm.NewTypeError(bridgeMessage(err)))
			})
			return
		}

		body, err := inv.handles.add(handleBody, func() { res.Body.Close() })
		if err != nil {
			res.Body.Close()
			return
		}
		inv.post(func() error {
			return resolve(inv.responseDescriptor(res, body))
		})
	}()

	return inv.vm.ToValue(promise)
}

func (inv *invocation) responseDescriptor(res *fetch.Response, body HandleID) goja.Value {
	headers := make([]interface{}, 0, len(res.Headers))
	for _, h := range res.Headers {
		headers = append(headers, inv.vm.NewArray(h[0], h[1]))
	}

	obj := inv.vm.NewObject()
	_ = obj.Set("url", res.URL)
	_ = obj.Set("ok", res.OK())
	_ = obj.Set("status", res.Status)
	_ = obj.Set("statusText", res.StatusText)
	_ = obj.Set("headers", inv.vm.NewArray(headers...))
	_ = obj.Set("json", func(goja.FunctionCall) goja.Value {
		return inv.readBody(res, body, true)
	})
	_ = obj.Set("text", func(goja.FunctionCall) goja.Value {
		return inv.readBody(res, body, false)
	})
	return obj
}

// readBody consumes a body handle. The read happens on a host goroutine; the
// decoded text is parsed inside the sandbox when asJSON is set.
func (inv *invocation) readBody(res *fetch.Response, body HandleID, asJSON bool) goja.Value {
	promise, resolve, reject := inv.vm.NewPromise()

	if _, ok := inv.handles.take(body, handleBody); !ok {
		_ = reject(inv.vm.NewTypeError("Body has already been consumed."))
		return inv.vm.ToValue(promise)
	}

	inv.inflight.Add(1)
	go func() {
		defer inv.inflight.Done()
		text, err := res.ReadText()
		inv.post(func() error {
			if err != nil {
				return reject(inv.vm.NewTypeError(bridgeMessage(err)))
			}
			if !asJSON {
				return resolve(text)
			}
			v, err := inv.rt.parse(goja.Undefined(), inv.vm.ToValue(text))
			if err != nil {
				var exception *goja.Exception
				if errors.As(err, &exception) {
					return reject(exception.Value())
				}
				return err
			}
			return resolve(v)
		})
	}()

	return inv.vm.ToValue(promise)
}

// maxConsoleBytes bounds the console text kept for one invocation.
const maxConsoleBytes = 8 << 20

// consoleCall records one console call. Arguments arrive already
// serialized by the prelude.
func (inv *invocation) consoleCall(call goja.FunctionCall) goja.Value {
	level := call.Argument(0).String()
	args := call.Argument(1).String()
	if inv.consoleBytes+len(args) > maxConsoleBytes {
		inv.dropped++
		return goja.Undefined()
	}
	inv.appendConsole(LogEntry{
		Level:   level,
		Message: consoleMessage(args),
		Args:    args,
		Time:    time.Now(),
	})
	return goja.Undefined()
}

func (inv *invocation) appendConsole(entry LogEntry) {
	inv.logger.Log(logging.ConsoleLevel(entry.Level), entry.Message,
		zap.String("key", "console"),
		zap.String("console_level", entry.Level),
	)
	size := len(entry.Message) + len(entry.Args)
	if (inv.maxConsole > 0 && len(inv.console) >= inv.maxConsole) || inv.consoleBytes+size > maxConsoleBytes {
		inv.dropped++
		return
	}
	inv.consoleBytes += size
	inv.console = append(inv.console, entry)
}

func (inv *invocation) setTimeout(call goja.FunctionCall) goja.Value {
	callback, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(inv.vm.NewTypeError("The callback passed to setTimeout must be a function."))
	}
	ms := call.Argument(1).ToFloat()
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	delay := time.Duration(math.Min(ms, float64(math.MaxInt64/int64(time.Millisecond)))) * time.Millisecond

	var timer *time.Timer
	id, err := inv.handles.add(handleTimer, func() { timer.Stop() })
	if err != nil {
		panic(inv.vm.NewTypeError(err.Error()))
	}
	timer = time.AfterFunc(delay, func() {
		inv.post(func() error {
			if _, ok := inv.handles.take(id, handleTimer); !ok {
				return nil
			}
			if _, err := callback(goja.Undefined()); err != nil {
				return inv.callbackFailed(err)
			}
			return nil
		})
	})
	return inv.vm.ToValue(int64(id))
}

// clearTimeout cancels a pending timer. Unknown ids are ignored.
func (inv *invocation) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if id <= 0 || id > math.MaxUint32 {
		return goja.Undefined()
	}
	if h, ok := inv.handles.take(HandleID(id), handleTimer); ok {
		h.release()
	}
	return goja.Undefined()
}

// consoleMessage joins serialized console arguments for display: strings
// as they are, everything else as JSON.
func consoleMessage(serialized string) string {
	var items []any
	if err := sonic.ConfigStd.UnmarshalFromString(serialized, &items); err != nil {
		return serialized
	}
	parts := make([]string, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			parts[i] = s
			continue
		}
		text, err := sonic.ConfigStd.MarshalToString(item)
		if err != nil {
			text = fmt.Sprint(item)
		}
		parts[i] = text
	}
	return strings.Join(parts, " ")
}

func quoteArgs(msg string) string {
	text, err := sonic.ConfigStd.MarshalToString([]string{msg})
	if err != nil {
		return "[]"
	}
	return text
}

// bridgeMessage is the message a sandbox sees for a host failure.
func bridgeMessage(err error) string {
	switch {
	case errors.Is(err, fetch.ErrHostNotAllowed):
		return "fetch failed: host is not allowed"
	case errors.Is(err, fetch.ErrBodyTooLarge):
		return "fetch failed: response body too large"
	case errors.Is(err, fetch.ErrInvalidURL):
		return "fetch failed: invalid URL"
	case errors.Is(err, fetch.ErrInvalidMethod):
		return "fetch failed: invalid method"
	case errors.Is(err, fetch.ErrInvalidMode):
		return "fetch failed: invalid mode"
	default:
		return "fetch failed: " + err.Error()
	}
}

package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

var (
	exportDefault = regexp.MustCompile(`(?m)^([ \t]*)export[ \t]+default[ \t]+`)
	exportDecl    = regexp.MustCompile(`(?m)^([ \t]*)export[ \t]+((?:async[ \t]+)?function[ \t]*\*?[ \t]*([A-Za-z_$][\w$]*)|class[ \t]+([A-Za-z_$][\w$]*)|(?:const|let|var)[ \t]+([A-Za-z_$][\w$]*))`)
	exportList    = regexp.MustCompile(`(?m)^[ \t]*export[ \t]*\{([^}]*)\}[ \t]*;?`)
	identifier    = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)
)

// rewriteModule turns an ES module with export statements into a factory
// expression `(function (exports) {...})` that assigns its exports onto the
// object it is given. Only the export forms a function module uses are
// recognised; import statements are not supported. Export keywords inside
// comments, strings, template literals and regular expression literals are
// left alone.
func rewriteModule(source string) (string, error) {
	var trailer []string

	var listErr error
	body := replaceInCode(exportList, source, func(m []string) string {
		for _, spec := range strings.Split(m[1], ",") {
			spec = strings.TrimSpace(spec)
			if spec == "" {
				continue
			}
			local, exported := spec, spec
			if parts := strings.Fields(spec); len(parts) == 3 && parts[1] == "as" {
				local, exported = parts[0], parts[2]
			}
			if !identifier.MatchString(local) || !identifier.MatchString(exported) {
				listErr = fmt.Errorf("unsupported export specifier %q", spec)
				continue
			}
			trailer = append(trailer, fmt.Sprintf("exports[%q] = %s;", exported, local))
		}
		return ""
	})
	if listErr != nil {
		return "", listErr
	}

	body = replaceInCode(exportDefault, body, func(m []string) string {
		return m[1] + "exports.default = "
	})
	body = replaceInCode(exportDecl, body, func(m []string) string {
		name := m[3] + m[4] + m[5]
		trailer = append(trailer, fmt.Sprintf("exports.%s = %s;", name, name))
		return m[1] + m[2]
	})

	var b strings.Builder
	b.WriteString("(function (exports) {\n")
	b.WriteString(body)
	b.WriteString("\n")
	for _, line := range trailer {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("})")
	return b.String(), nil
}

// replaceInCode replaces the matches of re that start outside any literal
// or comment. repl receives the submatches, with "" for groups that did
// not take part.
func replaceInCode(re *regexp.Regexp, src string, repl func(m []string) string) string {
	skip := literalSpans(src)
	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(src, -1) {
		if skip.contains(loc[0]) {
			continue
		}
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = src[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(src[last:loc[0]])
		b.WriteString(repl(groups))
		last = loc[1]
	}
	b.WriteString(src[last:])
	return b.String()
}

type span struct{ start, end int }

type spans []span

// contains reports whether pos falls inside one of the sorted spans.
func (s spans) contains(pos int) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].end > pos })
	return i < len(s) && s[i].start <= pos
}

// literalSpans finds comments, strings, template literals and regular
// expression literals in src. A slash starts a regular expression when the
// previous significant character cannot end an operand; keywords such as
// return are not recognised, so `return /re/` is scanned as division.
func literalSpans(src string) spans {
	var out spans
	var prev byte
	for i := 0; i < len(src); {
		c := src[i]
		end := -1
		switch {
		case strings.HasPrefix(src[i:], "//"):
			out = append(out, span{i, lineEnd(src, i)})
			i = out[len(out)-1].end
			continue
		case strings.HasPrefix(src[i:], "/*"):
			end = len(src)
			if j := strings.Index(src[i+2:], "*/"); j >= 0 {
				end = i + 2 + j + 2
			}
			out = append(out, span{i, end})
			i = end
			continue
		case c == '\'' || c == '"':
			end = quotedEnd(src, i, c, true)
		case c == '`':
			end = quotedEnd(src, i, '`', false)
		case c == '/' && (prev == 0 || strings.IndexByte("(,=:[!&|?{};+-*%<>~^", prev) >= 0):
			end = regexpEnd(src, i)
		}
		if end >= 0 {
			out = append(out, span{i, end})
			prev = c
			i = end
			continue
		}
		if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			prev = c
		}
		i++
	}
	return out
}

func lineEnd(src string, i int) int {
	if j := strings.IndexByte(src[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(src)
}

// quotedEnd returns the index just past the literal opened at i. Single
// and double quoted strings also stop at a line break.
func quotedEnd(src string, i int, quote byte, singleLine bool) int {
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			if singleLine {
				return j
			}
		}
	}
	return len(src)
}

func regexpEnd(src string, i int) int {
	inClass := false
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return j + 1
			}
		case '\n':
			return j
		}
	}
	return len(src)
}

// compileModule rewrites and compiles a module. Programs are independent of
// any runtime and may be run in several.
func compileModule(name, source string) (*goja.Program, error) {
	wrapped, err := rewriteModule(source)
	if err != nil {
		return nil, &CompileError{Module: name, Message: err.Error()}
	}
	prg, err := goja.Compile(name, wrapped, false)
	if err != nil {
		return nil, &CompileError{Module: name, Message: err.Error()}
	}
	return prg, nil
}

// entryPoint evaluates a compiled module in vm and returns its single
// callable export.
func entryPoint(vm *goja.Runtime, name string, prg *goja.Program) (goja.Callable, error) {
	factory, err := vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	run, ok := goja.AssertFunction(factory)
	if !ok {
		return nil, &CompileError{Module: name, Message: "module did not evaluate to a factory"}
	}

	exports := vm.NewObject()
	if _, err := run(goja.Undefined(), exports); err != nil {
		return nil, err
	}

	keys := exports.Keys()
	if len(keys) != 1 {
		return nil, &CompileError{
			Module:  name,
			Message: fmt.Sprintf("module must export exactly one function, found %d exports", len(keys)),
		}
	}
	entry, ok := goja.AssertFunction(exports.Get(keys[0]))
	if !ok {
		return nil, &CompileError{Module: name, Message: fmt.Sprintf("export %q is not a function", keys[0])}
	}
	return entry, nil
}

package decompile

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

const indentUnit = "    "

// WriteClass renders c as Java-like source: imports, the class header and
// every method in declaration order
func WriteClass(w io.Writer, c *ClassResult) {
	if imports := Imports(c); len(imports) > 0 {
		for _, name := range imports {
			fmt.Fprintf(w, "import %s;\n", name)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "class %s", jtypes.ShortName(jtypes.ClassOf(c.Class)))
	if c.Super != "" && c.Super != "java/lang/Object" {
		fmt.Fprintf(w, " extends %s", jtypes.ShortName(jtypes.ClassOf(c.Super)))
	}
	fmt.Fprintln(w, " {")
	for i, r := range c.Methods {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeMethod(w, r, 1)
	}
	fmt.Fprintln(w, "}")
}

// WriteMethod renders one method with its comments
func WriteMethod(w io.Writer, r *MethodResult) {
	writeMethod(w, r, 0)
}

func writeMethod(w io.Writer, r *MethodResult, depth int) {
	var buf bytes.Buffer
	buf.WriteString(r.Comments.String())
	fmt.Fprintf(&buf, "%s {\n", header(r))
	var body bytes.Buffer
	switch {
	case r.Raw != "":
		for _, line := range strings.Split(strings.TrimRight(r.Raw, "\n"), "\n") {
			fmt.Fprintf(&body, "// %s\n", line)
		}
		fmt.Fprintln(&body, `throw new IllegalStateException("Decompilation failed");`)
	case r.Body != nil:
		p := structured.NewPrinter(&body)
		p.Fmt = r.Fmt
		p.Decls = r.Decls
		p.PrintBody(r.Body)
	}
	indent(&buf, body.Bytes(), 1)
	buf.WriteString("}\n")
	indent(w, buf.Bytes(), depth)
}

// indent copies text to w with depth levels of indentation on every
// non-empty line
func indent(w io.Writer, text []byte, depth int) {
	prefix := strings.Repeat(indentUnit, depth)
	for _, line := range strings.SplitAfter(string(text), "\n") {
		if line == "" {
			continue
		}
		if line != "\n" {
			io.WriteString(w, prefix)
		}
		io.WriteString(w, line)
	}
}

// header returns the method declaration without the opening brace
func header(r *MethodResult) string {
	m := r.Method
	mt, _ := jtypes.ParseMethod(m.Descriptor)
	if m.Name == "<clinit>" {
		return "static"
	}
	params := r.Params
	if params == nil {
		for i, p := range mt.Params {
			params = append(params, fmt.Sprintf("%s arg%d", ir.TypeName(p), i))
		}
	}
	var sb strings.Builder
	if m.Static {
		sb.WriteString("static ")
	}
	if m.Name == "<init>" {
		sb.WriteString(jtypes.ShortName(jtypes.ClassOf(m.Owner)))
	} else {
		sb.WriteString(ir.TypeName(mt.Return))
		sb.WriteByte(' ')
		sb.WriteString(m.Name)
	}
	sb.WriteString("(" + strings.Join(params, ", ") + ")")
	return sb.String()
}

// Types returns every class type a method refers to in its signature
// and its structured body
func Types(r *MethodResult) []jtypes.Type {
	seen := make(map[string]jtypes.Type)
	add := func(t jtypes.Type) {
		t, _ = jtypes.Innermost(t)
		if c, ok := t.(jtypes.Class); ok {
			seen[c.Name] = c
		}
	}
	if mt, err := jtypes.ParseMethod(r.Method.Descriptor); err == nil {
		for _, p := range mt.Params {
			add(p)
		}
		add(mt.Return)
	}
	if r.Body != nil {
		for _, t := range structured.CollectTypes(r.Body) {
			add(t)
		}
		for _, d := range r.Decls.At {
			add(d)
		}
		for _, ds := range r.Decls.Top {
			for _, d := range ds {
				add(d.Type)
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]jtypes.Type, len(names))
	for i, n := range names {
		out[i] = seen[n]
	}
	return out
}

// Imports returns the dotted names a class must import: every referenced
// class outside java.lang and outside the class's own package
func Imports(c *ClassResult) []string {
	pkg := packageOf(c.Class)
	set := make(map[string]bool)
	for _, r := range c.Methods {
		for _, t := range Types(r) {
			name := t.(jtypes.Class).Name
			p := packageOf(name)
			if p == pkg || p == "java/lang" {
				continue
			}
			set[strings.ReplaceAll(name, "/", ".")] = true
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func packageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

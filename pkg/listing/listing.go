// Package listing reads method listings: a YAML document holding a
// javap-style disassembly of each method, its exception table and the
// class hierarchy the methods rely on. It plays the role of the class-file
// decoder for the decompiler.
package listing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/typecache"
)

// SupportedVersions is the constraint a listing's schema version must satisfy
const SupportedVersions = "^1.0.0"

// ErrVersion is returned for listings with an unsupported schema version
var ErrVersion = errors.New("unsupported listing version")

// SyntaxError reports a malformed listing line
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("listing: line %d: %s", e.Line, e.Msg)
	}
	return "listing: " + e.Msg
}

// File is the YAML form of a listing
type File struct {
	Version string               `yaml:"version"`
	Class   string               `yaml:"class"`
	Super   string               `yaml:"super,omitempty"`
	Classes map[string]ClassDecl `yaml:"classes,omitempty"`
	Methods []MethodDecl         `yaml:"methods"`
}

// ClassDecl declares one class of the hierarchy
type ClassDecl struct {
	Super      string   `yaml:"super,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
}

// MethodDecl is one method of a listing
type MethodDecl struct {
	Name       string          `yaml:"name"`
	Descriptor string          `yaml:"descriptor"`
	Flags      []string        `yaml:"flags,omitempty"`
	MaxLocals  int             `yaml:"max_locals,omitempty"`
	Code       string          `yaml:"code"`
	Exceptions []ExceptionDecl `yaml:"exceptions,omitempty"`
}

// ExceptionDecl is one exception table row; an empty Type catches everything
type ExceptionDecl struct {
	Start   int    `yaml:"start"`
	End     int    `yaml:"end"`
	Handler int    `yaml:"handler"`
	Type    string `yaml:"type,omitempty"`
}

// Listing is a decoded listing
type Listing struct {
	Version *semver.Version
	Class   string
	Super   string
	Methods []*bytecode.Method
	classes map[string]*typecache.ClassInfo
}

// Load reads and parses the listing at path
func Load(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a listing document
func Parse(data []byte) (*Listing, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}
	var f File
	if err := root.Decode(&f); err != nil {
		return nil, fmt.Errorf("listing: %w", err)
	}

	v, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, &SyntaxError{Msg: fmt.Sprintf("bad version %q: %v", f.Version, err)}
	}
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, err
	}
	if !c.Check(v) {
		return nil, fmt.Errorf("%w: %s does not satisfy %s", ErrVersion, v, SupportedVersions)
	}
	if f.Class == "" {
		return nil, &SyntaxError{Msg: "missing class"}
	}

	l := &Listing{Version: v, Class: f.Class, Super: f.Super, classes: make(map[string]*typecache.ClassInfo)}
	if l.Super == "" {
		l.Super = "java/lang/Object"
	}
	l.classes[f.Class] = &typecache.ClassInfo{Name: f.Class, Super: l.Super}
	for name, decl := range f.Classes {
		info := &typecache.ClassInfo{Name: name, Super: decl.Super, Interfaces: decl.Interfaces}
		if info.Super == "" && name != "java/lang/Object" {
			info.Super = "java/lang/Object"
		}
		l.classes[name] = info
	}

	lines := codeLines(&root)
	for i, md := range f.Methods {
		line := 0
		if i < len(lines) {
			line = lines[i]
		}
		m, err := md.method(f.Class, line)
		if err != nil {
			return nil, err
		}
		l.Methods = append(l.Methods, m)
	}
	return l, nil
}

// codeLines returns the line of the first code line of each method
func codeLines(root *yaml.Node) []int {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	methods := mappingValue(doc, "methods")
	if methods == nil || methods.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]int, len(methods.Content))
	for i, m := range methods.Content {
		code := mappingValue(m, "code")
		if code == nil {
			continue
		}
		out[i] = code.Line
		if code.Style == yaml.LiteralStyle || code.Style == yaml.FoldedStyle {
			out[i]++
		}
	}
	return out
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func (md *MethodDecl) method(owner string, line int) (*bytecode.Method, error) {
	mt, err := jtypes.ParseMethod(md.Descriptor)
	if err != nil {
		return nil, &SyntaxError{Line: line, Msg: fmt.Sprintf("method %s: %v", md.Name, err)}
	}
	m := &bytecode.Method{
		Owner:      owner,
		Name:       md.Name,
		Descriptor: md.Descriptor,
		MaxLocals:  md.MaxLocals,
	}
	for _, f := range md.Flags {
		if f == "static" {
			m.Static = true
		}
	}
	m.Code, err = ParseCode(md.Code, line)
	if err != nil {
		return nil, err
	}
	for _, e := range md.Exceptions {
		m.Exceptions = append(m.Exceptions, bytecode.ExceptionEntry{
			Start: e.Start, End: e.End, Handler: e.Handler, CatchType: e.Type,
		})
	}
	if m.MaxLocals == 0 {
		m.MaxLocals = inferMaxLocals(m, mt)
	}
	return m, nil
}

// inferMaxLocals covers the parameters and every local the code touches
func inferMaxLocals(m *bytecode.Method, mt jtypes.MethodType) int {
	n := mt.ArgSlots()
	if !m.Static {
		n++
	}
	for _, ins := range m.Code {
		info, _ := ins.Op.Info()
		if (info.Kind != bytecode.OpLocal && info.Kind != bytecode.OpIinc) || len(ins.Operands) == 0 {
			continue
		}
		size := 1
		switch ins.Op {
		case bytecode.Lload, bytecode.Dload, bytecode.Lstore, bytecode.Dstore:
			size = 2
		}
		if top := ins.Operands[0] + size; top > n {
			n = top
		}
	}
	return n
}

// LoadClass implements typecache.Loader over the declared hierarchy and
// the bundled platform classes.
func (l *Listing) LoadClass(ctx context.Context, name string) (*typecache.ClassInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if info, ok := l.classes[name]; ok {
		return info, nil
	}
	if info, ok := jdk[name]; ok {
		return info, nil
	}
	return nil, typecache.ErrNotFound
}

// Method returns the first method with the given name
func (l *Listing) Method(name string) (*bytecode.Method, bool) {
	for _, m := range l.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

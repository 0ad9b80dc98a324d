package decompile

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/config"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/listing"
	"github.com/raymyers/ralph-decomp/pkg/logger"
	"github.com/raymyers/ralph-decomp/pkg/structured"
)

func testEnv(t *testing.T, buf *bytes.Buffer) *Env {
	t.Helper()
	l, err := logger.New(logger.Config{Level: logger.LevelDebug, Output: buf})
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	opts := config.Default()
	opts.Jobs = 2
	return &Env{Options: opts, Logger: l}
}

func method(t *testing.T, desc, code string, exc ...bytecode.ExceptionEntry) *bytecode.Method {
	t.Helper()
	ins, err := listing.ParseCode(code, 0)
	if err != nil {
		t.Fatalf("ParseCode: %v", err)
	}
	return &bytecode.Method{Owner: "A", Name: "f", Descriptor: desc, Static: true, MaxLocals: 4, Code: ins, Exceptions: exc}
}

func text(r *MethodResult) string {
	var buf bytes.Buffer
	WriteMethod(&buf, r)
	return buf.String()
}

const ifElse = `
	0: iload_0
	1: ifeq 9
	4: iconst_1
	5: istore_1
	6: goto 11
	9: iconst_2
	10: istore_1
	11: iload_1
	12: ireturn`

func TestMethodIfElse(t *testing.T) {
	var logs bytes.Buffer
	r := Method(context.Background(), method(t, "(I)I", ifElse), testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	if !r.Structured || len(r.Comments) != 0 {
		t.Errorf("Structured = %v, comments = %q", r.Structured, r.Comments)
	}
	var ifs []*structured.If
	merges := 0
	structured.Walk(r.Body, func(s structured.Stmt) bool {
		switch s := s.(type) {
		case *structured.If:
			ifs = append(ifs, s)
		case *structured.Atom:
			if _, ok := s.S.(*ir.Merge); ok {
				merges++
			}
		}
		return true
	})
	if len(ifs) != 1 || ifs[0].Else == nil {
		t.Fatalf("want one if with an else:\n%s", text(r))
	}
	if _, ok := ifs[0].Then.(*structured.Block); !ok {
		t.Errorf("then arm is %T, want *structured.Block", ifs[0].Then)
	}
	if _, ok := ifs[0].Else.(*structured.Block); !ok {
		t.Errorf("else arm is %T, want *structured.Block", ifs[0].Else)
	}
	if merges != 0 {
		t.Errorf("%d merges left in the tree:\n%s", merges, text(r))
	}
	out := text(r)
	for _, want := range []string{"static int f(int n)", "int n2;", "return n2;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(logs.String(), "Method structured") {
		t.Errorf("no debug record for the method: %q", logs.String())
	}
}

// try { if (n > 0) return 1; A.a(); } finally { A.f(); } return 0;
const finallyReturn = `
	0: iload_0
	1: ifle 11
	4: iconst_1
	5: istore_1
	6: invokestatic A.f:()V
	9: iload_1
	10: ireturn
	11: invokestatic A.a:()V
	14: invokestatic A.f:()V
	17: goto 26
	20: astore_2
	21: invokestatic A.f:()V
	24: aload_2
	25: athrow
	26: iconst_0
	27: ireturn`

func TestMethodFoldsFinally(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "(I)I", finallyReturn,
		bytecode.ExceptionEntry{Start: 0, End: 6, Handler: 20},
		bytecode.ExceptionEntry{Start: 11, End: 14, Handler: 20})
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	out := text(r)
	if !r.Structured {
		t.Fatalf("not structured:\n%s", out)
	}
	if got := strings.Count(out, "A.f()"); got != 1 {
		t.Errorf("A.f() appears %d times, want 1:\n%s", got, out)
	}
	for _, want := range []string{"try {", "} finally {", "return 0;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "catch") {
		t.Errorf("catch-any handler left in the output:\n%s", out)
	}
}

func TestMethodInconsistency(t *testing.T) {
	var logs bytes.Buffer
	r := Method(context.Background(), method(t, "()V", "0: pop\n1: return"), testEnv(t, &logs))
	if !errors.Is(r.Err, ir.ErrBytecodeInconsistency) {
		t.Fatalf("Err = %v, want ErrBytecodeInconsistency", r.Err)
	}
	if !r.Failed() || r.Body != nil {
		t.Errorf("Failed = %v, Body = %v", r.Failed(), r.Body)
	}
	if !strings.Contains(r.Raw, "0: pop") {
		t.Errorf("Raw = %q, want the instruction dump", r.Raw)
	}
	if len(r.Comments) == 0 || r.Comments[0] != commentFailed {
		t.Errorf("Comments = %q", r.Comments)
	}
	out := text(r)
	for _, want := range []string{"/*\n * Exception decompiling\n", "// 0: pop", `throw new IllegalStateException("Decompilation failed");`} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(logs.String(), "Bytecode inconsistency") || !strings.Contains(logs.String(), "offset=0") {
		t.Errorf("inconsistency not logged: %q", logs.String())
	}
}

func TestMethodStall(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "(I)I", `
		0: iload_0
		1: ifeq 11
		4: iinc 0 1
		7: iload_0
		8: ifle 18
		11: iinc 0 -1
		14: iload_0
		15: ifgt 4
		18: iload_0
		19: ireturn`)
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	if r.Structured || r.Body == nil {
		t.Fatalf("Structured = %v, Body = %v", r.Structured, r.Body)
	}
	if len(r.Comments) == 0 || r.Comments[0] != commentIncomplete {
		t.Errorf("Comments = %q", r.Comments)
	}
	out := text(r)
	if !strings.Contains(out, "reduced confidence") || !strings.Contains(out, "goto L") {
		t.Errorf("output:\n%s", out)
	}
	if !strings.Contains(logs.String(), "Structuring incomplete") {
		t.Errorf("stall not logged: %q", logs.String())
	}
}

func TestStop(t *testing.T) {
	tests := []struct {
		stop    Stage
		flat    bool
		ssa     bool
		hasBody bool
	}{
		{StageCFG, false, false, false},
		{StageFlat, true, false, false},
		{StageSSA, true, true, false},
		{StageAll, true, true, true},
	}
	for _, tt := range tests {
		var logs bytes.Buffer
		env := testEnv(t, &logs)
		env.Stop = tt.stop
		r := Method(context.Background(), method(t, "(I)I", ifElse), env)
		if r.Err != nil || r.Graph == nil {
			t.Fatalf("stage %d: Err = %v, Graph = %v", tt.stop, r.Err, r.Graph)
		}
		if got := r.Graph.Blocks[0].Stmts != nil; got != tt.flat {
			t.Errorf("stage %d: simulated = %v, want %v", tt.stop, got, tt.flat)
		}
		if got := r.Info != nil; got != tt.ssa {
			t.Errorf("stage %d: ssa = %v, want %v", tt.stop, got, tt.ssa)
		}
		if got := r.Body != nil; got != tt.hasBody {
			t.Errorf("stage %d: body = %v, want %v", tt.stop, got, tt.hasBody)
		}
	}
}

const classListing = `version: 1.0.0
class: com/example/Foo
methods:
  - name: a
    descriptor: (Ljava/util/List;)I
    flags: [static]
    code: |
      0: aload_0
      1: invokeinterface java/util/List.size:()I 1
      6: ireturn
  - name: broken
    descriptor: ()V
    flags: [static]
    code: |
      0: pop
      1: return
  - name: c
    descriptor: (I)I
    flags: [static]
    code: |
      0: iload_0
      1: iconst_1
      2: iadd
      3: ireturn
`

func TestClass(t *testing.T) {
	cls, err := listing.Parse([]byte(classListing))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var logs bytes.Buffer
	res, err := Class(context.Background(), cls, testEnv(t, &logs))
	if err != nil {
		t.Fatalf("Class: %v", err)
	}
	names := make([]string, len(res.Methods))
	for i, r := range res.Methods {
		names[i] = r.Method.Name
	}
	if strings.Join(names, ",") != "a,broken,c" {
		t.Errorf("methods = %v, want declaration order", names)
	}
	if res.Failed() != 1 || !res.Methods[1].Failed() {
		t.Errorf("Failed = %d, want only broken", res.Failed())
	}

	var buf bytes.Buffer
	WriteClass(&buf, res)
	out := buf.String()
	for _, want := range []string{
		"import java.util.List;\n",
		"class Foo {\n",
		"    static int a(List list) {\n",
		"        return list.size();\n",
		"        return n + 1;\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if !strings.Contains(logs.String(), "Class decompiled") {
		t.Errorf("class not logged: %q", logs.String())
	}
}

func TestClassCancelled(t *testing.T) {
	cls, err := listing.Parse([]byte(classListing))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	env := &Env{Options: config.Default(), Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	if _, err := Class(ctx, cls, env); !errors.Is(err, context.Canceled) {
		t.Errorf("Class error = %v, want context.Canceled", err)
	}
}

func TestCommentsString(t *testing.T) {
	tests := []struct {
		in   Comments
		want string
	}{
		{nil, ""},
		{Comments{"one"}, "/*\n * one\n */\n"},
		{Comments{"one", "two"}, "/*\n * one\n * two\n */\n"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Comments(%q).String() = %q, want %q", []string(tt.in), got, tt.want)
		}
	}
}

func TestNamer(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "(Ljava/lang/Class;I)I", "0: iload_1\n1: ireturn")
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	want := []string{"Class clazz", "int n"}
	if strings.Join(r.Params, ", ") != strings.Join(want, ", ") {
		t.Errorf("Params = %q, want %q", r.Params, want)
	}
}

// { int i = 1; A.a(i); } { String s = "x"; A.b(s); }
const slotReuse = `
	0: iconst_1
	1: istore_1
	2: iload_1
	3: invokestatic A.a:(I)V
	6: ldc "x"
	8: astore_1
	9: aload_1
	10: invokestatic A.b:(Ljava/lang/String;)V
	13: return`

func TestMethodSlotReuse(t *testing.T) {
	var logs bytes.Buffer
	r := Method(context.Background(), method(t, "()V", slotReuse), testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	out := text(r)
	for _, want := range []string{"int n = 1;", "A.a(n);", `String string = "x";`, "A.b(string);"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	for _, bad := range []string{`n = "x"`, "return;"} {
		if strings.Contains(out, bad) {
			t.Errorf("output has %q:\n%s", bad, out)
		}
	}
}

// try { A.a(); } catch (Exception e) { A.b(e); } int n = 2; return n;
const catchSlotReuse = `
	0: invokestatic A.a:()V
	3: goto 12
	6: astore_0
	7: aload_0
	8: invokestatic A.b:(Ljava/lang/Exception;)V
	11: nop
	12: iconst_2
	13: istore_0
	14: iload_0
	15: ireturn`

func TestMethodCatchSlotReuse(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "()I", catchSlotReuse,
		bytecode.ExceptionEntry{Start: 0, End: 3, Handler: 6, CatchType: "java/lang/Exception"})
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	out := text(r)
	for _, want := range []string{"} catch (Exception exception) {", "A.b(exception);", "int n = 2;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "int n;") || strings.Contains(out, "Exception n") {
		t.Errorf("catch parameter shares the int's declaration:\n%s", out)
	}
}

// if (!(a < b)) return 1; return 0;
func TestMethodFloatCompareNaN(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "(FF)I", `
		0: fload_0
		1: fload_1
		2: fcmpg
		3: iflt 8
		6: iconst_1
		7: ireturn
		8: iconst_0
		9: ireturn`)
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	out := text(r)
	if !strings.Contains(out, "!(f < f2)") {
		t.Errorf("output lacks the NaN-safe test:\n%s", out)
	}
	if strings.Contains(out, ">=") {
		t.Errorf("comparison flipped:\n%s", out)
	}
}

// while (true) { try { n = A.a(n); if (n > 10) break; } catch (Exception e) { n--; } } return n;
func TestMethodTryInLoop(t *testing.T) {
	var logs bytes.Buffer
	m := method(t, "(I)I", `
		0: iload_0
		1: invokestatic A.a:(I)I
		4: istore_0
		5: iload_0
		6: bipush 10
		8: if_icmple 14
		11: goto 24
		14: goto 0
		17: astore_1
		18: iinc 0 -1
		21: goto 0
		24: iload_0
		25: ireturn`,
		bytecode.ExceptionEntry{Start: 0, End: 14, Handler: 17, CatchType: "java/lang/Exception"})
	r := Method(context.Background(), m, testEnv(t, &logs))
	if r.Err != nil {
		t.Fatalf("Err = %v", r.Err)
	}
	out := text(r)
	if !r.Structured {
		t.Fatalf("not structured:\n%s", out)
	}
	for _, want := range []string{"while (true) {", "try {", "break;", "} catch (Exception exception) {", "return n;"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "goto") {
		t.Errorf("raw jump left:\n%s", out)
	}
}

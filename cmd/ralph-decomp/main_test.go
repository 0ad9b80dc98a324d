package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raymyers/ralph-decomp/pkg/config"
)

const maxListing = "../../testdata/max.yaml"

func resetDebugFlags() {
	dListing = false
	dCFG = false
	dFlat = false
	dSSA = false
	dStructured = false
	dTypes = false
	methodName = ""
	configPath = ""
	watch = false
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetDebugFlags()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestDebugFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	for _, name := range append(debugFlagNames, "method", "config", "watch", "jobs", "log-level", "finally-equivalence") {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"single-dash dcfg", []string{"-dcfg", "a.yaml"}, []string{"--dcfg", "a.yaml"}},
		{"double dash kept", []string{"--dssa", "a.yaml"}, []string{"--dssa", "a.yaml"}},
		{"short flag kept", []string{"-j", "2", "a.yaml"}, []string{"-j", "2", "a.yaml"}},
		{"unknown single dash kept", []string{"-dfoo"}, []string{"-dfoo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeFlags(tt.input)
			if strings.Join(got, " ") != strings.Join(tt.expected, " ") {
				t.Errorf("normalizeFlags(%v) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNoArgsPrintsHelp(t *testing.T) {
	out, _, err := execute(t)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "ralph-decomp file [methname]") {
		t.Errorf("help output = %q", out)
	}
}

func TestDecompileClass(t *testing.T) {
	out, errOut, err := execute(t, maxListing)
	if err != nil {
		t.Fatalf("error: %v\n%s", err, errOut)
	}
	for _, want := range []string{
		"class Foo {",
		"static int max(int n, int n2) {",
		"static int sum(int[] intArray) {",
		"while (",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "goto") {
		t.Errorf("raw jumps in output:\n%s", out)
	}
}

func TestMethodArgument(t *testing.T) {
	out, _, err := execute(t, maxListing, "sum")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if strings.Contains(out, "max(") || !strings.Contains(out, "sum(") {
		t.Errorf("output:\n%s", out)
	}
}

func TestUnknownMethod(t *testing.T) {
	_, errOut, err := execute(t, "--method", "nope", maxListing)
	if !errors.Is(err, config.ErrBadParameters) {
		t.Fatalf("error = %v, want ErrBadParameters", err)
	}
	if !strings.Contains(errOut, "usage: ralph-decomp file [methname]") {
		t.Errorf("stderr = %q, want usage", errOut)
	}
}

func TestMissingFile(t *testing.T) {
	_, errOut, err := execute(t, filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(errOut, "ralph-decomp: error:") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestDumpFlags(t *testing.T) {
	tests := []struct {
		flag string
		want []string
	}{
		{"-dlisting", []string{"method max(II)I max_locals 2", "2: if_icmple 7"}},
		{"-dcfg", []string{"method max(II)I", "B0 @0", "succs:"}},
		{"-dflat", []string{"method sum([I)I", "return"}},
		{"-dssa", []string{"v1_"}},
		{"-dstructured", []string{"method sum([I)I", "while ("}},
		{"-dtypes", []string{"max(II)I: \n"}},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			out, errOut, err := execute(t, tt.flag, maxListing)
			if err != nil {
				t.Fatalf("error: %v\n%s", err, errOut)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output lacks %q:\n%s", want, out)
				}
			}
			if strings.Contains(out, "class Foo") {
				t.Errorf("dump printed the class:\n%s", out)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decomp.yaml")
	if err := os.WriteFile(path, []byte("finally_equivalence: fuzzy\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, errOut, err := execute(t, "--config", path, maxListing)
	if !errors.Is(err, config.ErrBadParameters) {
		t.Fatalf("error = %v, want ErrBadParameters", err)
	}
	if !strings.Contains(errOut, "fuzzy") {
		t.Errorf("stderr = %q", errOut)
	}

	// an explicit flag overrides the file
	_, errOut, err = execute(t, "--config", path, "--finally-equivalence", "exact", maxListing)
	if err != nil {
		t.Errorf("error = %v\n%s", err, errOut)
	}
}

// syncBuffer is a bytes.Buffer safe for the watch goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, b *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(b.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in:\n%s", want, b.String())
}

func TestWatch(t *testing.T) {
	data, err := os.ReadFile(maxListing)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	path := filepath.Join(t.TempDir(), "max.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	resetDebugFlags()
	var out, errOut syncBuffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--watch", path})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, &out, "static int max(")
	renamed := strings.Replace(string(data), "name: sum", "name: total", 1)
	if err := os.WriteFile(path, []byte(renamed), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	waitFor(t, &out, "static int total(")
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
	if !strings.Contains(errOut.String(), "changed") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/logger"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decomp.yaml")
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	o, err := Load(writeConfig(t, "jobs: 3\nfinally_equivalence: exact\ncollapse_ternaries: false\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if o.Jobs != 3 {
		t.Errorf("Jobs = %d, want 3", o.Jobs)
	}
	if o.Equivalence() != ir.ExactEquivalence {
		t.Errorf("Equivalence = %v, want exact", o.Equivalence())
	}
	if o.CollapseTernaries {
		t.Error("CollapseTernaries = true, want false")
	}
	if o.MaxIterations != Default().MaxIterations || !o.ElideCasts {
		t.Errorf("unset keys lost their defaults: %+v", o)
	}
}

func TestLoadEmpty(t *testing.T) {
	o, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if o != Default() {
		t.Errorf("Load(empty) = %+v, want defaults", o)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "jobz: 3\n"))
	if !errors.Is(err, ErrBadParameters) {
		t.Errorf("Load error = %v, want ErrBadParameters", err)
	}
}

func TestFlagsOverrideFile(t *testing.T) {
	o, err := Load(writeConfig(t, "jobs: 3\nlog_level: info\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)
	if err := fs.Parse([]string{"-j", "5", "--finally-equivalence=exact"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if o.Jobs != 5 {
		t.Errorf("Jobs = %d, want 5", o.Jobs)
	}
	if o.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info from the file", o.LogLevel)
	}
	if o.FinallyEquivalence != "exact" {
		t.Errorf("FinallyEquivalence = %q, want exact", o.FinallyEquivalence)
	}
}

func TestMerge(t *testing.T) {
	path := writeConfig(t, "jobs: 3\nmax_iterations: 50\n")
	o := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.BindFlags(fs)
	if err := fs.Parse([]string{"--max-iterations=7"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := o.Merge(path, fs); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if o.Jobs != 3 {
		t.Errorf("Jobs = %d, want 3 from the file", o.Jobs)
	}
	if o.MaxIterations != 7 {
		t.Errorf("MaxIterations = %d, want 7 from the flag", o.MaxIterations)
	}
	if err := o.Merge(filepath.Join(t.TempDir(), "missing.yaml"), fs); err == nil {
		t.Error("Merge of a missing file succeeded")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Options)
		ok   bool
	}{
		{"defaults", func(*Options) {}, true},
		{"zero jobs", func(o *Options) { o.Jobs = 0 }, false},
		{"zero iterations", func(o *Options) { o.MaxIterations = 0 }, false},
		{"bad level", func(o *Options) { o.LogLevel = "loud" }, false},
		{"bad format", func(o *Options) { o.LogFormat = "xml" }, false},
		{"bad equivalence", func(o *Options) { o.FinallyEquivalence = "fuzzy" }, false},
		{"json", func(o *Options) { o.LogFormat = "json" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Default()
			tt.edit(&o)
			err := o.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrBadParameters) {
				t.Errorf("Validate = %v, want ErrBadParameters", err)
			}
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	o := Default()
	o.LogLevel = "debug"
	o.LogFormat = "json"
	cfg := o.LoggerConfig()
	if cfg.Level != logger.LevelDebug || cfg.Format != "json" {
		t.Errorf("LoggerConfig = %+v", cfg)
	}
}

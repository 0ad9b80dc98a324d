// Package config holds the decompiler options. Options come from an
// optional YAML file and are then overridden by command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/logger"
)

// ErrBadParameters marks invalid options or command-line usage
var ErrBadParameters = errors.New("bad parameters")

// Usage is printed with parameter errors
const Usage = "ralph-decomp file [methname]"

// Options configures a decompilation run
type Options struct {
	Jobs               int    `yaml:"jobs"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
	FinallyEquivalence string `yaml:"finally_equivalence"`
	MaxIterations      int    `yaml:"max_iterations"`
	ElideCasts         bool   `yaml:"elide_casts"`
	CollapseTernaries  bool   `yaml:"collapse_ternaries"`
}

// Default returns the options used when nothing is configured
func Default() Options {
	return Options{
		Jobs:               runtime.NumCPU(),
		LogLevel:           "warn",
		LogFormat:          "text",
		FinallyEquivalence: "slot",
		MaxIterations:      10000,
		ElideCasts:         true,
		CollapseTernaries:  true,
	}
}

// Load reads the options file at path on top of the defaults. Unknown
// keys are rejected.
func Load(path string) (Options, error) {
	o := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return o, err
	}
	if err := o.decode(data); err != nil {
		return o, fmt.Errorf("config %s: %w", path, err)
	}
	return o, nil
}

func (o *Options) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadParameters, err)
	}
	return nil
}

// BindFlags registers a flag for every option, defaulting to the current
// values
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&o.Jobs, "jobs", "j", o.Jobs, "Methods structured in parallel")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&o.LogFormat, "log-format", o.LogFormat, "Log format (text, json)")
	fs.StringVar(&o.FinallyEquivalence, "finally-equivalence", o.FinallyEquivalence, "Finally copy matching (slot, exact)")
	fs.IntVar(&o.MaxIterations, "max-iterations", o.MaxIterations, "Structuring transitions per method before falling back")
	fs.BoolVar(&o.ElideCasts, "elide-casts", o.ElideCasts, "Drop casts the class hierarchy proves redundant")
	fs.BoolVar(&o.CollapseTernaries, "collapse-ternaries", o.CollapseTernaries, "Rebuild conditional expressions")
}

// Merge loads the options file at path under the flags already set on
// fs. Keys from the file replace the defaults; explicit flags still win.
func (o *Options) Merge(path string, fs *pflag.FlagSet) error {
	set := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) { set[f.Name] = f.Value.String() })
	loaded, err := Load(path)
	if err != nil {
		return err
	}
	*o = loaded
	for name, v := range set {
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("%w: --%s: %v", ErrBadParameters, name, err)
		}
	}
	return nil
}

// Validate checks the option values
func (o Options) Validate() error {
	if o.Jobs < 1 {
		return fmt.Errorf("%w: jobs must be positive, got %d", ErrBadParameters, o.Jobs)
	}
	if o.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be positive, got %d", ErrBadParameters, o.MaxIterations)
	}
	if _, err := logger.ParseLevel(o.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParameters, err)
	}
	if o.LogFormat != "text" && o.LogFormat != "json" {
		return fmt.Errorf("%w: unknown log format %q", ErrBadParameters, o.LogFormat)
	}
	if _, err := ir.ParseEquivalence(o.FinallyEquivalence); err != nil {
		return fmt.Errorf("%w: %v", ErrBadParameters, err)
	}
	return nil
}

// Equivalence returns the finally matching relation; options are assumed
// valid
func (o Options) Equivalence() ir.Equivalence {
	q, _ := ir.ParseEquivalence(o.FinallyEquivalence)
	return q
}

// LoggerConfig returns the logger configuration for the options
func (o Options) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level, _ = logger.ParseLevel(o.LogLevel)
	cfg.Format = o.LogFormat
	return cfg
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/config"
	"github.com/raymyers/ralph-decomp/pkg/decompile"
	"github.com/raymyers/ralph-decomp/pkg/listing"
	"github.com/raymyers/ralph-decomp/pkg/logger"
	"github.com/raymyers/ralph-decomp/pkg/structured"
	"github.com/raymyers/ralph-decomp/pkg/typecache"
)

var version = "0.1.0"

// Debug flags for dumping intermediate representations
var (
	dListing    bool
	dCFG        bool
	dFlat       bool
	dSSA        bool
	dStructured bool
	dTypes      bool
)

var (
	methodName string
	configPath string
	watch      bool
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags such as -dcfg
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags accepted in single-dash style
var debugFlagNames = []string{"dlisting", "dcfg", "dflat", "dssa", "dstructured", "dtypes"}

// normalizeFlags converts single-dash dump flags like -dcfg to --dcfg
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	opts := config.Default()
	rootCmd := &cobra.Command{
		Use:   config.Usage,
		Short: "ralph-decomp structures JVM method bytecode into Java-like source",
		Long: `ralph-decomp reads a method listing (a YAML javap-style disassembly)
and recovers structured Java-like source: expressions from the operand
stack, SSA locals, loops, conditionals, switches and try/catch/finally.
The -d flags dump each intermediate stage.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			if configPath != "" {
				if err := opts.Merge(configPath, cmd.Flags()); err != nil {
					return report(errOut, err)
				}
			}
			if err := opts.Validate(); err != nil {
				return report(errOut, err)
			}
			lcfg := opts.LoggerConfig()
			lcfg.Output = errOut
			if err := logger.Init(lcfg); err != nil {
				return report(errOut, err)
			}
			name := methodName
			if len(args) == 2 {
				name = args[1]
			}
			filename := args[0]
			once := func() error { return process(cmd.Context(), filename, name, opts, out, errOut) }
			if watch {
				return watchFile(cmd.Context(), filename, once, errOut)
			}
			return once()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Add debug flags
	rootCmd.Flags().BoolVar(&dListing, "dlisting", false, "Dump the parsed listing")
	rootCmd.Flags().BoolVar(&dCFG, "dcfg", false, "Dump the control-flow graph")
	rootCmd.Flags().BoolVar(&dFlat, "dflat", false, "Dump the simulated statements per block")
	rootCmd.Flags().BoolVar(&dSSA, "dssa", false, "Dump the statements after SSA renaming and inlining")
	rootCmd.Flags().BoolVar(&dStructured, "dstructured", false, "Dump the structured tree with SSA names")
	rootCmd.Flags().BoolVar(&dTypes, "dtypes", false, "Dump the types each method refers to")

	rootCmd.Flags().StringVar(&methodName, "method", "", "Only decompile the named method")
	rootCmd.Flags().StringVar(&configPath, "config", "", "Options file (YAML)")
	rootCmd.Flags().BoolVar(&watch, "watch", false, "Decompile again whenever the file changes")
	opts.BindFlags(rootCmd.Flags())

	return rootCmd
}

// report prints err, with the usage line for parameter errors
func report(errOut io.Writer, err error) error {
	fmt.Fprintf(errOut, "ralph-decomp: error: %v\n", err)
	if errors.Is(err, config.ErrBadParameters) {
		fmt.Fprintf(errOut, "usage: %s\n", config.Usage)
	}
	return err
}

// process decompiles or dumps filename according to the flags
func process(ctx context.Context, filename, name string, opts config.Options, out, errOut io.Writer) error {
	l, err := listing.Load(filename)
	if err != nil {
		return report(errOut, err)
	}
	methods, err := selectMethods(l, name)
	if err != nil {
		return report(errOut, err)
	}
	env := &decompile.Env{Options: opts, Types: typecache.New(l), Logger: logger.With("file", filename)}

	switch {
	case dListing:
		doListing(methods, out)
	case dCFG:
		doStage(ctx, methods, env, decompile.StageCFG, out)
	case dFlat:
		doStage(ctx, methods, env, decompile.StageFlat, out)
	case dSSA:
		doStage(ctx, methods, env, decompile.StageSSA, out)
	case dStructured:
		doStructured(ctx, methods, env, out)
	case dTypes:
		doTypes(ctx, methods, env, out)
	case name != "":
		decompile.WriteMethod(out, decompile.Method(ctx, methods[0], env))
	default:
		res, err := decompile.Class(ctx, l, env)
		if err != nil {
			return report(errOut, err)
		}
		decompile.WriteClass(out, res)
	}
	return ctx.Err()
}

func selectMethods(l *listing.Listing, name string) ([]*bytecode.Method, error) {
	if name == "" {
		return l.Methods, nil
	}
	m, ok := l.Method(name)
	if !ok {
		return nil, fmt.Errorf("%w: no method %q in %s", config.ErrBadParameters, name, l.Class)
	}
	return []*bytecode.Method{m}, nil
}

func doListing(methods []*bytecode.Method, out io.Writer) {
	for _, m := range methods {
		fmt.Fprintf(out, "method %s%s max_locals %d\n", m.Name, m.Descriptor, m.MaxLocals)
		for i := range m.Code {
			fmt.Fprintf(out, "  %s\n", m.Code[i].String())
		}
		for _, e := range m.Exceptions {
			typ := e.CatchType
			if typ == "" {
				typ = "any"
			}
			fmt.Fprintf(out, "  exception [%d, %d) -> %d %s\n", e.Start, e.End, e.Handler, typ)
		}
	}
}

// doStage runs each method up to stop and prints its graph
func doStage(ctx context.Context, methods []*bytecode.Method, env *decompile.Env, stop decompile.Stage, out io.Writer) {
	e := *env
	e.Stop = stop
	for _, m := range methods {
		r := decompile.Method(ctx, m, &e)
		if r.Failed() {
			fmt.Fprint(out, r.Comments.String())
			if r.Graph == nil {
				continue
			}
		}
		p := cfg.NewPrinter(out)
		p.Stmts = stop != decompile.StageCFG
		p.PrintGraph(r.Graph)
	}
}

func doStructured(ctx context.Context, methods []*bytecode.Method, env *decompile.Env, out io.Writer) {
	for _, m := range methods {
		r := decompile.Method(ctx, m, env)
		fmt.Fprintf(out, "method %s%s\n", m.Name, m.Descriptor)
		fmt.Fprint(out, r.Comments.String())
		if r.Body != nil {
			structured.NewPrinter(out).PrintBody(r.Body)
		}
	}
}

func doTypes(ctx context.Context, methods []*bytecode.Method, env *decompile.Env, out io.Writer) {
	for _, m := range methods {
		r := decompile.Method(ctx, m, env)
		names := []string{}
		for _, t := range decompile.Types(r) {
			names = append(names, t.String())
		}
		fmt.Fprintf(out, "%s%s: %s\n", m.Name, m.Descriptor, strings.Join(names, " "))
	}
}

// watchFile runs once, then again on every write to filename until ctx
// is done. Errors from a run are already reported and do not stop the
// watch.
func watchFile(ctx context.Context, filename string, once func() error, errOut io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return report(errOut, err)
	}
	defer w.Close()
	// Editors often replace the file, so watch its directory
	if err := w.Add(filepath.Dir(filename)); err != nil {
		return report(errOut, err)
	}
	target := filepath.Clean(filename)
	once()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Debug("File changed", "file", ev.Name, "op", ev.Op.String())
			fmt.Fprintf(errOut, "ralph-decomp: %s changed\n", filename)
			once()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(errOut, "ralph-decomp: watch error: %v\n", err)
		}
	}
}

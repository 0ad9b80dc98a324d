// Package decompile drives the pipeline for one method and for a whole
// class: control-flow graph, stack simulation, SSA and single-use
// inlining, structuring, try normalization and the tree clean-ups that
// precede rendering. It classifies failures into the raw-dump fallback and
// the reduced-confidence comment.
package decompile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph-decomp/pkg/bytecode"
	"github.com/raymyers/ralph-decomp/pkg/cfg"
	"github.com/raymyers/ralph-decomp/pkg/config"
	"github.com/raymyers/ralph-decomp/pkg/ir"
	"github.com/raymyers/ralph-decomp/pkg/jtypes"
	"github.com/raymyers/ralph-decomp/pkg/listing"
	"github.com/raymyers/ralph-decomp/pkg/logger"
	"github.com/raymyers/ralph-decomp/pkg/ssa"
	"github.com/raymyers/ralph-decomp/pkg/stacksim"
	"github.com/raymyers/ralph-decomp/pkg/structure"
	"github.com/raymyers/ralph-decomp/pkg/structured"
	"github.com/raymyers/ralph-decomp/pkg/trynorm"
	"github.com/raymyers/ralph-decomp/pkg/typecache"
)

// Stage is the pipeline stage a run stops after
type Stage int

const (
	// StageAll runs the whole pipeline
	StageAll Stage = iota
	// StageCFG stops after building the control-flow graph
	StageCFG
	// StageFlat stops after stack simulation
	StageFlat
	// StageSSA stops after SSA renaming and single-use inlining
	StageSSA
)

// Comment texts
const (
	commentFailed     = "Exception decompiling"
	commentIncomplete = "Unable to fully structure code; reduced confidence"
)

// Env is what a run shares across methods
type Env struct {
	Options config.Options
	// Types backs the type oracle; nil runs without hierarchy knowledge
	Types  *typecache.Cache
	Logger *slog.Logger
	Stop   Stage
}

func (env *Env) logger() *slog.Logger {
	if env.Logger != nil {
		return env.Logger
	}
	return logger.Default()
}

// MethodResult is the outcome of decompiling one method
type MethodResult struct {
	Method *bytecode.Method
	Graph  *cfg.Graph
	Layout stacksim.Layout
	Info   *ssa.Info

	// Body is nil when the method failed or the run stopped early
	Body  *structured.Block
	Decls *structured.Decls
	// Fmt names locals for rendering
	Fmt *ir.Formatter
	// Params are the display names of the parameters, this excluded
	Params []string

	Structured bool
	Iterations int
	Comments   Comments

	// Raw is the instruction dump printed in place of a failed method
	Raw string
	Err error
}

// Failed reports whether the method fell back to the raw dump
func (r *MethodResult) Failed() bool { return r.Err != nil }

// Method decompiles m. Bytecode inconsistencies and other per-method
// failures are reported in the result, never returned.
func Method(ctx context.Context, m *bytecode.Method, env *Env) *MethodResult {
	log := env.logger()
	r := &MethodResult{Method: m}
	if err := ctx.Err(); err != nil {
		r.Err = err
		return r
	}
	if err := r.run(ctx, env, log); err != nil {
		r.fail(err, log)
	}
	return r
}

func (r *MethodResult) run(ctx context.Context, env *Env, log *slog.Logger) error {
	opts := env.Options
	g, err := cfg.Build(r.Method)
	if err != nil {
		return err
	}
	r.Graph = g
	if env.Stop == StageCFG {
		return nil
	}

	var oracle jtypes.Oracle
	if env.Types != nil {
		oracle = env.Types.Oracle(ctx)
	}
	layout, err := stacksim.Run(g, stacksim.Options{Oracle: oracle, ElideCasts: opts.ElideCasts})
	if err != nil {
		return err
	}
	r.Layout = layout
	if env.Stop == StageFlat {
		return nil
	}

	info, err := ssa.Build(g)
	if err != nil {
		return err
	}
	stack := func(lv ir.LValue) bool { return layout.IsStack(lv.Slot) }
	info.Filter = stack
	ssa.InlineSingleUse(g, info)
	if err := ssa.Verify(g, info); err != nil {
		return err
	}
	r.Info = info
	if env.Stop == StageSSA {
		return nil
	}

	norm := trynorm.Normalizer{Eq: opts.Equivalence()}
	res, err := structure.Run(g, structure.Options{
		MaxIterations: opts.MaxIterations,
		OnTry:         norm.Try,
		Logger:        log.With("method", r.Method.ID()),
	})
	if err != nil {
		return err
	}
	body := res.Body
	if opts.CollapseTernaries {
		structured.CollapseTernaries(body, layout.IsSpill)
	}
	first := paramEnd(r.Method)
	vars := structured.FindVars(body, func(slot int) bool { return slot < first })
	structured.DropMerges(body)
	if s, changed := norm.Normalize(body); changed {
		body = structured.NewBlock(s)
	}
	ssa.InlineTree(body, stack)
	structured.Tidy(body)
	structured.TrimReturn(body)
	if err := structured.CheckScoping(body); err != nil {
		return err
	}

	r.Body = body
	r.Iterations = res.Iterations
	r.Structured = res.Structured && structured.IsFullyStructured(body)
	if !r.Structured {
		r.Comments = append(r.Comments, commentIncomplete)
		logger.LogStall(log, r.Method.ID(), res.Notes)
	}
	r.Comments = append(r.Comments, res.Notes...)
	r.declare(vars)
	logger.LogMethod(log, r.Method.ID(), len(g.Blocks), res.Iterations)
	return nil
}

// fail records err and replaces the body with the raw instruction dump
func (r *MethodResult) fail(err error, log *slog.Logger) {
	r.Err = err
	r.Body = nil
	var ie *ir.InconsistencyError
	if errors.As(err, &ie) {
		logger.LogInconsistency(log, r.Method.ID(), ie.Offset,
			strconv.Itoa(ie.Expected), strconv.Itoa(ie.Actual), ie.Kind.String())
	} else {
		log.Warn("Decompilation failed", "method", r.Method.ID(), "error", err)
	}
	r.Comments = append(r.Comments, commentFailed, err.Error())
	r.Raw = rawDump(r.Method)
}

func rawDump(m *bytecode.Method) string {
	var sb strings.Builder
	for i := range m.Code {
		sb.WriteString(m.Code[i].String())
		sb.WriteByte('\n')
	}
	for _, e := range m.Exceptions {
		typ := e.CatchType
		if typ == "" {
			typ = "any"
		}
		fmt.Fprintf(&sb, "exception [%d, %d) -> %d %s\n", e.Start, e.End, e.Handler, typ)
	}
	return sb.String()
}

// ClassResult holds the decompiled methods of one class in declaration
// order
type ClassResult struct {
	Class   string
	Super   string
	Methods []*MethodResult
}

// Failed returns the number of methods that fell back to the raw dump
func (c *ClassResult) Failed() int {
	n := 0
	for _, r := range c.Methods {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Class decompiles every method of cls, up to Options.Jobs at a time.
// Per-method failures stay in their results; only cancellation of ctx
// aborts the class.
func Class(ctx context.Context, cls *listing.Listing, env *Env) (*ClassResult, error) {
	if env.Types == nil {
		e := *env
		e.Types = typecache.New(cls)
		env = &e
	}
	out := &ClassResult{Class: cls.Class, Super: cls.Super, Methods: make([]*MethodResult, len(cls.Methods))}

	g, gctx := errgroup.WithContext(ctx)
	if env.Options.Jobs > 0 {
		g.SetLimit(env.Options.Jobs)
	}
	for i, m := range cls.Methods {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Methods[i] = Method(gctx, m, env)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("class %s: %w", cls.Class, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("class %s: %w", cls.Class, err)
	}
	logger.LogClass(env.logger(), cls.Class, len(out.Methods), out.Failed())
	return out, nil
}

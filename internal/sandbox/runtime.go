// Package sandbox compiles and runs untrusted node scripts in a
// restricted interpreter. Scripts get a fixed builtin surface, an
// allow-listed module set, and whatever host capabilities the caller
// injects through the libs namespace. No filesystem, no network, no
// process access.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

const entryFunction = "run"

// Declaration block names recognized by convention
const (
	nodeParamsDecl  = "NodeParameters"
	inputParamsDecl = "InputParameters"
)

// Options configures the restricted execution environment
type Options struct {
	// MaxSteps bounds interpreter work per invocation. Zero disables
	// the limit.
	MaxSteps uint64
	// Timeout is the wall-clock budget per invocation. Zero disables
	// the deadline.
	Timeout time.Duration
}

// Runtime compiles node scripts into invocable units
type Runtime struct {
	opts     Options
	modules  starlark.StringDict
	fileOpts *syntax.FileOptions
}

func New(opts Options) *Runtime {
	return &Runtime{
		opts:    opts,
		modules: standardModules(),
		fileOpts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Recursion:       true,
		},
	}
}

// CompiledNode is a validated script ready to invoke. Compilation
// happens once per node execution but the unit itself is reusable and
// carries no per-invocation state.
type CompiledNode struct {
	rt         *Runtime
	name       string
	program    *starlark.Program
	paramSpecs map[string]fieldSpec
	inputSpecs map[string]fieldSpec
}

// Compile parses and resolves a script under the restricted grammar and
// reads its declaration blocks without executing any of its code.
func (r *Runtime) Compile(name, source string) (*CompiledNode, error) {
	predeclared := r.predeclared(nil, nil, nil)
	file, program, err := starlark.SourceProgramOptions(r.fileOpts, name+".star", source, predeclared.Has)
	if err != nil {
		return nil, fmt.Errorf("script compile failed: %w", err)
	}
	node := &CompiledNode{rt: r, name: name, program: program}
	node.paramSpecs = parseFieldSpecs(r.extractDeclaration(file, nodeParamsDecl))
	node.inputSpecs = parseFieldSpecs(r.extractDeclaration(file, inputParamsDecl))
	return node, nil
}

// extractDeclaration statically evaluates a top-level `Name = {...}`
// assignment. Declaration blocks are constant by convention; anything
// that needs runtime state to evaluate is ignored.
func (r *Runtime) extractDeclaration(file *syntax.File, target string) map[string]any {
	for _, stmt := range file.Stmts {
		assign, ok := stmt.(*syntax.AssignStmt)
		if !ok || assign.Op != syntax.EQ {
			continue
		}
		ident, ok := assign.LHS.(*syntax.Ident)
		if !ok || ident.Name != target {
			continue
		}
		thread := &starlark.Thread{Name: "decl:" + target}
		value, err := starlark.EvalExprOptions(r.fileOpts, thread, assign.RHS, starlark.StringDict{})
		if err != nil {
			return nil
		}
		decl, _ := fromValue(thread, value).(map[string]any)
		return decl
	}
	return nil
}

func (r *Runtime) predeclared(libs, nodeParams, inputParams starlark.Value) starlark.StringDict {
	env := make(starlark.StringDict, len(r.modules)+3)
	for name, mod := range r.modules {
		env[name] = mod
	}
	if libs == nil {
		libs = starlark.None
	}
	if nodeParams == nil {
		nodeParams = starlark.None
	}
	if inputParams == nil {
		inputParams = starlark.None
	}
	env["libs"] = libs
	env["nodeParameters"] = nodeParams
	env["inputParameters"] = inputParams
	return env
}

func (r *Runtime) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	if mod, ok := r.modules[module]; ok {
		return starlark.StringDict{module: mod}, nil
	}
	return nil, fmt.Errorf("cannot load %q: module is not in the allowed set", module)
}

// Invocation carries one call's inputs and capability surface
type Invocation struct {
	// Inputs is the merged upstream output mapping passed to run
	Inputs map[string]any
	// Params overrides the script's declared parameter defaults
	Params map[string]any
	// HandleInputs holds per-handle collected values for the
	// InputParameters block
	HandleInputs map[string]any
	// Libs is the injected host capability namespace
	Libs map[string]NativeFunc
	// Print receives script print output
	Print func(msg string)
}

// Invoke executes the script's entry function. Non-mapping results are
// coerced into {"output": value}. Script failures come back with the
// interpreter backtrace attached.
func (n *CompiledNode) Invoke(ctx context.Context, inv Invocation) (map[string]any, error) {
	thread := &starlark.Thread{Name: n.name}
	thread.Load = n.rt.load
	if inv.Print != nil {
		print := inv.Print
		thread.Print = func(_ *starlark.Thread, msg string) { print(msg) }
	}
	if n.rt.opts.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(n.rt.opts.MaxSteps)
	}

	if n.rt.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.rt.opts.Timeout)
		defer cancel()
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("execution deadline exceeded")
		case <-done:
		}
	}()

	resolvedParams := coerceParams(n.paramSpecs, inv.Params)
	resolvedInputs := resolveHandleInputs(n.inputSpecs, inv.HandleInputs)

	nodeParams, err := structFromMap("nodeParameters", resolvedParams)
	if err != nil {
		return nil, err
	}
	inputParams, err := structFromMap("inputParameters", resolvedInputs)
	if err != nil {
		return nil, err
	}
	libs := make(starlark.StringDict, len(inv.Libs))
	for name, fn := range inv.Libs {
		libs[name] = wrapNative(name, fn)
	}
	libsStruct := starlarkstruct.FromStringDict(starlark.String("libs"), libs)

	globals, err := n.program.Init(thread, n.rt.predeclared(libsStruct, nodeParams, inputParams))
	if err != nil {
		return nil, scriptError(err)
	}

	entry, ok := globals[entryFunction]
	if !ok {
		return nil, fmt.Errorf("script does not define %s(inputs, params)", entryFunction)
	}
	fn, ok := entry.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", entryFunction)
	}

	inputsVal, err := toValue(inv.Inputs)
	if err != nil {
		return nil, err
	}
	paramsVal, err := toValue(resolvedParams)
	if err != nil {
		return nil, err
	}

	out, err := starlark.Call(thread, fn, starlark.Tuple{inputsVal, paramsVal}, nil)
	if err != nil {
		return nil, scriptError(err)
	}

	result := fromValue(thread, out)
	if mapping, ok := result.(map[string]any); ok {
		return mapping, nil
	}
	return map[string]any{"output": result}, nil
}

func scriptError(err error) error {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return fmt.Errorf("script error: %s\n%s", evalErr.Msg, evalErr.Backtrace())
	}
	return fmt.Errorf("script error: %w", err)
}

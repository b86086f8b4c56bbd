// Package marl evaluates programs in the Marl configuration language: a
// lazily evaluated, purely functional language that produces JSON.
package marl

import (
	"os"

	"marl/internal/analysis"
	"marl/internal/ast"
	"marl/internal/desugar"
	"marl/internal/lexer"
	"marl/internal/parser"
	"marl/internal/vm"
)

// VM is the core interpreter and the touchpoint used to parse and execute
// Marl. A VM owns its import cache and identifier pool; nothing is shared
// between instances. Each evaluation builds its own heap and drops it when
// the evaluation ends.
type VM struct {
	maxStack        int
	maxTrace        int
	gcMinObjects    int
	gcGrowthTrigger float64
	stringOutput    bool

	ext            map[string]vm.Ext
	jpaths         []string
	importCallback vm.ImportCallback

	intern      *ast.Interner
	importCache *vm.ImportCache
}

// MakeVM creates a new VM with default parameters.
func MakeVM() *VM {
	return &VM{
		maxStack:        vm.DefaultMaxStack,
		maxTrace:        vm.DefaultMaxTrace,
		gcMinObjects:    vm.DefaultGCMinObjects,
		gcGrowthTrigger: vm.DefaultGCGrowthTrigger,
		ext:             make(map[string]vm.Ext),
		intern:          ast.NewInterner(),
		importCache:     vm.NewImportCache(),
	}
}

// MaxStack sets the upper bound on live call frames.
func (v *VM) MaxStack(n int) { v.maxStack = n }

// MaxTrace sets the maximum number of trace entries retained in an error;
// zero keeps all of them.
func (v *VM) MaxTrace(n int) { v.maxTrace = n }

// GCMinObjects sets the heap size below which collection is never attempted.
func (v *VM) GCMinObjects(n int) { v.gcMinObjects = n }

// GCGrowthTrigger sets the growth ratio that triggers a collection.
func (v *VM) GCGrowthTrigger(x float64) { v.gcGrowthTrigger = x }

// StringOutput manifests the top-level value as a raw string instead of
// JSON; the program must then evaluate to a string.
func (v *VM) StringOutput(enabled bool) { v.stringOutput = enabled }

// ExtVar binds an external variable to a plain string value.
func (v *VM) ExtVar(key, val string) {
	v.ext[key] = vm.Ext{Data: val}
}

// ExtCode binds an external variable to a code snippet, compiled and
// evaluated each time std.extVar reads it.
func (v *VM) ExtCode(key, val string) {
	v.ext[key] = vm.Ext{IsCode: true, Data: val}
}

// JPathAdd appends a directory to the default importer's search list.
func (v *VM) JPathAdd(path string) {
	v.jpaths = append(v.jpaths, path)
}

// ImportCallback overrides the default file loader.
func (v *VM) ImportCallback(cb vm.ImportCallback) {
	v.importCallback = cb
}

// processSnippet is the full front end: lex, parse, desugar, inject std,
// analyse. The evaluator calls back into it for imports and code ext vars.
func (v *VM) processSnippet(filename, snippet string) (ast.Node, error) {
	l := lexer.New(snippet)
	p := parser.New(l, filename, v.intern)
	expr := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, &vm.StaticError{Msgs: errs}
	}
	core := desugar.Desugar(expr, v.intern)
	core, err := desugar.InjectStd(core, v.intern)
	if err != nil {
		return nil, err
	}
	if err := analysis.Analyze(core); err != nil {
		return nil, &vm.StaticError{Msgs: []string{err.Error()}}
	}
	return core, nil
}

func (v *VM) options() vm.Options {
	importer := v.importCallback
	if importer == nil {
		importer = vm.MakeFileImporter(v.jpaths)
	}
	return vm.Options{
		ExtVars:         v.ext,
		MaxStack:        v.maxStack,
		GCMinObjects:    v.gcMinObjects,
		GCGrowthTrigger: v.gcGrowthTrigger,
		MaxTrace:        v.maxTrace,
		StringOutput:    v.stringOutput,
		Importer:        importer,
		ProcessSnippet:  v.processSnippet,
		Interner:        v.intern,
		ImportCache:     v.importCache,
	}
}

// EvaluateSnippet evaluates a string of Marl code and returns one JSON
// document. The filename is used for error messages and relative imports.
func (v *VM) EvaluateSnippet(filename, snippet string) (string, error) {
	core, err := v.processSnippet(filename, snippet)
	if err != nil {
		return "", err
	}
	return vm.Execute(core, v.options())
}

// EvaluateSnippetMulti evaluates a snippet that must produce an object and
// returns one document per field, keyed by field name.
func (v *VM) EvaluateSnippetMulti(filename, snippet string) (map[string]string, error) {
	core, err := v.processSnippet(filename, snippet)
	if err != nil {
		return nil, err
	}
	return vm.ExecuteMulti(core, v.options())
}

// EvaluateSnippetStream evaluates a snippet that must produce an array and
// returns one document per element.
func (v *VM) EvaluateSnippetStream(filename, snippet string) ([]string, error) {
	core, err := v.processSnippet(filename, snippet)
	if err != nil {
		return nil, err
	}
	return vm.ExecuteStream(core, v.options())
}

// EvaluateFile reads and evaluates a file as one JSON document.
func (v *VM) EvaluateFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return v.EvaluateSnippet(path, string(content))
}

// EvaluateFileMulti reads and evaluates a file in multi mode.
func (v *VM) EvaluateFileMulti(path string) (map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return v.EvaluateSnippetMulti(path, string(content))
}

// EvaluateFileStream reads and evaluates a file in stream mode.
func (v *VM) EvaluateFileStream(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return v.EvaluateSnippetStream(path, string(content))
}

package vm

import (
	"marl/internal/ast"
)

// Defaults mirror the configuration surface. MaxStack, GCMinObjects and
// GCGrowthTrigger fall back to them when left zero; a zero MaxTrace keeps
// every trace entry, and DefaultMaxTrace is the value MakeVM starts with.
const (
	DefaultMaxStack        = 500
	DefaultMaxTrace        = 20
	DefaultGCMinObjects    = 1000
	DefaultGCGrowthTrigger = 2.0
)

// Options configures one evaluation.
type Options struct {
	ExtVars         map[string]Ext
	MaxStack        int
	GCMinObjects    int
	GCGrowthTrigger float64
	MaxTrace        int
	StringOutput    bool
	Importer        ImportCallback
	ProcessSnippet  ProcessSnippetFunc
	Interner        *ast.Interner
	ImportCache     *ImportCache
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxStack <= 0 {
		opts.MaxStack = DefaultMaxStack
	}
	if opts.GCMinObjects <= 0 {
		opts.GCMinObjects = DefaultGCMinObjects
	}
	if opts.GCGrowthTrigger <= 0 {
		opts.GCGrowthTrigger = DefaultGCGrowthTrigger
	}
	if opts.Interner == nil {
		opts.Interner = ast.NewInterner()
	}
	if opts.ImportCache == nil {
		opts.ImportCache = NewImportCache()
	}
	return opts
}

// Execute evaluates a core AST and manifests the result as one document:
// JSON, or the raw string in string output mode.
func Execute(node ast.Node, opts Options) (string, error) {
	o := opts.withDefaults()
	i := newInterpreter(o)
	if err := i.evaluate(node, 0); err != nil {
		return "", err
	}
	loc := ast.LocationRange{File: "During manifestation"}
	if o.StringOutput {
		return i.manifestString(loc)
	}
	return i.manifestJSON(loc, true, "")
}

// ExecuteMulti evaluates a core AST whose result must be an object, and
// manifests each field as a separate named document.
func ExecuteMulti(node ast.Node, opts Options) (map[string]string, error) {
	o := opts.withDefaults()
	i := newInterpreter(o)
	if err := i.evaluate(node, 0); err != nil {
		return nil, err
	}
	return i.manifestMulti(o.StringOutput)
}

// ExecuteStream evaluates a core AST whose result must be an array, and
// manifests each element as a separate document.
func ExecuteStream(node ast.Node, opts Options) ([]string, error) {
	o := opts.withDefaults()
	i := newInterpreter(o)
	if err := i.evaluate(node, 0); err != nil {
		return nil, err
	}
	return i.manifestStream()
}

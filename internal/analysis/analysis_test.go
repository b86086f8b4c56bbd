package analysis

import (
	"strings"
	"testing"

	"marl/internal/ast"
	"marl/internal/desugar"
	"marl/internal/lexer"
	"marl/internal/parser"
)

func compile(t *testing.T, src string) ast.Node {
	t.Helper()
	intern := ast.NewInterner()
	p := parser.New(lexer.New(src), "test.marl", intern)
	expr := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parsing %q: %v", src, errs)
	}
	core := desugar.Desugar(expr, intern)
	core, err := desugar.InjectStd(core, intern)
	if err != nil {
		t.Fatal(err)
	}
	return core
}

func TestAnalyzeOK(t *testing.T) {
	programs := []string{
		"local x = 1; x + x",
		"local f(a) = a; f(1)",
		"{ a: self.b, b: 1 }",
		"{ a: 1 } + { a: super.a }",
		"local xs = [1]; [x for x in xs]",
		"{ [k]: k for k in [\"a\"] }",
		"1 == 2",
		"{ a: 1, b: $.a }",
	}
	for _, src := range programs {
		if err := Analyze(compile(t, src)); err != nil {
			t.Errorf("%q: unexpected error %v", src, err)
		}
	}
}

func TestUnknownVariable(t *testing.T) {
	err := Analyze(compile(t, "local x = 1; y"))
	if err == nil || !strings.Contains(err.Error(), "Unknown variable: y") {
		t.Errorf("expected unknown-variable error, got %v", err)
	}
}

func TestSelfOutsideObject(t *testing.T) {
	err := Analyze(compile(t, "self.a"))
	if err == nil || !strings.Contains(err.Error(), "Can't use self outside of an object.") {
		t.Errorf("expected self error, got %v", err)
	}

	err = Analyze(compile(t, "super.a"))
	if err == nil || !strings.Contains(err.Error(), "Can't use super outside of an object.") {
		t.Errorf("expected super error, got %v", err)
	}
}

func TestScopeDoesNotLeak(t *testing.T) {
	// The comprehension variable is not visible outside its body.
	err := Analyze(compile(t, "[x for x in [1]] + [x]"))
	if err == nil || !strings.Contains(err.Error(), "Unknown variable: x") {
		t.Errorf("expected unknown-variable error, got %v", err)
	}

	// Function parameters do not escape.
	err = Analyze(compile(t, "local f(a) = a; a"))
	if err == nil || !strings.Contains(err.Error(), "Unknown variable: a") {
		t.Errorf("expected unknown-variable error, got %v", err)
	}
}

func TestFreeVariableAnnotation(t *testing.T) {
	intern := ast.NewInterner()
	p := parser.New(lexer.New("local a = 1, b = 2; { x: a, y: function(q) q + b }"), "test.marl", intern)
	expr := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatal(errs)
	}
	core := desugar.Desugar(expr, intern)
	if err := Analyze(core); err != nil {
		t.Fatal(err)
	}

	local := core.(*ast.Local)
	obj := local.Body.(*ast.DesugaredObject)
	names := map[string]bool{}
	for _, fv := range obj.FreeVariables() {
		names[fv.Name] = true
	}
	// The object needs a and b from the enclosing local, nothing else.
	if !names["a"] || !names["b"] {
		t.Errorf("object should capture a and b, got %v", names)
	}
	if names["q"] || names["$"] {
		t.Errorf("object must not capture bound names, got %v", names)
	}
}

func TestRecursiveLocal(t *testing.T) {
	if err := Analyze(compile(t, "local f(n) = if n == 0 then 0 else f(n - 1); f(3)")); err != nil {
		t.Errorf("recursive local should analyse cleanly: %v", err)
	}
}

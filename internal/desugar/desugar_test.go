package desugar

import (
	"testing"

	"marl/internal/ast"
	"marl/internal/lexer"
	"marl/internal/parser"
)

func desugarSrc(t *testing.T, src string) ast.Node {
	t.Helper()
	intern := ast.NewInterner()
	p := parser.New(lexer.New(src), "test.marl", intern)
	expr := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parsing %q: %v", src, errs)
	}
	return Desugar(expr, intern)
}

// stdApply asserts the node is std.<name>(...) and returns the call.
func stdApply(t *testing.T, node ast.Node, name string) *ast.Apply {
	t.Helper()
	apply, ok := node.(*ast.Apply)
	if !ok {
		t.Fatalf("expected std.%s call, got %T", name, node)
	}
	index, ok := apply.Target.(*ast.Index)
	if !ok {
		t.Fatalf("expected index target, got %T", apply.Target)
	}
	if v, ok := index.Target.(*ast.Var); !ok || v.ID.Name != "std" {
		t.Fatalf("expected std receiver")
	}
	if s, ok := index.Index.(*ast.LiteralString); !ok || s.Value != name {
		t.Fatalf("expected field %s", name)
	}
	return apply
}

func TestEqualityDesugarsToStdEquals(t *testing.T) {
	node := desugarSrc(t, "1 == 2")
	call := stdApply(t, node, "equals")
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(call.Args))
	}

	node = desugarSrc(t, "1 != 2")
	unary, ok := node.(*ast.Unary)
	if !ok || unary.Op != ast.UopNot {
		t.Fatalf("expected !std.equals, got %T", node)
	}
	stdApply(t, unary.Expr, "equals")
}

func TestPercentDesugarsToStdMod(t *testing.T) {
	stdApply(t, desugarSrc(t, "7 % 3"), "mod")
}

func TestIfWithoutElse(t *testing.T) {
	cond := desugarSrc(t, "if true then 1").(*ast.Conditional)
	if _, ok := cond.BranchFalse.(*ast.LiteralNull); !ok {
		t.Fatalf("expected null else branch, got %T", cond.BranchFalse)
	}
}

func TestObjectDesugar(t *testing.T) {
	obj := desugarSrc(t, `{ local n = 2, a: n, assert true }`).(*ast.DesugaredObject)
	if len(obj.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(obj.Fields))
	}
	if len(obj.Asserts) != 1 {
		t.Fatalf("expected 1 assert, got %d", len(obj.Asserts))
	}
	name, ok := obj.Fields[0].Name.(*ast.LiteralString)
	if !ok || name.Value != "a" {
		t.Fatal("identifier field name must become a string literal")
	}
	// Root-object field bodies are wrapped: local $ = self; local n = 2; n
	dollar, ok := obj.Fields[0].Body.(*ast.Local)
	if !ok || dollar.Binds[0].Variable.Name != "$" {
		t.Fatalf("expected $ binding, got %T", obj.Fields[0].Body)
	}
	locals, ok := dollar.Body.(*ast.Local)
	if !ok || locals.Binds[0].Variable.Name != "n" {
		t.Fatalf("expected folded object local, got %T", dollar.Body)
	}
}

func TestNestedObjectDoesNotRebindDollar(t *testing.T) {
	obj := desugarSrc(t, `{ a: { b: 1 } }`).(*ast.DesugaredObject)
	outerBody := obj.Fields[0].Body.(*ast.Local) // $ wrapper
	inner, ok := outerBody.Body.(*ast.DesugaredObject)
	if !ok {
		t.Fatalf("expected nested object, got %T", outerBody.Body)
	}
	if _, isLocal := inner.Fields[0].Body.(*ast.Local); isLocal {
		t.Fatal("nested object fields must not rebind $")
	}
}

func TestSuperSugarDesugar(t *testing.T) {
	obj := desugarSrc(t, `{ a+: 1 }`).(*ast.DesugaredObject)
	body := obj.Fields[0].Body.(*ast.Local).Body // unwrap $
	bin, ok := body.(*ast.Binary)
	if !ok || bin.Op != ast.BopPlus {
		t.Fatalf("expected super.a + body, got %T", body)
	}
	if _, ok := bin.Left.(*ast.SuperIndex); !ok {
		t.Fatalf("expected super index on the left, got %T", bin.Left)
	}
}

func TestObjectAssertDesugar(t *testing.T) {
	obj := desugarSrc(t, `{ assert false : "boom" }`).(*ast.DesugaredObject)
	assert := obj.Asserts[0].(*ast.Local).Body // unwrap $
	cond, ok := assert.(*ast.Conditional)
	if !ok {
		t.Fatalf("expected conditional assert, got %T", assert)
	}
	errNode, ok := cond.BranchFalse.(*ast.Error)
	if !ok {
		t.Fatalf("expected error branch, got %T", cond.BranchFalse)
	}
	if msg, ok := errNode.Expr.(*ast.LiteralString); !ok || msg.Value != "boom" {
		t.Fatal("assert message lost")
	}
}

func TestArrayCompDesugar(t *testing.T) {
	// [x for x in xs if c] becomes std.map(f, std.filter(g, xs))
	node := desugarSrc(t, "[x for x in xs if x]")
	mapCall := stdApply(t, node, "map")
	if _, ok := mapCall.Args[0].(*ast.Function); !ok {
		t.Fatal("map needs a function argument")
	}
	filterCall := stdApply(t, mapCall.Args[1], "filter")
	if _, ok := filterCall.Args[0].(*ast.Function); !ok {
		t.Fatal("filter needs a function argument")
	}
}

func TestObjectCompDesugar(t *testing.T) {
	node := desugarSrc(t, "{ [k]: k for k in ks }")
	comp, ok := node.(*ast.ObjectComprehensionSimple)
	if !ok {
		t.Fatalf("expected comprehension, got %T", node)
	}
	if comp.ID.Name != "k" {
		t.Errorf("loop var: %s", comp.ID.Name)
	}
	if _, ok := comp.Array.(*ast.Var); !ok {
		t.Errorf("expected plain array source, got %T", comp.Array)
	}
}

func TestInjectStd(t *testing.T) {
	intern := ast.NewInterner()
	node, err := InjectStd(&ast.LiteralNull{}, intern)
	if err != nil {
		t.Fatal(err)
	}
	local, ok := node.(*ast.Local)
	if !ok || local.Binds[0].Variable.Name != "std" {
		t.Fatalf("expected local std wrapper, got %T", node)
	}
	// std is the builtin object extended with the library source.
	bin, ok := local.Binds[0].Body.(*ast.Binary)
	if !ok || bin.Op != ast.BopPlus {
		t.Fatalf("expected builtin + library, got %T", local.Binds[0].Body)
	}
	builtins, ok := bin.Left.(*ast.DesugaredObject)
	if !ok || len(builtins.Fields) == 0 {
		t.Fatal("missing builtin object")
	}
	if _, ok := builtins.Fields[0].Body.(*ast.BuiltinFunction); !ok {
		t.Fatal("builtin fields must hold native functions")
	}
	if _, ok := bin.Right.(*ast.DesugaredObject); !ok {
		t.Fatalf("library source must desugar to an object, got %T", bin.Right)
	}
}

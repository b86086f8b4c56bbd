package parser

import (
	"strings"
	"testing"

	"marl/internal/ast"
	"marl/internal/lexer"
)

func parse(t *testing.T, src string) ast.Node {
	t.Helper()
	p := New(lexer.New(src), "test.marl", ast.NewInterner())
	expr := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parsing %q: %v", src, errs)
	}
	return expr
}

func parseErr(t *testing.T, src string) []string {
	t.Helper()
	p := New(lexer.New(src), "test.marl", ast.NewInterner())
	p.Parse()
	errs := p.Errors()
	if len(errs) == 0 {
		t.Fatalf("expected parse errors for %q", src)
	}
	return errs
}

func TestPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	expr := parse(t, "1 + 2 * 3").(*ast.Binary)
	if expr.Op != ast.BopPlus {
		t.Fatalf("expected + at the root, got %s", expr.Op)
	}
	right := expr.Right.(*ast.Binary)
	if right.Op != ast.BopMult {
		t.Fatalf("expected * on the right, got %s", right.Op)
	}

	// a || b && c parses as a || (b && c)
	expr = parse(t, "a || b && c").(*ast.Binary)
	if expr.Op != ast.BopOr {
		t.Fatalf("expected || at the root, got %s", expr.Op)
	}
	if expr.Right.(*ast.Binary).Op != ast.BopAnd {
		t.Fatal("expected && under ||")
	}

	// comparisons bind tighter than equality
	expr = parse(t, "a < b == c > d").(*ast.Binary)
	if expr.Op != ast.BopManifestEqual {
		t.Fatalf("expected == at the root, got %s", expr.Op)
	}
}

func TestLocalFunctionSugar(t *testing.T) {
	expr := parse(t, "local f(a, b) = a + b; f(1, 2)").(*ast.Local)
	if len(expr.Binds) != 1 {
		t.Fatalf("expected one bind, got %d", len(expr.Binds))
	}
	fn, ok := expr.Binds[0].Body.(*ast.Function)
	if !ok {
		t.Fatalf("expected function bind, got %T", expr.Binds[0].Body)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Params))
	}
	apply, ok := expr.Body.(*ast.Apply)
	if !ok {
		t.Fatalf("expected apply body, got %T", expr.Body)
	}
	if len(apply.Args) != 2 || apply.TailStrict {
		t.Fatal("unexpected apply shape")
	}
}

func TestTailstrictAnnotation(t *testing.T) {
	expr := parse(t, "f(x) tailstrict").(*ast.Apply)
	if !expr.TailStrict {
		t.Fatal("expected tailstrict call")
	}
}

func TestObjectFields(t *testing.T) {
	expr := parse(t, `{
		a: 1,
		b:: 2,
		c::: 3,
		d+: 4,
		"e": 5,
		[f]: 6,
		method(x):: x,
		local n = 7,
		assert self.a > 0 : "msg",
	}`).(*ast.Object)

	if len(expr.Fields) != 9 {
		t.Fatalf("expected 9 fields, got %d", len(expr.Fields))
	}
	checks := []struct {
		kind  ast.ObjectFieldKind
		hide  ast.Hide
		super bool
	}{
		{ast.FieldID, ast.HideInherit, false},
		{ast.FieldID, ast.HideHidden, false},
		{ast.FieldID, ast.HideVisible, false},
		{ast.FieldID, ast.HideInherit, true},
		{ast.FieldString, ast.HideInherit, false},
		{ast.FieldExpr, ast.HideInherit, false},
		{ast.FieldID, ast.HideHidden, false},
		{ast.ObjectLocal, ast.HideInherit, false},
		{ast.ObjectAssert, ast.HideInherit, false},
	}
	for i, c := range checks {
		f := expr.Fields[i]
		if f.Kind != c.kind || f.Hide != c.hide || f.SuperSugar != c.super {
			t.Errorf("field %d: got kind=%v hide=%v super=%v", i, f.Kind, f.Hide, f.SuperSugar)
		}
	}
	if _, ok := expr.Fields[6].Expr2.(*ast.Function); !ok {
		t.Error("method sugar should produce a function body")
	}
	if expr.Fields[8].Expr2 == nil {
		t.Error("assert message missing")
	}
}

func TestComprehensions(t *testing.T) {
	arr := parse(t, "[x * 2 for x in xs if x > 0 if x < 10]").(*ast.ArrayComp)
	if arr.ForVar.Name != "x" {
		t.Errorf("for var: %s", arr.ForVar.Name)
	}
	if len(arr.IfExprs) != 2 {
		t.Errorf("expected 2 if clauses, got %d", len(arr.IfExprs))
	}

	obj := parse(t, "{ [k]: v for k in ks }").(*ast.ObjectComp)
	if obj.Field.Kind != ast.FieldExpr {
		t.Error("object comprehension field must be computed")
	}
	if obj.ForVar.Name != "k" {
		t.Errorf("for var: %s", obj.ForVar.Name)
	}
}

func TestSuperForms(t *testing.T) {
	dot := parse(t, "{ a: super.b }").(*ast.Object)
	si := dot.Fields[0].Expr2.(*ast.SuperIndex)
	if si.Index.(*ast.LiteralString).Value != "b" {
		t.Error("super.b index")
	}

	idx := parse(t, `{ a: super["b"] }`).(*ast.Object)
	si = idx.Fields[0].Expr2.(*ast.SuperIndex)
	if si.Index.(*ast.LiteralString).Value != "b" {
		t.Error("super[\"b\"] index")
	}
}

func TestImportForms(t *testing.T) {
	imp := parse(t, `import "a.marl"`).(*ast.Import)
	if imp.Path != "a.marl" {
		t.Errorf("import path: %s", imp.Path)
	}
	imps := parse(t, `importstr "a.txt"`).(*ast.ImportStr)
	if imps.Path != "a.txt" {
		t.Errorf("importstr path: %s", imps.Path)
	}
}

func TestAssertExpression(t *testing.T) {
	expr := parse(t, `assert x > 0 : "neg"; x`).(*ast.AssertExpr)
	if expr.Message == nil {
		t.Error("expected message")
	}
	if _, ok := expr.Rest.(*ast.Var); !ok {
		t.Errorf("expected var rest, got %T", expr.Rest)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"local x = ; 1", "no parse rule"},
		{"1 +", "no parse rule"},
		{"{ a 1 }", "expected field separator"},
		{"[1, 2", "expected next token to be ]"},
		{"super", "expected . or [ after super"},
		{"{ a: 1, b: 2 for x in xs }", "object comprehension must have a single"},
		{"1 2", "unexpected trailing token"},
	}
	for _, tt := range tests {
		errs := parseErr(t, tt.input)
		found := false
		for _, e := range errs {
			if strings.Contains(e, tt.expected) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%q: expected error containing %q, got %v", tt.input, tt.expected, errs)
		}
	}
}

// Package desugar rewrites the parser's sugared AST onto the core node set
// the evaluator dispatches on, and injects the standard library around every
// compiled unit.
package desugar

import (
	"fmt"

	"marl/internal/ast"
	"marl/internal/lexer"
	"marl/internal/parser"
	"marl/internal/std"
	"marl/internal/vm"
)

type desugarer struct {
	intern *ast.Interner

	idStd    *ast.Identifier
	idDollar *ast.Identifier
}

// Desugar rewrites node and everything under it onto the core node set.
// node is treated as a whole file, outside any object, so its outermost
// objects bind $.
func Desugar(node ast.Node, intern *ast.Interner) ast.Node {
	d := &desugarer{
		intern:   intern,
		idStd:    intern.Intern("std"),
		idDollar: intern.Intern("$"),
	}
	return d.desugar(node, 0)
}

// InjectStd wraps a desugared expression in local std = <std object>; so the
// library is in scope. Every compiled unit gets its own wrapper; imports are
// closed expressions.
func InjectStd(node ast.Node, intern *ast.Interner) (ast.Node, error) {
	stdObj, err := stdAST(intern)
	if err != nil {
		return nil, err
	}
	return &ast.Local{
		NodeBase: ast.NodeBase{LocRange: node.Loc()},
		Binds:    []ast.LocalBind{{Variable: intern.Intern("std"), Body: stdObj}},
		Body:     node,
	}, nil
}

// stdAST builds the std object: the native builtin table extended with the
// library functions written in the language.
func stdAST(intern *ast.Interner) (ast.Node, error) {
	base := ast.NodeBase{LocRange: ast.MakeLocation("<std>", 1, 1)}

	var fields []ast.DesugaredObjectField
	for _, decl := range vm.Builtins() {
		params := make(ast.Identifiers, len(decl.Params))
		for idx, p := range decl.Params {
			params[idx] = intern.Intern(p)
		}
		fields = append(fields, ast.DesugaredObjectField{
			Hide: ast.HideHidden,
			Name: &ast.LiteralString{NodeBase: base, Value: decl.Name},
			Body: &ast.BuiltinFunction{NodeBase: base, ID: decl.ID, Params: params},
		})
	}
	builtinObj := &ast.DesugaredObject{NodeBase: base, Fields: fields}

	l := lexer.New(std.Source)
	p := parser.New(l, "<std>", intern)
	parsed := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("INTERNAL ERROR: std library does not parse: %s", errs[0])
	}
	libObj := Desugar(parsed, intern)

	return &ast.Binary{NodeBase: base, Left: builtinObj, Op: ast.BopPlus, Right: libObj}, nil
}

func (d *desugarer) stdCall(loc ast.LocationRange, name string, args ...ast.Node) ast.Node {
	base := ast.NodeBase{LocRange: loc}
	return &ast.Apply{
		NodeBase: base,
		Target: &ast.Index{
			NodeBase: base,
			Target:   &ast.Var{NodeBase: base, ID: d.idStd},
			Index:    &ast.LiteralString{NodeBase: base, Value: name},
		},
		Args: args,
	}
}

func (d *desugarer) desugar(node ast.Node, objLevel int) ast.Node {
	switch node := node.(type) {
	case *ast.Apply:
		node.Target = d.desugar(node.Target, objLevel)
		for idx := range node.Args {
			node.Args[idx] = d.desugar(node.Args[idx], objLevel)
		}
		return node

	case *ast.Array:
		for idx := range node.Elements {
			node.Elements[idx] = d.desugar(node.Elements[idx], objLevel)
		}
		return node

	case *ast.ArrayComp:
		return d.desugarArrayComp(node, objLevel)

	case *ast.AssertExpr:
		return &ast.Conditional{
			NodeBase:    node.NodeBase,
			Cond:        d.desugar(node.Cond, objLevel),
			BranchTrue:  d.desugar(node.Rest, objLevel),
			BranchFalse: d.assertionFailure(node.NodeBase, node.Message, objLevel),
		}

	case *ast.Binary:
		node.Left = d.desugar(node.Left, objLevel)
		node.Right = d.desugar(node.Right, objLevel)
		switch node.Op {
		case ast.BopManifestEqual:
			return d.stdCall(node.Loc(), "equals", node.Left, node.Right)
		case ast.BopManifestUnequal:
			return &ast.Unary{
				NodeBase: node.NodeBase,
				Op:       ast.UopNot,
				Expr:     d.stdCall(node.Loc(), "equals", node.Left, node.Right),
			}
		case ast.BopPercent:
			return d.stdCall(node.Loc(), "mod", node.Left, node.Right)
		}
		return node

	case *ast.Conditional:
		node.Cond = d.desugar(node.Cond, objLevel)
		node.BranchTrue = d.desugar(node.BranchTrue, objLevel)
		if node.BranchFalse == nil {
			node.BranchFalse = &ast.LiteralNull{NodeBase: node.NodeBase}
		} else {
			node.BranchFalse = d.desugar(node.BranchFalse, objLevel)
		}
		return node

	case *ast.Dollar:
		return &ast.Var{NodeBase: node.NodeBase, ID: d.idDollar}

	case *ast.Error:
		node.Expr = d.desugar(node.Expr, objLevel)
		return node

	case *ast.Function:
		node.Body = d.desugar(node.Body, objLevel)
		return node

	case *ast.Index:
		node.Target = d.desugar(node.Target, objLevel)
		node.Index = d.desugar(node.Index, objLevel)
		return node

	case *ast.Local:
		for idx := range node.Binds {
			node.Binds[idx].Body = d.desugar(node.Binds[idx].Body, objLevel)
		}
		node.Body = d.desugar(node.Body, objLevel)
		return node

	case *ast.Object:
		return d.desugarObject(node, objLevel)

	case *ast.ObjectComp:
		return d.desugarObjectComp(node, objLevel)

	case *ast.SuperIndex:
		node.Index = d.desugar(node.Index, objLevel)
		return node

	case *ast.Unary:
		node.Expr = d.desugar(node.Expr, objLevel)
		return node

	default:
		// Leaves: literals, vars, self, imports, builtins.
		return node
	}
}

// assertionFailure builds the error branch of a desugared assert.
func (d *desugarer) assertionFailure(base ast.NodeBase, message ast.Node, objLevel int) ast.Node {
	if message == nil {
		message = &ast.LiteralString{NodeBase: base, Value: "Assertion failed."}
	} else {
		message = d.desugar(message, objLevel)
	}
	return &ast.Error{NodeBase: base, Expr: message}
}

// desugarArrayComp rewrites [body for x in arr if c] into std.map over a
// std.filter of the source array.
func (d *desugarer) desugarArrayComp(node *ast.ArrayComp, objLevel int) ast.Node {
	base := node.NodeBase
	arr := d.desugar(node.ForExpr, objLevel)
	if cond := d.compCondition(node.IfExprs, objLevel); cond != nil {
		arr = d.stdCall(node.Loc(), "filter",
			&ast.Function{NodeBase: base, Params: ast.Identifiers{node.ForVar}, Body: cond},
			arr)
	}
	body := d.desugar(node.Body, objLevel)
	return d.stdCall(node.Loc(), "map",
		&ast.Function{NodeBase: base, Params: ast.Identifiers{node.ForVar}, Body: body},
		arr)
}

// compCondition folds the if clauses of a comprehension into one condition.
func (d *desugarer) compCondition(ifExprs []ast.Node, objLevel int) ast.Node {
	var cond ast.Node
	for _, ifExpr := range ifExprs {
		e := d.desugar(ifExpr, objLevel)
		if cond == nil {
			cond = e
		} else {
			cond = &ast.Binary{
				NodeBase: ast.NodeBase{LocRange: e.Loc()},
				Left:     cond,
				Op:       ast.BopAnd,
				Right:    e,
			}
		}
	}
	return cond
}

func (d *desugarer) desugarObjectComp(node *ast.ObjectComp, objLevel int) ast.Node {
	arr := d.desugar(node.ForExpr, objLevel)
	if cond := d.compCondition(node.IfExprs, objLevel); cond != nil {
		arr = d.stdCall(node.Loc(), "filter",
			&ast.Function{NodeBase: node.NodeBase, Params: ast.Identifiers{node.ForVar}, Body: cond},
			arr)
	}

	field := d.desugar(node.Field.NameExpr, objLevel)
	value := d.desugar(node.Field.Expr2, objLevel+1)
	if objLevel == 0 {
		value = d.bindDollar(value)
	}

	return &ast.ObjectComprehensionSimple{
		NodeBase: node.NodeBase,
		Field:    field,
		Value:    value,
		ID:       node.ForVar,
		Array:    arr,
	}
}

// bindDollar makes $ available inside a root object's field bodies.
func (d *desugarer) bindDollar(body ast.Node) ast.Node {
	base := ast.NodeBase{LocRange: body.Loc()}
	return &ast.Local{
		NodeBase: base,
		Binds:    []ast.LocalBind{{Variable: d.idDollar, Body: &ast.Self{NodeBase: base}}},
		Body:     body,
	}
}

// desugarObject turns a sugared object literal into a DesugaredObject:
// field names become expressions, object locals are folded into every field
// body and assert, +: fields merge with super, and the root object binds $.
func (d *desugarer) desugarObject(node *ast.Object, objLevel int) ast.Node {
	// Object-level locals are folded into every field body; they run inside
	// the object, so their bodies desugar at the bumped nesting level.
	var binds []ast.LocalBind
	for _, field := range node.Fields {
		if field.Kind == ast.ObjectLocal {
			binds = append(binds, ast.LocalBind{
				Variable: field.ID,
				Body:     d.desugar(field.Expr2, objLevel+1),
			})
		}
	}

	wrap := func(body ast.Node) ast.Node {
		if len(binds) > 0 {
			body = &ast.Local{
				NodeBase: ast.NodeBase{LocRange: body.Loc()},
				Binds:    binds,
				Body:     body,
			}
		}
		if objLevel == 0 {
			body = d.bindDollar(body)
		}
		return body
	}

	out := &ast.DesugaredObject{NodeBase: node.NodeBase}
	for _, field := range node.Fields {
		switch field.Kind {
		case ast.ObjectLocal:
			// already collected

		case ast.ObjectAssert:
			cond := d.desugar(field.NameExpr, objLevel+1)
			assert := &ast.Conditional{
				NodeBase:    ast.NodeBase{LocRange: cond.Loc()},
				Cond:        cond,
				BranchTrue:  &ast.LiteralNull{NodeBase: ast.NodeBase{LocRange: cond.Loc()}},
				BranchFalse: d.assertionFailure(ast.NodeBase{LocRange: cond.Loc()}, field.Expr2, objLevel+1),
			}
			out.Asserts = append(out.Asserts, wrap(assert))

		default:
			var name ast.Node
			if field.Kind == ast.FieldID {
				name = &ast.LiteralString{
					NodeBase: node.NodeBase,
					Value:    field.ID.Name,
				}
			} else {
				name = d.desugar(field.NameExpr, objLevel)
			}

			body := d.desugar(field.Expr2, objLevel+1)
			if field.SuperSugar {
				body = &ast.Binary{
					NodeBase: ast.NodeBase{LocRange: body.Loc()},
					Left:     &ast.SuperIndex{NodeBase: ast.NodeBase{LocRange: body.Loc()}, Index: name},
					Op:       ast.BopPlus,
					Right:    body,
				}
			}
			out.Fields = append(out.Fields, ast.DesugaredObjectField{
				Hide: field.Hide,
				Name: name,
				Body: wrap(body),
			})
		}
	}
	return out
}

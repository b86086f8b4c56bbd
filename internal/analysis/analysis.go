// Package analysis is the static pass between the desugarer and the
// evaluator: it checks that every variable is bound and that self and super
// only appear inside objects, and it annotates every node with its free
// variables so thunks and closures capture exactly what they need.
package analysis

import (
	"fmt"

	"marl/internal/ast"
)

type identSet map[*ast.Identifier]struct{}

func (s identSet) add(id *ast.Identifier)    { s[id] = struct{}{} }
func (s identSet) remove(id *ast.Identifier) { delete(s, id) }

func (s identSet) union(other identSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

func (s identSet) slice() ast.Identifiers {
	r := make(ast.Identifiers, 0, len(s))
	for id := range s {
		r = append(r, id)
	}
	return r
}

type analyzer struct {
	err error
}

// Analyze walks the core AST, reports the first static error found, and
// fills in the free-variable annotation of every node.
func Analyze(node ast.Node) error {
	a := &analyzer{}
	a.visit(node, identSet{}, false)
	return a.err
}

func (a *analyzer) fail(loc ast.LocationRange, format string, args ...interface{}) {
	if a.err == nil {
		a.err = fmt.Errorf("%s %s", loc, fmt.Sprintf(format, args...))
	}
}

// visit returns the free variables of node given the bound set env; inObject
// tracks whether a surrounding object makes self and super meaningful.
func (a *analyzer) visit(node ast.Node, env identSet, inObject bool) identSet {
	free := identSet{}
	switch node := node.(type) {
	case *ast.Apply:
		free.union(a.visit(node.Target, env, inObject))
		for _, arg := range node.Args {
			free.union(a.visit(arg, env, inObject))
		}

	case *ast.Array:
		for _, el := range node.Elements {
			free.union(a.visit(el, env, inObject))
		}

	case *ast.Binary:
		free.union(a.visit(node.Left, env, inObject))
		free.union(a.visit(node.Right, env, inObject))

	case *ast.BuiltinFunction:
		// native body, nothing free

	case *ast.Conditional:
		free.union(a.visit(node.Cond, env, inObject))
		free.union(a.visit(node.BranchTrue, env, inObject))
		free.union(a.visit(node.BranchFalse, env, inObject))

	case *ast.Error:
		free.union(a.visit(node.Expr, env, inObject))

	case *ast.Function:
		newEnv := cloneEnv(env)
		for _, param := range node.Params {
			newEnv.add(param)
		}
		free.union(a.visit(node.Body, newEnv, inObject))
		for _, param := range node.Params {
			free.remove(param)
		}

	case *ast.Import, *ast.ImportStr:
		// closed expression

	case *ast.Index:
		free.union(a.visit(node.Target, env, inObject))
		free.union(a.visit(node.Index, env, inObject))

	case *ast.Local:
		newEnv := cloneEnv(env)
		for _, bind := range node.Binds {
			newEnv.add(bind.Variable)
		}
		for _, bind := range node.Binds {
			free.union(a.visit(bind.Body, newEnv, inObject))
		}
		free.union(a.visit(node.Body, newEnv, inObject))
		for _, bind := range node.Binds {
			free.remove(bind.Variable)
		}

	case *ast.LiteralBoolean, *ast.LiteralNull, *ast.LiteralNumber, *ast.LiteralString:

	case *ast.DesugaredObject:
		for _, field := range node.Fields {
			free.union(a.visit(field.Name, env, inObject))
			free.union(a.visit(field.Body, env, true))
		}
		for _, assert := range node.Asserts {
			free.union(a.visit(assert, env, true))
		}

	case *ast.ObjectComprehensionSimple:
		free.union(a.visit(node.Array, env, inObject))
		newEnv := cloneEnv(env)
		newEnv.add(node.ID)
		inner := identSet{}
		inner.union(a.visit(node.Field, newEnv, inObject))
		inner.union(a.visit(node.Value, newEnv, true))
		inner.remove(node.ID)
		free.union(inner)

	case *ast.Self:
		if !inObject {
			a.fail(node.Loc(), "Can't use self outside of an object.")
		}

	case *ast.SuperIndex:
		if !inObject {
			a.fail(node.Loc(), "Can't use super outside of an object.")
		}
		free.union(a.visit(node.Index, env, inObject))

	case *ast.Unary:
		free.union(a.visit(node.Expr, env, inObject))

	case *ast.Var:
		if _, ok := env[node.ID]; !ok {
			a.fail(node.Loc(), "Unknown variable: %s", node.ID.Name)
		}
		free.add(node.ID)

	default:
		a.fail(node.Loc(), "INTERNAL ERROR: unhandled node %T in static analysis", node)
	}

	node.SetFreeVariables(free.slice())
	return free
}

func cloneEnv(env identSet) identSet {
	r := make(identSet, len(env))
	for id := range env {
		r[id] = struct{}{}
	}
	return r
}

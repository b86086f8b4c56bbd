package vm

import (
	"testing"

	"marl/internal/ast"
)

func leafWith(intern *ast.Interner, names ...string) *heapSimpleObject {
	fields := make(map[*ast.Identifier]simpleField)
	for _, name := range names {
		fields[intern.Intern(name)] = simpleField{hide: ast.HideInherit}
	}
	return &heapSimpleObject{fields: fields}
}

func TestCountLeaves(t *testing.T) {
	intern := ast.NewInterner()
	a := leafWith(intern, "a")
	b := leafWith(intern, "b")
	c := leafWith(intern, "c")

	if got := countLeaves(a); got != 1 {
		t.Errorf("single leaf: %d", got)
	}
	tree := &heapExtendedObject{left: &heapExtendedObject{left: a, right: b}, right: c}
	if got := countLeaves(tree); got != 3 {
		t.Errorf("three leaves: %d", got)
	}
	if got := countLeaves(nil); got != 0 {
		t.Errorf("nil: %d", got)
	}
}

func TestFindObjectRightToLeft(t *testing.T) {
	intern := ast.NewInterner()
	idA := intern.Intern("a")

	left := leafWith(intern, "a")
	right := leafWith(intern, "a")
	tree := &heapExtendedObject{left: left, right: right}

	// The rightmost leaf shadows.
	counter := 0
	found := findObject(idA, tree, 0, &counter)
	if found != heapObject(right) {
		t.Fatal("expected the right leaf to win")
	}
	if counter != 0 {
		t.Errorf("found_at: %d", counter)
	}

	// Skipping one leaf reaches the left one, and reports where it was.
	counter = 0
	found = findObject(idA, tree, 1, &counter)
	if found != heapObject(left) {
		t.Fatal("expected the left leaf after skipping one")
	}
	if counter != 1 {
		t.Errorf("found_at: %d", counter)
	}

	// Skipping both finds nothing.
	counter = 0
	if found := findObject(idA, tree, 2, &counter); found != nil {
		t.Fatal("expected no leaf beyond the last super")
	}
}

func TestFindObjectMissing(t *testing.T) {
	intern := ast.NewInterner()
	tree := &heapExtendedObject{
		left:  leafWith(intern, "x"),
		right: leafWith(intern, "y"),
	}
	counter := 0
	if found := findObject(intern.Intern("z"), tree, 0, &counter); found != nil {
		t.Fatal("z does not exist")
	}
	if counter != 2 {
		t.Errorf("expected both leaves counted, got %d", counter)
	}
}

func TestObjectFieldsVisibilityMerge(t *testing.T) {
	intern := ast.NewInterner()
	idA := intern.Intern("a")

	hidden := &heapSimpleObject{fields: map[*ast.Identifier]simpleField{
		idA: {hide: ast.HideHidden},
	}}
	inherit := &heapSimpleObject{fields: map[*ast.Identifier]simpleField{
		idA: {hide: ast.HideInherit},
	}}
	visible := &heapSimpleObject{fields: map[*ast.Identifier]simpleField{
		idA: {hide: ast.HideVisible},
	}}

	// Inherit on the right defers to the hidden left.
	fields := objectFields(&heapExtendedObject{left: hidden, right: inherit}, true)
	if len(fields) != 0 {
		t.Errorf("inherited hiddenness: expected no fields, got %d", len(fields))
	}

	// An explicitly visible right overrides.
	fields = objectFields(&heapExtendedObject{left: hidden, right: visible}, true)
	if len(fields) != 1 {
		t.Errorf("visible override: expected one field, got %d", len(fields))
	}

	// Outside manifestation, hidden fields are addressable.
	fields = objectFields(hidden, false)
	if len(fields) != 1 {
		t.Errorf("addressable hidden field: expected one, got %d", len(fields))
	}
}

func TestObjectFieldsSorted(t *testing.T) {
	intern := ast.NewInterner()
	leaf := leafWith(intern, "zeta", "alpha", "mid")
	fields := objectFields(leaf, true)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	for i := 1; i < len(fields); i++ {
		if fields[i-1].Name >= fields[i].Name {
			t.Fatalf("fields not sorted: %v", []string{fields[0].Name, fields[1].Name, fields[2].Name})
		}
	}
}

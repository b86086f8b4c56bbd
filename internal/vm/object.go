package vm

import (
	"sort"

	"marl/internal/ast"
)

// countLeaves counts the non-extended descendants of the prototype tree.
// The super offset of a binding is always less than this; equality means
// there is no super.
func countLeaves(obj heapObject) int {
	if obj == nil {
		return 0
	}
	if ext, ok := obj.(*heapExtendedObject); ok {
		return countLeaves(ext.left) + countLeaves(ext.right)
	}
	return 1
}

// findObject walks the tree right to left, skips startFrom leaves, and
// returns the first remaining leaf that contains id. counter ends up holding
// the number of leaves passed over, which is the super offset the field must
// be evaluated at. The direction is load-bearing: the right operand of +
// shadows the left.
func findObject(id *ast.Identifier, curr heapObject, startFrom int, counter *int) heapObject {
	switch obj := curr.(type) {
	case *heapExtendedObject:
		if r := findObject(id, obj.right, startFrom, counter); r != nil {
			return r
		}
		return findObject(id, obj.left, startFrom, counter)

	case *heapSimpleObject:
		if *counter >= startFrom {
			if _, ok := obj.fields[id]; ok {
				return obj
			}
		}
		*counter++

	case *heapComprehensionObject:
		if *counter >= startFrom {
			if _, ok := obj.compValues[id]; ok {
				return obj
			}
		}
		*counter++
	}
	return nil
}

// objectFieldsAux merges the field/visibility maps of the tree right to
// left. A field seen earlier (further right) keeps its hide kind unless it
// was Inherit, in which case the older (left) declaration decides.
func objectFieldsAux(obj heapObject, counter *int, skip int, manifesting bool) map[*ast.Identifier]ast.Hide {
	r := make(map[*ast.Identifier]ast.Hide)
	switch obj := obj.(type) {
	case *heapSimpleObject:
		*counter++
		if *counter <= skip {
			return r
		}
		for id, field := range obj.fields {
			if manifesting {
				r[id] = field.hide
			} else {
				r[id] = ast.HideVisible
			}
		}

	case *heapExtendedObject:
		r = objectFieldsAux(obj.right, counter, skip, manifesting)
		for id, hide := range objectFieldsAux(obj.left, counter, skip, manifesting) {
			if existing, ok := r[id]; !ok {
				r[id] = hide
			} else if existing == ast.HideInherit {
				r[id] = hide
			}
		}

	case *heapComprehensionObject:
		*counter++
		if *counter <= skip {
			return r
		}
		for id := range obj.compValues {
			r[id] = ast.HideVisible
		}
	}
	return r
}

// objectFields returns the addressable fields of obj, sorted by name. With
// manifesting set, hidden fields are filtered out.
func objectFields(obj heapObject, manifesting bool) []*ast.Identifier {
	counter := 0
	var r []*ast.Identifier
	for id, hide := range objectFieldsAux(obj, &counter, 0, manifesting) {
		if hide != ast.HideHidden {
			r = append(r, id)
		}
	}
	sort.Slice(r, func(a, b int) bool { return r[a].Name < r[b].Name })
	return r
}

// objectInvariants collects one thunk per assertion over every leaf of the
// tree, each bound to the composite object and its own leaf's super offset.
func (i *interpreter) objectInvariants(curr, self heapObject, counter *int, f *frame) {
	switch obj := curr.(type) {
	case *heapExtendedObject:
		i.objectInvariants(obj.right, self, counter, f)
		i.objectInvariants(obj.left, self, counter, f)

	case *heapSimpleObject:
		for _, assert := range obj.asserts {
			th := makeThunk(i.idInvariant, self, *counter, assert)
			i.alloc(th)
			th.upValues = obj.upValues.clone()
			f.thunks = append(f.thunks, th)
		}
		*counter++

	default:
		*counter++
	}
}

// objectIndex opens a call frame for the body of field id, bound to the
// original root as self and the found leaf's super offset.
func (i *interpreter) objectIndex(loc ast.LocationRange, obj heapObject,
	id *ast.Identifier, offset int) (ast.Node, error) {
	counter := 0
	found := findObject(id, obj, offset, &counter)
	if found == nil {
		return nil, i.stack.makeError(loc, "Field does not exist: %s", id.Name)
	}

	switch leaf := found.(type) {
	case *heapSimpleObject:
		field := leaf.fields[id]
		if err := i.stack.newCall(loc, leaf, obj, counter, leaf.upValues); err != nil {
			return nil, err
		}
		return field.body, nil

	default:
		// A leaf that is not simple must be a comprehension object. The loop
		// variable is rebound to this field's element thunk.
		comp := found.(*heapComprehensionObject)
		th := comp.compValues[id]
		binds := comp.upValues.clone()
		binds[comp.id] = th
		if err := i.stack.newCall(loc, comp, obj, counter, binds); err != nil {
			return nil, err
		}
		return comp.value, nil
	}
}

// runInvariants executes every assertion of obj once, unless the stack shows
// they are already being run. Used at manifestation time; field indexing
// runs them through the frameIndexTarget path instead.
func (i *interpreter) runInvariants(loc ast.LocationRange, obj heapObject) error {
	if i.stack.alreadyExecutingInvariants(obj) {
		return nil
	}

	f := i.stack.newFrameLoc(frameInvariants, loc)
	f.self = obj
	counter := 0
	i.objectInvariants(obj, obj, &counter, f)

	initialStackSize := i.stack.size()
	for f.elementID < len(f.thunks) {
		th := f.thunks[f.elementID]
		f.elementID++
		if th.filled {
			continue
		}
		if err := i.stack.newCall(loc, th, th.self, th.offset, th.upValues); err != nil {
			return err
		}
		if err := i.evaluate(th.body, initialStackSize); err != nil {
			return err
		}
	}
	i.stack.pop()
	return nil
}

package vm

import (
	"marl/internal/ast"
)

type valueType int

const (
	typeNull valueType = iota
	typeBoolean
	typeDouble
	typeString
	typeArray
	typeObject
	typeFunction
)

func (t valueType) String() string {
	switch t {
	case typeNull:
		return "null"
	case typeBoolean:
		return "boolean"
	case typeDouble:
		return "number"
	case typeString:
		return "string"
	case typeArray:
		return "array"
	case typeObject:
		return "object"
	case typeFunction:
		return "function"
	}
	return "unknown"
}

// value is the small tagged record passed around in scratch and frame slots.
// Exactly one of b, d, e is meaningful, per t.
type value struct {
	t valueType
	b bool
	d float64
	e heapEntity
}

func (v value) isHeap() bool {
	return v.e != nil
}

func makeNull() value {
	return value{t: typeNull}
}

func makeBoolean(b bool) value {
	return value{t: typeBoolean, b: b}
}

func makeDouble(d float64) value {
	return value{t: typeDouble, d: d}
}

// bindingFrame maps interned identifiers to the thunks they are bound to.
type bindingFrame map[*ast.Identifier]*heapThunk

func (b bindingFrame) clone() bindingFrame {
	r := make(bindingFrame, len(b))
	for id, th := range b {
		r[id] = th
	}
	return r
}

// heapEntity is anything owned by the heap and traced by the collector.
type heapEntity interface {
	gcMark() uint64
	gcSetMark(uint64)
}

type entityBase struct {
	mark uint64
}

func (e *entityBase) gcMark() uint64     { return e.mark }
func (e *entityBase) gcSetMark(m uint64) { e.mark = m }

// heapThunk is a memoising cell: an unevaluated body plus the environment it
// must run in. Once filled it never runs again.
type heapThunk struct {
	entityBase
	name     *ast.Identifier
	filled   bool
	content  value
	self     heapObject
	offset   int
	upValues bindingFrame
	body     ast.Node
}

func makeThunk(name *ast.Identifier, self heapObject, offset int, body ast.Node) *heapThunk {
	return &heapThunk{name: name, self: self, offset: offset, body: body}
}

// fill caches the result and drops the environment; nothing will ever need
// it again and holding it would keep garbage alive.
func (t *heapThunk) fill(v value) {
	t.content = v
	t.filled = true
	t.self = nil
	t.upValues = nil
}

type heapString struct {
	entityBase
	value string
}

type heapArray struct {
	entityBase
	elements []*heapThunk
}

// heapClosure is a function value. A nil body marks a built-in; builtin then
// selects the native implementation.
type heapClosure struct {
	entityBase
	upValues bindingFrame
	self     heapObject
	offset   int
	params   ast.Identifiers
	body     ast.Node
	builtin  int
}

// heapObject is a node of a prototype tree: a leaf (simple or comprehension
// object) or an extension pairing two subtrees.
type heapObject interface {
	heapEntity
	isHeapObject()
}

type simpleField struct {
	hide ast.Hide
	body ast.Node
}

type heapSimpleObject struct {
	entityBase
	upValues bindingFrame
	fields   map[*ast.Identifier]simpleField
	asserts  []ast.Node
}

func (*heapSimpleObject) isHeapObject() {}

type heapExtendedObject struct {
	entityBase
	left  heapObject
	right heapObject
}

func (*heapExtendedObject) isHeapObject() {}

type heapComprehensionObject struct {
	entityBase
	upValues   bindingFrame
	value      ast.Node
	id         *ast.Identifier
	compValues map[*ast.Identifier]*heapThunk
}

func (*heapComprehensionObject) isHeapObject() {}

func stringValue(e heapEntity) string {
	return e.(*heapString).value
}

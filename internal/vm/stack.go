package vm

import (
	"fmt"

	"marl/internal/ast"
)

// Stack frames. Of these, frameCall is the most special: it is the only
// frame counted against the depth limit and the only one the stack trace
// displays. Every other kind is a continuation describing what to do with
// the scratch register once a subterm finishes.
type frameKind int

const (
	frameApplyTarget       frameKind = iota // e in e(...)
	frameBinaryLeft                         // a in a + b
	frameBinaryRight                        // b in a + b
	frameBuiltinFilter                      // intermediate state of std.filter
	frameBuiltinForceThunks                 // forcing builtin args
	frameCall                               // switched location in user code
	frameError                              // e in error e
	frameIf                                 // e in if e then a else b
	frameIndexTarget                        // e in e[x]
	frameIndexIndex                         // e in x[e]
	frameInvariants                         // pending object assertion thunks
	frameLocal                              // bindings of local ...; e
	frameObject                             // field names of { [e]: ..., [e]: ... }
	frameObjectCompArray                    // e in {f: a for x in e}
	frameObjectCompElement                  // building the comprehension field map
	frameStringConcat                       // coercing operands of + on strings
	frameSuperIndex                         // e in super[e]
	frameUnary                              // e in -e
)

// frame is a tagged union; which fields are meaningful depends on kind.
type frame struct {
	kind frameKind

	// The code we were executing before, and its location. location is kept
	// separately because a few frames (invariants, manifestation) have no
	// originating node.
	ast      ast.Node
	location ast.LocationRange

	// Reuse this call frame for tail call optimization.
	tailCall bool

	// Scratch slots, iteration cursor, and working sets, used differently by
	// each kind.
	val          value
	val2         value
	fieldIdx     int
	objectFields map[*ast.Identifier]simpleField
	elementID    int
	elements     map[*ast.Identifier]*heapThunk
	thunks       []*heapThunk

	// context is the entity whose name seeds stack trace entries.
	context heapEntity

	// self and offset are the lexical object binding; meaningful only on
	// call frames. Other kinds inherit from the nearest call frame below.
	self   heapObject
	offset int

	// Variables introduced at this point.
	bindings bindingFrame
}

func (f *frame) isCall() bool {
	return f.kind == frameCall
}

// callStack holds the frames and enforces the call depth limit.
type callStack struct {
	calls    int
	limit    int
	maxTrace int
	stack    []*frame
}

func newCallStack(limit, maxTrace int) callStack {
	return callStack{limit: limit, maxTrace: maxTrace}
}

func (s *callStack) size() int {
	return len(s.stack)
}

func (s *callStack) top() *frame {
	return s.stack[len(s.stack)-1]
}

func (s *callStack) pop() {
	if s.top().isCall() {
		s.calls--
	}
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]
}

// newFrame pushes a non-call continuation frame for the given node.
func (s *callStack) newFrame(kind frameKind, a ast.Node) *frame {
	f := &frame{kind: kind, ast: a, location: a.Loc()}
	s.stack = append(s.stack, f)
	return f
}

func (s *callStack) newFrameLoc(kind frameKind, loc ast.LocationRange) *frame {
	f := &frame{kind: kind, location: loc}
	s.stack = append(s.stack, f)
	return f
}

// lookUpVar searches for the closest binding of id. Call frames break
// lexical scope: every call carries its environment explicitly.
func (s *callStack) lookUpVar(id *ast.Identifier) *heapThunk {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if th, ok := s.stack[i].bindings[id]; ok {
			return th
		}
		if s.stack[i].isCall() {
			break
		}
	}
	return nil
}

// tailCallTrimStack removes a tailCall-flagged call frame (and the local
// frames stacked on it) before the next call reuses its depth budget. Any
// other frame kind still has a pending continuation, so it aborts the trim.
func (s *callStack) tailCallTrimStack() {
	for i := len(s.stack) - 1; i >= 0; i-- {
		switch s.stack[i].kind {
		case frameCall:
			if !s.stack[i].tailCall || len(s.stack[i].thunks) > 0 {
				return
			}
			for j := i; j < len(s.stack); j++ {
				s.stack[j] = nil
			}
			s.stack = s.stack[:i]
			s.calls--
			return

		case frameLocal:
			// fine, keep scanning

		default:
			return
		}
	}
}

// newCall opens a call frame carrying a fresh lexical environment.
func (s *callStack) newCall(loc ast.LocationRange, context heapEntity,
	self heapObject, offset int, upValues bindingFrame) error {
	s.tailCallTrimStack()
	if s.calls >= s.limit {
		return s.makeError(loc, "Max stack frames exceeded.")
	}
	f := &frame{
		kind:     frameCall,
		location: loc,
		context:  context,
		self:     self,
		offset:   offset,
		bindings: upValues,
	}
	s.stack = append(s.stack, f)
	s.calls++
	return nil
}

// getSelfBinding finds the self and super offset of the nearest call frame.
func (s *callStack) getSelfBinding() (heapObject, int) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].isCall() {
			return s.stack[i].self, s.stack[i].offset
		}
	}
	return nil, 0
}

// alreadyExecutingInvariants reports whether the stack is already running
// assertions for this object, to stop invariants from triggering themselves.
func (s *callStack) alreadyExecutingInvariants(self heapObject) bool {
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].kind == frameInvariants && s.stack[i].self == self {
			return true
		}
	}
	return false
}

// getName attempts to find a reasonable name for an entity by scanning the
// bindings of the current local scope for a variable that points at it.
func (s *callStack) getName(fromHere int, e heapEntity) string {
	name := ""
	for i := fromHere - 1; i >= 0; i-- {
		f := s.stack[i]
		for id, th := range f.bindings {
			if !th.filled || !th.content.isHeap() {
				continue
			}
			if th.content.e == e {
				name = id.Name
			}
		}
		// Do not go into the next call frame, keep local reasoning.
		if f.isCall() {
			break
		}
	}

	if name == "" {
		name = "anonymous"
	}
	switch e := e.(type) {
	case heapObject:
		return "object <" + name + ">"
	case *heapThunk:
		return "thunk <" + e.name.Name + ">"
	case *heapClosure:
		if e.body == nil {
			return "builtin function <" + builtinDecls[e.builtin].name + ">"
		}
		return "function <" + name + ">"
	}
	return name
}

// makeError snapshots every call frame into the trace, outermost first,
// naming each frame after the entity it was executing.
func (s *callStack) makeError(loc ast.LocationRange, format string, args ...interface{}) *RuntimeError {
	trace := []TraceFrame{{Loc: loc}}
	for i := len(s.stack) - 1; i >= 0; i-- {
		f := s.stack[i]
		if !f.isCall() {
			continue
		}
		if f.context != nil {
			trace[len(trace)-1].Name = s.getName(i, f.context)
		}
		trace = append(trace, TraceFrame{Loc: f.location})
	}
	// trace was collected innermost first
	for l, r := 0, len(trace)-1; l < r; l, r = l+1, r-1 {
		trace[l], trace[r] = trace[r], trace[l]
	}
	return &RuntimeError{
		Msg:        fmt.Sprintf(format, args...),
		StackTrace: trace,
		maxTrace:   s.maxTrace,
	}
}

// markFrom marks everything visible from every frame; the stack and the
// scratch register are the collector's only roots.
func (s *callStack) markFrom(h *heap) {
	for _, f := range s.stack {
		h.markFrom(f.val)
		h.markFrom(f.val2)
		if f.context != nil {
			h.markEntity(f.context)
		}
		if f.self != nil {
			h.markEntity(f.self)
		}
		for _, th := range f.bindings {
			h.markEntity(th)
		}
		for _, th := range f.elements {
			h.markEntity(th)
		}
		for _, th := range f.thunks {
			h.markEntity(th)
		}
	}
}

package vm

import (
	"strings"
	"testing"

	"marl/internal/ast"
)

func testLoc(line int) ast.LocationRange {
	return ast.MakeLocation("stack_test.marl", line, 1)
}

func TestCallDepthLimit(t *testing.T) {
	s := newCallStack(3, 0)
	for i := 0; i < 3; i++ {
		if err := s.newCall(testLoc(i+1), nil, nil, 0, nil); err != nil {
			t.Fatalf("call %d should fit: %v", i, err)
		}
	}
	err := s.newCall(testLoc(4), nil, nil, 0, nil)
	if err == nil || !strings.Contains(err.Error(), "Max stack frames exceeded.") {
		t.Fatalf("expected depth error, got %v", err)
	}
}

func TestOnlyCallFramesCount(t *testing.T) {
	s := newCallStack(1, 0)
	if err := s.newCall(testLoc(1), nil, nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	// Non-call frames are free.
	s.newFrameLoc(frameLocal, testLoc(2))
	s.newFrameLoc(frameIf, testLoc(3))
	if s.calls != 1 {
		t.Errorf("calls: %d", s.calls)
	}
	s.pop()
	s.pop()
	s.pop()
	if s.calls != 0 || s.size() != 0 {
		t.Errorf("after pops: calls=%d size=%d", s.calls, s.size())
	}
}

func TestTailCallTrim(t *testing.T) {
	s := newCallStack(10, 0)

	// A tail-call frame with local frames above it is trimmed away.
	if err := s.newCall(testLoc(1), nil, nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	s.top().tailCall = true
	s.newFrameLoc(frameLocal, testLoc(2))
	s.newFrameLoc(frameLocal, testLoc(3))
	s.tailCallTrimStack()
	if s.size() != 0 || s.calls != 0 {
		t.Errorf("expected empty stack, got size=%d calls=%d", s.size(), s.calls)
	}

	// Pending argument thunks abort the trim.
	if err := s.newCall(testLoc(4), nil, nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	s.top().tailCall = true
	s.top().thunks = []*heapThunk{makeThunk(nil, nil, 0, nil)}
	s.tailCallTrimStack()
	if s.size() != 1 {
		t.Error("trim must not drop a frame with pending thunks")
	}
	s.pop()

	// Any other frame kind above the call aborts the trim.
	if err := s.newCall(testLoc(5), nil, nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	s.top().tailCall = true
	s.newFrameLoc(frameIf, testLoc(6))
	s.tailCallTrimStack()
	if s.size() != 2 {
		t.Error("trim must stop at a non-local frame")
	}
}

func TestLookUpVarStopsAtCall(t *testing.T) {
	intern := ast.NewInterner()
	idX := intern.Intern("x")
	idY := intern.Intern("y")
	thX := makeThunk(idX, nil, 0, nil)
	thY := makeThunk(idY, nil, 0, nil)

	s := newCallStack(10, 0)
	if err := s.newCall(testLoc(1), nil, nil, 0, bindingFrame{idX: thX}); err != nil {
		t.Fatal(err)
	}
	f := s.newFrameLoc(frameLocal, testLoc(2))
	f.bindings = bindingFrame{idY: thY}

	if got := s.lookUpVar(idY); got != thY {
		t.Error("local binding not found")
	}
	if got := s.lookUpVar(idX); got != thX {
		t.Error("call frame binding not found")
	}

	// A new call frame breaks lexical scope.
	if err := s.newCall(testLoc(3), nil, nil, 0, nil); err != nil {
		t.Fatal(err)
	}
	if got := s.lookUpVar(idX); got != nil {
		t.Error("lookup must stop at the first call frame")
	}
}

func TestSelfBinding(t *testing.T) {
	intern := ast.NewInterner()
	obj := leafWith(intern, "a")

	s := newCallStack(10, 0)
	if self, offset := s.getSelfBinding(); self != nil || offset != 0 {
		t.Error("empty stack must yield no self")
	}
	if err := s.newCall(testLoc(1), nil, obj, 2, nil); err != nil {
		t.Fatal(err)
	}
	s.newFrameLoc(frameLocal, testLoc(2))
	self, offset := s.getSelfBinding()
	if self != heapObject(obj) || offset != 2 {
		t.Error("self must come from the nearest call frame")
	}
}

func TestMakeErrorTrace(t *testing.T) {
	intern := ast.NewInterner()
	idF := intern.Intern("f")

	closure := &heapClosure{body: &ast.LiteralNull{}}
	thF := makeThunk(idF, nil, 0, nil)
	thF.fill(value{t: typeFunction, e: closure})

	s := newCallStack(10, 0)
	if err := s.newCall(testLoc(1), nil, nil, 0, bindingFrame{idF: thF}); err != nil {
		t.Fatal(err)
	}
	if err := s.newCall(testLoc(2), closure, nil, 0, nil); err != nil {
		t.Fatal(err)
	}

	err := s.makeError(testLoc(3), "boom %d", 42)
	if err.Msg != "boom 42" {
		t.Errorf("message: %q", err.Msg)
	}
	if len(err.StackTrace) != 3 {
		t.Fatalf("expected 3 trace frames, got %d", len(err.StackTrace))
	}
	// Outermost first, innermost last.
	if err.StackTrace[0].Loc.BeginLine != 1 || err.StackTrace[2].Loc.BeginLine != 3 {
		t.Errorf("trace order: %v", err.StackTrace)
	}
	// The faulting frame is named after the binding that points at its context.
	if err.StackTrace[2].Name != "function <f>" {
		t.Errorf("innermost name: %q", err.StackTrace[2].Name)
	}
}

func TestAlreadyExecutingInvariants(t *testing.T) {
	intern := ast.NewInterner()
	obj := leafWith(intern, "a")
	other := leafWith(intern, "b")

	s := newCallStack(10, 0)
	f := s.newFrameLoc(frameInvariants, testLoc(1))
	f.self = obj
	if !s.alreadyExecutingInvariants(obj) {
		t.Error("guard must see the invariants frame")
	}
	if s.alreadyExecutingInvariants(other) {
		t.Error("guard must distinguish objects")
	}
}

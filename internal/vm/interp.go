package vm

import (
	"math"
	"strings"

	"marl/internal/ast"
	"marl/internal/log"
)

// Ext is one external variable: a raw string or a code snippet compiled and
// evaluated each time std.extVar reads it.
type Ext struct {
	IsCode bool
	Data   string
}

// ImportCallback loads the contents of an import target. base is the
// directory of the importing file; rel is the path as written in the
// program. It returns the path the file was actually found at, so nested
// relative imports chain correctly.
type ImportCallback func(base, rel string) (foundAt string, contents string, err error)

// ProcessSnippetFunc turns source text into a core AST: lex, parse, desugar,
// static analysis. The evaluator needs it for import and code ext vars; the
// front end supplies it so the core stays independent of it.
type ProcessSnippetFunc func(filename, src string) (ast.Node, error)

// interpreter holds the intermediate state of one evaluation: the heap, the
// frame stack, and the scratch register the frames communicate through.
type interpreter struct {
	heap    *heap
	scratch value
	stack   callStack

	intern *ast.Interner

	// canned thunk names
	idArrayElement *ast.Identifier
	idInvariant    *ast.Identifier

	cachedImports *ImportCache

	externalVars map[string]Ext

	importCallback ImportCallback
	processSnippet ProcessSnippetFunc
}

func newInterpreter(opts Options) *interpreter {
	i := &interpreter{
		heap:           newHeap(opts.GCMinObjects, opts.GCGrowthTrigger),
		stack:          newCallStack(opts.MaxStack, opts.MaxTrace),
		intern:         opts.Interner,
		cachedImports:  opts.ImportCache,
		externalVars:   opts.ExtVars,
		importCallback: opts.Importer,
		processSnippet: opts.ProcessSnippet,
	}
	i.idArrayElement = i.intern.Intern("array_element")
	i.idInvariant = i.intern.Intern("object_assert")
	i.scratch = makeNull()
	return i
}

// alloc hands a fresh entity to the heap and collects if the heap has grown
// enough. The entity itself, the stack, and the scratch register are the
// roots; anything else must already hang off one of those.
func (i *interpreter) alloc(e heapEntity) {
	i.heap.add(e)
	if i.heap.checkHeap() {
		i.heap.beginMark()
		i.heap.markEntity(e)
		i.stack.markFrom(i.heap)
		i.heap.markFrom(i.scratch)
		i.heap.sweep()
	}
}

func (i *interpreter) makeDoubleCheck(loc ast.LocationRange, v float64) (value, error) {
	if math.IsNaN(v) {
		return value{}, i.stack.makeError(loc, "Not a number")
	}
	if math.IsInf(v, 0) {
		return value{}, i.stack.makeError(loc, "Overflow")
	}
	return makeDouble(v), nil
}

func (i *interpreter) makeString(s string) value {
	hs := &heapString{value: s}
	i.alloc(hs)
	return value{t: typeString, e: hs}
}

func (i *interpreter) makeArray(elements []*heapThunk) value {
	arr := &heapArray{elements: elements}
	i.alloc(arr)
	return value{t: typeArray, e: arr}
}

func (i *interpreter) makeClosure(env bindingFrame, self heapObject, offset int,
	params ast.Identifiers, body ast.Node) value {
	c := &heapClosure{upValues: env, self: self, offset: offset, params: params, body: body}
	i.alloc(c)
	return value{t: typeFunction, e: c}
}

func (i *interpreter) makeBuiltin(id int, params ast.Identifiers) value {
	c := &heapClosure{params: params, builtin: id}
	i.alloc(c)
	return value{t: typeFunction, e: c}
}

func (i *interpreter) makeSimpleObject(env bindingFrame,
	fields map[*ast.Identifier]simpleField, asserts []ast.Node) value {
	o := &heapSimpleObject{upValues: env, fields: fields, asserts: asserts}
	i.alloc(o)
	return value{t: typeObject, e: o}
}

func (i *interpreter) makeExtendedObject(left, right heapObject) value {
	o := &heapExtendedObject{left: left, right: right}
	i.alloc(o)
	return value{t: typeObject, e: o}
}

func (i *interpreter) makeComprehensionObject(env bindingFrame, valueBody ast.Node,
	id *ast.Identifier, compValues map[*ast.Identifier]*heapThunk) value {
	o := &heapComprehensionObject{upValues: env, value: valueBody, id: id, compValues: compValues}
	i.alloc(o)
	return value{t: typeObject, e: o}
}

// capture picks out of the current scope exactly the bindings for the given
// free variables.
func (i *interpreter) capture(freeVars ast.Identifiers) bindingFrame {
	env := make(bindingFrame, len(freeVars))
	for _, fv := range freeVars {
		if th := i.stack.lookUpVar(fv); th != nil {
			env[fv] = th
		}
	}
	return env
}

// evaluate runs the given AST to a value in the scratch register.
//
// Rather than calling itself recursively, evaluate keeps a stack of
// partially evaluated constructs. The dispatch switch handles each node
// kind; when a subterm has to be evaluated first, a frame holding the
// partial state is pushed and control jumps back to dispatch. Once a leaf
// has been consumed, the unwind loop inspects the top frame, resumes it, and
// either pops or jumps back to dispatch. The call terminates when the stack
// is back at the size it had on entry.
func (i *interpreter) evaluate(a ast.Node, initialStackSize int) error {
recurse:
	for {
		switch node := a.(type) {
		case *ast.Apply:
			i.stack.newFrame(frameApplyTarget, node)
			a = node.Target
			continue recurse

		case *ast.Array:
			self, offset := i.stack.getSelfBinding()
			arr := &heapArray{}
			i.alloc(arr)
			i.scratch = value{t: typeArray, e: arr}
			for _, el := range node.Elements {
				th := makeThunk(i.idArrayElement, self, offset, el)
				i.alloc(th)
				th.upValues = i.capture(el.FreeVariables())
				arr.elements = append(arr.elements, th)
			}

		case *ast.Binary:
			i.stack.newFrame(frameBinaryLeft, node)
			a = node.Left
			continue recurse

		case *ast.BuiltinFunction:
			i.scratch = i.makeBuiltin(node.ID, node.Params)

		case *ast.Conditional:
			i.stack.newFrame(frameIf, node)
			a = node.Cond
			continue recurse

		case *ast.Error:
			i.stack.newFrame(frameError, node)
			a = node.Expr
			continue recurse

		case *ast.Function:
			env := i.capture(node.FreeVariables())
			self, offset := i.stack.getSelfBinding()
			i.scratch = i.makeClosure(env, self, offset, node.Params, node.Body)

		case *ast.Import:
			expr, err := i.importCode(node.Loc(), node.Path)
			if err != nil {
				return err
			}
			// Imports are closed expressions: no enclosing bindings, no self.
			if err := i.stack.newCall(node.Loc(), nil, nil, 0, nil); err != nil {
				return err
			}
			a = expr
			continue recurse

		case *ast.ImportStr:
			cached, err := i.importString(node.Loc(), node.Path)
			if err != nil {
				return err
			}
			i.scratch = i.makeString(cached.content)

		case *ast.Index:
			i.stack.newFrame(frameIndexTarget, node)
			a = node.Target
			continue recurse

		case *ast.Local:
			f := i.stack.newFrame(frameLocal, node)
			self, offset := i.stack.getSelfBinding()
			f.bindings = make(bindingFrame, len(node.Binds))
			// First build all the thunks and bind them...
			for _, bind := range node.Binds {
				th := makeThunk(bind.Variable, self, offset, bind.Body)
				i.alloc(th)
				f.bindings[bind.Variable] = th
			}
			// ...then capture the environments, so mutually recursive locals
			// see each other.
			for _, bind := range node.Binds {
				f.bindings[bind.Variable].upValues = i.capture(bind.Body.FreeVariables())
			}
			a = node.Body
			continue recurse

		case *ast.LiteralBoolean:
			i.scratch = makeBoolean(node.Value)

		case *ast.LiteralNumber:
			v, err := i.makeDoubleCheck(node.Loc(), node.Value)
			if err != nil {
				return err
			}
			i.scratch = v

		case *ast.LiteralString:
			i.scratch = i.makeString(node.Value)

		case *ast.LiteralNull:
			i.scratch = makeNull()

		case *ast.DesugaredObject:
			if len(node.Fields) == 0 {
				env := i.capture(node.FreeVariables())
				i.scratch = i.makeSimpleObject(env, map[*ast.Identifier]simpleField{}, node.Asserts)
			} else {
				f := i.stack.newFrame(frameObject, node)
				f.objectFields = make(map[*ast.Identifier]simpleField)
				a = node.Fields[0].Name
				continue recurse
			}

		case *ast.ObjectComprehensionSimple:
			i.stack.newFrame(frameObjectCompArray, node)
			a = node.Array
			continue recurse

		case *ast.Self:
			self, _ := i.stack.getSelfBinding()
			i.scratch = value{t: typeObject, e: self}

		case *ast.SuperIndex:
			i.stack.newFrame(frameSuperIndex, node)
			a = node.Index
			continue recurse

		case *ast.Unary:
			i.stack.newFrame(frameUnary, node)
			a = node.Expr
			continue recurse

		case *ast.Var:
			th := i.stack.lookUpVar(node.ID)
			if th == nil {
				log.Error("INTERNAL ERROR: could not bind variable: %s", node.ID.Name)
				panic("could not bind variable: " + node.ID.Name)
			}
			if th.filled {
				i.scratch = th.content
			} else {
				if err := i.stack.newCall(node.Loc(), th, th.self, th.offset, th.upValues); err != nil {
					return err
				}
				a = th.body
				continue recurse
			}

		default:
			log.Error("INTERNAL ERROR: unknown AST node %T", a)
			panic("unknown AST node")
		}

	unwind:
		for i.stack.size() > initialStackSize {
			f := i.stack.top()
			switch f.kind {
			case frameApplyTarget:
				node := f.ast.(*ast.Apply)
				if i.scratch.t != typeFunction {
					return i.stack.makeError(node.Loc(), "Only functions can be called, got %s", i.scratch.t)
				}
				fn := i.scratch.e.(*heapClosure)
				if len(node.Args) != len(fn.params) {
					return i.stack.makeError(node.Loc(), "Expected %d arguments, got %d.",
						len(fn.params), len(node.Args))
				}

				// Create thunks for arguments.
				for idx, arg := range node.Args {
					self, offset := i.stack.getSelfBinding()
					th := makeThunk(fn.params[idx], self, offset, arg)
					i.alloc(th)
					th.upValues = i.capture(arg.FreeVariables())
					f.thunks = append(f.thunks, th)
				}
				args := f.thunks
				i.stack.pop()

				if fn.body == nil {
					// Built-in function. No self: nothing will look at this
					// frame to bind one.
					nf := i.stack.newFrame(frameBuiltinForceThunks, node)
					nf.thunks = args
					nf.val = i.scratch
					continue unwind
				}

				// User defined function.
				bindings := fn.upValues.clone()
				for idx, p := range fn.params {
					bindings[p] = args[idx]
				}
				if err := i.stack.newCall(node.Loc(), fn, fn.self, fn.offset, bindings); err != nil {
					return err
				}
				if node.TailStrict {
					i.stack.top().tailCall = true
					if len(args) == 0 {
						// No thunks to force, proceed straight to the body.
						a = fn.body
						continue recurse
					}
					i.stack.top().thunks = args
					i.stack.top().val = i.scratch
					continue unwind
				}
				a = fn.body
				continue recurse

			case frameBinaryLeft:
				node := f.ast.(*ast.Binary)
				lhs := i.scratch
				if lhs.t == typeBoolean {
					// Short-cut semantics.
					if node.Op == ast.BopAnd && !lhs.b {
						i.scratch = makeBoolean(false)
						break
					}
					if node.Op == ast.BopOr && lhs.b {
						i.scratch = makeBoolean(true)
						break
					}
				}
				f.kind = frameBinaryRight
				f.val = lhs
				a = node.Right
				continue recurse

			case frameBinaryRight:
				node := f.ast.(*ast.Binary)
				lhs, rhs := f.val, i.scratch
				if (lhs.t == typeString || rhs.t == typeString) && node.Op == ast.BopPlus {
					// Handle coercions for string concatenation.
					f.kind = frameStringConcat
					f.val2 = rhs
					continue unwind
				}
				if node.Op == ast.BopManifestEqual || node.Op == ast.BopManifestUnequal {
					log.Error("INTERNAL ERROR: equality not desugared")
					panic("equality not desugared")
				}
				if lhs.t != rhs.t {
					return i.stack.makeError(node.Loc(),
						"Binary operator %s requires matching types, got %s and %s.",
						node.Op, lhs.t, rhs.t)
				}
				v, err := i.evalBinary(node, lhs, rhs)
				if err != nil {
					return err
				}
				i.scratch = v

			case frameBuiltinFilter:
				node := f.ast.(*ast.Apply)
				fn := f.val.e.(*heapClosure)
				arr := f.val2.e.(*heapArray)
				if i.scratch.t != typeBoolean {
					return i.stack.makeError(node.Loc(),
						"filter function must return boolean, got: %s", i.scratch.t)
				}
				if i.scratch.b {
					f.thunks = append(f.thunks, arr.elements[f.elementID])
				}
				f.elementID++
				if f.elementID == len(arr.elements) {
					i.scratch = i.makeArray(f.thunks)
					break
				}
				th := arr.elements[f.elementID]
				bindings := fn.upValues.clone()
				bindings[fn.params[0]] = th
				if err := i.stack.newCall(node.Loc(), fn, fn.self, fn.offset, bindings); err != nil {
					return err
				}
				a = fn.body
				continue recurse

			case frameBuiltinForceThunks:
				node := f.ast.(*ast.Apply)
				fn := f.val.e.(*heapClosure)
				if f.elementID == len(f.thunks) {
					// All thunks forced, run the native implementation.
					args := make([]value, len(f.thunks))
					for idx, th := range f.thunks {
						args[idx] = th.content
					}
					cont, err := i.callBuiltin(node, f, fn.builtin, args)
					if err != nil {
						return err
					}
					if cont != nil {
						a = cont
						continue recurse
					}
					break
				}
				th := f.thunks[f.elementID]
				f.elementID++
				if !th.filled {
					if err := i.stack.newCall(node.Loc(), th, th.self, th.offset, th.upValues); err != nil {
						return err
					}
					a = th.body
					continue recurse
				}
				continue unwind

			case frameCall:
				switch ctx := f.context.(type) {
				case *heapThunk:
					// We called a thunk; cache the result.
					ctx.fill(i.scratch)
				case *heapClosure:
					if f.elementID < len(f.thunks) {
						// Tailstrict: force argument thunks in order.
						th := f.thunks[f.elementID]
						f.elementID++
						if !th.filled {
							if err := i.stack.newCall(f.location, th, th.self, th.offset, th.upValues); err != nil {
								return err
							}
							a = th.body
							continue recurse
						}
						continue unwind
					}
					if len(f.thunks) > 0 {
						// All arguments forced; now run the body.
						f.thunks = nil
						f.elementID = 0
						a = ctx.body
						continue recurse
					}
					// Body has been executed.
				}
				// Result of the call is in scratch, just pop.

			case frameError:
				node := f.ast.(*ast.Error)
				if i.scratch.t != typeString {
					return i.stack.makeError(node.Loc(),
						"Error message must be string, got %s.", i.scratch.t)
				}
				return i.stack.makeError(node.Loc(), "%s", stringValue(i.scratch.e))

			case frameIf:
				node := f.ast.(*ast.Conditional)
				if i.scratch.t != typeBoolean {
					return i.stack.makeError(node.Loc(),
						"Condition must be boolean, got %s.", i.scratch.t)
				}
				// Pop before recursing so the branch is in tail position.
				i.stack.pop()
				if i.scratch.b {
					a = node.BranchTrue
				} else {
					a = node.BranchFalse
				}
				continue recurse

			case frameSuperIndex:
				node := f.ast.(*ast.SuperIndex)
				self, offset := i.stack.getSelfBinding()
				offset++
				if offset >= countLeaves(self) {
					return i.stack.makeError(node.Loc(),
						"Attempt to use super when there is no super class.")
				}
				if i.scratch.t != typeString {
					return i.stack.makeError(node.Loc(),
						"Super index must be string, got %s.", i.scratch.t)
				}
				fid := i.intern.Intern(stringValue(i.scratch.e))
				i.stack.pop()
				body, err := i.objectIndex(node.Loc(), self, fid, offset)
				if err != nil {
					return err
				}
				a = body
				continue recurse

			case frameIndexIndex:
				node := f.ast.(*ast.Index)
				target := f.val
				switch target.t {
				case typeArray:
					arr := target.e.(*heapArray)
					if i.scratch.t != typeDouble {
						return i.stack.makeError(node.Loc(),
							"Array index must be number, got %s.", i.scratch.t)
					}
					idx := int(i.scratch.d)
					if idx < 0 || idx >= len(arr.elements) {
						return i.stack.makeError(node.Loc(),
							"Array bounds error: %d not within [0, %d)", idx, len(arr.elements))
					}
					th := arr.elements[idx]
					if th.filled {
						i.scratch = th.content
						break
					}
					i.stack.pop()
					if err := i.stack.newCall(node.Loc(), th, th.self, th.offset, th.upValues); err != nil {
						return err
					}
					a = th.body
					continue recurse

				case typeObject:
					obj := target.e.(heapObject)
					if i.scratch.t != typeString {
						return i.stack.makeError(node.Loc(),
							"Object index must be string, got %s.", i.scratch.t)
					}
					fid := i.intern.Intern(stringValue(i.scratch.e))
					i.stack.pop()
					body, err := i.objectIndex(node.Loc(), obj, fid, 0)
					if err != nil {
						return err
					}
					a = body
					continue recurse

				case typeString:
					str := []rune(stringValue(target.e))
					if i.scratch.t != typeDouble {
						return i.stack.makeError(node.Loc(),
							"String index must be a number, got %s.", i.scratch.t)
					}
					idx := int(i.scratch.d)
					if idx < 0 || idx >= len(str) {
						return i.stack.makeError(node.Loc(),
							"String bounds error: %d not within [0, %d)", idx, len(str))
					}
					i.scratch = i.makeString(string(str[idx]))

				default:
					log.Error("INTERNAL ERROR: index target not object / array / string")
					panic("index target not object / array / string")
				}

			case frameIndexTarget:
				node := f.ast.(*ast.Index)
				if i.scratch.t != typeArray && i.scratch.t != typeObject && i.scratch.t != typeString {
					return i.stack.makeError(node.Loc(),
						"Can only index objects, strings, and arrays, got %s.", i.scratch.t)
				}
				f.val = i.scratch
				f.kind = frameIndexIndex
				if i.scratch.t == typeObject {
					self := i.scratch.e.(heapObject)
					if !i.stack.alreadyExecutingInvariants(self) {
						f2 := i.stack.newFrameLoc(frameInvariants, node.Loc())
						f2.self = self
						counter := 0
						i.objectInvariants(self, self, &counter, f2)
						if len(f2.thunks) > 0 {
							th := f2.thunks[0]
							f2.elementID = 1
							if err := i.stack.newCall(node.Loc(), th, th.self, th.offset, th.upValues); err != nil {
								return err
							}
							a = th.body
							continue recurse
						}
						// No assertions anywhere in the tree.
						i.stack.pop()
					}
				}
				a = node.Index
				continue recurse

			case frameInvariants:
				if f.elementID >= len(f.thunks) {
					// Done; resume the index expression that triggered us.
					i.stack.pop()
					f2 := i.stack.top()
					node := f2.ast.(*ast.Index)
					a = node.Index
					continue recurse
				}
				th := f.thunks[f.elementID]
				f.elementID++
				if err := i.stack.newCall(f.location, th, th.self, th.offset, th.upValues); err != nil {
					return err
				}
				a = th.body
				continue recurse

			case frameLocal:
				// Result of the body is in scratch already.

			case frameObject:
				node := f.ast.(*ast.DesugaredObject)
				if i.scratch.t != typeNull {
					// A null field name drops the field.
					if i.scratch.t != typeString {
						return i.stack.makeError(node.Loc(), "Field name was not a string.")
					}
					fname := stringValue(i.scratch.e)
					fid := i.intern.Intern(fname)
					if _, ok := f.objectFields[fid]; ok {
						return i.stack.makeError(node.Loc(), "Duplicate field name: %q", fname)
					}
					f.objectFields[fid] = simpleField{
						hide: node.Fields[f.fieldIdx].Hide,
						body: node.Fields[f.fieldIdx].Body,
					}
				}
				f.fieldIdx++
				if f.fieldIdx < len(node.Fields) {
					a = node.Fields[f.fieldIdx].Name
					continue recurse
				}
				env := i.capture(node.FreeVariables())
				i.scratch = i.makeSimpleObject(env, f.objectFields, node.Asserts)

			case frameObjectCompArray:
				node := f.ast.(*ast.ObjectComprehensionSimple)
				if i.scratch.t != typeArray {
					return i.stack.makeError(node.Loc(),
						"Object comprehension needs array, got %s", i.scratch.t)
				}
				arr := i.scratch.e.(*heapArray)
				if len(arr.elements) == 0 {
					// Degenerate case, just create the object now.
					i.scratch = i.makeComprehensionObject(bindingFrame{}, node.Value,
						node.ID, map[*ast.Identifier]*heapThunk{})
					break
				}
				f.kind = frameObjectCompElement
				f.val = i.scratch
				f.bindings = bindingFrame{node.ID: arr.elements[0]}
				f.elements = make(map[*ast.Identifier]*heapThunk)
				f.elementID = 0
				a = node.Field
				continue recurse

			case frameObjectCompElement:
				node := f.ast.(*ast.ObjectComprehensionSimple)
				arr := f.val.e.(*heapArray)
				if i.scratch.t != typeString {
					return i.stack.makeError(node.Loc(),
						"field must be string, got: %s", i.scratch.t)
				}
				fname := stringValue(i.scratch.e)
				fid := i.intern.Intern(fname)
				if _, ok := f.elements[fid]; ok {
					return i.stack.makeError(node.Loc(), "Duplicate field name: %q", fname)
				}
				f.elements[fid] = arr.elements[f.elementID]
				f.elementID++
				if f.elementID == len(arr.elements) {
					env := i.capture(node.FreeVariables())
					i.scratch = i.makeComprehensionObject(env, node.Value, node.ID, f.elements)
					break
				}
				f.bindings[node.ID] = arr.elements[f.elementID]
				a = node.Field
				continue recurse

			case frameStringConcat:
				node := f.ast.(*ast.Binary)
				lhs, rhs := f.val, f.val2
				var out strings.Builder
				if lhs.t == typeString {
					out.WriteString(stringValue(lhs.e))
				} else {
					i.scratch = lhs
					s, err := i.toString(node.Left.Loc())
					if err != nil {
						return err
					}
					out.WriteString(s)
				}
				if rhs.t == typeString {
					out.WriteString(stringValue(rhs.e))
				} else {
					i.scratch = rhs
					s, err := i.toString(node.Right.Loc())
					if err != nil {
						return err
					}
					out.WriteString(s)
				}
				i.scratch = i.makeString(out.String())

			case frameUnary:
				node := f.ast.(*ast.Unary)
				switch i.scratch.t {
				case typeBoolean:
					if node.Op != ast.UopNot {
						return i.stack.makeError(node.Loc(),
							"Unary operator %s does not operate on booleans.", node.Op)
					}
					i.scratch = makeBoolean(!i.scratch.b)

				case typeDouble:
					switch node.Op {
					case ast.UopPlus:
					case ast.UopMinus:
						i.scratch = makeDouble(-i.scratch.d)
					case ast.UopBitwiseNot:
						i.scratch = makeDouble(float64(^int64(i.scratch.d)))
					default:
						return i.stack.makeError(node.Loc(),
							"Unary operator %s does not operate on numbers.", node.Op)
					}

				default:
					return i.stack.makeError(node.Loc(),
						"Unary operator %s does not operate on type %s", node.Op, i.scratch.t)
				}

			default:
				log.Error("INTERNAL ERROR: unknown frame kind %d", f.kind)
				panic("unknown frame kind")
			}

			i.stack.pop()
		}
		return nil
	}
}

// evalBinary handles the matching-type binary operators; string coercion and
// boolean short-cuts were already dealt with.
func (i *interpreter) evalBinary(node *ast.Binary, lhs, rhs value) (value, error) {
	loc := node.Loc()
	switch lhs.t {
	case typeArray:
		if node.Op != ast.BopPlus {
			return value{}, i.stack.makeError(loc,
				"Binary operator %s does not operate on arrays.", node.Op)
		}
		arrL := lhs.e.(*heapArray)
		arrR := rhs.e.(*heapArray)
		elements := make([]*heapThunk, 0, len(arrL.elements)+len(arrR.elements))
		elements = append(elements, arrL.elements...)
		elements = append(elements, arrR.elements...)
		return i.makeArray(elements), nil

	case typeBoolean:
		switch node.Op {
		case ast.BopAnd:
			return makeBoolean(lhs.b && rhs.b), nil
		case ast.BopOr:
			return makeBoolean(lhs.b || rhs.b), nil
		}
		return value{}, i.stack.makeError(loc,
			"Binary operator %s does not operate on booleans.", node.Op)

	case typeDouble:
		switch node.Op {
		case ast.BopPlus:
			return i.makeDoubleCheck(loc, lhs.d+rhs.d)
		case ast.BopMinus:
			return i.makeDoubleCheck(loc, lhs.d-rhs.d)
		case ast.BopMult:
			return i.makeDoubleCheck(loc, lhs.d*rhs.d)
		case ast.BopDiv:
			if rhs.d == 0 {
				return value{}, i.stack.makeError(loc, "Division by zero.")
			}
			return i.makeDoubleCheck(loc, lhs.d/rhs.d)

		// Bitwise operations truncate through a signed 64-bit integer; no
		// NaN/Inf can come out of them.
		case ast.BopShiftL:
			return makeDouble(float64(int64(lhs.d) << (uint64(rhs.d) & 63))), nil
		case ast.BopShiftR:
			return makeDouble(float64(int64(lhs.d) >> (uint64(rhs.d) & 63))), nil
		case ast.BopBitwiseAnd:
			return makeDouble(float64(int64(lhs.d) & int64(rhs.d))), nil
		case ast.BopBitwiseXor:
			return makeDouble(float64(int64(lhs.d) ^ int64(rhs.d))), nil
		case ast.BopBitwiseOr:
			return makeDouble(float64(int64(lhs.d) | int64(rhs.d))), nil

		case ast.BopLessEq:
			return makeBoolean(lhs.d <= rhs.d), nil
		case ast.BopGreaterEq:
			return makeBoolean(lhs.d >= rhs.d), nil
		case ast.BopLess:
			return makeBoolean(lhs.d < rhs.d), nil
		case ast.BopGreater:
			return makeBoolean(lhs.d > rhs.d), nil
		}
		return value{}, i.stack.makeError(loc,
			"Binary operator %s does not operate on numbers.", node.Op)

	case typeFunction:
		return value{}, i.stack.makeError(loc,
			"Binary operator %s does not operate on functions.", node.Op)

	case typeNull:
		return value{}, i.stack.makeError(loc,
			"Binary operator %s does not operate on null.", node.Op)

	case typeObject:
		if node.Op != ast.BopPlus {
			return value{}, i.stack.makeError(loc,
				"Binary operator %s does not operate on objects.", node.Op)
		}
		return i.makeExtendedObject(lhs.e.(heapObject), rhs.e.(heapObject)), nil

	case typeString:
		strL := stringValue(lhs.e)
		strR := stringValue(rhs.e)
		switch node.Op {
		case ast.BopPlus:
			return i.makeString(strL + strR), nil
		case ast.BopLessEq:
			return makeBoolean(strL <= strR), nil
		case ast.BopGreaterEq:
			return makeBoolean(strL >= strR), nil
		case ast.BopLess:
			return makeBoolean(strL < strR), nil
		case ast.BopGreater:
			return makeBoolean(strL > strR), nil
		}
		return value{}, i.stack.makeError(loc,
			"Binary operator %s does not operate on strings.", node.Op)
	}
	log.Error("INTERNAL ERROR: unhandled binary operand type %s", lhs.t)
	panic("unhandled binary operand type")
}

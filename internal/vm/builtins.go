package vm

import (
	"math"
	"sort"
	"strings"

	"marl/internal/ast"
	"marl/internal/log"
)

// codepointMax is the first invalid Unicode scalar value for std.char.
const codepointMax = 0x110000

const (
	builtinMakeArray = iota
	builtinPow
	builtinFloor
	builtinCeil
	builtinSqrt
	builtinSin
	builtinCos
	builtinTan
	builtinAsin
	builtinAcos
	builtinAtan
	builtinType
	builtinFilter
	builtinObjectHasEx
	builtinLength
	builtinObjectFieldsEx
	builtinCodepoint
	builtinChar
	builtinLog
	builtinExp
	builtinMantissa
	builtinExponent
	builtinModulo
	builtinExtVar
	builtinPrimitiveEquals

	nBuiltins
)

type builtinDecl struct {
	name   string
	params []string
}

// builtinDecls is the fixed table of native functions, in builtin-number
// order. The desugarer exposes each of these as a hidden field of std.
var builtinDecls = [nBuiltins]builtinDecl{
	builtinMakeArray:       {"makeArray", []string{"sz", "func"}},
	builtinPow:             {"pow", []string{"x", "n"}},
	builtinFloor:           {"floor", []string{"x"}},
	builtinCeil:            {"ceil", []string{"x"}},
	builtinSqrt:            {"sqrt", []string{"x"}},
	builtinSin:             {"sin", []string{"x"}},
	builtinCos:             {"cos", []string{"x"}},
	builtinTan:             {"tan", []string{"x"}},
	builtinAsin:            {"asin", []string{"x"}},
	builtinAcos:            {"acos", []string{"x"}},
	builtinAtan:            {"atan", []string{"x"}},
	builtinType:            {"type", []string{"x"}},
	builtinFilter:          {"filter", []string{"func", "arr"}},
	builtinObjectHasEx:     {"objectHasEx", []string{"obj", "f", "inc_hidden"}},
	builtinLength:          {"length", []string{"x"}},
	builtinObjectFieldsEx:  {"objectFieldsEx", []string{"obj", "inc_hidden"}},
	builtinCodepoint:       {"codepoint", []string{"str"}},
	builtinChar:            {"char", []string{"n"}},
	builtinLog:             {"log", []string{"x"}},
	builtinExp:             {"exp", []string{"x"}},
	builtinMantissa:        {"mantissa", []string{"x"}},
	builtinExponent:        {"exponent", []string{"x"}},
	builtinModulo:          {"modulo", []string{"x", "y"}},
	builtinExtVar:          {"extVar", []string{"x"}},
	builtinPrimitiveEquals: {"primitiveEquals", []string{"a", "b"}},
}

// BuiltinDecl describes one native function for the desugarer, which builds
// the std object from this table.
type BuiltinDecl struct {
	ID     int
	Name   string
	Params []string
}

func Builtins() []BuiltinDecl {
	r := make([]BuiltinDecl, nBuiltins)
	for id, decl := range builtinDecls {
		r[id] = BuiltinDecl{ID: id, Name: decl.name, Params: decl.params}
	}
	return r
}

// validateBuiltinArgs raises an error unless the arguments match the
// expected types exactly.
func (i *interpreter) validateBuiltinArgs(loc ast.LocationRange, builtin int,
	args []value, params []valueType) error {
	if len(args) == len(params) {
		ok := true
		for idx := range args {
			if args[idx].t != params[idx] {
				ok = false
				break
			}
		}
		if ok {
			return nil
		}
	}
	got := make([]string, len(args))
	for idx, a := range args {
		got[idx] = a.t.String()
	}
	want := make([]string, len(params))
	for idx, p := range params {
		want[idx] = p.String()
	}
	return i.stack.makeError(loc, "Builtin function %s expected (%s) but got (%s)",
		builtinDecls[builtin].name, strings.Join(want, ", "), strings.Join(got, ", "))
}

// callBuiltin dispatches on the builtin number once every argument thunk has
// been forced. A non-nil return value is an AST to continue evaluating in
// place of the current frame (filter iteration, code ext vars); nil means
// the result is in scratch and the frame should pop.
func (i *interpreter) callBuiltin(node *ast.Apply, f *frame, builtin int, args []value) (ast.Node, error) {
	loc := node.Loc()
	switch builtin {
	case builtinMakeArray:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeDouble, typeFunction}); err != nil {
			return nil, err
		}
		sz := int(args[0].d)
		if sz < 0 {
			return nil, i.stack.makeError(loc, "makeArray requires size >= 0, got %d", sz)
		}
		fn := args[1].e.(*heapClosure)
		if len(fn.params) != 1 {
			return nil, i.stack.makeError(loc, "makeArray function must take 1 param, got: %d", len(fn.params))
		}
		elements := make([]*heapThunk, sz)
		for idx := 0; idx < sz; idx++ {
			th := makeThunk(i.idArrayElement, fn.self, fn.offset, fn.body)
			i.alloc(th)
			// Keep the new thunk rooted through the next allocations.
			f.thunks = append(f.thunks, th)
			el := makeThunk(fn.params[0], nil, 0, nil)
			i.alloc(el)
			el.fill(makeDouble(float64(idx))) // idx cannot be NaN or infinite
			upValues := fn.upValues.clone()
			upValues[fn.params[0]] = el
			th.upValues = upValues
			elements[idx] = th
		}
		i.scratch = i.makeArray(elements)
		return nil, nil

	case builtinPow:
		return nil, i.mathBuiltin2(loc, builtin, args, math.Pow)
	case builtinFloor:
		return nil, i.mathBuiltin(loc, builtin, args, math.Floor)
	case builtinCeil:
		return nil, i.mathBuiltin(loc, builtin, args, math.Ceil)
	case builtinSqrt:
		return nil, i.mathBuiltin(loc, builtin, args, math.Sqrt)
	case builtinSin:
		return nil, i.mathBuiltin(loc, builtin, args, math.Sin)
	case builtinCos:
		return nil, i.mathBuiltin(loc, builtin, args, math.Cos)
	case builtinTan:
		return nil, i.mathBuiltin(loc, builtin, args, math.Tan)
	case builtinAsin:
		return nil, i.mathBuiltin(loc, builtin, args, math.Asin)
	case builtinAcos:
		return nil, i.mathBuiltin(loc, builtin, args, math.Acos)
	case builtinAtan:
		return nil, i.mathBuiltin(loc, builtin, args, math.Atan)
	case builtinLog:
		return nil, i.mathBuiltin(loc, builtin, args, math.Log)
	case builtinExp:
		return nil, i.mathBuiltin(loc, builtin, args, math.Exp)

	case builtinMantissa:
		return nil, i.mathBuiltin(loc, builtin, args, func(x float64) float64 {
			m, _ := math.Frexp(x)
			return m
		})
	case builtinExponent:
		return nil, i.mathBuiltin(loc, builtin, args, func(x float64) float64 {
			_, exp := math.Frexp(x)
			return float64(exp)
		})

	case builtinType:
		if len(args) != 1 {
			return nil, i.stack.makeError(loc, "type takes 1 parameter.")
		}
		i.scratch = i.makeString(args[0].t.String())
		return nil, nil

	case builtinFilter:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeFunction, typeArray}); err != nil {
			return nil, err
		}
		fn := args[0].e.(*heapClosure)
		arr := args[1].e.(*heapArray)
		if len(fn.params) != 1 {
			return nil, i.stack.makeError(loc, "filter function takes 1 parameter.")
		}
		if len(arr.elements) == 0 {
			i.scratch = i.makeArray(nil)
			return nil, nil
		}
		// Morph this frame into the filter iteration and call the predicate
		// on the first element.
		f.kind = frameBuiltinFilter
		f.val = args[0]
		f.val2 = args[1]
		f.thunks = nil
		f.elementID = 0
		bindings := fn.upValues.clone()
		bindings[fn.params[0]] = arr.elements[0]
		if err := i.stack.newCall(loc, fn, fn.self, fn.offset, bindings); err != nil {
			return nil, err
		}
		return fn.body, nil

	case builtinObjectHasEx:
		if err := i.validateBuiltinArgs(loc, builtin, args,
			[]valueType{typeObject, typeString, typeBoolean}); err != nil {
			return nil, err
		}
		obj := args[0].e.(heapObject)
		name := stringValue(args[1].e)
		includeHidden := args[2].b
		found := false
		for _, id := range objectFields(obj, !includeHidden) {
			if id.Name == name {
				found = true
				break
			}
		}
		i.scratch = makeBoolean(found)
		return nil, nil

	case builtinLength:
		if len(args) != 1 {
			return nil, i.stack.makeError(loc, "length takes 1 parameter.")
		}
		switch args[0].t {
		case typeObject:
			// Hidden fields count too; they are addressable even though they
			// do not manifest.
			i.scratch = makeDouble(float64(len(objectFields(args[0].e.(heapObject), false))))
		case typeArray:
			i.scratch = makeDouble(float64(len(args[0].e.(*heapArray).elements)))
		case typeString:
			i.scratch = makeDouble(float64(len([]rune(stringValue(args[0].e)))))
		case typeFunction:
			i.scratch = makeDouble(float64(len(args[0].e.(*heapClosure).params)))
		default:
			return nil, i.stack.makeError(loc,
				"length operates on strings, objects, and arrays, got %s", args[0].t)
		}
		return nil, nil

	case builtinObjectFieldsEx:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeObject, typeBoolean}); err != nil {
			return nil, err
		}
		obj := args[0].e.(heapObject)
		includeHidden := args[1].b
		fields := make([]string, 0)
		for _, id := range objectFields(obj, !includeHidden) {
			fields = append(fields, id.Name)
		}
		sort.Strings(fields)
		arr := &heapArray{}
		i.alloc(arr)
		i.scratch = value{t: typeArray, e: arr}
		for _, field := range fields {
			th := makeThunk(i.idArrayElement, nil, 0, nil)
			i.alloc(th)
			arr.elements = append(arr.elements, th)
			th.fill(i.makeString(field))
		}
		return nil, nil

	case builtinCodepoint:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeString}); err != nil {
			return nil, err
		}
		str := []rune(stringValue(args[0].e))
		if len(str) != 1 {
			return nil, i.stack.makeError(loc,
				"codepoint takes a string of length 1, got length %d", len(str))
		}
		i.scratch = makeDouble(float64(str[0]))
		return nil, nil

	case builtinChar:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeDouble}); err != nil {
			return nil, err
		}
		n := int(args[0].d)
		if n < 0 {
			return nil, i.stack.makeError(loc, "Codepoints must be >= 0, got %d", n)
		}
		if n >= codepointMax {
			return nil, i.stack.makeError(loc, "Invalid unicode codepoint, got %d", n)
		}
		i.scratch = i.makeString(string(rune(n)))
		return nil, nil

	case builtinModulo:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeDouble, typeDouble}); err != nil {
			return nil, err
		}
		if args[1].d == 0 {
			return nil, i.stack.makeError(loc, "Division by zero.")
		}
		v, err := i.makeDoubleCheck(loc, math.Mod(args[0].d, args[1].d))
		if err != nil {
			return nil, err
		}
		i.scratch = v
		return nil, nil

	case builtinExtVar:
		if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeString}); err != nil {
			return nil, err
		}
		name := stringValue(args[0].e)
		ext, ok := i.externalVars[name]
		if !ok {
			return nil, i.stack.makeError(loc, "Undefined external variable: %s", name)
		}
		if ext.IsCode {
			filename := "<extvar:" + name + ">"
			expr, err := i.processSnippet(filename, ext.Data)
			if err != nil {
				return nil, err
			}
			// Evaluate the compiled AST in place of this frame.
			i.stack.pop()
			return expr, nil
		}
		i.scratch = i.makeString(ext.Data)
		return nil, nil

	case builtinPrimitiveEquals:
		if len(args) != 2 {
			return nil, i.stack.makeError(loc, "primitiveEquals takes 2 parameters.")
		}
		if args[0].t != args[1].t {
			i.scratch = makeBoolean(false)
			return nil, nil
		}
		var r bool
		switch args[0].t {
		case typeBoolean:
			r = args[0].b == args[1].b
		case typeDouble:
			r = args[0].d == args[1].d
		case typeString:
			r = stringValue(args[0].e) == stringValue(args[1].e)
		case typeNull:
			r = true
		case typeFunction:
			return nil, i.stack.makeError(loc, "Cannot test equality of functions")
		default:
			return nil, i.stack.makeError(loc,
				"primitiveEquals operates on primitive types, got %s", args[0].t)
		}
		i.scratch = makeBoolean(r)
		return nil, nil
	}

	log.Error("INTERNAL ERROR: unrecognized builtin: %d", builtin)
	panic("unrecognized builtin")
}

func (i *interpreter) mathBuiltin(loc ast.LocationRange, builtin int, args []value,
	fn func(float64) float64) error {
	if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeDouble}); err != nil {
		return err
	}
	v, err := i.makeDoubleCheck(loc, fn(args[0].d))
	if err != nil {
		return err
	}
	i.scratch = v
	return nil
}

func (i *interpreter) mathBuiltin2(loc ast.LocationRange, builtin int, args []value,
	fn func(float64, float64) float64) error {
	if err := i.validateBuiltinArgs(loc, builtin, args, []valueType{typeDouble, typeDouble}); err != nil {
		return err
	}
	v, err := i.makeDoubleCheck(loc, fn(args[0].d, args[1].d))
	if err != nil {
		return err
	}
	i.scratch = v
	return nil
}

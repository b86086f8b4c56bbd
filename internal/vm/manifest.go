package vm

import (
	"math"
	"strconv"
	"strings"

	"marl/internal/ast"
)

// unparseNumber prints the shortest decimal that round-trips to the same
// IEEE-754 double. Integral values below 1e15 in magnitude print in plain
// fixed notation; everything else uses the shortest 'g' form.
func unparseNumber(d float64) string {
	if d == math.Trunc(d) && math.Abs(d) < 1e15 {
		return strconv.FormatFloat(d, 'f', -1, 64)
	}
	return strconv.FormatFloat(d, 'g', -1, 64)
}

// unparseString escapes a string for JSON output.
func unparseString(s string) string {
	var out strings.Builder
	out.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			out.WriteString(`\"`)
		case '\\':
			out.WriteString(`\\`)
		case '\b':
			out.WriteString(`\b`)
		case '\f':
			out.WriteString(`\f`)
		case '\n':
			out.WriteString(`\n`)
		case '\r':
			out.WriteString(`\r`)
		case '\t':
			out.WriteString(`\t`)
		default:
			if r < 0x20 {
				out.WriteString(`\u`)
				const hex = "0123456789abcdef"
				out.WriteByte('0')
				out.WriteByte('0')
				out.WriteByte(hex[(r>>4)&0xf])
				out.WriteByte(hex[r&0xf])
			} else {
				out.WriteRune(r)
			}
		}
	}
	out.WriteByte('"')
	return out.String()
}

// toString coerces the scratch value for string concatenation: strings stay
// as they are, everything else manifests as single-line JSON.
func (i *interpreter) toString(loc ast.LocationRange) (string, error) {
	if i.scratch.t == typeString {
		return stringValue(i.scratch.e), nil
	}
	return i.manifestJSON(loc, false, "")
}

// manifestJSON forces the scratch value into JSON text, evaluating any
// remaining fields along the way. Forcing can allocate, and allocation can
// collect, so the enclosing value is stashed in a frame slot across every
// recursive step.
func (i *interpreter) manifestJSON(loc ast.LocationRange, multiline bool, indent string) (string, error) {
	var ss strings.Builder
	switch i.scratch.t {
	case typeArray:
		arr := i.scratch.e.(*heapArray)
		if len(arr.elements) == 0 {
			ss.WriteString("[ ]")
			break
		}
		prefix := "["
		if multiline {
			prefix = "[\n"
		}
		indent2 := indent
		if multiline {
			indent2 = indent + "   "
		}
		for _, th := range arr.elements {
			tloc := loc
			if th.body != nil {
				tloc = th.body.Loc()
			}
			if err := i.forceThunkStashed(loc, th); err != nil {
				return "", err
			}
			element, err := i.manifestJSON(tloc, multiline, indent2)
			if err != nil {
				return "", err
			}
			// Restore the array so it survives the next force.
			i.scratch = i.stack.top().val
			i.stack.pop()
			ss.WriteString(prefix)
			ss.WriteString(indent2)
			ss.WriteString(element)
			if multiline {
				prefix = ",\n"
			} else {
				prefix = ", "
			}
		}
		if multiline {
			ss.WriteString("\n")
		}
		ss.WriteString(indent)
		ss.WriteString("]")

	case typeBoolean:
		if i.scratch.b {
			ss.WriteString("true")
		} else {
			ss.WriteString("false")
		}

	case typeDouble:
		ss.WriteString(unparseNumber(i.scratch.d))

	case typeFunction:
		return "", i.stack.makeError(loc, "Couldn't manifest function in JSON output.")

	case typeNull:
		ss.WriteString("null")

	case typeObject:
		obj := i.scratch.e.(heapObject)
		if err := i.runInvariants(loc, obj); err != nil {
			return "", err
		}
		// Running invariants clobbers scratch; put the object back so the
		// per-field stash below roots it again.
		i.scratch = value{t: typeObject, e: obj}
		fields := objectFields(obj, true)
		if len(fields) == 0 {
			ss.WriteString("{ }")
			break
		}
		prefix := "{"
		if multiline {
			prefix = "{\n"
		}
		indent2 := indent
		if multiline {
			indent2 = indent + "   "
		}
		for _, field := range fields {
			body, err := i.objectIndex(loc, obj, field, 0)
			if err != nil {
				return "", err
			}
			// objectIndex pushed the call frame; stash the object in it.
			i.stack.top().val = i.scratch
			if err := i.evaluate(body, i.stack.size()); err != nil {
				return "", err
			}
			vstr, err := i.manifestJSON(body.Loc(), multiline, indent2)
			if err != nil {
				return "", err
			}
			i.scratch = i.stack.top().val
			i.stack.pop()
			ss.WriteString(prefix)
			ss.WriteString(indent2)
			ss.WriteString(unparseString(field.Name))
			ss.WriteString(": ")
			ss.WriteString(vstr)
			if multiline {
				prefix = ",\n"
			} else {
				prefix = ", "
			}
		}
		if multiline {
			ss.WriteString("\n")
		}
		ss.WriteString(indent)
		ss.WriteString("}")

	case typeString:
		ss.WriteString(unparseString(stringValue(i.scratch.e)))
	}
	return ss.String(), nil
}

// forceThunkStashed evaluates th with the current scratch value stashed in
// the new call frame, leaving the thunk's value in scratch and the frame on
// the stack for the caller to restore from.
func (i *interpreter) forceThunkStashed(loc ast.LocationRange, th *heapThunk) error {
	if th.filled {
		if err := i.stack.newCall(loc, th, nil, 0, nil); err != nil {
			return err
		}
		i.stack.top().val = i.scratch
		i.scratch = th.content
		return nil
	}
	if err := i.stack.newCall(loc, th, th.self, th.offset, th.upValues); err != nil {
		return err
	}
	i.stack.top().val = i.scratch
	return i.evaluate(th.body, i.stack.size())
}

// manifestString requires the scratch value to be a string and returns it
// raw, for string output mode.
func (i *interpreter) manifestString(loc ast.LocationRange) (string, error) {
	if i.scratch.t != typeString {
		return "", i.stack.makeError(loc, "Expected string result, got: %s", i.scratch.t)
	}
	return stringValue(i.scratch.e), nil
}

// manifestMulti treats the top-level value as an object mapping filenames to
// documents and manifests each field separately.
func (i *interpreter) manifestMulti(stringOutput bool) (map[string]string, error) {
	r := make(map[string]string)
	loc := ast.LocationRange{File: "During manifestation"}
	if i.scratch.t != typeObject {
		return nil, i.stack.makeError(loc,
			"Multi mode: Top-level object was a %s, should be an object whose keys are filenames and values hold the JSON for that file.",
			i.scratch.t)
	}
	obj := i.scratch.e.(heapObject)
	if err := i.runInvariants(loc, obj); err != nil {
		return nil, err
	}
	i.scratch = value{t: typeObject, e: obj}
	for _, field := range objectFields(obj, true) {
		body, err := i.objectIndex(loc, obj, field, 0)
		if err != nil {
			return nil, err
		}
		i.stack.top().val = i.scratch
		if err := i.evaluate(body, i.stack.size()); err != nil {
			return nil, err
		}
		var vstr string
		if stringOutput {
			vstr, err = i.manifestString(body.Loc())
		} else {
			vstr, err = i.manifestJSON(body.Loc(), true, "")
		}
		if err != nil {
			return nil, err
		}
		i.scratch = i.stack.top().val
		i.stack.pop()
		r[field.Name] = vstr
	}
	return r, nil
}

// manifestStream treats the top-level value as an array and manifests each
// element as its own document.
func (i *interpreter) manifestStream() ([]string, error) {
	var r []string
	loc := ast.LocationRange{File: "During manifestation"}
	if i.scratch.t != typeArray {
		return nil, i.stack.makeError(loc,
			"Stream mode: Top-level object was a %s, should be an array whose elements hold the JSON for each document in the stream.",
			i.scratch.t)
	}
	arr := i.scratch.e.(*heapArray)
	for _, th := range arr.elements {
		tloc := loc
		if th.body != nil {
			tloc = th.body.Loc()
		}
		if err := i.forceThunkStashed(loc, th); err != nil {
			return nil, err
		}
		element, err := i.manifestJSON(tloc, true, "")
		if err != nil {
			return nil, err
		}
		i.scratch = i.stack.top().val
		i.stack.pop()
		r = append(r, element)
	}
	return r, nil
}

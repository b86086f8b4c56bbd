// Package std carries the source of the part of the standard library that is
// written in the language itself. The desugarer parses this for every
// compiled unit and extends the native builtin object with it, so std.equals and friends are
// ordinary hidden fields resolved through the usual prototype chain.
package std

const Source = `{
  toString(a):: "" + a,

  abs(n):: if n > 0 then n else -n,
  max(a, b):: if a > b then a else b,
  min(a, b):: if a < b then a else b,

  mod(a, b)::
    if std.isNumber(a) && std.isNumber(b) then
      std.modulo(a, b)
    else
      error "Operator % cannot be used on types " + std.type(a) + " and " + std.type(b) + ".",

  isString(v):: std.primitiveEquals(std.type(v), "string"),
  isNumber(v):: std.primitiveEquals(std.type(v), "number"),
  isBoolean(v):: std.primitiveEquals(std.type(v), "boolean"),
  isObject(v):: std.primitiveEquals(std.type(v), "object"),
  isArray(v):: std.primitiveEquals(std.type(v), "array"),
  isFunction(v):: std.primitiveEquals(std.type(v), "function"),

  objectHas(o, f):: std.objectHasEx(o, f, false),
  objectFields(o):: std.objectFieldsEx(o, false),
  objectHasAll(o, f):: std.objectHasEx(o, f, true),
  objectFieldsAll(o):: std.objectFieldsEx(o, true),

  map(func, arr):: std.makeArray(std.length(arr), function(i) func(arr[i])),

  range(from, to):: std.makeArray(to - from + 1, function(i) i + from),

  join(sep, arr)::
    local aux(i, running) =
      if i >= std.length(arr) then
        running
      else if i == 0 then
        aux(i + 1, running + arr[i]) tailstrict
      else
        aux(i + 1, running + sep + arr[i]) tailstrict;
    aux(0, ""),

  equals(a, b)::
    local ta = std.type(a);
    local tb = std.type(b);
    if !std.primitiveEquals(ta, tb) then
      false
    else if std.primitiveEquals(ta, "array") then
      local la = std.length(a);
      if !std.primitiveEquals(la, std.length(b)) then
        false
      else
        local aux(i) =
          if i >= la then
            true
          else if !std.equals(a[i], b[i]) then
            false
          else
            aux(i + 1) tailstrict;
        aux(0)
    else if std.primitiveEquals(ta, "object") then
      local fields = std.objectFields(a);
      if !std.equals(fields, std.objectFields(b)) then
        false
      else
        local la = std.length(fields);
        local aux(i) =
          if i >= la then
            true
          else if !std.equals(a[fields[i]], b[fields[i]]) then
            false
          else
            aux(i + 1) tailstrict;
        aux(0)
    else
      std.primitiveEquals(a, b),

  assertEqual(a, b)::
    if std.equals(a, b) then
      true
    else
      error "Assertion failed. " + std.toString(a) + " != " + std.toString(b),
}
`

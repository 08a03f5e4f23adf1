// Package attribute implements the typed attribute engine (C1): typed
// attribute definitions and values, access-controlled reads and writes,
// and default-fill semantics for partially specified writes. It backs
// zone attributes, resource-instance attributes, and owner-table columns
// throughout the rest of the module.
package attribute

import "github.com/cuemby/arbiter/pkg/errs"

// Type is the tagged-union discriminant for an attribute value.
type Type int

const (
	TypeString Type = iota
	TypeInt32
	TypeUint32
	TypeDouble
)

// Access is a bitmask of permitted operations on an attribute.
type Access int

const (
	Read  Access = 1 << 0
	Write Access = 1 << 1

	ReadWrite = Read | Write
)

// Definition declares one named, typed attribute with its default value
// and access mask. Once part of a registered resource or zone, a
// Definition is immutable.
type Definition struct {
	Name    string
	Type    Type
	Access  Access
	Default Value
}

// Value is a tagged union over {string, int32, uint32, double}. The
// fields not matching Type are not meaningful; callers switch on Type.
type Value struct {
	Type Type
	Str  string
	I32  int32
	U32  uint32
	Dbl  float64
}

// CopyDefinitions deep-copies a definition vector, including each
// default's owned string, so the returned slice shares no backing
// storage with src.
func CopyDefinitions(src []Definition) []Definition {
	out := make([]Definition, len(src))
	copy(out, src)
	return out
}

// zero returns the zero-valued triple for a denied or out-of-range read,
// matching the defined type so callers can still inspect Type.
func zero(t Type) Value {
	return Value{Type: t}
}

// GetValue returns the value at idx if readable. If idx is out of range
// or the definition denies read access, it returns a zero-valued triple
// rather than an error, matching the "no error on denied read" contract.
func GetValue(idx int, defs []Definition, values []Value) Value {
	if idx < 0 || idx >= len(defs) || idx >= len(values) {
		return Value{}
	}
	def := defs[idx]
	if def.Access&Read == 0 {
		return zero(def.Type)
	}
	return values[idx]
}

// GetAllValues returns the readable values in defs/values, in definition
// order. If into is non-nil and long enough it is reused and returned
// (trimmed to len(defs)); otherwise a new slice is allocated. Attributes
// lacking read access are present as a zero-valued triple, preserving
// index alignment with defs.
func GetAllValues(defs []Definition, values []Value, into []Value) []Value {
	out := into
	if cap(out) < len(defs) {
		out = make([]Value, len(defs))
	} else {
		out = out[:len(defs)]
	}
	for i, def := range defs {
		if i >= len(values) || def.Access&Read == 0 {
			out[i] = zero(def.Type)
			continue
		}
		out[i] = values[i]
	}
	return out
}

// Input is one named attribute value supplied by a caller to SetValues,
// e.g. when adding a resource instance or declaring zone attributes.
type Input struct {
	Name  string
	Value Value
}

// SetValues populates values (sized to len(defs)) from inputs: for each
// definition, if inputs names a writable attribute of matching type, its
// value is taken; otherwise the definition's default is used. Strings
// are copied by value (Go strings are immutable and already share no
// mutable backing storage), so no explicit free step is needed the way
// the original's owned-copy semantics required.
func SetValues(inputs []Input, defs []Definition, values []Value) []Value {
	out := values
	if cap(out) < len(defs) {
		out = make([]Value, len(defs))
	} else {
		out = out[:len(defs)]
	}

	byName := make(map[string]Input, len(inputs))
	for _, in := range inputs {
		byName[in.Name] = in
	}

	for i, def := range defs {
		in, ok := byName[def.Name]
		if ok && def.Access&Write != 0 && in.Value.Type == def.Type {
			out[i] = in.Value
		} else {
			out[i] = def.Default
		}
	}
	return out
}

// IndexOf returns the index of the named definition, or -1 if absent.
func IndexOf(defs []Definition, name string) int {
	for i, d := range defs {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// ValidateDefault checks that a definition's declared default matches
// its declared type, returning an INVALID_ARG error otherwise. Callers
// registering new attribute schemas (zones, resource definitions) should
// call this before accepting a schema.
func ValidateDefault(def Definition) error {
	if def.Default.Type != def.Type {
		return errs.Newf(errs.InvalidArg, "attribute %q: default type %v does not match declared type %v", def.Name, def.Default.Type, def.Type)
	}
	return nil
}

package compiler

import "sort"

// ---------------------------------------------------------------------------
// Reachability: transitive custom-type closure per api
// ---------------------------------------------------------------------------

// ReferencedType is one custom type reachable from an api, with the source
// offsets of every mention (for diagnostics only).
type ReferencedType struct {
	Type    TypeDeclaration
	Offsets []int
}

// referencedTypes accumulates the closure. Keyed by base name: custom types
// never carry type arguments, so the name identifies the type.
type referencedTypes struct {
	byName    map[string]*ReferencedType
	ambiguous bool
}

// ReferencedTypesForApi computes every distinct custom type transitively
// reachable from the api's methods, constructors, and fields, including
// types nested inside generic arguments. The walk runs to a fixed point
// over class fields, so mutually referential classes terminate and appear
// exactly once.
//
// If the closure mentions a type that cannot be statically narrowed (a bare
// List or Map, or Object), every class and enum in the schema is included:
// a value that is statically Object may dynamically be any declared class,
// and it must have a codec tag when it is.
//
// The result is sorted by type name, so two runs over the same schema
// produce identical output regardless of declaration order.
func ReferencedTypesForApi(api *Api, defs *Definitions) []ReferencedType {
	r := &referencedTypes{byName: make(map[string]*ReferencedType)}

	for _, m := range api.Methods {
		r.addType(m.ReturnType, defs)
		for _, p := range m.Parameters {
			r.addType(p.Type, defs)
		}
	}
	for _, c := range api.Constructors {
		for _, p := range c.Parameters {
			r.addType(p.Type, defs)
		}
	}
	for _, f := range api.Fields {
		r.addType(f.Type, defs)
	}

	if r.ambiguous {
		// Conservative fallback: the concrete runtime type of an
		// ambiguous value cannot be narrowed, so every declared type is
		// potentially on the wire.
		for _, c := range defs.Classes {
			r.addType(TypeDeclaration{BaseName: c.Name, Class: c, Pos: c.Pos}, defs)
		}
		for _, e := range defs.Enums {
			r.addType(TypeDeclaration{BaseName: e.Name, Enum: e, Pos: e.Pos}, defs)
		}
	}

	out := make([]ReferencedType, 0, len(r.byName))
	for _, rt := range r.byName {
		sort.Ints(rt.Offsets)
		out = append(out, *rt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type.BaseName < out[j].Type.BaseName
	})
	return out
}

// addType records one type mention and walks into it: generic arguments
// recursively, and for a newly seen class, its field types.
func (r *referencedTypes) addType(t TypeDeclaration, defs *Definitions) {
	if t.IsAmbiguous() {
		r.ambiguous = true
	}
	for _, arg := range t.TypeArguments {
		r.addType(arg, defs)
	}
	if !t.IsCustom() {
		return
	}

	if existing, ok := r.byName[t.BaseName]; ok {
		existing.Offsets = append(existing.Offsets, t.Pos.Offset)
		return
	}
	r.byName[t.BaseName] = &ReferencedType{
		Type:    t,
		Offsets: []int{t.Pos.Offset},
	}

	// First sighting of a class: its fields are reachable too.
	if t.Class != nil {
		for _, f := range t.Class.Fields {
			r.addType(f.Type, defs)
		}
	}
	// Proxy apis carry no payload of their own; instances cross the wire
	// as identifiers only, so there is nothing further to walk.
}

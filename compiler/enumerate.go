package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Codec tag assignment
// ---------------------------------------------------------------------------

// Codec tags 0..127 belong to the standard portion of the codec
// (primitives and containers); 128 is the first value free for custom
// classes, and 255 is reserved.
const (
	MinimumCodecTag  = 128
	MaximumCodecTags = 127
)

// EnumeratedClass pairs a class with its codec tag for one api.
type EnumeratedClass struct {
	Name  string
	Class *Class
	Tag   int
}

// EnumeratedClassesForApi assigns codec tags to every non-enum custom class
// reachable from the api. Enums are excluded: they serialize as bare
// integers and never need a tag.
//
// Assignment is a pure function of the reachable class-name set: names are
// sorted with ordinal string comparison and numbered consecutively from
// 128. Every emitter recomputes this identically; nothing is cached.
func EnumeratedClassesForApi(api *Api, defs *Definitions) ([]EnumeratedClass, error) {
	referenced := ReferencedTypesForApi(api, defs)

	names := make([]string, 0, len(referenced))
	byName := make(map[string]*Class, len(referenced))
	for _, rt := range referenced {
		if rt.Type.Class == nil {
			continue // enums and proxy apis are not codec-tagged
		}
		names = append(names, rt.Type.BaseName)
		byName[rt.Type.BaseName] = rt.Type.Class
	}
	sort.Strings(names)

	if len(names) > MaximumCodecTags {
		return nil, fmt.Errorf(
			"compiler: api %s references %d custom classes but the codec supports at most %d; split the api",
			api.Name, len(names), MaximumCodecTags)
	}

	out := make([]EnumeratedClass, len(names))
	for i, name := range names {
		out[i] = EnumeratedClass{
			Name:  name,
			Class: byName[name],
			Tag:   MinimumCodecTag + i,
		}
	}
	return out, nil
}

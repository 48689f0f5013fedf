package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Analyzer: resolution and validation of a parsed schema
// ---------------------------------------------------------------------------

// Analyzer resolves every type reference in a schema to its definition and
// validates the rules the emitters depend on. A schema that passes Analyze
// with no diagnostics is safe to hand to any emitter.
type Analyzer struct {
	defs        *Definitions
	diagnostics []Diagnostic

	enums   map[string]*Enum
	classes map[string]*Class
	proxies map[string]*Api
}

// NewAnalyzer creates an analyzer for the given parsed schema.
func NewAnalyzer(defs *Definitions) *Analyzer {
	return &Analyzer{
		defs:    defs,
		enums:   make(map[string]*Enum),
		classes: make(map[string]*Class),
		proxies: make(map[string]*Api),
	}
}

// errorf records an analysis error.
func (a *Analyzer) errorf(pos Position, format string, args ...interface{}) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

// Analyze runs all passes and returns the diagnostics found. Type
// declarations in the schema are resolved in place.
func (a *Analyzer) Analyze() []Diagnostic {
	a.collectNames()
	a.resolveAll()
	a.validateApis()
	return a.diagnostics
}

// collectNames builds the name tables and rejects collisions.
func (a *Analyzer) collectNames() {
	seen := make(map[string]Position)

	declare := func(name string, pos Position) bool {
		if IsPrimitiveName(name) {
			a.errorf(pos, "%s collides with a built-in type name", name)
			return false
		}
		if prev, ok := seen[name]; ok {
			a.errorf(pos, "%s is already declared at line %d", name, prev.Line)
			return false
		}
		seen[name] = pos
		return true
	}

	for _, e := range a.defs.Enums {
		if declare(e.Name, e.Pos) {
			a.enums[e.Name] = e
		}
		members := make(map[string]bool)
		for _, m := range e.Members {
			if members[m.Name] {
				a.errorf(m.Pos, "enum %s has duplicate member %s", e.Name, m.Name)
			}
			members[m.Name] = true
		}
	}

	for _, c := range a.defs.Classes {
		if declare(c.Name, c.Pos) {
			a.classes[c.Name] = c
		}
		fields := make(map[string]bool)
		for _, f := range c.Fields {
			if fields[f.Name] {
				a.errorf(f.Pos, "class %s has duplicate field %s", c.Name, f.Name)
			}
			fields[f.Name] = true
		}
	}

	for _, api := range a.defs.Apis {
		if declare(api.Name, api.Pos) && api.Kind == ApiProxy {
			a.proxies[api.Name] = api
		}
		methods := make(map[string]bool)
		for _, m := range api.Methods {
			if methods[m.Name] {
				a.errorf(m.Pos, "api %s has duplicate method %s", api.Name, m.Name)
			}
			methods[m.Name] = true
		}
	}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// resolveAll links every TypeDeclaration in the schema to its definition.
func (a *Analyzer) resolveAll() {
	for _, c := range a.defs.Classes {
		for i := range c.Fields {
			a.resolveType(&c.Fields[i].Type, false)
		}
	}
	for _, api := range a.defs.Apis {
		for _, m := range api.Methods {
			a.resolveType(&m.ReturnType, true)
			for i := range m.Parameters {
				a.resolveType(&m.Parameters[i].Type, false)
			}
		}
		for _, ctor := range api.Constructors {
			for i := range ctor.Parameters {
				a.resolveType(&ctor.Parameters[i].Type, false)
			}
		}
		for i := range api.Fields {
			a.resolveType(&api.Fields[i].Type, false)
		}
	}
}

// resolveType links t (and its type arguments, recursively) to the
// definitions it names. isReturn permits void.
func (a *Analyzer) resolveType(t *TypeDeclaration, isReturn bool) {
	switch t.BaseName {
	case TypeVoid:
		if !isReturn {
			a.errorf(t.Pos, "void is only valid as a return type")
		}
		if t.Nullable {
			a.errorf(t.Pos, "void cannot be nullable")
		}
		return

	case TypeList:
		if len(t.TypeArguments) > 1 {
			a.errorf(t.Pos, "List takes at most one type argument, got %d", len(t.TypeArguments))
		}

	case TypeMap:
		if len(t.TypeArguments) != 0 && len(t.TypeArguments) != 2 {
			a.errorf(t.Pos, "Map takes zero or two type arguments, got %d", len(t.TypeArguments))
		}

	default:
		if len(t.TypeArguments) > 0 {
			a.errorf(t.Pos, "%s does not take type arguments", t.BaseName)
		}
	}

	for i := range t.TypeArguments {
		a.resolveType(&t.TypeArguments[i], false)
	}

	if t.IsPrimitive() {
		return
	}

	if e, ok := a.enums[t.BaseName]; ok {
		t.Enum = e
		return
	}
	if c, ok := a.classes[t.BaseName]; ok {
		t.Class = c
		return
	}
	if p, ok := a.proxies[t.BaseName]; ok {
		t.Proxy = p
		return
	}
	a.errorf(t.Pos, "unknown type %s", t.BaseName)
}

// ---------------------------------------------------------------------------
// API validation
// ---------------------------------------------------------------------------

// validateApis enforces the per-kind modifier and member rules.
func (a *Analyzer) validateApis() {
	for _, api := range a.defs.Apis {
		switch api.Kind {
		case ApiHost:
			a.validateFlatApi(api, true)
		case ApiClient:
			a.validateFlatApi(api, false)
		case ApiProxy:
			a.validateProxyApi(api)
		}
	}

	// Data classes may not hold api references; proxied instances cross
	// the wire as identifiers, never embedded in a class payload.
	for _, c := range a.defs.Classes {
		for _, f := range c.Fields {
			a.rejectProxyType(&f.Type, fmt.Sprintf("field %s of class %s", f.Name, c.Name))
		}
	}
}

// validateFlatApi checks a host or client api. allowAsync is true for host
// apis only: a client api call is already asynchronous from the host's
// point of view, so the modifier is meaningless there.
func (a *Analyzer) validateFlatApi(api *Api, allowAsync bool) {
	if len(api.Constructors) > 0 {
		a.errorf(api.Constructors[0].Pos, "%s api %s cannot declare constructors", api.Kind, api.Name)
	}
	if len(api.Fields) > 0 {
		a.errorf(api.Fields[0].Pos, "%s api %s cannot declare fields", api.Kind, api.Name)
	}
	for _, m := range api.Methods {
		if m.IsAsync && !allowAsync {
			a.errorf(m.Pos, "method %s: async is only valid on host api methods", m.Name)
		}
		if m.IsStatic {
			a.errorf(m.Pos, "method %s: static is only valid on proxy api methods", m.Name)
		}
		if m.IsCallback {
			a.errorf(m.Pos, "method %s: callback is only valid on proxy api methods", m.Name)
		}
		a.validateParameters(api, m)
	}
}

// validateProxyApi checks a proxy api.
func (a *Analyzer) validateProxyApi(api *Api) {
	ctors := make(map[string]bool)
	for _, c := range api.Constructors {
		if ctors[c.Name] {
			if c.Name == "" {
				a.errorf(c.Pos, "proxy api %s has duplicate default constructor", api.Name)
			} else {
				a.errorf(c.Pos, "proxy api %s has duplicate constructor %s", api.Name, c.Name)
			}
		}
		ctors[c.Name] = true
	}

	fields := make(map[string]bool)
	for _, f := range api.Fields {
		if fields[f.Name] {
			a.errorf(f.Pos, "proxy api %s has duplicate field %s", api.Name, f.Name)
		}
		fields[f.Name] = true

		if f.Attached && f.Type.Proxy == nil {
			a.errorf(f.Pos, "attached field %s must be a proxy api type, got %s", f.Name, f.Type.BaseName)
		}
		if !f.Attached {
			if f.Static {
				a.errorf(f.Pos, "field %s: static is only valid on attached fields", f.Name)
			}
			a.rejectProxyType(&f.Type, fmt.Sprintf("unattached field %s", f.Name))
		}
	}

	for _, m := range api.Methods {
		if m.IsAsync && m.IsCallback {
			a.errorf(m.Pos, "method %s: callback methods cannot be async", m.Name)
		}
		if m.IsStatic && m.IsCallback {
			a.errorf(m.Pos, "method %s: callback methods cannot be static", m.Name)
		}
		a.validateParameters(api, m)
	}
}

// validateParameters rejects duplicate or void-typed parameters.
func (a *Analyzer) validateParameters(api *Api, m *Method) {
	names := make(map[string]bool)
	for _, param := range m.Parameters {
		if names[param.Name] {
			a.errorf(param.Pos, "method %s has duplicate parameter %s", m.Name, param.Name)
		}
		names[param.Name] = true

		if api.Kind != ApiProxy {
			a.rejectProxyType(&param.Type, fmt.Sprintf("parameter %s of method %s", param.Name, m.Name))
		}
	}
	if api.Kind != ApiProxy {
		a.rejectProxyType(&m.ReturnType, fmt.Sprintf("return type of method %s", m.Name))
	}
}

// rejectProxyType records an error if t (or a type argument) resolves to a
// proxy api.
func (a *Analyzer) rejectProxyType(t *TypeDeclaration, context string) {
	if t.Proxy != nil {
		a.errorf(t.Pos, "%s: proxy api type %s is only valid inside proxy apis", context, t.BaseName)
	}
	for i := range t.TypeArguments {
		a.rejectProxyType(&t.TypeArguments[i], context)
	}
}

package compiler

// ---------------------------------------------------------------------------
// AST: schema model for the loom IDL
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Primitive type names. Everything else is a custom type that must resolve
// to an enum, class, or proxy api declaration.
const (
	TypeVoid      = "void"
	TypeBool      = "bool"
	TypeInt       = "int"
	TypeDouble    = "double"
	TypeString    = "String"
	TypeUint8List = "Uint8List"
	TypeObject    = "Object"
	TypeList      = "List"
	TypeMap       = "Map"
)

var primitiveTypes = map[string]bool{
	TypeVoid:      true,
	TypeBool:      true,
	TypeInt:       true,
	TypeDouble:    true,
	TypeString:    true,
	TypeUint8List: true,
	TypeObject:    true,
	TypeList:      true,
	TypeMap:       true,
}

// IsPrimitiveName reports whether name is a built-in type name.
func IsPrimitiveName(name string) bool {
	return primitiveTypes[name]
}

// TypeDeclaration is a reference to a named type, possibly nullable and
// possibly carrying generic type arguments (List and Map only).
type TypeDeclaration struct {
	BaseName      string
	Nullable      bool
	TypeArguments []TypeDeclaration
	Pos           Position

	// Resolved links, filled in by the analyzer. At most one is non-nil.
	Enum  *Enum
	Class *Class
	Proxy *Api
}

// IsPrimitive reports whether the declaration names a built-in type.
func (t TypeDeclaration) IsPrimitive() bool {
	return primitiveTypes[t.BaseName]
}

// IsVoid reports whether the declaration is the void pseudo-type.
func (t TypeDeclaration) IsVoid() bool {
	return t.BaseName == TypeVoid
}

// IsCustom reports whether the declaration names a user-defined type.
func (t TypeDeclaration) IsCustom() bool {
	return !t.IsPrimitive()
}

// IsAmbiguous reports whether the declaration cannot be statically narrowed
// to a concrete set of element types: a bare List or Map (no type
// arguments), or the universal Object type.
func (t TypeDeclaration) IsAmbiguous() bool {
	if t.BaseName == TypeObject {
		return true
	}
	if (t.BaseName == TypeList || t.BaseName == TypeMap) && len(t.TypeArguments) == 0 {
		return true
	}
	return false
}

// String renders the declaration in source form, e.g. "List<String?>?".
func (t TypeDeclaration) String() string {
	s := t.BaseName
	if len(t.TypeArguments) > 0 {
		s += "<"
		for i, arg := range t.TypeArguments {
			if i > 0 {
				s += ", "
			}
			s += arg.String()
		}
		s += ">"
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

// Field is a named, typed member of a data class, with an optional default
// value literal. Field order within a class is the wire serialization order.
type Field struct {
	Name         string
	Type         TypeDeclaration
	DefaultValue string // literal source text, "" if none
	Doc          []string
	Pos          Position
}

// EnumMember is one named member of an enum. Wire representation is the
// member's zero-based position, so member order is part of the contract.
type EnumMember struct {
	Name string
	Doc  []string
	Pos  Position
}

// Enum is a named, ordered list of members.
type Enum struct {
	Name    string
	Members []EnumMember
	Doc     []string
	Pos     Position
}

// MemberIndex returns the zero-based position of the named member, or -1.
func (e *Enum) MemberIndex(name string) int {
	for i, m := range e.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Class is a named, ordered list of fields. Immutable after analysis.
type Class struct {
	Name   string
	Fields []Field
	Doc    []string
	Pos    Position
}

// ApiKind distinguishes the three API emission strategies.
type ApiKind int

const (
	ApiHost   ApiKind = iota // invoked by client, executed by host
	ApiClient                // invoked by host, executed by client
	ApiProxy                 // stateful object-reference api
)

// String returns the IDL keyword for the kind.
func (k ApiKind) String() string {
	switch k {
	case ApiHost:
		return "host"
	case ApiClient:
		return "client"
	case ApiProxy:
		return "proxy"
	}
	return "unknown"
}

// Parameter is one ordered method parameter.
type Parameter struct {
	Name string
	Type TypeDeclaration
	Pos  Position
}

// Method is a named operation on an api.
type Method struct {
	Name       string
	Parameters []Parameter
	ReturnType TypeDeclaration
	IsAsync    bool
	IsStatic   bool // proxy apis only
	IsCallback bool // proxy apis only: invoked by host, executed by client
	Doc        []string
	Pos        Position
}

// Constructor is a proxy api constructor. An empty name is the default
// constructor; named constructors are allowed.
type Constructor struct {
	Name       string
	Parameters []Parameter
	Doc        []string
	Pos        Position
}

// ApiField is a proxy api field. Attached fields hold proxied instances
// created by the host; unattached fields are plain data passed at
// construction time.
type ApiField struct {
	Name     string
	Type     TypeDeclaration
	Attached bool
	Static   bool
	Doc      []string
	Pos      Position
}

// Api is a named collection of methods with one of three kinds.
// Constructors and Fields are populated for proxy apis only.
type Api struct {
	Name         string
	Kind         ApiKind
	Methods      []*Method
	Constructors []*Constructor
	Fields       []ApiField
	Doc          []string
	Pos          Position
}

// Definitions is the root of a parsed and analyzed schema. Read-only after
// Build returns.
type Definitions struct {
	FileName    string
	PackageName string
	Enums       []*Enum
	Classes     []*Class
	Apis        []*Api
}

// LookupEnum returns the enum with the given name, or nil.
func (d *Definitions) LookupEnum(name string) *Enum {
	for _, e := range d.Enums {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// LookupClass returns the class with the given name, or nil.
func (d *Definitions) LookupClass(name string) *Class {
	for _, c := range d.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// LookupApi returns the api with the given name, or nil.
func (d *Definitions) LookupApi(name string) *Api {
	for _, a := range d.Apis {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// LookupProxyApi returns the proxy api with the given name, or nil.
func (d *Definitions) LookupProxyApi(name string) *Api {
	for _, a := range d.Apis {
		if a.Kind == ApiProxy && a.Name == name {
			return a
		}
	}
	return nil
}

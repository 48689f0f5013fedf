package hash

import (
	"encoding/binary"

	"github.com/chazu/loom/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the analyzed schema model.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (uint32)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Child nodes: serialized inline (flat), in declaration order
//
// Source positions are excluded: moving a declaration without reordering
// anything does not change what gets emitted. Declaration order, field
// order, enum member order, doc comments, and default values are all part
// of the emitted contract, so all of them feed the hash.
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of a schema.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(defs *compiler.Definitions) []byte {
	s := &serializer{buf: make([]byte, 0, 512)}
	s.writeByte(HashVersion)
	s.serializeDefinitions(defs)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeStrings(v []string) {
	s.writeUint32(uint32(len(v)))
	for _, line := range v {
		s.writeString(line)
	}
}

func (s *serializer) serializeDefinitions(defs *compiler.Definitions) {
	s.writeByte(TagDefinitions)
	s.writeString(defs.PackageName)

	s.writeUint32(uint32(len(defs.Enums)))
	for _, e := range defs.Enums {
		s.serializeEnum(e)
	}
	s.writeUint32(uint32(len(defs.Classes)))
	for _, c := range defs.Classes {
		s.serializeClass(c)
	}
	s.writeUint32(uint32(len(defs.Apis)))
	for _, a := range defs.Apis {
		s.serializeApi(a)
	}
}

func (s *serializer) serializeEnum(e *compiler.Enum) {
	s.writeByte(TagEnum)
	s.writeString(e.Name)
	s.writeStrings(e.Doc)
	s.writeUint32(uint32(len(e.Members)))
	for _, m := range e.Members {
		s.writeByte(TagEnumMember)
		s.writeString(m.Name)
		s.writeStrings(m.Doc)
	}
}

func (s *serializer) serializeClass(c *compiler.Class) {
	s.writeByte(TagClass)
	s.writeString(c.Name)
	s.writeStrings(c.Doc)
	s.writeUint32(uint32(len(c.Fields)))
	for _, f := range c.Fields {
		s.writeByte(TagField)
		s.writeString(f.Name)
		s.writeString(f.DefaultValue)
		s.writeStrings(f.Doc)
		s.serializeType(f.Type)
	}
}

func (s *serializer) serializeApi(a *compiler.Api) {
	s.writeByte(TagApi)
	s.writeString(a.Name)
	s.writeByte(byte(a.Kind))
	s.writeStrings(a.Doc)

	s.writeUint32(uint32(len(a.Methods)))
	for _, m := range a.Methods {
		s.serializeMethod(m)
	}
	s.writeUint32(uint32(len(a.Constructors)))
	for _, c := range a.Constructors {
		s.writeByte(TagConstructor)
		s.writeString(c.Name)
		s.writeStrings(c.Doc)
		s.serializeParameters(c.Parameters)
	}
	s.writeUint32(uint32(len(a.Fields)))
	for _, f := range a.Fields {
		s.writeByte(TagApiField)
		s.writeString(f.Name)
		s.writeBool(f.Attached)
		s.writeBool(f.Static)
		s.writeStrings(f.Doc)
		s.serializeType(f.Type)
	}
}

func (s *serializer) serializeMethod(m *compiler.Method) {
	s.writeByte(TagMethod)
	s.writeString(m.Name)
	s.writeBool(m.IsAsync)
	s.writeBool(m.IsStatic)
	s.writeBool(m.IsCallback)
	s.writeStrings(m.Doc)
	s.serializeParameters(m.Parameters)
	s.serializeType(m.ReturnType)
}

func (s *serializer) serializeParameters(params []compiler.Parameter) {
	s.writeUint32(uint32(len(params)))
	for _, p := range params {
		s.writeByte(TagParameter)
		s.writeString(p.Name)
		s.serializeType(p.Type)
	}
}

func (s *serializer) serializeType(t compiler.TypeDeclaration) {
	s.writeByte(TagType)
	s.writeString(t.BaseName)
	s.writeBool(t.Nullable)
	s.writeUint32(uint32(len(t.TypeArguments)))
	for _, arg := range t.TypeArguments {
		s.serializeType(arg)
	}
}

package hash

// HashVersion is the first serialized byte. Bump it whenever the
// serialization below changes shape, so old record entries invalidate.
const HashVersion = 0x01

// Node tags. Values are part of the hash; never renumber.
const (
	TagDefinitions byte = 0x10
	TagEnum        byte = 0x11
	TagEnumMember  byte = 0x12
	TagClass       byte = 0x13
	TagField       byte = 0x14
	TagApi         byte = 0x15
	TagMethod      byte = 0x16
	TagConstructor byte = 0x17
	TagApiField    byte = 0x18
	TagParameter   byte = 0x19
	TagType        byte = 0x1a
)

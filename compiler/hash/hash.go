// Package hash computes content hashes of parsed schemas.
//
// The hash is computed over a deterministic serialization of the analyzed
// schema model, not the source bytes. Generated bindings are a pure
// function of the model, so two sources that parse to the same model (for
// example after whitespace or non-doc comment edits) produce the same
// hash, and the generation record treats their outputs as current.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/loom/compiler"
)

// Definitions computes the SHA-256 content hash of an analyzed schema.
func Definitions(defs *compiler.Definitions) [32]byte {
	return sha256.Sum256(Serialize(defs))
}

// Hex returns the schema hash as a lowercase hex string, the form the
// generation record stores.
func Hex(defs *compiler.Definitions) string {
	sum := Definitions(defs)
	return hex.EncodeToString(sum[:])
}

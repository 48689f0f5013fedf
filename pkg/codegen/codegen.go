// Package codegen turns an analyzed definition set into source files for
// one target language. Each language lives in its own emitter; all
// emitters share the channel naming scheme and the codec tag assignment
// so their output interoperates on the wire.
package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/chazu/loom/compiler"
)

// ChannelPrefix roots every generated channel name. Both sides of a
// binding must agree on it byte for byte.
const ChannelPrefix = "dev.flutter.pigeon"

// InstanceManagerAPIName is the pseudo-api segment used by the instance
// lifecycle channels shared by all proxy apis of a package.
const InstanceManagerAPIName = "InstanceManager"

// ChannelName builds the channel for one method of one api.
func ChannelName(packageName, apiName, methodName string) string {
	return fmt.Sprintf("%s.%s.%s.%s", ChannelPrefix, packageName, apiName, methodName)
}

// File is one emitted source file. Name is relative to the language's
// output directory.
type File struct {
	Name    string
	Content []byte
}

// Options carries the per-run settings shared by every emitter.
type Options struct {
	// PackageName overrides the wire package name from the definitions.
	// Channel names always use the wire package name, never this one.
	PackageName string

	// CopyrightHeader is prepended verbatim, line by line, as comments.
	CopyrightHeader []string
}

// Emitter emits the binding for one language.
type Emitter interface {
	Language() string
	Emit(defs *compiler.Definitions, opts Options) ([]File, error)
}

// ---

// UpperFirst uppercases the leading rune: "sendMessage" to "SendMessage".
func UpperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// LowerFirst lowercases the leading rune.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

// SnakeCase converts a camel or pascal case name to snake case for file
// names: "ExampleHostApi" to "example_host_api".
func SnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ConstantCase converts a member name to screaming snake case for Kotlin
// enum entries: "oneHour" to "ONE_HOUR".
func ConstantCase(s string) string {
	return strings.ToUpper(SnakeCase(s))
}

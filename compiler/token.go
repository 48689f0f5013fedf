package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the loom IDL lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, -7
	TokenFloat      // 3.14, -0.5
	TokenString     // "hello"
	TokenDocComment // /// a documentation line
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLAngle    // <
	TokenRAngle    // >
	TokenComma     // ,
	TokenSemicolon // ;
	TokenQuestion  // ?
	TokenEquals    // =

	// Reserved words
	TokenPackage
	TokenEnum
	TokenClass
	TokenApi
	TokenHost
	TokenClient
	TokenProxy
	TokenAsync
	TokenStatic
	TokenAttached
	TokenCallback
	TokenNew
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenInteger:    "INTEGER",
	TokenFloat:      "FLOAT",
	TokenString:     "STRING",
	TokenDocComment: "DOC-COMMENT",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
	TokenLAngle:     "<",
	TokenRAngle:     ">",
	TokenComma:      ",",
	TokenSemicolon:  ";",
	TokenQuestion:   "?",
	TokenEquals:     "=",
	TokenPackage:    "package",
	TokenEnum:       "enum",
	TokenClass:      "class",
	TokenApi:        "api",
	TokenHost:       "host",
	TokenClient:     "client",
	TokenProxy:      "proxy",
	TokenAsync:      "async",
	TokenStatic:     "static",
	TokenAttached:   "attached",
	TokenCallback:   "callback",
	TokenNew:        "new",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
}

// String returns a printable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps reserved identifiers to their token types.
var keywords = map[string]TokenType{
	"package":  TokenPackage,
	"enum":     TokenEnum,
	"class":    TokenClass,
	"api":      TokenApi,
	"host":     TokenHost,
	"client":   TokenClient,
	"proxy":    TokenProxy,
	"async":    TokenAsync,
	"static":   TokenStatic,
	"attached": TokenAttached,
	"callback": TokenCallback,
	"new":      TokenNew,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}

// Token is a single lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// String returns a printable representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for the loom IDL
// ---------------------------------------------------------------------------

// Lexer tokenizes loom IDL source text.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character. line and col always describe the
// character currently in ch.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		l.ch = r
		l.pos = l.readPos
		l.readPos += size
		l.col++
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{
		Offset: l.pos,
		Line:   l.line,
		Column: l.col,
	}
}

// NextToken returns the next token. Doc comments (///) are returned as
// tokens so the parser can attach them to the following declaration;
// ordinary // and /* */ comments are skipped.
func (l *Lexer) NextToken() Token {
	for {
		l.skipWhitespace()

		if l.ch != '/' {
			break
		}
		switch l.peekChar() {
		case '/':
			if doc, ok := l.readLineComment(); ok {
				return doc
			}
		case '*':
			l.skipBlockComment()
		default:
			pos := l.position()
			l.readChar()
			return Token{Type: TokenError, Literal: "/", Pos: pos}
		}
	}

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Literal: "", Pos: pos}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}

	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}

	case l.ch == '{':
		l.readChar()
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}

	case l.ch == '}':
		l.readChar()
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}

	case l.ch == '<':
		l.readChar()
		return Token{Type: TokenLAngle, Literal: "<", Pos: pos}

	case l.ch == '>':
		l.readChar()
		return Token{Type: TokenRAngle, Literal: ">", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case l.ch == ';':
		l.readChar()
		return Token{Type: TokenSemicolon, Literal: ";", Pos: pos}

	case l.ch == '?':
		l.readChar()
		return Token{Type: TokenQuestion, Literal: "?", Pos: pos}

	case l.ch == '=':
		l.readChar()
		return Token{Type: TokenEquals, Literal: "=", Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case l.ch == '-' && isDigit(l.peekChar()):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: string(ch), Pos: pos}
	}
}

// skipWhitespace skips spaces, tabs, and newlines.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
}

// readLineComment consumes a // comment. If it is a /// doc comment, the
// text after the marker is returned as a TokenDocComment.
func (l *Lexer) readLineComment() (Token, bool) {
	pos := l.position()
	l.readChar() // first /
	l.readChar() // second /

	isDoc := l.ch == '/'
	if isDoc {
		l.readChar()
	}

	start := l.pos
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	if !isDoc {
		return Token{}, false
	}
	text := strings.TrimPrefix(l.input[start:l.pos], " ")
	return Token{Type: TokenDocComment, Literal: text, Pos: pos}, true
}

// skipBlockComment consumes a /* */ comment (no nesting).
func (l *Lexer) skipBlockComment() {
	l.readChar() // /
	l.readChar() // *
	for l.ch != 0 {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			return
		}
		l.readChar()
	}
}

// readString reads a double-quoted string literal with \" \\ \n \t escapes.
func (l *Lexer) readString(pos Position) Token {
	var b strings.Builder
	l.readChar() // opening quote

	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case '"':
				b.WriteRune('"')
			case '\\':
				b.WriteRune('\\')
			default:
				b.WriteRune(l.ch)
			}
		} else {
			b.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // closing quote

	return Token{Type: TokenString, Literal: b.String(), Pos: pos}
}

// readNumber reads an integer or floating-point literal.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}

	isFloat := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '-' || next == '+' {
			isFloat = true
			l.readChar()
			if l.ch == '-' || l.ch == '+' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	lit := l.input[start:l.pos]
	if isFloat {
		return Token{Type: TokenFloat, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenInteger, Literal: lit, Pos: pos}
}

// readIdentifier reads an identifier or reserved word.
func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]

	if tt, ok := keywords[lit]; ok {
		return Token{Type: tt, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

package compiler

import "testing"

func TestLexer_Basic(t *testing.T) {
	input := `class Pair { String? a; int b = 5; }`

	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenClass, "class"},
		{TokenIdentifier, "Pair"},
		{TokenLBrace, "{"},
		{TokenIdentifier, "String"},
		{TokenQuestion, "?"},
		{TokenIdentifier, "a"},
		{TokenSemicolon, ";"},
		{TokenIdentifier, "int"},
		{TokenIdentifier, "b"},
		{TokenEquals, "="},
		{TokenInteger, "5"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want.typ {
			t.Fatalf("token %d: got %s, want %s", i, tok.Type, want.typ)
		}
		if tok.Literal != want.lit {
			t.Errorf("token %d: literal %q, want %q", i, tok.Literal, want.lit)
		}
	}
}

func TestLexer_Numbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"-7", TokenInteger},
		{"3.14", TokenFloat},
		{"-0.5", TokenFloat},
		{"1.5e10", TokenFloat},
		{"2e-3", TokenFloat},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextToken()
			if tok.Type != tt.typ {
				t.Errorf("got %s, want %s", tok.Type, tt.typ)
			}
			if tok.Literal != tt.input {
				t.Errorf("literal %q, want %q", tok.Literal, tt.input)
			}
		})
	}
}

func TestLexer_Strings(t *testing.T) {
	tok := NewLexer(`"hello\nworld"`).NextToken()
	if tok.Type != TokenString {
		t.Fatalf("got %s, want STRING", tok.Type)
	}
	if tok.Literal != "hello\nworld" {
		t.Errorf("literal %q, want %q", tok.Literal, "hello\nworld")
	}

	tok = NewLexer(`"unterminated`).NextToken()
	if tok.Type != TokenError {
		t.Errorf("unterminated string: got %s, want ERROR", tok.Type)
	}
}

func TestLexer_Comments(t *testing.T) {
	input := `// skipped
/* also
   skipped */
/// kept doc line
enum`

	l := NewLexer(input)
	tok := l.NextToken()
	if tok.Type != TokenDocComment {
		t.Fatalf("got %s, want DOC-COMMENT", tok.Type)
	}
	if tok.Literal != "kept doc line" {
		t.Errorf("doc literal %q, want %q", tok.Literal, "kept doc line")
	}

	tok = l.NextToken()
	if tok.Type != TokenEnum {
		t.Errorf("got %s, want enum", tok.Type)
	}
}

func TestLexer_Positions(t *testing.T) {
	input := "enum\n  Color"
	l := NewLexer(input)

	tok := l.NextToken()
	if tok.Pos.Line != 1 || tok.Pos.Column != 1 {
		t.Errorf("enum at %d:%d, want 1:1", tok.Pos.Line, tok.Pos.Column)
	}

	tok = l.NextToken()
	if tok.Pos.Line != 2 || tok.Pos.Column != 3 {
		t.Errorf("Color at %d:%d, want 2:3", tok.Pos.Line, tok.Pos.Column)
	}
}

func TestLexer_Keywords(t *testing.T) {
	for word, want := range keywords {
		tok := NewLexer(word).NextToken()
		if tok.Type != want {
			t.Errorf("%s: got %s, want %s", word, tok.Type, want)
		}
	}
}

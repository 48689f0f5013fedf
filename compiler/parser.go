package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for the loom IDL
// ---------------------------------------------------------------------------

// Diagnostic is a parse or analysis error with a source position.
type Diagnostic struct {
	Pos     Position
	Message string
}

// String renders the diagnostic as "line L:C: message".
func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d:%d: %s", d.Pos.Line, d.Pos.Column, d.Message)
}

// Parser parses loom IDL source into a schema model.
type Parser struct {
	lexer       *Lexer
	curToken    Token
	peekToken   Token
	diagnostics []Diagnostic
	pendingDocs []string
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// nextToken advances to the next token, collecting doc comments along the
// way so they can be attached to the following declaration.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	for {
		tok := p.lexer.NextToken()
		if tok.Type == TokenDocComment {
			p.pendingDocs = append(p.pendingDocs, tok.Literal)
			continue
		}
		p.peekToken = tok
		return
	}
}

// takeDocs returns and clears the accumulated doc comment lines.
func (p *Parser) takeDocs() []string {
	docs := p.pendingDocs
	p.pendingDocs = nil
	return docs
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	p.diagnostics = append(p.diagnostics, Diagnostic{
		Pos:     p.curToken.Pos,
		Message: fmt.Sprintf(format, args...),
	})
}

// Diagnostics returns accumulated parse errors.
func (p *Parser) Diagnostics() []Diagnostic {
	return p.diagnostics
}

// synchronize skips tokens until just past a semicolon or closing brace,
// so one malformed declaration does not cascade.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenSemicolon) || p.curTokenIs(TokenRBrace) {
			p.nextToken()
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseFile parses a complete loom IDL file. The returned Definitions is
// unresolved; run the analyzer before handing it to emitters.
func (p *Parser) ParseFile(filename string) *Definitions {
	defs := &Definitions{FileName: filename}

	for !p.curTokenIs(TokenEOF) {
		docs := p.takeDocs()

		switch p.curToken.Type {
		case TokenPackage:
			p.parsePackage(defs)

		case TokenEnum:
			if e := p.parseEnum(docs); e != nil {
				defs.Enums = append(defs.Enums, e)
			}

		case TokenClass:
			if c := p.parseClass(docs); c != nil {
				defs.Classes = append(defs.Classes, c)
			}

		case TokenHost, TokenClient, TokenProxy:
			if a := p.parseApi(docs); a != nil {
				defs.Apis = append(defs.Apis, a)
			}

		default:
			p.errorf("expected declaration, got %s", p.curToken.Type)
			p.synchronize()
		}
	}

	return defs
}

// parsePackage parses `package name;`.
func (p *Parser) parsePackage(defs *Definitions) {
	p.nextToken() // package
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected package name, got %s", p.curToken.Type)
		p.synchronize()
		return
	}
	defs.PackageName = p.curToken.Literal
	p.nextToken()
	p.expect(TokenSemicolon)
}

// parseEnum parses `enum Name { a, b, c }`.
func (p *Parser) parseEnum(docs []string) *Enum {
	pos := p.curToken.Pos
	p.nextToken() // enum

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected enum name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	e := &Enum{Name: p.curToken.Literal, Doc: docs, Pos: pos}
	p.nextToken()

	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		memberDocs := p.takeDocs()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected enum member name, got %s", p.curToken.Type)
			p.synchronize()
			return e
		}
		e.Members = append(e.Members, EnumMember{
			Name: p.curToken.Literal,
			Doc:  memberDocs,
			Pos:  p.curToken.Pos,
		})
		p.nextToken()

		if p.curTokenIs(TokenComma) {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(TokenRBrace)

	if len(e.Members) == 0 {
		p.diagnostics = append(p.diagnostics, Diagnostic{
			Pos:     pos,
			Message: fmt.Sprintf("enum %s has no members", e.Name),
		})
	}
	return e
}

// parseClass parses `class Name { Type field = default; ... }`.
func (p *Parser) parseClass(docs []string) *Class {
	pos := p.curToken.Pos
	p.nextToken() // class

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected class name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	c := &Class{Name: p.curToken.Literal, Doc: docs, Pos: pos}
	p.nextToken()

	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		fieldDocs := p.takeDocs()
		f, ok := p.parseField(fieldDocs)
		if !ok {
			p.synchronize()
			continue
		}
		c.Fields = append(c.Fields, f)
	}
	p.expect(TokenRBrace)

	return c
}

// parseField parses `Type name = default;` within a class body.
func (p *Parser) parseField(docs []string) (Field, bool) {
	typ, ok := p.parseType()
	if !ok {
		return Field{}, false
	}

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected field name, got %s", p.curToken.Type)
		return Field{}, false
	}
	f := Field{
		Name: p.curToken.Literal,
		Type: typ,
		Doc:  docs,
		Pos:  p.curToken.Pos,
	}
	p.nextToken()

	if p.curTokenIs(TokenEquals) {
		p.nextToken()
		lit, ok := p.parseLiteral()
		if !ok {
			return Field{}, false
		}
		f.DefaultValue = lit
	}

	if !p.expect(TokenSemicolon) {
		return Field{}, false
	}
	return f, true
}

// parseLiteral parses a default value literal and returns its source form.
func (p *Parser) parseLiteral() (string, bool) {
	switch p.curToken.Type {
	case TokenInteger, TokenFloat, TokenIdentifier:
		lit := p.curToken.Literal
		p.nextToken()
		return lit, true
	case TokenString:
		lit := fmt.Sprintf("%q", p.curToken.Literal)
		p.nextToken()
		return lit, true
	case TokenTrue, TokenFalse, TokenNull:
		lit := p.curToken.Literal
		p.nextToken()
		return lit, true
	default:
		p.errorf("expected literal, got %s", p.curToken.Type)
		return "", false
	}
}

// parseType parses `Name`, `Name?`, or `Name<Args>?`.
func (p *Parser) parseType() (TypeDeclaration, bool) {
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected type name, got %s", p.curToken.Type)
		return TypeDeclaration{}, false
	}
	t := TypeDeclaration{
		BaseName: p.curToken.Literal,
		Pos:      p.curToken.Pos,
	}
	p.nextToken()

	if p.curTokenIs(TokenLAngle) {
		p.nextToken()
		for {
			arg, ok := p.parseType()
			if !ok {
				return TypeDeclaration{}, false
			}
			t.TypeArguments = append(t.TypeArguments, arg)
			if p.curTokenIs(TokenComma) {
				p.nextToken()
				continue
			}
			break
		}
		if !p.expect(TokenRAngle) {
			return TypeDeclaration{}, false
		}
	}

	if p.curTokenIs(TokenQuestion) {
		t.Nullable = true
		p.nextToken()
	}
	return t, true
}

// ---------------------------------------------------------------------------
// API parsing
// ---------------------------------------------------------------------------

// parseApi parses `host|client|proxy api Name { members }`.
func (p *Parser) parseApi(docs []string) *Api {
	pos := p.curToken.Pos

	var kind ApiKind
	switch p.curToken.Type {
	case TokenHost:
		kind = ApiHost
	case TokenClient:
		kind = ApiClient
	case TokenProxy:
		kind = ApiProxy
	}
	p.nextToken()

	if !p.expect(TokenApi) {
		p.synchronize()
		return nil
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected api name, got %s", p.curToken.Type)
		p.synchronize()
		return nil
	}
	a := &Api{Name: p.curToken.Literal, Kind: kind, Doc: docs, Pos: pos}
	p.nextToken()

	if !p.expect(TokenLBrace) {
		p.synchronize()
		return nil
	}

	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		memberDocs := p.takeDocs()
		if !p.parseApiMember(a, memberDocs) {
			p.synchronize()
		}
	}
	p.expect(TokenRBrace)

	return a
}

// parseApiMember parses one method, constructor, or field declaration
// inside an api body.
func (p *Parser) parseApiMember(a *Api, docs []string) bool {
	isAsync := false
	isStatic := false
	isCallback := false

	// Modifiers may appear in any order before the member.
	for {
		switch p.curToken.Type {
		case TokenAsync:
			isAsync = true
			p.nextToken()
			continue
		case TokenStatic:
			isStatic = true
			p.nextToken()
			continue
		case TokenCallback:
			isCallback = true
			p.nextToken()
			continue
		}
		break
	}

	// Constructor: `new (params);` or `new name(params);`
	if p.curTokenIs(TokenNew) {
		if isAsync || isStatic || isCallback {
			p.errorf("constructors take no modifiers")
		}
		return p.parseConstructor(a, docs)
	}

	// Attached field: `attached Type name;`
	if p.curTokenIs(TokenAttached) {
		p.nextToken()
		return p.parseApiField(a, docs, true, isStatic)
	}

	typ, ok := p.parseType()
	if !ok {
		return false
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected member name, got %s", p.curToken.Type)
		return false
	}
	name := p.curToken.Literal
	namePos := p.curToken.Pos
	p.nextToken()

	// Unattached data field: no parameter list follows.
	if !p.curTokenIs(TokenLParen) {
		if isAsync || isCallback {
			p.errorf("fields take no async or callback modifier")
		}
		a.Fields = append(a.Fields, ApiField{
			Name:   name,
			Type:   typ,
			Static: isStatic,
			Doc:    docs,
			Pos:    namePos,
		})
		return p.expect(TokenSemicolon)
	}

	params, ok := p.parseParameters()
	if !ok {
		return false
	}
	if !p.expect(TokenSemicolon) {
		return false
	}

	a.Methods = append(a.Methods, &Method{
		Name:       name,
		Parameters: params,
		ReturnType: typ,
		IsAsync:    isAsync,
		IsStatic:   isStatic,
		IsCallback: isCallback,
		Doc:        docs,
		Pos:        namePos,
	})
	return true
}

// parseConstructor parses `new (params);` or `new name(params);`.
func (p *Parser) parseConstructor(a *Api, docs []string) bool {
	pos := p.curToken.Pos
	p.nextToken() // new

	name := ""
	if p.curTokenIs(TokenIdentifier) {
		name = p.curToken.Literal
		p.nextToken()
	}

	params, ok := p.parseParameters()
	if !ok {
		return false
	}
	if !p.expect(TokenSemicolon) {
		return false
	}

	a.Constructors = append(a.Constructors, &Constructor{
		Name:       name,
		Parameters: params,
		Doc:        docs,
		Pos:        pos,
	})
	return true
}

// parseApiField parses the tail of an attached field declaration.
func (p *Parser) parseApiField(a *Api, docs []string, attached, static bool) bool {
	typ, ok := p.parseType()
	if !ok {
		return false
	}
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected field name, got %s", p.curToken.Type)
		return false
	}
	a.Fields = append(a.Fields, ApiField{
		Name:     p.curToken.Literal,
		Type:     typ,
		Attached: attached,
		Static:   static,
		Doc:      docs,
		Pos:      p.curToken.Pos,
	})
	p.nextToken()
	return p.expect(TokenSemicolon)
}

// parseParameters parses `(Type name, Type name, ...)`.
func (p *Parser) parseParameters() ([]Parameter, bool) {
	if !p.expect(TokenLParen) {
		return nil, false
	}

	var params []Parameter
	for !p.curTokenIs(TokenRParen) {
		typ, ok := p.parseType()
		if !ok {
			return nil, false
		}
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name, got %s", p.curToken.Type)
			return nil, false
		}
		params = append(params, Parameter{
			Name: p.curToken.Literal,
			Type: typ,
			Pos:  p.curToken.Pos,
		})
		p.nextToken()

		if p.curTokenIs(TokenComma) {
			p.nextToken()
			continue
		}
		break
	}
	if !p.expect(TokenRParen) {
		return nil, false
	}
	return params, true
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// ParseSource parses source without analysis. Used by tooling that wants
// partial results alongside diagnostics.
func ParseSource(filename, source string) (*Definitions, []Diagnostic) {
	p := NewParser(source)
	defs := p.ParseFile(filename)
	return defs, p.Diagnostics()
}

// BuildDiagnostics parses and analyzes source, returning the schema and
// every diagnostic found. The schema is nil only if parsing produced
// nothing usable.
func BuildDiagnostics(filename, source string) (*Definitions, []Diagnostic) {
	defs, diags := ParseSource(filename, source)
	if len(diags) == 0 {
		a := NewAnalyzer(defs)
		diags = append(diags, a.Analyze()...)
	}
	return defs, diags
}

// Build parses and analyzes source. On any parse or analysis error it
// returns a single error joining every diagnostic, prefixed with the file
// name, and no schema: the generator never emits output for an invalid
// schema.
func Build(filename, source string) (*Definitions, error) {
	defs, diags := BuildDiagnostics(filename, source)
	if len(diags) > 0 {
		errs := make([]error, len(diags))
		for i, d := range diags {
			errs[i] = fmt.Errorf("%s:%s", filename, strings.TrimPrefix(d.String(), "line "))
		}
		return nil, errors.Join(errs...)
	}
	return defs, nil
}

package server

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/loom/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "loom-lsp"

// document is one open schema file: its current text plus the schema from
// the most recent parse that produced one. The schema may lag the text when
// the buffer is mid-edit and unparseable.
type document struct {
	text string
	defs *compiler.Definitions
}

// LspServer serves editor features for loom schema files over LSP.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → open document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Loom LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"<", " "},
	}

	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.updateDocument(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.updateDocument(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// updateDocument stores the new text, reparses it, and publishes the
// resulting diagnostics.
func (s *LspServer) updateDocument(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	defs, diags := compiler.BuildDiagnostics(string(uri), text)

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	if !ok {
		doc = &document{}
		s.docs[string(uri)] = doc
	}
	doc.text = text
	if defs != nil {
		doc.defs = defs
	}
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text, diags)
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, pos)
	if prefix == "" {
		return nil, nil
	}

	return s.complete(doc.defs, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok || doc.defs == nil {
		return nil, nil
	}

	word := extractWord(doc.text, pos)
	if word == "" {
		return nil, nil
	}

	return s.hover(doc.defs, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok || doc.defs == nil {
		return nil, nil
	}

	word := extractWord(doc.text, pos)
	if word == "" {
		return nil, nil
	}

	declPos, length := declarationOf(doc.defs, word)
	if length == 0 {
		return nil, nil
	}

	return []protocol.Location{{
		URI:   uri,
		Range: rangeAt(declPos, length),
	}}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	doc, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, pos)
	if word == "" {
		return nil, nil
	}

	var locations []protocol.Location
	lexer := compiler.NewLexer(doc.text)
	for {
		tok := lexer.NextToken()
		if tok.Type == compiler.TokenEOF {
			break
		}
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: rangeAt(tok.Pos, len(word)),
			})
		}
	}

	return locations, nil
}

// --- Schema-backed logic ---

// builtinTypes are completion candidates that exist in every schema.
var builtinTypes = []string{
	"bool", "int", "double", "String", "Uint8List",
	"List", "Map", "Object", "void",
}

func (s *LspServer) complete(defs *compiler.Definitions, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	lowerPrefix := strings.ToLower(prefix)

	if defs != nil {
		for _, e := range defs.Enums {
			if strings.HasPrefix(strings.ToLower(e.Name), lowerPrefix) {
				kind := protocol.CompletionItemKindEnum
				detail := fmt.Sprintf("enum (%d members)", len(e.Members))
				items = append(items, protocol.CompletionItem{
					Label:      e.Name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &e.Name,
				})
			}
		}

		for _, c := range defs.Classes {
			if strings.HasPrefix(strings.ToLower(c.Name), lowerPrefix) {
				kind := protocol.CompletionItemKindClass
				detail := fmt.Sprintf("class (%d fields)", len(c.Fields))
				items = append(items, protocol.CompletionItem{
					Label:      c.Name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &c.Name,
				})
			}
		}

		for _, a := range defs.Apis {
			if strings.HasPrefix(strings.ToLower(a.Name), lowerPrefix) {
				kind := protocol.CompletionItemKindInterface
				detail := a.Kind.String() + " api"
				items = append(items, protocol.CompletionItem{
					Label:      a.Name,
					Kind:       &kind,
					Detail:     &detail,
					InsertText: &a.Name,
				})
			}
		}
	}

	for _, name := range builtinTypes {
		if strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			kind := protocol.CompletionItemKindKeyword
			detail := "built-in type"
			nameCopy := name
			items = append(items, protocol.CompletionItem{
				Label:      name,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &nameCopy,
			})
		}
	}

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func (s *LspServer) hover(defs *compiler.Definitions, word string) *protocol.Hover {
	if e := defs.LookupEnum(word); e != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "**enum %s**\n\n", e.Name)
		writeDoc(&b, e.Doc)
		for i, m := range e.Members {
			fmt.Fprintf(&b, "- `%s` = %d\n", m.Name, i)
		}
		return markdownHover(b.String())
	}

	if c := defs.LookupClass(word); c != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "**class %s**\n\n", c.Name)
		writeDoc(&b, c.Doc)
		for _, f := range c.Fields {
			fmt.Fprintf(&b, "- `%s %s`\n", f.Type.String(), f.Name)
		}
		return markdownHover(b.String())
	}

	if a := defs.LookupApi(word); a != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "**%s api %s**\n\n", a.Kind.String(), a.Name)
		writeDoc(&b, a.Doc)
		for _, m := range a.Methods {
			fmt.Fprintf(&b, "- `%s` → `%s`\n", methodSignature(m), m.ReturnType.String())
		}
		if len(a.Constructors) > 0 || len(a.Fields) > 0 {
			fmt.Fprintf(&b, "\n%d constructors, %d fields", len(a.Constructors), len(a.Fields))
		}
		return markdownHover(b.String())
	}

	return nil
}

func methodSignature(m *compiler.Method) string {
	var b strings.Builder
	if m.IsStatic {
		b.WriteString("static ")
	}
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Parameters {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type.String())
		b.WriteByte(' ')
		b.WriteString(p.Name)
	}
	b.WriteByte(')')
	return b.String()
}

func writeDoc(b *strings.Builder, doc []string) {
	if len(doc) == 0 {
		return
	}
	for _, line := range doc {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

func markdownHover(value string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// declarationOf returns the source position of the named declaration and
// the length of its name, or a zero length when the name is not declared.
func declarationOf(defs *compiler.Definitions, word string) (compiler.Position, int) {
	if e := defs.LookupEnum(word); e != nil {
		return e.Pos, len(e.Name)
	}
	if c := defs.LookupClass(word); c != nil {
		return c.Pos, len(c.Name)
	}
	if a := defs.LookupApi(word); a != nil {
		return a.Pos, len(a.Name)
	}
	return compiler.Position{}, 0
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string, diags []compiler.Diagnostic) {
	diagnostics := make([]protocol.Diagnostic, 0, len(diags))
	severity := protocol.DiagnosticSeverityError
	source := lspName
	for _, d := range diags {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    rangeAt(d.Pos, tokenLengthAt(text, d.Pos)),
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		})
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// rangeAt converts a 1-based source position and a byte length into a
// 0-based LSP range on a single line.
func rangeAt(pos compiler.Position, length int) protocol.Range {
	line := uint32(0)
	if pos.Line > 0 {
		line = uint32(pos.Line - 1)
	}
	col := uint32(0)
	if pos.Column > 0 {
		col = uint32(pos.Column - 1)
	}
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: col},
		End:   protocol.Position{Line: line, Character: col + uint32(length)},
	}
}

// tokenLengthAt measures the identifier starting at pos, so a diagnostic
// underlines the offending name rather than a single character.
func tokenLengthAt(text string, pos compiler.Position) int {
	lines := strings.Split(text, "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return 1
	}
	line := lines[pos.Line-1]
	col := pos.Column - 1
	if col < 0 || col >= len(line) {
		return 1
	}

	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if end == col {
		return 1
	}
	return end - col
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	if start == col {
		return ""
	}

	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 {
		ch := rune(line[start-1])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			start--
		} else {
			break
		}
	}

	// Find end
	end := col
	for end < len(line) {
		ch := rune(line[end])
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			end++
		} else {
			break
		}
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}

package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/krobelus/remacs/lisp"
)

const lspName = "remacs-lsp"

var lspLog = commonlog.GetLogger("remacs.lsp")

// LspServer serves documentation for the installed primitives to editors
// visiting elisp files: completion, hover, and arity diagnostics.
type LspServer struct {
	worker *EvalWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates an LSP server over the worker's runtime.
func NewLSP(worker *EvalWorker) *LspServer {
	s := &LspServer{
		worker:  worker,
		docs:    make(map[string]string),
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

		TextDocumentCompletion:    s.textDocumentCompletion,
		TextDocumentHover:         s.textDocumentHover,
		TextDocumentSignatureHelp: s.textDocumentSignatureHelp,
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
	lspLog.Infof("initializing with %d primitives", s.registry().Len())

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"(", "-"},
	}
	capabilities.SignatureHelpProvider = &protocol.SignatureHelpOptions{
		TriggerCharacters: []string{" "},
	}
	capabilities.HoverProvider = true

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
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(rt *Runtime) any {
		return s.hover(rt, word)
	})
	if err != nil {
		lspLog.Warningf("hover %s: %v", word, err)
		return nil, nil
	}
	if result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

func (s *LspServer) textDocumentSignatureHelp(ctx *glsp.Context, params *protocol.SignatureHelpParams) (*protocol.SignatureHelp, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	head, arg := enclosingCall(text, params.Position)
	if head == "" {
		return nil, nil
	}
	d, err := s.registry().Lookup(head)
	if err != nil {
		return nil, nil
	}
	return signatureHelp(d, max(arg, 0)), nil
}

// --- Registry-backed logic ---

func (s *LspServer) registry() *lisp.Registry {
	return s.worker.Runtime().Registry
}

// complete lists primitives and variables whose names start with prefix.
// The registry is sealed, so this runs on the handler goroutine.
func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	reg := s.registry()

	for _, d := range reg.Descriptors() {
		if !strings.HasPrefix(d.Name(), prefix) {
			continue
		}
		kind := protocol.CompletionItemKindFunction
		detail := d.Usage()
		name := d.Name()
		items = append(items, protocol.CompletionItem{
			Label:         name,
			Kind:          &kind,
			Detail:        &detail,
			Documentation: firstLine(d.Doc()),
			InsertText:    &name,
		})
	}

	for _, v := range reg.Variables() {
		if !strings.HasPrefix(v.Name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindVariable
		detail := "variable"
		name := v.Name
		items = append(items, protocol.CompletionItem{
			Label:         name,
			Kind:          &kind,
			Detail:        &detail,
			Documentation: firstLine(v.Doc),
			InsertText:    &name,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

// hover documents the primitive or variable named word. It reads the
// variable's current value from the heap, so it runs on the worker.
func (s *LspServer) hover(rt *Runtime, word string) *protocol.Hover {
	var b strings.Builder

	if d, err := rt.Registry.Lookup(word); err == nil {
		fmt.Fprintf(&b, "```elisp\n%s\n```\n\n", d.Usage())
		fmt.Fprintf(&b, "%s", arity(d))
		if spec, ok := d.IntSpec(); ok {
			fmt.Fprintf(&b, " · interactive `%q`", spec)
		}
		b.WriteString("\n\n")
		if doc := d.Doc(); doc != "" {
			b.WriteString("---\n\n")
			b.WriteString(doc)
			b.WriteString("\n")
		}
		return markdown(b.String())
	}

	for _, v := range rt.Registry.Variables() {
		if v.Name != word {
			continue
		}
		fmt.Fprintf(&b, "**%s** is a variable", v.Name)
		if w, ok := rt.Heap.SymbolValue(v.Name); ok {
			fmt.Fprintf(&b, "\n\nValue: `%s`", rt.Heap.Format(w))
		}
		b.WriteString("\n\n")
		if v.Doc != "" {
			b.WriteString("---\n\n")
			b.WriteString(v.Doc)
			b.WriteString("\n")
		}
		return markdown(b.String())
	}

	return nil
}

// arity renders a primitive's argument count range.
func arity(d *lisp.Descriptor) string {
	switch {
	case d.MaxArgs() == lisp.Unevalled:
		return "special form"
	case d.MaxArgs() == lisp.Many:
		return fmt.Sprintf("%d or more arguments", d.MinArgs())
	case d.MinArgs() == d.MaxArgs() && d.MinArgs() == 1:
		return "1 argument"
	case d.MinArgs() == d.MaxArgs():
		return fmt.Sprintf("%d arguments", d.MinArgs())
	}
	return fmt.Sprintf("%d to %d arguments", d.MinArgs(), d.MaxArgs())
}

func signatureHelp(d *lisp.Descriptor, arg int) *protocol.SignatureHelp {
	var params []protocol.ParameterInformation
	for _, p := range d.Params() {
		info := protocol.ParameterInformation{Label: p.Name}
		if p.Expected != "" {
			info.Documentation = p.Expected
		}
		params = append(params, info)
	}

	active := protocol.UInteger(arg)
	if n := len(params); n > 0 && arg >= n && d.MaxArgs() == lisp.Many {
		active = protocol.UInteger(n - 1)
	}
	zero := protocol.UInteger(0)
	return &protocol.SignatureHelp{
		Signatures: []protocol.SignatureInformation{{
			Label:         d.Usage(),
			Documentation: firstLine(d.Doc()),
			Parameters:    params,
		}},
		ActiveSignature: &zero,
		ActiveParameter: &active,
	}
}

// --- Diagnostics ---

// diagnose reports calls to known primitives with an impossible number of
// arguments.
func diagnose(reg *lisp.Registry, text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	for _, f := range scanForms(text) {
		d, err := reg.Lookup(f.Head)
		if err != nil || d.MaxArgs() == lisp.Unevalled {
			continue
		}
		if f.Args >= d.MinArgs() && (d.MaxArgs() == lisp.Many || f.Args <= d.MaxArgs()) {
			continue
		}
		severity := protocol.DiagnosticSeverityWarning
		source := lspName
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: protocol.UInteger(f.Line), Character: protocol.UInteger(f.Col)},
				End:   protocol.Position{Line: protocol.UInteger(f.Line), Character: protocol.UInteger(f.Col + len([]rune(f.Head)))},
			},
			Severity: &severity,
			Source:   &source,
			Message:  fmt.Sprintf("%s takes %s, given %d", d.Usage(), arity(d), f.Args),
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnose(s.registry(), text),
	})
}

// --- Text extraction helpers ---

// lineRunes returns the runes of the cursor's line and the cursor column
// clamped to it. Columns are counted in runes.
func lineRunes(text string, pos protocol.Position) ([]rune, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil, 0, false
	}
	line := []rune(lines[pos.Line])
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the symbol fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isSymbolRune(line[start-1]) {
		start--
	}

	return string(line[start:col])
}

// extractWord returns the full symbol under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isSymbolRune(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isSymbolRune(line[end]) {
		end++
	}

	return string(line[start:end])
}

// enclosingCall finds the innermost list around the cursor on its line and
// returns its head and the index of the argument the cursor is in. The
// index is -1 while the cursor is still in the head.
func enclosingCall(text string, pos protocol.Position) (string, int) {
	line, col, ok := lineRunes(text, pos)
	if !ok {
		return "", 0
	}

	depth := 0
	open := -1
	for i := col - 1; i >= 0 && open < 0; i-- {
		switch line[i] {
		case ')', ']':
			depth++
		case '(', '[':
			if depth == 0 {
				open = i
			}
			depth--
		}
	}
	if open < 0 {
		return "", 0
	}

	var head []rune
	items, depth, inAtom := 0, 0, false
	for _, r := range line[open+1 : col] {
		switch {
		case r == '(' || r == '[':
			if depth == 0 {
				items++
				inAtom = false
			}
			depth++
		case r == ')' || r == ']':
			if depth > 0 {
				depth--
			}
		case unicode.IsSpace(r):
			inAtom = false
		case depth == 0:
			if !inAtom {
				items++
				inAtom = true
			}
			if items == 1 {
				head = append(head, r)
			}
		}
	}
	if len(head) == 0 {
		return "", 0
	}
	if unicode.IsSpace(line[col-1]) {
		return string(head), items - 1
	}
	return string(head), items - 2
}

func firstLine(doc string) string {
	first, _, _ := strings.Cut(doc, "\n")
	return first
}

func markdown(s string) *protocol.Hover {
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s,
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

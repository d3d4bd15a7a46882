package server

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"simple", "(string-len", protocol.Position{Line: 0, Character: 11}, "string-len"},
		{"at start", "car", protocol.Position{Line: 0, Character: 3}, "car"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "(foo)\n(bar\n(secure-h", protocol.Position{Line: 2, Character: 9}, "secure-h"},
		{"after space", "(cons 1 multibyte", protocol.Position{Line: 0, Character: 17}, "multibyte"},
		{"punctuation", "(1+ x) (string-prefix-p", protocol.Position{Line: 0, Character: 23}, "string-prefix-p"},
		{"cursor at beginning", "hello", protocol.Position{Line: 0, Character: 0}, ""},
		{"beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
		{"beyond line", "(car", protocol.Position{Line: 0, Character: 40}, "car"},
		{"multibyte columns", "(été-x", protocol.Position{Line: 0, Character: 6}, "été-x"},
	}

	for _, tt := range tests {
		if got := extractPrefix(tt.text, tt.pos); got != tt.want {
			t.Errorf("%s: extractPrefix = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"middle", "(string-length s)", protocol.Position{Line: 0, Character: 4}, "string-length"},
		{"at end", "(string-length s)", protocol.Position{Line: 0, Character: 14}, "string-length"},
		{"second word", "(car-safe x)", protocol.Position{Line: 0, Character: 10}, "x"},
		{"paren", "(car-safe x)", protocol.Position{Line: 0, Character: 0}, ""},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "first\n(secure-hash 'md5 s)", protocol.Position{Line: 1, Character: 3}, "secure-hash"},
		{"star and slash", "(let* ((x 1)) (/ x 2))", protocol.Position{Line: 0, Character: 3}, "let*"},
		{"beyond document", "single line", protocol.Position{Line: 5, Character: 0}, ""},
	}

	for _, tt := range tests {
		if got := extractWord(tt.text, tt.pos); got != tt.want {
			t.Errorf("%s: extractWord = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestEnclosingCall(t *testing.T) {
	tests := []struct {
		text     string
		col      uint32
		wantHead string
		wantArg  int
	}{
		{"(string-prefix-p ", 17, "string-prefix-p", 0},
		{"(string-prefix-p \"a\" ", 21, "string-prefix-p", 1},
		{"(string-prefix-p \"a\"", 20, "string-prefix-p", 0},
		{"(cons (car x) ", 14, "cons", 1},
		{"(cons (car ", 11, "car", 0},
		{"no parens here", 5, "", 0},
		{"(", 1, "", 0},
	}

	for _, tt := range tests {
		head, arg := enclosingCall(tt.text, protocol.Position{Line: 0, Character: tt.col})
		if head != tt.wantHead || arg != tt.wantArg {
			t.Errorf("enclosingCall(%q, %d) = %q, %d, want %q, %d", tt.text, tt.col, head, arg, tt.wantHead, tt.wantArg)
		}
	}
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	if p == nil {
		t.Fatal("boolPtr should not return nil")
	}
	if *p != true {
		t.Errorf("boolPtr(true) = %v, want true", *p)
	}

	p = boolPtr(false)
	if *p != false {
		t.Errorf("boolPtr(false) = %v, want false", *p)
	}
}

// ---------------------------------------------------------------------------
// Registry-backed logic
// ---------------------------------------------------------------------------

func TestLSP_Complete(t *testing.T) {
	lsp := newTestLSP()

	items := lsp.complete("string-")
	if len(items) == 0 {
		t.Fatal("complete(string-) returned no items")
	}

	found := map[string]protocol.CompletionItem{}
	for i, item := range items {
		if !strings.HasPrefix(item.Label, "string-") {
			t.Errorf("item %q does not match the prefix", item.Label)
		}
		if i > 0 && items[i-1].Label > item.Label {
			t.Errorf("items not sorted: %q before %q", items[i-1].Label, item.Label)
		}
		found[item.Label] = item
	}

	item, ok := found["string-length"]
	if !ok {
		t.Fatal("string-length not offered")
	}
	if item.Detail == nil || *item.Detail != "(string-length STRING)" {
		t.Errorf("string-length detail = %v", item.Detail)
	}
	if item.Kind == nil || *item.Kind != protocol.CompletionItemKindFunction {
		t.Error("string-length should complete as a function")
	}
	if doc, _ := item.Documentation.(string); doc != "Return the number of characters in STRING." {
		t.Errorf("string-length documentation = %q", doc)
	}
}

func TestLSP_CompleteVariables(t *testing.T) {
	items := newTestLSP().complete("remacs-")
	var labels []string
	for _, item := range items {
		labels = append(labels, item.Label)
		if *item.Kind != protocol.CompletionItemKindVariable {
			t.Errorf("%s should complete as a variable", item.Label)
		}
	}
	if strings.Join(labels, " ") != "remacs-libraries remacs-version" {
		t.Errorf("complete(remacs-) = %v", labels)
	}
}

func TestLSP_CompleteLimit(t *testing.T) {
	// Every primitive name contains at least one letter from a-z; the
	// empty prefix is never sent, so test a broad one.
	items := newTestLSP().complete("s")
	if len(items) > 100 {
		t.Errorf("complete returned %d items, want at most 100", len(items))
	}
}

func TestLSP_Hover(t *testing.T) {
	lsp := newTestLSP()

	tests := []struct {
		word string
		want []string
	}{
		{"string-prefix-p", []string{
			"```elisp\n(string-prefix-p PREFIX STR &optional IGNORE-CASE)\n```",
			"2 to 3 arguments",
			"Return non-nil if PREFIX is a prefix of STR.",
		}},
		{"string", []string{"0 or more arguments", "(string &rest CHARACTERS)"}},
		{"string-length", []string{"1 argument"}},
		{"remacs-libraries", []string{"**remacs-libraries** is a variable", "Value: `(core text hash encoding compress)`"}},
	}

	for _, tt := range tests {
		result, err := testWorker.Do(func(rt *Runtime) any {
			return lsp.hover(rt, tt.word)
		})
		if err != nil {
			t.Fatalf("hover(%s) error: %v", tt.word, err)
		}
		hover := result.(*protocol.Hover)
		if hover == nil {
			t.Errorf("hover(%s) = nil", tt.word)
			continue
		}
		content := hover.Contents.(protocol.MarkupContent)
		if content.Kind != protocol.MarkupKindMarkdown {
			t.Errorf("hover(%s) kind = %v, want markdown", tt.word, content.Kind)
		}
		for _, want := range tt.want {
			if !strings.Contains(content.Value, want) {
				t.Errorf("hover(%s) lacks %q:\n%s", tt.word, want, content.Value)
			}
		}
	}

	result, _ := testWorker.Do(func(rt *Runtime) any {
		return lsp.hover(rt, "no-such-thing")
	})
	if result.(*protocol.Hover) != nil {
		t.Error("hover on an unknown word should return nil")
	}
}

func TestLSP_HoverThroughHandler(t *testing.T) {
	lsp := newTestLSP()
	uri := protocol.DocumentUri("file:///tmp/a.el")
	lsp.docs[string(uri)] = "(md5 \"abc\")"

	hover, err := lsp.textDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: 0, Character: 2},
		},
	})
	if err != nil || hover == nil {
		t.Fatalf("textDocumentHover = %v, %v", hover, err)
	}
	if v := hover.Contents.(protocol.MarkupContent).Value; !strings.Contains(v, "(md5 OBJECT") {
		t.Errorf("hover content = %q", v)
	}

	hover, err = lsp.textDocumentHover(nil, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///tmp/unknown.el"},
		},
	})
	if err != nil || hover != nil {
		t.Errorf("hover on an unopened document = %v, %v", hover, err)
	}
}

func TestLSP_SignatureHelp(t *testing.T) {
	lsp := newTestLSP()
	uri := protocol.DocumentUri("file:///tmp/b.el")
	lsp.docs[string(uri)] = "(string-pad \"x\" 4 "

	help, err := lsp.textDocumentSignatureHelp(nil, &protocol.SignatureHelpParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: 0, Character: 18},
		},
	})
	if err != nil || help == nil {
		t.Fatalf("textDocumentSignatureHelp = %v, %v", help, err)
	}
	sig := help.Signatures[0]
	if sig.Label != "(string-pad STR LENGTH &optional PADDING START)" {
		t.Errorf("signature label = %q", sig.Label)
	}
	if len(sig.Parameters) != 4 {
		t.Fatalf("got %d parameters, want 4", len(sig.Parameters))
	}
	if *help.ActiveParameter != 2 {
		t.Errorf("active parameter = %d, want 2", *help.ActiveParameter)
	}
	for _, p := range sig.Parameters {
		if !strings.Contains(sig.Label, p.Label.(string)) {
			t.Errorf("parameter label %v is not part of the signature", p.Label)
		}
	}
}

func TestLSP_SignatureHelpRest(t *testing.T) {
	d, err := testRuntime.Registry.Lookup("string")
	if err != nil {
		t.Fatal(err)
	}
	help := signatureHelp(d, 5)
	if *help.ActiveParameter != 0 {
		t.Errorf("active parameter past the end of a &rest list = %d, want 0", *help.ActiveParameter)
	}
}

func TestDiagnose(t *testing.T) {
	reg := testRuntime.Registry
	text := strings.Join([]string{
		`(string-length "a" "b")`,
		`(cons 1)`,
		`(let ((string-length 1)) (car-safe))`,
		`'(cons)`,
		`(string ?a ?b ?c)`,
		`(defun f (cons) (identity cons))`,
		`(unknown-function)`,
	}, "\n")

	diags := diagnose(reg, text)
	want := []struct {
		line, col uint32
		prefix    string
	}{
		{0, 1, "(string-length STRING) takes 1 argument, given 2"},
		{1, 1, "(cons CAR CDR) takes 2 arguments, given 1"},
		{2, 26, "(car-safe OBJECT) takes 1 argument, given 0"},
	}
	if len(diags) != len(want) {
		for _, d := range diags {
			t.Logf("%d:%d %s", d.Range.Start.Line, d.Range.Start.Character, d.Message)
		}
		t.Fatalf("got %d diagnostics, want %d", len(diags), len(want))
	}
	for i, w := range want {
		d := diags[i]
		if d.Range.Start.Line != w.line || d.Range.Start.Character != w.col {
			t.Errorf("diagnostic %d at %d:%d, want %d:%d", i, d.Range.Start.Line, d.Range.Start.Character, w.line, w.col)
		}
		if d.Message != w.prefix {
			t.Errorf("diagnostic %d = %q, want %q", i, d.Message, w.prefix)
		}
		if *d.Severity != protocol.DiagnosticSeverityWarning {
			t.Errorf("diagnostic %d severity = %v", i, *d.Severity)
		}
	}
}

func TestLSP_PublishDiagnostics(t *testing.T) {
	lsp := newTestLSP()

	var (
		mu     sync.Mutex
		method string
		got    protocol.PublishDiagnosticsParams
	)
	done := make(chan struct{}, 1)
	ctx := &glsp.Context{Notify: func(m string, params any) {
		mu.Lock()
		method, got = m, params.(protocol.PublishDiagnosticsParams)
		mu.Unlock()
		done <- struct{}{}
	}}

	uri := protocol.DocumentUri("file:///tmp/c.el")
	err := lsp.textDocumentDidOpen(ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "emacs-lisp", Text: "(md5)"},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no diagnostics published")
	}
	mu.Lock()
	defer mu.Unlock()
	if method != protocol.ServerTextDocumentPublishDiagnostics {
		t.Errorf("notified %s", method)
	}
	if got.URI != uri || len(got.Diagnostics) != 1 {
		t.Errorf("published %+v", got)
	}
	if _, ok := lsp.document(uri); !ok {
		t.Error("opened document not tracked")
	}
}

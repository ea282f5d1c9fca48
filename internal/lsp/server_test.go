package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterSrc = `package demo

type counter struct{ n int }

func (c *counter) add(d int) int {
	c.n += d
	return c.n
}
`

const doubleSrc = `package demo

func double(a int) int {
	b := a * 2
	return b + 1
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startServer writes a one-file module and runs initialize and initialized
// against it.
func startServer(t *testing.T, src string) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/demo\n\ngo 1.25\n"), 0o644))
	path := filepath.Join(root, "demo.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	s := NewServer(discardLogger(), nil)
	resp := request(t, s, "initialize", InitializeParams{RootURI: pathToURI(root)})
	require.Nil(t, resp.Error)
	notify(t, s, "initialized", struct{}{})
	require.True(t, s.initialized)
	return s, path
}

var nextID = 0

func request(t *testing.T, s *Server, method string, params any) *Message {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	nextID++
	resp, err := s.handleMessage(context.Background(), &Message{JSONRPC: "2.0", ID: nextID, Method: method, Params: raw})
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func notify(t *testing.T, s *Server, method string, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	resp, err := s.handleMessage(context.Background(), &Message{JSONRPC: "2.0", Method: method, Params: raw})
	require.NoError(t, err)
	require.Nil(t, resp)
}

func codeActions(t *testing.T, s *Server, path string, r Range, only ...string) []CodeAction {
	t.Helper()
	resp := request(t, s, "textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Range:        r,
		Context:      CodeActionContext{Only: only},
	})
	require.Nil(t, resp.Error)
	actions, ok := resp.Result.([]CodeAction)
	require.True(t, ok, "unexpected result %T", resp.Result)
	return actions
}

func kinds(actions []CodeAction) []string {
	var out []string
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

// apply returns src with the edits of action for path applied.
func apply(t *testing.T, src string, action CodeAction, path string) string {
	t.Helper()
	require.NotNil(t, action.Edit)
	edits := action.Edit.Changes[pathToURI(path)]
	require.Len(t, edits, 1)
	start := offsetOf([]byte(src), edits[0].Range.Start)
	end := offsetOf([]byte(src), edits[0].Range.End)
	return src[:start] + edits[0].NewText + src[end:]
}

func lineRange(line, from, to int) Range {
	return Range{Start: Position{Line: line, Character: from}, End: Position{Line: line, Character: to}}
}

func TestServer_Initialize(t *testing.T) {
	s := NewServer(discardLogger(), nil)
	resp := request(t, s, "initialize", InitializeParams{RootURI: "file:///test/workspace"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "goextract-lsp", result.ServerInfo.Name)
	assert.Equal(t, []string{KindExtractFunction, KindExtractMethod, KindExtractLocalFunction},
		result.Capabilities.CodeActionProvider.CodeActionKinds)
	assert.Equal(t, TextDocumentSyncKindFull, result.Capabilities.TextDocumentSync.Change)
	assert.Equal(t, filepath.FromSlash("/test/workspace"), s.rootPath)
}

func TestServer_CodeActionsInMethod(t *testing.T) {
	s, path := startServer(t, counterSrc)

	actions := codeActions(t, s, path, lineRange(5, 1, 9))
	require.NotEmpty(t, actions)
	assert.Equal(t, KindExtractMethod, actions[0].Kind)
	assert.True(t, actions[0].IsPreferred)
	assert.Equal(t, "Extract method newMethod", actions[0].Title)

	out := apply(t, counterSrc, actions[0], path)
	assert.Contains(t, out, "\tc.newMethod(d)\n")
	assert.Contains(t, out, "func (c *counter) newMethod(d int) {\n\tc.n += d\n}")

	// nothing is written until the client applies the edit
	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, counterSrc, string(onDisk))
}

func TestServer_CodeActionsInFunction(t *testing.T) {
	s, path := startServer(t, doubleSrc)

	actions := codeActions(t, s, path, lineRange(3, 1, 11))
	got := kinds(actions)
	assert.NotContains(t, got, KindExtractMethod)
	require.Contains(t, got, KindExtractFunction)
	assert.Equal(t, KindExtractFunction, actions[0].Kind)

	out := apply(t, doubleSrc, actions[0], path)
	assert.Contains(t, out, "\tb := newFunction(a)\n")
	assert.Contains(t, out, "func newFunction(a int) int {\n\tb := a * 2\n\treturn b\n}")
}

func TestServer_CodeActionsOnlyFilter(t *testing.T) {
	s, path := startServer(t, doubleSrc)

	actions := codeActions(t, s, path, lineRange(3, 1, 11), KindExtractLocalFunction)
	require.Len(t, actions, 1)
	assert.Equal(t, KindExtractLocalFunction, actions[0].Kind)

	assert.Empty(t, codeActions(t, s, path, lineRange(3, 1, 11), "source.organizeImports"))
}

func TestServer_CodeActionsRejectedSelection(t *testing.T) {
	s, path := startServer(t, doubleSrc)
	// "func double" is not inside a body
	assert.Empty(t, codeActions(t, s, path, lineRange(2, 0, 11)))
}

func TestServer_CodeActionsBeforeInitialized(t *testing.T) {
	s := NewServer(discardLogger(), nil)
	assert.Empty(t, codeActions(t, s, "/nowhere/demo.go", lineRange(0, 0, 1)))
}

func TestServer_DidChangeUsesEditorContent(t *testing.T) {
	s, path := startServer(t, doubleSrc)

	edited := `package demo

func double(a int) int {
	b := a * 3
	return b + 1
}
`
	notify(t, s, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: pathToURI(path), Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: edited}},
	})

	actions := codeActions(t, s, path, lineRange(3, 1, 11), KindExtractFunction)
	require.Len(t, actions, 1)
	out := apply(t, edited, actions[0], path)
	assert.Contains(t, out, "\tb := a * 3\n\treturn b\n")
}

func TestServer_DidChangeIncremental(t *testing.T) {
	s, path := startServer(t, doubleSrc)

	notify(t, s, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{URI: pathToURI(path), Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{
			Range: &Range{Start: Position{Line: 3, Character: 10}, End: Position{Line: 3, Character: 11}},
			Text:  "4",
		}},
	})

	content, err := s.documentContent(pathToURI(path))
	require.NoError(t, err)
	assert.Contains(t, string(content), "\tb := a * 4\n")
}

func TestServer_DidChangeKeepsLastParsableContent(t *testing.T) {
	s, path := startServer(t, doubleSrc)

	notify(t, s, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: pathToURI(path), Version: 2},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: "package demo\n\nfunc double(\n"}},
	})

	content, err := s.documentContent(pathToURI(path))
	require.NoError(t, err)
	assert.Equal(t, doubleSrc, string(content))
}

func TestServer_UnknownRequest(t *testing.T) {
	s := NewServer(discardLogger(), nil)
	resp := request(t, s, "textDocument/hover", struct{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestServer_ShutdownRejectsCodeActions(t *testing.T) {
	s, path := startServer(t, doubleSrc)
	resp := request(t, s, "shutdown", nil)
	assert.Nil(t, resp.Error)

	resp = request(t, s, "textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: pathToURI(path)},
		Range:        lineRange(3, 1, 11),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func frame(t *testing.T, msg Message) string {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestServer_ServeLoop(t *testing.T) {
	var in bytes.Buffer
	in.WriteString(frame(t, Message{JSONRPC: "2.0", ID: 1, Method: "initialize", Params: json.RawMessage(`{"rootUri":""}`)}))
	in.WriteString(frame(t, Message{JSONRPC: "2.0", Method: "$/cancelRequest", Params: json.RawMessage(`{"id":1}`)}))
	in.WriteString(frame(t, Message{JSONRPC: "2.0", ID: 2, Method: "shutdown"}))
	in.WriteString(frame(t, Message{JSONRPC: "2.0", Method: "exit"}))
	in.WriteString(frame(t, Message{JSONRPC: "2.0", ID: 3, Method: "shutdown"}))

	var out bytes.Buffer
	s := NewServer(discardLogger(), nil)
	require.NoError(t, s.Serve(context.Background(), &in, &out))

	conn := NewConnection(&out, io.Discard, discardLogger())
	first, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.ID)
	assert.Nil(t, first.Error)

	second, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.ID)

	_, err = conn.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConnection_RejectsMissingLength(t *testing.T) {
	conn := NewConnection(bytes.NewBufferString("Content-Type: x\r\n\r\n{}"), io.Discard, discardLogger())
	_, err := conn.ReadMessage()
	assert.ErrorContains(t, err, "missing Content-Length")
}

func TestPositionConversion(t *testing.T) {
	src := []byte("a := \"é😀\"\nb\n")
	// é is one UTF-16 unit and two bytes; 😀 is two units and four bytes
	assert.Equal(t, 6, offsetOf(src, Position{Line: 0, Character: 6}))
	assert.Equal(t, 8, offsetOf(src, Position{Line: 0, Character: 7}))
	assert.Equal(t, 12, offsetOf(src, Position{Line: 0, Character: 9}))
	assert.Equal(t, 13, offsetOf(src, Position{Line: 0, Character: 100}))
	assert.Equal(t, len(src), offsetOf(src, Position{Line: 9, Character: 0}))

	assert.Equal(t, Position{Line: 0, Character: 9}, positionOf(src, 12))
	assert.Equal(t, Position{Line: 1, Character: 1}, positionOf(src, 15))

	sel := sourceRange(src, Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 1}})
	assert.Equal(t, 2, sel.StartLine)
	assert.Equal(t, 1, sel.StartCol)
	assert.Equal(t, 2, sel.EndCol)
}

func TestTextEdit(t *testing.T) {
	te, changed := textEdit([]byte("a\nb\nc\n"), []byte("a\nx\ny\nc\n"))
	require.True(t, changed)
	assert.Equal(t, Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 1}}, te.Range)
	assert.Equal(t, "x\ny", te.NewText)

	_, changed = textEdit([]byte("same"), []byte("same"))
	assert.False(t, changed)
}

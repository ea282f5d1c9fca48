package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// extractKinds pairs each code action kind with the extraction mode it
// forces, in the order the actions are listed.
var extractKinds = []struct {
	kind  string
	mode  types.ExtractMode
	title string
}{
	{KindExtractMethod, types.ModeMethod, "Extract method"},
	{KindExtractFunction, types.ModeFunction, "Extract function"},
	{KindExtractLocalFunction, types.ModeLocalFunction, "Extract local function"},
}

// handleTextDocumentCodeAction offers one action per extraction mode that
// succeeds on the selection. Modes that reject it are left out.
func (s *Server) handleTextDocumentCodeAction(ctx context.Context, message *Message) (*Message, error) {
	var params CodeActionParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		return s.errorResponse(message.ID, CodeInvalidParams, "invalid params: "+err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return s.errorResponse(message.ID, CodeInvalidRequest, "server is shutting down"), nil
	}
	if !s.initialized || s.workspace == nil {
		return s.successResponse(message.ID, []CodeAction{}), nil
	}

	path := uriToPath(params.TextDocument.URI)
	file, _, ok := s.workspace.FindFile(path)
	if !ok {
		return s.successResponse(message.ID, []CodeAction{}), nil
	}
	sel := sourceRange(file.OriginalContent, params.Range)

	actions := []CodeAction{}
	for _, k := range extractKinds {
		if !wanted(k.kind, params.Context.Only) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		action, err := s.extractAction(ctx, file.Path, sel, k.mode)
		if err != nil {
			s.logger.Debug("extraction not offered", "kind", k.kind, "range", sel.String(), "err", err)
			continue
		}
		action.Kind = k.kind
		action.Title = fmt.Sprintf("%s %s", k.title, action.Title)
		action.IsPreferred = len(actions) == 0
		actions = append(actions, action)
	}
	s.logger.Debug("code actions", "path", file.Path, "range", sel.String(), "actions", len(actions))
	return s.successResponse(message.ID, actions), nil
}

// extractAction plans one extraction and renders it as a WorkspaceEdit.
// Its title is the name of the new function.
func (s *Server) extractAction(ctx context.Context, path string, sel types.SourceRange, mode types.ExtractMode) (CodeAction, error) {
	plan, err := s.engine.ExtractMethod(ctx, s.workspace, types.ExtractMethodRequest{
		SourceFile: path,
		Range:      sel,
		Mode:       mode,
	})
	if err != nil {
		return CodeAction{}, err
	}
	rendered, err := s.engine.RenderPlan(s.workspace, plan)
	if err != nil {
		return CodeAction{}, err
	}

	edit := &WorkspaceEdit{Changes: make(map[string][]TextEdit, len(rendered))}
	for file, after := range rendered {
		var before []byte
		if f, _, ok := s.workspace.FindFile(file); ok {
			before = f.OriginalContent
		}
		if te, changed := textEdit(before, after); changed {
			edit.Changes[pathToURI(file)] = []TextEdit{te}
		}
	}

	name := "newFunction"
	if len(plan.Operations) > 0 {
		if op, ok := plan.Operations[0].(*refactor.ExtractMethodOperation); ok && op.Result() != nil {
			name = op.Result().Name
		}
	}
	return CodeAction{Title: name, Edit: edit}, nil
}

// wanted reports whether kind passes the client's "only" filter, which
// lists kinds or their dotted prefixes.
func wanted(kind string, only []string) bool {
	if len(only) == 0 {
		return true
	}
	return slices.ContainsFunc(only, func(o string) bool {
		return kind == o || strings.HasPrefix(kind, o+".")
	})
}

// sourceRange converts an LSP range into 1-based byte columns.
func sourceRange(src []byte, r Range) types.SourceRange {
	start := positionToLineCol(src, r.Start)
	end := positionToLineCol(src, r.End)
	return types.SourceRange{
		StartLine: start.Line + 1,
		StartCol:  start.Character + 1,
		EndLine:   end.Line + 1,
		EndCol:    end.Character + 1,
	}
}

// positionToLineCol clamps p into src and converts its character from
// UTF-16 code units into a byte column.
func positionToLineCol(src []byte, p Position) Position {
	off := offsetOf(src, p)
	line := strings.Count(string(src[:off]), "\n")
	lineStart := strings.LastIndexByte(string(src[:off]), '\n') + 1
	return Position{Line: line, Character: off - lineStart}
}

// offsetOf returns the byte offset of p in src. Positions past the end of
// a line or of the file are clamped.
func offsetOf(src []byte, p Position) int {
	off := 0
	for line := 0; line < p.Line; line++ {
		i := strings.IndexByte(string(src[off:]), '\n')
		if i < 0 {
			return len(src)
		}
		off += i + 1
	}
	for units := 0; units < p.Character && off < len(src) && src[off] != '\n'; {
		r, size := utf8.DecodeRune(src[off:])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > p.Character {
			break
		}
		units += n
		off += size
	}
	return off
}

// positionOf converts a byte offset into an LSP position.
func positionOf(src []byte, off int) Position {
	off = min(max(off, 0), len(src))
	lineStart := strings.LastIndexByte(string(src[:off]), '\n') + 1
	chars := 0
	for i := lineStart; i < off; {
		r, size := utf8.DecodeRune(src[i:])
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		chars += n
		i += size
	}
	return Position{Line: strings.Count(string(src[:lineStart]), "\n"), Character: chars}
}

// textEdit describes the rewrite of before into after as one edit over
// the span between their common prefix and suffix.
func textEdit(before, after []byte) (TextEdit, bool) {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	// keep multi-byte runes whole
	for prefix > 0 && prefix < len(before) && !utf8.RuneStart(before[prefix]) {
		prefix--
	}
	for suffix > 0 && !utf8.RuneStart(before[len(before)-suffix]) {
		suffix--
	}
	if prefix == len(before) && prefix == len(after) {
		return TextEdit{}, false
	}
	return TextEdit{
		Range: Range{
			Start: positionOf(before, prefix),
			End:   positionOf(before, len(before)-suffix),
		},
		NewText: string(after[prefix : len(after)-suffix]),
	}, true
}

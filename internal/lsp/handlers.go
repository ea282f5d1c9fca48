package lsp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

func (s *Server) handleTextDocumentDidOpen(message *Message) error {
	var params DidOpenTextDocumentParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		return err
	}
	return s.updateDocument(params.TextDocument.URI, []byte(params.TextDocument.Text))
}

// handleTextDocumentDidChange applies the content changes in order; a
// change without a range replaces the whole document.
func (s *Server) handleTextDocumentDidChange(message *Message) error {
	var params DidChangeTextDocumentParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		return err
	}
	if len(params.ContentChanges) == 0 {
		return nil
	}

	content, err := s.documentContent(params.TextDocument.URI)
	if err != nil {
		return err
	}
	for _, change := range params.ContentChanges {
		if change.Range == nil {
			content = []byte(change.Text)
			continue
		}
		start := offsetOf(content, change.Range.Start)
		end := max(offsetOf(content, change.Range.End), start)
		next := make([]byte, 0, len(content)-(end-start)+len(change.Text))
		next = append(next, content[:start]...)
		next = append(next, change.Text...)
		next = append(next, content[end:]...)
		content = next
	}
	return s.updateDocument(params.TextDocument.URI, content)
}

func (s *Server) handleTextDocumentDidSave(message *Message) error {
	var params DidSaveTextDocumentParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		return err
	}
	if params.Text == nil {
		return nil
	}
	return s.updateDocument(params.TextDocument.URI, []byte(*params.Text))
}

// documentContent returns the workspace copy of a document.
func (s *Server) documentContent(uri string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace == nil {
		return nil, fmt.Errorf("workspace not loaded")
	}
	file, _, ok := s.workspace.FindFile(uriToPath(uri))
	if !ok {
		return nil, fmt.Errorf("document %s is not part of the workspace", uri)
	}
	return file.OriginalContent, nil
}

// updateDocument stores editor content in the workspace. Files outside the
// workspace root and non-Go files are ignored.
func (s *Server) updateDocument(uri string, content []byte) error {
	path := uriToPath(uri)
	if !strings.HasSuffix(path, ".go") {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspace == nil {
		return nil
	}
	rel, err := filepath.Rel(s.workspace.RootPath, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		s.logger.Debug("ignoring document outside the workspace", "path", path)
		return nil
	}
	if file, _, ok := s.workspace.FindFile(path); ok && string(file.OriginalContent) == string(content) {
		return nil
	}
	if _, err := s.engine.UpdateFile(s.workspace, path, content); err != nil {
		// the previous content stays in use until the document parses again
		s.logger.Debug("document does not parse", "path", path, "err", err)
		return nil
	}
	s.logger.Debug("document updated", "path", path, "bytes", len(content))
	return nil
}

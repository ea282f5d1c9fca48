package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/mamaar/goextract/internal/cli"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// Code action kinds offered for a selection.
const (
	KindExtractFunction      = "refactor.extract.function"
	KindExtractMethod        = "refactor.extract.method"
	KindExtractLocalFunction = "refactor.extract.localFunction"
)

const serverName = "goextract-lsp"

// errExit ends the message loop after an exit notification.
var errExit = errors.New("exit requested")

// Server answers code action requests with extract-method edits for the
// workspace rooted at the client's root URI.
type Server struct {
	mu           sync.Mutex
	logger       *slog.Logger
	engine       *refactor.DefaultEngine
	workspace    *types.Workspace
	rootPath     string
	initialized  bool
	shutdown     bool
	capabilities ServerCapabilities
}

// NewServer creates a server whose extractions use config; nil selects the
// engine defaults.
func NewServer(logger *slog.Logger, config *refactor.EngineConfig) *Server {
	return &Server{
		logger: logger,
		engine: refactor.CreateEngineWithConfig(logger, config),
		capabilities: ServerCapabilities{
			CodeActionProvider: &CodeActionOptions{
				CodeActionKinds: []string{
					KindExtractFunction,
					KindExtractMethod,
					KindExtractLocalFunction,
				},
			},
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
				Save:      &SaveOptions{IncludeText: true},
			},
		},
	}
}

// Start serves stdio when port is 0 and TCP otherwise.
func (s *Server) Start(ctx context.Context, port int) error {
	if port == 0 {
		return s.ServeStdio(ctx)
	}
	return s.ServeTCP(ctx, port)
}

// ServeStdio serves the LSP over stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("starting LSP server", "transport", "stdio")
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// ServeTCP accepts connections on port until ctx is cancelled.
func (s *Server) ServeTCP(ctx context.Context, port int) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", port, err)
	}
	context.AfterFunc(ctx, func() { _ = listener.Close() })
	s.logger.Info("starting LSP server", "transport", "tcp", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("failed to accept connection", "err", err)
			continue
		}
		go func() {
			defer conn.Close()
			if err := s.Serve(ctx, conn, conn); err != nil {
				s.logger.Error("connection failed", "remote", conn.RemoteAddr().String(), "err", err)
			}
		}()
	}
}

// Serve runs the message loop over r and w until the peer closes the
// stream, sends exit, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	connection := NewConnection(r, w, s.logger)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		message, err := connection.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("failed to read message: %w", err)
		}

		response, err := s.handleMessage(ctx, message)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			s.logger.Warn("failed to handle message", "method", message.Method, "err", err)
			if message.ID == nil {
				continue
			}
			response = s.errorResponse(message.ID, CodeInternalError, err.Error())
		}
		if response == nil {
			continue
		}
		if err := connection.WriteMessage(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
}

// handleMessage dispatches a message. Notifications return a nil message.
func (s *Server) handleMessage(ctx context.Context, message *Message) (*Message, error) {
	switch message.Method {
	case "initialize":
		return s.handleInitialize(message)
	case "initialized":
		return nil, s.handleInitialized(ctx)
	case "shutdown":
		return s.handleShutdown(message)
	case "exit":
		return nil, errExit
	case "textDocument/didOpen":
		return nil, s.handleTextDocumentDidOpen(message)
	case "textDocument/didChange":
		return nil, s.handleTextDocumentDidChange(message)
	case "textDocument/didSave":
		return nil, s.handleTextDocumentDidSave(message)
	case "textDocument/didClose":
		return nil, nil
	case "textDocument/codeAction":
		return s.handleTextDocumentCodeAction(ctx, message)
	}
	if message.ID == nil || strings.HasPrefix(message.Method, "$/") {
		return nil, nil
	}
	s.logger.Debug("unhandled method", "method", message.Method)
	return s.errorResponse(message.ID, CodeMethodNotFound, "method not found: "+message.Method), nil
}

func (s *Server) handleInitialize(message *Message) (*Message, error) {
	var params InitializeParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		return s.errorResponse(message.ID, CodeInvalidParams, "invalid params: "+err.Error()), nil
	}

	root := params.RootURI
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = params.WorkspaceFolders[0].URI
	}
	path := params.RootPath
	if root != "" {
		path = uriToPath(root)
	}

	s.mu.Lock()
	s.rootPath = path
	s.mu.Unlock()
	s.logger.Info("initialize", "root", path)

	return s.successResponse(message.ID, InitializeResult{
		Capabilities: s.capabilities,
		ServerInfo:   &ServerInfo{Name: serverName, Version: cli.Version},
	}), nil
}

// handleInitialized loads the workspace. A load failure leaves the server
// running without code actions.
func (s *Server) handleInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootPath == "" {
		s.logger.Warn("no root path set, skipping workspace load")
		return nil
	}
	ws, err := s.engine.LoadWorkspace(ctx, s.rootPath)
	if err != nil {
		s.logger.Error("failed to load workspace", "root", s.rootPath, "err", err)
		return nil
	}
	s.workspace = ws
	s.initialized = true
	s.logger.Info("workspace loaded", "root", ws.RootPath, "packages", len(ws.Packages))
	return nil
}

func (s *Server) handleShutdown(message *Message) (*Message, error) {
	s.mu.Lock()
	s.shutdown = true
	s.initialized = false
	s.workspace = nil
	s.mu.Unlock()
	return s.successResponse(message.ID, nil), nil
}

func (s *Server) successResponse(id any, result any) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) errorResponse(id any, code int, message string) *Message {
	return &Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message},
	}
}

// uriToPath converts a file URI into a local path. Anything that is not a
// file URI is returned unchanged.
func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	path := u.Path
	// file:///C:/x parses with a leading slash before the drive letter
	if runtime.GOOS == "windows" && len(path) > 2 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

func pathToURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return (&url.URL{Scheme: "file", Path: path}).String()
}

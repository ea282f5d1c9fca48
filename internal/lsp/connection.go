package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"strconv"
	"sync"
)

// Connection reads and writes base-protocol framed messages: a
// Content-Length header block followed by a JSON body.
type Connection struct {
	reader *textproto.Reader
	body   *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex
	writer io.Writer
}

// NewConnection creates a new LSP connection
func NewConnection(reader io.Reader, writer io.Writer, logger *slog.Logger) *Connection {
	br := bufio.NewReader(reader)
	return &Connection{
		reader: textproto.NewReader(br),
		body:   br,
		writer: writer,
		logger: logger,
	}
}

// ReadMessage reads the next message. It returns io.EOF when the peer
// closes the stream between messages.
func (c *Connection) ReadMessage() (*Message, error) {
	header, err := c.reader.ReadMIMEHeader()
	if err != nil {
		if err == io.EOF && len(header) == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	lengthStr := header.Get("Content-Length")
	if lengthStr == "" {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", lengthStr)
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(c.body, content); err != nil {
		return nil, fmt.Errorf("failed to read message content: %w", err)
	}

	var message Message
	if err := json.Unmarshal(content, &message); err != nil {
		return nil, fmt.Errorf("failed to parse JSON message: %w", err)
	}
	c.logger.Debug("received message", "method", message.Method, "id", message.ID, "bytes", length)
	return &message, nil
}

// WriteMessage writes an LSP message to the connection
func (c *Connection) WriteMessage(message *Message) error {
	if message.JSONRPC == "" {
		message.JSONRPC = "2.0"
	}
	content, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(content)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if _, err := c.writer.Write(content); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	c.logger.Debug("sent message", "method", message.Method, "id", message.ID, "bytes", len(content))
	return nil
}

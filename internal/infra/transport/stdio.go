// Package transport binds the JSON-RPC handler to its physical channels:
// a newline-delimited stdio loop and an HTTP endpoint.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// RequestHandler is the transport-facing contract of the RPC handler.
type RequestHandler interface {
	Handle(ctx context.Context, raw []byte) []byte
}

const maxLineBytes = 4 * 1024 * 1024

// StdioServer serves one JSON-RPC message per line over a character
// stream. The loop is strictly sequential: request N's response is written
// and flushed before request N+1 is read, which preserves ordering at the
// cost of head-of-line blocking. That trade-off is deliberate.
type StdioServer struct {
	handler RequestHandler
	logger  *zap.Logger
}

func NewStdioServer(handler RequestHandler, logger *zap.Logger) *StdioServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioServer{
		handler: handler,
		logger:  logger.Named("stdio"),
	}
}

// Run reads until end-of-stream or cancellation. Blank lines are ignored.
// On cancellation the loop exits between messages, never mid-write, so the
// stream ends without a corrupt partial response.
func (s *StdioServer) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	out := bufio.NewWriter(w)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.logger.Info("stdio transport listening")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stdio transport stopping")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read stdio: %w", err)
					}
				default:
				}
				s.logger.Info("stdio stream ended")
				return nil
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			response := s.handler.Handle(ctx, line)
			if _, err := out.Write(response); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if err := out.WriteByte('\n'); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("flush response: %w", err)
			}
		}
	}
}

package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// handleConn consumes one accepted client connection to completion. Every
// exit path closes the connection; failures here never reach the accept loop.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection handler panic", zap.Any("panic", r))
			s.writeErrorResponse(conn, http.StatusInternalServerError)
		}
	}()

	br := bufio.NewReader(conn)

	line, err := readRequestLine(br)
	if line == "" {
		// Peer closed or sent nothing before the line terminator; not an
		// error, just no request to answer.
		return
	}
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("read request line", zap.Error(err))
		return
	}

	req, err := ParseRequestLine(line)
	if err != nil {
		s.writeErrorResponse(conn, http.StatusBadRequest)
		return
	}

	if strings.EqualFold(req.Method, http.MethodConnect) {
		s.handleConnect(ctx, conn, br, req)
		return
	}

	// Plain HTTP proxying is intentionally not implemented. Consume the
	// header block so the client has sent a complete request before the
	// refusal arrives.
	if err := drainHeaders(br); err != nil && !errors.Is(err, io.EOF) {
		s.logger.Debug("drain headers", zap.Error(err))
		s.writeErrorResponse(conn, http.StatusInternalServerError)
		return
	}
	s.writeErrorResponse(conn, http.StatusNotImplemented)
}

func (s *Server) handleConnect(ctx context.Context, conn net.Conn, br *bufio.Reader, req RequestLine) {
	target, err := ParseConnectTarget(req.Target)
	if err != nil {
		s.writeErrorResponse(conn, http.StatusBadRequest)
		return
	}

	// Single attempt, no retry.
	remote, err := s.cfg.Dialer.DialContext(ctx, "tcp", target.Address())
	if err != nil {
		s.logger.Debug("connect dial failed", zap.String("target", target.Address()), zap.Error(err))
		s.writeErrorResponse(conn, http.StatusBadGateway)
		return
	}
	defer remote.Close()

	if _, err := io.WriteString(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		s.logger.Debug("write connect response failed", zap.Error(err))
		return
	}

	// Bytes the reader buffered past the request line already belong to
	// the tunnel.
	if n := br.Buffered(); n > 0 {
		peeked, _ := br.Peek(n)
		if _, err := remote.Write(peeked); err != nil {
			s.logger.Debug("tunnel write failed", zap.Error(err))
			return
		}
		_, _ = br.Discard(n)
	}

	if err := CopyBidirectional(ctx, conn, remote); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("tunnel closed with error", zap.String("target", target.Address()), zap.Error(err))
	}
}

// readRequestLine reads one line, stripping the terminator. An empty line
// with io.EOF means the client never sent a request.
func readRequestLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

// drainHeaders discards header lines up to the blank line or end of stream.
func drainHeaders(br *bufio.Reader) error {
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return err
		}
		if line == "\r\n" || line == "\n" {
			return nil
		}
	}
}

// writeErrorResponse writes the fixed error response template. A failure
// writing it is logged and otherwise ignored; the connection closes anyway.
func (s *Server) writeErrorResponse(conn net.Conn, code int) {
	_, err := fmt.Fprintf(conn, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\nConnection: close\r\n\r\n", code, http.StatusText(code))
	if err != nil {
		s.logger.Debug("write error response failed", zap.Int("code", code), zap.Error(err))
	}
}

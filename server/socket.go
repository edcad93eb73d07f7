package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/captaincrouton89/klaude-wrapper/log"
	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

// Socket listens on a Unix-domain socket,
// accumulates bytes per connection until '\n', treats each line as one
// JSON request, and replies with exactly one response before closing the
// connection.
type Socket struct {
	path     string
	router   *Router
	listener net.Listener

	wg sync.WaitGroup
}

// NewSocket unlinks any stale socket file at path and binds a new listener.
func NewSocket(path string, router *Router) (*Socket, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("failed to unlink stale socket")
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}

	return &Socket{path: path, router: router, listener: ln}, nil
}

// Serve accepts connections until the listener is closed by Shutdown.
func (s *Socket) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("socket accept error")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Socket) handleConn(conn net.Conn) {
	defer conn.Close()
	connID := uuid.NewString()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return
	}

	resp := s.process(line)

	enc, err := json.Marshal(resp)
	if err != nil {
		enc, _ = json.Marshal(Response{Ok: false, Error: &ErrorInfo{Code: string(wraperr.EInternal), Message: "failed to encode response"}})
	}
	enc = append(enc, '\n')
	if _, err := conn.Write(enc); err != nil {
		log.Debug().Err(err).Str("connId", connID).Msg("failed to write socket response")
	}
}

func (s *Socket) process(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Ok: false, Error: &ErrorInfo{Code: string(wraperr.EInvalidJSON), Message: "request is not valid JSON"}}
	}

	result, err := s.router.Route(req)
	if err != nil {
		ce := wraperr.As(err)
		return Response{Ok: false, Error: &ErrorInfo{Code: string(ce.Code), Message: ce.Message}}
	}
	return Response{Ok: true, Result: result}
}

// Shutdown closes the listener, waits for in-flight connections (bounded by
// ctx), and unlinks the socket file.
func (s *Socket) Shutdown(ctx context.Context) error {
	if err := s.listener.Close(); err != nil {
		log.Warn().Err(err).Msg("socket listener close error")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for in-flight socket connections")
	}

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Package echo is the TCP smoke test: bytes in, same bytes out.
package echo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/observability"
)

var ErrNotListening = errors.New("echo: server is not listening")

type Server struct {
	logger   zerolog.Logger
	listener net.Listener
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{logger: logger.With().Str("service", "echo").Logger()}
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("echo: bind %q: %w", addr, err)
	}
	s.listener = ln
	s.logger.Info().Stringer("addr", ln.Addr()).Msg("listening")
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("echo: accept: %w", err)
		}
		observability.RecordConnection("echo")
		go s.handle(conn)
	}
}

func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	n, err := io.Copy(conn, conn)
	if err != nil {
		s.logger.Debug().Err(err).Msg("copy ended with error")
	}
	s.logger.Debug().Int64("bytes", n).Stringer("peer", conn.RemoteAddr()).Msg("connection done")
}

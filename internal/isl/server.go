// Package isl serves the "insecure sockets layer": a per-connection byte
// cipher negotiated in-band, carrying a toy-priority request protocol.
package isl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/observability"
)

var (
	ErrNotListening = errors.New("isl: server is not listening")
	ErrBadJobLine   = errors.New("isl: invalid job line")
)

type Server struct {
	logger   zerolog.Logger
	listener net.Listener
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{logger: logger.With().Str("service", "isl").Logger()}
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("isl: bind %q: %w", addr, err)
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
			return fmt.Errorf("isl: accept: %w", err)
		}
		observability.RecordConnection("isl")
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
	reader := bufio.NewReader(conn)

	cipher, err := ReadSpec(reader)
	if err != nil {
		s.logger.Debug().Err(err).Msg("rejecting cipher spec")
		return
	}

	var line []byte
	for {
		raw, err := reader.ReadByte()
		if err != nil {
			return
		}
		b := cipher.Decode(raw)
		if b != '\n' {
			line = append(line, b)
			continue
		}

		reply, err := priorityJob(line)
		if err != nil {
			s.logger.Debug().Err(err).Bytes("line", line).Msg("dropping connection")
			return
		}
		line = line[:0]

		out := make([]byte, 0, len(reply)+1)
		for _, rb := range append(reply, '\n') {
			out = append(out, cipher.Encode(rb))
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// priorityJob picks the job with the most copies from a comma-separated
// "COUNTx toy name" list.
func priorityJob(line []byte) ([]byte, error) {
	var (
		best       []byte
		bestCopies = -1
		start      = 0
	)
	for i := 0; i <= len(line); i++ {
		if i != len(line) && line[i] != ',' {
			continue
		}
		entry := line[start:i]
		start = i + 1

		copies, ok := parseCopies(entry)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadJobLine, entry)
		}
		if copies > bestCopies {
			bestCopies = copies
			best = entry
		}
	}
	if best == nil {
		return nil, ErrBadJobLine
	}
	out := make([]byte, len(best))
	copy(out, best)
	return out, nil
}

// parseCopies reads the leading decimal count of one "COUNTx toy" entry.
func parseCopies(entry []byte) (int, bool) {
	n := 0
	i := 0
	for ; i < len(entry) && entry[i] >= '0' && entry[i] <= '9'; i++ {
		n = n*10 + int(entry[i]-'0')
		if n > 1<<30 {
			return 0, false
		}
	}
	if i == 0 || i >= len(entry) || entry[i] != 'x' {
		return 0, false
	}
	return n, true
}

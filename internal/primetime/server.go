// Package primetime serves line-delimited JSON primality queries.
package primetime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/observability"
)

var ErrNotListening = errors.New("primetime: server is not listening")

const maxLineBytes = 64 * 1024

type request struct {
	Method *string  `json:"method"`
	Number *float64 `json:"number"`
}

type response struct {
	Method string `json:"method"`
	Prime  bool   `json:"prime"`
}

type Server struct {
	logger   zerolog.Logger
	listener net.Listener
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{logger: logger.With().Str("service", "primetime").Logger()}
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("primetime: bind %q: %w", addr, err)
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
			return fmt.Errorf("primetime: accept: %w", err)
		}
		observability.RecordConnection("primetime")
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
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()

		var req request
		if err := json.Unmarshal(line, &req); err != nil || !req.wellFormed() {
			s.logger.Debug().Bytes("line", line).Msg("malformed request, dropping connection")
			// One junk reply, then disconnect: the contract for malformed input.
			conn.Write([]byte("{\"error\":\"malformed request\"}\n"))
			return
		}

		resp := response{Method: *req.Method, Prime: isPrime(*req.Number)}
		out, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error().Err(err).Msg("marshal response")
			return
		}
		out = append(out, '\n')
		if _, err := conn.Write(out); err != nil {
			s.logger.Debug().Err(err).Msg("write response")
			return
		}
	}
}

func (r request) wellFormed() bool {
	return r.Method != nil && *r.Method == "isPrime" && r.Number != nil
}

// isPrime treats non-integer and negative numbers as composite; both are
// well-formed inputs per the wire contract.
func isPrime(n float64) bool {
	if n != math.Trunc(n) || n < 2 || math.IsInf(n, 0) {
		return false
	}
	// Any float64 integer beyond int64 range is a multiple of a power of two,
	// hence composite.
	if n > math.MaxInt64 {
		return false
	}
	return big.NewInt(int64(n)).ProbablyPrime(20)
}

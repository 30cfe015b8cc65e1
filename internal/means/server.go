// Package means serves the 9-byte binary price insert/query protocol.
package means

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/observability"
)

var ErrNotListening = errors.New("means: server is not listening")

const frameBytes = 9

type Server struct {
	logger   zerolog.Logger
	listener net.Listener
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{logger: logger.With().Str("service", "means").Logger()}
}

func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("means: bind %q: %w", addr, err)
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
			return fmt.Errorf("means: accept: %w", err)
		}
		observability.RecordConnection("means")
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
	store := newPriceStore()

	var frame [frameBytes]byte
	for {
		if _, err := io.ReadFull(conn, frame[:]); err != nil {
			return
		}
		switch frame[0] {
		case 'I':
			ts := binary.BigEndian.Uint32(frame[1:5])
			price := int32(binary.BigEndian.Uint32(frame[5:9]))
			store.insert(ts, price)

		case 'Q':
			from := binary.BigEndian.Uint32(frame[1:5])
			to := binary.BigEndian.Uint32(frame[5:9])
			mean := store.mean(from, to)

			var out [4]byte
			binary.BigEndian.PutUint32(out[:], uint32(mean))
			if _, err := conn.Write(out[:]); err != nil {
				return
			}

		default:
			s.logger.Debug().Uint8("op", frame[0]).Msg("unknown frame type, dropping connection")
			return
		}
	}
}

// priceStore keeps one connection's prices ordered by timestamp. A repeated
// timestamp overwrites its previous price.
type priceStore struct {
	ts     []uint32
	prices []int32
}

func newPriceStore() *priceStore {
	return &priceStore{}
}

func (ps *priceStore) insert(ts uint32, price int32) {
	i := sort.Search(len(ps.ts), func(i int) bool { return ps.ts[i] >= ts })
	if i < len(ps.ts) && ps.ts[i] == ts {
		ps.prices[i] = price
		return
	}
	ps.ts = append(ps.ts, 0)
	ps.prices = append(ps.prices, 0)
	copy(ps.ts[i+1:], ps.ts[i:])
	copy(ps.prices[i+1:], ps.prices[i:])
	ps.ts[i] = ts
	ps.prices[i] = price
}

// mean returns the integer-truncated average price over from <= ts <= to,
// or 0 for an inverted or empty range.
func (ps *priceStore) mean(from, to uint32) int32 {
	if from > to {
		return 0
	}
	lo := sort.Search(len(ps.ts), func(i int) bool { return ps.ts[i] >= from })
	hi := sort.Search(len(ps.ts), func(i int) bool { return ps.ts[i] > to })
	if lo >= hi {
		return 0
	}
	var sum int64
	for i := lo; i < hi; i++ {
		sum += int64(ps.prices[i])
	}
	return int32(sum / int64(hi-lo))
}

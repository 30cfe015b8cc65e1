package lrcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/lrcp/packet"
	"github.com/danmuck/protoctl/internal/lrcp/session"
	"github.com/danmuck/protoctl/internal/observability"
)

var ErrNotListening = errors.New("lrcp: server is not listening")

// Server demultiplexes one UDP socket into per-session state machines.
type Server struct {
	transform session.Transform
	cfg       session.Config
	logger    zerolog.Logger

	conn *net.UDPConn

	mu       sync.Mutex
	sessions map[uint32]*session.Session
}

func NewServer(transform session.Transform, cfg session.Config, logger zerolog.Logger) *Server {
	return &Server{
		transform: transform,
		cfg:       cfg,
		logger:    logger.With().Str("service", "linereversal").Logger(),
		sessions:  make(map[uint32]*session.Session),
	}
}

func (s *Server) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("lrcp: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("lrcp: bind %q: %w", addr, err)
	}
	s.conn = conn
	s.logger.Info().Stringer("addr", conn.LocalAddr()).Msg("listening")
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve reads datagrams until ctx is canceled. Malformed datagrams are logged
// and dropped; no decode failure ever stops the loop.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotListening
	}
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	bufSize := s.cfg.ReadBufferBytes
	if bufSize <= 0 {
		bufSize = session.DefaultConfig().ReadBufferBytes
	}
	buf := make([]byte, bufSize)
	for {
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("lrcp: read: %w", err)
		}

		p, err := packet.Decode(buf[:n])
		if err != nil {
			s.logger.Debug().Err(err).Int("bytes", n).Msg("dropping malformed datagram")
			observability.RecordPacketDropped("malformed")
			continue
		}
		observability.RecordPacketReceived(p.Kind.String())
		s.route(p, peer)
	}
}

func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) route(p packet.Packet, peer *net.UDPAddr) {
	s.mu.Lock()
	sess, known := s.sessions[p.Session]
	switch {
	case !known && p.Kind != packet.KindConnect:
		s.mu.Unlock()
		s.logger.Debug().
			Uint32("session", p.Session).
			Str("kind", p.Kind.String()).
			Msg("dropping traffic for unknown session")
		observability.RecordPacketDropped("unknown_session")
		return

	case !known:
		id := p.Session
		sess = session.New(
			id,
			&udpSender{conn: s.conn, peer: peer},
			s.transform,
			s.cfg,
			s.logger,
			func() { s.drop(id) },
		)
		s.sessions[id] = sess
		observability.RecordSessionOpened()
		go sess.Run()

	case p.Kind == packet.KindConnect:
		// Known session: connect is idempotent, never resets state.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if p.Kind == packet.KindClose {
		s.drop(p.Session)
	}
	if !sess.Deliver(p) {
		s.logger.Warn().
			Uint32("session", p.Session).
			Str("kind", p.Kind.String()).
			Msg("session inbox full, dropping packet")
		observability.RecordPacketDropped("inbox_full")
	}
}

// drop removes one session from the table. Safe to call twice: close packets
// remove eagerly and session teardown removes again.
func (s *Server) drop(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		observability.RecordSessionClosed()
	}
}

func (s *Server) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// udpSender binds the shared socket to one peer address. WriteToUDP is safe
// for concurrent use; every send is one complete datagram.
type udpSender struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (u *udpSender) Send(datagram []byte) error {
	_, err := u.conn.WriteToUDP(datagram, u.peer)
	return err
}

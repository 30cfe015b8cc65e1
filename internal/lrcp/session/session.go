package session

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/protoctl/internal/lrcp/packet"
	"github.com/danmuck/protoctl/internal/observability"
)

// Sender delivers one complete datagram to the session's peer. Implementations
// must be safe for concurrent use: the session loop and its retransmission
// supervisors send without coordination.
type Sender interface {
	Send(datagram []byte) error
}

// Transform is the application hook applied to each complete inbound line
// (trailing newline included). It is pure and must not retain its argument.
type Transform func(line []byte) []byte

type state int

const (
	statePending state = iota
	stateConnected
	stateClosed
)

// Session is one LRCP stream's reliable-delivery state machine. All fields
// except bytesAcked are owned by the Run goroutine.
type Session struct {
	id        uint32
	sender    Sender
	transform Transform
	cfg       Config
	logger    zerolog.Logger
	onClose   func()

	inbox chan packet.Packet
	done  chan struct{}

	state     state
	recvBuf   []byte
	bytesRecv uint32
	bytesSent uint32

	// bytesAcked is the peer's cumulative ack high-water mark, read
	// concurrently by retransmission supervisors. Monotonic.
	bytesAcked atomic.Uint32

	closeOnce sync.Once
}

func New(id uint32, sender Sender, transform Transform, cfg Config, logger zerolog.Logger, onClose func()) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:        id,
		sender:    sender,
		transform: transform,
		cfg:       cfg,
		logger:    logger.With().Uint32("session", id).Logger(),
		onClose:   onClose,
		inbox:     make(chan packet.Packet, cfg.InboxCapacity),
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() uint32 { return s.id }

// Deliver enqueues one inbound packet without blocking. It reports false when
// the inbox is full; the caller drops the packet and relies on the peer's
// retransmission to recover.
func (s *Session) Deliver(p packet.Packet) bool {
	select {
	case s.inbox <- p:
		return true
	default:
		return false
	}
}

// Run consumes the inbox in FIFO order until close, protocol violation, or
// idle timeout. It is the sole writer of all session state.
func (s *Session) Run() {
	defer s.teardown()

	idle := time.NewTimer(s.cfg.SessionTimeout)
	defer idle.Stop()

	for {
		select {
		case p := <-s.inbox:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.SessionTimeout)
			if !s.handle(p) {
				return
			}
		case <-idle.C:
			s.logger.Info().Msg("session idle timeout")
			s.send(packet.Close(s.id))
			return
		}
	}
}

// handle processes one inbound message. A false return stops the loop.
func (s *Session) handle(p packet.Packet) bool {
	if p.Kind == packet.KindClose {
		s.send(packet.Close(s.id))
		s.state = stateClosed
		return false
	}

	if s.state == statePending {
		if p.Kind != packet.KindConnect {
			// Traffic before connect is a protocol violation.
			s.logger.Warn().Str("kind", p.Kind.String()).Msg("message before connect")
			s.send(packet.Close(s.id))
			s.state = stateClosed
			return false
		}
		s.state = stateConnected
		s.send(packet.Ack(s.id, 0))
		return true
	}

	switch p.Kind {
	case packet.KindConnect:
		// Duplicate connect; the dispatcher normally filters these.
	case packet.KindData:
		s.handleData(p)
	case packet.KindAck:
		return s.handleAck(p)
	}
	return true
}

func (s *Session) handleData(p packet.Packet) {
	if p.Pos > s.bytesRecv {
		// Gap: re-announce what we actually hold to prompt retransmission.
		s.send(packet.Ack(s.id, s.bytesRecv))
		return
	}

	skip := s.bytesRecv - p.Pos
	if uint64(skip) >= uint64(len(p.Data)) {
		// Fully covered duplicate. Re-ack to quiet the peer's retransmitter.
		s.send(packet.Ack(s.id, s.bytesRecv))
		return
	}

	fresh := p.Data[skip:]
	s.recvBuf = append(s.recvBuf, fresh...)
	s.bytesRecv += uint32(len(fresh))
	s.send(packet.Ack(s.id, s.bytesRecv))
	s.flushLines()
}

func (s *Session) handleAck(p packet.Packet) bool {
	if p.Pos > s.bytesSent {
		s.logger.Warn().
			Uint32("ack", p.Pos).
			Uint32("sent", s.bytesSent).
			Msg("ack beyond bytes sent")
		s.send(packet.Close(s.id))
		s.state = stateClosed
		return false
	}
	if p.Pos > s.bytesAcked.Load() {
		s.bytesAcked.Store(p.Pos)
	}
	return true
}

// flushLines drains every newline-terminated line from the reassembly buffer
// through the transform; a partial trailing line stays buffered.
func (s *Session) flushLines() {
	for {
		nl := bytes.IndexByte(s.recvBuf, '\n')
		if nl < 0 {
			return
		}
		line := make([]byte, nl+1)
		copy(line, s.recvBuf[:nl+1])
		s.recvBuf = s.recvBuf[nl+1:]

		observability.RecordLineReversed()
		s.queueOutbound(s.transform(line))
	}
}

// queueOutbound chunks one outbound payload, assigns strictly increasing
// contiguous positions, sends each chunk once, and hands the batch to a
// retransmission supervisor.
func (s *Session) queueOutbound(payload []byte) {
	if len(payload) == 0 {
		return
	}
	var batch []chunk
	for len(payload) > 0 {
		n := len(payload)
		if n > s.cfg.MaxChunkBytes {
			n = s.cfg.MaxChunkBytes
		}
		pos := s.bytesSent
		s.bytesSent += uint32(n)
		batch = append(batch, chunk{
			end: s.bytesSent,
			raw: packet.Data(s.id, pos, payload[:n]).Encode(),
		})
		payload = payload[n:]
	}
	for _, c := range batch {
		s.sendRaw(c.raw)
	}
	go s.superviseRetransmit(batch)
}

func (s *Session) send(p packet.Packet) {
	s.sendRaw(p.Encode())
}

// sendRaw is best effort: a failed send is logged and abandoned, recovery is
// retransmission or the peer's own retry.
func (s *Session) sendRaw(datagram []byte) {
	if err := s.sender.Send(datagram); err != nil {
		s.logger.Warn().Err(err).Msg("send failed")
	}
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.state = stateClosed
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}

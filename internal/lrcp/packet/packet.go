package packet

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// MaxDataBytes caps outbound data payloads so a fully escaped chunk plus
// framing still fits a 1024-byte datagram.
const MaxDataBytes = 900

var (
	ErrBadFraming  = errors.New("packet: missing slash framing")
	ErrUnknownKind = errors.New("packet: unknown message kind")
	ErrBadNumber   = errors.New("packet: invalid numeric field")
	ErrBadEscape   = errors.New("packet: invalid escape sequence")
	ErrEmptyData   = errors.New("packet: data message without payload")
	ErrTrailing    = errors.New("packet: trailing bytes after message")
)

// Kind discriminates the four LRCP message types.
type Kind byte

const (
	KindConnect Kind = iota
	KindClose
	KindAck
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindClose:
		return "close"
	case KindAck:
		return "ack"
	case KindData:
		return "data"
	}
	return "unknown"
}

// Packet is one decoded LRCP datagram.
//
// Pos is meaningful for ack and data messages only: for data it is the
// cumulative byte offset of Data[0] in the sender's stream, for ack the
// count of contiguous bytes the sender has accepted.
type Packet struct {
	Kind    Kind
	Session uint32
	Pos     uint32
	Data    []byte
}

func Connect(session uint32) Packet { return Packet{Kind: KindConnect, Session: session} }
func Close(session uint32) Packet   { return Packet{Kind: KindClose, Session: session} }
func Ack(session, pos uint32) Packet {
	return Packet{Kind: KindAck, Session: session, Pos: pos}
}
func Data(session, pos uint32, data []byte) Packet {
	return Packet{Kind: KindData, Session: session, Pos: pos, Data: data}
}

// Encode renders the packet in wire form, escaping data payloads.
func (p Packet) Encode() []byte {
	buf := make([]byte, 0, 16+2*len(p.Data))
	buf = append(buf, '/')
	buf = append(buf, p.Kind.String()...)
	buf = append(buf, '/')
	buf = strconv.AppendUint(buf, uint64(p.Session), 10)
	switch p.Kind {
	case KindAck:
		buf = append(buf, '/')
		buf = strconv.AppendUint(buf, uint64(p.Pos), 10)
	case KindData:
		buf = append(buf, '/')
		buf = strconv.AppendUint(buf, uint64(p.Pos), 10)
		buf = append(buf, '/')
		for _, b := range p.Data {
			if b == '\\' || b == '/' {
				buf = append(buf, '\\')
			}
			buf = append(buf, b)
		}
	}
	buf = append(buf, '/')
	return buf
}

// Decode parses one datagram. The returned packet owns its Data slice; it
// never aliases the input.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < 2 || raw[0] != '/' || raw[len(raw)-1] != '/' {
		return Packet{}, ErrBadFraming
	}
	body := raw[1 : len(raw)-1]

	kindTok, rest, err := nextField(body)
	if err != nil {
		return Packet{}, err
	}
	var kind Kind
	switch string(kindTok) {
	case "connect":
		kind = KindConnect
	case "close":
		kind = KindClose
	case "ack":
		kind = KindAck
	case "data":
		kind = KindData
	default:
		return Packet{}, fmt.Errorf("%w: %q", ErrUnknownKind, kindTok)
	}

	p := Packet{Kind: kind}
	switch kind {
	case KindConnect, KindClose:
		if p.Session, err = parseUint32(rest); err != nil {
			return Packet{}, err
		}

	case KindAck:
		sessTok, posTok, err := nextField(rest)
		if err != nil {
			return Packet{}, err
		}
		if p.Session, err = parseUint32(sessTok); err != nil {
			return Packet{}, err
		}
		if p.Pos, err = parseUint32(posTok); err != nil {
			return Packet{}, err
		}

	case KindData:
		sessTok, rest, err := nextField(rest)
		if err != nil {
			return Packet{}, err
		}
		posTok, dataTok, err := nextField(rest)
		if err != nil {
			return Packet{}, err
		}
		if p.Session, err = parseUint32(sessTok); err != nil {
			return Packet{}, err
		}
		if p.Pos, err = parseUint32(posTok); err != nil {
			return Packet{}, err
		}
		if len(dataTok) == 0 {
			return Packet{}, ErrEmptyData
		}
		if p.Data, err = unescape(dataTok); err != nil {
			return Packet{}, err
		}
	}
	return p, nil
}

// nextField splits body at its first unescaped slash. Fields before the data
// segment never contain escapes, so a plain scan is fine; the data segment is
// always the remainder and is validated by unescape.
func nextField(body []byte) (field, rest []byte, err error) {
	for i, b := range body {
		if b == '/' {
			return body[:i], body[i+1:], nil
		}
	}
	return nil, nil, ErrBadFraming
}

func parseUint32(tok []byte) (uint32, error) {
	if len(tok) == 0 {
		return 0, ErrBadNumber
	}
	var n uint64
	for _, b := range tok {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("%w: %q", ErrBadNumber, tok)
		}
		n = n*10 + uint64(b-'0')
		if n > math.MaxUint32 {
			return 0, fmt.Errorf("%w: overflow", ErrBadNumber)
		}
	}
	return uint32(n), nil
}

// unescape resolves \\ and \/ and rejects anything else that would break
// framing: a bare slash means the datagram had extra segments, a dangling or
// unknown escape is malformed.
func unescape(tok []byte) ([]byte, error) {
	out := make([]byte, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		switch tok[i] {
		case '\\':
			i++
			if i >= len(tok) || (tok[i] != '\\' && tok[i] != '/') {
				return nil, ErrBadEscape
			}
			out = append(out, tok[i])
		case '/':
			return nil, ErrTrailing
		default:
			out = append(out, tok[i])
		}
	}
	return out, nil
}

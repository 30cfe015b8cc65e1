package isl

import (
	"bufio"
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrBadCipherSpec = errors.New("isl: invalid cipher spec")
	ErrNoopCipher    = errors.New("isl: cipher is a no-op")
)

type opKind byte

const (
	opReverseBits opKind = 0x01
	opXor         opKind = 0x02
	opXorPos      opKind = 0x03
	opAdd         opKind = 0x04
	opAddPos      opKind = 0x05

	specEnd byte = 0x00
)

type op struct {
	kind opKind
	n    byte
}

// Cipher is one connection's obfuscation layer. Positions advance per byte,
// independently for each direction: inPos counts decoded (peer->server)
// bytes, outPos counts encoded (server->peer) bytes.
type Cipher struct {
	ops    []op
	inPos  int
	outPos int
}

// ReadSpec parses a cipher spec off the front of a stream. Operand bytes are
// consumed unconditionally, so a 0x00 operand does not terminate the spec.
func ReadSpec(r *bufio.Reader) (*Cipher, error) {
	var ops []op
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCipherSpec, err)
		}
		if b == specEnd {
			break
		}
		switch opKind(b) {
		case opReverseBits, opXorPos, opAddPos:
			ops = append(ops, op{kind: opKind(b)})
		case opXor, opAdd:
			n, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: truncated operand", ErrBadCipherSpec)
			}
			ops = append(ops, op{kind: opKind(b), n: n})
		default:
			return nil, fmt.Errorf("%w: unknown op 0x%02x", ErrBadCipherSpec, b)
		}
	}

	c := &Cipher{ops: ops}
	if c.isNoop() {
		return nil, ErrNoopCipher
	}
	return c, nil
}

func (c *Cipher) encodeAt(b byte, pos int) byte {
	for _, o := range c.ops {
		switch o.kind {
		case opReverseBits:
			b = bits.Reverse8(b)
		case opXor:
			b ^= o.n
		case opXorPos:
			b ^= byte(pos)
		case opAdd:
			b += o.n
		case opAddPos:
			b += byte(pos)
		}
	}
	return b
}

func (c *Cipher) decodeAt(b byte, pos int) byte {
	for i := len(c.ops) - 1; i >= 0; i-- {
		switch c.ops[i].kind {
		case opReverseBits:
			b = bits.Reverse8(b)
		case opXor:
			b ^= c.ops[i].n
		case opXorPos:
			b ^= byte(pos)
		case opAdd:
			b -= c.ops[i].n
		case opAddPos:
			b -= byte(pos)
		}
	}
	return b
}

// Encode obfuscates one outgoing byte, advancing the outgoing position.
func (c *Cipher) Encode(b byte) byte {
	out := c.encodeAt(b, c.outPos)
	c.outPos++
	return out
}

// Decode deobfuscates one incoming byte, advancing the incoming position.
func (c *Cipher) Decode(b byte) byte {
	out := c.decodeAt(b, c.inPos)
	c.inPos++
	return out
}

// isNoop probes every byte value across the position cycle; a cipher that
// leaves all of them untouched is indistinguishable from plaintext and must
// be rejected.
func (c *Cipher) isNoop() bool {
	for pos := 0; pos < 256; pos++ {
		for v := 0; v < 256; v++ {
			if c.encodeAt(byte(v), pos) != byte(v) {
				return false
			}
		}
	}
	return true
}

package session

import (
	"time"

	"github.com/danmuck/protoctl/internal/lrcp/packet"
)

// Config defines session reliability defaults.
type Config struct {
	// InboxCapacity bounds the dispatcher->session queue; overflow is lossy.
	InboxCapacity int
	// ReadBufferBytes sizes the dispatcher's datagram read buffer.
	ReadBufferBytes int
	// MaxChunkBytes caps one outbound data payload.
	MaxChunkBytes int
	// RetransmitInterval paces unacknowledged chunk resends.
	RetransmitInterval time.Duration
	// SessionTimeout closes a session that has processed no inbound message.
	SessionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		InboxCapacity:      100,
		ReadBufferBytes:    1024,
		MaxChunkBytes:      packet.MaxDataBytes,
		RetransmitInterval: 3 * time.Second,
		SessionTimeout:     60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InboxCapacity <= 0 {
		c.InboxCapacity = def.InboxCapacity
	}
	if c.ReadBufferBytes <= 0 {
		c.ReadBufferBytes = def.ReadBufferBytes
	}
	if c.MaxChunkBytes <= 0 || c.MaxChunkBytes > packet.MaxDataBytes {
		c.MaxChunkBytes = def.MaxChunkBytes
	}
	if c.RetransmitInterval <= 0 {
		c.RetransmitInterval = def.RetransmitInterval
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = def.SessionTimeout
	}
	return c
}

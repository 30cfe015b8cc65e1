package session

import (
	"time"

	"github.com/danmuck/protoctl/internal/observability"
)

// chunk is one outbound data packet held for retransmission. raw is the
// exact datagram queued originally; resends replay it byte for byte.
type chunk struct {
	end uint32 // stream offset one past this chunk's last byte
	raw []byte
}

// superviseRetransmit resends every chunk in the batch not yet covered by the
// peer's cumulative ack, on a fixed interval, until the whole batch is
// covered or the session is torn down.
func (s *Session) superviseRetransmit(batch []chunk) {
	ticker := time.NewTicker(s.cfg.RetransmitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			acked := s.bytesAcked.Load()
			pending := 0
			for _, c := range batch {
				if acked >= c.end {
					continue
				}
				pending++
				s.sendRaw(c.raw)
				observability.RecordRetransmit()
			}
			if pending == 0 {
				return
			}
		}
	}
}

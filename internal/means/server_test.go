package means

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/danmuck/protoctl/internal/testutil/testlog"
)

func TestPriceStore(t *testing.T) {
	ps := newPriceStore()
	ps.insert(100, 10)
	ps.insert(50, 20)
	ps.insert(150, 30)

	if got := ps.mean(0, 200); got != 20 {
		t.Fatalf("mean all = %d, want 20", got)
	}
	if got := ps.mean(50, 100); got != 15 {
		t.Fatalf("mean range = %d, want 15", got)
	}
	if got := ps.mean(200, 100); got != 0 {
		t.Fatalf("inverted range = %d, want 0", got)
	}
	if got := ps.mean(300, 400); got != 0 {
		t.Fatalf("empty range = %d, want 0", got)
	}

	// Same timestamp overwrites.
	ps.insert(100, 40)
	if got := ps.mean(100, 100); got != 40 {
		t.Fatalf("overwrite = %d, want 40", got)
	}
}

func TestPriceStoreNegativePrices(t *testing.T) {
	ps := newPriceStore()
	ps.insert(1, -10)
	ps.insert(2, -20)
	if got := ps.mean(1, 2); got != -15 {
		t.Fatalf("negative mean = %d, want -15", got)
	}
}

func frame(op byte, a, b uint32) []byte {
	out := make([]byte, 9)
	out[0] = op
	binary.BigEndian.PutUint32(out[1:5], a)
	binary.BigEndian.PutUint32(out[5:9], b)
	return out
}

func TestInsertQueryOverWire(t *testing.T) {
	srv := NewServer(testlog.Start(t))
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	conn.Write(frame('I', 12345, 101))
	conn.Write(frame('I', 12346, 102))
	conn.Write(frame('I', 12347, 100))
	conn.Write(frame('I', 40960, 5))
	conn.Write(frame('Q', 12288, 16384))

	var resp [4]byte
	if _, err := io.ReadFull(conn, resp[:]); err != nil {
		t.Fatalf("read mean: %v", err)
	}
	if got := int32(binary.BigEndian.Uint32(resp[:])); got != 101 {
		t.Fatalf("mean = %d, want 101", got)
	}
}

func TestStoreIsPerConnection(t *testing.T) {
	srv := NewServer(testlog.Start(t))
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	first, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	first.Write(frame('I', 10, 999))

	second, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	second.SetDeadline(time.Now().Add(5 * time.Second))
	second.Write(frame('Q', 0, 100))

	var resp [4]byte
	if _, err := io.ReadFull(second, resp[:]); err != nil {
		t.Fatalf("read mean: %v", err)
	}
	if got := int32(binary.BigEndian.Uint32(resp[:])); got != 0 {
		t.Fatalf("second connection saw first connection's data: mean = %d", got)
	}
}

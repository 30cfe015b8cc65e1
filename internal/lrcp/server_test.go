package lrcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/protoctl/internal/lrcp/session"
	"github.com/danmuck/protoctl/internal/reverse"
	"github.com/danmuck/protoctl/internal/testutil/testlog"
)

func startServer(t *testing.T, cfg session.Config) (*Server, *net.UDPConn) {
	t.Helper()
	srv := NewServer(reverse.Line, cfg, testlog.Start(t))
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	client, err := net.DialUDP("udp", nil, srv.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func expectDatagram(t *testing.T, client *net.UDPConn, want string) {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("waiting for %q: %v", want, err)
	}
	if got := string(buf[:n]); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func expectSilence(t *testing.T, client *net.UDPConn) {
	t.Helper()
	client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1024)
	if n, err := client.Read(buf); err == nil {
		t.Fatalf("expected no reply, got %q", buf[:n])
	}
}

func TestEndToEndLineReversal(t *testing.T) {
	srv, client := startServer(t, session.DefaultConfig())

	client.Write([]byte("/connect/1234567/"))
	expectDatagram(t, client, "/ack/1234567/0/")

	client.Write([]byte("/data/1234567/0/hello/"))
	expectDatagram(t, client, "/ack/1234567/5/")

	client.Write([]byte("/data/1234567/5/\n/"))
	expectDatagram(t, client, "/ack/1234567/6/")
	expectDatagram(t, client, "/data/1234567/0/olleh\n/")

	client.Write([]byte("/ack/1234567/6/"))

	client.Write([]byte("/close/1234567/"))
	expectDatagram(t, client, "/close/1234567/")

	deadline := time.Now().Add(time.Second)
	for srv.sessionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session table still holds %d sessions", srv.sessionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnknownSessionTrafficIgnored(t *testing.T) {
	srv, client := startServer(t, session.DefaultConfig())

	client.Write([]byte("/data/999/0/hi/"))
	client.Write([]byte("/ack/999/0/"))
	client.Write([]byte("/close/999/"))
	expectSilence(t, client)
	if n := srv.sessionCount(); n != 0 {
		t.Fatalf("non-connect traffic created %d sessions", n)
	}
}

func TestMalformedDatagramDoesNotStallDispatcher(t *testing.T) {
	_, client := startServer(t, session.DefaultConfig())

	client.Write([]byte("garbage"))
	client.Write([]byte("/frobnicate/1/"))
	client.Write([]byte("/data/1/not-a-number/x/"))

	client.Write([]byte("/connect/42/"))
	expectDatagram(t, client, "/ack/42/0/")
}

func TestDuplicateConnectDoesNotResetSession(t *testing.T) {
	_, client := startServer(t, session.DefaultConfig())

	client.Write([]byte("/connect/7/"))
	expectDatagram(t, client, "/ack/7/0/")

	client.Write([]byte("/data/7/0/abc/"))
	expectDatagram(t, client, "/ack/7/3/")

	// Idempotent: a repeated connect is swallowed, state stays intact.
	client.Write([]byte("/connect/7/"))
	expectSilence(t, client)

	client.Write([]byte("/data/7/3/def\n/"))
	expectDatagram(t, client, "/ack/7/7/")
	expectDatagram(t, client, "/data/7/0/fedcba\n/")
}

func TestRetransmitReplaysExactChunk(t *testing.T) {
	cfg := session.DefaultConfig()
	cfg.RetransmitInterval = 50 * time.Millisecond
	_, client := startServer(t, cfg)

	client.Write([]byte("/connect/5/"))
	expectDatagram(t, client, "/ack/5/0/")
	client.Write([]byte("/data/5/0/ab\n/"))
	expectDatagram(t, client, "/ack/5/3/")

	want := "/data/5/0/ba\n/"
	expectDatagram(t, client, want)
	// Unacked: the supervisor must replay the identical datagram.
	expectDatagram(t, client, want)

	client.Write([]byte("/ack/5/3/"))
	time.Sleep(120 * time.Millisecond)
	drainRetransmits(t, client, want)
	expectSilence(t, client)
}

// drainRetransmits swallows resends that were already in flight when the ack
// landed.
func drainRetransmits(t *testing.T, client *net.UDPConn, want string) {
	t.Helper()
	buf := make([]byte, 1024)
	for {
		client.SetReadDeadline(time.Now().Add(30 * time.Millisecond))
		n, err := client.Read(buf)
		if err != nil {
			return
		}
		if got := string(buf[:n]); got != want {
			t.Fatalf("unexpected datagram while draining: %q", got)
		}
	}
}

package isl

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/protoctl/internal/testutil/testlog"
)

func TestPriorityJob(t *testing.T) {
	cases := []struct {
		line, want string
	}{
		{"10x toy car,15x dog on a string,4x inflatable motorcycle", "15x dog on a string"},
		{"5x car", "5x car"},
		{"3x a,3x b", "3x a"},
	}
	for _, tc := range cases {
		got, err := priorityJob([]byte(tc.line))
		if err != nil {
			t.Fatalf("priorityJob(%q): %v", tc.line, err)
		}
		if string(got) != tc.want {
			t.Fatalf("priorityJob(%q) = %q, want %q", tc.line, got, tc.want)
		}
	}

	bad := []string{"", "x dog", "12 dog", "5x car,,3x cat"}
	for _, line := range bad {
		if _, err := priorityJob([]byte(line)); err == nil {
			t.Fatalf("priorityJob(%q) should fail", line)
		}
	}
}

func startServer(t *testing.T) net.Conn {
	t.Helper()
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
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestCipheredSessionOverWire(t *testing.T) {
	conn := startServer(t)
	spec := []byte{0x02, 0x7b, 0x05, 0x01, 0x00} // xor 123, addpos, reversebits
	enc := mustCipher(t, spec)
	dec := mustCipher(t, spec)

	if _, err := conn.Write(spec); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	request := []byte("4x dog,5x car\n")
	out := make([]byte, len(request))
	for i, b := range request {
		out[i] = enc.Encode(b)
	}
	if _, err := conn.Write(out); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(conn)
	var reply []byte
	for {
		raw, err := reader.ReadByte()
		if err != nil {
			t.Fatalf("read reply: %v", err)
		}
		b := dec.Decode(raw)
		reply = append(reply, b)
		if b == '\n' {
			break
		}
	}
	if string(reply) != "5x car\n" {
		t.Fatalf("reply = %q, want %q", reply, "5x car\n")
	}
}

func TestNoopCipherDisconnects(t *testing.T) {
	conn := startServer(t)
	if _, err := conn.Write([]byte{0x02, 0x00, 0x00}); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("server kept a no-op cipher connection open")
	}
}

package mysql

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestFrameCodecRoundTripSmallPacket(t *testing.T) {
	client, server := pipePair(t)
	cfc := newFrameCodec(client)
	sfc := newFrameCodec(server)

	payload := []byte{0, 0, 0, 0, 'h', 'e', 'l', 'l', 'o'}
	go func() {
		if err := cfc.writePacket(payload); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	got, err := sfc.readPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
}

func TestFrameCodecSequenceMismatch(t *testing.T) {
	client, server := pipePair(t)
	sfc := newFrameCodec(server)

	go func() {
		// Hand-craft a frame with sequence id 5 when 0 is expected.
		client.Write([]byte{1, 0, 0, 5, 0xAB})
	}()

	_, err := sfc.readPacket()
	var perr *ProtocolError
	if !asProtocolError(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func asProtocolError(err error, target **ProtocolError) bool {
	pe, ok := err.(*ProtocolError)
	if ok {
		*target = pe
	}
	return ok
}

func TestFrameCodecContinuationReassembly(t *testing.T) {
	client, server := pipePair(t)
	cfc := newFrameCodec(client)
	sfc := newFrameCodec(server)

	big := make([]byte, maxPacketSize+100)
	for i := range big {
		big[i] = byte(i)
	}
	payload := append(make([]byte, 4), big...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := cfc.writePacket(payload); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	got, err := sfc.readPacket()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("reassembled payload mismatch: got %d bytes, want %d", len(got), len(big))
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer goroutine did not finish")
	}
}

func TestFrameCodecReadPacketEOF(t *testing.T) {
	client, server := pipePair(t)
	sfc := newFrameCodec(server)
	client.Close()

	if _, err := sfc.readPacket(); err == nil {
		t.Fatal("expected an error reading from a closed connection")
	}
}

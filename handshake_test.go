package mysql

import (
	"context"
	"net"
	"testing"
	"time"
)

func sendHandshakeWithPlugin(t *testing.T, fc *frameCodec, plugin string) {
	t.Helper()
	w := newPayloadWriter()
	w.WriteByte(10)
	w.WriteNulString("8.0.32-fake")
	w.WriteFixedUint32(42)
	w.WriteBytes([]byte("AAAAAAAA"))
	w.WriteByte(0)
	caps := clientBaseCapabilities
	w.WriteFixedUint16(uint16(caps))
	w.WriteByte(45)
	w.WriteFixedUint16(uint16(statusInAutocommit))
	w.WriteFixedUint16(uint16(caps >> 16))
	w.WriteByte(21)
	w.WriteZero(10)
	w.WriteBytes([]byte("BBBBBBBBBBBB"))
	w.WriteByte(0)
	w.WriteNulString(plugin)
	if err := fc.writePacket(w.Bytes()); err != nil {
		t.Fatalf("sendHandshakeWithPlugin: %v", err)
	}
}

func TestDialAndAuthenticateCachingSHA2FastAuth(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fc := newFrameCodec(server)
		sendHandshakeWithPlugin(t, fc, authCachingSHA2)
		if _, err := fc.readPacket(); err != nil {
			t.Errorf("reading handshake response: %v", err)
			return
		}
		fastAuth := newPayloadWriter()
		fastAuth.WriteByte(iAuthMoreData)
		fastAuth.WriteByte(cachingSHA2FastAuthSuccess)
		if err := fc.writePacket(fastAuth.Bytes()); err != nil {
			t.Errorf("writing fast-auth-success: %v", err)
			return
		}
		ok := newPayloadWriter()
		ok.WriteByte(iOK)
		ok.WriteLenencInt(0)
		ok.WriteLenencInt(0)
		ok.WriteFixedUint16(uint16(statusInAutocommit))
		ok.WriteFixedUint16(0)
		if err := fc.writePacket(ok.Bytes()); err != nil {
			t.Errorf("writing OK: %v", err)
		}
	}()

	params := &ConnectionParams{Host: "ignored", Username: "u", Password: "p", ConnectTimeout: time.Second}
	est, err := dialAndAuthenticate(context.Background(), testPipeConnector{conn: client}, params)
	if err != nil {
		t.Fatalf("dialAndAuthenticate: %v", err)
	}
	if est.threadID != 42 {
		t.Fatalf("got threadID %d, want 42", est.threadID)
	}
	<-done
}

func TestDialAndAuthenticateSwitchesPlugin(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	newScramble := []byte("0123456789ABCDEFGHIJ")
	done := make(chan struct{})
	go func() {
		defer close(done)
		fc := newFrameCodec(server)
		sendHandshakeWithPlugin(t, fc, authNativePassword)
		if _, err := fc.readPacket(); err != nil {
			t.Errorf("reading handshake response: %v", err)
			return
		}

		switchReq := newPayloadWriter()
		switchReq.WriteByte(0xfe)
		switchReq.WriteNulString(authCachingSHA2)
		switchReq.WriteBytes(newScramble)
		switchReq.WriteByte(0)
		if err := fc.writePacket(switchReq.Bytes()); err != nil {
			t.Errorf("writing auth switch request: %v", err)
			return
		}

		if _, err := fc.readPacket(); err != nil {
			t.Errorf("reading switched auth response: %v", err)
			return
		}

		fastAuth := newPayloadWriter()
		fastAuth.WriteByte(iAuthMoreData)
		fastAuth.WriteByte(cachingSHA2FastAuthSuccess)
		if err := fc.writePacket(fastAuth.Bytes()); err != nil {
			t.Errorf("writing fast-auth-success: %v", err)
			return
		}
		ok := newPayloadWriter()
		ok.WriteByte(iOK)
		ok.WriteLenencInt(0)
		ok.WriteLenencInt(0)
		ok.WriteFixedUint16(uint16(statusInAutocommit))
		ok.WriteFixedUint16(0)
		if err := fc.writePacket(ok.Bytes()); err != nil {
			t.Errorf("writing OK: %v", err)
		}
	}()

	params := &ConnectionParams{Host: "ignored", Username: "u", Password: "p", ConnectTimeout: time.Second}
	_, err := dialAndAuthenticate(context.Background(), testPipeConnector{conn: client}, params)
	if err != nil {
		t.Fatalf("dialAndAuthenticate: %v", err)
	}
	<-done
}

func TestDialAndAuthenticateRejectsErrPacket(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fc := newFrameCodec(server)
		sendHandshakeWithPlugin(t, fc, authNativePassword)
		if _, err := fc.readPacket(); err != nil {
			t.Errorf("reading handshake response: %v", err)
			return
		}
		errPkt := newPayloadWriter()
		errPkt.WriteByte(iERR)
		errPkt.WriteFixedUint16(1045)
		errPkt.WriteByte('#')
		errPkt.WriteBytes([]byte("28000"))
		errPkt.WriteBytes([]byte("Access denied"))
		if err := fc.writePacket(errPkt.Bytes()); err != nil {
			t.Errorf("writing ERR: %v", err)
		}
	}()

	params := &ConnectionParams{Host: "ignored", Username: "u", Password: "wrong", ConnectTimeout: time.Second}
	_, err := dialAndAuthenticate(context.Background(), testPipeConnector{conn: client}, params)
	if err == nil {
		t.Fatal("expected an error for a rejected handshake")
	}
	<-done
}

package mysql

import (
	"context"
	"crypto/tls"
	"net"
	"testing"
	"time"
)

// testQueueConnector hands out a fixed sequence of pre-established
// connections, one per Connect call: the first is the primary
// connection, later ones are the short-lived side channels Cancel opens
// to run KILL QUERY.
type testQueueConnector struct {
	conns []net.Conn
	next  int
}

func (q *testQueueConnector) Connect(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	c := q.conns[q.next]
	q.next++
	return c, nil
}

func (q *testQueueConnector) EnableEncryption(nc net.Conn, cfg *tls.Config, serverName string) (net.Conn, error) {
	return nc, nil
}

func TestConnectionCancelKillsInFlightQuery(t *testing.T) {
	primaryClient, primaryServer := net.Pipe()
	sideClient, sideServer := net.Pipe()
	t.Cleanup(func() {
		primaryClient.Close()
		primaryServer.Close()
		sideClient.Close()
		sideServer.Close()
	})

	connector := &testQueueConnector{conns: []net.Conn{primaryClient, sideClient}}

	primarySrv := newFakeServer(primaryServer)
	handshakeDone := make(chan struct{})
	go func() {
		primarySrv.sendHandshake(t)
		primarySrv.readHandshakeResponse(t)
		primarySrv.sendOK(t)
		close(handshakeDone)
	}()

	params := &ConnectionParams{
		Host: "ignored", Port: 0, Username: "u", Password: "p",
		ConnectTimeout:               time.Second,
		EnableServerSideCancellation: true,
		KillTimeoutSeconds:           2,
	}
	conn, err := Connect(context.Background(), params, connector)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	<-handshakeDone

	queryBlocked := make(chan struct{})
	killSeen := make(chan struct{})
	go func() {
		primarySrv.readCommand(t) // the SELECT SLEEP query
		close(queryBlocked)
		<-killSeen
		// The killed query's own response: an ERR packet unblocks
		// doQuery's pending readPacket call.
		w := newPayloadWriter()
		w.WriteByte(iERR)
		w.WriteFixedUint16(1317)
		w.WriteByte('#')
		w.WriteBytes([]byte("70100"))
		w.WriteBytes([]byte("Query execution was interrupted"))
		primarySrv.fc.writePacket(w.Bytes())
	}()

	go func() {
		sideSrv := newFakeServer(sideServer)
		sideSrv.sendHandshake(t)
		sideSrv.readHandshakeResponse(t)
		sideSrv.sendOK(t)
		sideSrv.readCommand(t) // KILL QUERY <threadID>
		close(killSeen)
		sideSrv.sendOK(t)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	queryErr := make(chan error, 1)
	go func() {
		_, err := conn.Query(ctx, "SELECT SLEEP(5)")
		queryErr <- err
	}()

	select {
	case <-queryBlocked:
	case <-time.After(2 * time.Second):
		t.Fatal("query never reached the fake server")
	}

	select {
	case err := <-queryErr:
		if err == nil {
			t.Fatal("expected the query to fail once killed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("query never returned after cancellation")
	}
	if !conn.WasCancelled() {
		t.Fatal("expected WasCancelled to be true")
	}
}

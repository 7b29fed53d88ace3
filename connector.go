package mysql

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Connector opens the transport a Connection speaks the wire protocol
// over, and upgrades it to TLS mid-stream for the SSL capability
// exchange (spec §4.E: the handshake response's CLIENT_SSL flag is
// followed immediately by a second, encrypted handshake response on
// the same socket). Tests substitute a Connector backed by net.Pipe.
type Connector interface {
	Connect(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error)
	EnableEncryption(nc net.Conn, cfg *tls.Config, serverName string) (net.Conn, error)
}

// tcpConnector is the default Connector: plain TCP, optionally upgraded
// to TLS.
type tcpConnector struct{}

// NewTCPConnector returns the default TCP/TLS Connector.
func NewTCPConnector() Connector { return tcpConnector{} }

func (tcpConnector) Connect(ctx context.Context, host string, port int, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	addr := fmt.Sprintf("%s:%d", host, port)
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	return nc, nil
}

func (tcpConnector) EnableEncryption(nc net.Conn, cfg *tls.Config, serverName string) (net.Conn, error) {
	tlsCfg := cfg
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	} else if tlsCfg.ServerName == "" {
		clone := tlsCfg.Clone()
		clone.ServerName = serverName
		tlsCfg = clone
	}
	tc := tls.Client(nc, tlsCfg)
	if err := tc.Handshake(); err != nil {
		return nil, &HandshakeError{Reason: "TLS handshake failed", Cause: err}
	}
	return tc, nil
}

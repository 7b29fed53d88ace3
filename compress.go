package mysql

import (
	"bytes"
	"compress/zlib"
	"io"
	"net"
)

// compressThreshold is the minimum uncompressed payload size MySQL's
// compressed protocol actually compresses; shorter packets are sent
// with a 0 uncompressed-length field meaning "not compressed" (spec:
// MODULE ADDITIONS, CLIENT_COMPRESS).
const compressThreshold = 50

// compressedConn wraps a net.Conn with the CLIENT_COMPRESS framing: a
// 7-byte header (3-byte compressed length, 1-byte sequence, 3-byte
// uncompressed length) in front of every zlib-compressed frame.
type compressedConn struct {
	net.Conn
	seq uint8

	readBuf bytes.Buffer
}

func newCompressedConn(nc net.Conn) *compressedConn {
	return &compressedConn{Conn: nc}
}

func (c *compressedConn) Read(p []byte) (int, error) {
	for c.readBuf.Len() == 0 {
		if err := c.readFrame(); err != nil {
			return 0, err
		}
	}
	return c.readBuf.Read(p)
}

func (c *compressedConn) readFrame() error {
	hdr := make([]byte, 7)
	if _, err := io.ReadFull(c.Conn, hdr); err != nil {
		return err
	}
	compLen := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
	uncompLen := int(hdr[4]) | int(hdr[5])<<8 | int(hdr[6])<<16

	body := make([]byte, compLen)
	if _, err := io.ReadFull(c.Conn, body); err != nil {
		return err
	}

	if uncompLen == 0 {
		c.readBuf.Write(body)
		return nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return &ProtocolError{Reason: "malformed compressed frame: " + err.Error()}
	}
	defer zr.Close()
	if _, err := io.Copy(&c.readBuf, zr); err != nil {
		return &ProtocolError{Reason: "malformed compressed frame: " + err.Error()}
	}
	return nil
}

// Write compresses p (when it's large enough to be worth it) and wraps
// it in one compressed-protocol frame.
func (c *compressedConn) Write(p []byte) (int, error) {
	if len(p) < compressThreshold {
		hdr := compressHeader(len(p), 0, c.seq)
		c.seq++
		if _, err := c.Conn.Write(hdr); err != nil {
			return 0, err
		}
		if _, err := c.Conn.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(p); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}

	hdr := compressHeader(compressed.Len(), len(p), c.seq)
	c.seq++
	if _, err := c.Conn.Write(hdr); err != nil {
		return 0, err
	}
	if _, err := c.Conn.Write(compressed.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func compressHeader(compLen, uncompLen int, seq uint8) []byte {
	return []byte{
		byte(compLen), byte(compLen >> 8), byte(compLen >> 16),
		seq,
		byte(uncompLen), byte(uncompLen >> 8), byte(uncompLen >> 16),
	}
}

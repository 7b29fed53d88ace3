package mysql

import "net"

// frameCodec reads and writes MySQL packets (3-byte length + 1-byte
// sequence id + payload) over a net.Conn, reassembling payloads split
// across multiple frames and rejecting out-of-order sequence ids (spec
// §4.A, invariants 3 and 5).
//
// A frameCodec is owned by exactly one Connection and is never used
// concurrently — commands are strictly serialized (spec §5) — so it
// keeps no locks of its own.
type frameCodec struct {
	nc    net.Conn
	rs    *readScratch
	ws    *writeScratch
	seq   uint8
}

func newFrameCodec(nc net.Conn) *frameCodec {
	return &frameCodec{
		nc:  nc,
		rs:  newReadScratch(),
		ws:  newWriteScratch(nc),
		seq: 0,
	}
}

// resetSequence resets the sequence counter to 0, as required
// immediately before writing the first frame of a new client-initiated
// command (spec §3).
func (f *frameCodec) resetSequence() { f.seq = 0 }

// readPacket reads one logical packet, transparently reassembling any
// 0xFFFFFF-length continuation frames (spec §4.A). It returns
// ProtocolError on a sequence id mismatch.
func (f *frameCodec) readPacket() ([]byte, error) {
	var whole []byte
	for {
		hdr, err := f.rs.readN(f.nc, 4)
		if err != nil {
			return nil, err
		}
		length := int(hdr[0]) | int(hdr[1])<<8 | int(hdr[2])<<16
		seq := hdr[3]
		if seq != f.seq {
			return nil, &ProtocolError{Reason: "packet sequence mismatch"}
		}
		f.seq++

		if length == 0 {
			if whole == nil {
				return nil, &ProtocolError{Reason: "zero-length packet with no predecessor"}
			}
			return whole, nil
		}

		body, err := f.rs.readN(f.nc, length)
		if err != nil {
			return nil, err
		}

		if length < maxPacketSize {
			if whole == nil {
				// Common case: no continuation, avoid the extra copy.
				out := make([]byte, length)
				copy(out, body)
				return out, nil
			}
			return append(whole, body...), nil
		}

		whole = append(whole, body...)
	}
}

// writePacket writes payload as one or more frames, splitting it at
// maxPacketSize boundaries and incrementing the sequence id on each
// frame (spec §4.A). payload must have 4 bytes of free header space at
// its front (as payloadWriter.Bytes() provides).
func (f *frameCodec) writePacket(payload []byte) error {
	data := payload
	pktLen := len(data) - 4

	for {
		var size int
		if pktLen >= maxPacketSize {
			data[0], data[1], data[2] = 0xff, 0xff, 0xff
			size = maxPacketSize
		} else {
			data[0] = byte(pktLen)
			data[1] = byte(pktLen >> 8)
			data[2] = byte(pktLen >> 16)
			size = pktLen
		}
		data[3] = f.seq

		if _, err := f.nc.Write(data[:4+size]); err != nil {
			return err
		}
		f.seq++

		if size != maxPacketSize {
			return nil
		}
		pktLen -= size
		data = data[size:]
	}
}

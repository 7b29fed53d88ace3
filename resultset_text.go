package mysql

// textResultSetReader reads the rows phase of a text protocol result
// set (spec §4.D): rows → terminal OK/EOF. The header, column
// definitions and their EOF (unless CLIENT_DEPRECATE_EOF) are read by
// the caller before the reader is built. All state lives in the
// struct, not on the Go call stack, so a caller can read one row at a
// time without the reader holding a goroutine of its own; there is no
// reset, and a new reader is built for every result set.
type textResultSetReader struct {
	fc         *frameCodec
	caps       capabilityFlag
	columns    []ColumnDefinition
	done       bool
	finalOK    *OKPacket
}

func newTextResultSetReader(fc *frameCodec, caps capabilityFlag, columns []ColumnDefinition) *textResultSetReader {
	return &textResultSetReader{fc: fc, caps: caps, columns: columns}
}

// next reads and decodes the next row, or returns (nil, nil, true) when
// the result set is exhausted, leaving the terminal OK packet in r.finalOK.
func (r *textResultSetReader) next() (Row, error, bool) {
	if r.done {
		return nil, nil, true
	}
	pkt, err := r.fc.readPacket()
	if err != nil {
		return nil, err, false
	}
	if len(pkt) == 0 {
		return nil, &ProtocolError{Reason: "empty result-set row packet"}, false
	}

	if isEOFOrOKTerminator(pkt, r.caps) {
		ok, err := decodeOKorEOF(pkt, r.caps)
		if err != nil {
			return nil, err, false
		}
		r.done = true
		r.finalOK = ok
		return nil, nil, true
	}
	if pkt[0] == iERR {
		return nil, decodeErrPacket(pkt), false
	}

	row, err := decodeTextRow(pkt, r.columns)
	if err != nil {
		return nil, err, false
	}
	return row, nil, false
}

// isEOFOrOKTerminator reports whether pkt is the row-terminating
// marker. CLIENT_DEPRECATE_EOF only changes how the terminal payload's
// fields are parsed (decodeOKorEOF), not which marker/length identifies
// it: the terminator is always leading 0xfe with length < 9, the same
// test an OK_Packet's own marker-selection rule uses to distinguish
// itself from a too-long packet that merely starts with 0xfe. A
// leading 0x00 is never a terminator — every binary-protocol row
// begins with a mandatory 0x00 header byte, so treating it as one here
// would swallow every row once DEPRECATE_EOF is negotiated.
func isEOFOrOKTerminator(pkt []byte, caps capabilityFlag) bool {
	return pkt[0] == iEOF && len(pkt) < 9
}

// decodeTextRow decodes one Text-protocol ResultsetRow: every column is
// either NULL (0xfb) or a length-encoded string, copied verbatim — no
// type coercion happens here (spec §4.D: the binary protocol owns typed
// decoding).
func decodeTextRow(pkt []byte, columns []ColumnDefinition) (Row, error) {
	row := make(Row, len(columns))
	r := newPayloadReader(pkt)
	for i := range columns {
		data, isNull, err := r.ReadLenencString()
		if err != nil {
			return nil, err
		}
		if isNull {
			row[i] = nil
			continue
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		row[i] = buf
	}
	return row, nil
}

// decodeOKorEOF parses the trailing OK_Packet or EOF_Packet of a result
// set, interpreting the shared status-flags/warnings tail (spec §3).
func decodeOKorEOF(pkt []byte, caps capabilityFlag) (*OKPacket, error) {
	r := newPayloadReader(pkt)
	marker, _ := r.ReadByte()

	if marker == iEOF && caps&clientDeprecateEOF == 0 {
		warnings, _ := r.ReadFixedUint16()
		status, _ := r.ReadFixedUint16()
		return &OKPacket{Warnings: warnings, StatusFlags: statusFlag(status)}, nil
	}

	ok := &OKPacket{}
	affected, _, err := r.ReadLenencInt()
	if err != nil {
		return nil, err
	}
	ok.AffectedRows = affected

	lastID, _, err := r.ReadLenencInt()
	if err != nil {
		return nil, err
	}
	ok.LastInsertID = lastID

	status, _ := r.ReadFixedUint16()
	ok.StatusFlags = statusFlag(status)
	warnings, _ := r.ReadFixedUint16()
	ok.Warnings = warnings
	if r.Len() > 0 {
		info, _, _ := r.ReadLenencString()
		ok.Info = string(info)
	}
	return ok, nil
}

// decodeErrPacket parses an ERR_Packet into a *QueryError (spec §3).
func decodeErrPacket(pkt []byte) error {
	r := newPayloadReader(pkt)
	r.ReadByte() // 0xff marker
	code, _ := r.ReadFixedUint16()
	qe := &QueryError{Code: code}
	if r.Len() > 0 && r.Bytes()[0] == '#' {
		r.ReadByte()
		state, _ := r.ReadFixed(5)
		qe.State = string(state)
	}
	qe.Message = string(r.ReadRestOfPacket())
	return qe
}

package mysql

import "math"

// handshakeV10 is the decoded Protocol::HandshakeV10 packet (spec §4.E).
type handshakeV10 struct {
	ServerVersion      string
	ConnectionID       uint32
	Scramble           []byte
	ServerCapabilities capabilityFlag
	ServerCharset      byte
	ServerStatus       statusFlag
	AuthPluginName     string
}

func readHandshakeV10(payload []byte) (*handshakeV10, error) {
	r := newPayloadReader(payload)

	protoVersion, ok := r.ReadByte()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated handshake: protocol version"}
	}
	if protoVersion < minProtocolVersion {
		return nil, &HandshakeError{Reason: "unsupported protocol version"}
	}

	h := &handshakeV10{}
	var err error
	h.ServerVersion, err = r.ReadNulString()
	if err != nil {
		return nil, err
	}

	connID, ok := r.ReadFixedUint32()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated handshake: connection id"}
	}
	h.ConnectionID = connID

	part1, ok := r.ReadFixed(8)
	if !ok {
		return nil, &ProtocolError{Reason: "truncated handshake: scramble part 1"}
	}
	if _, ok := r.ReadByte(); !ok { // filler
		return nil, &ProtocolError{Reason: "truncated handshake: filler"}
	}

	capLow, ok := r.ReadFixedUint16()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated handshake: capability flags (low)"}
	}

	if r.Len() > 0 {
		charset, _ := r.ReadByte()
		h.ServerCharset = charset
		status, _ := r.ReadFixedUint16()
		h.ServerStatus = statusFlag(status)
		capHigh, _ := r.ReadFixedUint16()
		h.ServerCapabilities = capabilityFlag(capLow) | capabilityFlag(capHigh)<<16

		scrambleLen, _ := r.ReadByte()
		_ = scrambleLen
		r.ReadFixed(10) // reserved

		var part2 []byte
		if h.ServerCapabilities&clientSecureConnection != 0 {
			n := 13
			p2, ok := r.ReadFixed(n)
			if ok {
				part2 = p2[:len(p2)-1] // drop trailing NUL
			}
		}
		h.Scramble = normalizeScramble(part1, part2)

		if h.ServerCapabilities&clientPluginAuth != 0 {
			name, _ := r.ReadNulString()
			h.AuthPluginName = name
		}
	} else {
		h.ServerCapabilities = capabilityFlag(capLow)
		h.Scramble = normalizeScramble(part1, nil)
	}

	if h.AuthPluginName == "" {
		h.AuthPluginName = authNativePassword
	}
	return h, nil
}

// buildHandshakeResponse41 encodes Protocol::HandshakeResponse41 (spec
// §4.E).
func buildHandshakeResponse41(h *handshakeV10, params *ConnectionParams, authResponse []byte, clientCaps capabilityFlag) []byte {
	w := newPayloadWriter()
	w.WriteFixedUint32(uint32(clientCaps))
	w.WriteFixedUint32(1 << 24) // max packet size, 16MB
	w.WriteByte(params.charset())
	w.WriteZero(23)
	w.WriteNulString(params.Username)

	if clientCaps&clientPluginAuthLenEncClientData != 0 {
		w.WriteLenencInt(uint64(len(authResponse)))
		w.WriteBytes(authResponse)
	} else {
		w.WriteByte(byte(len(authResponse)))
		w.WriteBytes(authResponse)
	}

	if clientCaps&clientConnectWithDB != 0 {
		w.WriteNulString(params.Database)
	}
	if clientCaps&clientPluginAuth != 0 {
		w.WriteNulString(h.AuthPluginName)
	}
	return w.Bytes()
}

// buildComQuery encodes COM_QUERY (spec §3).
func buildComQuery(query string) []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comQuery))
	w.WriteBytes([]byte(query))
	return w.Bytes()
}

// buildComPing encodes COM_PING.
func buildComPing() []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comPing))
	return w.Bytes()
}

// buildComQuit encodes COM_QUIT.
func buildComQuit() []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comQuit))
	return w.Bytes()
}

// buildComResetConnection encodes COM_RESET_CONNECTION (spec: MODULE
// ADDITIONS, session reset on pool release).
func buildComResetConnection() []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comResetConn))
	return w.Bytes()
}

// buildComInitDB encodes COM_INIT_DB.
func buildComInitDB(schema string) []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comInitDB))
	w.WriteBytes([]byte(schema))
	return w.Bytes()
}

// buildComStmtPrepare encodes COM_STMT_PREPARE.
func buildComStmtPrepare(query string) []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comStmtPrepare))
	w.WriteBytes([]byte(query))
	return w.Bytes()
}

// buildComStmtClose encodes COM_STMT_CLOSE.
func buildComStmtClose(stmtID uint32) []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comStmtClose))
	w.WriteFixedUint32(stmtID)
	return w.Bytes()
}

const paramFlagUnsigned = 0x80

// buildComStmtExecute encodes COM_STMT_EXECUTE (spec §4.C): a null
// bitmap over the parameters, a new-params-bound-flag byte, then
// type/flag pairs and values for every parameter when that flag is 1.
// cursorFlag selects CURSOR_TYPE_READ_ONLY for streaming executes.
func buildComStmtExecute(stmtID uint32, params []Param, cursorFlag byte) []byte {
	w := newPayloadWriter()
	w.WriteByte(byte(comStmtExecute))
	w.WriteFixedUint32(stmtID)
	w.WriteByte(cursorFlag)
	w.WriteFixedUint32(1) // iteration-count, always 1

	if len(params) > 0 {
		bitmapLen := (len(params) + 7) / 8
		bitmap := make([]byte, bitmapLen)
		for i, p := range params {
			if p.kind == paramNull {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		w.WriteBytes(bitmap)
		w.WriteByte(1) // new-params-bound-flag

		for _, p := range params {
			typ, flag := paramWireType(p)
			w.WriteByte(typ)
			w.WriteByte(flag)
		}
		for _, p := range params {
			writeParamValue(w, p)
		}
	}
	return w.Bytes()
}

func paramWireType(p Param) (typ byte, flag byte) {
	switch p.kind {
	case paramNull:
		return byte(fieldTypeNULL), 0
	case paramFloat:
		return byte(fieldTypeDouble), 0
	case paramBytes:
		return byte(fieldTypeVarString), 0
	case paramInt:
		f := byte(0)
		if p.unsig {
			f = paramFlagUnsigned
		}
		return byte(fieldTypeLongLong), f
	}
	return byte(fieldTypeNULL), 0
}

func writeParamValue(w *payloadWriter, p Param) {
	switch p.kind {
	case paramNull:
		// nothing: NULL-ness was carried in the bitmap.
	case paramFloat:
		w.WriteFixedUint64(math.Float64bits(p.f))
	case paramBytes:
		w.WriteLenencString(p.b)
	case paramInt:
		if p.unsig {
			w.WriteFixedUint64(p.u)
		} else {
			w.WriteFixedUint64(uint64(p.i))
		}
	}
}

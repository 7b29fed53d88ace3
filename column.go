package mysql

// readColumnDefinition decodes one Protocol::ColumnDefinition41 packet
// (spec §3, §4.D).
func readColumnDefinition(payload []byte) (ColumnDefinition, error) {
	r := newPayloadReader(payload)
	var c ColumnDefinition
	var err error

	fields := []*string{&c.Catalog, &c.Schema, &c.Table, &c.OrgTable, &c.Name, &c.OrgName}
	for _, f := range fields {
		b, isNull, e := r.ReadLenencString()
		if e != nil {
			return c, e
		}
		if isNull {
			return c, &ProtocolError{Reason: "unexpected NULL in column definition"}
		}
		*f = string(b)
	}

	// length of fixed-length fields, always 0x0c.
	if _, _, err = r.ReadLenencInt(); err != nil {
		return c, err
	}

	charset, ok := r.ReadFixedUint16()
	if !ok {
		return c, &ProtocolError{Reason: "truncated column definition: charset"}
	}
	c.Charset = charset

	byteLen, ok := r.ReadFixedUint32()
	if !ok {
		return c, &ProtocolError{Reason: "truncated column definition: byte length"}
	}
	c.ByteLength = byteLen

	typeByte, ok := r.ReadByte()
	if !ok {
		return c, &ProtocolError{Reason: "truncated column definition: type"}
	}
	c.TypeCode = fieldType(typeByte)

	flags, ok := r.ReadFixedUint16()
	if !ok {
		return c, &ProtocolError{Reason: "truncated column definition: flags"}
	}
	c.Flags = fieldFlag(flags)

	decimals, ok := r.ReadByte()
	if !ok {
		return c, &ProtocolError{Reason: "truncated column definition: decimals"}
	}
	c.Decimals = decimals

	return c, nil
}

// readColumns reads count ColumnDefinition41 packets from fc in
// sequence (spec §4.D, result-set header phase).
func readColumns(fc *frameCodec, count int) ([]ColumnDefinition, error) {
	cols := make([]ColumnDefinition, count)
	for i := 0; i < count; i++ {
		pkt, err := fc.readPacket()
		if err != nil {
			return nil, err
		}
		c, err := readColumnDefinition(pkt)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

// nullBitmapOffset is the fixed offset of the result-row null bitmap in
// COM_STMT_EXECUTE binary result rows (spec §9, Open Question: resolved
// as a constant +2, matching the reference client rather than varying
// by column count parity).
const nullBitmapOffset = 2

// nullBitmapSize returns the byte length of a null bitmap covering n
// columns, using offset bits reserved at the front per nullBitmapOffset.
func nullBitmapSize(n int) int {
	return (n + 7 + nullBitmapOffset) / 8
}

func nullBitmapIsSet(bitmap []byte, col int) bool {
	bytePos := (col + nullBitmapOffset) / 8
	bitPos := uint((col + nullBitmapOffset) % 8)
	if bytePos >= len(bitmap) {
		return false
	}
	return bitmap[bytePos]&(1<<bitPos) != 0
}

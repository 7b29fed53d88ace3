package mysql

import (
	"fmt"
	"math"
)

// binaryResultSetReader drives the binary protocol result-set state
// machine used by prepared-statement execution (spec §4.D). Structure
// mirrors textResultSetReader; only row decoding differs.
type binaryResultSetReader struct {
	fc      *frameCodec
	caps    capabilityFlag
	columns []ColumnDefinition
	done    bool
	finalOK *OKPacket
}

func newBinaryResultSetReader(fc *frameCodec, caps capabilityFlag, columns []ColumnDefinition) *binaryResultSetReader {
	return &binaryResultSetReader{fc: fc, caps: caps, columns: columns}
}

func (r *binaryResultSetReader) next() (Row, error, bool) {
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
	if pkt[0] != 0x00 {
		return nil, &ProtocolError{Reason: "binary row missing 0x00 packet header"}, false
	}

	row, err := decodeBinaryRow(pkt, r.columns)
	if err != nil {
		return nil, err, false
	}
	return row, nil, false
}

// decodeBinaryRow decodes a Binary Protocol Resultset Row (spec §4.D):
// a leading 0x00 byte, a null bitmap offset by nullBitmapOffset bits,
// then one typed value per non-NULL column in column order.
func decodeBinaryRow(pkt []byte, columns []ColumnDefinition) (Row, error) {
	r := newPayloadReader(pkt)
	r.ReadByte() // 0x00 packet header

	bitmapLen := nullBitmapSize(len(columns))
	bitmap, ok := r.ReadFixed(bitmapLen)
	if !ok {
		return nil, &ProtocolError{Reason: "truncated binary row null bitmap"}
	}

	row := make(Row, len(columns))
	for i, col := range columns {
		if nullBitmapIsSet(bitmap, i) {
			row[i] = nil
			continue
		}
		v, err := decodeBinaryValue(r, col)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// decodeBinaryValue decodes one column value per its wire type (spec
// §4.D, §8 edge cases: MEDIUMINT/INT24 sign extension, and the
// variable-length DATE/TIME/DATETIME encodings below).
func decodeBinaryValue(r *payloadReader, col ColumnDefinition) (any, error) {
	switch col.TypeCode {
	case fieldTypeTiny:
		b, ok := r.ReadByte()
		if !ok {
			return nil, truncated("TINY")
		}
		if col.Unsigned() {
			return uint64(b), nil
		}
		return int64(int8(b)), nil

	case fieldTypeShort, fieldTypeYear:
		v, ok := r.ReadFixedUint16()
		if !ok {
			return nil, truncated("SHORT")
		}
		if col.TypeCode == fieldTypeYear {
			return int64(v), nil
		}
		if col.Unsigned() {
			return uint64(v), nil
		}
		return int64(int16(v)), nil

	case fieldTypeInt24, fieldTypeLong:
		v, ok := r.ReadFixedUint32()
		if !ok {
			return nil, truncated("LONG")
		}
		if col.TypeCode == fieldTypeInt24 {
			// INT24 travels as a 4-byte field but is sign-extended from
			// its 24-bit range (spec §8).
			if col.Unsigned() {
				return uint64(v & 0xffffff), nil
			}
			signed := int32(v << 8) >> 8
			return int64(signed), nil
		}
		if col.Unsigned() {
			return uint64(v), nil
		}
		return int64(int32(v)), nil

	case fieldTypeLongLong:
		v, ok := r.ReadFixedUint64()
		if !ok {
			return nil, truncated("LONGLONG")
		}
		if col.Unsigned() {
			return v, nil
		}
		return int64(v), nil

	case fieldTypeFloat:
		v, ok := r.ReadFixedUint32()
		if !ok {
			return nil, truncated("FLOAT")
		}
		return float64(math.Float32frombits(v)), nil

	case fieldTypeDouble:
		v, ok := r.ReadFixedUint64()
		if !ok {
			return nil, truncated("DOUBLE")
		}
		return math.Float64frombits(v), nil

	case fieldTypeDate, fieldTypeDateTime, fieldTypeTimestamp:
		return decodeBinaryTemporal(r, false)

	case fieldTypeTime:
		return decodeBinaryTemporal(r, true)

	default:
		// DECIMAL/NEWDECIMAL/JSON/BIT/ENUM/SET/blob/string all travel as
		// a length-encoded string on the wire; charset 63 (binary) is the
		// only one spec §4.D treats as opaque bytes rather than text.
		data, isNull, err := r.ReadLenencString()
		if err != nil {
			return nil, err
		}
		if isNull {
			return nil, nil
		}
		if col.Charset == binaryCharsetOpaque {
			buf := make([]byte, len(data))
			copy(buf, data)
			return buf, nil
		}
		return string(data), nil
	}
}

func truncated(what string) error {
	return &ProtocolError{Reason: "truncated binary column value: " + what}
}

// decodeBinaryTemporal decodes the variable-length DATE/DATETIME or
// TIME field per spec §4.D/§8 (a length byte of 0, 4, 7, 8, or 11/12
// selects how many of the subsequent fields are present) and formats
// it into the ISO-8601-like string (DATE/DATETIME/TIMESTAMP) or
// sign-and-fractional-seconds string (TIME) spec §4.D mandates. A
// zero-length DATE decodes to "0000-00-00"; a zero-length TIME decodes
// to "00:00:00" (spec §8, property 11).
func decodeBinaryTemporal(r *payloadReader, isTime bool) (any, error) {
	n, ok := r.ReadByte()
	if !ok {
		return nil, truncated("temporal length")
	}
	if n == 0 {
		if isTime {
			return "00:00:00", nil
		}
		return "0000-00-00", nil
	}

	if isTime {
		neg, ok := r.ReadByte()
		if !ok {
			return nil, truncated("TIME sign")
		}
		days, ok := r.ReadFixedUint32()
		if !ok {
			return nil, truncated("TIME days")
		}
		hh, ok1 := r.ReadByte()
		mm, ok2 := r.ReadByte()
		ss, ok3 := r.ReadByte()
		if !ok1 || !ok2 || !ok3 {
			return nil, truncated("TIME hms")
		}
		sign := ""
		if neg != 0 {
			sign = "-"
		}
		totalHours := int(days)*24 + int(hh)
		s := fmt.Sprintf("%s%02d:%02d:%02d", sign, totalHours, mm, ss)
		if n >= 12 {
			us, ok := r.ReadFixedUint32()
			if !ok {
				return nil, truncated("TIME microseconds")
			}
			s += fmt.Sprintf(".%06d", us)
		}
		return s, nil
	}

	year, ok := r.ReadFixedUint16()
	if !ok {
		return nil, truncated("DATE year")
	}
	month, ok1 := r.ReadByte()
	day, ok2 := r.ReadByte()
	if !ok1 || !ok2 {
		return nil, truncated("DATE month/day")
	}
	s := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	if n >= 7 {
		hh, ok1 := r.ReadByte()
		mm, ok2 := r.ReadByte()
		ss, ok3 := r.ReadByte()
		if !ok1 || !ok2 || !ok3 {
			return nil, truncated("DATETIME hms")
		}
		s += fmt.Sprintf(" %02d:%02d:%02d", hh, mm, ss)
	}
	if n >= 11 {
		us, ok := r.ReadFixedUint32()
		if !ok {
			return nil, truncated("DATETIME microseconds")
		}
		s += fmt.Sprintf(".%06d", us)
	}
	return s, nil
}

package mysql

import (
	"context"
	"sync/atomic"
	"time"
)

// PreparedStatement is a COM_STMT_PREPARE handle bound to the
// Connection that created it (spec §4.F). Close is idempotent.
type PreparedStatement struct {
	conn      *Connection
	id        uint32
	numParams int
	columns   []ColumnDefinition
	closed    atomic.Bool
}

// Prepare issues COM_STMT_PREPARE and returns a handle for repeated
// execution (spec §4.F).
func (c *Connection) Prepare(ctx context.Context, query string) (*PreparedStatement, error) {
	call := schedule(c, func() (*PreparedStatement, error) { return c.doPrepare(query) })
	return await(c, ctx, call)
}

func (c *Connection) doPrepare(query string) (*PreparedStatement, error) {
	c.markInFlight()
	defer c.clearInFlight()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComStmtPrepare(query)); err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	pkt, err := c.nc.fc.readPacket()
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	if pkt[0] == iERR {
		return nil, decodeErrPacket(pkt)
	}

	ok, err := decodeStmtPrepareOK(pkt)
	if err != nil {
		return nil, err
	}

	if ok.NumParams > 0 {
		params, err := readColumns(c.nc.fc, int(ok.NumParams))
		if err != nil {
			return nil, err
		}
		if c.nc.caps&clientDeprecateEOF == 0 {
			if _, err := c.nc.fc.readPacket(); err != nil {
				return nil, err
			}
		}
		ok.ParamDefs = params
	}
	if ok.NumColumns > 0 {
		cols, err := readColumns(c.nc.fc, int(ok.NumColumns))
		if err != nil {
			return nil, err
		}
		if c.nc.caps&clientDeprecateEOF == 0 {
			if _, err := c.nc.fc.readPacket(); err != nil {
				return nil, err
			}
		}
		ok.ColumnDefs = cols
	}

	return &PreparedStatement{
		conn:      c,
		id:        ok.StatementID,
		numParams: int(ok.NumParams),
		columns:   ok.ColumnDefs,
	}, nil
}

func decodeStmtPrepareOK(pkt []byte) (*StmtPrepareOk, error) {
	r := newPayloadReader(pkt)
	r.ReadByte() // status, always 0x00
	id, ok := r.ReadFixedUint32()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated StmtPrepareOK: statement id"}
	}
	numCols, ok := r.ReadFixedUint16()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated StmtPrepareOK: column count"}
	}
	numParams, ok := r.ReadFixedUint16()
	if !ok {
		return nil, &ProtocolError{Reason: "truncated StmtPrepareOK: param count"}
	}
	r.ReadByte() // filler
	warnings, _ := r.ReadFixedUint16()

	return &StmtPrepareOk{
		StatementID: id,
		NumColumns:  numCols,
		NumParams:   numParams,
		Warnings:    warnings,
	}, nil
}

// NumParams returns the number of placeholders the prepared statement
// expects.
func (s *PreparedStatement) NumParams() int { return s.numParams }

// Execute binds params and runs COM_STMT_EXECUTE, buffering the whole
// result set (spec §4.F).
func (s *PreparedStatement) Execute(ctx context.Context, params ...Param) (*Result, error) {
	if s.closed.Load() {
		return nil, ErrStatementClosed
	}
	if len(params) != s.numParams {
		return nil, &PreparedStatementError{Kind: PreparedStatementParamCountMismatch, Expected: s.numParams, Got: len(params)}
	}
	call := schedule(s.conn, func() (*Result, error) { return s.doExecute(params) })
	return await(s.conn, ctx, call)
}

func (s *PreparedStatement) doExecute(params []Param) (*Result, error) {
	c := s.conn
	c.markInFlight()
	defer c.clearInFlight()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComStmtExecute(s.id, params, 0)); err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	pkt, err := c.nc.fc.readPacket()
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	if pkt[0] == iERR {
		return nil, decodeErrPacket(pkt)
	}
	if pkt[0] == iOK {
		return &Result{}, nil
	}

	numCols, _, _ := readLengthEncodedInteger(pkt)
	columns, err := readColumns(c.nc.fc, int(numCols))
	if err != nil {
		return nil, err
	}
	if c.nc.caps&clientDeprecateEOF == 0 {
		if _, err := c.nc.fc.readPacket(); err != nil {
			return nil, err
		}
	}

	reader := newBinaryResultSetReader(c.nc.fc, c.nc.caps, columns)
	res := &Result{Columns: columns}
	for {
		row, err, done := reader.next()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// cursorTypeReadOnly requests a server-side cursor for streaming
// executes, keeping the full result set off the wire until fetched
// (spec §4.G, binary protocol streaming).
const cursorTypeReadOnly = 0x01

// StreamExecute binds params and executes via a server-side cursor,
// delivering rows incrementally (spec §4.G).
func (s *PreparedStatement) StreamExecute(ctx context.Context, params ...Param) (*RowStream, error) {
	if s.closed.Load() {
		return nil, ErrStatementClosed
	}
	if len(params) != s.numParams {
		return nil, &PreparedStatementError{Kind: PreparedStatementParamCountMismatch, Expected: s.numParams, Got: len(params)}
	}

	c := s.conn
	stream := newRowStream(defaultHighWatermark, defaultLowWatermark)
	call := newCall[*RowStream]()

	job := &connJob{run: func() {
		if call.resolved.Load() {
			return
		}
		s.runStreamExecuteJob(stream, params, call)
	}}
	select {
	case c.jobCh <- job:
	case <-c.closeCh:
		call.reject(&ConnectionError{Cause: ErrPoolClosed})
	}
	return await(c, ctx, call)
}

func (s *PreparedStatement) runStreamExecuteJob(stream *RowStream, params []Param, call *Call[*RowStream]) {
	c := s.conn
	c.state.Store(int32(StateStreaming))
	c.markInFlight()
	defer c.clearInFlight()
	started := time.Now()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComStmtExecute(s.id, params, cursorTypeReadOnly)); err != nil {
		call.reject(&ConnectionError{Cause: err})
		return
	}
	pkt, err := c.nc.fc.readPacket()
	if err != nil {
		call.reject(&ConnectionError{Cause: err})
		return
	}
	if pkt[0] == iERR {
		call.reject(decodeErrPacket(pkt))
		return
	}
	if pkt[0] == iOK {
		stream.finish(StreamStats{Duration: time.Since(started), ThreadID: c.threadID}, nil)
		call.resolve(stream)
		return
	}

	numCols, _, _ := readLengthEncodedInteger(pkt)
	columns, err := readColumns(c.nc.fc, int(numCols))
	if err != nil {
		call.reject(err)
		return
	}
	if c.nc.caps&clientDeprecateEOF == 0 {
		if _, err := c.nc.fc.readPacket(); err != nil {
			call.reject(err)
			return
		}
	}

	if !call.resolve(stream) {
		stream.Close()
	}

	reader := newBinaryResultSetReader(c.nc.fc, c.nc.caps, columns)
	var count uint64
	for {
		row, err, done := reader.next()
		if err != nil {
			stream.finish(StreamStats{}, err)
			return
		}
		if done {
			stats := StreamStats{
				RowCount:    count,
				ColumnCount: len(columns),
				Duration:    time.Since(started),
				ThreadID:    c.threadID,
			}
			if reader.finalOK != nil {
				stats.Warnings = reader.finalOK.Warnings
			}
			stream.finish(stats, nil)
			return
		}
		count++
		stream.pushRow(row)
	}
}

// Close issues COM_STMT_CLOSE, releasing server-side statement
// resources. Safe to call more than once.
func (s *PreparedStatement) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	call := schedule(s.conn, func() (struct{}, error) {
		c := s.conn
		c.markInFlight()
		defer c.clearInFlight()
		c.nc.fc.resetSequence()
		// COM_STMT_CLOSE has no response packet, successful or not.
		if err := c.nc.fc.writePacket(buildComStmtClose(s.id)); err != nil {
			return struct{}{}, &ConnectionError{Cause: err}
		}
		return struct{}{}, nil
	})
	_, err := await(s.conn, ctx, call)
	return err
}

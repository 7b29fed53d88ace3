package mysql

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Connection is a single asynchronous MySQL wire connection (spec §5).
// Commands are strictly serialized through jobCh — exactly one command
// is ever in flight — which is both what the protocol requires and
// what makes frameCodec safe to use without its own locking.
type Connection struct {
	params    *ConnectionParams
	connector Connector

	nc        *establishedConn
	threadID  uint32
	id        string
	logger    Logger
	createdAt time.Time

	jobCh     chan *connJob
	closeCh   chan struct{}
	closeOnce sync.Once

	state atomic.Int32

	wasCancelled atomic.Bool
	inFlight     atomic.Pointer[inFlightInfo]
}

// inFlightInfo is published while a command is being executed against
// the wire, so Cancel (cancel.go) knows there's a live query to KILL
// rather than just a queued job to drop.
type inFlightInfo struct {
	startedAt time.Time
}

type connJob struct {
	run func()
}

// Connect dials, authenticates, and starts the command loop. The
// returned Connection is in StateReady.
func Connect(ctx context.Context, params *ConnectionParams, connector Connector) (*Connection, error) {
	if connector == nil {
		connector = NewTCPConnector()
	}
	est, err := dialAndAuthenticate(ctx, connector, params)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		params:    params,
		connector: connector,
		nc:        est,
		threadID:  est.threadID,
		id:        newCorrelationID(),
		logger:    params.logger(),
		createdAt: time.Now(),
		jobCh:     make(chan *connJob, 64),
		closeCh:   make(chan struct{}),
	}
	c.state.Store(int32(StateReady))
	go c.runLoop()
	return c, nil
}

func (c *Connection) runLoop() {
	for {
		select {
		case job := <-c.jobCh:
			job.run()
		case <-c.closeCh:
			c.drainPendingJobs()
			return
		}
	}
}

func (c *Connection) drainPendingJobs() {
	for {
		select {
		case job := <-c.jobCh:
			job.run()
		default:
			return
		}
	}
}

// State returns the Connection's current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// ThreadID returns the server-assigned connection id used for KILL
// QUERY cancellation.
func (c *Connection) ThreadID() uint32 { return c.threadID }

// WasCancelled reports whether the most recently completed command was
// ended by cancellation rather than running to completion. It is
// cleared only when the Connection is drained for pool reuse (spec:
// MODULE ADDITIONS, Pool drain-then-reuse).
func (c *Connection) WasCancelled() bool { return c.wasCancelled.Load() }

// clearCancelled resets the cancellation flag; called by the Pool
// after a successful drain (spec §4.H).
func (c *Connection) clearCancelled() { c.wasCancelled.Store(false) }

// schedule enqueues f to run on the command loop and returns a Call the
// submitter can wait on or cancel. If the Connection is already closed,
// the Call is rejected immediately.
func schedule[T any](c *Connection, f func() (T, error)) *Call[T] {
	call := newCall[T]()
	job := &connJob{run: func() {
		if call.resolved.Load() {
			return // cancelled while queued; never touch the wire.
		}
		v, err := f()
		if err != nil {
			call.reject(err)
		} else {
			call.resolve(v)
		}
	}}
	select {
	case <-c.closeCh:
		call.reject(&ConnectionError{Cause: ErrPoolClosed})
		return call
	default:
	}
	select {
	case c.jobCh <- job:
	case <-c.closeCh:
		call.reject(&ConnectionError{Cause: ErrPoolClosed})
	}
	return call
}

// await blocks on call until it resolves or ctx is cancelled; in the
// latter case it marks the call cancelled — which also triggers a
// server-side KILL QUERY if the command had already reached the wire
// (cancel.go) — and still waits for the call's final resolution so
// exactly one outcome is ever reported.
func await[T any](c *Connection, ctx context.Context, call *Call[T]) (T, error) {
	select {
	case <-call.Done():
		return call.Wait()
	case <-ctx.Done():
		c.requestCancel(call)
		<-call.Done()
		return call.Wait()
	}
}

func (c *Connection) requestCancel(cancellable interface{ cancel() }) {
	c.Cancel()
	cancellable.cancel()
}

// Query runs a text-protocol query and buffers the full result (spec
// §4.F).
func (c *Connection) Query(ctx context.Context, query string) (*Result, error) {
	call := schedule(c, func() (*Result, error) { return c.doQuery(query) })
	return await(c, ctx, call)
}

// Execute runs a non-SELECT text-protocol statement (spec §4.F).
func (c *Connection) Execute(ctx context.Context, query string) (*ExecuteResult, error) {
	call := schedule(c, func() (*ExecuteResult, error) { return c.doExecute(query) })
	return await(c, ctx, call)
}

// Ping sends COM_PING and waits for the OK response (spec §4.H, pool
// health checks).
func (c *Connection) Ping(ctx context.Context) error {
	call := schedule(c, func() (struct{}, error) {
		c.markInFlight()
		defer c.clearInFlight()
		c.nc.fc.resetSequence()
		if err := c.nc.fc.writePacket(wrapPayload([]byte{comPing})); err != nil {
			return struct{}{}, &ConnectionError{Cause: err}
		}
		pkt, err := c.nc.fc.readPacket()
		if err != nil {
			return struct{}{}, &ConnectionError{Cause: err}
		}
		if pkt[0] == iERR {
			return struct{}{}, decodeErrPacket(pkt)
		}
		return struct{}{}, nil
	})
	_, err := await(c, ctx, call)
	return err
}

// ResetSession issues COM_RESET_CONNECTION, clearing session state
// (temp tables, user vars, transaction) without the cost of a full
// reconnect (spec: MODULE ADDITIONS, Pool drain-then-reuse before
// returning a Connection to the idle set).
func (c *Connection) ResetSession(ctx context.Context) error {
	call := schedule(c, func() (struct{}, error) {
		c.markInFlight()
		defer c.clearInFlight()
		c.nc.fc.resetSequence()
		if err := c.nc.fc.writePacket(wrapPayload([]byte{comResetConn})); err != nil {
			return struct{}{}, &ConnectionError{Cause: err}
		}
		pkt, err := c.nc.fc.readPacket()
		if err != nil {
			return struct{}{}, &ConnectionError{Cause: err}
		}
		if pkt[0] == iERR {
			return struct{}{}, decodeErrPacket(pkt)
		}
		c.clearCancelled()
		return struct{}{}, nil
	})
	_, err := await(c, ctx, call)
	return err
}

// Close sends COM_QUIT and tears down the Connection; queued and
// in-flight commands are rejected with ConnectionError.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.closeCh)
		if c.nc != nil && c.nc.nc != nil {
			c.nc.fc.resetSequence()
			c.nc.fc.writePacket(wrapPayload([]byte{comQuit}))
			c.nc.nc.Close()
		}
	})
	return nil
}

func (c *Connection) markInFlight() {
	c.state.Store(int32(StateRunning))
	c.inFlight.Store(&inFlightInfo{startedAt: time.Now()})
}

func (c *Connection) clearInFlight() {
	c.inFlight.Store(nil)
	if c.State() != StateClosed {
		c.state.Store(int32(StateReady))
	}
}

// doQuery implements the COM_QUERY / result-set-header / columns / rows
// sequence for a buffering query (spec §4.D, §4.F).
func (c *Connection) doQuery(query string) (*Result, error) {
	c.markInFlight()
	defer c.clearInFlight()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComQuery(query)); err != nil {
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
		if _, err := c.nc.fc.readPacket(); err != nil { // column-definitions EOF
			return nil, err
		}
	}

	reader := newTextResultSetReader(c.nc.fc, c.nc.caps, columns)
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

// doExecute implements a non-SELECT COM_QUERY (spec §4.F).
func (c *Connection) doExecute(query string) (*ExecuteResult, error) {
	c.markInFlight()
	defer c.clearInFlight()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComQuery(query)); err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	pkt, err := c.nc.fc.readPacket()
	if err != nil {
		return nil, &ConnectionError{Cause: err}
	}
	if pkt[0] == iERR {
		return nil, decodeErrPacket(pkt)
	}
	ok, err := decodeOKorEOF(pkt, c.nc.caps)
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{AffectedRows: ok.AffectedRows, LastInsertID: ok.LastInsertID, Warnings: ok.Warnings}, nil
}

// Stream runs query and delivers rows incrementally through a
// RowStream instead of buffering the whole result set (spec §4.G). The
// returned Call resolves as soon as the column definitions are in —
// well before the result set finishes — but the command-loop goroutine
// keeps pumping rows into the stream for the rest of the job, so no
// other command can be dispatched on this Connection until the stream
// is fully drained or closed (the protocol allows only one command in
// flight at a time).
func (c *Connection) Stream(ctx context.Context, query string) (*RowStream, error) {
	stream := newRowStream(defaultHighWatermark, defaultLowWatermark)
	call := newCall[*RowStream]()

	job := &connJob{run: func() {
		if call.resolved.Load() {
			return
		}
		c.runStreamJob(stream, query, call)
	}}
	select {
	case c.jobCh <- job:
	case <-c.closeCh:
		call.reject(&ConnectionError{Cause: ErrPoolClosed})
	}
	return await(c, ctx, call)
}

func (c *Connection) runStreamJob(stream *RowStream, query string, call *Call[*RowStream]) {
	c.markInFlight()
	c.state.Store(int32(StateStreaming))
	defer c.clearInFlight()
	started := time.Now()

	c.nc.fc.resetSequence()
	if err := c.nc.fc.writePacket(buildComQuery(query)); err != nil {
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
		// Cancelled between enqueue and column read: drain the result
		// set from the wire so the next command starts framed
		// correctly, but don't deliver rows nobody will read.
		stream.Close()
	}

	reader := newTextResultSetReader(c.nc.fc, c.nc.caps, columns)
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

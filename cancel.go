package mysql

import (
	"context"
)

// Cancel aborts whatever command is currently in flight on this
// Connection by issuing KILL QUERY over a short-lived side channel
// (spec: MODULE ADDITIONS, server-side cancellation). It is a no-op if
// nothing is in flight. Safe to call from any goroutine.
func (c *Connection) Cancel() {
	if c.inFlight.Load() == nil {
		return
	}
	c.wasCancelled.Store(true)
	c.state.Store(int32(StateCancelling))
	go c.killInFlightQuery()
}

// killInFlightQuery opens a fresh authenticated connection to the same
// server and runs "KILL QUERY <threadID>" (spec: the connection being
// killed can't run its own KILL — it's blocked reading the query it's
// trying to cancel). Once the side channel has answered the KILL, the
// primary connection transitions from Cancelling to Draining until its
// blocked read returns (absorbing the now-stale query-killed error) and
// settles back to Ready; if that read has already returned, the state
// is left as it is.
func (c *Connection) killInFlightQuery() {
	ctx, cancel := context.WithTimeout(context.Background(), c.params.killTimeout())
	defer cancel()

	est, err := dialAndAuthenticate(ctx, c.connector, c.params)
	if err != nil {
		c.logger.Print("mysql: KILL QUERY side channel failed to connect:", c.id, err)
		return
	}
	defer func() {
		est.fc.resetSequence()
		est.fc.writePacket(wrapPayload([]byte{comQuit}))
		est.nc.Close()
	}()

	killStmt := "KILL QUERY " + uint32ToString(c.threadID)
	est.fc.resetSequence()
	if err := est.fc.writePacket(buildComQuery(killStmt)); err != nil {
		c.logger.Print("mysql: KILL QUERY write failed:", c.id, err)
		return
	}
	pkt, err := est.fc.readPacket()
	if err != nil {
		c.logger.Print("mysql: KILL QUERY read failed:", c.id, err)
		return
	}
	if pkt[0] == iERR {
		// Most commonly: the query already finished on its own and
		// there was nothing left to kill. Either way the primary
		// connection's own read will settle the state.
		c.logger.Print("mysql: KILL QUERY rejected:", c.id, decodeErrPacket(pkt))
	}

	c.state.CompareAndSwap(int32(StateCancelling), int32(StateDraining))
}

func uint32ToString(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

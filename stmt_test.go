package mysql

import (
	"context"
	"testing"
)

// buildColumnDefPacketForWrite mirrors buildColumnDefPacket but keeps the
// leading 4-byte header reservation writePacket needs (buildColumnDefPacket
// strips it for direct-decode tests instead).
func buildColumnDefPacketForWrite(t *testing.T, name string, typ fieldType) []byte {
	t.Helper()
	w := newPayloadWriter()
	w.WriteLenencString([]byte("def"))
	w.WriteLenencString([]byte("schema"))
	w.WriteLenencString([]byte("table"))
	w.WriteLenencString([]byte("table"))
	w.WriteLenencString([]byte(name))
	w.WriteLenencString([]byte(name))
	w.WriteLenencInt(0x0c)
	w.WriteFixedUint16(45)
	w.WriteFixedUint32(11)
	w.WriteByte(byte(typ))
	w.WriteFixedUint16(0)
	w.WriteByte(0)
	return w.Bytes()
}

func (s *fakeServer) sendStmtPrepareOK(t *testing.T, id uint32, numParams, numCols uint16) {
	t.Helper()
	w := newPayloadWriter()
	w.WriteByte(0)
	w.WriteFixedUint32(id)
	w.WriteFixedUint16(numCols)
	w.WriteFixedUint16(numParams)
	w.WriteByte(0)
	w.WriteFixedUint16(0)
	if err := s.fc.writePacket(w.Bytes()); err != nil {
		t.Fatalf("sendStmtPrepareOK: %v", err)
	}
	for i := uint16(0); i < numParams; i++ {
		pkt := buildColumnDefPacketForWrite(t, "p", fieldTypeLong)
		if err := s.fc.writePacket(pkt); err != nil {
			t.Fatal(err)
		}
	}
	for i := uint16(0); i < numCols; i++ {
		pkt := buildColumnDefPacketForWrite(t, "c", fieldTypeLong)
		if err := s.fc.writePacket(pkt); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPreparedStatementExecuteOK(t *testing.T) {
	conn, srv := setupTestConnection(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.readCommand(t) // COM_STMT_PREPARE
		srv.sendStmtPrepareOK(t, 7, 1, 0)
		srv.readCommand(t) // COM_STMT_EXECUTE
		srv.sendOK(t)
	}()

	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (?)")
	if err != nil {
		t.Fatal(err)
	}
	if stmt.NumParams() != 1 {
		t.Fatalf("got NumParams %d, want 1", stmt.NumParams())
	}

	res, err := stmt.Execute(context.Background(), IntParam(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("got %+v", res)
	}
	<-done
}

func TestPreparedStatementParamCountMismatch(t *testing.T) {
	conn, srv := setupTestConnection(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.readCommand(t)
		srv.sendStmtPrepareOK(t, 1, 2, 0)
	}()

	stmt, err := conn.Prepare(context.Background(), "INSERT INTO t VALUES (?, ?)")
	if err != nil {
		t.Fatal(err)
	}
	<-done

	_, err = stmt.Execute(context.Background(), IntParam(1))
	perr, ok := err.(*PreparedStatementError)
	if !ok || perr.Kind != PreparedStatementParamCountMismatch {
		t.Fatalf("got %v", err)
	}
}

func TestPreparedStatementCloseIsIdempotent(t *testing.T) {
	conn, srv := setupTestConnection(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.readCommand(t)
		srv.sendStmtPrepareOK(t, 3, 0, 0)
		srv.readCommand(t) // COM_STMT_CLOSE
	}()

	stmt, err := conn.Prepare(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatal(err)
	}
	<-done

	if err := stmt.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := stmt.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := stmt.Execute(context.Background(), IntParam(1)); err != ErrStatementClosed {
		t.Fatalf("got %v, want ErrStatementClosed", err)
	}
}

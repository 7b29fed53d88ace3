package mysql

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRowStreamBasicFlow(t *testing.T) {
	rs := newRowStream(4, 1)
	go func() {
		for i := 0; i < 3; i++ {
			rs.pushRow(Row{i})
		}
		rs.finish(StreamStats{RowCount: 3}, nil)
	}()

	var got []int
	for {
		row, ok := rs.Next()
		if !ok {
			break
		}
		got = append(got, row[0].(int))
	}
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
	if rs.Stats().RowCount != 3 {
		t.Fatalf("stats = %+v", rs.Stats())
	}
}

func TestRowStreamBackpressurePauseResume(t *testing.T) {
	rs := newRowStream(2, 0)
	var paused, resumed atomic.Int32
	rs.OnBackpressure(func() { paused.Add(1) }, func() { resumed.Add(1) })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			rs.pushRow(Row{i})
		}
		rs.finish(StreamStats{RowCount: 10}, nil)
	}()

	// Give the producer a chance to hit the high watermark before we
	// start draining, so at least one pause is observable (spec §4.G
	// scenario S5).
	time.Sleep(20 * time.Millisecond)

	count := 0
	for {
		_, ok := rs.Next()
		if !ok {
			break
		}
		count++
	}
	wg.Wait()

	if count != 10 {
		t.Fatalf("got %d rows, want 10", count)
	}
	if paused.Load() == 0 {
		t.Fatal("expected at least one pause")
	}
	if resumed.Load() == 0 {
		t.Fatal("expected at least one resume")
	}
}

func TestRowStreamCloseUnblocksConsumer(t *testing.T) {
	rs := newRowStream(4, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := rs.Next()
		if ok {
			t.Error("expected stream to be closed with no rows delivered")
		}
	}()

	time.Sleep(5 * time.Millisecond)
	rs.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Close")
	}
}

func TestRowStreamError(t *testing.T) {
	rs := newRowStream(4, 1)
	wantErr := &ProtocolError{Reason: "boom"}
	rs.finish(StreamStats{}, wantErr)

	_, ok := rs.Next()
	if ok {
		t.Fatal("expected no row")
	}
	if rs.Err() != wantErr {
		t.Fatalf("got %v", rs.Err())
	}
}

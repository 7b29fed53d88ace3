package poolhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	mysql "github.com/mysqlasync/mysqlcore"
)

func newTestPool(t *testing.T) *mysql.Pool {
	t.Helper()
	p := mysql.NewPool(mysql.PoolOptions{
		Size: 2,
		ConnectFactory: func(ctx context.Context) (*mysql.Connection, error) {
			return nil, mysql.ErrPoolClosed
		},
	})
	t.Cleanup(func() { p.Close() })
	return p
}

func TestServerHealthz(t *testing.T) {
	s := NewServer(newTestPool(t))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("got body %q, want %q", rec.Body.String(), "ok")
	}
}

func TestServerStats(t *testing.T) {
	s := NewServer(newTestPool(t))
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var stats mysql.PoolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats response: %v", err)
	}
	if stats.Open != 0 || stats.Idle != 0 || stats.Waiters != 0 {
		t.Fatalf("got %+v, want a freshly-built pool's zero stats", stats)
	}
}

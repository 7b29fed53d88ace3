package mysql

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParamsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	contents := `
host: db.internal
port: 3307
username: app
password: secret
database: appdb
connect_timeout_ms: 500
compress: true
reset_on_release: true
kill_timeout_seconds: 1.5
enable_server_side_cancellation: true
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	params, err := LoadParamsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if params.Host != "db.internal" || params.Port != 3307 {
		t.Fatalf("got %+v", params)
	}
	if params.ConnectTimeout != 500*time.Millisecond {
		t.Fatalf("got ConnectTimeout %v", params.ConnectTimeout)
	}
	if !params.Compress || !params.ResetOnRelease || !params.EnableServerSideCancellation {
		t.Fatalf("got %+v", params)
	}
	if params.killTimeout() != 1500*time.Millisecond {
		t.Fatalf("got killTimeout %v", params.killTimeout())
	}
}

func TestLoadParamsFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	if err := os.WriteFile(path, []byte("host: localhost\nusername: u\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	params, err := LoadParamsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if params.Port != 3306 {
		t.Fatalf("got default Port %d, want 3306", params.Port)
	}
	if params.ConnectTimeout != 10*time.Second {
		t.Fatalf("got default ConnectTimeout %v", params.ConnectTimeout)
	}
}

func TestWatchParamsFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	if err := os.WriteFile(path, []byte("host: first\nusername: u\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	changes := make(chan *ConnectionParams, 4)
	stop, err := WatchParamsFile(path, func(p *ConnectionParams, err error) {
		if err == nil {
			changes <- p
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("host: second\nusername: u\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-changes:
		if p.Host != "second" {
			t.Fatalf("got Host %q, want %q", p.Host, "second")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe the file rewrite")
	}
}

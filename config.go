package mysql

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// fileParams is the on-disk shape ConnectionParams is loaded from.
// Deliberately separate from ConnectionParams itself: the wire-facing
// struct carries a *tls.Config and a Logger, neither of which has a
// sane YAML representation, so the file format stays a plain subset
// and LoadParamsFile fills in the rest of ConnectionParams' defaults.
type fileParams struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	ConnectTimeoutMS int  `yaml:"connect_timeout_ms"`
	Compress         bool `yaml:"compress"`
	ResetOnRelease   bool `yaml:"reset_on_release"`
	MultiStatements  bool `yaml:"multi_statements"`

	KillTimeoutSeconds           float64 `yaml:"kill_timeout_seconds"`
	EnableServerSideCancellation bool    `yaml:"enable_server_side_cancellation"`
}

// LoadParamsFile reads a YAML connection-parameters file (spec §6: URI
// parsing is explicitly out of scope, but a structured config file for
// deployment is the ambient configuration story this package carries
// regardless).
func LoadParamsFile(path string) (*ConnectionParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fp fileParams
	if err := yaml.Unmarshal(data, &fp); err != nil {
		return nil, err
	}
	return fp.toConnectionParams(), nil
}

func (fp *fileParams) toConnectionParams() *ConnectionParams {
	p := &ConnectionParams{
		Host:                         fp.Host,
		Port:                         fp.Port,
		Username:                     fp.Username,
		Password:                     fp.Password,
		Database:                     fp.Database,
		Compress:                     fp.Compress,
		ResetOnRelease:               fp.ResetOnRelease,
		MultiStatements:              fp.MultiStatements,
		KillTimeoutSeconds:           fp.KillTimeoutSeconds,
		EnableServerSideCancellation: fp.EnableServerSideCancellation,
	}
	if fp.ConnectTimeoutMS > 0 {
		p.ConnectTimeout = time.Duration(fp.ConnectTimeoutMS) * time.Millisecond
	} else {
		p.ConnectTimeout = 10 * time.Second
	}
	if p.Port == 0 {
		p.Port = 3306
	}
	return p
}

// WatchParamsFile watches path for changes and invokes onChange with
// the freshly reloaded ConnectionParams each time it's rewritten.
// Intended for credential rotation: the Pool keeps serving existing
// Connections while onChange is expected to swap them in for new ones.
// The returned stop func closes the underlying watcher; it must be
// called to release the kernel inotify/kqueue handle.
func WatchParamsFile(path string, onChange func(*ConnectionParams, error)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					params, err := LoadParamsFile(path)
					onChange(params, err)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				onChange(nil, werr)
			case <-done:
				return
			}
		}
	}()

	return func() error {
		close(done)
		return watcher.Close()
	}, nil
}

package cryptonet

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"weak"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"
	"github.com/prividentity/cryptonet-go/pkg/cryptonet/logging"
)

// initialize_lib is process-wide and must run once. The working directory each
// driver was brought up with is remembered so later Opens can be checked
// against it. Drivers are told apart by interface equality, so a driver whose
// value cannot be compared is refused rather than allowed to panic the map.
var (
	initMu   sync.Mutex
	initDirs = map[backend.Driver]string{}
)

func initializeOnce(d backend.Driver, dir string) (fresh bool, err error) {
	if !reflect.ValueOf(d).Comparable() {
		return false, fmt.Errorf("%w: %T", ErrDriverIdentity, d)
	}
	initMu.Lock()
	defer initMu.Unlock()
	if prev, ok := initDirs[d]; ok {
		if prev != dir {
			return false, ErrLibraryInitialized
		}
		return false, nil
	}
	d.InitializeLib(dir)
	initDirs[d] = dir
	return true, nil
}

// Library represents an initialized native library. Sessions are created from
// it and closed with it.
type Library struct {
	driver backend.Driver
	dir    string
	log    logging.Logger

	// sessions tracks open sessions without keeping them reachable, so an
	// abandoned session can still be finalized.
	mu       sync.Mutex
	sessions map[uint64]weak.Pointer[Session]
	closed   bool
}

// Open resolves the driver and performs the library-wide initialization.
// Opening the same driver again with the same working directory shares the
// existing initialization; a different directory fails with
// ErrLibraryInitialized.
func Open(cfg Config) (*Library, error) {
	d := cfg.Driver
	if d == nil {
		native, err := backend.Native()
		if err != nil {
			return nil, err
		}
		d = native
	}
	dir, err := cfg.workingDir()
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New(nil)
	}

	fresh, err := initializeOnce(d, dir)
	if err != nil {
		return nil, err
	}
	if fresh {
		log.Info(context.Background(), "cryptonet: library initialized",
			"working_dir", dir, "native_version", d.GetVersion())
	}

	return &Library{
		driver:   d,
		dir:      dir,
		log:      log,
		sessions: make(map[uint64]weak.Pointer[Session]),
	}, nil
}

// WorkingDir returns the absolute working directory the library runs in.
func (l *Library) WorkingDir() string { return l.dir }

// NewSession creates a session from settings, which may be nil (an empty
// object), raw JSON or any value encoding/json accepts.
func (l *Library) NewSession(ctx context.Context, settings any) (*Session, error) {
	raw, err := encodeJSON(settings)
	if err != nil {
		return nil, errors.Join(ErrSessionInit, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrLibraryClosed
	}

	h, ok := l.driver.InitializeSession(raw)
	if !ok || h == nil {
		l.log.Warn(ctx, "cryptonet: session initialization rejected", logging.Redacted("settings"))
		return nil, ErrSessionInit
	}

	s := newSession(l, h, sessionFormat(raw))
	l.sessions[s.id] = weak.Make(s)
	l.log.Debug(ctx, "cryptonet: session created", "session", s.id)
	return s, nil
}

// WithSession runs fn against a fresh session and closes it afterwards,
// whatever fn returns.
func (l *Library) WithSession(ctx context.Context, settings any, fn func(*Session) error) error {
	s, err := l.NewSession(ctx, settings)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// CheckModels reports whether the model assets for mode are loaded. It does
// not need a session.
func (l *Library) CheckModels(mode ModelMode) bool {
	return l.driver.CheckModels(bool(mode))
}

// NativeVersion returns the library's own version string.
func (l *Library) NativeVersion() string {
	return l.driver.GetVersion()
}

// Close closes every session still open on the library. The method is
// idempotent, returning ErrLibraryClosed when called twice. The process-wide
// initialization is not undone; the library has no call for it.
func (l *Library) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLibraryClosed
	}
	l.closed = true
	open := make([]*Session, 0, len(l.sessions))
	for _, wp := range l.sessions {
		if s := wp.Value(); s != nil {
			open = append(open, s)
		}
	}
	l.mu.Unlock()

	for _, s := range open {
		_ = s.Close()
	}
	return nil
}

func (l *Library) forget(s *Session) {
	l.mu.Lock()
	delete(l.sessions, s.id)
	l.mu.Unlock()
}

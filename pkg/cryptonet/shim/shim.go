package shim

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"
)

// version is the one string GetVersion ever returns.
var version = "privid-shim 1.4.0"

var (
	predictModels = []string{"face_detector", "face_landmarks", "face_embedder", "antispoof"}
	enrollOnly    = []string{"face_quality", "document_detector"}
)

// Option configures a Library.
type Option func(*Library)

// WithMissingModels marks model assets as absent so CheckModels and the
// operations that need them fail.
func WithMissingModels(names ...string) Option {
	return func(l *Library) {
		for _, n := range names {
			l.missing[n] = true
		}
	}
}

// Library implements the native function table in Go. The zero value is not
// usable; construct one with New. A Library is safe for concurrent use.
type Library struct {
	missing map[string]bool
	opSeq   atomic.Int32

	mu       sync.Mutex
	workDir  string
	initErr  error
	keys     *keyring
	gallery  *gallery
	sessions map[backend.Handle]*session
	buffers  map[unsafe.Pointer][]byte

	violations atomic.Int64
}

var _ backend.Driver = (*Library)(nil)

// New returns an uninitialized shim library.
func New(opts ...Option) *Library {
	l := &Library{
		missing:  make(map[string]bool),
		sessions: make(map[backend.Handle]*session),
		buffers:  make(map[unsafe.Pointer][]byte),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type session struct {
	defaults map[string]json.RawMessage
	payload  *payloadKey
}

// InitializeLib loads (or creates) the persistent state under workingDir.
// Only the first call has any effect.
func (l *Library) InitializeLib(workingDir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workDir != "" {
		return
	}
	l.workDir = workingDir
	keys, err := loadKeyring(workingDir)
	if err != nil {
		l.initErr = err
		return
	}
	g, err := openGallery(workingDir)
	if err != nil {
		l.initErr = err
		return
	}
	l.keys, l.gallery = keys, g
}

// InitErr reports why InitializeLib failed, if it did.
func (l *Library) InitErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initErr
}

func (l *Library) ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys != nil
}

func (l *Library) InitializeSession(settings []byte) (backend.Handle, bool) {
	if !l.ready() {
		return nil, false
	}
	defaults, err := parseObject(settings)
	if err != nil {
		return nil, false
	}
	pk, err := newPayloadKey()
	if err != nil {
		return nil, false
	}
	s := &session{defaults: defaults, payload: pk}
	h := backend.Handle(unsafe.Pointer(s))

	l.mu.Lock()
	l.sessions[h] = s
	l.mu.Unlock()
	return h, true
}

func (l *Library) DeinitializeSession(h backend.Handle) {
	l.mu.Lock()
	delete(l.sessions, h)
	l.mu.Unlock()
}

func (l *Library) session(h backend.Handle) (*session, bool) {
	if h == nil {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[h]
	return s, ok
}

// Sessions returns the number of live session handles.
func (l *Library) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}

func (l *Library) SetConfiguration(h backend.Handle, config []byte) bool {
	s, ok := l.session(h)
	if !ok {
		return false
	}
	update, err := parseObject(config)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range update {
		s.defaults[k] = v
	}
	return true
}

// alloc hands out a library-owned copy of data. The byte after the payload
// is a NUL so the buffer can also be read as a C string.
func (l *Library) alloc(data []byte) backend.Buffer {
	b := make([]byte, len(data)+1)
	copy(b, data)
	p := unsafe.Pointer(&b[0])

	l.mu.Lock()
	l.buffers[p] = b
	l.mu.Unlock()
	return backend.Buffer{Ptr: p, Len: len(data)}
}

func (l *Library) out(v any) backend.Buffer {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{"status":-8,"message":"internal error"}`)
	}
	return l.alloc(data)
}

// FreeCharBuffer releases b. Releasing a pointer the shim does not own, or
// one already released, is counted as a violation and otherwise ignored.
func (l *Library) FreeCharBuffer(b backend.Buffer) {
	if b.Ptr == nil {
		return
	}
	l.mu.Lock()
	_, ok := l.buffers[b.Ptr]
	delete(l.buffers, b.Ptr)
	l.mu.Unlock()
	if !ok {
		l.violations.Add(1)
	}
}

// LiveBuffers returns the number of buffers handed out and not yet released.
func (l *Library) LiveBuffers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffers)
}

// ReleaseViolations returns how many FreeCharBuffer calls named a pointer
// that was not live.
func (l *Library) ReleaseViolations() int64 {
	return l.violations.Load()
}

func (l *Library) CheckModels(enrollMode bool) bool {
	return l.modelsLoaded(enrollMode)
}

func (l *Library) modelsLoaded(enrollMode bool) bool {
	if !l.ready() {
		return false
	}
	for _, m := range predictModels {
		if l.missing[m] {
			return false
		}
	}
	if !enrollMode {
		return true
	}
	for _, m := range enrollOnly {
		if l.missing[m] {
			return false
		}
	}
	return true
}

func (l *Library) GetVersion() string {
	return version
}

func (l *Library) AboutModels(h backend.Handle) backend.Buffer {
	if _, ok := l.session(h); !ok {
		return backend.Buffer{}
	}
	models := make([]modelInfo, 0, len(predictModels)+len(enrollOnly))
	for _, m := range predictModels {
		models = append(models, modelInfo{Name: m, Loaded: !l.missing[m]})
	}
	for _, m := range enrollOnly {
		models = append(models, modelInfo{Name: m, Loaded: !l.missing[m], EnrollOnly: true})
	}
	return l.out(aboutPayload{
		envelope: envelope{Status: StatusOK, Message: "ok", Operation: "about_models"},
		Version:  version,
		Models:   models,
	})
}

func (l *Library) nextID() int32 {
	return l.opSeq.Add(1)
}

func (l *Library) fail(op string, code int32, msg string) (int32, backend.Buffer) {
	return code, l.out(failure{
		envelope: envelope{Status: int(code), Message: msg, Operation: op},
		Code:     code,
	})
}

var errNotObject = errors.New("shim: configuration must be a JSON object")

// parseObject accepts an empty input as {}.
func parseObject(raw []byte) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNotObject
	}
	return m, nil
}

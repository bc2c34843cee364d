package backend

import (
	"bytes"
	"errors"
	"unsafe"
)

// ErrNotBuilt reports that the native bindings were not linked into the
// current binary.
var ErrNotBuilt = errors.New("cryptonet/internal/backend: native bindings not built")

// Handle is an opaque session reference issued by initialize_session. A nil
// Handle never refers to a live session.
type Handle unsafe.Pointer

// Buffer is a library-allocated (pointer, byte length) pair. Ownership moves
// to the caller when a driver call returns it and back to the library when
// it is passed to FreeCharBuffer.
type Buffer struct {
	Ptr unsafe.Pointer
	Len int
}

// IsNil reports whether the library returned no buffer at all.
func (b Buffer) IsNil() bool {
	return b.Ptr == nil
}

// Bytes copies the buffer contents into Go memory. The copy stays valid after
// the buffer is released.
func (b Buffer) Bytes() []byte {
	if b.Ptr == nil || b.Len <= 0 {
		return nil
	}
	return bytes.Clone(unsafe.Slice((*byte)(b.Ptr), b.Len))
}

// Driver is the flat function table exported by the native library. Every
// method maps to exactly one C entry point; no method adds behavior of its own.
//
// Implementations must honor the buffer contract: any non-nil Buffer returned
// from a method must be released through FreeCharBuffer exactly once.
type Driver interface {
	InitializeLib(workingDir string)
	InitializeSession(settings []byte) (Handle, bool)
	DeinitializeSession(h Handle)
	FreeCharBuffer(b Buffer)
	SetConfiguration(h Handle, config []byte) bool

	UserEnroll(h Handle, config, pixels []byte, width, height int) (int32, Buffer)
	UserPredict(h Handle, config, pixels []byte, width, height int) (int32, Buffer)
	DocScanFront(h Handle, config, pixels []byte, width, height int) (int32, Buffer)
	DocScanBack(h Handle, config, pixels []byte, width, height int) (int32, Buffer)

	CompareEmbeddings(h Handle, config, one, two []byte) (int32, Buffer)
	EncryptPayload(h Handle, config, payload []byte) (int32, Buffer)

	CheckModels(enrollMode bool) bool
	GetVersion() string
	AboutModels(h Handle) Buffer
}

// ImageCall is the shared signature of the four pixel-buffer operations.
type ImageCall func(h Handle, config, pixels []byte, width, height int) (int32, Buffer)

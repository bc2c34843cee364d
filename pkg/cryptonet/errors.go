package cryptonet

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"
)

var (
	// ErrNotBuilt reports that the native bindings are not linked and no
	// Driver was supplied.
	ErrNotBuilt = backend.ErrNotBuilt

	ErrNoWorkingDir       = errors.New("cryptonet: working directory is required")
	ErrDriverIdentity     = errors.New("cryptonet: driver value is not comparable; pass a pointer")
	ErrLibraryInitialized = errors.New("cryptonet: library already initialized with another working directory")
	ErrLibraryClosed      = errors.New("cryptonet: library has been closed")
	ErrSessionInit        = errors.New("cryptonet: session initialization failed")
	ErrSessionClosed      = errors.New("cryptonet: session has been closed")
	ErrConfiguration      = errors.New("cryptonet: configuration rejected")
	ErrInvalidImage       = errors.New("cryptonet: invalid image")
	ErrInvalidUTF8        = errors.New("cryptonet: result is not valid UTF-8")

	// ErrOperationFailed matches every OperationError.
	ErrOperationFailed = errors.New("cryptonet: operation failed")
)

// OperationError reports a negative return from one of the JSON-producing
// entry points. The library does not enumerate its codes, so Code is carried
// verbatim; Payload holds whatever JSON the library produced alongside the
// failure, if any.
type OperationError struct {
	Op      Op
	Code    int32
	Payload json.RawMessage
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("cryptonet: %s failed with code %d", e.Op, e.Code)
}

// Is lets errors.Is(err, ErrOperationFailed) match any operation failure.
func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// Code extracts the library return code from err. ok is false when err is
// not an OperationError.
func Code(err error) (code int32, ok bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Code, true
	}
	return 0, false
}

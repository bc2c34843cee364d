package cryptonet

import "github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"

// Driver is the native function table a Library runs against. It is exposed
// so alternative implementations (the shim, test doubles) can be plugged into
// Config.Driver.
type Driver = backend.Driver

// Handle is the opaque session reference issued by a Driver.
type Handle = backend.Handle

// Buffer is a driver-owned (pointer, length) output buffer.
type Buffer = backend.Buffer

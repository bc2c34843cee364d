//go:build !cgo || !privid_native

package backend

// Native reports ErrNotBuilt when the binary was compiled without cgo or
// without the privid_native tag. Callers can still supply their own Driver,
// such as the in-process shim.
func Native() (Driver, error) {
	return nil, ErrNotBuilt
}

// Version returns the version string from the native library, or empty if not available.
func Version() string { return "" }

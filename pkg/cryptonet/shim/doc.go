// Package shim is an in-process stand-in for the native privid library. It
// implements the same function table as the cgo bindings and keeps every
// rule of the boundary: sessions only after library initialization, handles
// invalid after teardown, out-buffers tracked until released exactly once,
// one static version string.
//
// The shim does not recognize faces or read documents. Image operations
// reduce the pixels to a coarse luminance signature, which is enough for
// enroll, predict and compare to agree with each other on identical or
// re-exposed inputs. Embeddings and payloads are sealed with HPKE
// (X25519, HKDF-SHA256, ChaCha20-Poly1305).
package shim

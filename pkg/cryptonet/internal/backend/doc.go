// Package backend hosts the thin cgo layer that links the Go API to the
// native privid_fhe_uber library. The real implementation lives behind the
// privid_native build tag so that the rest of the repository can compile and
// test without the closed binary.
package backend

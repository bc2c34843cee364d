// Package internalcheck holds static policy tests over the wrapper sources.
//
// The tests load the wrapper packages with golang.org/x/tools/go/packages and
// walk their syntax trees. They guard rules that are easy to break in review
// and hard to catch at runtime: result buffers released after they are
// copied, no biometric bytes handed to a logger, no hex dumps of sealed
// material.
//
// # Internal Use Only
//
// Nothing here is meant to be imported.
package internalcheck

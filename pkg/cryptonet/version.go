package cryptonet

import "github.com/prividentity/cryptonet-go/pkg/cryptonet/internal/backend"

// Build metadata, set with -ldflags "-X github.com/prividentity/cryptonet-go/pkg/cryptonet.Version=...".
var (
	Version = "v0.0.0-dev"

	// UpstreamPinned is the privid_fhe_uber release the bindings were
	// written against.
	UpstreamPinned = "unknown"
)

// UpstreamLibrary names the native library the bindings link.
const UpstreamLibrary = "privid_fhe_uber"

func WrapperVersion() string { return Version }

// UpstreamVersion prefers the version the linked library reports and falls
// back to UpstreamPinned in builds without it.
func UpstreamVersion() string {
	if linked := backend.Version(); linked != "" {
		return linked
	}
	return UpstreamPinned
}

// Package cryptonet exposes a Go API for the closed privid_fhe_uber face and
// document library. The library itself is opaque: it is reached through a
// flat C function table, configured with JSON and answers with JSON. This
// package owns the parts of that boundary a Go caller should not have to
// think about:
//
//   - library-wide initialization happens once per process and driver;
//   - session handles are wrapped in Session values that serialize access
//     and reject use after Close;
//   - every result buffer is copied into Go memory and released through the
//     library's deallocator exactly once, on every path;
//   - boolean and signed-integer failure conventions are folded into Go
//     errors (see OperationError).
//
// The native driver is linked when building with cgo and the privid_native
// tag. Without it Open fails with ErrNotBuilt unless Config.Driver supplies
// another implementation, such as the in-process shim in the shim
// subpackage.
//
//	lib, err := cryptonet.Open(cryptonet.Config{WorkingDir: dir, Driver: shim.New()})
//	if err != nil {
//		return err
//	}
//	defer lib.Close()
//
//	err = lib.WithSession(ctx, nil, func(s *cryptonet.Session) error {
//		res, err := s.Enroll(ctx, img, nil)
//		if err != nil {
//			return err
//		}
//		fmt.Println(res.ID, string(res.Payload))
//		return nil
//	})
package cryptonet

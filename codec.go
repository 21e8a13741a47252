package netasync

// Codec is the user-supplied encode/decode contract (spec.md §6). It is
// a pure user concern — out of the core's scope — specified here only at
// interface level, as the façades in service.go/datagramfacade.go need a
// concrete type to be generic over.
type Codec[M any] interface {
	// Encode serializes m to bytes. A returned error is surfaced to the
	// caller's handler as an Encoding Error.
	Encode(m M) ([]byte, error)
	// Decode deserializes b into an M. A returned error is surfaced to
	// the caller's handler as a Decoding Error.
	Decode(b []byte) (M, error)
}

package netasync

import "errors"

// stringCodec is a trivial Codec[string] used across this package's own
// tests; real users are expected to bring something like protobuf or
// msgpack instead.
type stringCodec struct{}

func (stringCodec) Encode(m string) ([]byte, error) { return []byte(m), nil }
func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

var errEncodeRejected = errors.New("rejected by test codec")

// failingEncodeCodec always fails Encode, for exercising the Encoding
// error path.
type failingEncodeCodec struct{}

func (failingEncodeCodec) Encode(m string) ([]byte, error) { return nil, errEncodeRejected }
func (failingEncodeCodec) Decode(b []byte) (string, error) { return string(b), nil }

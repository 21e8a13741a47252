package netasync

import (
	"encoding/binary"
	"io"
	"math"
	"net"

	"github.com/sagernet/sing/common/bufio"
)

// frameHeaderSize is the wire-format length prefix: a 4-byte big-endian
// unsigned payload length, per spec.md §4.1/§6.
const frameHeaderSize = 4

// encodeFrameHeader writes payloadLen as a big-endian uint32. It never
// copies the payload itself — callers pair the header with the payload
// slice directly in a gathered write.
func encodeFrameHeader(payloadLen int) (hdr [frameHeaderSize]byte, err error) {
	if payloadLen < 0 || uint64(payloadLen) > math.MaxUint32 {
		return hdr, ErrFrameTooLarge
	}
	binary.BigEndian.PutUint32(hdr[:], uint32(payloadLen))
	return hdr, nil
}

func decodeFrameHeader(hdr [frameHeaderSize]byte) uint32 {
	return binary.BigEndian.Uint32(hdr[:])
}

// writeFrame writes payload's frame (header immediately followed by
// payload, no separators) to conn in a single gathered write where the
// connection supports it. Grounded on the teacher's sendLoop, which
// assembles a header into buf[0:headerSize] and then either uses
// bufio.WriteVectorised over [header, data] when the connection exposes
// a vectorised writer, or falls back to a single copy+Write.
func writeFrame(conn net.Conn, payload []byte) (int, error) {
	hdr, err := encodeFrameHeader(len(payload))
	if err != nil {
		return 0, err
	}
	if vw, ok := bufio.CreateVectorisedWriter(conn); ok {
		n, err := bufio.WriteVectorised(vw, [][]byte{hdr[:], payload})
		if n < frameHeaderSize {
			return 0, err
		}
		return n - frameHeaderSize, err
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	copy(buf, hdr[:])
	copy(buf[frameHeaderSize:], payload)
	n, err := conn.Write(buf)
	if n < frameHeaderSize {
		return 0, err
	}
	return n - frameHeaderSize, err
}

// readFrameHeader reads exactly frameHeaderSize bytes from conn.
func readFrameHeader(conn net.Conn) ([frameHeaderSize]byte, error) {
	var hdr [frameHeaderSize]byte
	_, err := io.ReadFull(conn, hdr[:])
	return hdr, err
}

// decodeDatagramFrame extracts a frame's payload from a single already
// received datagram buffer. It requires at least 4 bytes for the header
// and at least 4+N bytes total; any shortfall is a malformed frame
// (invalid_frame), matching spec.md §9 Open Question (b) and §4.8.
func decodeDatagramFrame(buf []byte) ([]byte, error) {
	if len(buf) < frameHeaderSize {
		return nil, ErrInvalidFrame
	}
	var hdr [frameHeaderSize]byte
	copy(hdr[:], buf[:frameHeaderSize])
	n := decodeFrameHeader(hdr)
	if uint64(len(buf)) < uint64(frameHeaderSize)+uint64(n) {
		return nil, ErrInvalidFrame
	}
	return buf[frameHeaderSize : frameHeaderSize+n], nil
}

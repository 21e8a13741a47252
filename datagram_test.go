package netasync

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsyncSendToReceiveFromRoundTrip(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()
	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer clientConn.Close()

	ex := NewExecutor(2)
	defer ex.Stop()
	strand := ex.NewStrand()
	clientEndpoint := newDatagramEndpoint(clientConn)
	serverEndpoint := newDatagramEndpoint(serverConn)

	payload := []byte("datagram payload")
	sendDone := make(chan error, 1)
	asyncSendTo(strand, clientEndpoint, clientConn, payload, serverConn.LocalAddr(), time.Second, func(err error) {
		sendDone <- err
	})

	recvDone := make(chan struct{})
	var got []byte
	var recvErr error
	asyncReceiveFrom(strand, serverEndpoint, serverConn, 1<<16, time.Second, func(b []byte, addr net.Addr, err error) {
		got = b
		recvErr = err
		close(recvDone)
	})

	require.NoError(t, <-sendDone)
	select {
	case <-recvDone:
	case <-time.After(time.Second):
		t.Fatal("receive never completed")
	}
	require.NoError(t, recvErr)
	require.Equal(t, payload, got)
}

func TestAsyncReceiveFromMalformedFrameIsInvalidFrame(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()
	rawSender, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer rawSender.Close()

	ex := NewExecutor(2)
	defer ex.Stop()
	strand := ex.NewStrand()
	serverEndpoint := newDatagramEndpoint(serverConn)

	// Claims a 10-byte body but only 2 bytes actually follow the header.
	hdr, err := encodeFrameHeader(10)
	require.NoError(t, err)
	malformed := append(append([]byte{}, hdr[:]...), []byte{0x01, 0x02}...)
	_, err = rawSender.WriteTo(malformed, serverConn.LocalAddr())
	require.NoError(t, err)

	recvDone := make(chan struct{})
	var recvErr error
	asyncReceiveFrom(strand, serverEndpoint, serverConn, 1<<16, time.Second, func(b []byte, addr net.Addr, err error) {
		recvErr = err
		close(recvDone)
	})

	select {
	case <-recvDone:
	case <-time.After(time.Second):
		t.Fatal("receive never completed")
	}
	require.Error(t, recvErr)
	var ne *Error
	require.ErrorAs(t, recvErr, &ne)
	require.Equal(t, InvalidFrame, ne.Kind)
	require.True(t, serverEndpoint.IsOpen(), "an invalid frame is not a transport failure and must not close the endpoint")
}

func TestAsyncReceiveFromTimesOut(t *testing.T) {
	serverConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverConn.Close()

	ex := NewExecutor(1)
	defer ex.Stop()
	strand := ex.NewStrand()
	serverEndpoint := newDatagramEndpoint(serverConn)

	recvDone := make(chan struct{})
	var recvErr error
	asyncReceiveFrom(strand, serverEndpoint, serverConn, 1<<16, 20*time.Millisecond, func(b []byte, addr net.Addr, err error) {
		recvErr = err
		close(recvDone)
	})

	select {
	case <-recvDone:
	case <-time.After(time.Second):
		t.Fatal("receive never completed")
	}
	require.Error(t, recvErr)
	var ne *Error
	require.ErrorAs(t, recvErr, &ne)
	require.Equal(t, Aborted, ne.Kind)
}

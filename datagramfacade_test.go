package netasync

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	return serverPort(t, conn.LocalAddr())
}

func TestDatagramSenderReceiverRoundTrip(t *testing.T) {
	ex := NewExecutor(4)
	defer ex.Stop()

	port := freeUDPPort(t)
	receiver := NewDatagramReceiver[string](ex, port, 1<<16, stringCodec{})
	defer receiver.Stop()
	sender := NewDatagramSender[string](ex, stringCodec{})
	defer sender.Stop()

	recvDone := make(chan struct{})
	var got string
	var recvErr error
	receiver.AsyncReceive(time.Second, func(m string, addr net.Addr, err error) {
		got = m
		recvErr = err
		close(recvDone)
	})

	// Give the receiver a moment to bind before the send races it.
	time.Sleep(20 * time.Millisecond)

	sendDone := make(chan struct{})
	var sendErr error
	sender.AsyncSend("broadcast payload", "127.0.0.1", port, time.Second, func(err error) {
		sendErr = err
		close(sendDone)
	})

	<-sendDone
	require.NoError(t, sendErr)
	select {
	case <-recvDone:
	case <-time.After(time.Second):
		t.Fatal("receive never completed")
	}
	require.NoError(t, recvErr)
	require.Equal(t, "broadcast payload", got)
}

func TestDatagramSenderQueuesSendsInOrder(t *testing.T) {
	ex := NewExecutor(4)
	defer ex.Stop()

	port := freeUDPPort(t)
	receiver := NewDatagramReceiver[string](ex, port, 1<<16, stringCodec{})
	defer receiver.Stop()
	sender := NewDatagramSender[string](ex, stringCodec{})
	defer sender.Stop()

	const n = 10
	var received []string
	for i := 0; i < n; i++ {
		done := make(chan struct{})
		receiver.AsyncReceive(time.Second, func(m string, addr net.Addr, err error) {
			require.NoError(t, err)
			received = append(received, m)
			close(done)
		})

		sendDone := make(chan struct{})
		sender.AsyncSend(strconv.Itoa(i), "127.0.0.1", port, time.Second, func(err error) {
			require.NoError(t, err)
			close(sendDone)
		})
		<-sendDone
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("receive %d never completed", i)
		}
	}

	require.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, received)
}

func TestDatagramReceiverOverrideCancelsPreviousReceive(t *testing.T) {
	ex := NewExecutor(4)
	defer ex.Stop()

	port := freeUDPPort(t)
	receiver := NewDatagramReceiver[string](ex, port, 1<<16, stringCodec{})
	defer receiver.Stop()
	sender := NewDatagramSender[string](ex, stringCodec{})
	defer sender.Stop()

	firstDone := make(chan struct{})
	var firstErr error
	receiver.AsyncReceive(time.Second, func(m string, addr net.Addr, err error) {
		firstErr = err
		close(firstDone)
	})
	time.Sleep(20 * time.Millisecond)

	secondDone := make(chan struct{})
	var secondMsg string
	var secondErr error
	receiver.AsyncReceive(time.Second, func(m string, addr net.Addr, err error) {
		secondMsg = m
		secondErr = err
		close(secondDone)
	})

	select {
	case <-firstDone:
	case <-time.After(time.Second):
		t.Fatal("superseded receive never completed")
	}
	require.Error(t, firstErr)
	var ne *Error
	require.ErrorAs(t, firstErr, &ne)
	require.Equal(t, Aborted, ne.Kind)

	sendDone := make(chan struct{})
	sender.AsyncSend("newest wins", "127.0.0.1", port, time.Second, func(err error) {
		require.NoError(t, err)
		close(sendDone)
	})
	<-sendDone

	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("overriding receive never completed")
	}
	require.NoError(t, secondErr)
	require.Equal(t, "newest wins", secondMsg)
}

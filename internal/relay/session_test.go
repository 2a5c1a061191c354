package relay

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lockrelay/lockd/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeDialer returns a Dialer backed by net.Pipe, handing the server
// half to onAccept for the test to drive as a fake device.
func pipeDialer(onAccept func(server net.Conn)) Dialer {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go onAccept(server)
		return client, nil
	}
}

// staticStatusDevice answers every 6-byte command with the given fixed
// 12-byte response, closing when the pipe is torn down.
func staticStatusDevice(t *testing.T, response []byte) func(net.Conn) {
	return func(server net.Conn) {
		defer server.Close()
		for {
			cmd := make([]byte, frame.CommandSize)
			if _, err := server.Read(cmd); err != nil {
				return
			}
			if _, err := server.Write(response); err != nil {
				return
			}
		}
	}
}

func allOpenResponse() []byte {
	return []byte{0xAA, 0xBB, 0xCC, 0xDD, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xEE, 0xFF}
}

func TestSendStatusRequestSucceedsAndCaches(t *testing.T) {
	var reads atomic.Int32
	dial := pipeDialer(func(server net.Conn) {
		defer server.Close()
		for {
			cmd := make([]byte, frame.CommandSize)
			if _, err := server.Read(cmd); err != nil {
				return
			}
			reads.Add(1)
			server.Write(allOpenResponse())
		}
	})

	s := newSessionWithDialer("device-1", dial, nil)
	require.NoError(t, s.Connect(context.Background()))

	cmd := frame.EncodeStatus(0)
	resp, ok := s.SendStatusRequest(context.Background(), cmd[:])
	require.True(t, ok)
	assert.Equal(t, allOpenResponse(), resp)

	// second call within the TTL must be served from cache, not the wire.
	resp2, ok2 := s.SendStatusRequest(context.Background(), cmd[:])
	require.True(t, ok2)
	assert.Equal(t, resp, resp2)
	assert.Equal(t, int32(1), reads.Load(), "second request should hit the cache")
}

func TestGetStatusDecodesEveryBoard(t *testing.T) {
	dial := pipeDialer(staticStatusDevice(t, allOpenResponse()))
	s := newSessionWithDialer("device-1", dial, nil)
	require.NoError(t, s.Connect(context.Background()))

	statuses := s.GetStatus(context.Background(), 2)
	require.Len(t, statuses, 2)
	for board := 0; board < 2; board++ {
		require.Len(t, statuses[board], frame.LocksPerBoard)
		assert.False(t, statuses[board][1])
	}
}

func TestSendStatusRequestNoResponseWhenNeverConnected(t *testing.T) {
	s := newSessionWithDialer("device-1", pipeDialer(func(net.Conn) {}), nil)
	// deliberately skip Connect: conn is nil.

	cmd := frame.EncodeStatus(0)
	_, ok := s.SendStatusRequest(context.Background(), cmd[:])
	assert.False(t, ok)
}

func TestSendStatusRequestShortReadIsRetriedThenGivesUp(t *testing.T) {
	dial := pipeDialer(func(server net.Conn) {
		defer server.Close()
		cmd := make([]byte, frame.CommandSize)
		for {
			if _, err := server.Read(cmd); err != nil {
				return
			}
			// write fewer bytes than a full response and never complete it.
			server.Write([]byte{0x01, 0x02})
		}
	})

	s := newSessionWithDialer("device-1", dial, nil)
	require.NoError(t, s.Connect(context.Background()))

	cmd := frame.EncodeStatus(0)
	start := time.Now()
	_, ok := s.SendStatusRequest(context.Background(), cmd[:])
	assert.False(t, ok)
	// 3 attempts * 2s read timeout each, reconnect delay between retries
	// is bounded; just assert it didn't return instantly.
	assert.GreaterOrEqual(t, time.Since(start), readTimeout)
}

func TestSendStatusRequestTimeoutWithNoBytesStopsWithoutRetry(t *testing.T) {
	dial := pipeDialer(func(server net.Conn) {
		defer server.Close()
		cmd := make([]byte, frame.CommandSize)
		server.Read(cmd) // read the one command, then never answer.
		<-make(chan struct{})
	})

	s := newSessionWithDialer("device-1", dial, nil)
	require.NoError(t, s.Connect(context.Background()))

	cmd := frame.EncodeStatus(0)
	start := time.Now()
	_, ok := s.SendStatusRequest(context.Background(), cmd[:])
	elapsed := time.Since(start)

	assert.False(t, ok)
	// a zero-byte timeout terminates the attempt loop rather than
	// retrying, so this should take roughly one read timeout, not three.
	assert.GreaterOrEqual(t, elapsed, readTimeout)
	assert.Less(t, elapsed, 2*readTimeout)
}

func TestEnqueueUnlockWritesCommandToWire(t *testing.T) {
	received := make(chan []byte, 1)
	dial := pipeDialer(func(server net.Conn) {
		defer server.Close()
		buf := make([]byte, frame.CommandSize)
		if _, err := server.Read(buf); err != nil {
			return
		}
		received <- append([]byte(nil), buf...)
	})

	s := newSessionWithDialer("device-1", dial, nil)
	require.NoError(t, s.Connect(context.Background()))

	s.EnqueueUnlock(0, 1)

	select {
	case got := <-received:
		want := frame.EncodeUnlock(0, 1)
		assert.Equal(t, want[:], got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for unlock command on the wire")
	}
}

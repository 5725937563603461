package proxy

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tetherproxy/tetherd/internal/testutil"
)

// Tunnel fixture: clientNear<->clientFar and remoteNear<->remoteFar pipes
// with CopyBidirectional shuttling between the two far ends.
func startPipeTunnel(t *testing.T, ctx context.Context) (clientNear, remoteFar net.Conn, done <-chan error) {
	t.Helper()

	clientNear, clientFar := net.Pipe()
	remoteNear, remoteFar := net.Pipe()

	ch := make(chan error, 1)
	go func() {
		ch <- CopyBidirectional(ctx, clientFar, remoteNear)
	}()

	t.Cleanup(func() {
		_ = clientNear.Close()
		_ = remoteFar.Close()
	})

	return clientNear, remoteFar, ch
}

func TestCopyBidirectionalRoundTrip(t *testing.T) {
	t.Parallel()

	clientNear, remoteFar, _ := startPipeTunnel(t, context.Background())

	testutil.AssertEcho(t, clientNear, remoteFar, []byte("ping from client"))
	testutil.AssertEcho(t, remoteFar, clientNear, []byte("pong from remote"))
	testutil.AssertEcho(t, clientNear, remoteFar, []byte("interleaved again"))
}

func TestCopyBidirectionalTeardownOnClientClose(t *testing.T) {
	t.Parallel()

	clientNear, remoteFar, done := startPipeTunnel(t, context.Background())

	require.NoError(t, clientNear.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tunnel did not finish after client close")
	}

	// The remote end must have been torn down too.
	_ = remoteFar.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := remoteFar.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestCopyBidirectionalTeardownOnRemoteClose(t *testing.T) {
	t.Parallel()

	clientNear, remoteFar, done := startPipeTunnel(t, context.Background())

	require.NoError(t, remoteFar.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tunnel did not finish after remote close")
	}

	_ = clientNear.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := clientNear.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	clientNear, remoteFar, done := startPipeTunnel(t, ctx)

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tunnel did not finish after context cancel")
	}

	_ = clientNear.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := clientNear.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	_ = remoteFar.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = remoteFar.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
